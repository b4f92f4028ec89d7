package channel

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// loopback is a minimal io.ReadWriteCloser over a buffer, for testing Lossy
// without a real network connection.
type loopback struct {
	buf    bytes.Buffer
	closed bool
}

func (l *loopback) Read(p []byte) (int, error) {
	if l.buf.Len() == 0 {
		return 0, io.EOF
	}
	return l.buf.Read(p)
}

func (l *loopback) Write(p []byte) (int, error) {
	return l.buf.Write(p)
}

func (l *loopback) Close() error {
	l.closed = true
	return nil
}

func TestZeroRatesPassThroughUnmodified(t *testing.T) {
	lb := &loopback{}
	c := New(lb, 0, 0, 1)

	payload := []byte("hello world")
	n, err := c.Write(payload)
	require.NoError(t, err)
	assert.Equal(t, len(payload), n)
	assert.Equal(t, payload, lb.buf.Bytes())
}

func TestAlwaysDropReportsSuccessButWritesNothing(t *testing.T) {
	lb := &loopback{}
	c := New(lb, 1, 0, 1)

	n, err := c.Write([]byte("dropped"))
	require.NoError(t, err)
	assert.Equal(t, len("dropped"), n)
	assert.Equal(t, 0, lb.buf.Len())
}

func TestAlwaysCorruptFlipsExactlyOneBit(t *testing.T) {
	lb := &loopback{}
	c := New(lb, 0, 1, 7)

	payload := []byte{0x00, 0x00, 0x00, 0x00}
	_, err := c.Write(payload)
	require.NoError(t, err)

	written := lb.buf.Bytes()
	require.Len(t, written, len(payload))

	diff := 0
	for i := range payload {
		diff += popcount(payload[i] ^ written[i])
	}
	assert.Equal(t, 1, diff, "exactly one bit should have flipped")
}

func TestCloseClosesUnderlying(t *testing.T) {
	lb := &loopback{}
	c := New(lb, 0, 0, 1)
	require.NoError(t, c.Close())
	assert.True(t, lb.closed)
}

func TestReadPassesThrough(t *testing.T) {
	lb := &loopback{}
	lb.buf.WriteString("payload")
	c := New(lb, 0, 0, 1)

	buf := make([]byte, 7)
	n, err := c.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(buf[:n]))
}

func TestRateClampedToUnitInterval(t *testing.T) {
	lb := &loopback{}
	c := New(lb, -1, 2, 1)
	assert.Equal(t, 0.0, c.drop)
	assert.Equal(t, 1.0, c.corr)
}

func popcount(b byte) int {
	n := 0
	for b != 0 {
		n += int(b & 1)
		b >>= 1
	}
	return n
}
