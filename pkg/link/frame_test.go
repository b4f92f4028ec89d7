package link

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	payload := []byte("HELLO")
	wire := Encode(7, 3, payload)

	f, err := Decode(bytes.NewReader(wire))
	require.NoError(t, err)
	assert.Equal(t, uint32(7), f.Seq)
	assert.Equal(t, uint32(3), f.Ack)
	assert.Equal(t, payload, f.Payload)
}

func TestEncodeDecodeEmptyPayloadIsAckOnly(t *testing.T) {
	wire := Encode(1, 2, nil)
	f, err := Decode(bytes.NewReader(wire))
	require.NoError(t, err)
	assert.True(t, f.IsAckOnly())
}

func TestEncodeDecodeMaxPayload(t *testing.T) {
	payload := bytes.Repeat([]byte{0xAB}, MaxPayload)
	wire := Encode(0, 0, payload)
	f, err := Decode(bytes.NewReader(wire))
	require.NoError(t, err)
	assert.Equal(t, payload, f.Payload)
}

func TestEncodeOversizedPayloadPanics(t *testing.T) {
	assert.Panics(t, func() {
		Encode(0, 0, make([]byte, MaxPayload+1))
	})
}

func TestDecodeDetectsSingleByteFlips(t *testing.T) {
	wire := Encode(42, 9, []byte("A longer payload to flip bits in"))
	for i := range wire {
		for bit := 0; bit < 8; bit++ {
			corrupted := append([]byte(nil), wire...)
			corrupted[i] ^= 1 << bit
			// trailing stream bytes let a flipped length byte that now names a
			// longer payload still read a full frame, as it would mid-stream.
			corrupted = append(corrupted, make([]byte, MaxPayload)...)
			_, err := Decode(bytes.NewReader(corrupted))
			assert.Error(t, err, "byte %d bit %d should have been detected", i, bit)
			var checksumErr *ChecksumError
			assert.ErrorAs(t, err, &checksumErr)
		}
	}
}

func TestDecodePropagatesTransportError(t *testing.T) {
	_, err := Decode(bytes.NewReader([]byte{1, 2, 3}))
	assert.Error(t, err)
	var checksumErr *ChecksumError
	assert.False(t, errors.As(err, &checksumErr))
}
