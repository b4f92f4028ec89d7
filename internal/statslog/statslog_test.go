package statslog

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/netloom/linklayer/pkg/link"
)

func TestOpenWritesHeaderOnlyOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logfile")

	w1, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, w1.Append("GBN", 0.1, 0.05, "client", link.StatsSnapshot{}))

	w2, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, w2.Append("GBN", 0.1, 0.05, "client", link.StatsSnapshot{}))

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimRight(string(content), "\n"), "\n")
	require.Len(t, lines, 3) // header + two appended lines
	assert.True(t, strings.HasPrefix(lines[0], "mode\t"))
}

func TestAppendColumnOrder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logfile")
	w, err := Open(path)
	require.NoError(t, err)

	snap := link.StatsSnapshot{
		FramesTransmitted:  10,
		Retransmissions:    2,
		AcksSent:           5,
		AcksReceived:       4,
		DuplicatesReceived: 1,
		TimeToRecognize:    250 * time.Millisecond,
	}
	require.NoError(t, w.Append("SR", 0.2, 0.1, "server", snap))

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimRight(string(content), "\n"), "\n")
	require.Len(t, lines, 2)

	cols := strings.Split(lines[1], "\t")
	require.Len(t, cols, 10)
	assert.Equal(t, "SR", cols[0])
	assert.Equal(t, "0.2", cols[1])
	assert.Equal(t, "0.1", cols[2])
	assert.Equal(t, "server", cols[3])
	assert.Equal(t, "4", cols[4])
	assert.Equal(t, "5", cols[5])
	assert.Equal(t, "10", cols[6])
	assert.Equal(t, "1", cols[7])
	assert.Equal(t, "2", cols[8])
	assert.Equal(t, "0.25", cols[9])
}
