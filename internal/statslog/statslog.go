// Package statslog appends a tab-separated run summary line to a log file,
// the same shape the original benchmark harness wrote, so existing
// downstream analysis tooling can keep reading it column-for-column.
package statslog

import (
	"fmt"
	"os"
	"strings"

	"github.com/pkg/errors"

	"github.com/netloom/linklayer/pkg/link"
)

// Column order matches the original log_func exactly:
// mode, drop_rate, corrupt_rate, role, acks_received, acks_sent,
// frames_transmitted, duplicates_received, retransmissions, time_to_recognize.
const header = "mode\tdrop_rate\tcorrupt_rate\trole\tacks_received\tacks_sent\tframes_transmitted\tduplicates_received\tretransmissions\ttime_to_recognize\n"

// Writer appends run-summary lines to a single file, creating it (with a
// header) if it doesn't already exist.
type Writer struct {
	path string
}

// Open prepares a Writer over path, writing a header line if the file is
// being created for the first time.
func Open(path string) (*Writer, error) {
	_, err := os.Stat(path)
	if os.IsNotExist(err) {
		f, createErr := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
		if createErr != nil {
			return nil, errors.Wrap(createErr, "statslog: create log file")
		}
		if _, werr := f.WriteString(header); werr != nil {
			f.Close()
			return nil, errors.Wrap(werr, "statslog: write header")
		}
		f.Close()
	} else if err != nil {
		return nil, errors.Wrap(err, "statslog: stat log file")
	}
	return &Writer{path: path}, nil
}

// Append writes one run-summary line for the given mode/rates/role and
// stats snapshot.
func (w *Writer) Append(mode string, dropRate, corruptRate float64, role string, snap link.StatsSnapshot) error {
	f, err := os.OpenFile(w.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return errors.Wrap(err, "statslog: open log file")
	}
	defer f.Close()

	line := strings.Join([]string{
		mode,
		fmt.Sprintf("%g", dropRate),
		fmt.Sprintf("%g", corruptRate),
		role,
		fmt.Sprint(snap.AcksReceived),
		fmt.Sprint(snap.AcksSent),
		fmt.Sprint(snap.FramesTransmitted),
		fmt.Sprint(snap.DuplicatesReceived),
		fmt.Sprint(snap.Retransmissions),
		fmt.Sprintf("%g", snap.TimeToRecognize.Seconds()),
	}, "\t")

	if _, err := f.WriteString(line + "\n"); err != nil {
		return errors.Wrap(err, "statslog: append line")
	}
	return nil
}
