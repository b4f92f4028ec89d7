package link

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
)

// StatsSnapshot is a read-only copy of an endpoint's counters, suitable for
// logging or for the tab-separated persisted-state line in spec.md §6.
type StatsSnapshot struct {
	EndpointID         uuid.UUID
	FramesTransmitted  uint64
	Retransmissions    uint64
	AcksSent           uint64
	AcksReceived       uint64
	DuplicatesReceived uint64
	TimeToRecognize    time.Duration
}

// Stats holds the monotonic counters from spec.md §4.6. Most of them are
// bumped while the endpoint's mutex is held, but framesTransmitted and
// acksSent are bumped in transmit after that mutex has been released, and
// Prometheus scrapes from its own goroutine, so Stats guards every counter
// with its own lock.
type Stats struct {
	mu sync.Mutex

	framesTransmitted  uint64
	retransmissions    uint64
	acksSent           uint64
	acksReceived       uint64
	duplicatesReceived uint64

	timeToRecognizeSet bool
	timeToRecognize    time.Duration

	windowOccupancy int

	role, mode string
}

// NewStats returns a zeroed Stats. role and mode are carried only for
// Prometheus label values ("client"/"server", "GBN"/"SR").
func NewStats(role, mode string) *Stats {
	return &Stats{role: role, mode: mode}
}

func (s *Stats) incrFramesTransmitted() {
	s.mu.Lock()
	s.framesTransmitted++
	s.mu.Unlock()
}

func (s *Stats) incrRetransmissions(n uint64) {
	s.mu.Lock()
	s.retransmissions += n
	s.mu.Unlock()
}

func (s *Stats) incrAcksSent() {
	s.mu.Lock()
	s.acksSent++
	s.mu.Unlock()
}

func (s *Stats) incrAcksReceived() {
	s.mu.Lock()
	s.acksReceived++
	s.mu.Unlock()
}

func (s *Stats) incrDuplicatesReceived() {
	s.mu.Lock()
	s.duplicatesReceived++
	s.mu.Unlock()
}

// recordTimeToRecognize stores the one-shot recognition latency used by the
// original's benchmarking harness, the first time it's reported.
func (s *Stats) recordTimeToRecognize(d time.Duration) {
	s.mu.Lock()
	if !s.timeToRecognizeSet {
		s.timeToRecognize = d
		s.timeToRecognizeSet = true
	}
	s.mu.Unlock()
}

// setWindowOccupancy records the sender's current in-flight slot count, for
// the window-occupancy gauge.
func (s *Stats) setWindowOccupancy(n int) {
	s.mu.Lock()
	s.windowOccupancy = n
	s.mu.Unlock()
}

// Snapshot returns a consistent, read-only copy of the counters.
func (s *Stats) Snapshot() StatsSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return StatsSnapshot{
		FramesTransmitted:  s.framesTransmitted,
		Retransmissions:    s.retransmissions,
		AcksSent:           s.acksSent,
		AcksReceived:       s.acksReceived,
		DuplicatesReceived: s.duplicatesReceived,
		TimeToRecognize:    s.timeToRecognize,
	}
}

var (
	framesTransmittedDesc = prometheus.NewDesc(
		"linklayer_frames_transmitted_total", "Frames written to the channel, data and ack alike.",
		[]string{"role", "mode"}, nil)
	retransmissionsDesc = prometheus.NewDesc(
		"linklayer_retransmissions_total", "Frames re-sent after a timeout fired.",
		[]string{"role", "mode"}, nil)
	acksSentDesc = prometheus.NewDesc(
		"linklayer_acks_sent_total", "Blank ack frames sent by the receiver side.",
		[]string{"role", "mode"}, nil)
	acksReceivedDesc = prometheus.NewDesc(
		"linklayer_acks_received_total", "Ack-only frames observed by the sender side.",
		[]string{"role", "mode"}, nil)
	duplicatesReceivedDesc = prometheus.NewDesc(
		"linklayer_duplicates_received_total", "Data frames counted as duplicates: repeats of already-delivered data, plus (SR) repeats of buffered frames and frames beyond the receive window.",
		[]string{"role", "mode"}, nil)
	windowOccupancyDesc = prometheus.NewDesc(
		"linklayer_window_occupancy", "Number of in-flight, unacknowledged slots in the send window.",
		[]string{"role", "mode"}, nil)
)

// Describe implements prometheus.Collector.
func (s *Stats) Describe(ch chan<- *prometheus.Desc) {
	ch <- framesTransmittedDesc
	ch <- retransmissionsDesc
	ch <- acksSentDesc
	ch <- acksReceivedDesc
	ch <- duplicatesReceivedDesc
	ch <- windowOccupancyDesc
}

// Collect implements prometheus.Collector.
func (s *Stats) Collect(ch chan<- prometheus.Metric) {
	snap := s.Snapshot()
	s.mu.Lock()
	occupancy := s.windowOccupancy
	s.mu.Unlock()

	ch <- prometheus.MustNewConstMetric(framesTransmittedDesc, prometheus.CounterValue, float64(snap.FramesTransmitted), s.role, s.mode)
	ch <- prometheus.MustNewConstMetric(retransmissionsDesc, prometheus.CounterValue, float64(snap.Retransmissions), s.role, s.mode)
	ch <- prometheus.MustNewConstMetric(acksSentDesc, prometheus.CounterValue, float64(snap.AcksSent), s.role, s.mode)
	ch <- prometheus.MustNewConstMetric(acksReceivedDesc, prometheus.CounterValue, float64(snap.AcksReceived), s.role, s.mode)
	ch <- prometheus.MustNewConstMetric(duplicatesReceivedDesc, prometheus.CounterValue, float64(snap.DuplicatesReceived), s.role, s.mode)
	ch <- prometheus.MustNewConstMetric(windowOccupancyDesc, prometheus.GaugeValue, float64(occupancy), s.role, s.mode)
}
