// Package link implements the reliable sliding-window data-link layer:
// frame codec, Go-Back-N and Selective-Repeat sender/receiver state, timer
// discipline and statistics, running over any lossy io.ReadWriteCloser.
package link

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/datawire/dlib/derror"
	"github.com/datawire/dlib/dlog"
	"github.com/google/uuid"
	perrors "github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
)

// sendSlot is one outstanding, unacknowledged outbound chunk.
type sendSlot struct {
	seq      uint32
	payload  []byte
	acked    bool // SR only: true once an individual ack names this seq
	timer    *time.Timer
	timerGen uint64
}

// recvSlot is one out-of-order inbound data frame buffered by the SR receiver.
type recvSlot struct {
	seq     uint32
	payload []byte
}

// outFrame is a frame queued for transmission, built while Endpoint.mu is
// held and written to the channel after it's released.
type outFrame struct {
	seq, ack uint32
	payload  []byte
	isAck    bool
}

// variant is the small per-mode seam (spec.md Design Notes §9): GBN and SR
// share everything except window bookkeeping, ack semantics and what goes
// into the ack field of a data frame. Dispatch is a field, never a type
// switch or subclassing.
type variant interface {
	dataAck(e *Endpoint) uint32
	ackIsMeaningful(f Frame) bool
	onSlotAppended(ctx context.Context, e *Endpoint, slot *sendSlot)
	onAck(ctx context.Context, e *Endpoint, ack uint32)
	onDataFrame(ctx context.Context, e *Endpoint, f Frame) []outFrame
}

// Endpoint is one side of a reliable link: a single owned, mutex-guarded
// state record combining sender window, receiver window and statistics, with
// sender/receiver behavior attached as methods rather than split into
// separate objects that would need to reference each other back and forth.
type Endpoint struct {
	id   uuid.UUID
	role string
	cfg  Config
	v    variant

	channel  io.ReadWriteCloser
	writeMu  sync.Mutex

	mu      sync.Mutex
	changed chan struct{} // closed and replaced whenever waiters should recheck

	// sender state, shared shape for both modes.
	window     []*sendSlot
	windowBase uint32
	nextSeq    uint32

	// GBN-only sender timer: one logical timer for the whole window.
	timer    *time.Timer
	timerGen uint64

	// GBN-only receiver state.
	expectedSeq uint32

	// SR-only receiver state.
	recvWindow     []*recvSlot
	recvWindowBase uint32

	byteBuffer []byte
	stats      *Stats
	created    time.Time

	closed   bool
	closeErr error
	cancel   context.CancelFunc
	done     chan struct{}
}

// NewEndpoint constructs an Endpoint over channel, already connected, and
// starts its receive loop. role is a free-form label ("client"/"server")
// used only for logs and Prometheus labels.
func NewEndpoint(ctx context.Context, channel io.ReadWriteCloser, cfg Config, role string) *Endpoint {
	cfg = cfg.normalize()
	rctx, cancel := context.WithCancel(ctx)

	e := &Endpoint{
		id:      uuid.New(),
		role:    role,
		cfg:     cfg,
		channel: channel,
		changed: make(chan struct{}),
		stats:   NewStats(role, cfg.Mode.String()),
		created: time.Now(),
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	switch cfg.Mode {
	case SR:
		e.v = srVariant{}
	default:
		e.v = gbnVariant{}
	}

	dlog.Debugf(rctx, "LNK %s (%s/%s) started", e.id, role, cfg.Mode)
	go e.recvLoop(rctx)
	return e
}

// ID returns the endpoint's correlation id, used in logs and metrics.
func (e *Endpoint) ID() uuid.UUID { return e.id }

// Stats returns a live snapshot of the endpoint's counters.
func (e *Endpoint) Stats() StatsSnapshot {
	snap := e.stats.Snapshot()
	snap.EndpointID = e.id
	return snap
}

// Collector exposes the endpoint's counters as a prometheus.Collector.
func (e *Endpoint) Collector() prometheus.Collector { return e.stats }

// RecordTimeToRecognize stores the one-shot benchmark latency described in
// spec.md §6: how long this endpoint took to recognize its peer, measured
// from construction to the first valid frame decoded off the channel. The
// receive loop calls this itself. Only the first call is recorded, so a call
// made after the receive loop has decoded its first frame has no effect.
func (e *Endpoint) RecordTimeToRecognize(d time.Duration) { e.stats.recordTimeToRecognize(d) }

// broadcastLocked wakes every goroutine blocked in waitLocked. Must be
// called with e.mu held.
func (e *Endpoint) broadcastLocked() {
	close(e.changed)
	e.changed = make(chan struct{})
}

// waitLocked blocks until either the endpoint's state changes or ctx is
// done, releasing e.mu while waiting and reacquiring it before returning.
// Callers must re-check their condition in a loop.
func (e *Endpoint) waitLocked(ctx context.Context) error {
	ch := e.changed
	e.mu.Unlock()
	defer e.mu.Lock()
	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Send blocks until chunk can be admitted into the send window, then
// transmits it. It returns ErrChunkTooLarge immediately for an oversized
// chunk, ErrShutdown once the endpoint has been closed, or ctx.Err() if ctx
// is done first.
func (e *Endpoint) Send(ctx context.Context, chunk []byte) error {
	if len(chunk) > e.cfg.MaxChunk {
		return ErrChunkTooLarge
	}

	e.mu.Lock()
	for !e.closed && len(e.window) >= e.cfg.WindowLen {
		if err := e.waitLocked(ctx); err != nil {
			e.mu.Unlock()
			return err
		}
	}
	if e.closed {
		e.mu.Unlock()
		return ErrShutdown
	}

	seq := e.nextSeq
	e.nextSeq++
	slot := &sendSlot{seq: seq, payload: append([]byte(nil), chunk...)}
	e.window = append(e.window, slot)
	e.stats.setWindowOccupancy(len(e.window))
	ack := e.v.dataAck(e)
	e.v.onSlotAppended(ctx, e, slot)
	e.mu.Unlock()

	e.transmit(ctx, outFrame{seq: seq, ack: ack, payload: slot.payload})
	return nil
}

// Deliver blocks until at least n bytes of in-order application data are
// available and returns exactly n of them, or ErrShutdown/ctx.Err().
func (e *Endpoint) Deliver(ctx context.Context, n int) ([]byte, error) {
	e.mu.Lock()
	for !e.closed && len(e.byteBuffer) < n {
		if err := e.waitLocked(ctx); err != nil {
			e.mu.Unlock()
			return nil, err
		}
	}
	if len(e.byteBuffer) < n {
		e.mu.Unlock()
		return nil, ErrShutdown
	}
	out := append([]byte(nil), e.byteBuffer[:n]...)
	e.byteBuffer = e.byteBuffer[n:]
	e.mu.Unlock()
	return out, nil
}

// DeliverUpTo blocks until at least one in-order byte is available, then
// returns as many as are already buffered, capped at max. It's the chunked
// counterpart to Deliver for a consumer that just wants whatever's ready in
// up-to-max pieces instead of an exact byte count.
func (e *Endpoint) DeliverUpTo(ctx context.Context, max int) ([]byte, error) {
	e.mu.Lock()
	for !e.closed && len(e.byteBuffer) == 0 {
		if err := e.waitLocked(ctx); err != nil {
			e.mu.Unlock()
			return nil, err
		}
	}
	if len(e.byteBuffer) == 0 {
		e.mu.Unlock()
		return nil, ErrShutdown
	}
	n := len(e.byteBuffer)
	if n > max {
		n = max
	}
	out := append([]byte(nil), e.byteBuffer[:n]...)
	e.byteBuffer = e.byteBuffer[n:]
	e.mu.Unlock()
	return out, nil
}

// Close shuts the endpoint down: it wakes every blocked Send/Deliver with
// ErrShutdown, stops outstanding timers, cancels the receive loop's context
// and closes the underlying channel.
func (e *Endpoint) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		<-e.done
		return e.closeErr
	}
	e.closed = true
	if e.timer != nil {
		e.timer.Stop()
	}
	for _, slot := range e.window {
		if slot.timer != nil {
			slot.timer.Stop()
		}
	}
	e.broadcastLocked()
	e.mu.Unlock()

	e.cancel()
	closeErr := e.channel.Close()
	<-e.done

	e.mu.Lock()
	if e.closeErr == nil {
		e.closeErr = closeErr
	}
	err := e.closeErr
	e.mu.Unlock()
	return err
}

// terminate marks the endpoint closed because of a fatal transport error
// (spec.md §4.1: any I/O error on the channel ends the endpoint).
func (e *Endpoint) terminate(ctx context.Context, err error) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	e.closeErr = err
	if e.timer != nil {
		e.timer.Stop()
	}
	for _, slot := range e.window {
		if slot.timer != nil {
			slot.timer.Stop()
		}
	}
	e.broadcastLocked()
	e.mu.Unlock()
	dlog.Errorf(ctx, "link: endpoint terminating: %v", err)
	e.cancel()
	// Close the channel so a concurrent Decode blocked reading it (if this
	// termination came from a failed write rather than the receive loop
	// itself) unblocks instead of leaving recvLoop parked forever, which
	// would in turn leave e.done unclosed and any later Close() hung.
	_ = e.channel.Close()
}

// transmit encodes and writes a frame. Channel I/O is performed outside
// e.mu so a slow or blocking write never stalls Send/Deliver/ack processing
// on other goroutines; writeMu alone serializes the bytes on the wire.
func (e *Endpoint) transmit(ctx context.Context, f outFrame) {
	wire := Encode(f.seq, f.ack, f.payload)

	e.writeMu.Lock()
	_, err := e.channel.Write(wire)
	e.writeMu.Unlock()

	e.stats.incrFramesTransmitted()
	if f.isAck {
		e.stats.incrAcksSent()
	}
	if err != nil {
		e.terminate(ctx, perrors.Wrap(err, "link: write frame"))
	}
}

// recvLoop decodes frames off the channel until a non-checksum error ends
// the endpoint. Checksum errors are silently discarded, per spec.md §4.1:
// a corrupted frame is indistinguishable from one dropped in flight.
func (e *Endpoint) recvLoop(ctx context.Context) {
	defer close(e.done)
	defer func() {
		if err := derror.PanicToError(recover()); err != nil {
			e.terminate(ctx, err)
		}
	}()

	for {
		f, err := Decode(e.channel)
		if err != nil {
			var ce *ChecksumError
			if errors.As(err, &ce) {
				dlog.Debugf(ctx, "link: discarding corrupt frame: %v", ce)
				continue
			}
			e.terminate(ctx, err)
			return
		}
		e.RecordTimeToRecognize(time.Since(e.created))

		e.mu.Lock()
		if e.closed {
			e.mu.Unlock()
			return
		}
		if e.v.ackIsMeaningful(f) {
			e.v.onAck(ctx, e, f.Ack)
		}

		var out []outFrame
		if f.IsAckOnly() {
			e.stats.incrAcksReceived()
		} else {
			out = e.v.onDataFrame(ctx, e, f)
		}
		e.broadcastLocked()
		e.mu.Unlock()

		for _, of := range out {
			e.transmit(ctx, of)
		}
	}
}

// armGBNTimerLocked (re)arms the single GBN sender timer for the window
// head seq, replacing any timer already running. Must be called with e.mu
// held.
func (e *Endpoint) armGBNTimerLocked(seq uint32) {
	if e.timer != nil {
		e.timer.Stop()
	}
	e.timerGen++
	gen := e.timerGen
	e.timer = time.AfterFunc(e.cfg.timerDuration(), func() { e.onGBNTimerFire(gen) })
}

// disarmGBNTimerLocked stops the GBN sender timer and invalidates any
// in-flight firing. Must be called with e.mu held.
func (e *Endpoint) disarmGBNTimerLocked() {
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
	e.timerGen++
}

// onGBNTimerFire runs the GBN timeout rule from spec.md §4.4: a fire whose
// generation still matches means nothing has acked since this timer was
// armed, so the whole window is retransmitted and the timer restarted for
// the (unchanged) head.
func (e *Endpoint) onGBNTimerFire(gen uint64) {
	e.mu.Lock()
	if e.closed || gen != e.timerGen || len(e.window) == 0 {
		e.mu.Unlock()
		return
	}

	// gen matching e.timerGen already proves nothing has acked since this
	// timer was armed (every ack that trims the window bumps timerGen via
	// armGBNTimerLocked/disarmGBNTimerLocked), so the whole window is still
	// exactly what was outstanding when the timeout was set: resend it.
	frames := make([]outFrame, 0, len(e.window))
	for _, slot := range e.window {
		frames = append(frames, outFrame{seq: slot.seq, ack: e.expectedSeq, payload: slot.payload})
	}
	e.stats.incrRetransmissions(uint64(len(e.window)))
	e.armGBNTimerLocked(e.window[0].seq)
	e.mu.Unlock()

	ctx := context.Background()
	for _, f := range frames {
		e.transmit(ctx, f)
	}
}

// findSendSlot returns the slot with the given seq, or nil if it has already
// been trimmed out of the window.
func (e *Endpoint) findSendSlot(seq uint32) *sendSlot {
	for _, slot := range e.window {
		if slot.seq == seq {
			return slot
		}
	}
	return nil
}

// armSRTimerLocked arms a fresh per-slot timer for slot, replacing any timer
// it already had. Must be called with e.mu held.
func (e *Endpoint) armSRTimerLocked(slot *sendSlot) {
	if slot.timer != nil {
		slot.timer.Stop()
	}
	slot.timerGen++
	gen := slot.timerGen
	seq := slot.seq
	slot.timer = time.AfterFunc(e.cfg.timerDuration(), func() { e.onSRTimerFire(seq, gen) })
}

// onSRTimerFire runs the SR timeout rule from spec.md §4.5: if the slot is
// still in the window and still unacked, resend just that one frame.
func (e *Endpoint) onSRTimerFire(seq uint32, gen uint64) {
	e.mu.Lock()
	var frame *outFrame
	if !e.closed && seq >= e.windowBase {
		if slot := e.findSendSlot(seq); slot != nil && !slot.acked && slot.timerGen == gen {
			frame = &outFrame{seq: slot.seq, ack: 0, payload: slot.payload}
			e.stats.incrRetransmissions(1)
			e.armSRTimerLocked(slot)
		}
	}
	e.mu.Unlock()

	if frame != nil {
		e.transmit(context.Background(), *frame)
	}
}
