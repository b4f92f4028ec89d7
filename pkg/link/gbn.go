package link

import "context"

// gbnVariant implements Go-Back-N: cumulative acks, one timer for the whole
// window, and an in-order-only receiver that rejects anything but the next
// expected seq (spec.md §4.4).
type gbnVariant struct{}

func (gbnVariant) dataAck(e *Endpoint) uint32 {
	return e.expectedSeq
}

// GBN piggybacks a meaningful cumulative ack on every frame, data or blank.
func (gbnVariant) ackIsMeaningful(Frame) bool {
	return true
}

// onSlotAppended arms the window timer only when this slot is the sole
// occupant of the window: a non-empty window already has a timer running.
func (gbnVariant) onSlotAppended(_ context.Context, e *Endpoint, slot *sendSlot) {
	if len(e.window) == 1 {
		e.armGBNTimerLocked(slot.seq)
	}
}

// onAck trims every slot with seq < ack (cumulative ack) and re-arms the
// timer for the new head only if trimming actually advanced the base; a
// non-advancing ack (a duplicate piggybacked on a stale retransmit, or a
// blank ack repeating the same cumulative value) leaves the existing
// countdown alone instead of restarting it.
func (gbnVariant) onAck(_ context.Context, e *Endpoint, ack uint32) {
	if len(e.window) == 0 {
		return
	}
	before := len(e.window)
	for len(e.window) > 0 && e.window[0].seq < ack {
		e.window = e.window[1:]
	}
	if len(e.window) == before {
		return
	}
	e.stats.setWindowOccupancy(len(e.window))
	if len(e.window) > 0 {
		e.armGBNTimerLocked(e.window[0].seq)
	} else {
		e.disarmGBNTimerLocked()
	}
}

// onDataFrame accepts f only if it carries exactly the expected seq,
// appending its payload and advancing expectedSeq; anything already seen
// (f.Seq < expectedSeq) is a true duplicate and counted as one, while a
// future, out-of-order frame (f.Seq > expectedSeq) is just re-acked without
// inflating duplicates_received, per spec.md §4.4.
func (gbnVariant) onDataFrame(_ context.Context, e *Endpoint, f Frame) []outFrame {
	switch {
	case f.Seq == e.expectedSeq:
		e.byteBuffer = append(e.byteBuffer, f.Payload...)
		e.expectedSeq++
	case f.Seq < e.expectedSeq:
		e.stats.incrDuplicatesReceived()
	}
	return []outFrame{{ack: e.expectedSeq, isAck: true}}
}
