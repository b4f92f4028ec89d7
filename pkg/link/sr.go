package link

import "context"

// srVariant implements Selective-Repeat: per-seq acks, one timer per
// in-flight frame, and a receiver that buffers out-of-order frames until the
// window's contiguous prefix can be handed to the application (spec.md §4.5).
type srVariant struct{}

// data frames carry ack 0; only blank acks carry a meaningful ack value.
func (srVariant) dataAck(_ *Endpoint) uint32 {
	return 0
}

// SR data frames carry ack 0 as a don't-care value; only blank ack frames
// carry a seq the sender side should act on.
func (srVariant) ackIsMeaningful(f Frame) bool {
	return f.IsAckOnly()
}

// onSlotAppended always arms a fresh timer for the new slot: unlike GBN, SR
// has no single window-wide timer to reuse.
func (srVariant) onSlotAppended(_ context.Context, e *Endpoint, slot *sendSlot) {
	e.armSRTimerLocked(slot)
}

// onAck marks the named slot acked. If it's the window's current base, the
// base and any already-acked slots immediately following it are trimmed;
// acks below the base are stale and ignored.
func (srVariant) onAck(_ context.Context, e *Endpoint, ack uint32) {
	if len(e.window) == 0 || ack < e.windowBase {
		return
	}
	if ack == e.windowBase {
		stopSendSlotTimer(e.window[0])
		e.window = e.window[1:]
		e.windowBase++
		for len(e.window) > 0 && e.window[0].acked {
			stopSendSlotTimer(e.window[0])
			e.window = e.window[1:]
			e.windowBase++
		}
		e.stats.setWindowOccupancy(len(e.window))
		return
	}
	if slot := e.findSendSlot(ack); slot != nil {
		slot.acked = true
	}
}

// stopSendSlotTimer cancels a trimmed slot's per-frame retransmit timer so
// it doesn't sit pending until its original deadline for no reason.
func stopSendSlotTimer(slot *sendSlot) {
	if slot.timer != nil {
		slot.timer.Stop()
	}
}

func (e *Endpoint) findRecvSlot(seq uint32) *recvSlot {
	for _, s := range e.recvWindow {
		if s.seq == seq {
			return s
		}
	}
	return nil
}

// onDataFrame buffers f if it falls inside the receive window and hasn't
// already been seen, then drains any contiguous run starting at the window
// base into the application byte buffer. Every frame, new or duplicate, is
// individually acked so the sender can retire it from its own window.
func (srVariant) onDataFrame(_ context.Context, e *Endpoint, f Frame) []outFrame {
	inWindow := f.Seq >= e.recvWindowBase && f.Seq < e.recvWindowBase+uint32(e.cfg.WindowLen)
	if !inWindow {
		e.stats.incrDuplicatesReceived()
	} else if e.findRecvSlot(f.Seq) != nil {
		e.stats.incrDuplicatesReceived()
	} else {
		e.recvWindow = append(e.recvWindow, &recvSlot{seq: f.Seq, payload: f.Payload})
	}

	for {
		slot := e.findRecvSlot(e.recvWindowBase)
		if slot == nil {
			break
		}
		e.byteBuffer = append(e.byteBuffer, slot.payload...)
		e.removeRecvSlot(slot.seq)
		e.recvWindowBase++
	}

	return []outFrame{{ack: f.Seq, isAck: true}}
}

func (e *Endpoint) removeRecvSlot(seq uint32) {
	for i, s := range e.recvWindow {
		if s.seq == seq {
			e.recvWindow = append(e.recvWindow[:i], e.recvWindow[i+1:]...)
			return
		}
	}
}
