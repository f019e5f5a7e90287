package netlink

import "satsim/internal/types"

// history is a fixed-capacity ring of recently transmitted packets keyed by
// sequence number modulo capacity, servicing ground-requested retransmits
// per spec section 4.5.
type history struct {
	capacity uint32
	slots    []historySlot
}

type historySlot struct {
	occupied bool
	seq      uint32
	packet   types.TelemetryPacket
}

func newHistory(capacity int) *history {
	return &history{capacity: uint32(capacity), slots: make([]historySlot, capacity)}
}

func (h *history) store(seq uint32, pkt types.TelemetryPacket) {
	h.slots[seq%h.capacity] = historySlot{occupied: true, seq: seq, packet: pkt}
}

// lookup returns the packet stored for seq, or false if that slot was never
// written or has since been overwritten by a newer sequence number.
func (h *history) lookup(seq uint32) (types.TelemetryPacket, bool) {
	slot := h.slots[seq%h.capacity]
	if !slot.occupied || slot.seq != seq {
		return types.TelemetryPacket{}, false
	}
	return slot.packet, true
}
