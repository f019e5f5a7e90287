// Package queue implements the bounded priority buffer shared by the
// downlink and uplink paths: a fixed-capacity priority queue that, on
// overflow, evicts its weakest packet in favor of a stronger arrival rather
// than blocking or silently growing.
package queue

import (
	"container/heap"
	"sync"
	"sync/atomic"

	"satsim/internal/types"
)

// packetHeap orders by strongest-first: higher Priority first, and within a
// priority tier, earlier CreationTime first (FIFO within class).
type packetHeap []types.TelemetryPacket

func (h packetHeap) Len() int { return len(h) }
func (h packetHeap) Less(i, j int) bool { return h[i].Less(h[j]) }
func (h packetHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *packetHeap) Push(x any)        { *h = append(*h, x.(types.TelemetryPacket)) }
func (h *packetHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// Bounded is a fixed-capacity, priority-ordered packet buffer safe for
// concurrent use.
type Bounded struct {
	mu       sync.Mutex
	heap     packetHeap
	capacity int

	lastLatencyMs atomic.Uint32
	jitterMs      atomic.Uint32
}

// NewBounded constructs a buffer that holds at most capacity packets.
func NewBounded(capacity int) *Bounded {
	return &Bounded{heap: make(packetHeap, 0, capacity), capacity: capacity}
}

// Len returns the current number of queued packets.
func (b *Bounded) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.heap)
}

// Capacity returns the fixed maximum size of the buffer.
func (b *Bounded) Capacity() int { return b.capacity }

// Push inserts item, evicting the weakest queued packet if the buffer is at
// capacity and item outranks it. It reports the packet that was dropped (the
// evicted occupant, or item itself if item was weaker than everything
// already queued), or false if item was simply inserted.
func (b *Bounded) Push(item types.TelemetryPacket) (dropped types.TelemetryPacket, didDrop bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.heap) < b.capacity {
		heap.Push(&b.heap, item)
		return types.TelemetryPacket{}, false
	}

	// A Low-priority arrival never displaces a resident packet, regardless
	// of how the creation-time tie-break would otherwise rank it against
	// the weakest occupant.
	if item.Priority == types.PriorityLow {
		return item, true
	}

	weakestIdx := 0
	for i := 1; i < len(b.heap); i++ {
		if weakerThan(b.heap[i], b.heap[weakestIdx]) {
			weakestIdx = i
		}
	}

	if !weakerThan(b.heap[weakestIdx], item) {
		// item is no stronger than the weakest resident; reject it.
		return item, true
	}

	evicted := b.heap[weakestIdx]
	heap.Remove(&b.heap, weakestIdx)
	heap.Push(&b.heap, item)
	return evicted, true
}

// weakerThan reports whether a is the more eviction-worthy of the two: a
// lower Priority is weaker outright, and within the same Priority tier the
// OLDER (smaller CreationTime) packet is weaker. This tie-break is the
// mirror image of TelemetryPacket.Less: popping preserves arrival order so
// the oldest queued packet transmits first, but eviction under pressure
// sheds the stalest same-priority packet first, keeping the freshest
// reading of that class resident.
func weakerThan(a, b types.TelemetryPacket) bool {
	if a.Priority != b.Priority {
		return a.Priority < b.Priority
	}
	return a.CreationTime < b.CreationTime
}

// Pop removes and returns the strongest queued packet, or false if empty.
func (b *Bounded) Pop() (types.TelemetryPacket, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.heap) == 0 {
		return types.TelemetryPacket{}, false
	}
	item := heap.Pop(&b.heap).(types.TelemetryPacket)
	return item, true
}

// RecordTiming updates the latency/jitter metrics maintained alongside the
// buffer. jitter is the absolute difference between consecutive latencies,
// never a signed delta.
func (b *Bounded) RecordTiming(latencyMs uint32) {
	prev := b.lastLatencyMs.Swap(latencyMs)
	var jitter uint32
	if latencyMs > prev {
		jitter = latencyMs - prev
	} else {
		jitter = prev - latencyMs
	}
	b.jitterMs.Store(jitter)
}

// LastLatencyMs returns the most recently recorded latency sample.
func (b *Bounded) LastLatencyMs() uint32 { return b.lastLatencyMs.Load() }

// JitterMs returns the absolute difference between the two most recent
// latency samples.
func (b *Bounded) JitterMs() uint32 { return b.jitterMs.Load() }

// FillRate returns occupancy as a percentage of capacity, rounded down.
func (b *Bounded) FillRate() uint32 {
	b.mu.Lock()
	n := len(b.heap)
	b.mu.Unlock()
	if b.capacity == 0 {
		return 0
	}
	return uint32(n * 100 / b.capacity)
}

// LogSink accepts a Log record without blocking; a full sink drops the
// record. Implemented by internal/logrecord.Channel.
type LogSink interface {
	TrySend(types.Log) bool
}

// PushAndLog implements the loss-feedback contract: if Push evicts or drops
// a packet, it emits a best-effort Log for the lost payload's originating
// task plus a synthetic EventDataLoss event, then re-enqueues a Critical
// DataLoss telemetry packet on downlink so ground operators observe the
// loss. The re-enqueue calls the raw Push (never PushAndLog) and can
// itself only ever displace at most one further packet, so the recursion
// implied by "pushing into a buffer that logs its own pushes" is bounded to
// a single extra level.
func (b *Bounded) PushAndLog(source types.LogSource, item types.TelemetryPacket, uptimeMs, syncedTimestampMs uint64, log LogSink, downlink *Bounded) {
	dropped, didDrop := b.Push(item)
	if !didDrop {
		return
	}

	taskID := types.TaskNetworkService
	if dropped.Payload.Kind == types.MessageTelemetry {
		ev := dropped.Payload.Event
		log.TrySend(types.Log{Source: source, Event: ev})
		taskID = ev.TaskID
	}

	log.TrySend(types.Log{
		Source: source,
		Event: types.Event{
			TaskID:    taskID,
			EventID:   types.EventDataLoss,
			Data:      types.EventData{Kind: types.EventDataNone},
			Timestamp: uptimeMs,
		},
	})

	lossPacket := types.TelemetryPacket{
		Priority:     types.PriorityCritical,
		CreationTime: uptimeMs,
		Payload: types.SatelliteMessage{
			Kind: types.MessageTelemetry,
			Event: types.Event{
				TaskID:    taskID,
				EventID:   types.EventDataLoss,
				Data:      types.EventData{Kind: types.EventDataNone},
				Timestamp: syncedTimestampMs,
			},
		},
		SequenceNo: 0,
	}
	downlink.Push(lossPacket)
}
