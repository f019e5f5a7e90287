// Package logrecord implements the external log collaborator: a bounded,
// try-send channel of Log records drained by a single consumer goroutine
// that renders each record through the correlated slog wrapper and appends
// it to a truncating plain-text file.
package logrecord

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"satsim/internal/telemetry/logging"
	"satsim/internal/types"
)

// Channel is a bounded, drop-tolerant sink of Log records. Producers call
// TrySend and must accept that a full channel silently drops the record,
// matching the original try_send discipline.
type Channel struct {
	ch chan types.Log
}

// NewChannel constructs a Channel with the given capacity.
func NewChannel(capacity int) *Channel {
	return &Channel{ch: make(chan types.Log, capacity)}
}

// TrySend attempts a non-blocking send, reporting whether it was queued.
func (c *Channel) TrySend(l types.Log) bool {
	select {
	case c.ch <- l:
		return true
	default:
		return false
	}
}

// Send blocks until the record is queued; calling it after Close panics.
// cmd/satsim uses it for the Startup and Shutdown records.
func (c *Channel) Send(l types.Log) {
	c.ch <- l
}

// Close signals no further records will be sent; the consumer drains
// remaining buffered records and then returns.
func (c *Channel) Close() { close(c.ch) }

// Consumer drains a Channel, formatting each Log through the correlated
// logger and appending a plain-text line to a truncated log file.
type Consumer struct {
	logger logging.Logger
	file   *os.File
	mu     sync.Mutex
}

// NewConsumer opens path for truncating writes and wraps base (or the
// default slog logger if nil) in the trace/span-correlated logging.Logger
// for structured output.
func NewConsumer(path string, base *slog.Logger) (*Consumer, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file %s: %w", path, err)
	}
	return &Consumer{logger: logging.New(base), file: f}, nil
}

// Run drains ch until it is closed, then closes the underlying file. ctx
// supplies the trace/span correlation attached to each rendered line.
func (c *Consumer) Run(ctx context.Context, ch *Channel) {
	for rec := range ch.ch {
		c.write(ctx, rec)
	}
	c.mu.Lock()
	_ = c.file.Close()
	c.mu.Unlock()
}

func (c *Consumer) write(ctx context.Context, rec types.Log) {
	line := formatLine(rec)
	c.logger.InfoCtx(ctx, "satellite event",
		slog.String("source", sourceName(rec.Source)),
		slog.Uint64("task_id", uint64(rec.Event.TaskID)),
		slog.Uint64("event_id", uint64(rec.Event.EventID)),
		slog.Uint64("timestamp_ms", rec.Event.Timestamp),
	)
	c.mu.Lock()
	_, _ = fmt.Fprintln(c.file, line)
	c.mu.Unlock()
}

// formatLine renders a record the way the original logger did: sensor
// values are fixed-point integers scaled by 100, so they are divided back
// down for display.
func formatLine(rec types.Log) string {
	ev := rec.Event
	base := fmt.Sprintf("[%d] %s task=%d event=%d", ev.Timestamp, sourceName(rec.Source), ev.TaskID, ev.EventID)
	switch ev.Data.Kind {
	case types.EventDataHardware:
		return base + fmt.Sprintf(" VALUE: [%.2f]", float64(ev.Data.Value)/100.0)
	case types.EventDataQueuePerformance:
		return base + fmt.Sprintf(" latency_ms=%d jitter_ms=%d fill=%d%%", ev.Data.LatencyMs, ev.Data.JitterMs, ev.Data.BufferFillRate)
	case types.EventDataSchedulingDrift:
		return base + fmt.Sprintf(" drift_ms=%d", ev.Data.DriftMs)
	case types.EventDataSubsystemFault:
		return base + fmt.Sprintf(" subsystem=%s", ev.Data.SubsystemID)
	case types.EventDataSystemStats:
		return base + fmt.Sprintf(" active_ms=%d inactive_ms=%d", ev.Data.ActiveMs, ev.Data.InactiveMs)
	case types.EventDataFaultRecovery:
		return base + fmt.Sprintf(" recovery_ms=%d", ev.Data.RecoveryTimeMs)
	case types.EventDataTimeSync:
		return base + fmt.Sprintf(" offset_ms=%d", ev.Data.OffsetMs)
	default:
		return base
	}
}

func sourceName(s types.LogSource) string {
	switch s {
	case types.LogSourceHealthMonitor:
		return "health_monitor"
	case types.LogSourceNetwork:
		return "network"
	case types.LogSourceSensor:
		return "sensor"
	case types.LogSourceCommandExecutor:
		return "command_executor"
	case types.LogSourceMain:
		return "main"
	default:
		return "unknown"
	}
}
