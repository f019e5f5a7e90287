// Package netlink implements the Network Task of spec section 4.5: a
// visibility-windowed TCP session with the ground station that frames and
// transmits downlink telemetry, answers clock-sync exchanges, and services
// retransmit requests from a fixed history ring.
package netlink

import (
	"context"
	"encoding/binary"
	"errors"
	"io"
	"net"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"satsim/internal/clock"
	"satsim/internal/config"
	"satsim/internal/queue"
	"satsim/internal/satstate"
	"satsim/internal/telemetry/metrics"
	"satsim/internal/telemetry/tracing"
	"satsim/internal/types"
)

// ErrSessionClosed is returned internally by writeFrame when a write
// failure terminates a visibility session; the session loop ends on it and
// it is neither logged nor returned to any caller. Follows
// engine/models.go's sentinel-error convention.
var ErrSessionClosed = errors.New("netlink: session closed by write error")

const (
	writeTimeout = 10 * time.Millisecond
	readTimeout  = 1 * time.Millisecond
)

// Dialer opens a connection to the ground station within timeout. Tests
// substitute an in-process listener; production uses net.DialTimeout.
type Dialer func(network, address string, timeout time.Duration) (net.Conn, error)

// Task runs the network state machine described in spec section 4.5.
type Task struct {
	state    *satstate.State
	cfg      config.Config
	clk      clock.Clock
	downlink *queue.Bounded
	uplink   *queue.Bounded
	log      queue.LogSink
	hist     *history
	metrics  *Metrics
	dial     Dialer
}

// New constructs a Task. metrics may be nil, in which case a Noop metrics
// provider's instruments are used.
func New(state *satstate.State, cfg config.Config, clk clock.Clock, downlink, uplink *queue.Bounded, log queue.LogSink, m *Metrics) *Task {
	if m == nil {
		m = NewMetrics(metrics.NewNoopProvider())
	}
	return &Task{
		state:    state,
		cfg:      cfg,
		clk:      clk,
		downlink: downlink,
		uplink:   uplink,
		log:      log,
		hist:     newHistory(cfg.PacketHistoryBufferCapacity),
		metrics:  m,
		dial:     net.DialTimeout,
	}
}

// WithDialer overrides the dial function, letting tests point the task at
// an in-process listener instead of a real TCP connect.
func (t *Task) WithDialer(d Dialer) *Task {
	t.dial = d
	return t
}

// Run polls is_visible at NETWORK_MS until ctx is cancelled or is_running
// clears, opening one session per rising edge.
func (t *Task) Run(ctx context.Context) {
	wasVisible := false
	for {
		if ctx.Err() != nil || !t.state.IsRunning.Load() {
			return
		}

		isVisible := t.state.IsVisible.Load()
		if isVisible && !wasVisible {
			t.runPass(ctx)
		}
		wasVisible = isVisible

		select {
		case <-ctx.Done():
			return
		default:
			t.clk.Sleep(time.Duration(t.cfg.NetworkMs) * time.Millisecond)
		}
	}
}

// runPass attempts the handshake and, on success, drives the session loop
// for one visibility window.
func (t *Task) runPass(ctx context.Context) {
	passStart := t.state.UptimeMs()
	sessionID := uuid.New()

	ctx, span := tracing.StartSpan(ctx, "network.session")
	span.SetAttributes(attribute.String("session_id", sessionID.String()))
	defer span.End()

	conn, err := t.dial("tcp", t.cfg.NetworkPort, time.Duration(t.cfg.InitHandshakeLimitMs)*time.Millisecond)
	if err != nil {
		t.metrics.HandshakeFailures.Inc()
		t.emitMissedCommunication()
		t.state.CPUActiveMs.Add(t.state.UptimeMs() - passStart)
		return
	}
	defer conn.Close()
	t.metrics.SessionsOpened.Inc()

	t.sessionLoop(ctx, conn, passStart)

	t.state.CPUActiveMs.Add(t.state.UptimeMs() - passStart)
}

// sessionLoop runs until the visibility window elapses or a write error
// closes the connection.
func (t *Task) sessionLoop(ctx context.Context, conn net.Conn, passStart uint64) {
	for t.state.UptimeMs()-passStart < t.cfg.VisibilityWindowLimitMs {
		if ctx.Err() != nil || !t.state.IsRunning.Load() {
			return
		}

		if t.drainOneDownlinkPacket(conn) {
			return // write error: session terminates
		}

		packet, arrivalMs, ok := t.readOneFrame(conn)
		if !ok {
			continue
		}
		t.route(packet, arrivalMs)
	}
}

// drainOneDownlinkPacket pops at most one downlink packet, frames it and
// writes it to conn. It returns true if a write error means the caller
// must terminate the session.
func (t *Task) drainOneDownlinkPacket(conn net.Conn) bool {
	packet, ok := t.downlink.Pop()
	if !ok {
		return false
	}

	uptime := t.state.UptimeMs()
	latencyMs := uint32(uptime - packet.CreationTime)
	oldLatency := t.downlink.LastLatencyMs()
	jitterMs := absDiffU32(oldLatency, latencyMs)
	t.downlink.RecordTiming(latencyMs)
	t.state.BufferFillRate.Store(t.downlink.FillRate())

	seq := t.state.PacketSequenceNo.Load()

	qp := types.TelemetryPacket{
		Priority:     packet.Priority,
		CreationTime: t.state.SynchronizedTimestampMs(),
		Payload: types.SatelliteMessage{
			Kind: types.MessageTelemetry,
			Event: types.Event{
				TaskID:  types.TaskNetworkService,
				EventID: types.EventQueuePerformance,
				Data: types.EventData{
					Kind:      types.EventDataQueuePerformance,
					LatencyMs: latencyMs,
					JitterMs:  jitterMs,
				},
				Timestamp: uptime,
			},
		},
		SequenceNo: seq,
	}
	t.downlink.PushAndLog(types.LogSourceNetwork, qp, uptime, t.state.SynchronizedTimestampMs(), t.log, t.downlink)

	outgoing := types.TelemetryPacket{
		Priority:     packet.Priority,
		CreationTime: uptime,
		Payload:      packet.Payload,
		SequenceNo:   seq,
	}
	t.state.PacketSequenceNo.Add(1)
	t.hist.store(seq, outgoing)

	frame, err := types.Encode(outgoing)
	if err != nil {
		return false // malformed outgoing packet: drop it, session continues
	}
	if err := t.writeFrame(conn, frame); err != nil {
		return true
	}
	t.metrics.FramesSent.Inc()
	return false
}

// readOneFrame reads one [u16 length][payload] frame within the read
// timeout. A timeout or any read error is non-fatal: the session simply
// continues to the next iteration, matching the original implementation's
// read_exact-then-continue discipline (only write errors end a session).
// The returned packet's CreationTime is the ground's original send
// timestamp as encoded by the sender; arrivalMs is this satellite's own
// uptime at the moment the frame finished decoding (network_arrival_time
// in the original), used for SyncResponse.satellite_receive and as the
// CreationTime of anything forwarded onward.
func (t *Task) readOneFrame(conn net.Conn) (types.TelemetryPacket, uint64, bool) {
	_ = conn.SetReadDeadline(time.Now().Add(readTimeout))

	var lenBuf [2]byte
	if _, err := io.ReadFull(conn, lenBuf[:]); err != nil {
		return types.TelemetryPacket{}, 0, false
	}
	length := binary.BigEndian.Uint16(lenBuf[:])

	payloadBuf := make([]byte, length)
	if _, err := io.ReadFull(conn, payloadBuf); err != nil {
		return types.TelemetryPacket{}, 0, false
	}

	t.metrics.FramesReceived.Inc()

	packet, err := types.Decode(payloadBuf)
	if err != nil {
		return types.TelemetryPacket{}, 0, false
	}
	return packet, t.state.UptimeMs(), true
}

func (t *Task) writeFrame(conn net.Conn, frame []byte) error {
	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))

	var lenBuf [2]byte
	binary.BigEndian.PutUint16(lenBuf[:], uint16(len(frame)))
	if _, err := conn.Write(lenBuf[:]); err != nil {
		return ErrSessionClosed
	}
	if _, err := conn.Write(frame); err != nil {
		return ErrSessionClosed
	}
	return nil
}

// route dispatches one decoded inbound message per spec section 4.5 bullet
// 3: SyncRequest/SyncResult are absorbed locally, RequestRetransmit is
// serviced from history, any other Command is forwarded to the uplink
// queue for the Command Executor, and any other payload kind defaults to
// the same uplink path.
func (t *Task) route(packet types.TelemetryPacket, arrivalMs uint64) {
	payload := packet.Payload
	switch payload.Kind {
	case types.MessageSyncRequest:
		t.handleSyncRequest(packet.CreationTime, arrivalMs)
	case types.MessageSyncResult:
		t.handleSyncResult(payload.OffsetMs)
	case types.MessageCommand:
		if payload.Command.Kind == types.CommandRequestRetransmit {
			t.handleRetransmitRequest(payload.Command.SequenceNo, arrivalMs)
			return
		}
		t.routeToUplink(payload, arrivalMs)
	default:
		t.routeToUplink(payload, arrivalMs)
	}
}

// handleSyncRequest replies with the ground's original send timestamp
// (groundSentMs, carried in the incoming packet's CreationTime) paired
// with this satellite's arrival time, matching original_source's
// SyncResponse{ground_sent: packet.creation_time, satellite_receive:
// network_arrival_time}.
func (t *Task) handleSyncRequest(groundSentMs, arrivalMs uint64) {
	seq := t.state.PacketSequenceNo.Load()

	resp := types.TelemetryPacket{
		Priority:     types.PriorityCritical,
		CreationTime: t.state.SynchronizedTimestampMs(),
		Payload: types.SatelliteMessage{
			Kind:               types.MessageSyncResponse,
			GroundSentMs:       groundSentMs,
			SatelliteReceiveMs: arrivalMs,
		},
		SequenceNo: seq,
	}
	t.downlink.PushAndLog(types.LogSourceNetwork, resp, arrivalMs, t.state.SynchronizedTimestampMs(), t.log, t.downlink)
	t.state.PacketSequenceNo.Add(1)

	if t.state.ClockSync.IsCalibrated.Load() {
		t.log.TrySend(types.Log{
			Source: types.LogSourceNetwork,
			Event: types.Event{
				TaskID:    types.TaskNetworkService,
				EventID:   types.EventSyncStart,
				Data:      types.EventData{Kind: types.EventDataNone},
				Timestamp: arrivalMs,
			},
		})
		t.state.ClockSync.IsCalibrated.Store(false)
	}
}

func (t *Task) handleSyncResult(offsetMs uint64) {
	completed := t.state.ClockSync.RecordOffset(offsetMs)
	if !completed {
		return
	}
	t.log.TrySend(types.Log{
		Source: types.LogSourceNetwork,
		Event: types.Event{
			TaskID:    types.TaskNetworkService,
			EventID:   types.EventSyncCompleted,
			Data:      types.EventData{Kind: types.EventDataTimeSync, OffsetMs: offsetMs},
			Timestamp: t.state.UptimeMs(),
		},
	})
}

// handleRetransmitRequest services a RequestRetransmit command: too-old
// requests (outside the history window) get a PacketTooOld telemetry
// reply; an in-window hit re-enqueues a Critical copy of the original
// packet for retransmission.
func (t *Task) handleRetransmitRequest(seq uint32, arrivalMs uint64) {
	now := arrivalMs
	current := t.state.PacketSequenceNo.Load()

	if current-seq >= uint32(t.cfg.PacketHistoryBufferCapacity) {
		t.metrics.RetransmitMisses.Inc()
		tooOld := types.TelemetryPacket{
			Priority:     types.PriorityNormal,
			CreationTime: t.state.SynchronizedTimestampMs(),
			Payload: types.SatelliteMessage{
				Kind: types.MessageTelemetry,
				Event: types.Event{
					TaskID:    types.TaskNetworkService,
					EventID:   types.EventPacketTooOld,
					Data:      types.EventData{Kind: types.EventDataNone},
					Timestamp: now,
				},
			},
			SequenceNo: current,
		}
		t.downlink.PushAndLog(types.LogSourceNetwork, tooOld, now, t.state.SynchronizedTimestampMs(), t.log, t.downlink)
		t.state.PacketSequenceNo.Add(1)
		return
	}

	stored, ok := t.hist.lookup(seq)
	if !ok {
		t.metrics.RetransmitMisses.Inc()
		return
	}
	t.metrics.RetransmitHits.Inc()

	replay := types.TelemetryPacket{
		Priority:     types.PriorityCritical,
		CreationTime: now,
		Payload:      stored.Payload,
		SequenceNo:   stored.SequenceNo,
	}
	t.downlink.PushAndLog(types.LogSourceNetwork, replay, now, t.state.SynchronizedTimestampMs(), t.log, t.downlink)
}

func (t *Task) routeToUplink(payload types.SatelliteMessage, arrivalMs uint64) {
	pkt := types.TelemetryPacket{
		Priority:     types.PriorityNormal,
		CreationTime: arrivalMs,
		Payload:      payload,
	}
	t.uplink.PushAndLog(types.LogSourceNetwork, pkt, arrivalMs, t.state.SynchronizedTimestampMs(), t.log, t.downlink)
}

func (t *Task) emitMissedCommunication() {
	now := t.state.UptimeMs()
	pkt := types.TelemetryPacket{
		Priority:     types.PriorityCritical,
		CreationTime: t.state.SynchronizedTimestampMs(),
		Payload: types.SatelliteMessage{
			Kind: types.MessageTelemetry,
			Event: types.Event{
				TaskID:    types.TaskNetworkService,
				EventID:   types.EventMissedCommunication,
				Data:      types.EventData{Kind: types.EventDataNone},
				Timestamp: now,
			},
		},
	}
	t.downlink.PushAndLog(types.LogSourceNetwork, pkt, now, t.state.SynchronizedTimestampMs(), t.log, t.downlink)
}

func absDiffU32(a, b uint32) uint32 {
	if a > b {
		return a - b
	}
	return b - a
}
