// Package sensor implements the periodic sensor task of spec section 4.2:
// one goroutine per configured sensor, sampling at its fixed period,
// detecting scheduling drift and out-of-range readings, and throttling to
// half-rate under degraded mode for non-critical sensors.
package sensor

import (
	"context"
	"time"

	"satsim/internal/clock"
	"satsim/internal/config"
	"satsim/internal/queue"
	"satsim/internal/satstate"
	"satsim/internal/types"
)

// Task runs one sensor's periodic sampling loop.
type Task struct {
	state    *satstate.State
	sensor   *satstate.SensorState
	cfg      config.Config
	clk      clock.Clock
	downlink *queue.Bounded
	log      queue.LogSink
}

// New constructs a Task for one sensor. log is the bounded log channel
// (internal/logrecord.Channel satisfies queue.LogSink); it must not be nil.
func New(state *satstate.State, sensor *satstate.SensorState, cfg config.Config, clk clock.Clock, downlink *queue.Bounded, log queue.LogSink) *Task {
	return &Task{state: state, sensor: sensor, cfg: cfg, clk: clk, downlink: downlink, log: log}
}

// Run executes the sensor's cycle loop until ctx is cancelled or
// state.IsRunning clears. It returns when the task observes is_running
// false at the top of a cycle, per the cooperative-cancellation model of
// spec section 5.
func (t *Task) Run(ctx context.Context) {
	nextWake := t.state.UptimeMs() + t.sensor.PeriodMs

	for {
		if ctx.Err() != nil || !t.state.IsRunning.Load() {
			return
		}
		cycleStart := t.state.UptimeMs()

		switch t.sensor.FaultCode() {
		case types.FaultTaskFault:
			t.sleep(ctx, t.cfg.SensorFaultMs)
			continue
		case types.FaultStartDelay:
			t.sleep(ctx, t.cfg.SensorDelayMs)
		}

		uptime := t.state.UptimeMs()
		if uptime > nextWake {
			t.emitDrift(types.EventStartDelay, uint32(uptime-nextWake), uptime)
			nextWake = uptime
		}

		if !t.sensor.HasValidValue() {
			t.emitDataCorruption(uptime)
			ts := t.sensor.FaultTimestamp.Load()
			if ts != 0 && uptime-ts > t.cfg.FaultRecoveryMs {
				t.emitMissionAbort(uptime)
				t.state.IsRunning.Store(false)
				return
			}
			mid := (t.sensor.MinData + t.sensor.MaxData) / 2
			t.sensor.Value.Store(mid)
			t.sensor.ClearFault()
		}

		if t.sensor.FaultCode() == types.FaultCompletionDelay {
			t.sleep(ctx, t.cfg.SensorDelayMs)
		}

		uptime = t.state.UptimeMs()
		t.sensor.HeartbeatMs.Store(uptime)
		t.emitCompletion(uptime)

		if t.state.DegradedMode.Load() && t.sensor.Priority != types.PriorityCritical {
			nextWake += t.sensor.PeriodMs
		}

		uptime = t.state.UptimeMs()
		if nextWake > uptime {
			t.sleep(ctx, nextWake-uptime)
		} else {
			t.emitDrift(types.EventCompletionDelay, uint32(uptime-nextWake), uptime)
			nextWake = uptime
		}

		t.state.CPUActiveMs.Add(t.state.UptimeMs() - cycleStart)
		nextWake += t.sensor.PeriodMs
	}
}

func (t *Task) sleep(ctx context.Context, ms uint64) {
	if ms == 0 {
		return
	}
	select {
	case <-ctx.Done():
	default:
		t.clk.Sleep(time.Duration(ms) * time.Millisecond)
	}
}

func (t *Task) emitDrift(eventID types.EventID, driftMs uint32, uptime uint64) {
	t.send(types.Event{
		TaskID:    t.sensor.TaskID,
		EventID:   eventID,
		Data:      types.EventData{Kind: types.EventDataSchedulingDrift, DriftMs: driftMs},
		Timestamp: uptime,
	}, types.PriorityCritical)
}

func (t *Task) emitDataCorruption(uptime uint64) {
	t.send(types.Event{
		TaskID:    t.sensor.TaskID,
		EventID:   types.EventDataCorruption,
		Data:      types.EventData{Kind: types.EventDataHardware, Value: t.sensor.Value.Load()},
		Timestamp: uptime,
	}, types.PriorityCritical)
}

func (t *Task) emitMissionAbort(uptime uint64) {
	t.send(types.Event{
		TaskID:  t.sensor.TaskID,
		EventID: types.EventMissionAbort,
		Data: types.EventData{
			Kind:           types.EventDataFaultRecovery,
			RecoveryTimeMs: uint32(uptime - t.sensor.FaultTimestamp.Load()),
		},
		Timestamp: uptime,
	}, types.PriorityCritical)
}

func (t *Task) emitCompletion(uptime uint64) {
	t.send(types.Event{
		TaskID:    t.sensor.TaskID,
		EventID:   types.EventTaskCompletion,
		Data:      types.EventData{Kind: types.EventDataHardware, Value: t.sensor.Value.Load()},
		Timestamp: uptime,
	}, t.sensor.Priority)
}

func (t *Task) send(ev types.Event, prio types.Priority) {
	pkt := types.TelemetryPacket{
		Priority:     prio,
		CreationTime: t.state.SynchronizedTimestampMs(),
		Payload:      types.SatelliteMessage{Kind: types.MessageTelemetry, Event: ev},
	}
	t.downlink.PushAndLog(types.LogSourceSensor, pkt, t.state.UptimeMs(), t.state.SynchronizedTimestampMs(), t.log, t.downlink)
}
