// Package health implements the Health Monitor of spec section 4.3: sensor
// liveness via heartbeat staleness, subsystem fault aging, degraded-mode
// hysteresis, mission-abort escalation, and CPU/resource-utilization
// accounting.
package health

import (
	"context"
	"time"

	"satsim/internal/clock"
	"satsim/internal/config"
	"satsim/internal/queue"
	"satsim/internal/satstate"
	"satsim/internal/telemetry/events"
	"satsim/internal/types"
)

// Monitor runs the fixed-period liveness and mode-transition cycle.
type Monitor struct {
	state    *satstate.State
	cfg      config.Config
	clk      clock.Clock
	downlink *queue.Bounded
	log      queue.LogSink
	bus      events.Bus
}

// New constructs a Monitor.
func New(state *satstate.State, cfg config.Config, clk clock.Clock, downlink *queue.Bounded, log queue.LogSink) *Monitor {
	return &Monitor{state: state, cfg: cfg, clk: clk, downlink: downlink, log: log}
}

// WithBus attaches an event bus that the monitor fans mission-abort and
// degraded-mode transitions out to, in addition to its normal telemetry
// emission. A nil bus (the zero value) disables fan-out entirely.
func (m *Monitor) WithBus(bus events.Bus) *Monitor {
	m.bus = bus
	return m
}

func (m *Monitor) publish(n events.Notification) {
	if m.bus != nil {
		m.bus.Publish(n)
	}
}

// Run executes the monitor loop at MONITOR_MS until ctx is cancelled or
// is_running clears.
func (m *Monitor) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil || !m.state.IsRunning.Load() {
			return
		}
		cycleStart := m.state.UptimeMs()

		if !m.checkSensors() {
			return
		}
		if !m.checkSubsystems() {
			return
		}
		m.checkDegradedMode()

		elapsed := m.state.UptimeMs() - cycleStart
		m.state.CPUActiveMs.Add(elapsed)
		m.emitResourceUtilization()

		select {
		case <-ctx.Done():
			return
		default:
			m.clk.Sleep(time.Duration(m.cfg.MonitorMs) * time.Millisecond)
		}
	}
}

// checkSensors evaluates every sensor's heartbeat liveness. It returns
// false if a mission abort was triggered (the caller must stop).
func (m *Monitor) checkSensors() bool {
	uptime := m.state.UptimeMs()
	for _, sn := range m.state.Sensors {
		limit := sn.PeriodMs * 3
		if m.state.DegradedMode.Load() && sn.Priority != types.PriorityCritical {
			limit = sn.PeriodMs * 6
		}

		hb := sn.HeartbeatMs.Load()
		if uptime-hb <= limit {
			continue
		}

		m.send(types.Event{
			TaskID:    sn.TaskID,
			EventID:   types.EventTaskFault,
			Data:      types.EventData{Kind: types.EventDataNone},
			Timestamp: uptime,
		}, types.PriorityCritical)

		ts := sn.FaultTimestamp.Load()
		if ts != 0 && uptime-ts > m.cfg.FaultRecoveryMs {
			m.send(types.Event{
				TaskID:  sn.TaskID,
				EventID: types.EventMissionAbort,
				Data: types.EventData{
					Kind:           types.EventDataFaultRecovery,
					RecoveryTimeMs: uint32(uptime - ts),
				},
				Timestamp: uptime,
			}, types.PriorityCritical)
			m.publish(events.Notification{
				Category: events.CategoryHealth,
				Type:     "mission_abort",
				Fields:   map[string]any{"task_id": sn.TaskID, "reason": "sensor_fault_recovery_exceeded"},
			})
			m.state.IsRunning.Store(false)
			return false
		}

		sn.ClearFault()
	}
	return true
}

// checkSubsystems evaluates every subsystem's fault aging. It returns
// false if a mission abort was triggered.
func (m *Monitor) checkSubsystems() bool {
	uptime := m.state.UptimeMs()
	for _, sub := range m.state.Subsystems {
		if !sub.Fault.Load() {
			continue
		}
		ts := sub.FaultTimestamp.Load()
		if ts == 0 {
			continue
		}

		m.send(types.Event{
			TaskID:    types.TaskGlobalSystem,
			EventID:   types.EventSubsystemFault,
			Data:      types.EventData{Kind: types.EventDataSubsystemFault, SubsystemID: sub.ID},
			Timestamp: uptime,
		}, types.PriorityCritical)

		if uptime-ts > m.cfg.FaultRecoveryMs {
			m.send(types.Event{
				TaskID:  types.TaskGlobalSystem,
				EventID: types.EventMissionAbort,
				Data: types.EventData{
					Kind:           types.EventDataFaultRecovery,
					RecoveryTimeMs: uint32(uptime - ts),
				},
				Timestamp: uptime,
			}, types.PriorityCritical)
			m.publish(events.Notification{
				Category: events.CategoryHealth,
				Type:     "mission_abort",
				Fields:   map[string]any{"subsystem_id": sub.ID, "reason": "subsystem_fault_recovery_exceeded"},
			})
			m.state.IsRunning.Store(false)
			return false
		}

		sub.Fault.Store(false)
		sub.FaultTimestamp.Store(0)
	}
	return true
}

// checkDegradedMode evaluates the downlink fill percentage against the
// hysteresis thresholds and transitions mode at most once per cycle.
func (m *Monitor) checkDegradedMode() {
	fillPercent := m.downlink.FillRate()
	m.state.BufferFillRate.Store(fillPercent)

	wasDegraded := m.state.DegradedMode.Load()
	switch {
	case fillPercent >= m.cfg.NormalToDegradedThreshold && !wasDegraded:
		m.state.DegradedMode.Store(true)
		m.send(types.Event{
			TaskID:    types.TaskGlobalSystem,
			EventID:   types.EventDegradedMode,
			Data:      types.EventData{Kind: types.EventDataQueuePerformance, BufferFillRate: fillPercent},
			Timestamp: m.state.UptimeMs(),
		}, types.PriorityCritical)
		m.publish(events.Notification{
			Category: events.CategoryHealth,
			Type:     "degraded_mode",
			Fields:   map[string]any{"buffer_fill_rate": fillPercent},
		})
	case fillPercent < m.cfg.DegradedToNormalThreshold && wasDegraded:
		m.state.DegradedMode.Store(false)
		m.send(types.Event{
			TaskID:    types.TaskGlobalSystem,
			EventID:   types.EventNormalMode,
			Data:      types.EventData{Kind: types.EventDataQueuePerformance, BufferFillRate: fillPercent},
			Timestamp: m.state.UptimeMs(),
		}, types.PriorityCritical)
		m.publish(events.Notification{
			Category: events.CategoryHealth,
			Type:     "normal_mode",
			Fields:   map[string]any{"buffer_fill_rate": fillPercent},
		})
	}
}

func (m *Monitor) emitResourceUtilization() {
	uptime := m.state.UptimeMs()
	cores := m.cfg.NumberOfCores
	if cores == 0 {
		cores = 1
	}
	denom := uptime * cores
	if denom == 0 {
		denom = 1
	}
	cpuActive := m.state.CPUActiveMs.Load()
	effectiveActive := uptime * cpuActive / denom
	inactive := uptime - effectiveActive
	if effectiveActive > uptime {
		effectiveActive = uptime
		inactive = 0
	}

	m.send(types.Event{
		TaskID:  types.TaskGlobalSystem,
		EventID: types.EventResourceUtilization,
		Data: types.EventData{
			Kind:       types.EventDataSystemStats,
			ActiveMs:   effectiveActive,
			InactiveMs: inactive,
		},
		Timestamp: uptime,
	}, types.PriorityCritical)
}

func (m *Monitor) send(ev types.Event, prio types.Priority) {
	pkt := types.TelemetryPacket{
		Priority:     prio,
		CreationTime: m.state.SynchronizedTimestampMs(),
		Payload:      types.SatelliteMessage{Kind: types.MessageTelemetry, Event: ev},
	}
	m.downlink.PushAndLog(types.LogSourceHealthMonitor, pkt, m.state.UptimeMs(), m.state.SynchronizedTimestampMs(), m.log, m.downlink)
}
