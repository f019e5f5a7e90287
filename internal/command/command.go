// Package command implements the Command Executor of spec section 4.4:
// drains the uplink queue, enforces subsystem interlock gating before
// dispatch, mutates subsystem state, and reports completion telemetry.
package command

import (
	"context"
	"time"

	"satsim/internal/clock"
	"satsim/internal/config"
	"satsim/internal/queue"
	"satsim/internal/satstate"
	"satsim/internal/types"
)

// Executor drains uplink at a fixed cadence, fail-stopping if a dispatched
// command targets a subsystem whose interlock is latched.
type Executor struct {
	state    *satstate.State
	cfg      config.Config
	clk      clock.Clock
	uplink   *queue.Bounded
	downlink *queue.Bounded
	log      queue.LogSink
}

// New constructs an Executor.
func New(state *satstate.State, cfg config.Config, clk clock.Clock, uplink, downlink *queue.Bounded, log queue.LogSink) *Executor {
	return &Executor{state: state, cfg: cfg, clk: clk, uplink: uplink, downlink: downlink, log: log}
}

// Run drains uplink until ctx is cancelled, is_running clears, or a
// command targeting an interlocked subsystem is encountered — per spec
// section 4.4 bullet 1, the executor exits the loop (fail-stop) rather
// than emitting a denial telemetry.
func (e *Executor) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil || !e.state.IsRunning.Load() {
			return
		}

		if pkt, ok := e.uplink.Pop(); ok && pkt.Payload.Kind == types.MessageCommand {
			if !e.dispatch(pkt.Payload.Command) {
				return
			}
		}

		select {
		case <-ctx.Done():
			return
		default:
			e.clk.Sleep(time.Duration(e.cfg.CommandMs) * time.Millisecond)
		}
	}
}

// dispatch executes one command. It returns false if the executor must
// fail-stop because the command's required subsystem is interlocked.
func (e *Executor) dispatch(cmd types.Command) bool {
	if subID, needed := cmd.RequiredHealth(); needed {
		sub := e.state.Subsystem(subID)
		if sub != nil && sub.FaultInterlock.Load() {
			return false
		}
	}

	taskID := types.TaskNone
	notFound := false

	switch cmd.Kind {
	case types.CommandRotateAntenna:
		if sub := e.state.Subsystem(types.SubsystemAntenna); sub != nil {
			sub.Value.Store(uint32(cmd.TargetAngle))
		}
		taskID = types.TaskRotateAntenna
	case types.CommandSetPowerMode:
		if sub := e.state.Subsystem(types.SubsystemPower); sub != nil {
			sub.Value.Store(uint32(cmd.Mode))
		}
		taskID = types.TaskSetPowerMode
	case types.CommandClearSubsystemFault:
		if sub := e.state.Subsystem(cmd.SubsystemID); sub != nil && sub.Fault.Load() {
			sub.FaultInterlock.Store(false)
		}
		taskID = types.TaskClearSubsystemFault
	case types.CommandRequestRetransmit:
		// Handled by internal/netlink, not here; reaching this path means
		// routing put a retransmit request on uplink by mistake.
		taskID = types.TaskRequestRetransmit
	default:
		notFound = true
	}

	uptime := e.state.UptimeMs()
	eventID := types.EventCommandCompletion
	if notFound {
		eventID = types.EventCommandNotFound
	}

	pkt := types.TelemetryPacket{
		Priority:     types.PriorityNormal,
		CreationTime: e.state.SynchronizedTimestampMs(),
		Payload: types.SatelliteMessage{
			Kind: types.MessageTelemetry,
			Event: types.Event{
				TaskID:    taskID,
				EventID:   eventID,
				Data:      types.EventData{Kind: types.EventDataNone},
				Timestamp: uptime,
			},
		},
	}
	e.downlink.PushAndLog(types.LogSourceCommandExecutor, pkt, uptime, e.state.SynchronizedTimestampMs(), e.log, e.downlink)
	return true
}
