package health

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"satsim/internal/clock"
	"satsim/internal/config"
	"satsim/internal/logrecord"
	"satsim/internal/queue"
	"satsim/internal/satstate"
	"satsim/internal/telemetry/events"
	"satsim/internal/types"
)

func harness(t *testing.T) (*satstate.State, *clock.Fake, *queue.Bounded, *logrecord.Channel, config.Config) {
	t.Helper()
	cfg := config.Defaults()
	fake := clock.NewFake(time.Unix(0, 0))
	st := satstate.NewWithClock(cfg, fake)
	downlink := queue.NewBounded(cfg.DataBufferCapacity)
	logCh := logrecord.NewChannel(cfg.LogBufferCapacity)
	return st, fake, downlink, logCh, cfg
}

// Scenario 3 from spec section 8: a sensor with a stale heartbeat whose
// fault has aged beyond FAULT_RECOVERY_MS triggers MissionAbort on the
// next monitor tick.
func TestHeartbeatFaultEscalatesToMissionAbort(t *testing.T) {
	st, fake, downlink, logCh, cfg := harness(t)
	cfg.FaultRecoveryMs = 100

	sn := st.Sensors[0]
	sn.PeriodMs = 5
	fake.Advance(400 * time.Millisecond)
	sn.HeartbeatMs.Store(0) // stale: 400ms old against a 15ms (3x period) limit
	sn.FaultTimestamp.Store(uint64(200))

	mon := New(st, cfg, fake, downlink, logCh)
	mon.checkSensors()

	assert.False(t, st.IsRunning.Load(), "expected is_running cleared after mission abort")

	foundAbort := false
	for downlink.Len() > 0 {
		pkt, _ := downlink.Pop()
		if pkt.Payload.Event.EventID == types.EventMissionAbort {
			foundAbort = true
		}
	}
	assert.True(t, foundAbort, "expected a MissionAbort telemetry packet")
}

// A stale heartbeat without a prior fault timestamp only emits TaskFault,
// stamping no abort — the first miss is a warning, not an escalation.
func TestHeartbeatFaultWithoutAgedTimestampDoesNotAbort(t *testing.T) {
	st, fake, downlink, logCh, cfg := harness(t)
	sn := st.Sensors[0]
	sn.PeriodMs = 5
	fake.Advance(100 * time.Millisecond)
	sn.HeartbeatMs.Store(0)
	sn.FaultTimestamp.Store(0)

	mon := New(st, cfg, fake, downlink, logCh)
	require.True(t, mon.checkSensors(), "did not expect mission abort")
	assert.True(t, st.IsRunning.Load(), "is_running must remain true")

	foundFault := false
	for downlink.Len() > 0 {
		pkt, _ := downlink.Pop()
		if pkt.Payload.Event.EventID == types.EventTaskFault {
			foundFault = true
		}
	}
	assert.True(t, foundFault, "expected a TaskFault telemetry packet")
}

// Scenario 6: degraded-mode oscillation with symmetric thresholds emits
// exactly one transition event per actual mode change, none while stable.
func TestDegradedModeOscillation(t *testing.T) {
	st, fake, downlink, logCh, cfg := harness(t)
	cfg.NormalToDegradedThreshold = 80
	cfg.DegradedToNormalThreshold = 80
	mon := New(st, cfg, fake, downlink, logCh)

	fill := func(pct int) *queue.Bounded {
		q := queue.NewBounded(100)
		for i := 0; i < pct; i++ {
			q.Push(types.TelemetryPacket{Priority: types.PriorityNormal, CreationTime: uint64(i)})
		}
		return q
	}

	mon.downlink = fill(80)
	mon.checkDegradedMode()
	require.True(t, st.DegradedMode.Load(), "expected transition to degraded at 80%% fill")
	assert.Equal(t, 1, countEvent(mon.downlink, types.EventDegradedMode))

	// Still at 80%: no event, mode unchanged.
	mon.downlink = fill(80)
	mon.checkDegradedMode()
	assert.Equal(t, 0, countEvent(mon.downlink, types.EventDegradedMode))
	assert.Equal(t, 0, countEvent(mon.downlink, types.EventNormalMode))

	mon.downlink = fill(79)
	mon.checkDegradedMode()
	assert.False(t, st.DegradedMode.Load(), "expected transition back to normal at 79%% fill")
	assert.Equal(t, 1, countEvent(mon.downlink, types.EventNormalMode))
}

func countEvent(q *queue.Bounded, id types.EventID) int {
	n := 0
	for q.Len() > 0 {
		pkt, _ := q.Pop()
		if pkt.Payload.Event.EventID == id {
			n++
		}
	}
	return n
}

// A degraded-mode transition fans out through an attached event bus in
// addition to its normal telemetry emission. The no-bus case is covered by
// TestMonitorWithNilBusDoesNotPanic.
func TestDegradedModeTransitionPublishesToBus(t *testing.T) {
	st, fake, downlink, logCh, cfg := harness(t)
	cfg.NormalToDegradedThreshold = 80
	cfg.DegradedToNormalThreshold = 80
	bus := events.NewBus()
	mon := New(st, cfg, fake, downlink, logCh).WithBus(bus)

	notifications, unsubscribe := bus.Subscribe(4)
	defer unsubscribe()

	q := queue.NewBounded(100)
	for i := 0; i < 80; i++ {
		q.Push(types.TelemetryPacket{Priority: types.PriorityNormal, CreationTime: uint64(i)})
	}
	mon.downlink = q
	mon.checkDegradedMode()

	select {
	case n := <-notifications:
		assert.Equal(t, events.CategoryHealth, n.Category)
		assert.Equal(t, "degraded_mode", n.Type)
	default:
		t.Fatal("expected a degraded_mode notification on the bus")
	}
}

func TestMonitorWithNilBusDoesNotPanic(t *testing.T) {
	st, fake, downlink, logCh, cfg := harness(t)
	cfg.NormalToDegradedThreshold = 1
	mon := New(st, cfg, fake, downlink, logCh)

	q := queue.NewBounded(100)
	q.Push(types.TelemetryPacket{Priority: types.PriorityNormal, CreationTime: 0})
	mon.downlink = q
	mon.checkDegradedMode()

	assert.True(t, st.DegradedMode.Load(), "expected degraded mode to engage even without a bus attached")
}

func TestMonitorRunTerminatesWhenNotRunning(t *testing.T) {
	st, fake, downlink, logCh, cfg := harness(t)
	st.IsRunning.Store(false)
	mon := New(st, cfg, fake, downlink, logCh)

	done := make(chan struct{})
	go func() {
		mon.Run(context.Background())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("monitor did not terminate after is_running cleared")
	}
}
