package sensor

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
	"satsim/internal/types"
)

func newHarness(t *testing.T) (*satstate.State, *satstate.SensorState, *clock.Fake, *queue.Bounded, *logrecord.Channel) {
	t.Helper()
	cfg := config.Defaults()
	fake := clock.NewFake(time.Unix(0, 0))
	st := satstate.NewWithClock(cfg, fake)
	downlink := queue.NewBounded(cfg.DataBufferCapacity)
	logCh := logrecord.NewChannel(cfg.LogBufferCapacity)
	return st, st.Sensors[0], fake, downlink, logCh
}

// Runs a sensor with a healthy reading on the fake clock until telemetry
// appears, then cancels, and verifies a TaskCompletion telemetry packet is
// enqueued and the heartbeat has been stamped past uptime 0 (the first
// cycle stamps 0; later cycles stamp a whole number of periods in).
func TestSensorCycleUpdatesHeartbeatAndEmitsCompletion(t *testing.T) {
	st, sn, fake, downlink, logCh := newHarness(t)
	sn.Value.Store((sn.MinData + sn.MaxData) / 2)

	task := New(st, sn, config.Defaults(), fake, downlink, logCh)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		task.Run(ctx)
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for downlink.Len() == 0 {
		select {
		case <-deadline:
			t.Fatal("timed out waiting for sensor telemetry")
		default:
			time.Sleep(time.Millisecond)
		}
	}
	cancel()
	<-done

	pkt, ok := downlink.Pop()
	require.True(t, ok, "expected a telemetry packet")
	assert.Equal(t, types.MessageTelemetry, pkt.Payload.Kind)
	assert.Equal(t, types.EventTaskCompletion, pkt.Payload.Event.EventID)
	assert.NotZero(t, sn.HeartbeatMs.Load(), "expected heartbeat to be stamped after a completed cycle")
}

// Scenario from spec section 4.2 step 3: an out-of-range reading whose
// fault has persisted beyond FAULT_RECOVERY_MS escalates to MissionAbort
// and clears is_running.
func TestSensorOutOfRangeEscalatesToMissionAbort(t *testing.T) {
	st, sn, fake, downlink, logCh := newHarness(t)
	cfg := config.Defaults()
	cfg.FaultRecoveryMs = 100

	sn.Value.Store(sn.MaxData + 1000) // out of range
	sn.FaultTimestamp.Store(0)
	fake.Advance(200 * time.Millisecond)
	sn.FaultTimestamp.Store(50) // fault began at uptime 50, "now" is 200ms in: 150ms old

	task := New(st, sn, cfg, fake, downlink, logCh)
	task.Run(context.Background())

	assert.False(t, st.IsRunning.Load(), "expected is_running to be cleared after mission abort")

	found := false
	for downlink.Len() > 0 {
		pkt, _ := downlink.Pop()
		if pkt.Payload.Kind == types.MessageTelemetry && pkt.Payload.Event.EventID == types.EventMissionAbort {
			found = true
		}
	}
	assert.True(t, found, "expected a MissionAbort telemetry packet")
}

// A value within range never triggers DataCorruption telemetry.
func TestSensorHealthyValueNoCorruption(t *testing.T) {
	st, sn, fake, downlink, logCh := newHarness(t)
	sn.Value.Store((sn.MinData + sn.MaxData) / 2)
	task := New(st, sn, config.Defaults(), fake, downlink, logCh)

	ctx, cancel := context.WithCancel(context.Background())
	go task.Run(ctx)
	time.Sleep(20 * time.Millisecond)
	cancel()

	for downlink.Len() > 0 {
		pkt, _ := downlink.Pop()
		if pkt.Payload.Kind == types.MessageTelemetry && pkt.Payload.Event.EventID == types.EventDataCorruption {
			t.Fatal("did not expect DataCorruption telemetry for an in-range value")
		}
	}
}
