// Package fault implements the fault & visibility injection driver of spec
// section 4.6: the 1 ms-tick component that perturbs sensor readings,
// flips the visibility window, and periodically stamps sensor and
// subsystem faults. It is a test/simulation collaborator, not part of the
// flight-software core proper, but a runnable repo needs one.
package fault

import (
	"context"
	"math/rand"
	"time"

	"satsim/internal/clock"
	"satsim/internal/config"
	"satsim/internal/satstate"
	"satsim/internal/types"
)

// jitterSpan is the [-100, +100] perturbation window applied to every
// sensor's value on each tick.
const jitterSpan = 100

// Driver runs the fault/visibility injection loop. rng is exposed for
// tests; production callers get a time-seeded source from New.
type Driver struct {
	state *satstate.State
	cfg   config.Config
	clk   clock.Clock
	rng   *rand.Rand
}

// New constructs a Driver seeded from the wall clock, matching the
// teacher's plain math/rand usage for non-cryptographic jitter (see
// pipeline.go's randomizedDelay): no corpus dependency offers a
// domain-specific chaos-injection library, so this stays on stdlib rand.
func New(state *satstate.State, cfg config.Config, clk clock.Clock) *Driver {
	return &Driver{state: state, cfg: cfg, clk: clk, rng: rand.New(rand.NewSource(time.Now().UnixNano()))}
}

// NewWithRand constructs a Driver using an explicit rand source, letting
// tests make fault injection deterministic.
func NewWithRand(state *satstate.State, cfg config.Config, clk clock.Clock, rng *rand.Rand) *Driver {
	return &Driver{state: state, cfg: cfg, clk: clk, rng: rng}
}

// Run executes the 1 ms tick loop until ctx is cancelled or is_running
// clears.
func (d *Driver) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil || !d.state.IsRunning.Load() {
			return
		}
		d.tick()

		select {
		case <-ctx.Done():
			return
		default:
			d.clk.Sleep(time.Duration(d.cfg.TickRateMs) * time.Millisecond)
		}
	}
}

// tick performs one pass of jitter, visibility toggling and periodic fault
// injection, matching simulation.rs's single-iteration body.
func (d *Driver) tick() {
	now := d.state.UptimeMs()

	d.jitterSensors(now)
	d.toggleVisibility(now)
	d.injectSensorFault(now)
	d.injectSubsystemFault(now)
}

// jitterSensors perturbs every sensor's value by a random delta in
// [-100, +100]; a result outside [min,max] is flagged DataCorruption.
func (d *Driver) jitterSensors(now uint64) {
	for _, sn := range d.state.Sensors {
		delta := d.rng.Intn(2*jitterSpan+1) - jitterSpan
		cur := sn.Value.Load()
		next := applyDelta(cur, delta)
		sn.Value.Store(next)

		if next < sn.MinData || next > sn.MaxData {
			sn.SetFaultCode(types.FaultDataCorruption)
			sn.FaultTimestamp.Store(now)
		}
	}
}

// applyDelta adds delta to v, clamping at zero so an unsigned counter
// never wraps around on a large negative perturbation.
func applyDelta(v uint32, delta int) uint32 {
	if delta >= 0 {
		return v + uint32(delta)
	}
	d := uint32(-delta)
	if d > v {
		return 0
	}
	return v - d
}

// toggleVisibility flips is_visible on the cycle boundaries configured by
// VisibilityWindowCycleMs/VisibilityWindowLimitMs.
func (d *Driver) toggleVisibility(now uint64) {
	cycle := d.cfg.VisibilityWindowCycleMs
	if cycle == 0 {
		return
	}
	switch now % cycle {
	case 0:
		d.state.IsVisible.Store(true)
	case d.cfg.VisibilityWindowLimitMs:
		d.state.IsVisible.Store(false)
	}
}

// injectSensorFault stamps a random fault onto a random sensor every
// SensorFaultInjectionMs. DataCorruption additionally overwrites the
// sensor's value with a sentinel guaranteed out of range.
func (d *Driver) injectSensorFault(now uint64) {
	period := d.cfg.SensorFaultInjectionMs
	if period == 0 || now%period != 0 {
		return
	}
	if len(d.state.Sensors) == 0 {
		return
	}
	sn := d.state.Sensors[d.rng.Intn(len(d.state.Sensors))]

	faults := []types.FaultCode{
		types.FaultStartDelay,
		types.FaultCompletionDelay,
		types.FaultTaskFault,
		types.FaultDataCorruption,
	}
	f := faults[d.rng.Intn(len(faults))]
	sn.SetFaultCode(f)

	if f == types.FaultDataCorruption {
		sn.Value.Store(d.cfg.SensorDataCorruption)
	}
	sn.FaultTimestamp.Store(now)
}

// injectSubsystemFault latches a fault and its interlock onto a random
// subsystem every SubsystemFaultInjectionMs.
func (d *Driver) injectSubsystemFault(now uint64) {
	period := d.cfg.SubsystemFaultInjectionMs
	if period == 0 || now%period != 0 {
		return
	}
	if len(d.state.Subsystems) == 0 {
		return
	}
	sub := d.state.Subsystems[d.rng.Intn(len(d.state.Subsystems))]
	sub.Fault.Store(true)
	sub.FaultInterlock.Store(true)
	sub.FaultTimestamp.Store(now)
}
