package health

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestEvaluateRollsUpWorstProbeStatus(t *testing.T) {
	healthy := ProbeFunc(func(ctx context.Context) ProbeResult { return Healthy("a") })
	degraded := ProbeFunc(func(ctx context.Context) ProbeResult { return Degraded("b", "warm") })

	e := NewEvaluator(0, healthy, degraded)
	snap := e.Evaluate(context.Background())

	assert.Equal(t, StatusDegraded, snap.Overall)
	assert.Len(t, snap.Probes, 2)
}

func TestEvaluateCachesWithinTTL(t *testing.T) {
	calls := 0
	probe := ProbeFunc(func(ctx context.Context) ProbeResult {
		calls++
		return Healthy("probe")
	})

	e := NewEvaluator(time.Hour, probe)
	e.Evaluate(context.Background())
	e.Evaluate(context.Background())

	assert.Equal(t, 1, calls, "expected the probe to run once while within TTL")
}

func TestEvaluateWithNoProbesIsUnknown(t *testing.T) {
	e := NewEvaluator(0)
	snap := e.Evaluate(context.Background())
	assert.Equal(t, StatusUnknown, snap.Overall)
}
