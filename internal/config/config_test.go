package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Defaults(), cfg, "expected defaults unchanged when overlay file is absent")
}

func TestLoadEmptyPathReturnsDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Defaults(), cfg, "expected defaults unchanged for an empty path")
}

func TestLoadOverlayAppliesOnTopOfDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "overlay.yaml")
	yaml := "normal_to_degraded_threshold: 90\ndegraded_to_normal_threshold: 60\n"
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.EqualValues(t, 90, cfg.NormalToDegradedThreshold, "overlay not applied")
	assert.EqualValues(t, 60, cfg.DegradedToNormalThreshold, "overlay not applied")
	assert.Equal(t, Defaults().TickRateMs, cfg.TickRateMs, "fields absent from the overlay should keep their default values")
}

func TestLiveGetReturnsCurrentSnapshot(t *testing.T) {
	live := NewLive(Defaults())
	assert.Equal(t, Defaults(), live.Get(), "expected the initial snapshot to equal the constructor argument")

	updated := Defaults()
	updated.MonitorMs = 42
	live.set(updated)
	assert.EqualValues(t, 42, live.Get().MonitorMs)
}
