// Package config supplies the simulator's tunable constants, a YAML overlay
// loader in the teacher's layered-config style, and an fsnotify-driven
// watcher for hot-reloading thresholds without a process restart.
package config

import (
	"fmt"
	"os"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// Config holds every build-time constant of the simulation, overridable via
// a YAML overlay. Field names mirror the original constant names.
type Config struct {
	TickRateMs uint64 `yaml:"tick_rate_ms"`

	DataBufferCapacity         int `yaml:"data_buffer_capacity"`
	LogBufferCapacity          int `yaml:"log_buffer_capacity"`
	PacketHistoryBufferCapacity int `yaml:"packet_history_buffer_capacity"`

	NormalToDegradedThreshold uint32 `yaml:"normal_to_degraded_threshold"`
	DegradedToNormalThreshold uint32 `yaml:"degraded_to_normal_threshold"`

	NetworkPort string `yaml:"network_port"`

	MaxSensors    int `yaml:"max_sensors"`
	MaxSubsystems int `yaml:"max_subsystems"`

	SubsystemFaultInjectionMs uint64 `yaml:"subsystem_fault_injection_ms"`
	SensorFaultInjectionMs    uint64 `yaml:"sensor_fault_injection_ms"`
	SensorFaultMs             uint64 `yaml:"sensor_fault_ms"`
	SensorDelayMs             uint64 `yaml:"sensor_delay_ms"`
	SensorDataCorruption      uint32 `yaml:"sensor_data_corruption"`
	MonitorMs                uint64 `yaml:"monitor_ms"`
	CommandMs                uint64 `yaml:"command_ms"`
	NetworkMs                uint64 `yaml:"network_ms"`
	MainMs                   uint64 `yaml:"main_ms"`

	FaultRecoveryMs uint64 `yaml:"fault_recovery_ms"`

	NetworkPriority    uint8 `yaml:"network_priority"`
	MonitorPriority    uint8 `yaml:"monitor_priority"`
	SimulationPriority uint8 `yaml:"simulation_priority"`
	LoggingPriority    uint8 `yaml:"logging_priority"`
	CommandPriority    uint8 `yaml:"command_priority"`

	NumberOfCores uint64 `yaml:"number_of_cores"`

	InitHandshakeLimitMs    uint64 `yaml:"init_handshake_limit_ms"`
	VisibilityWindowLimitMs uint64 `yaml:"visibility_window_limit_ms"`
	VisibilityWindowCycleMs uint64 `yaml:"visibility_window_cycle_ms"`

	LogFilePath string `yaml:"log_file_path"`
}

// Defaults returns the constants as originally tuned for the simulation.
func Defaults() Config {
	return Config{
		TickRateMs: 1,

		DataBufferCapacity:          100,
		LogBufferCapacity:           100,
		PacketHistoryBufferCapacity: 100,

		NormalToDegradedThreshold: 80,
		DegradedToNormalThreshold: 80,

		NetworkPort: "0.0.0.0:8000",

		MaxSensors:    3,
		MaxSubsystems: 2,

		SubsystemFaultInjectionMs: 60,
		SensorFaultInjectionMs:    60,
		SensorFaultMs:             10,
		SensorDelayMs:             2,
		SensorDataCorruption:      99999,
		MonitorMs:                5,
		CommandMs:                5,
		NetworkMs:                2,
		MainMs:                   1000,

		FaultRecoveryMs: 100,

		NetworkPriority:    5,
		MonitorPriority:    10,
		SimulationPriority: 1,
		LoggingPriority:    0,
		CommandPriority:    4,

		NumberOfCores: 8,

		InitHandshakeLimitMs:    5,
		VisibilityWindowLimitMs: 30,
		VisibilityWindowCycleMs: 50,

		LogFilePath: "satsim.log",
	}
}

// Load reads a YAML overlay from path and applies it on top of Defaults().
// A missing file is not an error; the defaults are returned unchanged.
func Load(path string) (Config, error) {
	cfg := Defaults()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// Tick returns the tick rate as a time.Duration.
func (c Config) Tick() time.Duration { return time.Duration(c.TickRateMs) * time.Millisecond }

// Live holds a hot-reloadable Config behind an atomic pointer so readers
// never observe a torn update.
type Live struct {
	ptr atomic.Pointer[Config]
}

// NewLive wraps an initial Config for atomic hot-reload.
func NewLive(initial Config) *Live {
	l := &Live{}
	l.ptr.Store(&initial)
	return l
}

// Get returns the current Config snapshot.
func (l *Live) Get() Config { return *l.ptr.Load() }

func (l *Live) set(c Config) { l.ptr.Store(&c) }

// Watcher reloads path whenever it changes on disk, swapping the Live
// config atomically. Grounded on the same fsnotify dependency the teacher
// vendors but never wires into a running component.
type Watcher struct {
	fsw  *fsnotify.Watcher
	live *Live
	path string
	done chan struct{}
}

// WatchFile starts watching path for changes, reloading into live on every
// write event. Call Close to stop.
func WatchFile(path string, live *Live) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create config watcher: %w", err)
	}
	if err := fsw.Add(path); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("watch config %s: %w", path, err)
	}
	w := &Watcher{fsw: fsw, live: live, path: path, done: make(chan struct{})}
	go w.loop()
	return w, nil
}

func (w *Watcher) loop() {
	defer close(w.done)
	for {
		select {
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if cfg, err := Load(w.path); err == nil {
				w.live.set(cfg)
			}
		case _, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
		}
	}
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	err := w.fsw.Close()
	<-w.done
	return err
}
