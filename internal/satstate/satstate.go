// Package satstate holds the shared, lock-free satellite state accessed
// concurrently by every task: control flags, clock synchronization, sensor
// and subsystem readings, and coarse performance counters.
package satstate

import (
	"sync/atomic"
	"time"

	"satsim/internal/clock"
	"satsim/internal/config"
	"satsim/internal/types"
)

// SensorState is one periodically-sampled sensor. Priority, TaskID, Period
// and the data bounds are fixed at construction; Value, Heartbeat and the
// fault fields are updated concurrently by the sensor task, the health
// monitor, and the fault driver.
type SensorState struct {
	Priority types.Priority
	TaskID   types.TaskID
	PeriodMs uint64
	MinData  uint32
	MaxData  uint32

	Value          atomic.Uint32
	HeartbeatMs    atomic.Uint64
	faultCode      atomic.Uint32 // types.FaultCode, backing an atomic tagged variant
	FaultTimestamp atomic.Uint64
}

// FaultCode atomically loads the sensor's injected fault variant.
func (s *SensorState) FaultCode() types.FaultCode {
	return types.FaultCode(s.faultCode.Load())
}

// SetFaultCode atomically stores the sensor's injected fault variant.
func (s *SensorState) SetFaultCode(f types.FaultCode) {
	s.faultCode.Store(uint32(f))
}

// ClearFault resets the fault code and its timestamp together, the one-shot
// acknowledgment the health monitor and sensor task both perform after
// reacting to a fault.
func (s *SensorState) ClearFault() {
	s.faultCode.Store(uint32(types.FaultNone))
	s.FaultTimestamp.Store(0)
}

// HasValidValue reports whether the sensor's current reading falls within
// its configured [MinData, MaxData] range. A value outside this range is
// treated as data corruption.
func (s *SensorState) HasValidValue() bool {
	v := s.Value.Load()
	return v >= s.MinData && v <= s.MaxData
}

// SubsystemState is one ground-commandable subsystem's health record.
type SubsystemState struct {
	ID    types.SubsystemID
	Value atomic.Uint32

	Fault          atomic.Bool
	FaultInterlock atomic.Bool // requires ground command to clear before reuse
	FaultTimestamp atomic.Uint64
}

// SyncState tracks the clock-sync exchange with the ground station.
type SyncState struct {
	TotalOffsetMs   atomic.Uint64
	AverageOffsetMs atomic.Uint64
	NumberOfSamples atomic.Uint32
	IsCalibrated    atomic.Bool
}

// RecordOffset folds a new offset sample into the running average. It
// reports true on every 10th accumulated sample, the point at which spec
// section 4.5 marks the clock re-calibrated; callers emit SyncCompleted
// only on that transition, not on every sample.
func (s *SyncState) RecordOffset(offsetMs uint64) bool {
	n := s.NumberOfSamples.Add(1)
	total := s.TotalOffsetMs.Add(offsetMs)
	s.AverageOffsetMs.Store(total / uint64(n))
	if n%10 == 0 {
		s.IsCalibrated.Store(true)
		return true
	}
	return false
}

// State is the shared satellite state. All fields are safe for concurrent
// access without an external lock.
type State struct {
	IsRunning    atomic.Bool
	IsVisible    atomic.Bool
	DegradedMode atomic.Bool

	ClockSync SyncState
	bootTime  time.Time
	clk       clock.Clock

	Sensors     []*SensorState
	Subsystems  []*SubsystemState

	CPUActiveMs       atomic.Uint64
	BufferFillRate    atomic.Uint32
	PacketSequenceNo  atomic.Uint32
}

// New builds satellite state seeded with the fixed sensor and subsystem
// layout: a Critical thermal sensor, a Normal pitch/yaw sensor, a Low
// moisture sensor, and Antenna/Power subsystems.
func New(cfg config.Config) *State {
	return NewWithClock(cfg, clock.Real())
}

// NewWithClock builds satellite state using clk as its time source, letting
// tests inject a fake clock to avoid real sleeps.
func NewWithClock(cfg config.Config, clk clock.Clock) *State {
	st := &State{
		bootTime: clk.Now(),
		clk:      clk,
		Sensors: []*SensorState{
			{Priority: types.PriorityCritical, TaskID: types.TaskThermalSensor, PeriodMs: 5 * cfg.TickRateMs, MinData: 2500, MaxData: 5000},
			{Priority: types.PriorityNormal, TaskID: types.TaskPitchAndYawSensor, PeriodMs: 10 * cfg.TickRateMs, MinData: 0, MaxData: 36000},
			{Priority: types.PriorityLow, TaskID: types.TaskMoistureSensor, PeriodMs: 20 * cfg.TickRateMs, MinData: 2500, MaxData: 5000},
		},
		Subsystems: []*SubsystemState{
			{ID: types.SubsystemAntenna},
			{ID: types.SubsystemPower},
		},
	}
	st.IsRunning.Store(true)
	st.ClockSync.IsCalibrated.Store(true)
	st.Sensors[0].Value.Store(2500)
	st.Sensors[1].Value.Store(18000)
	st.Sensors[2].Value.Store(4500)
	return st
}

// UptimeMs returns milliseconds elapsed since boot.
func (s *State) UptimeMs() uint64 {
	return uint64(s.clk.Now().Sub(s.bootTime).Milliseconds())
}

// Clock returns the time source this state was constructed with.
func (s *State) Clock() clock.Clock { return s.clk }

// SynchronizedTimestampMs returns uptime adjusted by the current clock-sync
// offset, used when stamping outbound telemetry.
func (s *State) SynchronizedTimestampMs() uint64 {
	return s.UptimeMs() + s.ClockSync.AverageOffsetMs.Load()
}

// Sensor looks up a sensor by TaskID, returning nil if absent.
func (s *State) Sensor(id types.TaskID) *SensorState {
	for _, sn := range s.Sensors {
		if sn.TaskID == id {
			return sn
		}
	}
	return nil
}

// Subsystem looks up a subsystem by SubsystemID, returning nil if absent.
func (s *State) Subsystem(id types.SubsystemID) *SubsystemState {
	for _, sub := range s.Subsystems {
		if sub.ID == id {
			return sub
		}
	}
	return nil
}

// SensorSnapshot is one sensor's state rendered for the periodic JSON
// snapshot, mirroring the teacher's Snapshot()/MarshalIndent pattern.
type SensorSnapshot struct {
	TaskID      types.TaskID  `json:"task_id"`
	Priority    types.Priority `json:"priority"`
	Value       uint32        `json:"value"`
	HeartbeatMs uint64        `json:"heartbeat_ms"`
	FaultCode   types.FaultCode `json:"fault_code"`
}

// SubsystemSnapshot is one subsystem's state rendered for the snapshot.
type SubsystemSnapshot struct {
	ID             types.SubsystemID `json:"id"`
	Value          uint32            `json:"value"`
	Fault          bool              `json:"fault"`
	FaultInterlock bool              `json:"fault_interlock"`
}

// Snapshot is a point-in-time JSON-serializable rendering of the shared
// satellite state, used by cmd/satsim's periodic stderr snapshot.
type Snapshot struct {
	UptimeMs         uint64              `json:"uptime_ms"`
	IsRunning        bool                `json:"is_running"`
	IsVisible        bool                `json:"is_visible"`
	DegradedMode     bool                `json:"degraded_mode"`
	CPUActiveMs      uint64              `json:"cpu_active_ms"`
	BufferFillRate   uint32              `json:"buffer_fill_rate"`
	PacketSequenceNo uint32              `json:"packet_sequence_no"`
	AverageOffsetMs  uint64              `json:"average_offset_ms"`
	IsCalibrated     bool                `json:"is_calibrated"`
	Sensors          []SensorSnapshot    `json:"sensors"`
	Subsystems       []SubsystemSnapshot `json:"subsystems"`
}

// Snapshot renders the current state for external observers (cmd/satsim's
// stderr snapshot, or a future HTTP status endpoint).
func (s *State) Snapshot() Snapshot {
	snap := Snapshot{
		UptimeMs:         s.UptimeMs(),
		IsRunning:        s.IsRunning.Load(),
		IsVisible:        s.IsVisible.Load(),
		DegradedMode:     s.DegradedMode.Load(),
		CPUActiveMs:      s.CPUActiveMs.Load(),
		BufferFillRate:   s.BufferFillRate.Load(),
		PacketSequenceNo: s.PacketSequenceNo.Load(),
		AverageOffsetMs:  s.ClockSync.AverageOffsetMs.Load(),
		IsCalibrated:     s.ClockSync.IsCalibrated.Load(),
	}
	for _, sn := range s.Sensors {
		snap.Sensors = append(snap.Sensors, SensorSnapshot{
			TaskID:      sn.TaskID,
			Priority:    sn.Priority,
			Value:       sn.Value.Load(),
			HeartbeatMs: sn.HeartbeatMs.Load(),
			FaultCode:   sn.FaultCode(),
		})
	}
	for _, sub := range s.Subsystems {
		snap.Subsystems = append(snap.Subsystems, SubsystemSnapshot{
			ID:             sub.ID,
			Value:          sub.Value.Load(),
			Fault:          sub.Fault.Load(),
			FaultInterlock: sub.FaultInterlock.Load(),
		})
	}
	return snap
}
