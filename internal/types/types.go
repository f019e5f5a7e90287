// Package types defines the wire and event model shared by every satsim
// task: task and event identifiers, the tagged Command/SatelliteMessage
// unions, and the prioritized TelemetryPacket carried by the bounded queue.
package types

import "fmt"

// TaskID identifies the task or subsystem a log Event originated from or
// targets.
type TaskID uint16

const (
	TaskNone TaskID = 0

	TaskRotateAntenna        TaskID = 101
	TaskSetPowerMode         TaskID = 102
	TaskClearSubsystemFault  TaskID = 103
	TaskRequestRetransmit    TaskID = 104

	TaskThermalSensor     TaskID = 201
	TaskPitchAndYawSensor TaskID = 202
	TaskMoistureSensor    TaskID = 203

	TaskGlobalSystem   TaskID = 300
	TaskNetworkService TaskID = 301
)

// EventID classifies an Event's meaning.
type EventID uint16

const (
	EventCommandNotFound  EventID = 101
	EventSubsystemFault   EventID = 102
	EventSubsystemFixed   EventID = 103
	EventCommandCompletion EventID = 104

	EventStartDelay      EventID = 201
	EventCompletionDelay EventID = 202
	EventTaskFault       EventID = 203
	EventDataCorruption  EventID = 204
	EventTaskCompletion  EventID = 205

	EventDegradedMode EventID = 301
	EventNormalMode   EventID = 302
	EventStartup      EventID = 303
	EventMissionAbort EventID = 304
	EventShutdown     EventID = 305

	EventMissedCommunication EventID = 401
	EventDataLoss            EventID = 402
	EventPacketTooOld        EventID = 403
	EventSyncStart           EventID = 404
	EventSyncCompleted       EventID = 405

	EventQueuePerformance  EventID = 501
	EventResourceUtilization EventID = 502
)

// SubsystemID enumerates the ground-commandable subsystems.
type SubsystemID uint8

const (
	SubsystemAntenna SubsystemID = 0
	SubsystemPower   SubsystemID = 1
)

func (s SubsystemID) String() string {
	switch s {
	case SubsystemAntenna:
		return "antenna"
	case SubsystemPower:
		return "power"
	default:
		return fmt.Sprintf("subsystem(%d)", uint8(s))
	}
}

// Priority orders packets in the bounded queue. Values are non-contiguous
// to leave headroom for future insertion between tiers.
type Priority uint16

const (
	PriorityLow      Priority = 0
	PriorityNormal   Priority = 3
	PriorityCritical Priority = 9
)

func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "low"
	case PriorityNormal:
		return "normal"
	case PriorityCritical:
		return "critical"
	default:
		return fmt.Sprintf("priority(%d)", uint16(p))
	}
}

// FaultCode is the value the fault-injection driver stamps onto a sensor's
// atomic fault field. It is a distinct tagged variant from EventID: the
// injected cause (FaultCode) and the telemetry emitted in response
// (EventID) are different vocabularies that happen to share some names.
type FaultCode uint32

const (
	FaultNone FaultCode = iota
	FaultStartDelay
	FaultCompletionDelay
	FaultTaskFault
	FaultDataCorruption
)

func (f FaultCode) String() string {
	switch f {
	case FaultNone:
		return "none"
	case FaultStartDelay:
		return "start_delay"
	case FaultCompletionDelay:
		return "completion_delay"
	case FaultTaskFault:
		return "task_fault"
	case FaultDataCorruption:
		return "data_corruption"
	default:
		return fmt.Sprintf("fault(%d)", uint32(f))
	}
}

// LogSource identifies which task emitted a Log record.
type LogSource uint8

const (
	LogSourceHealthMonitor   LogSource = 1
	LogSourceNetwork         LogSource = 2
	LogSourceSensor          LogSource = 3
	LogSourceCommandExecutor LogSource = 4
	LogSourceMain            LogSource = 5
)

// EventDataKind discriminates the EventData tagged union.
type EventDataKind uint8

const (
	EventDataNone EventDataKind = iota
	EventDataQueuePerformance
	EventDataSchedulingDrift
	EventDataHardware
	EventDataSubsystemFault
	EventDataSystemStats
	EventDataFaultRecovery
	EventDataTimeSync
)

// EventData is a tagged union carrying the payload variants of Event. Only
// the fields relevant to Kind are populated; this mirrors the Rust source's
// enum-with-payload using the idiomatic Go substitute (a discriminant plus
// the union's field superset) since the corpus offers no general-purpose
// sum-type library.
type EventData struct {
	Kind EventDataKind

	LatencyMs       uint32
	JitterMs        uint32
	BufferFillRate  uint32
	DriftMs         uint32
	Value           uint32
	SubsystemID     SubsystemID
	ActiveMs        uint64
	InactiveMs      uint64
	RecoveryTimeMs  uint32
	OffsetMs        uint64
}

// Event is a single telemetry or system event.
type Event struct {
	TaskID    TaskID
	EventID   EventID
	Data      EventData
	Timestamp uint64
}

// Log pairs an Event with the task that produced it for the external log
// consumer.
type Log struct {
	Source LogSource
	Event  Event
}

// CommandKind discriminates the Command tagged union.
type CommandKind uint8

const (
	CommandRotateAntenna CommandKind = iota
	CommandSetPowerMode
	CommandClearSubsystemFault
	CommandRequestRetransmit
)

// Command is a ground-originated instruction routed to the Command
// Executor, or (RequestRetransmit) intercepted by the Network Task.
type Command struct {
	Kind CommandKind

	TargetAngle uint16      // RotateAntenna
	Mode        uint8       // SetPowerMode
	SubsystemID SubsystemID // ClearSubsystemFault
	SequenceNo  uint32      // RequestRetransmit
}

// RequiredHealth returns the subsystem whose interlock must be clear before
// the command may execute, or false if no interlock applies.
func (c Command) RequiredHealth() (SubsystemID, bool) {
	switch c.Kind {
	case CommandRotateAntenna:
		return SubsystemAntenna, true
	case CommandSetPowerMode:
		return SubsystemPower, true
	default:
		return 0, false
	}
}

// SatelliteMessageKind discriminates the SatelliteMessage tagged union
// exchanged over the network link.
type SatelliteMessageKind uint8

const (
	MessageSyncRequest SatelliteMessageKind = iota
	MessageSyncResponse
	MessageSyncResult
	MessageCommand
	MessageTelemetry
)

// SatelliteMessage is the payload carried by a TelemetryPacket or read off
// the wire from the ground station.
type SatelliteMessage struct {
	Kind SatelliteMessageKind

	GroundSentMs      uint64 // SyncResponse
	SatelliteReceiveMs uint64 // SyncResponse
	OffsetMs          uint64 // SyncResult

	Command   Command // Command
	SentAtMs  uint64  // Command

	Event Event // Telemetry
}

// TelemetryPacket is the unit stored in the bounded priority buffer.
type TelemetryPacket struct {
	Priority     Priority
	CreationTime uint64 // network arrival time, or data creation time
	Payload      SatelliteMessage
	SequenceNo   uint32
}

// Less reports whether p sorts before other in the priority queue: higher
// Priority first, and within a priority tier, earlier CreationTime first.
func (p TelemetryPacket) Less(other TelemetryPacket) bool {
	if p.Priority != other.Priority {
		return p.Priority > other.Priority
	}
	return p.CreationTime < other.CreationTime
}
