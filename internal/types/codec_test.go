package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	cases := []TelemetryPacket{
		{
			Priority:     PriorityCritical,
			CreationTime: 12345,
			SequenceNo:   7,
			Payload:      SatelliteMessage{Kind: MessageSyncRequest},
		},
		{
			Priority:     PriorityNormal,
			CreationTime: 99,
			SequenceNo:   1,
			Payload: SatelliteMessage{
				Kind:               MessageSyncResponse,
				GroundSentMs:       10,
				SatelliteReceiveMs: 20,
			},
		},
		{
			Priority: PriorityLow,
			Payload: SatelliteMessage{
				Kind: MessageCommand,
				Command: Command{
					Kind:        CommandRotateAntenna,
					TargetAngle: 270,
				},
				SentAtMs: 55,
			},
		},
		{
			Priority: PriorityCritical,
			Payload: SatelliteMessage{
				Kind: MessageTelemetry,
				Event: Event{
					TaskID:  TaskThermalSensor,
					EventID: EventDataCorruption,
					Data: EventData{
						Kind:  EventDataQueuePerformance,
						Value: 4200,
					},
					Timestamp: 77,
				},
			},
		},
	}

	for i, want := range cases {
		encoded, err := Encode(want)
		require.NoErrorf(t, err, "case %d", i)
		assert.LessOrEqualf(t, len(encoded), MaxFrameSize, "case %d: frame too large", i)

		got, err := Decode(encoded)
		require.NoErrorf(t, err, "case %d", i)
		assert.Equalf(t, want, got, "case %d: round trip mismatch", i)
	}
}

func TestDecodeShortBuffer(t *testing.T) {
	_, err := Decode([]byte{0, 1})
	assert.Error(t, err, "expected error decoding truncated buffer")
}

func TestPacketOrdering(t *testing.T) {
	critical := TelemetryPacket{Priority: PriorityCritical, CreationTime: 100}
	normalOld := TelemetryPacket{Priority: PriorityNormal, CreationTime: 1}
	normalNew := TelemetryPacket{Priority: PriorityNormal, CreationTime: 2}

	assert.True(t, critical.Less(normalOld), "critical packet should sort before normal packet regardless of age")
	assert.True(t, normalOld.Less(normalNew), "older packet should sort before newer packet within the same priority tier")
	assert.False(t, normalNew.Less(normalOld), "newer packet must not sort before older packet within the same priority tier")
}
