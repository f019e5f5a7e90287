package types

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// MaxFrameSize is the largest payload a [u16 length]-prefixed frame can
// carry; the length prefix itself caps this at 65535.
const MaxFrameSize = 65535

// ErrFrameTooLarge is returned by Encode when the serialized payload would
// not fit the 2-byte length prefix mandated by the wire protocol.
var ErrFrameTooLarge = errors.New("types: encoded frame exceeds maximum frame size")

// ErrShortBuffer is returned by Decode when the supplied bytes are shorter
// than the tagged fields they are supposed to carry.
var ErrShortBuffer = errors.New("types: buffer too short to decode")

// Encode serializes p into the compact binary form carried over the wire,
// not including the 2-byte length prefix (that is added by the caller when
// framing a TCP write). The encoding is a private satellite/ground
// agreement; spec section 6 only requires that both ends agree, so this is
// a small hand-rolled format rather than a general-purpose serializer — no
// dependency in the pack offers one and the protocol is not meant to be
// interoperable with anything outside this repo.
func Encode(p TelemetryPacket) ([]byte, error) {
	buf := make([]byte, 0, 64)
	buf = appendUint16(buf, uint16(p.Priority))
	buf = appendUint64(buf, p.CreationTime)
	buf = appendUint32(buf, p.SequenceNo)
	buf = appendMessage(buf, p.Payload)
	if len(buf) > MaxFrameSize {
		return nil, ErrFrameTooLarge
	}
	return buf, nil
}

// Decode parses a TelemetryPacket out of the bytes produced by Encode.
func Decode(data []byte) (TelemetryPacket, error) {
	var p TelemetryPacket
	r := &reader{buf: data}

	p.Priority = Priority(r.uint16())
	p.CreationTime = r.uint64()
	p.SequenceNo = r.uint32()
	p.Payload = r.message()
	if r.err != nil {
		return TelemetryPacket{}, r.err
	}
	return p, nil
}

func appendMessage(buf []byte, m SatelliteMessage) []byte {
	buf = append(buf, byte(m.Kind))
	switch m.Kind {
	case MessageSyncRequest:
		// no payload
	case MessageSyncResponse:
		buf = appendUint64(buf, m.GroundSentMs)
		buf = appendUint64(buf, m.SatelliteReceiveMs)
	case MessageSyncResult:
		buf = appendUint64(buf, m.OffsetMs)
	case MessageCommand:
		buf = appendCommand(buf, m.Command)
		buf = appendUint64(buf, m.SentAtMs)
	case MessageTelemetry:
		buf = appendEvent(buf, m.Event)
	}
	return buf
}

func appendCommand(buf []byte, c Command) []byte {
	buf = append(buf, byte(c.Kind))
	buf = appendUint16(buf, c.TargetAngle)
	buf = append(buf, c.Mode)
	buf = append(buf, byte(c.SubsystemID))
	buf = appendUint32(buf, c.SequenceNo)
	return buf
}

func appendEvent(buf []byte, ev Event) []byte {
	buf = appendUint16(buf, uint16(ev.TaskID))
	buf = appendUint16(buf, uint16(ev.EventID))
	buf = appendUint64(buf, ev.Timestamp)
	buf = append(buf, byte(ev.Data.Kind))
	buf = appendUint32(buf, ev.Data.LatencyMs)
	buf = appendUint32(buf, ev.Data.JitterMs)
	buf = appendUint32(buf, ev.Data.BufferFillRate)
	buf = appendUint32(buf, ev.Data.DriftMs)
	buf = appendUint32(buf, ev.Data.Value)
	buf = append(buf, byte(ev.Data.SubsystemID))
	buf = appendUint64(buf, ev.Data.ActiveMs)
	buf = appendUint64(buf, ev.Data.InactiveMs)
	buf = appendUint32(buf, ev.Data.RecoveryTimeMs)
	buf = appendUint64(buf, ev.Data.OffsetMs)
	return buf
}

func appendUint16(buf []byte, v uint16) []byte {
	var tmp [2]byte
	binary.BigEndian.PutUint16(tmp[:], v)
	return append(buf, tmp[:]...)
}

func appendUint32(buf []byte, v uint32) []byte {
	var tmp [4]byte
	binary.BigEndian.PutUint32(tmp[:], v)
	return append(buf, tmp[:]...)
}

func appendUint64(buf []byte, v uint64) []byte {
	var tmp [8]byte
	binary.BigEndian.PutUint64(tmp[:], v)
	return append(buf, tmp[:]...)
}

// reader walks data sequentially, latching the first short-read error so
// callers can decode a whole message and check err once at the end.
type reader struct {
	buf []byte
	err error
}

func (r *reader) need(n int) []byte {
	if r.err != nil {
		return nil
	}
	if len(r.buf) < n {
		r.err = fmt.Errorf("%w: need %d bytes, have %d", ErrShortBuffer, n, len(r.buf))
		return nil
	}
	out := r.buf[:n]
	r.buf = r.buf[n:]
	return out
}

func (r *reader) uint8() uint8 {
	b := r.need(1)
	if b == nil {
		return 0
	}
	return b[0]
}

func (r *reader) uint16() uint16 {
	b := r.need(2)
	if b == nil {
		return 0
	}
	return binary.BigEndian.Uint16(b)
}

func (r *reader) uint32() uint32 {
	b := r.need(4)
	if b == nil {
		return 0
	}
	return binary.BigEndian.Uint32(b)
}

func (r *reader) uint64() uint64 {
	b := r.need(8)
	if b == nil {
		return 0
	}
	return binary.BigEndian.Uint64(b)
}

func (r *reader) message() SatelliteMessage {
	var m SatelliteMessage
	m.Kind = SatelliteMessageKind(r.uint8())
	switch m.Kind {
	case MessageSyncRequest:
	case MessageSyncResponse:
		m.GroundSentMs = r.uint64()
		m.SatelliteReceiveMs = r.uint64()
	case MessageSyncResult:
		m.OffsetMs = r.uint64()
	case MessageCommand:
		m.Command = r.command()
		m.SentAtMs = r.uint64()
	case MessageTelemetry:
		m.Event = r.event()
	}
	return m
}

func (r *reader) command() Command {
	var c Command
	c.Kind = CommandKind(r.uint8())
	c.TargetAngle = r.uint16()
	c.Mode = r.uint8()
	c.SubsystemID = SubsystemID(r.uint8())
	c.SequenceNo = r.uint32()
	return c
}

func (r *reader) event() Event {
	var ev Event
	ev.TaskID = TaskID(r.uint16())
	ev.EventID = EventID(r.uint16())
	ev.Timestamp = r.uint64()
	ev.Data.Kind = EventDataKind(r.uint8())
	ev.Data.LatencyMs = r.uint32()
	ev.Data.JitterMs = r.uint32()
	ev.Data.BufferFillRate = r.uint32()
	ev.Data.DriftMs = r.uint32()
	ev.Data.Value = r.uint32()
	ev.Data.SubsystemID = SubsystemID(r.uint8())
	ev.Data.ActiveMs = r.uint64()
	ev.Data.InactiveMs = r.uint64()
	ev.Data.RecoveryTimeMs = r.uint32()
	ev.Data.OffsetMs = r.uint64()
	return ev
}
