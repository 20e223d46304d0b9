package mux

import (
	"encoding/binary"
	"fmt"
	"strconv"

	"firestige.xyz/gsdump/internal/core"
)

const (
	keepAliveLen = 10

	flagExtA  = 0x01 // 2 opaque bytes
	flagAck   = 0x10 // ack u16 follows
	flagExtB  = 0x40 // 6 opaque bytes
	markerExt = 0x01 // 3 opaque bytes
)

// Config selects the payload types routed to the demultiplexer.
type Config struct {
	ControlPayloadType   uint8 `mapstructure:"control_payload_type"`
	KeepAlivePayloadType uint8 `mapstructure:"keepalive_payload_type"`
	ChannelMin           uint8 `mapstructure:"channel_min"`
	ChannelMax           uint8 `mapstructure:"channel_max"`
}

// DefaultConfig returns the payload types used by the streaming service.
func DefaultConfig() Config {
	return Config{
		ControlPayloadType:   0x61,
		KeepAlivePayloadType: 0x65,
		ChannelMin:           0x23,
		ChannelMax:           0x3f,
	}
}

// Demuxer decodes mux messages and tracks the channel directory.
//
// Not safe for concurrent use.
type Demuxer struct {
	cfg Config
	dir *Directory
}

// NewDemuxer creates a demultiplexer.
func NewDemuxer(cfg Config) *Demuxer {
	return &Demuxer{cfg: cfg, dir: NewDirectory()}
}

// Directory returns the channel directory.
func (d *Demuxer) Directory() *Directory { return d.dir }

// Routes reports whether payloads of type pt are mux messages.
func (d *Demuxer) Routes(pt uint8) bool {
	return pt == d.cfg.ControlPayloadType || pt == d.cfg.KeepAlivePayloadType || d.isChannel(pt)
}

func (d *Demuxer) isChannel(pt uint8) bool {
	return pt >= d.cfg.ChannelMin && pt <= d.cfg.ChannelMax
}

// Decode decodes the RTP payload of a packet with payload type pt sent on
// ssrc. Unrouted payload types yield an *Opaque message.
func (d *Demuxer) Decode(pt uint8, ssrc uint32, payload []byte) (Message, core.Labels, error) {
	var (
		msg Message
		err error
	)
	switch {
	case pt == d.cfg.KeepAlivePayloadType:
		msg, err = ParseKeepAlive(payload)
	case pt == d.cfg.ControlPayloadType:
		msg, err = ParseControl(payload)
	case d.isChannel(pt):
		msg = &DataFrame{ChannelID: pt, Payload: payload}
	default:
		msg = &Opaque{PayloadType: pt, Payload: payload}
	}
	if err != nil {
		return nil, nil, err
	}

	if c, ok := msg.(*Control); ok && c.Opcode == OpcodeCreate && c.ClassName != "" {
		d.dir.Bind(ssrc, c.ClassName)
	}
	return msg, d.labels(msg, ssrc), nil
}

func (d *Demuxer) labels(msg Message, ssrc uint32) core.Labels {
	labels := core.Labels{core.LabelMuxKind: string(msg.Kind())}
	switch m := msg.(type) {
	case *KeepAlive:
		labels[core.LabelMuxKeepAlive] = m.String()
	case *Control:
		labels[core.LabelMuxOpcode] = m.Opcode.String()
		labels[core.LabelMuxSequence] = strconv.Itoa(int(m.Sequence))
		if m.ClassName != "" {
			labels[core.LabelMuxClassName] = m.ClassName
			labels[core.LabelMuxClassKnown] = strconv.FormatBool(m.KnownClass)
		}
	case *DataFrame:
		labels[core.LabelMuxChannelID] = strconv.Itoa(int(m.ChannelID))
		class, ok := d.dir.Lookup(ssrc)
		if !ok {
			break
		}
		labels[core.LabelMuxChannel] = ShortClass(class)
		if t, ok := m.PacketType(); ok {
			if name, ok := PacketTypeName(class, t); ok {
				labels[core.LabelMuxPacketType] = name
			}
		}
	}
	return labels
}

// ParseKeepAlive decodes a keepalive: sequence u16, timestamp u32 and SSRC
// u32, all little-endian.
func ParseKeepAlive(b []byte) (*KeepAlive, error) {
	if len(b) < keepAliveLen {
		return nil, malformed("keepalive needs %d bytes, have %d", keepAliveLen, len(b))
	}
	k := &KeepAlive{
		Sequence:  binary.LittleEndian.Uint16(b[0:2]),
		Timestamp: le32(b[2:6]),
		SSRC:      le32(b[6:10]),
	}
	if len(b) > keepAliveLen {
		k.Trailer = b[keepAliveLen:]
	}
	return k, nil
}

// ParseControl decodes a control message. Every field is read against the
// message's own bounds; unknown opcodes and class names stay opaque.
func ParseControl(b []byte) (*Control, error) {
	r := reader{buf: b}
	c := &Control{}

	var ok bool
	if c.Flags, ok = r.u8(); !ok {
		return nil, r.short("flags")
	}
	if c.Marker, ok = r.u8(); !ok {
		return nil, r.short("marker")
	}

	start := r.off
	if c.Marker&markerExt != 0 && !r.skip(3) {
		return nil, r.short("marker block")
	}
	if c.Flags&flagExtA != 0 && !r.skip(2) {
		return nil, r.short("flag 0x01 block")
	}
	if c.Flags&flagExtB != 0 && !r.skip(6) {
		return nil, r.short("flag 0x40 block")
	}
	if r.off > start {
		c.Preamble = b[start:r.off]
	}

	if c.Flags&flagAck != 0 {
		if c.Ack, ok = r.u16(); !ok {
			return nil, r.short("ack")
		}
		c.HasAck = true
	}
	if c.Sequence, ok = r.u16(); !ok {
		return nil, r.short("sequence")
	}
	op, ok := r.u32()
	if !ok {
		return nil, r.short("opcode")
	}
	c.Opcode = Opcode(op)

	if c.Opcode == OpcodeCreate {
		n, ok := r.u16()
		if !ok {
			return nil, r.short("class name length")
		}
		name, ok := r.bytes(int(n))
		if !ok {
			return nil, malformed("class name length %d overruns %d remaining bytes", n, r.remaining())
		}
		c.ClassName = string(name)
		c.KnownClass = IsKnownClass(c.ClassName)
	}

	if r.remaining() > 0 {
		c.Fields = b[r.off:]
	}
	return c, nil
}

type reader struct {
	buf []byte
	off int
}

func (r *reader) remaining() int { return len(r.buf) - r.off }

func (r *reader) bytes(n int) ([]byte, bool) {
	if n > r.remaining() {
		return nil, false
	}
	b := r.buf[r.off : r.off+n]
	r.off += n
	return b, true
}

func (r *reader) skip(n int) bool {
	_, ok := r.bytes(n)
	return ok
}

func (r *reader) u8() (uint8, bool) {
	b, ok := r.bytes(1)
	if !ok {
		return 0, false
	}
	return b[0], true
}

func (r *reader) u16() (uint16, bool) {
	b, ok := r.bytes(2)
	if !ok {
		return 0, false
	}
	return binary.LittleEndian.Uint16(b), true
}

func (r *reader) u32() (uint32, bool) {
	b, ok := r.bytes(4)
	if !ok {
		return 0, false
	}
	return le32(b), true
}

func (r *reader) short(field string) error {
	return malformed("truncated %s at offset %d of %d", field, r.off, len(r.buf))
}

func le32(b []byte) uint32 { return binary.LittleEndian.Uint32(b) }

func malformed(format string, args ...any) error {
	return core.NewStructuralError("mux",
		fmt.Errorf("%w: %s", core.ErrMalformedMux, fmt.Sprintf(format, args...)))
}
