// Package mux decodes the channel multiplexing protocol carried in RTP
// payloads: keepalives, channel control messages and data-channel frames.
package mux

import "fmt"

// Kind identifies the variant of a Message.
type Kind string

const (
	KindKeepAlive Kind = "keepalive"
	KindControl   Kind = "control"
	KindData      Kind = "data"
	KindOpaque    Kind = "opaque"
)

// Message is one of *KeepAlive, *Control, *DataFrame or *Opaque.
type Message interface {
	Kind() Kind
}

// KeepAlive echoes the sender's sequence, timestamp and SSRC.
type KeepAlive struct {
	Sequence  uint16
	Timestamp uint32
	SSRC      uint32
	Trailer   []byte
}

// Kind implements Message.
func (*KeepAlive) Kind() Kind { return KindKeepAlive }

func (k *KeepAlive) String() string {
	return fmt.Sprintf("%d/%d/0x%08X", k.Sequence, k.Timestamp, k.SSRC)
}

// Opcode is the channel operation of a control message.
type Opcode uint32

const (
	OpcodeCreate Opcode = 2
	OpcodeOpen   Opcode = 3
	OpcodeClose  Opcode = 4
)

func (o Opcode) String() string {
	switch o {
	case OpcodeCreate:
		return "Create"
	case OpcodeOpen:
		return "Open"
	case OpcodeClose:
		return "Close"
	}
	return fmt.Sprintf("Unknown(%d)", uint32(o))
}

// Control is a channel control message. ClassName is only carried by Create.
type Control struct {
	Flags    uint8
	Marker   uint8
	Preamble []byte // Optional opaque blocks selected by Flags and Marker
	Ack      uint16
	HasAck   bool
	Sequence uint16
	Opcode   Opcode

	ClassName  string
	KnownClass bool

	Fields []byte // Trailing bytes after the parsed layout
}

// Kind implements Message.
func (*Control) Kind() Kind { return KindControl }

// DataFrame is a frame on a data channel; the channel is the payload type.
type DataFrame struct {
	ChannelID uint8
	Payload   []byte
}

// Kind implements Message.
func (*DataFrame) Kind() Kind { return KindData }

// PacketType returns the leading u32 little-endian packet type, if present.
func (f *DataFrame) PacketType() (uint32, bool) {
	if len(f.Payload) < 4 {
		return 0, false
	}
	return le32(f.Payload), true
}

// Opaque is a payload of a type the demultiplexer does not decode.
type Opaque struct {
	PayloadType uint8
	Payload     []byte
}

// Kind implements Message.
func (*Opaque) Kind() Kind { return KindOpaque }
