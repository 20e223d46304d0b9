// Package probe implements the UDP connection-probing protocol: Syn probes of
// decreasing size answered by Acks carrying the accepted size.
package probe

import (
	"encoding/binary"
	"fmt"

	"firestige.xyz/gsdump/internal/core"
)

// Type is the u16 little-endian discriminant leading every probe packet.
type Type uint16

const (
	TypeSyn Type = 1
	TypeAck Type = 2
)

func (t Type) String() string {
	switch t {
	case TypeSyn:
		return "syn"
	case TypeAck:
		return "ack"
	}
	return fmt.Sprintf("type(%d)", uint16(t))
}

const (
	// AckLen is the size of a complete Ack.
	AckLen = 6
	// synHeaderLen is type plus data_len in the framed form.
	synHeaderLen = 4
	typeLen      = 2
)

// Packet is a Syn or an Ack.
type Packet interface {
	Type() Type
}

// Syn is a probe of DataLen bytes.
type Syn struct {
	DataLen  int
	Data     []byte
	Embedded bool // Carried in RTP payload without a data_len field
}

// Type implements Packet.
func (*Syn) Type() Type { return TypeSyn }

// Ack acknowledges the largest probe that got through.
type Ack struct {
	AcceptedSize uint16
	Appendix     uint16
	Trailer      []byte // Bytes after the 6-byte Ack
}

// Type implements Packet.
func (*Ack) Type() Type { return TypeAck }

// IsFramed reports whether b is a UDP-level probe: a 6-byte Ack, or a Syn
// whose data_len equals the bytes that follow it.
func IsFramed(b []byte) bool {
	if len(b) < typeLen || b[1] != 0 {
		return false
	}
	switch Type(b[0]) {
	case TypeAck:
		return len(b) == AckLen
	case TypeSyn:
		return len(b) >= synHeaderLen && int(binary.LittleEndian.Uint16(b[2:4])) == len(b)-synHeaderLen
	}
	return false
}

// Parse decodes a UDP-level probe packet.
func Parse(b []byte) (Packet, error) {
	t, err := readType(b)
	if err != nil {
		return nil, err
	}
	switch t {
	case TypeSyn:
		if len(b) < synHeaderLen {
			return nil, malformed("syn header needs %d bytes, have %d", synHeaderLen, len(b))
		}
		dataLen := int(binary.LittleEndian.Uint16(b[2:4]))
		if dataLen != len(b)-synHeaderLen {
			return nil, malformed("syn data_len %d does not match %d payload bytes", dataLen, len(b)-synHeaderLen)
		}
		return &Syn{DataLen: dataLen, Data: b[synHeaderLen:]}, nil
	case TypeAck:
		return parseAck(b)
	}
	return nil, malformed("unknown probe type %d", uint16(t))
}

// ParseEmbedded decodes a probe carried as RTP payload, where a Syn is the
// type followed directly by the probe data.
func ParseEmbedded(b []byte) (Packet, error) {
	t, err := readType(b)
	if err != nil {
		return nil, err
	}
	switch t {
	case TypeSyn:
		return &Syn{DataLen: len(b) - typeLen, Data: b[typeLen:], Embedded: true}, nil
	case TypeAck:
		return parseAck(b)
	}
	return nil, malformed("unknown probe type %d", uint16(t))
}

func readType(b []byte) (Type, error) {
	if len(b) < typeLen {
		return 0, malformed("need %d bytes for type, have %d", typeLen, len(b))
	}
	return Type(binary.LittleEndian.Uint16(b)), nil
}

func parseAck(b []byte) (*Ack, error) {
	if len(b) < AckLen {
		return nil, malformed("ack needs %d bytes, have %d", AckLen, len(b))
	}
	ack := &Ack{
		AcceptedSize: binary.LittleEndian.Uint16(b[2:4]),
		Appendix:     binary.LittleEndian.Uint16(b[4:6]),
	}
	if len(b) > AckLen {
		ack.Trailer = b[AckLen:]
	}
	return ack, nil
}

func malformed(format string, args ...any) error {
	return core.NewStructuralError("probe",
		fmt.Errorf("%w: %s", core.ErrMalformedProbe, fmt.Sprintf(format, args...)))
}
