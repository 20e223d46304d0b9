// Package stun implements the STUN connectivity-check parser.
//
// Framing is decoded by pion/stun. Attributes the parser knows are rendered
// into text; every other attribute is kept as an opaque (type, value) pair
// in wire order.
package stun

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"net/netip"
	"strconv"

	"github.com/pion/stun"

	"firestige.xyz/gsdump/internal/core"
	"firestige.xyz/gsdump/pkg/plugin"
)

// Message is a decoded STUN message.
type Message struct {
	Class         stun.MessageClass
	Method        stun.Method
	Length        uint16 // Declared attribute section length
	TransactionID [stun.TransactionIDSize]byte
	Attributes    []Attribute

	MappedAddress netip.AddrPort // From XOR-MAPPED-ADDRESS, else MAPPED-ADDRESS
	Username      string
}

// Attribute is one attribute in wire order.
type Attribute struct {
	Type  stun.AttrType
	Value []byte
	Known bool   // Value was decoded into Text
	Text  string // Rendered value of a known attribute
}

// Name returns the registered attribute name or its hex type.
func (a Attribute) Name() string { return a.Type.String() }

// TransactionIDHex returns the transaction ID as 24 hex digits.
func (m *Message) TransactionIDHex() string { return hex.EncodeToString(m.TransactionID[:]) }

// Parser decodes STUN messages.
type Parser struct {
	name string
}

// NewParser creates a STUN parser.
func NewParser() *Parser {
	return &Parser{name: "stun"}
}

// NewSTUNParser returns the parser as a plugin.
func NewSTUNParser() plugin.Parser { return NewParser() }

// Name returns the plugin identifier.
func (p *Parser) Name() string { return p.name }

// Init is a no-op; the parser has no configuration.
func (p *Parser) Init(_ map[string]any) error { return nil }

// Start is a no-op.
func (p *Parser) Start(_ context.Context) error { return nil }

// Stop is a no-op.
func (p *Parser) Stop(_ context.Context) error { return nil }

// CanHandle checks the length and the magic cookie.
func (p *Parser) CanHandle(dg *core.Datagram) bool {
	return stun.IsMessage(dg.Payload)
}

// Handle decodes the datagram payload.
func (p *Parser) Handle(dg *core.Datagram) (any, core.Labels, error) {
	msg, err := Parse(dg.Payload)
	if err != nil {
		return nil, nil, err
	}
	return msg, msg.Labels(), nil
}

// Parse decodes one STUN message. Framing errors are StructuralErrors.
func Parse(b []byte) (*Message, error) {
	if !stun.IsMessage(b) {
		return nil, core.NewStructuralError("stun",
			fmt.Errorf("%w: no magic cookie in %d bytes", core.ErrMalformedSTUN, len(b)))
	}

	m := &stun.Message{Raw: append([]byte(nil), b...)}
	if err := m.Decode(); err != nil {
		return nil, core.NewStructuralError("stun", fmt.Errorf("%w: %v", core.ErrMalformedSTUN, err))
	}

	msg := &Message{
		Class:         m.Type.Class,
		Method:        m.Type.Method,
		Length:        uint16(m.Length),
		TransactionID: m.TransactionID,
		Attributes:    make([]Attribute, 0, len(m.Attributes)),
	}
	for _, raw := range m.Attributes {
		attr := Attribute{Type: raw.Type, Value: raw.Value}
		attr.Text, attr.Known = renderAttribute(m, raw)
		msg.Attributes = append(msg.Attributes, attr)
	}

	var xor stun.XORMappedAddress
	var mapped stun.MappedAddress
	if err := xor.GetFrom(m); err == nil {
		msg.MappedAddress = toAddrPort(xor.IP, xor.Port)
	} else if err := mapped.GetFrom(m); err == nil {
		msg.MappedAddress = toAddrPort(mapped.IP, mapped.Port)
	}
	var user stun.Username
	if err := user.GetFrom(m); err == nil {
		msg.Username = string(user)
	}
	return msg, nil
}

// renderAttribute decodes attributes with a known layout. A known type with a
// malformed value stays opaque.
func renderAttribute(m *stun.Message, raw stun.RawAttribute) (string, bool) {
	v := raw.Value
	switch raw.Type {
	case stun.AttrXORMappedAddress:
		var a stun.XORMappedAddress
		if err := a.GetFromAs(m, raw.Type); err != nil {
			return "", false
		}
		return toAddrPort(a.IP, a.Port).String(), true
	case stun.AttrMappedAddress:
		var a stun.MappedAddress
		if err := a.GetFromAs(m, raw.Type); err != nil {
			return "", false
		}
		return toAddrPort(a.IP, a.Port).String(), true
	case stun.AttrUsername, stun.AttrSoftware, stun.AttrRealm, stun.AttrNonce:
		return string(v), true
	case stun.AttrErrorCode:
		var ec stun.ErrorCodeAttribute
		if err := ec.GetFrom(m); err != nil {
			return "", false
		}
		return ec.String(), true
	case stun.AttrPriority, stun.AttrFingerprint:
		if len(v) != 4 {
			return "", false
		}
		if raw.Type == stun.AttrFingerprint {
			return fmt.Sprintf("0x%08X", binary.BigEndian.Uint32(v)), true
		}
		return strconv.FormatUint(uint64(binary.BigEndian.Uint32(v)), 10), true
	case stun.AttrICEControlled, stun.AttrICEControlling:
		if len(v) != 8 {
			return "", false
		}
		return fmt.Sprintf("0x%016X", binary.BigEndian.Uint64(v)), true
	case stun.AttrUseCandidate:
		return "", len(v) == 0
	case stun.AttrMessageIntegrity:
		return hex.EncodeToString(v), len(v) == 20
	}
	return "", false
}

func toAddrPort(ip []byte, port int) netip.AddrPort {
	addr, ok := netip.AddrFromSlice(ip)
	if !ok {
		return netip.AddrPort{}
	}
	return netip.AddrPortFrom(addr.Unmap(), uint16(port))
}

// Labels returns the display labels of the message.
func (m *Message) Labels() core.Labels {
	labels := core.Labels{
		core.LabelSTUNClass:         m.Class.String(),
		core.LabelSTUNMethod:        m.Method.String(),
		core.LabelSTUNTransactionID: m.TransactionIDHex(),
		core.LabelSTUNAttrCount:     strconv.Itoa(len(m.Attributes)),
	}
	if m.MappedAddress.IsValid() {
		labels[core.LabelSTUNMappedAddress] = m.MappedAddress.String()
	}
	if m.Username != "" {
		labels[core.LabelSTUNUsername] = m.Username
	}
	return labels
}
