package stun

import (
	"encoding/binary"
	"errors"
	"net"
	"net/netip"
	"testing"

	"github.com/pion/stun"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"firestige.xyz/gsdump/internal/core"
)

// magicCookie is the fixed RFC 5389 cookie at bytes 4-8 of every message.
const magicCookie uint32 = 0x2112A442

var testTID = [stun.TransactionIDSize]byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08, 0x09, 0x0a, 0x0b, 0x0c}

func buildMessage(t *testing.T, setters ...stun.Setter) []byte {
	t.Helper()
	all := append([]stun.Setter{stun.NewTransactionIDSetter(testTID)}, setters...)
	m, err := stun.Build(all...)
	require.NoError(t, err)
	return m.Raw
}

func TestParse_XORMappedAddress(t *testing.T) {
	raw := buildMessage(t,
		stun.BindingSuccess,
		&stun.XORMappedAddress{IP: net.IPv4(203, 0, 113, 7), Port: 3074},
	)

	msg, err := Parse(raw)
	require.NoError(t, err)

	assert.Equal(t, stun.ClassSuccessResponse, msg.Class)
	assert.Equal(t, stun.MethodBinding, msg.Method)
	assert.Equal(t, testTID, msg.TransactionID)
	assert.Equal(t, "0102030405060708090a0b0c", msg.TransactionIDHex())
	require.Len(t, msg.Attributes, 1)

	attr := msg.Attributes[0]
	assert.Equal(t, stun.AttrXORMappedAddress, attr.Type)
	assert.True(t, attr.Known)
	assert.Equal(t, "203.0.113.7:3074", attr.Text)
	assert.Equal(t, netip.MustParseAddrPort("203.0.113.7:3074"), msg.MappedAddress)
}

func TestParse_BindingRequestAttributes(t *testing.T) {
	raw := buildMessage(t,
		stun.BindingRequest,
		stun.NewUsername("remote:local"),
		stun.NewSoftware("console"),
		stun.Fingerprint,
	)

	msg, err := Parse(raw)
	require.NoError(t, err)

	assert.Equal(t, stun.ClassRequest, msg.Class)
	assert.Equal(t, "remote:local", msg.Username)
	require.Len(t, msg.Attributes, 3)
	assert.Equal(t, stun.AttrUsername, msg.Attributes[0].Type)
	assert.Equal(t, stun.AttrSoftware, msg.Attributes[1].Type)
	assert.Equal(t, "console", msg.Attributes[1].Text)
	assert.Equal(t, stun.AttrFingerprint, msg.Attributes[2].Type)
	assert.True(t, msg.Attributes[2].Known)

	labels := msg.Labels()
	assert.Equal(t, "remote:local", labels[core.LabelSTUNUsername])
	assert.Equal(t, "3", labels[core.LabelSTUNAttrCount])
	assert.NotContains(t, labels, core.LabelSTUNMappedAddress)
}

func TestParse_UnknownAttributeKeptOpaque(t *testing.T) {
	raw := buildMessage(t,
		stun.BindingRequest,
		stun.RawAttribute{Type: stun.AttrType(0x8070), Value: []byte{0xde, 0xad, 0xbe, 0xef}},
	)

	msg, err := Parse(raw)
	require.NoError(t, err)
	require.Len(t, msg.Attributes, 1)
	assert.False(t, msg.Attributes[0].Known)
	assert.Equal(t, []byte{0xde, 0xad, 0xbe, 0xef}, msg.Attributes[0].Value)
}

func TestParse_AttributeOverrun(t *testing.T) {
	raw := make([]byte, 28)
	binary.BigEndian.PutUint16(raw[0:2], 0x0001)
	binary.BigEndian.PutUint16(raw[2:4], 8)
	binary.BigEndian.PutUint32(raw[4:8], magicCookie)
	copy(raw[8:20], testTID[:])
	binary.BigEndian.PutUint16(raw[20:22], uint16(stun.AttrUsername))
	binary.BigEndian.PutUint16(raw[22:24], 100)

	_, err := Parse(raw)
	require.Error(t, err)
	assert.True(t, core.IsStructural(err))
	assert.Equal(t, "stun", core.Layer(err))
	assert.True(t, errors.Is(err, core.ErrMalformedSTUN))
}

func TestParse_NotSTUN(t *testing.T) {
	_, err := Parse([]byte{0x80, 0x60, 0x00, 0x01})
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrMalformedSTUN))
}

func TestParser_Handle(t *testing.T) {
	p := NewParser()
	assert.Equal(t, "stun", p.Name())

	raw := buildMessage(t, stun.BindingRequest)
	dg := &core.Datagram{Payload: raw}
	require.True(t, p.CanHandle(dg))

	msg, labels, err := p.Handle(dg)
	require.NoError(t, err)
	assert.IsType(t, &Message{}, msg)
	assert.Equal(t, "request", labels[core.LabelSTUNClass])
	assert.Equal(t, "Binding", labels[core.LabelSTUNMethod])

	assert.False(t, p.CanHandle(&core.Datagram{Payload: []byte{0x80, 0x60}}))
}
