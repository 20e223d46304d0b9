package mux

import (
	"encoding/binary"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"firestige.xyz/gsdump/internal/core"
)

func cat(parts ...[]byte) []byte {
	var out []byte
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

func createBody(prefix []byte, class string, trailer int) []byte {
	n := make([]byte, 2)
	binary.LittleEndian.PutUint16(n, uint16(len(class)))
	return cat(prefix, n, []byte(class), make([]byte, trailer))
}

// Captured control messages, header bytes as observed.
var (
	createControl = createBody([]byte{
		0x14, 0xc1, 0x0a, 0xf4, 0x01, 0x64, 0x00, 0x64, 0x00, 0x02, 0x00, 0x00, 0x00,
	}, ClassControl, 12)
	openControl = []byte{
		0x14, 0xc0, 0x64, 0x00, 0x65, 0x00, 0x03, 0x00, 0x00, 0x00,
		0x02, 0x00, 0x00, 0x00, 0x02, 0x00, 0x00, 0x00,
	}
	createQoS = createBody([]byte{
		0x45, 0xc0, 0x66, 0x00, 0x30, 0x1d, 0x00, 0x00, 0x00, 0x2a, 0x67, 0x00, 0x02, 0x00, 0x00, 0x00,
	}, ClassQoS, 6)
	openNoAck = []byte{
		0x04, 0xc0, 0x68, 0x00, 0x03, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
	}
	createVideo = createBody([]byte{
		0x04, 0xc0, 0x69, 0x00, 0x02, 0x00, 0x00, 0x00,
	}, ClassVideo, 10)
)

func TestParseControl_Samples(t *testing.T) {
	tests := []struct {
		name      string
		in        []byte
		opcode    Opcode
		seq       uint16
		hasAck    bool
		ack       uint16
		preamble  int
		class     string
		fieldsLen int
	}{
		{"create control", createControl, OpcodeCreate, 0x64, true, 0x64, 3, ClassControl, 12},
		{"open", openControl, OpcodeOpen, 0x65, true, 0x64, 0, "", 8},
		{"create qos", createQoS, OpcodeCreate, 0x67, false, 0, 8, ClassQoS, 6},
		{"open without ack", openNoAck, OpcodeOpen, 0x68, false, 0, 0, "", 6},
		{"create video", createVideo, OpcodeCreate, 0x69, false, 0, 0, ClassVideo, 10},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := ParseControl(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.opcode, c.Opcode)
			assert.Equal(t, tt.seq, c.Sequence)
			assert.Equal(t, tt.hasAck, c.HasAck)
			assert.Equal(t, tt.ack, c.Ack)
			assert.Len(t, c.Preamble, tt.preamble)
			assert.Equal(t, tt.class, c.ClassName)
			assert.Len(t, c.Fields, tt.fieldsLen)
			if tt.class != "" {
				assert.True(t, c.KnownClass)
			}
		})
	}
}

func TestParseControl_ExactClassName(t *testing.T) {
	c, err := ParseControl(createControl)
	require.NoError(t, err)
	assert.Equal(t, "Microsoft::Basix::Dct::Channel::Class::Control", c.ClassName)
}

func TestParseControl_UnknownClassKept(t *testing.T) {
	in := createBody([]byte{0x04, 0xc0, 0x01, 0x00, 0x02, 0x00, 0x00, 0x00}, "Microsoft::Basix::Dct::Channel::Class::Haptics", 4)
	c, err := ParseControl(in)
	require.NoError(t, err)
	assert.Equal(t, "Microsoft::Basix::Dct::Channel::Class::Haptics", c.ClassName)
	assert.False(t, c.KnownClass)
	assert.Len(t, c.Fields, 4)
}

func TestParseControl_UnknownOpcode(t *testing.T) {
	c, err := ParseControl([]byte{0x04, 0xc0, 0x01, 0x00, 0x09, 0x00, 0x00, 0x00, 0xaa})
	require.NoError(t, err)
	assert.Equal(t, Opcode(9), c.Opcode)
	assert.Equal(t, "Unknown(9)", c.Opcode.String())
	assert.Equal(t, []byte{0xaa}, c.Fields)
}

func TestParseControl_Truncated(t *testing.T) {
	overrun := createBody([]byte{0x04, 0xc0, 0x01, 0x00, 0x02, 0x00, 0x00, 0x00}, ClassControl, 0)
	overrun = overrun[:len(overrun)-5]

	tests := []struct {
		name string
		in   []byte
	}{
		{"empty", nil},
		{"flags only", []byte{0x14}},
		{"marker block cut", []byte{0x14, 0xc1, 0x0a}},
		{"ack cut", []byte{0x14, 0xc0, 0x64}},
		{"opcode cut", []byte{0x04, 0xc0, 0x01, 0x00, 0x02, 0x00}},
		{"class name overrun", overrun},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseControl(tt.in)
			require.Error(t, err)
			assert.True(t, core.IsStructural(err))
			assert.True(t, errors.Is(err, core.ErrMalformedMux))
			assert.Equal(t, "mux", core.Layer(err))
		})
	}
}

func TestParseKeepAlive(t *testing.T) {
	b := []byte{0x34, 0x12, 0x78, 0x56, 0x34, 0x12, 0xef, 0xbe, 0xad, 0xde, 0xff}
	k, err := ParseKeepAlive(b)
	require.NoError(t, err)
	assert.Equal(t, uint16(0x1234), k.Sequence)
	assert.Equal(t, uint32(0x12345678), k.Timestamp)
	assert.Equal(t, uint32(0xdeadbeef), k.SSRC)
	assert.Equal(t, []byte{0xff}, k.Trailer)
	assert.Equal(t, "4660/305419896/0xDEADBEEF", k.String())

	_, err = ParseKeepAlive(b[:9])
	assert.True(t, core.IsStructural(err))
}

func TestDemuxer_Decode(t *testing.T) {
	d := NewDemuxer(DefaultConfig())

	msg, labels, err := d.Decode(0x61, 0x1111, createVideo)
	require.NoError(t, err)
	assert.Equal(t, KindControl, msg.Kind())
	assert.Equal(t, "control", labels[core.LabelMuxKind])
	assert.Equal(t, ClassVideo, labels[core.LabelMuxClassName])
	assert.Equal(t, "true", labels[core.LabelMuxClassKnown])
	assert.Equal(t, "Create", labels[core.LabelMuxOpcode])
	assert.Equal(t, 1, d.Directory().Len())

	frame := []byte{0x04, 0x00, 0x00, 0x00, 0xde, 0xad}
	msg, labels, err = d.Decode(0x23, 0x1111, frame)
	require.NoError(t, err)
	df, ok := msg.(*DataFrame)
	require.True(t, ok)
	assert.Equal(t, uint8(0x23), df.ChannelID)
	assert.Equal(t, "35", labels[core.LabelMuxChannelID])
	assert.Equal(t, "Video", labels[core.LabelMuxChannel])
	assert.Equal(t, "Data", labels[core.LabelMuxPacketType])

	// A frame on an SSRC without a Create carries no channel labels.
	_, labels, err = d.Decode(0x24, 0x2222, frame)
	require.NoError(t, err)
	assert.NotContains(t, labels, core.LabelMuxChannel)

	msg, labels, err = d.Decode(0x65, 0x1111, make([]byte, 10))
	require.NoError(t, err)
	assert.Equal(t, KindKeepAlive, msg.Kind())
	assert.Equal(t, "0/0/0x00000000", labels[core.LabelMuxKeepAlive])

	msg, _, err = d.Decode(0x60, 0x1111, []byte{1, 2, 3})
	require.NoError(t, err)
	assert.Equal(t, KindOpaque, msg.Kind())

	_, _, err = d.Decode(0x61, 0x1111, []byte{0x14})
	assert.True(t, core.IsStructural(err))
}

func TestDemuxer_Routes(t *testing.T) {
	d := NewDemuxer(DefaultConfig())
	for _, pt := range []uint8{0x61, 0x65, 0x23, 0x30, 0x3f} {
		assert.True(t, d.Routes(pt), "pt 0x%02x", pt)
	}
	for _, pt := range []uint8{0x22, 0x40, 0x60, 0x66, 0x7f} {
		assert.False(t, d.Routes(pt), "pt 0x%02x", pt)
	}
}

func TestPacketTypeName(t *testing.T) {
	tests := []struct {
		class string
		t     uint32
		want  string
		ok    bool
	}{
		{ClassAudio, 1, "ServerHandshake", true},
		{ClassVideo, 4, "Data", true},
		{ClassQoS, 6, "ClientPolicy", true},
		{ClassInput, 7, "FrameV4", true},
		{ClassMessaging, 3, "CancelRequest", true},
		{ClassMessaging, 4, "", false},
		{ClassControl, 1, "", false},
		{ClassAudio, 0, "", false},
	}
	for _, tt := range tests {
		got, ok := PacketTypeName(tt.class, tt.t)
		assert.Equal(t, tt.want, got)
		assert.Equal(t, tt.ok, ok)
	}
}
