// Package rtp implements the RTP header parser and the RTCP side-path.
//
// The parser works on plaintext packets: either packets that were never
// protected, or the output of the SRTP engine. ParseHeader only reads the
// clear-text header and is safe to call on SRTP ciphertext to find the SSRC,
// the sequence number and the payload offset.
//
// RTCP is distinguished from RTP by packet-type values 200–209 in the second
// byte. RTCP packets are labelled from their common header only.
package rtp

import (
	"context"
	"encoding/binary"
	"fmt"
	"strconv"

	"github.com/pion/rtcp"
	"github.com/pion/rtp"

	"firestige.xyz/gsdump/internal/core"
	"firestige.xyz/gsdump/pkg/plugin"
)

const (
	rtcpPayloadTypeMin = 200
	rtcpPayloadTypeMax = 209

	rtpMinLength  = 12 // Fixed RTP header size (RFC 3550 §5.1)
	rtcpMinLength = 8  // Fixed RTCP common header + sender SSRC

	rtpVersion = 2
)

// Packet is a parsed plaintext RTP packet.
type Packet struct {
	Header rtp.Header
	// HeaderLen covers the fixed header, CSRCs and the extension block.
	HeaderLen int
	// ExtensionRaw is the whole extension block including its 4-byte
	// profile/length prefix; nil without the X bit.
	ExtensionRaw []byte
	Payload      []byte
	PaddingLen   int
}

// RTCPPacket is the common header of an RTCP packet.
type RTCPPacket struct {
	Header rtcp.Header
	SSRC   uint32
}

// ParseHeader decodes the RTP header of b and returns it with the offset of
// the payload. The payload itself is not inspected.
func ParseHeader(b []byte) (rtp.Header, int, error) {
	var h rtp.Header
	if len(b) < rtpMinLength {
		return h, 0, malformed("rtp", "payload too short for RTP header (%d bytes)", len(b))
	}
	if v := b[0] >> 6; v != rtpVersion {
		return h, 0, malformed("rtp", "unexpected RTP version %d", v)
	}
	n, err := h.Unmarshal(b)
	if err != nil {
		return h, 0, malformed("rtp", "%v", err)
	}
	return h, n, nil
}

// Parse decodes a plaintext RTP packet, stripping padding from the payload.
func Parse(b []byte) (*Packet, error) {
	h, n, err := ParseHeader(b)
	if err != nil {
		return nil, err
	}
	pkt := &Packet{Header: h, HeaderLen: n}
	if h.Extension {
		start := rtpMinLength + 4*len(h.CSRC)
		pkt.ExtensionRaw = b[start:n]
	}

	end := len(b)
	if h.Padding {
		if end == n {
			return nil, malformed("rtp", "padding bit set on empty payload")
		}
		pad := int(b[end-1])
		if pad == 0 || pad > end-n {
			return nil, malformed("rtp", "padding length %d exceeds %d payload bytes", pad, end-n)
		}
		pkt.PaddingLen = pad
		end -= pad
	}
	pkt.Payload = b[n:end]
	return pkt, nil
}

// ParseRTCP decodes the RTCP common header and the first SSRC.
func ParseRTCP(b []byte) (*RTCPPacket, error) {
	if len(b) < rtcpMinLength {
		return nil, malformed("rtcp", "payload too short for RTCP header (%d bytes)", len(b))
	}
	var h rtcp.Header
	if err := h.Unmarshal(b); err != nil {
		return nil, malformed("rtcp", "%v", err)
	}
	return &RTCPPacket{Header: h, SSRC: binary.BigEndian.Uint32(b[4:8])}, nil
}

// IsRTCP reports whether b carries an RTCP packet type.
func IsRTCP(b []byte) bool {
	return len(b) >= 2 && b[1] >= rtcpPayloadTypeMin && b[1] <= rtcpPayloadTypeMax
}

// Labels returns the display labels of the packet.
func (p *Packet) Labels() core.Labels {
	h := &p.Header
	return core.Labels{
		core.LabelRTPVersion:     strconv.Itoa(int(h.Version)),
		core.LabelRTPPayloadType: strconv.Itoa(int(h.PayloadType)),
		core.LabelRTPPayloadName: PayloadTypeName(h.PayloadType),
		core.LabelRTPSeq:         strconv.Itoa(int(h.SequenceNumber)),
		core.LabelRTPTimestamp:   strconv.FormatUint(uint64(h.Timestamp), 10),
		core.LabelRTPSSRC:        fmt.Sprintf("0x%08X", h.SSRC),
		core.LabelRTPMarker:      boolStr(h.Marker),
		core.LabelRTPExtension:   boolStr(h.Extension),
		core.LabelRTPCSRCCount:   strconv.Itoa(len(h.CSRC)),
		core.LabelRTPPayloadLen:  strconv.Itoa(len(p.Payload)),
	}
}

// Labels returns the display labels of the RTCP header.
func (p *RTCPPacket) Labels() core.Labels {
	return core.Labels{
		core.LabelRTCPPayloadType: strconv.Itoa(int(p.Header.Type)),
		core.LabelRTCPTypeName:    p.Header.Type.String(),
		core.LabelRTCPSSRC:        fmt.Sprintf("0x%08X", p.SSRC),
	}
}

// Parser parses plaintext RTP and RTCP datagrams.
type Parser struct {
	name string
}

// NewParser creates a parser.
func NewParser() *Parser {
	return &Parser{name: "rtp"}
}

// NewRTPParser returns the parser as a plugin.
func NewRTPParser() plugin.Parser { return NewParser() }

// Name returns the plugin identifier.
func (p *Parser) Name() string { return p.name }

// Init is a no-op.
func (p *Parser) Init(_ map[string]any) error { return nil }

// Start is a no-op.
func (p *Parser) Start(_ context.Context) error { return nil }

// Stop is a no-op.
func (p *Parser) Stop(_ context.Context) error { return nil }

// CanHandle accepts any version 2 payload. Length problems surface from
// Handle as structural errors so that short packets are still reported as RTP.
func (p *Parser) CanHandle(dg *core.Datagram) bool {
	return len(dg.Payload) > 0 && dg.Payload[0]>>6 == rtpVersion
}

// Handle returns a *Packet or an *RTCPPacket.
func (p *Parser) Handle(dg *core.Datagram) (any, core.Labels, error) {
	if IsRTCP(dg.Payload) {
		pkt, err := ParseRTCP(dg.Payload)
		if err != nil {
			return nil, nil, err
		}
		return pkt, pkt.Labels(), nil
	}
	pkt, err := Parse(dg.Payload)
	if err != nil {
		return nil, nil, err
	}
	return pkt, pkt.Labels(), nil
}

func malformed(layer, format string, args ...any) error {
	return core.NewStructuralError(layer,
		fmt.Errorf("%w: %s", core.ErrMalformedRTP, fmt.Sprintf(format, args...)))
}

// boolStr converts a bool to "true"/"false" string for label values.
func boolStr(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
