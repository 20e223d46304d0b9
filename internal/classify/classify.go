// Package classify decides which parser owns a UDP payload from its leading
// bytes and length.
package classify

import (
	"github.com/pion/stun"

	"firestige.xyz/gsdump/plugins/parser/probe"
)

// Class is the outer protocol of a UDP payload.
type Class uint8

const (
	Unknown Class = iota
	STUN
	Probe
	SrtpRtp
)

func (c Class) String() string {
	switch c {
	case STUN:
		return "stun"
	case Probe:
		return "probe"
	case SrtpRtp:
		return "srtp"
	}
	return "unknown"
}

const rtpVersion = 2

// Packet is a classified payload. It is consumed exactly once downstream.
type Packet struct {
	Class     Class
	ProbeType probe.Type // Set when Class is Probe
	Payload   []byte
}

// Classify tags payload. Rules are tried in order: STUN magic cookie, framed
// probe, RTP version 2. Anything else is Unknown.
func Classify(payload []byte) Packet {
	pkt := Packet{Class: Unknown, Payload: payload}
	switch {
	case stun.IsMessage(payload):
		pkt.Class = STUN
	case probe.IsFramed(payload):
		pkt.Class = Probe
		pkt.ProbeType = probe.Type(payload[0])
	case len(payload) > 0 && payload[0]>>6 == rtpVersion:
		pkt.Class = SrtpRtp
	}
	return pkt
}

// IsRTCP reports whether an RTP-version payload is an RTCP packet, whose
// packet type in the second byte falls in 200-209.
func IsRTCP(payload []byte) bool {
	return len(payload) >= 2 && payload[1] >= 200 && payload[1] <= 209
}
