// Package core defines core types with zero external dependencies.
package core

// Kind is the outermost variant of a DecodedRecord.
type Kind string

const (
	KindSTUN    Kind = "stun"
	KindProbe   Kind = "probe"
	KindRTP     Kind = "rtp"
	KindRTCP    Kind = "rtcp"
	KindUnknown Kind = "unknown"
	KindNonUDP  Kind = "non-udp"
)

// Kinds lists every record kind in display order.
var Kinds = []Kind{KindSTUN, KindProbe, KindRTP, KindRTCP, KindUnknown, KindNonUDP}

func (k Kind) String() string { return string(k) }
