package plugin

import (
	"net/netip"

	"firestige.xyz/gsdump/internal/core"
)

// Parser parses one application protocol carried in a UDP payload.
type Parser interface {
	Plugin
	CanHandle(dg *core.Datagram) bool
	// Handle returns the typed message and its labels. Malformed input
	// yields a *core.StructuralError.
	Handle(dg *core.Datagram) (payload any, labels core.Labels, err error)
}

// FlowKey identifies one direction of a UDP flow.
type FlowKey struct {
	Src netip.AddrPort
	Dst netip.AddrPort
}

// Reverse returns the key of the opposite direction.
func (k FlowKey) Reverse() FlowKey {
	return FlowKey{Src: k.Dst, Dst: k.Src}
}

func (k FlowKey) String() string {
	return k.Src.String() + " -> " + k.Dst.String()
}

// FlowKeyOf returns the flow key of a datagram.
func FlowKeyOf(dg *core.Datagram) FlowKey {
	return FlowKey{Src: dg.Src, Dst: dg.Dst}
}
