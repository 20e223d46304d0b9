// Package decoder extracts UDP datagrams from link-layer frames.
package decoder

import (
	"fmt"
	"net/netip"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"

	"firestige.xyz/gsdump/internal/core"
)

// Config controls optional decapsulation.
type Config struct {
	// Teredo unwraps IPv6-over-UDP (RFC 4380) and reports inner endpoints.
	Teredo bool
}

// DefaultConfig enables every decapsulation.
func DefaultConfig() Config {
	return Config{Teredo: true}
}

// Decoder turns frames into datagrams. The layer structs are reused between
// calls, so a Decoder is not safe for concurrent use.
type Decoder struct {
	cfg      Config
	linkType layers.LinkType
	parsers  map[gopacket.LayerType]*gopacket.DecodingLayerParser
	decoded  []gopacket.LayerType

	eth   layers.Ethernet
	dot1q layers.Dot1Q
	sll   layers.LinuxSLL
	loop  layers.Loopback
	ip4   layers.IPv4
	ip6   layers.IPv6
	udp   layers.UDP

	teredo teredoDecoder
}

// New creates a decoder for frames of linkType.
func New(linkType layers.LinkType, cfg Config) (*Decoder, error) {
	d := &Decoder{
		cfg:      cfg,
		linkType: linkType,
		parsers:  make(map[gopacket.LayerType]*gopacket.DecodingLayerParser),
		decoded:  make([]gopacket.LayerType, 0, 8),
	}
	first, err := d.firstLayers()
	if err != nil {
		return nil, err
	}
	for _, lt := range first {
		p := gopacket.NewDecodingLayerParser(lt,
			&d.eth, &d.dot1q, &d.sll, &d.loop, &d.ip4, &d.ip6, &d.udp)
		p.IgnoreUnsupported = true
		d.parsers[lt] = p
	}
	d.teredo.init()
	return d, nil
}

func (d *Decoder) firstLayers() ([]gopacket.LayerType, error) {
	switch d.linkType {
	case layers.LinkTypeEthernet:
		return []gopacket.LayerType{layers.LayerTypeEthernet}, nil
	case layers.LinkTypeLinuxSLL:
		return []gopacket.LayerType{layers.LayerTypeLinuxSLL}, nil
	case layers.LinkTypeNull, layers.LinkTypeLoop:
		return []gopacket.LayerType{layers.LayerTypeLoopback}, nil
	case layers.LinkTypeRaw, layers.LinkTypeIPv4, layers.LinkTypeIPv6:
		return []gopacket.LayerType{layers.LayerTypeIPv4, layers.LayerTypeIPv6}, nil
	}
	return nil, fmt.Errorf("%w: link type %s", core.ErrUnsupportedProto, d.linkType)
}

// LinkType returns the link type the decoder was built for.
func (d *Decoder) LinkType() layers.LinkType { return d.linkType }

// Decode extracts the UDP datagram carried by raw. Frames without a complete
// UDP header (ARP, TCP, IP fragments, truncated frames) return an error
// wrapping core.ErrUnsupportedProto or core.ErrPacketTooShort.
func (d *Decoder) Decode(raw core.RawPacket) (*core.Datagram, error) {
	p := d.parserFor(raw.Data)
	if p == nil {
		return nil, fmt.Errorf("%w: not an IP packet", core.ErrUnsupportedProto)
	}

	err := p.DecodeLayers(raw.Data, &d.decoded)

	var (
		src, dst netip.Addr
		haveIP   bool
		haveUDP  bool
	)
	for _, lt := range d.decoded {
		switch lt {
		case layers.LayerTypeIPv4:
			src, _ = netip.AddrFromSlice(d.ip4.SrcIP.To4())
			dst, _ = netip.AddrFromSlice(d.ip4.DstIP.To4())
			haveIP = true
		case layers.LayerTypeIPv6:
			src, _ = netip.AddrFromSlice(d.ip6.SrcIP)
			dst, _ = netip.AddrFromSlice(d.ip6.DstIP)
			haveIP = true
		case layers.LayerTypeUDP:
			haveUDP = true
		}
	}
	if !haveUDP {
		if err != nil {
			return nil, fmt.Errorf("%w: %v", core.ErrPacketTooShort, err)
		}
		if !haveIP {
			return nil, fmt.Errorf("%w: no IP layer", core.ErrUnsupportedProto)
		}
		return nil, fmt.Errorf("%w: no UDP layer", core.ErrUnsupportedProto)
	}

	dg := &core.Datagram{
		Frame:   raw,
		Src:     netip.AddrPortFrom(src, uint16(d.udp.SrcPort)),
		Dst:     netip.AddrPortFrom(dst, uint16(d.udp.DstPort)),
		Payload: d.udp.Payload,
	}
	if d.cfg.Teredo {
		if inner, ok := d.teredo.unwrap(d.udp.Payload); ok {
			dg.Src, dg.Dst = inner.src, inner.dst
			dg.Payload = inner.payload
			dg.Tunnel = core.TunnelTeredo
		}
	}
	dg.PayloadOffset = offsetOf(raw.Data, dg.Payload)
	return dg, nil
}

func (d *Decoder) parserFor(data []byte) *gopacket.DecodingLayerParser {
	if len(d.parsers) == 1 {
		for _, p := range d.parsers {
			return p
		}
	}
	if len(data) == 0 {
		return nil
	}
	switch data[0] >> 4 {
	case 4:
		return d.parsers[layers.LayerTypeIPv4]
	case 6:
		return d.parsers[layers.LayerTypeIPv6]
	}
	return nil
}

// offsetOf returns the position of sub inside frame. sub must be a subslice
// of frame.
func offsetOf(frame, sub []byte) int {
	return cap(frame) - cap(sub)
}
