package decoder

import (
	"net/netip"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

const (
	ipv6HeaderLen = 40
	// Teredo origin indication: 0x0000, port and address, obfuscated.
	teredoOriginLen = 8
)

var teredoPrefix = netip.MustParsePrefix("2001::/32")

type innerDatagram struct {
	src, dst netip.AddrPort
	payload  []byte
}

// teredoDecoder decodes the IPv6/UDP packet carried in a Teredo datagram.
type teredoDecoder struct {
	parser  *gopacket.DecodingLayerParser
	decoded []gopacket.LayerType
	ip6     layers.IPv6
	udp     layers.UDP
}

func (t *teredoDecoder) init() {
	t.parser = gopacket.NewDecodingLayerParser(layers.LayerTypeIPv6, &t.ip6, &t.udp)
	t.parser.IgnoreUnsupported = true
	t.decoded = make([]gopacket.LayerType, 0, 2)
}

// unwrap returns the inner datagram when b is IPv6 with a Teredo address on
// either side carrying UDP.
func (t *teredoDecoder) unwrap(b []byte) (innerDatagram, bool) {
	if len(b) >= teredoOriginLen && b[0] == 0x00 && b[1] == 0x00 {
		b = b[teredoOriginLen:]
	}
	if len(b) < ipv6HeaderLen || b[0]>>4 != 6 {
		return innerDatagram{}, false
	}
	if err := t.parser.DecodeLayers(b, &t.decoded); err != nil {
		return innerDatagram{}, false
	}
	if len(t.decoded) != 2 || t.decoded[1] != layers.LayerTypeUDP {
		return innerDatagram{}, false
	}

	src, _ := netip.AddrFromSlice(t.ip6.SrcIP)
	dst, _ := netip.AddrFromSlice(t.ip6.DstIP)
	if !teredoPrefix.Contains(src) && !teredoPrefix.Contains(dst) {
		return innerDatagram{}, false
	}
	return innerDatagram{
		src:     netip.AddrPortFrom(src, uint16(t.udp.SrcPort)),
		dst:     netip.AddrPortFrom(dst, uint16(t.udp.DstPort)),
		payload: t.udp.Payload,
	}, true
}

// TeredoClient extracts the client's public endpoint from a Teredo address:
// the port and IPv4 address are stored inverted in the low 48 bits.
func TeredoClient(addr netip.Addr) (netip.AddrPort, bool) {
	if !addr.Is6() || !teredoPrefix.Contains(addr) {
		return netip.AddrPort{}, false
	}
	a := addr.As16()
	port := uint16(a[10])<<8 | uint16(a[11])
	v4 := [4]byte{a[12], a[13], a[14], a[15]}
	for i := range v4 {
		v4[i] ^= 0xff
	}
	return netip.AddrPortFrom(netip.AddrFrom4(v4), port^0xffff), true
}
