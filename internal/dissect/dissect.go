// Package dissect turns one datagram into one decoded record by running the
// classifier, the protocol parsers and the SRTP engine in turn.
package dissect

import (
	"errors"
	"fmt"
	"log/slog"
	"net/netip"
	"strconv"

	"firestige.xyz/gsdump/internal/classify"
	"firestige.xyz/gsdump/internal/core"
	"firestige.xyz/gsdump/internal/core/decoder"
	"firestige.xyz/gsdump/internal/srtp"
	"firestige.xyz/gsdump/pkg/plugin"
	"firestige.xyz/gsdump/plugins/parser/mux"
	"firestige.xyz/gsdump/plugins/parser/probe"
	rtpparser "firestige.xyz/gsdump/plugins/parser/rtp"
	stunparser "firestige.xyz/gsdump/plugins/parser/stun"
)

// Config wires the stateful components of a dissector.
type Config struct {
	// Engine removes SRTP protection; nil treats RTP payloads as plaintext.
	Engine *srtp.Engine
	// Probe parses and correlates connection probes; nil uses defaults.
	Probe *probe.Parser
	// Mux selects the payload types handed to the demultiplexer.
	Mux mux.Config
	// ProbingPayloadType is the RTP payload type carrying embedded probes.
	ProbingPayloadType uint8
}

// DefaultConfig returns a plaintext configuration with the service's
// payload-type assignment.
func DefaultConfig() Config {
	return Config{
		Mux:                mux.DefaultConfig(),
		ProbingPayloadType: rtpparser.PayloadTypeUDPConnectionProbing,
	}
}

// Media is the message of an RTP record.
type Media struct {
	RTP   *rtpparser.Packet
	SRTP  *srtp.Result // Set when the packet was decrypted
	Mux   mux.Message  // Set for payload types routed to the demultiplexer
	Probe probe.Packet // Set for embedded connection probes
}

// route binds a classifier verdict to the parser that owns it.
type route struct {
	class  classify.Class
	kind   core.Kind
	parser plugin.Parser
}

// Dissector owns all per-capture decode state. It must be fed datagrams in
// capture order from a single goroutine.
type Dissector struct {
	engine     *srtp.Engine
	routes     []route
	probe      *probe.Parser
	demux      *mux.Demuxer
	probingPT  uint8
	integrityN uint64
}

// New creates a dissector.
func New(cfg Config) *Dissector {
	p := cfg.Probe
	if p == nil {
		p = probe.NewParser()
	}
	return &Dissector{
		engine: cfg.Engine,
		routes: []route{
			{class: classify.STUN, kind: core.KindSTUN, parser: stunparser.NewSTUNParser()},
			{class: classify.Probe, kind: core.KindProbe, parser: p},
			{class: classify.SrtpRtp, kind: core.KindRTP, parser: rtpparser.NewRTPParser()},
		},
		probe:     p,
		demux:     mux.NewDemuxer(cfg.Mux),
		probingPT: cfg.ProbingPayloadType,
	}
}

// Parsers returns the protocol parsers in classification order.
func (d *Dissector) Parsers() []plugin.Parser {
	out := make([]plugin.Parser, len(d.routes))
	for i, r := range d.routes {
		out[i] = r.parser
	}
	return out
}

// Decrypting reports whether an SRTP engine is configured.
func (d *Dissector) Decrypting() bool { return d.engine != nil }

// IntegrityFailures returns the number of packets whose tag did not verify.
func (d *Dissector) IntegrityFailures() uint64 { return d.integrityN }

// Sessions returns the number of SRTP sessions created so far.
func (d *Dissector) Sessions() int {
	if d.engine == nil {
		return 0
	}
	return d.engine.Sessions()
}

// Demuxer exposes the mux demultiplexer and its channel directory.
func (d *Dissector) Demuxer() *mux.Demuxer { return d.demux }

// NonUDP builds the record of a frame that carries no UDP datagram.
func NonUDP(raw core.RawPacket, cause error) *core.DecodedRecord {
	rec := &core.DecodedRecord{
		Index:     raw.Index,
		Timestamp: raw.Timestamp,
		Kind:      core.KindNonUDP,
		Labels:    core.Labels{},
		Frame:     raw,
	}
	if errors.Is(cause, core.ErrPacketTooShort) {
		rec.Err = core.NewStructuralError("frame", cause)
	}
	return rec
}

// Dissect decodes one datagram. It never fails: malformed input produces a
// record with Err set.
func (d *Dissector) Dissect(dg *core.Datagram) *core.DecodedRecord {
	rec := &core.DecodedRecord{
		Index:         dg.Frame.Index,
		Timestamp:     dg.Frame.Timestamp,
		Src:           dg.Src,
		Dst:           dg.Dst,
		Tunnel:        dg.Tunnel,
		Labels:        core.Labels{},
		Payload:       dg.Payload,
		Frame:         dg.Frame,
		PayloadOffset: dg.PayloadOffset,
	}
	if dg.Tunnel != "" {
		rec.Labels[core.LabelTunnel] = dg.Tunnel
		if dg.Tunnel == core.TunnelTeredo {
			d.labelTeredoClient(rec, dg)
		}
	}

	rec.Kind = core.KindUnknown
	class := classify.Classify(dg.Payload).Class
	for _, r := range d.routes {
		if r.class != class || !r.parser.CanHandle(dg) {
			continue
		}
		rec.Kind = r.kind
		if class == classify.SrtpRtp {
			d.dissectRTP(rec, dg, r.parser)
		} else {
			msg, labels, err := r.parser.Handle(dg)
			d.apply(rec, msg, labels, err)
		}
		break
	}

	if rec.Err != nil {
		slog.Debug("record decode failed", "index", rec.Index, "kind", rec.Kind, "error", rec.Err)
	}
	return rec
}

func (d *Dissector) labelTeredoClient(rec *core.DecodedRecord, dg *core.Datagram) {
	for _, ep := range []netip.AddrPort{dg.Src, dg.Dst} {
		if client, ok := decoder.TeredoClient(ep.Addr()); ok {
			rec.Labels[core.LabelTeredoClient] = client.String()
			return
		}
	}
}

func (d *Dissector) apply(rec *core.DecodedRecord, msg any, labels core.Labels, err error) {
	if err != nil {
		rec.Err = err
		return
	}
	rec.Message = msg
	merge(rec.Labels, labels)
}

// dissectRTP handles the RTP class. RTCP is parsed as captured; RTP is
// decrypted first when an engine is configured and then parsed as plaintext.
func (d *Dissector) dissectRTP(rec *core.DecodedRecord, dg *core.Datagram, parser plugin.Parser) {
	payload := dg.Payload
	if rtpparser.IsRTCP(payload) {
		rec.Kind = core.KindRTCP
		msg, labels, err := parser.Handle(dg)
		d.apply(rec, msg, labels, err)
		return
	}

	media := &Media{}
	plain := payload
	if d.engine != nil {
		h, n, err := rtpparser.ParseHeader(payload)
		if err != nil {
			rec.Err = err
			return
		}
		res, err := d.engine.Decrypt(payload, n, h.SSRC, h.SequenceNumber)
		if err != nil {
			rec.Err = err
			return
		}
		media.SRTP = &res
		plain = res.Plaintext
		rec.Plaintext = res.Plaintext
		rec.Labels[core.LabelSRTPIndex] = strconv.FormatUint(res.Index, 10)
		rec.Labels[core.LabelSRTPROC] = strconv.FormatUint(uint64(res.ROC), 10)
		if res.Authenticated() {
			rec.Labels[core.LabelSRTPAuth] = "ok"
		} else {
			rec.Labels[core.LabelSRTPAuth] = "failed"
			rec.Integrity = res.Integrity
			d.integrityN++
			slog.Debug("srtp integrity failure", "index", rec.Index, "error", res.Integrity)
		}
	}

	plainDG := *dg
	plainDG.Payload = plain
	msg, labels, err := parser.Handle(&plainDG)
	if err != nil {
		rec.Err = err
		return
	}
	pkt, ok := msg.(*rtpparser.Packet)
	if !ok {
		rec.Err = core.NewStructuralError("rtp", fmt.Errorf("%w: plaintext is not RTP", core.ErrMalformedRTP))
		return
	}
	media.RTP = pkt
	rec.Message = media
	merge(rec.Labels, labels)

	pt := pkt.Header.PayloadType
	switch {
	case pt == d.probingPT:
		p, labels, err := d.probe.HandleEmbedded(dg, pkt.Payload)
		if err != nil {
			rec.Err = err
			return
		}
		media.Probe = p
		merge(rec.Labels, labels)
	case d.demux.Routes(pt):
		m, labels, err := d.demux.Decode(pt, pkt.Header.SSRC, pkt.Payload)
		if err != nil {
			rec.Err = err
			return
		}
		media.Mux = m
		merge(rec.Labels, labels)
	}
}

func merge(dst, src core.Labels) {
	for k, v := range src {
		dst[k] = v
	}
}

// Describe renders the typed message of a record in one line.
func Describe(rec *core.DecodedRecord) string {
	switch m := rec.Message.(type) {
	case *stunparser.Message:
		return fmt.Sprintf("%s %s id=%s attrs=%d", m.Method, m.Class, m.TransactionIDHex(), len(m.Attributes))
	case *Media:
		return describeMedia(m)
	case *rtpparser.RTCPPacket:
		return fmt.Sprintf("%s ssrc=0x%08X", m.Header.Type, m.SSRC)
	case probe.Packet:
		return describeProbe(m)
	}
	return ""
}

func describeMedia(m *Media) string {
	h := &m.RTP.Header
	s := fmt.Sprintf("%s seq=%d ts=%d ssrc=0x%08X len=%d",
		rtpparser.PayloadTypeName(h.PayloadType), h.SequenceNumber, h.Timestamp, h.SSRC, len(m.RTP.Payload))
	switch v := m.Mux.(type) {
	case *mux.KeepAlive:
		s += " keepalive=" + v.String()
	case *mux.Control:
		s += fmt.Sprintf(" control op=%s seq=%d", v.Opcode, v.Sequence)
		if v.ClassName != "" {
			s += fmt.Sprintf(" class=%q", v.ClassName)
		}
	case *mux.DataFrame:
		s += fmt.Sprintf(" channel=%d", v.ChannelID)
	}
	if m.Probe != nil {
		s += " " + describeProbe(m.Probe)
	}
	return s
}

func describeProbe(p probe.Packet) string {
	switch v := p.(type) {
	case *probe.Syn:
		return fmt.Sprintf("Syn(DataLen=%d)", v.DataLen)
	case *probe.Ack:
		return fmt.Sprintf("Ack(AcceptedSize=%d, Appendix=%d)", v.AcceptedSize, v.Appendix)
	}
	return ""
}
