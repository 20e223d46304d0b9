package probe

import (
	"context"
	"fmt"
	"strconv"

	"github.com/mitchellh/mapstructure"

	"firestige.xyz/gsdump/internal/core"
	"firestige.xyz/gsdump/pkg/plugin"
)

// Config is the probe parser configuration.
type Config struct {
	Lookback int `mapstructure:"lookback"`
}

// Parser decodes probe packets and annotates them with round correlation.
type Parser struct {
	name       string
	config     Config
	correlator *Correlator
}

// NewParser creates a probe parser with the default lookback.
func NewParser() *Parser {
	return &Parser{
		name:       "probe",
		config:     Config{Lookback: DefaultLookback},
		correlator: NewCorrelator(DefaultLookback),
	}
}

var _ plugin.Parser = (*Parser)(nil)

// Name returns the plugin identifier.
func (p *Parser) Name() string { return p.name }

// Init applies the configuration and resets correlation state.
func (p *Parser) Init(cfg map[string]any) error {
	if err := mapstructure.Decode(cfg, &p.config); err != nil {
		return fmt.Errorf("%w: probe: %w", core.ErrConfigInvalid, err)
	}
	if p.config.Lookback < 0 {
		return fmt.Errorf("%w: probe lookback %d", core.ErrConfigInvalid, p.config.Lookback)
	}
	p.correlator = NewCorrelator(p.config.Lookback)
	return nil
}

// Start is a no-op.
func (p *Parser) Start(_ context.Context) error { return nil }

// Stop is a no-op.
func (p *Parser) Stop(_ context.Context) error { return nil }

// Correlator exposes the correlation state.
func (p *Parser) Correlator() *Correlator { return p.correlator }

// CanHandle matches framed UDP-level probes.
func (p *Parser) CanHandle(dg *core.Datagram) bool {
	return IsFramed(dg.Payload)
}

// Handle decodes a framed probe and correlates it.
func (p *Parser) Handle(dg *core.Datagram) (any, core.Labels, error) {
	pkt, err := Parse(dg.Payload)
	if err != nil {
		return nil, nil, err
	}
	return pkt, p.annotate(dg, pkt), nil
}

// HandleEmbedded decodes a probe carried in an RTP payload and correlates it
// on the datagram's flow.
func (p *Parser) HandleEmbedded(dg *core.Datagram, payload []byte) (Packet, core.Labels, error) {
	pkt, err := ParseEmbedded(payload)
	if err != nil {
		return nil, nil, err
	}
	return pkt, p.annotate(dg, pkt), nil
}

func (p *Parser) annotate(dg *core.Datagram, pkt Packet) core.Labels {
	flow := plugin.FlowKeyOf(dg)
	labels := core.Labels{core.LabelProbeType: pkt.Type().String()}

	switch v := pkt.(type) {
	case *Syn:
		labels[core.LabelProbeDataLen] = strconv.Itoa(v.DataLen)
		round := p.correlator.Syn(flow, dg.Frame.Index, v.DataLen)
		labels[core.LabelProbeRound] = strconv.Itoa(round)
	case *Ack:
		labels[core.LabelProbeAcceptedSize] = strconv.Itoa(int(v.AcceptedSize))
		labels[core.LabelProbeAppendix] = strconv.Itoa(int(v.Appendix))
		if m, ok := p.correlator.Ack(flow, int(v.AcceptedSize)); ok {
			labels[core.LabelProbeMatch] = strconv.Itoa(m.SynRecord)
			labels[core.LabelProbeRound] = strconv.Itoa(m.Round)
			labels[core.LabelProbeMatchExact] = strconv.FormatBool(m.Exact)
		}
	}
	return labels
}
