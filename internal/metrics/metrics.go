// Package metrics implements Prometheus metrics for a decode run.
package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"firestige.xyz/gsdump/internal/core"
)

// Metrics holds the collectors of one run, registered on a private registry
// so that repeated runs in one process start from zero.
type Metrics struct {
	registry *prometheus.Registry

	// RecordsTotal counts emitted records by kind
	RecordsTotal *prometheus.CounterVec

	// DecodeFailuresTotal counts failure markers by the layer that failed
	DecodeFailuresTotal *prometheus.CounterVec

	// IntegrityFailuresTotal counts SRTP packets whose tag did not verify
	IntegrityFailuresTotal prometheus.Counter

	// SRTPSessions tracks the number of SSRCs with derived session keys
	SRTPSessions prometheus.Gauge

	// ProbeMatchesTotal counts correlated probe Acks by match quality
	ProbeMatchesTotal *prometheus.CounterVec

	// RecordBytes measures UDP payload sizes
	RecordBytes prometheus.Histogram
}

// New creates the collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Metrics{
		registry: reg,
		RecordsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gsdump_records_total",
				Help: "Total number of decoded records",
			},
			[]string{"kind"},
		),
		DecodeFailuresTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gsdump_decode_failures_total",
				Help: "Total number of records that failed to decode",
			},
			[]string{"layer"},
		),
		IntegrityFailuresTotal: f.NewCounter(
			prometheus.CounterOpts{
				Name: "gsdump_srtp_integrity_failures_total",
				Help: "Total number of SRTP packets with a mismatching authentication tag",
			},
		),
		SRTPSessions: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "gsdump_srtp_sessions",
				Help: "Number of SRTP sessions (one per SSRC)",
			},
		),
		ProbeMatchesTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gsdump_probe_matches_total",
				Help: "Total number of probe Acks correlated with a Syn",
			},
			[]string{"result"},
		),
		RecordBytes: f.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "gsdump_record_bytes",
				Help:    "UDP payload size of decoded records",
				Buckets: prometheus.ExponentialBuckets(16, 2, 8), // 16 to 2048
			},
		),
	}
}

// Registry returns the registry holding the collectors.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Observe accounts for one emitted record.
func (m *Metrics) Observe(rec *core.DecodedRecord) {
	m.RecordsTotal.WithLabelValues(string(rec.Kind)).Inc()
	if rec.Kind != core.KindNonUDP {
		m.RecordBytes.Observe(float64(len(rec.Payload)))
	}
	if rec.Err != nil {
		layer := core.Layer(rec.Err)
		if layer == "" {
			layer = "unknown"
		}
		m.DecodeFailuresTotal.WithLabelValues(layer).Inc()
	}
	if rec.Integrity != nil {
		m.IntegrityFailuresTotal.Inc()
	}
	if exact, ok := rec.Labels[core.LabelProbeMatchExact]; ok {
		result := "nearest"
		if exact == "true" {
			result = "exact"
		}
		m.ProbeMatchesTotal.WithLabelValues(result).Inc()
	}
}

// SetSessions records the current SRTP session count.
func (m *Metrics) SetSessions(n int) {
	m.SRTPSessions.Set(float64(n))
}

// WriteTextfile writes all collectors in the text exposition format, for
// node_exporter's textfile collector.
func (m *Metrics) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("metrics: write %s: %w", path, err)
	}
	return nil
}
