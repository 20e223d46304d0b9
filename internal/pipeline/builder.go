// Package pipeline implements pipeline construction.
package pipeline

import (
	"firestige.xyz/gsdump/internal/dissect"
	"firestige.xyz/gsdump/internal/metrics"
	"firestige.xyz/gsdump/pkg/plugin"
)

// Builder provides a fluent interface for building pipelines.
// This is an alternative to using Config directly.
type Builder struct {
	config Config
}

// NewBuilder creates a new pipeline builder.
func NewBuilder() *Builder {
	return &Builder{
		config: Config{
			BufferSize: 1024, // default
		},
	}
}

// WithCapturer sets the frame source.
func (b *Builder) WithCapturer(c plugin.Capturer) *Builder {
	b.config.Capturer = c
	return b
}

// WithDecoder sets the datagram extractor.
func (b *Builder) WithDecoder(d Decoder) *Builder {
	b.config.Decoder = d
	return b
}

// WithDissector sets the dissector.
func (b *Builder) WithDissector(d *dissect.Dissector) *Builder {
	b.config.Dissector = d
	return b
}

// WithReporters sets the reporter chain.
func (b *Builder) WithReporters(reporters ...plugin.Reporter) *Builder {
	b.config.Reporters = reporters
	return b
}

// WithMetrics sets the Prometheus collectors updated per record.
func (b *Builder) WithMetrics(m *metrics.Metrics) *Builder {
	b.config.Metrics = m
	return b
}

// WithBufferSize sets the raw packet channel buffer size.
func (b *Builder) WithBufferSize(size int) *Builder {
	b.config.BufferSize = size
	return b
}

// Build creates the pipeline.
func (b *Builder) Build() *Pipeline {
	return New(b.config)
}
