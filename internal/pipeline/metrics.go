// Package pipeline implements pipeline metrics.
package pipeline

import (
	"sync/atomic"
)

// Metrics contains the pipeline's counters.
type Metrics struct {
	Received          atomic.Uint64
	Decoded           atomic.Uint64
	DecodeErrors      atomic.Uint64
	Parsed            atomic.Uint64
	ParseErrors       atomic.Uint64
	Reported          atomic.Uint64
	ReportErrors      atomic.Uint64
	IntegrityFailures atomic.Uint64
}

// NewMetrics creates a new metrics instance.
func NewMetrics() *Metrics {
	return &Metrics{}
}
