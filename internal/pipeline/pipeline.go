// Package pipeline implements the decode loop: frames from a capturer are
// turned into datagrams, dissected, and handed to every reporter in order.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"firestige.xyz/gsdump/internal/core"
	"firestige.xyz/gsdump/internal/dissect"
	"firestige.xyz/gsdump/internal/metrics"
	"firestige.xyz/gsdump/pkg/plugin"
)

// Decoder extracts the UDP datagram of one frame.
type Decoder interface {
	Decode(raw core.RawPacket) (*core.Datagram, error)
}

// Pipeline represents a single-threaded decode chain over one capture.
type Pipeline struct {
	capturer  plugin.Capturer
	decoder   Decoder
	dissector *dissect.Dissector
	reporters []plugin.Reporter
	metrics   *metrics.Metrics // optional
	counters  *Metrics

	bufferSize int
	next       int

	wg sync.WaitGroup
}

// Config contains pipeline configuration.
type Config struct {
	Capturer   plugin.Capturer
	Decoder    Decoder
	Dissector  *dissect.Dissector // nil decodes plaintext with defaults
	Reporters  []plugin.Reporter
	Metrics    *metrics.Metrics
	BufferSize int // Raw packet channel buffer size
}

// New creates a new pipeline.
func New(cfg Config) *Pipeline {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 1024
	}
	if cfg.Dissector == nil {
		cfg.Dissector = dissect.New(dissect.DefaultConfig())
	}
	return &Pipeline{
		capturer:   cfg.Capturer,
		decoder:    cfg.Decoder,
		dissector:  cfg.Dissector,
		reporters:  cfg.Reporters,
		metrics:    cfg.Metrics,
		counters:   NewMetrics(),
		bufferSize: cfg.BufferSize,
	}
}

// Run consumes the whole capture. Individual records that fail to decode
// are reported inline; only capture and reporter errors end the run early.
func (p *Pipeline) Run(ctx context.Context) error {
	if p.capturer == nil || p.decoder == nil {
		return fmt.Errorf("pipeline: capturer and decoder are required: %w", core.ErrConfigInvalid)
	}

	slog.Info("pipeline starting",
		"capturer", p.capturer.Name(),
		"reporters", len(p.reporters),
		"decrypting", p.dissector.Decrypting())

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	frames := make(chan core.RawPacket, p.bufferSize)
	captureErr := make(chan error, 1)

	p.wg.Add(1)
	go p.captureLoop(ctx, frames, captureErr)

	runErr := p.processLoop(ctx, frames)
	if runErr != nil {
		cancel()
		// Unblock the capturer if it is waiting on a full channel.
		for range frames {
		}
	}
	p.wg.Wait()

	if err := <-captureErr; err != nil && runErr == nil {
		runErr = err
	}
	if err := p.flush(context.WithoutCancel(ctx)); err != nil && runErr == nil {
		runErr = err
	}

	stats := p.Stats()
	if stats.IntegrityFailures > 0 {
		slog.Warn("srtp integrity failures", "count", stats.IntegrityFailures, "sessions", p.dissector.Sessions())
	}
	slog.Info("pipeline stopped",
		"received", stats.Received,
		"decoded", stats.Decoded,
		"decode_errors", stats.DecodeErrors,
		"parsed", stats.Parsed,
		"parse_errors", stats.ParseErrors,
		"reported", stats.Reported,
		"report_errors", stats.ReportErrors)
	return runErr
}

// captureLoop reads frames from the capturer and sends them to processing.
func (p *Pipeline) captureLoop(ctx context.Context, frames chan<- core.RawPacket, errc chan<- error) {
	defer p.wg.Done()
	defer close(frames)

	err := p.capturer.Capture(ctx, frames)
	if err != nil && ctx.Err() != nil && errors.Is(err, ctx.Err()) {
		err = nil
	}
	if err != nil {
		slog.Error("capture failed", "capturer", p.capturer.Name(), "error", err)
		err = fmt.Errorf("capture: %w", err)
	}
	errc <- err
}

// processLoop is the main processing loop.
func (p *Pipeline) processLoop(ctx context.Context, frames <-chan core.RawPacket) error {
	for raw := range frames {
		p.counters.Received.Add(1)
		if err := p.processPacket(ctx, raw); err != nil {
			return err
		}
	}
	return ctx.Err()
}

// processPacket turns one frame into exactly one record and reports it.
func (p *Pipeline) processPacket(ctx context.Context, raw core.RawPacket) error {
	raw.Index = p.next
	p.next++

	var rec *core.DecodedRecord
	dg, err := p.decoder.Decode(raw)
	if err != nil {
		p.counters.DecodeErrors.Add(1)
		slog.Debug("frame carries no udp datagram", "index", raw.Index, "error", err)
		rec = dissect.NonUDP(raw, err)
	} else {
		p.counters.Decoded.Add(1)
		rec = p.dissector.Dissect(dg)
	}

	if rec.Kind != core.KindNonUDP {
		if rec.Failed() {
			p.counters.ParseErrors.Add(1)
		} else {
			p.counters.Parsed.Add(1)
		}
	}
	if rec.Integrity != nil {
		p.counters.IntegrityFailures.Add(1)
	}
	if p.metrics != nil {
		p.metrics.Observe(rec)
		p.metrics.SetSessions(p.dissector.Sessions())
	}

	for _, reporter := range p.reporters {
		if err := reporter.Report(ctx, rec); err != nil {
			p.counters.ReportErrors.Add(1)
			slog.Error("reporter failed", "reporter", reporter.Name(), "index", rec.Index, "error", err)
			return fmt.Errorf("reporter %s: %w", reporter.Name(), err)
		}
	}
	p.counters.Reported.Add(1)
	return nil
}

func (p *Pipeline) flush(ctx context.Context) error {
	var errs []error
	for _, reporter := range p.reporters {
		if err := reporter.Flush(ctx); err != nil {
			slog.Error("reporter flush failed", "reporter", reporter.Name(), "error", err)
			errs = append(errs, fmt.Errorf("flush %s: %w", reporter.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// Dissector returns the dissector holding the run's decode state.
func (p *Pipeline) Dissector() *dissect.Dissector { return p.dissector }

// Stats returns pipeline statistics.
func (p *Pipeline) Stats() Stats {
	return Stats{
		Received:          p.counters.Received.Load(),
		Decoded:           p.counters.Decoded.Load(),
		DecodeErrors:      p.counters.DecodeErrors.Load(),
		Parsed:            p.counters.Parsed.Load(),
		ParseErrors:       p.counters.ParseErrors.Load(),
		Reported:          p.counters.Reported.Load(),
		ReportErrors:      p.counters.ReportErrors.Load(),
		IntegrityFailures: p.counters.IntegrityFailures.Load(),
	}
}

// Stats represents pipeline statistics.
type Stats struct {
	Received          uint64 // Frames read from the capture
	Decoded           uint64 // Frames that carried a UDP datagram
	DecodeErrors      uint64 // Frames emitted as non-udp records
	Parsed            uint64
	ParseErrors       uint64 // Datagram records marked as failures
	Reported          uint64
	ReportErrors      uint64
	IntegrityFailures uint64
}
