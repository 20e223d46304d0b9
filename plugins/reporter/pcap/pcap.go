// Package pcap implements the rewrite reporter: it writes every frame back
// to a new capture, with the SRTP payload of decrypted frames replaced by
// the recovered plaintext RTP packet.
package pcap

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync/atomic"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	"github.com/mitchellh/mapstructure"

	"firestige.xyz/gsdump/internal/core"
	"firestige.xyz/gsdump/pkg/plugin"
)

const (
	pluginName     = "pcap"
	defaultSnapLen = 262144
)

// Config represents rewrite reporter configuration.
type Config struct {
	Path     string `mapstructure:"path"`      // required
	LinkType int    `mapstructure:"link_type"` // link type of the source capture
	SnapLen  int    `mapstructure:"snap_len"`  // optional, default 262144
}

// PcapReporter writes one output frame per record.
type PcapReporter struct {
	name   string
	config Config

	f  *os.File
	bw *bufio.Writer
	w  *pcapgo.Writer

	written   atomic.Uint64
	rewritten atomic.Uint64
}

// NewPcapReporter creates a new rewrite reporter.
func NewPcapReporter() plugin.Reporter {
	return &PcapReporter{name: pluginName}
}

// Name returns the plugin name.
func (r *PcapReporter) Name() string {
	return r.name
}

// Init creates the output file and writes its header.
func (r *PcapReporter) Init(config map[string]any) error {
	r.config = Config{LinkType: int(layers.LinkTypeEthernet), SnapLen: defaultSnapLen}
	if err := mapstructure.Decode(config, &r.config); err != nil {
		return fmt.Errorf("%w: pcap: %w", core.ErrConfigInvalid, err)
	}
	if r.config.Path == "" {
		return fmt.Errorf("pcap: path is required: %w", core.ErrConfigInvalid)
	}
	if r.config.LinkType < 0 || r.config.LinkType > 0xFFFF {
		return fmt.Errorf("pcap: invalid link_type %d: %w", r.config.LinkType, core.ErrConfigInvalid)
	}
	if r.config.SnapLen <= 0 {
		r.config.SnapLen = defaultSnapLen
	}

	f, err := os.Create(r.config.Path)
	if err != nil {
		return fmt.Errorf("pcap: %w", err)
	}
	bw := bufio.NewWriter(f)
	w := pcapgo.NewWriterNanos(bw)
	if err := w.WriteFileHeader(uint32(r.config.SnapLen), layers.LinkType(r.config.LinkType)); err != nil {
		f.Close()
		return fmt.Errorf("pcap: write header: %w", err)
	}
	r.f, r.bw, r.w = f, bw, w
	return nil
}

// Start starts the reporter.
func (r *PcapReporter) Start(ctx context.Context) error {
	slog.Info("pcap reporter started", "path", r.config.Path, "link_type", layers.LinkType(r.config.LinkType).String())
	return nil
}

// Stop flushes and closes the output file.
func (r *PcapReporter) Stop(ctx context.Context) error {
	if r.f == nil {
		return nil
	}
	slog.Info("pcap reporter stopped",
		"path", r.config.Path,
		"frames", r.written.Load(),
		"rewritten", r.rewritten.Load())

	err := r.bw.Flush()
	if cerr := r.f.Close(); err == nil {
		err = cerr
	}
	r.f = nil
	return err
}

// Report writes the frame of rec, substituting the plaintext when present.
func (r *PcapReporter) Report(ctx context.Context, rec *core.DecodedRecord) error {
	if rec == nil {
		return fmt.Errorf("pcap: nil record")
	}
	if r.w == nil {
		return fmt.Errorf("pcap: reporter not initialized")
	}

	data, ci := Rewrite(rec)
	if err := r.w.WritePacket(ci, data); err != nil {
		return fmt.Errorf("pcap: write frame %d: %w", rec.Index, err)
	}
	r.written.Add(1)
	if rec.Decrypted() {
		r.rewritten.Add(1)
	}
	return nil
}

// Flush writes buffered frames to the file.
func (r *PcapReporter) Flush(ctx context.Context) error {
	if r.bw == nil {
		return nil
	}
	return r.bw.Flush()
}

// Rewrite returns the output frame of rec and its capture info. Records
// without a recovered plaintext keep their frame byte-identical. Otherwise
// the UDP payload is replaced in place and every other byte, the outer
// length fields included, is copied unchanged; only the record lengths
// follow the new frame size.
func Rewrite(rec *core.DecodedRecord) ([]byte, gopacket.CaptureInfo) {
	frame := rec.Frame.Data
	origLen := int(rec.Frame.OrigLen)
	if origLen < len(frame) {
		origLen = len(frame)
	}

	out := frame
	start := rec.PayloadOffset
	end := start + len(rec.Payload)
	if rec.Decrypted() && start >= 0 && end <= len(frame) {
		out = make([]byte, 0, len(frame)-len(rec.Payload)+len(rec.Plaintext))
		out = append(out, frame[:start]...)
		out = append(out, rec.Plaintext...)
		out = append(out, frame[end:]...)
		origLen += len(out) - len(frame)
	}

	return out, gopacket.CaptureInfo{
		Timestamp:     rec.Frame.Timestamp,
		CaptureLength: len(out),
		Length:        origLen,
	}
}
