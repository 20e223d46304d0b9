// Package console implements the text and JSON record reporter.
// One line per record goes to stdout; unknown and failed records are
// followed by a hexdump of their payload.
package console

import (
	"bufio"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/netip"
	"os"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/mitchellh/mapstructure"

	"firestige.xyz/gsdump/internal/core"
	"firestige.xyz/gsdump/internal/dissect"
	"firestige.xyz/gsdump/pkg/plugin"
)

const (
	FormatText = "text"
	FormatJSON = "json"
	FormatNone = "none"
)

// ConsoleReporter writes records to the console.
type ConsoleReporter struct {
	name          string
	config        Config
	w             *bufio.Writer
	reportedCount atomic.Uint64
}

// Config represents console reporter configuration.
type Config struct {
	Format  string `mapstructure:"format"`  // "text", "json" or "none", default "text"
	Hexdump bool   `mapstructure:"hexdump"` // default true
}

// NewConsoleReporter creates a new console reporter.
func NewConsoleReporter() plugin.Reporter {
	return NewWriterReporter(os.Stdout)
}

// NewWriterReporter creates a console reporter writing to w.
func NewWriterReporter(w io.Writer) *ConsoleReporter {
	return &ConsoleReporter{
		name:   "console",
		config: Config{Format: FormatText, Hexdump: true},
		w:      bufio.NewWriter(w),
	}
}

// Name returns the plugin name.
func (r *ConsoleReporter) Name() string {
	return r.name
}

// Init initializes the reporter with configuration.
func (r *ConsoleReporter) Init(config map[string]any) error {
	if config == nil {
		return nil
	}
	if err := mapstructure.Decode(config, &r.config); err != nil {
		return fmt.Errorf("%w: console: %w", core.ErrConfigInvalid, err)
	}
	switch r.config.Format {
	case FormatText, FormatJSON, FormatNone:
	default:
		return fmt.Errorf("console: invalid format %q, must be text, json or none: %w",
			r.config.Format, core.ErrConfigInvalid)
	}
	return nil
}

// Start starts the reporter.
func (r *ConsoleReporter) Start(ctx context.Context) error {
	slog.Info("console reporter started", "format", r.config.Format, "hexdump", r.config.Hexdump)
	return nil
}

// Stop stops the reporter.
func (r *ConsoleReporter) Stop(ctx context.Context) error {
	slog.Info("console reporter stopped", "total_reported", r.reportedCount.Load())
	return r.w.Flush()
}

// Report writes one record.
func (r *ConsoleReporter) Report(ctx context.Context, rec *core.DecodedRecord) error {
	if rec == nil {
		return fmt.Errorf("console: nil record")
	}
	r.reportedCount.Add(1)

	switch r.config.Format {
	case FormatJSON:
		return r.reportJSON(rec)
	case FormatNone:
		return nil
	}
	return r.reportText(rec)
}

// dumpBytes returns the bytes shown in a hexdump, or nil when the record
// gets none.
func (r *ConsoleReporter) dumpBytes(rec *core.DecodedRecord) []byte {
	if !r.config.Hexdump {
		return nil
	}
	switch {
	case rec.Kind == core.KindUnknown:
		return rec.Payload
	case rec.Failed() && rec.Kind == core.KindNonUDP:
		return rec.Frame.Data
	case rec.Failed():
		return rec.Payload
	}
	return nil
}

// reportText outputs the record in human-readable text format.
func (r *ConsoleReporter) reportText(rec *core.DecodedRecord) error {
	var b strings.Builder
	fmt.Fprintf(&b, "#%d %s %s -> %s %s",
		rec.Index,
		rec.Timestamp.UTC().Format("15:04:05.000000"),
		endpoint(rec.Src), endpoint(rec.Dst),
		rec.Kind,
	)
	if s := dissect.Describe(rec); s != "" {
		b.WriteString(" ")
		b.WriteString(s)
	}
	if len(rec.Labels) > 0 {
		b.WriteString(" {")
		b.WriteString(formatLabels(rec.Labels))
		b.WriteString("}")
	}
	if rec.Integrity != nil {
		b.WriteString(" integrity=failed")
	}
	if rec.Err != nil {
		fmt.Fprintf(&b, " error=%q", rec.Err.Error())
	}
	if rec.Kind != core.KindNonUDP {
		fmt.Fprintf(&b, " payload_len=%d", len(rec.Payload))
	}
	b.WriteString("\n")

	if data := r.dumpBytes(rec); len(data) > 0 {
		b.WriteString(hex.Dump(data))
	}
	_, err := r.w.WriteString(b.String())
	return err
}

// reportJSON outputs the record as one JSON object per line.
func (r *ConsoleReporter) reportJSON(rec *core.DecodedRecord) error {
	output := map[string]any{
		"index":     rec.Index,
		"timestamp": rec.Timestamp.UTC().Format(time.RFC3339Nano),
		"kind":      rec.Kind,
		"labels":    rec.Labels,
	}
	if rec.Src.IsValid() {
		output["src"] = rec.Src.String()
		output["dst"] = rec.Dst.String()
	}
	if s := dissect.Describe(rec); s != "" {
		output["summary"] = s
	}
	if rec.Kind != core.KindNonUDP {
		output["payload_len"] = len(rec.Payload)
	}
	if rec.Err != nil {
		output["error"] = rec.Err.Error()
		output["error_layer"] = core.Layer(rec.Err)
	}
	if rec.Integrity != nil {
		output["integrity"] = rec.Integrity.Error()
	}
	if data := r.dumpBytes(rec); len(data) > 0 {
		output["payload_hex"] = hex.EncodeToString(data)
	}

	data, err := json.Marshal(output)
	if err != nil {
		return fmt.Errorf("json marshal failed: %w", err)
	}
	data = append(data, '\n')
	_, err = r.w.Write(data)
	return err
}

// Flush writes buffered output.
func (r *ConsoleReporter) Flush(ctx context.Context) error {
	return r.w.Flush()
}

func endpoint(ap netip.AddrPort) string {
	if !ap.IsValid() {
		return "-"
	}
	return ap.String()
}

func formatLabels(labels core.Labels) string {
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + "=" + labels[k]
	}
	return strings.Join(parts, " ")
}
