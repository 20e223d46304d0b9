package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/gopacket/layers"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"firestige.xyz/gsdump/internal/config"
	"firestige.xyz/gsdump/internal/core/decoder"
	"firestige.xyz/gsdump/internal/dissect"
	"firestige.xyz/gsdump/internal/log"
	"firestige.xyz/gsdump/internal/metrics"
	"firestige.xyz/gsdump/internal/pipeline"
	"firestige.xyz/gsdump/internal/srtp"
	"firestige.xyz/gsdump/pkg/plugin"
	_ "firestige.xyz/gsdump/plugins" // register built-in plugins
	"firestige.xyz/gsdump/plugins/parser/mux"
	"firestige.xyz/gsdump/plugins/parser/probe"
	"firestige.xyz/gsdump/plugins/reporter/console"
)

// decodeCmd represents the decode command
var decodeCmd = &cobra.Command{
	Use:   "decode <capture-file>",
	Short: "Decode a pcap or pcapng capture",
	Long: `Decode every frame of a capture file and print one record per frame.

Without a key, RTP payloads are decoded as plaintext. With --key, SRTP is
removed first; packets whose authentication tag does not verify are still
decoded and flagged. --rewrite additionally writes a copy of the capture
with every decrypted payload replaced by the plaintext RTP packet.

Examples:
  gsdump decode session.pcap
  gsdump decode --key <base64> session.pcapng --format json
  gsdump decode --key <base64> --rewrite plain.pcap --format none session.pcap`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := config.Load(configFile)
		if err != nil {
			exitWithError("failed to load config", err)
		}
		if err := applyDecodeFlags(cmd, cfg); err != nil {
			exitWithError("invalid flags", err)
		}
		if err := log.Init(cfg.Log); err != nil {
			exitWithError("failed to initialize logging", err)
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if err := runDecode(ctx, cfg, args[0], cmd.OutOrStdout()); err != nil {
			exitWithError("decode failed", err)
		}
	},
}

func init() {
	addDecodeFlags(decodeCmd.Flags())
}

func addDecodeFlags(f *pflag.FlagSet) {
	f.String("key", "", "base64 SRTP master key, or key and salt")
	f.String("salt", "", "base64 SRTP master salt when --key holds the key only")
	f.String("profile", "", "SRTP profile: aes128-cm-hmac-sha1-80, aes128-cm-hmac-sha1-32 or aead-aes128-gcm")
	f.StringP("format", "f", "", "record output: text, json or none")
	f.Bool("hexdump", true, "hexdump unknown and failed payloads")
	f.StringP("rewrite", "w", "", "write a decrypted copy of the capture to this pcap file")
	f.Int("lookback", 0, "probe correlation window per flow")
	f.Int("buffer-size", 0, "frames queued between the capture reader and the decoder")
	f.Bool("teredo", true, "unwrap Teredo-tunnelled datagrams")
	f.String("metrics-textfile", "", "write Prometheus metrics to this file after the run")
	f.String("log-level", "", "log level: debug, info, warn or error")
}

// applyDecodeFlags overrides cfg with the flags given on the command line.
func applyDecodeFlags(cmd *cobra.Command, cfg *config.Config) error {
	f := cmd.Flags()
	str := func(name string, dst *string) {
		if f.Changed(name) {
			*dst, _ = f.GetString(name)
		}
	}
	boolean := func(name string, dst *bool) {
		if f.Changed(name) {
			*dst, _ = f.GetBool(name)
		}
	}

	str("key", &cfg.SRTP.Key)
	str("salt", &cfg.SRTP.Salt)
	str("profile", &cfg.SRTP.Profile)
	str("format", &cfg.Output.Format)
	boolean("hexdump", &cfg.Output.Hexdump)
	str("rewrite", &cfg.Output.RewritePath)
	boolean("teredo", &cfg.Decoder.Teredo)
	str("metrics-textfile", &cfg.Metrics.Textfile)
	str("log-level", &cfg.Log.Level)
	if f.Changed("lookback") {
		cfg.Probe.Lookback, _ = f.GetInt("lookback")
	}
	if f.Changed("buffer-size") {
		cfg.Pipeline.BufferSize, _ = f.GetInt("buffer-size")
	}
	return cfg.ValidateAndApplyDefaults()
}

// runDecode decodes input and writes records to w. Every error it returns
// before the pipeline starts is fatal and precedes any record output.
func runDecode(ctx context.Context, cfg *config.Config, input string, w io.Writer) (err error) {
	engine, err := newEngine(cfg.SRTP)
	if err != nil {
		return err
	}

	// Frame source
	factory, err := plugin.GetCapturerFactory("file")
	if err != nil {
		return err
	}
	capturer := factory()
	if err := capturer.Init(map[string]any{"path": input}); err != nil {
		return err
	}
	defer capturer.Stop(ctx)

	lt, ok := capturer.(plugin.LinkTyper)
	if !ok {
		return fmt.Errorf("capturer %s does not report a link type", capturer.Name())
	}
	dec, err := decoder.New(lt.LinkType(), decoder.Config{Teredo: cfg.Decoder.Teredo})
	if err != nil {
		return fmt.Errorf("%s: %w", input, err)
	}

	// Dissector
	probeParser := probe.NewParser()
	if err := probeParser.Init(map[string]any{"lookback": cfg.Probe.Lookback}); err != nil {
		return err
	}
	dissector := dissect.New(dissect.Config{
		Engine: engine,
		Probe:  probeParser,
		Mux: mux.Config{
			ControlPayloadType:   uint8(cfg.Mux.ControlPayloadType),
			KeepAlivePayloadType: uint8(cfg.Mux.KeepAlivePayloadType),
			ChannelMin:           uint8(cfg.Mux.ChannelMin),
			ChannelMax:           uint8(cfg.Mux.ChannelMax),
		},
		ProbingPayloadType: uint8(cfg.Mux.ProbingPayloadType),
	})
	for _, ps := range dissector.Parsers() {
		if err := ps.Start(ctx); err != nil {
			return fmt.Errorf("start parser %s: %w", ps.Name(), err)
		}
		defer ps.Stop(context.WithoutCancel(ctx))
	}

	// Reporters
	reporters, err := newReporters(cfg, lt.LinkType(), w)
	if err != nil {
		return err
	}
	for _, r := range reporters {
		if err := r.Start(ctx); err != nil {
			return fmt.Errorf("start reporter %s: %w", r.Name(), err)
		}
	}
	defer func() {
		for _, r := range reporters {
			if serr := r.Stop(context.WithoutCancel(ctx)); serr != nil && err == nil {
				err = fmt.Errorf("stop reporter %s: %w", r.Name(), serr)
			}
		}
	}()

	m := metrics.New()
	p := pipeline.NewBuilder().
		WithCapturer(capturer).
		WithDecoder(dec).
		WithDissector(dissector).
		WithReporters(reporters...).
		WithMetrics(m).
		WithBufferSize(cfg.Pipeline.BufferSize).
		Build()

	runErr := p.Run(ctx)

	if cfg.Metrics.Textfile != "" {
		if err := m.WriteTextfile(cfg.Metrics.Textfile); err != nil {
			slog.Error("metrics export failed", "path", cfg.Metrics.Textfile, "error", err)
			runErr = errors.Join(runErr, err)
		}
	}
	return runErr
}

func newEngine(c config.SRTPConfig) (*srtp.Engine, error) {
	if !c.Enabled() {
		return nil, nil
	}
	profile, err := srtp.ParseProfile(c.Profile)
	if err != nil {
		return nil, err
	}
	mk, err := srtp.ParseMasterKey(c.Key, c.Salt, profile)
	if err != nil {
		return nil, fmt.Errorf("srtp key: %w", err)
	}
	engine, err := srtp.NewEngine(mk, profile)
	if err != nil {
		return nil, fmt.Errorf("srtp key: %w", err)
	}
	return engine, nil
}

func newReporters(cfg *config.Config, lt layers.LinkType, w io.Writer) ([]plugin.Reporter, error) {
	var reporters []plugin.Reporter

	if cfg.Output.Format != console.FormatNone {
		r := console.NewWriterReporter(w)
		if err := r.Init(map[string]any{
			"format":  cfg.Output.Format,
			"hexdump": cfg.Output.Hexdump,
		}); err != nil {
			return nil, err
		}
		reporters = append(reporters, r)
	}

	if cfg.Output.RewritePath != "" {
		factory, err := plugin.GetReporterFactory("pcap")
		if err != nil {
			return nil, err
		}
		r := factory()
		if err := r.Init(map[string]any{
			"path":      cfg.Output.RewritePath,
			"link_type": int(lt),
		}); err != nil {
			return nil, err
		}
		reporters = append(reporters, r)
	}
	return reporters, nil
}
