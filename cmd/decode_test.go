package cmd

import (
	"bytes"
	"context"
	"encoding/base64"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	"github.com/pion/rtp"
	pionsrtp "github.com/pion/srtp/v2"
	"github.com/pion/stun"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"firestige.xyz/gsdump/internal/config"
	"firestige.xyz/gsdump/internal/core"
	"firestige.xyz/gsdump/plugins/parser/mux"
)

var (
	testKey  = []byte{0x10, 0x0F, 0x0E, 0x0D, 0x0C, 0x0B, 0x0A, 0x09, 0x08, 0x07, 0x06, 0x05, 0x04, 0x03, 0x02, 0x01}
	testSalt = []byte{0x50, 0x51, 0x52, 0x53, 0x54, 0x55, 0x56, 0x57, 0x58, 0x59, 0x5A, 0x5B}
)

func testKeyMaterial() string {
	return base64.StdEncoding.EncodeToString(append(append([]byte(nil), testKey...), testSalt...))
}

func udpFrame(t *testing.T, payload []byte) []byte {
	t.Helper()
	buf := gopacket.NewSerializeBuffer()
	require.NoError(t, gopacket.SerializeLayers(buf, gopacket.SerializeOptions{FixLengths: true},
		&layers.Ethernet{
			SrcMAC:       net.HardwareAddr{0xAA, 0xBB, 0xCC, 0xDD, 0xEE, 0xFF},
			DstMAC:       net.HardwareAddr{0x00, 0x11, 0x22, 0x33, 0x44, 0x55},
			EthernetType: layers.EthernetTypeIPv4,
		},
		&layers.IPv4{
			Version:  4,
			TTL:      64,
			Protocol: layers.IPProtocolUDP,
			SrcIP:    net.IPv4(52, 10, 20, 30).To4(),
			DstIP:    net.IPv4(10, 0, 0, 5).To4(),
		},
		&layers.UDP{SrcPort: 1001, DstPort: 3074},
		gopacket.Payload(payload),
	))
	return append([]byte(nil), buf.Bytes()...)
}

// writeSession writes a short session: a STUN binding, an SRTP control
// Create, an SRTP keepalive and a probe Ack.
func writeSession(t *testing.T, dir string) string {
	t.Helper()
	sealer, err := pionsrtp.CreateContext(testKey, testSalt, pionsrtp.ProtectionProfileAeadAes128Gcm)
	require.NoError(t, err)
	seal := func(pt uint8, seq uint16, ssrc uint32, payload []byte) []byte {
		plain, err := (&rtp.Packet{
			Header:  rtp.Header{Version: 2, PayloadType: pt, SequenceNumber: seq, SSRC: ssrc},
			Payload: payload,
		}).Marshal()
		require.NoError(t, err)
		enc, err := sealer.EncryptRTP(nil, plain, nil)
		require.NoError(t, err)
		return enc
	}

	binding, err := stun.Build(stun.TransactionID, stun.BindingRequest)
	require.NoError(t, err)
	class := []byte(mux.ClassControl)
	create := append([]byte{0x00, 0x00, 0x01, 0x00, 0x02, 0x00, 0x00, 0x00, byte(len(class)), 0x00}, class...)
	keepalive := []byte{0x07, 0x00, 0x10, 0x27, 0x00, 0x00, 0x0D, 0xF0, 0xAD, 0x0B}

	payloads := [][]byte{
		binding.Raw,
		seal(0x61, 1, 0xCAFE, create),
		seal(0x65, 2, 0xCAFE, keepalive),
		{0x02, 0x00, 0x7A, 0x05, 0x00, 0x00},
	}

	path := filepath.Join(dir, "session.pcap")
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	w := pcapgo.NewWriter(f)
	require.NoError(t, w.WriteFileHeader(65535, layers.LinkTypeEthernet))
	for i, p := range payloads {
		data := udpFrame(t, p)
		require.NoError(t, w.WritePacket(gopacket.CaptureInfo{
			Timestamp:     time.Unix(1700000000, int64(i)*int64(time.Millisecond)),
			CaptureLength: len(data),
			Length:        len(data),
		}, data))
	}
	return path
}

func defaults(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Load("")
	require.NoError(t, err)
	return cfg
}

func TestRunDecode_Plaintext(t *testing.T) {
	input := writeSession(t, t.TempDir())

	cfg := defaults(t)
	cfg.Output.Hexdump = false

	var out bytes.Buffer
	require.NoError(t, runDecode(context.Background(), cfg, input, &out))

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 4, out.String())
	assert.Contains(t, lines[0], " stun Binding request")
	assert.Contains(t, lines[1], " rtp MuxDCTControl")
	assert.Contains(t, lines[3], " probe Ack(AcceptedSize=1402, Appendix=0)")
}

func TestRunDecode_DecryptRewriteAndMetrics(t *testing.T) {
	dir := t.TempDir()
	input := writeSession(t, dir)

	cfg := defaults(t)
	cfg.SRTP.Key = testKeyMaterial()
	cfg.Output.Format = "json"
	cfg.Output.RewritePath = filepath.Join(dir, "plain.pcap")
	cfg.Metrics.Textfile = filepath.Join(dir, "gsdump.prom")
	require.NoError(t, cfg.ValidateAndApplyDefaults())

	var out bytes.Buffer
	require.NoError(t, runDecode(context.Background(), cfg, input, &out))

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 4)
	assert.Contains(t, lines[1], `"mux.class_name":"Microsoft::Basix::Dct::Channel::Class::Control"`)
	assert.Contains(t, lines[1], `"srtp.auth":"ok"`)
	assert.Contains(t, lines[2], `"mux.kind":"keepalive"`)

	info, err := os.Stat(cfg.Output.RewritePath)
	require.NoError(t, err)
	assert.Greater(t, info.Size(), int64(24))

	prom, err := os.ReadFile(cfg.Metrics.Textfile)
	require.NoError(t, err)
	assert.Contains(t, string(prom), `gsdump_records_total{kind="rtp"} 2`)
	assert.Contains(t, string(prom), "gsdump_srtp_sessions 1")

	// The rewritten capture decodes without a key.
	var plain bytes.Buffer
	require.NoError(t, runDecode(context.Background(), defaults(t), cfg.Output.RewritePath, &plain))
	assert.Contains(t, plain.String(), `class="Microsoft::Basix::Dct::Channel::Class::Control"`)
	assert.NotContains(t, plain.String(), "error=")
}

func TestRunDecode_FatalErrorsPrecedeOutput(t *testing.T) {
	dir := t.TempDir()
	input := writeSession(t, dir)

	tests := []struct {
		name  string
		setup func(cfg *config.Config) string
		is    error
	}{
		{
			name: "malformed key",
			setup: func(cfg *config.Config) string {
				cfg.SRTP.Key = "not base64!"
				return input
			},
			is: core.ErrInvalidKey,
		},
		{
			name: "short key without salt",
			setup: func(cfg *config.Config) string {
				cfg.SRTP.Key = base64.StdEncoding.EncodeToString(testKey)
				return input
			},
			is: core.ErrInvalidKey,
		},
		{
			name: "missing input",
			setup: func(cfg *config.Config) string {
				return filepath.Join(dir, "missing.pcap")
			},
		},
		{
			name: "unwritable rewrite path",
			setup: func(cfg *config.Config) string {
				cfg.SRTP.Key = testKeyMaterial()
				cfg.Output.RewritePath = filepath.Join(dir, "no", "such", "out.pcap")
				return input
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaults(t)
			path := tt.setup(cfg)

			var out bytes.Buffer
			err := runDecode(context.Background(), cfg, path, &out)
			require.Error(t, err)
			if tt.is != nil {
				assert.ErrorIs(t, err, tt.is)
			}
			assert.Zero(t, out.Len(), "no records may be written before a fatal error")
		})
	}
}

func TestApplyDecodeFlags(t *testing.T) {
	cmd := &cobra.Command{Use: "decode"}
	addDecodeFlags(cmd.Flags())
	require.NoError(t, cmd.Flags().Parse([]string{
		"--key", "c2VjcmV0",
		"--format", "json",
		"--hexdump=false",
		"--lookback", "9",
		"--buffer-size", "16",
		"--teredo=false",
	}))

	cfg := defaults(t)
	require.NoError(t, applyDecodeFlags(cmd, cfg))
	assert.Equal(t, "c2VjcmV0", cfg.SRTP.Key)
	assert.Equal(t, "json", cfg.Output.Format)
	assert.False(t, cfg.Output.Hexdump)
	assert.Equal(t, 9, cfg.Probe.Lookback)
	assert.Equal(t, 16, cfg.Pipeline.BufferSize)
	assert.False(t, cfg.Decoder.Teredo)
	assert.Equal(t, "aead-aes128-gcm", cfg.SRTP.Profile, "unset flags keep config values")
}

func TestShowConfig(t *testing.T) {
	cfg := defaults(t)
	cfg.SRTP.Key = testKeyMaterial()

	var out bytes.Buffer
	require.NoError(t, showConfig(cfg, &out))
	assert.True(t, strings.HasPrefix(out.String(), "gsdump:\n"))
	assert.Contains(t, out.String(), "key: <redacted>")
	assert.Contains(t, out.String(), "lookback: 64")
	assert.NotContains(t, out.String(), testKeyMaterial())
	assert.Equal(t, testKeyMaterial(), cfg.SRTP.Key, "redaction must not modify the loaded config")
}
