// Package file implements the offline capture plugin over pcap and pcapng files.
package file

import (
	"bufio"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
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

const pluginName = "file"

// pcapng files start with a Section Header Block.
const ngMagic = 0x0A0D0D0A

// Config represents file capturer configuration.
type Config struct {
	Path string `mapstructure:"path"` // required
}

type packetSource interface {
	ReadPacketData() ([]byte, gopacket.CaptureInfo, error)
}

// FileCapturer replays the frames of a capture file in order.
type FileCapturer struct {
	name   string
	config Config

	f        *os.File
	src      packetSource
	linkType layers.LinkType
	format   string

	packetsReceived atomic.Uint64
	bytesReceived   atomic.Uint64
}

// NewFileCapturer creates a new file capturer instance.
func NewFileCapturer() plugin.Capturer {
	return &FileCapturer{name: pluginName}
}

// Name returns the plugin name.
func (c *FileCapturer) Name() string {
	return c.name
}

// Init opens the capture file and reads its header, so that an unreadable
// source fails before any record is produced.
func (c *FileCapturer) Init(cfg map[string]any) error {
	if err := mapstructure.Decode(cfg, &c.config); err != nil {
		return fmt.Errorf("%w: file: %w", core.ErrConfigInvalid, err)
	}
	if c.config.Path == "" {
		return fmt.Errorf("file: path is required: %w", core.ErrConfigInvalid)
	}

	f, err := os.Open(c.config.Path)
	if err != nil {
		return fmt.Errorf("file: %w", err)
	}
	if err := c.open(f); err != nil {
		f.Close()
		return fmt.Errorf("file: %s: %w", c.config.Path, err)
	}
	c.f = f

	slog.Debug("capture file opened",
		"path", c.config.Path,
		"format", c.format,
		"link_type", c.linkType.String())
	return nil
}

func (c *FileCapturer) open(r io.Reader) error {
	br := bufio.NewReader(r)
	magic, err := br.Peek(4)
	if err != nil {
		return fmt.Errorf("read file header: %w", err)
	}

	if binary.LittleEndian.Uint32(magic) == ngMagic {
		ng, err := pcapgo.NewNgReader(br, pcapgo.DefaultNgReaderOptions)
		if err != nil {
			return err
		}
		c.src, c.linkType, c.format = ng, ng.LinkType(), "pcapng"
		return nil
	}

	pr, err := pcapgo.NewReader(br)
	if err != nil {
		return err
	}
	c.src, c.linkType, c.format = pr, pr.LinkType(), "pcap"
	return nil
}

// LinkType returns the link type declared by the file.
func (c *FileCapturer) LinkType() layers.LinkType {
	return c.linkType
}

// Start is a no-op; the file is read in Capture.
func (c *FileCapturer) Start(ctx context.Context) error {
	return nil
}

// Stop closes the capture file.
func (c *FileCapturer) Stop(ctx context.Context) error {
	if c.f == nil {
		return nil
	}
	err := c.f.Close()
	c.f = nil
	return err
}

// Capture sends every frame of the file to output and returns nil at the
// end of the file. It blocks on a full channel instead of dropping frames.
func (c *FileCapturer) Capture(ctx context.Context, output chan<- core.RawPacket) error {
	if c.src == nil {
		return fmt.Errorf("file: capturer not initialized: %w", core.ErrConfigInvalid)
	}

	for {
		data, ci, err := c.src.ReadPacketData()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			if errors.Is(err, io.ErrUnexpectedEOF) {
				slog.Warn("capture file ends with a truncated record",
					"path", c.config.Path, "frames", c.packetsReceived.Load())
				break
			}
			return fmt.Errorf("file: read frame %d: %w", c.packetsReceived.Load(), err)
		}

		pkt := core.RawPacket{
			Data:           data,
			Timestamp:      ci.Timestamp,
			CaptureLen:     uint32(ci.CaptureLength),
			OrigLen:        uint32(ci.Length),
			InterfaceIndex: ci.InterfaceIndex,
			Index:          int(c.packetsReceived.Load()),
		}

		select {
		case output <- pkt:
		case <-ctx.Done():
			return ctx.Err()
		}
		c.packetsReceived.Add(1)
		c.bytesReceived.Add(uint64(len(data)))
	}

	slog.Info("capture file exhausted",
		"path", c.config.Path,
		"frames", c.packetsReceived.Load(),
		"bytes", c.bytesReceived.Load())
	return nil
}

// Stats returns capture statistics.
func (c *FileCapturer) Stats() plugin.CaptureStats {
	return plugin.CaptureStats{
		PacketsReceived: c.packetsReceived.Load(),
		BytesReceived:   c.bytesReceived.Load(),
	}
}
