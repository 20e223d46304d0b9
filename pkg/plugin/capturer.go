package plugin

import (
	"context"

	"github.com/google/gopacket/layers"

	"firestige.xyz/gsdump/internal/core"
)

// Capturer produces the ordered frames of one capture.
type Capturer interface {
	Plugin
	// Capture sends every frame to output in order and returns nil at the
	// end of the input.
	Capture(ctx context.Context, output chan<- core.RawPacket) error
	Stats() CaptureStats
}

// LinkTyper is implemented by capturers that know the link type of their frames.
type LinkTyper interface {
	LinkType() layers.LinkType
}

// CaptureStats represents capture statistics.
type CaptureStats struct {
	PacketsReceived uint64
	BytesReceived   uint64
}
