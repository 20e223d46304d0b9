// Package core defines core data structures with zero external dependencies.
package core

import (
	"net/netip"
	"time"
)

// RawPacket is one frame read from the capture file, in file order.
type RawPacket struct {
	Data           []byte    // Raw link-layer frame
	Timestamp      time.Time // Capture timestamp
	CaptureLen     uint32    // Captured length
	OrigLen        uint32    // Original frame length on the wire
	InterfaceIndex int       // pcapng interface index (0 for classic pcap)
	Index          int       // 0-based position of the frame in the capture
}

// TunnelTeredo marks datagrams unwrapped from Teredo.
const TunnelTeredo = "teredo"

// Datagram is a UDP datagram extracted from a frame.
type Datagram struct {
	Frame         RawPacket
	Src           netip.AddrPort
	Dst           netip.AddrPort
	Payload       []byte // UDP payload, zero-copy slice of Frame.Data
	PayloadOffset int    // Offset of Payload inside Frame.Data
	Tunnel        string // "" or "teredo"
}

// DecodedRecord is the output for exactly one input frame.
type DecodedRecord struct {
	Index     int
	Timestamp time.Time
	Src       netip.AddrPort
	Dst       netip.AddrPort
	Tunnel    string

	Kind   Kind
	Labels Labels

	// Message is the typed parser result; its concrete type follows Kind.
	Message any

	// Err marks the record as a decode failure (a *StructuralError).
	Err error
	// Integrity is set when SRTP authentication did not verify.
	Integrity error

	Payload   []byte // Original UDP payload
	Plaintext []byte // Recovered RTP packet when SRTP was removed

	Frame         RawPacket
	PayloadOffset int
}

// Failed reports whether the record is a decode-failure marker.
func (r *DecodedRecord) Failed() bool { return r.Err != nil }

// Decrypted reports whether the record carries a recovered plaintext packet.
func (r *DecodedRecord) Decrypted() bool { return r.Plaintext != nil }
