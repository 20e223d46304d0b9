// Package core defines sentinel errors.
package core

import (
	"errors"
	"fmt"
)

// Sentinel errors.
var (
	// Packet decoding errors
	ErrPacketTooShort   = errors.New("gsdump: packet too short")
	ErrUnsupportedProto = errors.New("gsdump: unsupported protocol")

	// Parser errors
	ErrMalformedSTUN  = errors.New("gsdump: malformed stun message")
	ErrMalformedProbe = errors.New("gsdump: malformed probe packet")
	ErrMalformedRTP   = errors.New("gsdump: malformed rtp packet")
	ErrMalformedMux   = errors.New("gsdump: malformed mux message")

	// SRTP errors
	ErrDecryptUnderrun = errors.New("gsdump: srtp packet shorter than trailer")
	ErrIntegrity       = errors.New("gsdump: srtp authentication failed")
	ErrInvalidKey      = errors.New("gsdump: invalid srtp key material")

	// Configuration errors
	ErrConfigInvalid = errors.New("gsdump: invalid configuration")

	// Plugin errors
	ErrPluginNotFound   = errors.New("gsdump: plugin not found")
	ErrPluginInitFailed = errors.New("gsdump: plugin init failed")
)

// StructuralError reports malformed framing in one layer of one record.
// It downgrades that record to a failure marker; the stream continues.
type StructuralError struct {
	Layer string // "stun", "probe", "rtp", "srtp", "mux"
	Err   error
}

// NewStructuralError wraps err for layer.
func NewStructuralError(layer string, err error) *StructuralError {
	return &StructuralError{Layer: layer, Err: err}
}

func (e *StructuralError) Error() string { return e.Layer + ": " + e.Err.Error() }

func (e *StructuralError) Unwrap() error { return e.Err }

// IsStructural reports whether err carries a StructuralError.
func IsStructural(err error) bool {
	var se *StructuralError
	return errors.As(err, &se)
}

// Layer returns the failing layer of a StructuralError, or "" if err is not one.
func Layer(err error) string {
	var se *StructuralError
	if errors.As(err, &se) {
		return se.Layer
	}
	return ""
}

// IntegrityError is an SRTP authentication mismatch. It annotates a record
// that was still decoded from the recovered plaintext.
type IntegrityError struct {
	SSRC  uint32
	Index uint64
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("srtp: authentication tag mismatch (ssrc=0x%08X index=%d)", e.SSRC, e.Index)
}

func (e *IntegrityError) Is(target error) bool { return target == ErrIntegrity }
