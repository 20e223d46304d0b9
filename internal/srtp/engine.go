// Package srtp removes SRTP protection from RTP packets for offline analysis.
//
// Unlike a live receiver the engine never discards a packet: the plaintext is
// always recovered and an authentication mismatch is reported alongside it.
// Rollover state is tracked per SSRC with the RFC 3711 index guessing
// algorithm and advances on every packet whose index is the newest, whether
// or not its tag verifies.
package srtp

import (
	"fmt"
	"log/slog"

	"firestige.xyz/gsdump/internal/core"
)

// Result is the outcome of decrypting one packet.
type Result struct {
	Plaintext  []byte // RTP header followed by the plaintext payload
	ROC        uint32
	Index      uint64
	Integrity  error // *core.IntegrityError when the tag did not verify
	NewSession bool  // First packet seen for this SSRC
}

// Authenticated reports whether the authentication tag verified.
func (r Result) Authenticated() bool { return r.Integrity == nil }

type session struct {
	rollover RolloverState
}

// Engine holds the session transform and the per-SSRC rollover state. It is
// owned by a single pipeline and is not safe for concurrent use.
type Engine struct {
	profile   Profile
	transform transform
	sessions  map[uint32]*session
}

// NewEngine validates the key material for profile p.
func NewEngine(mk MasterKey, p Profile) (*Engine, error) {
	if len(mk.Key) != keyLen {
		return nil, fmt.Errorf("%w: master key is %d bytes, want %d", core.ErrInvalidKey, len(mk.Key), keyLen)
	}
	if !p.acceptsMasterSalt(len(mk.Salt)) {
		return nil, fmt.Errorf("%w: %d-byte master salt is not valid for %s", core.ErrInvalidKey, len(mk.Salt), p)
	}
	// The key derivation rate is zero, so every SSRC shares the same
	// session keys.
	keys, err := deriveSessionKeys(mk, p)
	if err != nil {
		return nil, err
	}
	t, err := newTransform(p, keys)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrInvalidKey, err)
	}
	return &Engine{
		profile:   p,
		transform: t,
		sessions:  make(map[uint32]*session),
	}, nil
}

// Profile returns the configured transform.
func (e *Engine) Profile() Profile { return e.profile }

// Sessions returns the number of SSRCs seen so far.
func (e *Engine) Sessions() int { return len(e.sessions) }

// Decrypt recovers the plaintext of pkt, whose first headerLen bytes are the
// RTP header carrying ssrc and seq. The only error is a StructuralError for a
// packet too short to hold the trailer.
func (e *Engine) Decrypt(pkt []byte, headerLen int, ssrc uint32, seq uint16) (Result, error) {
	if headerLen < 0 || len(pkt) < headerLen+e.profile.TagLen() {
		return Result{}, core.NewStructuralError("srtp",
			fmt.Errorf("%w: %d bytes with a %d byte header", core.ErrDecryptUnderrun, len(pkt), headerLen))
	}

	var res Result
	s, ok := e.sessions[ssrc]
	if !ok {
		s = &session{rollover: RolloverState{Highest: seq}}
		e.sessions[ssrc] = s
		res.NewSession = true
		slog.Info("srtp session created", "ssrc", fmt.Sprintf("0x%08X", ssrc), "profile", e.profile.String())
	}

	next, index := s.rollover.Advance(seq)
	s.rollover = next
	roc := uint32(index >> 16)
	plain, authentic := e.transform.open(pkt, headerLen, ssrc, seq, roc)

	res.Plaintext = plain
	res.ROC = roc
	res.Index = index
	if !authentic {
		res.Integrity = &core.IntegrityError{SSRC: ssrc, Index: index}
	}
	return res, nil
}
