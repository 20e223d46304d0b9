package srtp

import (
	"crypto/aes"
	"crypto/cipher"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"testing"

	"github.com/pion/rtp"
	pionsrtp "github.com/pion/srtp/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"firestige.xyz/gsdump/internal/core"
)

const testSSRC = 0xCAFEBABE

var (
	testKey  = []byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08, 0x09, 0x0A, 0x0B, 0x0C, 0x0D, 0x0E, 0x0F, 0x10}
	testSalt = []byte{0xA0, 0xA1, 0xA2, 0xA3, 0xA4, 0xA5, 0xA6, 0xA7, 0xA8, 0xA9, 0xAA, 0xAB, 0xAC, 0xAD}
)

var pionProfiles = map[Profile]pionsrtp.ProtectionProfile{
	ProfileAes128CmHmacSha1_80: pionsrtp.ProtectionProfileAes128CmHmacSha1_80,
	ProfileAes128CmHmacSha1_32: pionsrtp.ProtectionProfileAes128CmHmacSha1_32,
	ProfileAeadAes128Gcm:       pionsrtp.ProtectionProfileAeadAes128Gcm,
}

func masterFor(p Profile) MasterKey {
	salt := testSalt
	if p == ProfileAeadAes128Gcm {
		salt = testSalt[:12]
	}
	return MasterKey{Key: testKey, Salt: salt}
}

func plainPacket(t *testing.T, seq uint16) []byte {
	t.Helper()
	pkt := &rtp.Packet{
		Header: rtp.Header{
			Version:        2,
			PayloadType:    0x61,
			SequenceNumber: seq,
			Timestamp:      uint32(seq) * 10,
			SSRC:           testSSRC,
		},
		Payload: []byte{0x04, 0xC0, byte(seq), byte(seq >> 8), 0x03, 0x00, 0x00, 0x00, 0xDE, 0xAD},
	}
	raw, err := pkt.Marshal()
	require.NoError(t, err)
	return raw
}

// encryptSeqs protects one packet per sequence number, in order, with an
// independent SRTP implementation.
func encryptSeqs(t *testing.T, p Profile, seqs []uint16) (plain, sealed [][]byte) {
	t.Helper()
	mk := masterFor(p)
	ctx, err := pionsrtp.CreateContext(mk.Key, mk.Salt, pionProfiles[p])
	require.NoError(t, err)

	for _, seq := range seqs {
		pt := plainPacket(t, seq)
		ct, err := ctx.EncryptRTP(nil, pt, nil)
		require.NoError(t, err)
		plain = append(plain, pt)
		sealed = append(sealed, ct)
	}
	return plain, sealed
}

func TestDecrypt_MatchesIndependentEncryptor(t *testing.T) {
	for p := range pionProfiles {
		t.Run(p.String(), func(t *testing.T) {
			plain, sealed := encryptSeqs(t, p, []uint16{1000, 1001, 1002})

			eng, err := NewEngine(masterFor(p), p)
			require.NoError(t, err)

			for i := range sealed {
				assert.Len(t, sealed[i], len(plain[i])+p.TagLen())

				res, err := eng.Decrypt(sealed[i], 12, testSSRC, 1000+uint16(i))
				require.NoError(t, err)
				assert.True(t, res.Authenticated(), "packet %d: %v", i, res.Integrity)
				assert.Equal(t, plain[i], res.Plaintext)
				assert.Equal(t, uint32(0), res.ROC)
				assert.Equal(t, uint64(1000+i), res.Index)
				assert.Equal(t, i == 0, res.NewSession)
			}
			assert.Equal(t, 1, eng.Sessions())
		})
	}
}

func TestDecrypt_GCMWithMSSRTPSalt(t *testing.T) {
	// A 14-byte master salt feeds the same KDF; only the derived session
	// salt is truncated to 12 bytes.
	eng, err := NewEngine(MasterKey{Key: testKey, Salt: testSalt}, ProfileAeadAes128Gcm)
	require.NoError(t, err)

	ctx, err := pionsrtp.CreateContext(testKey, testSalt[:12], pionsrtp.ProtectionProfileAeadAes128Gcm)
	require.NoError(t, err)
	ct, err := ctx.EncryptRTP(nil, plainPacket(t, 7), nil)
	require.NoError(t, err)

	// Different master salt, so the tag cannot verify, but nothing panics
	// and the packet is still reported.
	res, err := eng.Decrypt(ct, 12, testSSRC, 7)
	require.NoError(t, err)
	assert.False(t, res.Authenticated())
	assert.Len(t, res.Plaintext, len(ct)-gcmTagLen)
}

func mustHex(t *testing.T, s string) []byte {
	t.Helper()
	b, err := hex.DecodeString(s)
	require.NoError(t, err)
	return b
}

// msSRTPKey is 30 bytes of key material: a 16-byte key and a 14-byte salt.
const msSRTPKey = "RdHzuLLVGuO1aHILIEVJ1UzR7RWVioepmpy+9SRf"

func TestDecrypt_GCMKnownAnswer(t *testing.T) {
	mk, err := ParseMasterKey(msSRTPKey, "", ProfileAeadAes128Gcm)
	require.NoError(t, err)
	require.Len(t, mk.Salt, 14)

	keys, err := deriveSessionKeys(mk, ProfileAeadAes128Gcm)
	require.NoError(t, err)
	encKey := mustHex(t, "45eaf77f1262638cf5d3ad0db5838d1d")
	salt := mustHex(t, "dad2a3c84f32ff7dbca6802e")
	assert.Equal(t, encKey, keys.encKey)
	assert.Equal(t, salt, keys.salt)
	assert.Nil(t, keys.authKey)

	// Seal with the standard library GCM: IV = salt XOR (00 00 || SSRC || ROC || SEQ).
	block, err := aes.NewCipher(encKey)
	require.NoError(t, err)
	aead, err := cipher.NewGCM(block)
	require.NoError(t, err)

	const seq = 0x1234
	plain := plainPacket(t, seq)
	iv := make([]byte, 12)
	binary.BigEndian.PutUint32(iv[2:6], testSSRC)
	binary.BigEndian.PutUint16(iv[10:12], seq)
	for i := range iv {
		iv[i] ^= salt[i]
	}
	sealed := aead.Seal(append([]byte(nil), plain[:12]...), iv, plain[12:], plain[:12])

	eng, err := NewEngine(mk, ProfileAeadAes128Gcm)
	require.NoError(t, err)
	res, err := eng.Decrypt(sealed, 12, testSSRC, seq)
	require.NoError(t, err)
	assert.True(t, res.Authenticated(), "%v", res.Integrity)
	assert.Equal(t, plain, res.Plaintext)
}

func TestDecrypt_RolloverAcrossWrap(t *testing.T) {
	for p := range pionProfiles {
		t.Run(p.String(), func(t *testing.T) {
			seqs := []uint16{65533, 65534, 65535, 0, 1, 2}
			plain, sealed := encryptSeqs(t, p, seqs)

			eng, err := NewEngine(masterFor(p), p)
			require.NoError(t, err)

			// 65535 is delivered one position late.
			order := []int{0, 1, 3, 2, 4, 5}
			wantROC := []uint32{0, 0, 1, 0, 1, 1}
			for i, idx := range order {
				res, err := eng.Decrypt(sealed[idx], 12, testSSRC, seqs[idx])
				require.NoError(t, err)
				assert.True(t, res.Authenticated(), "seq %d", seqs[idx])
				assert.Equal(t, plain[idx], res.Plaintext, "seq %d", seqs[idx])
				assert.Equal(t, wantROC[i], res.ROC, "seq %d", seqs[idx])
			}
			assert.Equal(t, RolloverState{Highest: 2, ROC: 1}, eng.sessions[testSSRC].rollover)
		})
	}
}

func TestDecrypt_IntegrityFailureStillDecodes(t *testing.T) {
	for p := range pionProfiles {
		t.Run(p.String(), func(t *testing.T) {
			plain, sealed := encryptSeqs(t, p, []uint16{10, 11})
			eng, err := NewEngine(masterFor(p), p)
			require.NoError(t, err)

			_, err = eng.Decrypt(sealed[0], 12, testSSRC, 10)
			require.NoError(t, err)

			tampered := append([]byte(nil), sealed[1]...)
			tampered[len(tampered)-1] ^= 0xFF

			res, err := eng.Decrypt(tampered, 12, testSSRC, 11)
			require.NoError(t, err)
			assert.False(t, res.Authenticated())
			assert.True(t, errors.Is(res.Integrity, core.ErrIntegrity))
			assert.Equal(t, plain[1], res.Plaintext)

			// The newest index moves the state even when its tag fails.
			assert.Equal(t, RolloverState{Highest: 11}, eng.sessions[testSSRC].rollover)
		})
	}
}

func TestDecrypt_TamperedStreamCrossesWrap(t *testing.T) {
	// Every tag is broken, as in a capture truncated by its snap length.
	var seqs []uint16
	var wantROC []uint32
	for idx := 100; idx < 1<<16+3000; idx += 1000 {
		seqs = append(seqs, uint16(idx))
		wantROC = append(wantROC, uint32(idx>>16))
	}
	require.Equal(t, uint32(1), wantROC[len(wantROC)-1])

	for p := range pionProfiles {
		t.Run(p.String(), func(t *testing.T) {
			plain, sealed := encryptSeqs(t, p, seqs)
			eng, err := NewEngine(masterFor(p), p)
			require.NoError(t, err)

			for i, ct := range sealed {
				tampered := append([]byte(nil), ct...)
				tampered[len(tampered)-1] ^= 0x01

				res, err := eng.Decrypt(tampered, 12, testSSRC, seqs[i])
				require.NoError(t, err)
				assert.False(t, res.Authenticated(), "seq %d", seqs[i])
				assert.Equal(t, wantROC[i], res.ROC, "seq %d", seqs[i])
				assert.Equal(t, plain[i], res.Plaintext, "seq %d", seqs[i])
			}
			assert.Equal(t, RolloverState{Highest: seqs[len(seqs)-1], ROC: 1}, eng.sessions[testSSRC].rollover)
		})
	}
}

func TestDecrypt_Underrun(t *testing.T) {
	eng, err := NewEngine(masterFor(ProfileAes128CmHmacSha1_80), ProfileAes128CmHmacSha1_80)
	require.NoError(t, err)

	_, err = eng.Decrypt(make([]byte, 12+9), 12, testSSRC, 1)
	require.Error(t, err)
	assert.True(t, core.IsStructural(err))
	assert.True(t, errors.Is(err, core.ErrDecryptUnderrun))
	assert.Equal(t, 0, eng.Sessions(), "no session for a packet that could not be read")

	res, err := eng.Decrypt(make([]byte, 12+10), 12, testSSRC, 1)
	require.NoError(t, err, "a packet with an empty payload is still well formed")
	assert.Len(t, res.Plaintext, 12)
}

func TestDecrypt_SessionsPerSSRC(t *testing.T) {
	p := ProfileAes128CmHmacSha1_80
	eng, err := NewEngine(masterFor(p), p)
	require.NoError(t, err)

	_, sealed := encryptSeqs(t, p, []uint16{5})
	_, err = eng.Decrypt(sealed[0], 12, testSSRC, 5)
	require.NoError(t, err)

	// The same payload under another SSRC and sequence gets its own state.
	// The tag covers the header, so it no longer verifies.
	moved := append([]byte(nil), sealed[0]...)
	binary.BigEndian.PutUint16(moved[2:4], 40000)
	binary.BigEndian.PutUint32(moved[8:12], 0x01020304)
	res, err := eng.Decrypt(moved, 12, 0x01020304, 40000)
	require.NoError(t, err)
	assert.True(t, res.NewSession)
	assert.False(t, res.Authenticated())
	assert.Equal(t, 2, eng.Sessions())
	assert.Equal(t, RolloverState{Highest: 40000}, eng.sessions[0x01020304].rollover)
}

func TestNewEngine_RejectsBadKeys(t *testing.T) {
	_, err := NewEngine(MasterKey{Key: testKey[:8], Salt: testSalt}, ProfileAes128CmHmacSha1_80)
	assert.ErrorIs(t, err, core.ErrInvalidKey)

	_, err = NewEngine(MasterKey{Key: testKey, Salt: testSalt[:12]}, ProfileAes128CmHmacSha1_80)
	assert.ErrorIs(t, err, core.ErrInvalidKey)
}
