package srtp

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/sha1"
	"encoding/binary"
	"hash"
)

// transform recovers the plaintext of one SRTP packet. pkt holds the RTP
// header, the encrypted payload and the trailer. The returned packet is the
// header followed by the plaintext payload; ok reports whether the
// authentication tag verified.
type transform interface {
	open(pkt []byte, headerLen int, ssrc uint32, seq uint16, roc uint32) (plain []byte, ok bool)
}

func newTransform(p Profile, keys sessionKeys) (transform, error) {
	block, err := aes.NewCipher(keys.encKey)
	if err != nil {
		return nil, err
	}
	if p == ProfileAeadAes128Gcm {
		aead, err := cipher.NewGCM(block)
		if err != nil {
			return nil, err
		}
		return &gcmTransform{block: block, aead: aead, salt: keys.salt}, nil
	}
	return &cmTransform{
		block:  block,
		salt:   keys.salt,
		mac:    hmac.New(sha1.New, keys.authKey),
		tagLen: p.TagLen(),
	}, nil
}

// cmTransform is AES-128 counter mode with a truncated HMAC-SHA1 tag.
type cmTransform struct {
	block  cipher.Block
	salt   []byte
	mac    hash.Hash
	tagLen int
}

func (t *cmTransform) open(pkt []byte, headerLen int, ssrc uint32, seq uint16, roc uint32) ([]byte, bool) {
	body := pkt[:len(pkt)-t.tagLen]
	tag := pkt[len(pkt)-t.tagLen:]

	plain := make([]byte, len(body))
	copy(plain, body[:headerLen])
	iv := cmCounter(t.salt, ssrc, roc, seq)
	cipher.NewCTR(t.block, iv[:]).XORKeyStream(plain[headerLen:], body[headerLen:])

	// The tag covers the authenticated portion followed by the ROC.
	var rocBuf [4]byte
	binary.BigEndian.PutUint32(rocBuf[:], roc)
	t.mac.Reset()
	t.mac.Write(body)
	t.mac.Write(rocBuf[:])
	sum := t.mac.Sum(nil)

	return plain, hmac.Equal(sum[:t.tagLen], tag)
}

// cmCounter builds the RFC 3711 §4.1.1 IV:
// (salt << 16) XOR (SSRC << 64) XOR (index << 16).
func cmCounter(salt []byte, ssrc, roc uint32, seq uint16) [aes.BlockSize]byte {
	var iv [aes.BlockSize]byte
	binary.BigEndian.PutUint32(iv[4:8], ssrc)
	binary.BigEndian.PutUint32(iv[8:12], roc)
	binary.BigEndian.PutUint16(iv[12:14], seq)
	for i := range salt {
		iv[i] ^= salt[i]
	}
	return iv
}

// gcmTransform is AEAD_AES_128_GCM with the RTP header as associated data.
type gcmTransform struct {
	block cipher.Block
	aead  cipher.AEAD
	salt  []byte
}

func (t *gcmTransform) open(pkt []byte, headerLen int, ssrc uint32, seq uint16, roc uint32) ([]byte, bool) {
	iv := gcmIV(t.salt, ssrc, roc, seq)
	sealed := pkt[headerLen:]
	ct := sealed[:len(sealed)-gcmTagLen]

	// GCM encrypts with the counter stream starting at IV || 2. Running it
	// directly keeps the plaintext even when the tag does not verify.
	plain := make([]byte, headerLen+len(ct))
	copy(plain, pkt[:headerLen])
	var ctr [aes.BlockSize]byte
	copy(ctr[:], iv[:])
	ctr[aes.BlockSize-1] = 2
	cipher.NewCTR(t.block, ctr[:]).XORKeyStream(plain[headerLen:], ct)

	_, err := t.aead.Open(nil, iv[:], sealed, pkt[:headerLen])
	return plain, err == nil
}

// gcmIV builds the RFC 7714 §8.1 IV: salt XOR (00 00 || SSRC || ROC || SEQ).
func gcmIV(salt []byte, ssrc, roc uint32, seq uint16) [gcmSaltLen]byte {
	var iv [gcmSaltLen]byte
	binary.BigEndian.PutUint32(iv[2:6], ssrc)
	binary.BigEndian.PutUint32(iv[6:10], roc)
	binary.BigEndian.PutUint16(iv[10:12], seq)
	for i := range iv {
		iv[i] ^= salt[i]
	}
	return iv
}
