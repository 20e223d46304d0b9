package srtp

import (
	"crypto/aes"
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"strings"

	"firestige.xyz/gsdump/internal/core"
)

// KDF labels, RFC 3711 §4.3.2.
const (
	labelEncryption     byte = 0x00
	labelAuthentication byte = 0x01
	labelSalt           byte = 0x02
)

// MasterKey is the externally supplied key material.
type MasterKey struct {
	Key  []byte
	Salt []byte
}

// ParseMasterKey decodes base64 key material for profile p.
//
// key is either the bare 16-byte master key, in which case salt must be
// given, or the key followed by the master salt (30 or 28 bytes).
func ParseMasterKey(key, salt string, p Profile) (MasterKey, error) {
	if strings.TrimSpace(key) == "" {
		return MasterKey{}, fmt.Errorf("%w: empty master key", core.ErrInvalidKey)
	}
	raw, err := decodeBase64(key)
	if err != nil {
		return MasterKey{}, fmt.Errorf("%w: master key: %v", core.ErrInvalidKey, err)
	}

	var mk MasterKey
	switch {
	case salt != "":
		if len(raw) != keyLen {
			return MasterKey{}, fmt.Errorf("%w: master key is %d bytes, want %d when a salt is given",
				core.ErrInvalidKey, len(raw), keyLen)
		}
		s, err := decodeBase64(salt)
		if err != nil {
			return MasterKey{}, fmt.Errorf("%w: master salt: %v", core.ErrInvalidKey, err)
		}
		mk = MasterKey{Key: raw, Salt: s}
	case len(raw) > keyLen:
		mk = MasterKey{Key: raw[:keyLen], Salt: raw[keyLen:]}
	default:
		return MasterKey{}, fmt.Errorf("%w: %d bytes of key material and no salt", core.ErrInvalidKey, len(raw))
	}

	if !p.acceptsMasterSalt(len(mk.Salt)) {
		return MasterKey{}, fmt.Errorf("%w: %d-byte master salt is not valid for %s",
			core.ErrInvalidKey, len(mk.Salt), p)
	}
	return mk, nil
}

func decodeBase64(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if b, err := base64.StdEncoding.DecodeString(s); err == nil {
		return b, nil
	}
	return base64.RawStdEncoding.DecodeString(s)
}

// sessionKeys are derived once from the master key and shared by all SSRCs.
type sessionKeys struct {
	encKey  []byte
	authKey []byte
	salt    []byte
}

func deriveSessionKeys(mk MasterKey, p Profile) (sessionKeys, error) {
	enc, err := deriveKey(labelEncryption, mk, len(mk.Key))
	if err != nil {
		return sessionKeys{}, err
	}
	salt, err := deriveKey(labelSalt, mk, p.sessionSaltLen())
	if err != nil {
		return sessionKeys{}, err
	}
	keys := sessionKeys{encKey: enc, salt: salt}
	if p != ProfileAeadAes128Gcm {
		if keys.authKey, err = deriveKey(labelAuthentication, mk, authKeyLen); err != nil {
			return sessionKeys{}, err
		}
	}
	return keys, nil
}

// deriveKey is the AES-CM PRF with a key derivation rate of zero:
// x = label at byte 7 XOR master salt, then AES(master key, x || block counter).
func deriveKey(label byte, mk MasterKey, outLen int) ([]byte, error) {
	block, err := aes.NewCipher(mk.Key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrInvalidKey, err)
	}
	n := len(mk.Key)
	in := make([]byte, n)
	copy(in, mk.Salt)
	in[7] ^= label

	out := make([]byte, ((outLen+n-1)/n)*n)
	for i, off := uint16(0), 0; off < outLen; i, off = i+1, off+n {
		binary.BigEndian.PutUint16(in[n-2:], i)
		block.Encrypt(out[off:off+n], in)
	}
	return out[:outLen], nil
}
