package srtp

import (
	"fmt"
	"strings"

	"firestige.xyz/gsdump/internal/core"
)

// Profile selects the SRTP transform.
type Profile uint8

const (
	ProfileAes128CmHmacSha1_80 Profile = iota + 1
	ProfileAes128CmHmacSha1_32
	ProfileAeadAes128Gcm // RFC 7714, also used by MS-SRTP with a 14-byte master salt
)

const (
	keyLen     = 16
	authKeyLen = 20
	cmSaltLen  = 14
	gcmSaltLen = 12
	gcmTagLen  = 16
)

var profileNames = map[Profile]string{
	ProfileAes128CmHmacSha1_80: "aes128-cm-hmac-sha1-80",
	ProfileAes128CmHmacSha1_32: "aes128-cm-hmac-sha1-32",
	ProfileAeadAes128Gcm:       "aead-aes128-gcm",
}

// ParseProfile accepts the configuration names of the supported profiles.
func ParseProfile(name string) (Profile, error) {
	n := strings.ToLower(strings.TrimSpace(name))
	for p, s := range profileNames {
		if s == n {
			return p, nil
		}
	}
	return 0, fmt.Errorf("%w: unknown srtp profile %q", core.ErrConfigInvalid, name)
}

func (p Profile) String() string {
	if s, ok := profileNames[p]; ok {
		return s
	}
	return fmt.Sprintf("Profile(%d)", uint8(p))
}

// TagLen is the length of the authentication trailer.
func (p Profile) TagLen() int {
	switch p {
	case ProfileAes128CmHmacSha1_80:
		return 10
	case ProfileAes128CmHmacSha1_32:
		return 4
	case ProfileAeadAes128Gcm:
		return gcmTagLen
	}
	return 0
}

// sessionSaltLen is the length of the derived session salt.
func (p Profile) sessionSaltLen() int {
	if p == ProfileAeadAes128Gcm {
		return gcmSaltLen
	}
	return cmSaltLen
}

// acceptsMasterSalt reports whether n is a valid master salt length.
func (p Profile) acceptsMasterSalt(n int) bool {
	switch p {
	case ProfileAeadAes128Gcm:
		return n == gcmSaltLen || n == cmSaltLen
	case ProfileAes128CmHmacSha1_80, ProfileAes128CmHmacSha1_32:
		return n == cmSaltLen
	}
	return false
}
