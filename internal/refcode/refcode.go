// Package refcode maps user identifiers to short public referral codes.
// The mapping is reversible obfuscation, not cryptography: anyone who learns
// the salt can recover the id behind a code, which is acceptable because the
// code grants nothing by itself.
package refcode

import (
	"errors"
	"strconv"
	"strings"
)

var ErrInvalidCode = errors.New("invalid referral code")

type Codec struct {
	salt int64
}

func NewCodec(salt int64) *Codec {
	return &Codec{salt: salt}
}

// Encode produces the public code for the given user id.
func (c *Codec) Encode(id uint) string {
	return strconv.FormatInt(int64(id)^c.salt, 36)
}

// Decode recovers the user id from a code. Malformed or non-base36 input
// returns ErrInvalidCode, never a panic.
func (c *Codec) Decode(code string) (uint, error) {
	code = strings.ToLower(strings.TrimSpace(code))
	if code == "" {
		return 0, ErrInvalidCode
	}
	v, err := strconv.ParseInt(code, 36, 64)
	if err != nil || v < 0 {
		return 0, ErrInvalidCode
	}
	id := v ^ c.salt
	if id <= 0 {
		return 0, ErrInvalidCode
	}
	return uint(id), nil
}
