package qr

import (
	"strings"

	sh "github.com/gofhir/smarthealth"
)

const (
	// ordOffset is subtracted from each character before encoding.
	ordOffset = 45

	// ordMax is the highest encodable character ordinal ('z').
	ordMax = 122

	// maxPair is the highest valid two-digit value (ordMax - ordOffset).
	maxPair = ordMax - ordOffset
)

// EncodeJWSToNumeric converts a JWS string to its numeric-mode form:
// each character becomes the zero-padded two-digit decimal of its
// ordinal minus 45. Characters outside [45,122] are rejected.
func EncodeJWSToNumeric(jws string) (string, error) {
	if jws == "" {
		return "", sh.NewError(sh.KindQRCode, "JWS must be a non-empty string")
	}

	var b strings.Builder
	b.Grow(len(jws) * 2)

	for i := 0; i < len(jws); i++ {
		c := jws[i]
		if c < ordOffset || c > ordMax {
			return "", sh.Errorf(sh.KindQRCode,
				"character %q at position %d is outside the encodable range [45,122]", c, i)
		}
		v := c - ordOffset
		b.WriteByte('0' + v/10)
		b.WriteByte('0' + v%10)
	}

	return b.String(), nil
}

// DecodeNumericToJWS inverts EncodeJWSToNumeric: digit pairs map back
// through chr(pair+45). Odd-length input, non-digits and pairs above 77
// are rejected.
func DecodeNumericToJWS(digits string) (string, error) {
	if digits == "" {
		return "", sh.NewError(sh.KindQRCode, "numeric payload must be non-empty")
	}
	if len(digits)%2 != 0 {
		return "", sh.Errorf(sh.KindQRCode, "numeric payload has odd length %d", len(digits))
	}

	var b strings.Builder
	b.Grow(len(digits) / 2)

	for i := 0; i < len(digits); i += 2 {
		hi, lo := digits[i], digits[i+1]
		if hi < '0' || hi > '9' || lo < '0' || lo > '9' {
			return "", sh.Errorf(sh.KindQRCode, "invalid digit pair %q at position %d", digits[i:i+2], i)
		}
		pair := int(hi-'0')*10 + int(lo-'0')
		if pair > maxPair {
			return "", sh.Errorf(sh.KindQRCode, "digit pair %d at position %d exceeds %d", pair, i, maxPair)
		}
		b.WriteByte(byte(pair + ordOffset))
	}

	return b.String(), nil
}
