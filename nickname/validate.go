// Package nickname implements the Nick Validator: a pure function that
// maps a desired nick to one the IRC wire protocol will accept, or fails
// with a human-readable reason when the caller demands an exact match.
package nickname

import (
	"fmt"
	"strings"
)

// NickLenFunc returns the server-advertised NICKLEN for a live session, or
// (0, false) when no session is available (or it hasn't advertised one
// yet), in which case length is not checked -- RFC 1459's 9-character
// default is too small in practice and most ircds coerce long nicks
// themselves.
type NickLenFunc func() (int, bool)

const allowedChars = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789][\\^{}-`_|"

func isAllowed(r rune) bool {
	return strings.ContainsRune(allowedChars, r)
}

func isASCIILetter(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
}

func strip(nick string) string {
	var b strings.Builder
	for _, r := range nick {
		if isAllowed(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Validate maps nick to a valid IRC nickname.
//
// With strict=false, the result is a best-effort coercion: illegal
// characters are stripped, a leading "M" is prepended if the result would
// not start with a letter, and the result is truncated to nickLen() when a
// live session reports one.
//
// With strict=true, any of those transformations that would change the
// input is instead reported as an error naming the rule that was violated,
// and nick is returned unchanged only if it required no transformation at
// all.
func Validate(nick string, strict bool, nickLen NickLenFunc) (string, error) {
	stripped := strip(nick)
	if strict && stripped != nick {
		return "", fmt.Errorf("nickname %q contains illegal characters", nick)
	}

	coerced := stripped
	if coerced == "" || !isASCIILetter([]rune(coerced)[0]) {
		if strict {
			return "", fmt.Errorf("nickname %q must start with a letter", nick)
		}
		coerced = "M" + coerced
	}

	if nickLen != nil {
		if max, ok := nickLen(); ok && max > 0 && len(coerced) > max {
			if strict {
				return "", fmt.Errorf("nickname %q is too long. (Max: %d)", nick, max)
			}
			coerced = coerced[:max]
		}
	}

	return coerced, nil
}
