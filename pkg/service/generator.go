package service

import (
	"crypto/rand"
	"math/big"
	"regexp"
	"strings"
)

// DefaultCodeLength is the length of randomly generated short codes.
const DefaultCodeLength = 6

// maxAttemptsPerLength bounds the collision-retry loop before the generated
// length grows by one. At 62^6 codes a collision at any realistic scale is
// vanishingly rare, so the bound exists only to rule out spinning forever.
const maxAttemptsPerLength = 8

const codeChars = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

var reservedAliases = map[string]bool{
	"api":    true,
	"admin":  true,
	"r":      true,
	"v1":     true,
	"health": true,
}

var aliasRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,50}$`)

// GenerateCode produces a random alphanumeric string of the given length,
// drawn uniformly from [A-Za-z0-9]. Uniqueness is the caller's problem.
func GenerateCode(length int) (string, error) {
	var b strings.Builder
	b.Grow(length)
	max := big.NewInt(int64(len(codeChars)))
	for i := 0; i < length; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		b.WriteByte(codeChars[n.Int64()])
	}
	return b.String(), nil
}

func ValidateAlias(alias string) bool {
	if alias == "" {
		return true
	}
	if reservedAliases[strings.ToLower(alias)] {
		return false
	}
	return aliasRegex.MatchString(alias)
}
