package affiliate

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"

	pkgerrors "github.com/angelmondragon/packfinderz-rewards/pkg/errors"
)

const (
	DefaultCodeLength = 8
	MinCustomCodeLen  = 3
	MaxCustomCodeLen  = 32

	// no 0/o or 1/l so generated codes survive being read aloud
	codeAlphabet = "abcdefghijkmnpqrstuvwxyz23456789"
)

var reservedCodes = map[string]struct{}{
	"admin":     {},
	"api":       {},
	"null":      {},
	"undefined": {},
	"affiliate": {},
	"support":   {},
	"root":      {},
	"system":    {},
}

// GenerateCode returns a random lowercase code of length n.
func GenerateCode(n int) (string, error) {
	if n <= 0 {
		n = DefaultCodeLength
	}
	max := big.NewInt(int64(len(codeAlphabet)))
	var b strings.Builder
	b.Grow(n)
	for i := 0; i < n; i++ {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("generate affiliate code: %w", err)
		}
		b.WriteByte(codeAlphabet[idx.Int64()])
	}
	return b.String(), nil
}

// NormalizeCode trims a user-chosen code and validates it. The returned code
// keeps the caller's casing; uniqueness is decided on its lowercase form.
func NormalizeCode(raw string) (string, error) {
	code := strings.TrimSpace(raw)
	if len(code) < MinCustomCodeLen || len(code) > MaxCustomCodeLen {
		return "", pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("code must be %d-%d characters", MinCustomCodeLen, MaxCustomCodeLen))
	}
	for _, r := range code {
		if !isCodeRune(r) {
			return "", pkgerrors.New(pkgerrors.CodeValidation, "code may only contain letters, digits, '-' and '_'")
		}
	}
	if _, reserved := reservedCodes[strings.ToLower(code)]; reserved {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "code is reserved")
	}
	return code, nil
}

func isCodeRune(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return true
	case r == '-' || r == '_':
		return true
	}
	return false
}
