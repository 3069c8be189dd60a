package verify

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"math/big"
	"strconv"
)

const tokenBytes = 32 // 256 bits of entropy, hex encoded

var codeRange = big.NewInt(900000)

// GenerateCode produces a 6-digit numeric code uniformly distributed over
// 100000–999999. The leading digit is never zero, matching the codes the
// platform has always issued. Randomness comes from the operating system's
// CSPRNG; if that fails the issuing flow must abort rather than fall back
// to a predictable source.
func GenerateCode() (string, error) {
	n, err := rand.Int(rand.Reader, codeRange)
	if err != nil {
		return "", fmt.Errorf("verify: generate code: %w", err)
	}
	return strconv.FormatInt(100000+n.Int64(), 10), nil
}

// GenerateToken produces an opaque lowercase hex token used as a bearer
// credential and as its own store key. 32 random bytes make collisions and
// guessing infeasible without explicit collision handling.
func GenerateToken() (string, error) {
	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("verify: generate token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
