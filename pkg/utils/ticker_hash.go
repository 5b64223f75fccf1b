package utils

import (
	"encoding/hex"
	"strings"

	"golang.org/x/crypto/sha3"
)

// TickerHash returns the canonical 32-byte identifier of an asset family
// as a 0x-prefixed hex string: keccak256 of the upper-cased symbol.
func TickerHash(symbol string) string {
	h := sha3.NewLegacyKeccak256()
	h.Write([]byte(strings.ToUpper(symbol)))
	return "0x" + hex.EncodeToString(h.Sum(nil))
}

// NormalizeHex lower-cases a hex string and ensures the 0x prefix.
func NormalizeHex(s string) string {
	s = strings.ToLower(s)
	if !strings.HasPrefix(s, "0x") {
		s = "0x" + s
	}
	return s
}
