package utils

import (
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/crypto"
)

// ToCanonicalAddress converts a raw Starknet felt field (hex or decimal
// string) into canonical address form: "0x" followed by lowercase hex with
// no leading zeros. Malformed input falls back to the lowercased raw string
// so a bad field never aborts the enclosing batch.
func ToCanonicalAddress(raw string) string {
	v, ok := parseFelt(raw)
	if !ok {
		return strings.ToLower(strings.TrimSpace(raw))
	}
	return "0x" + v.Text(16)
}

// IsZeroAddress reports whether the field is the zero address, regardless of
// leading-zero padding in the hex encoding.
func IsZeroAddress(raw string) bool {
	v, ok := parseFelt(raw)
	return ok && v.Sign() == 0
}

// SameAddress compares two address fields after canonicalization.
// Empty fields never match anything.
func SameAddress(a, b string) bool {
	if strings.TrimSpace(a) == "" || strings.TrimSpace(b) == "" {
		return false
	}
	return ToCanonicalAddress(a) == ToCanonicalAddress(b)
}

// ToTokenID converts a raw felt field into a decimal token identifier
// string, falling back to the trimmed raw string on parse failure.
func ToTokenID(raw string) string {
	v, ok := parseFelt(raw)
	if !ok {
		return strings.TrimSpace(raw)
	}
	return v.String()
}

// parseFelt parses a felt encoded as a hex (0x-prefixed) or decimal string.
func parseFelt(raw string) (*big.Int, bool) {
	s := strings.TrimSpace(strings.ToLower(raw))
	if s == "" {
		return nil, false
	}
	v := new(big.Int)
	if strings.HasPrefix(s, "0x") {
		if _, ok := v.SetString(s[2:], 16); !ok {
			return nil, false
		}
		return v, true
	}
	if _, ok := v.SetString(s, 10); !ok {
		return nil, false
	}
	return v, true
}

// EventSelector returns the sn_keccak selector for an event name: keccak256
// of the name truncated to its low 250 bits, hex encoded.
func EventSelector(name string) string {
	h := crypto.Keccak256([]byte(name))
	v := new(big.Int).SetBytes(h)
	mask := new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 250), big.NewInt(1))
	v.And(v, mask)
	return "0x" + v.Text(16)
}
