package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestToCanonicalAddress(t *testing.T) {
	// Leading zeros are stripped
	assert.Equal(t, "0xabc", ToCanonicalAddress("0x0000abc"))
	// Uppercase hex is lowered
	assert.Equal(t, "0xdeadbeef", ToCanonicalAddress("0xDEADBEEF"))
	// Decimal felts convert to hex
	assert.Equal(t, "0xff", ToCanonicalAddress("255"))
	// Zero collapses to the sentinel form regardless of padding
	assert.Equal(t, "0x0", ToCanonicalAddress("0x000000"))
	// Malformed input falls back to the lowercased raw string
	assert.Equal(t, "not-an-address", ToCanonicalAddress("Not-An-Address"))
	assert.Equal(t, "0x", ToCanonicalAddress("0x"))
}

func TestIsZeroAddress(t *testing.T) {
	assert.True(t, IsZeroAddress("0x0"))
	assert.True(t, IsZeroAddress("0x000000000000"))
	assert.True(t, IsZeroAddress("0"))
	assert.False(t, IsZeroAddress("0x1"))
	assert.False(t, IsZeroAddress(""))
	assert.False(t, IsZeroAddress("junk"))
}

func TestSameAddress(t *testing.T) {
	assert.True(t, SameAddress("0x00AB", "0xab"))
	assert.True(t, SameAddress("171", "0xAB"))
	assert.False(t, SameAddress("0xab", "0xac"))
	// Empty never matches, including against another empty
	assert.False(t, SameAddress("", ""))
	assert.False(t, SameAddress("0xab", ""))
}

func TestEventSelector(t *testing.T) {
	sel := EventSelector("Transfer")
	assert.True(t, len(sel) > 2)
	assert.Equal(t, "0x", sel[:2])
	// Stable across calls
	assert.Equal(t, sel, EventSelector("Transfer"))
	// Distinct names produce distinct selectors
	assert.NotEqual(t, sel, EventSelector("Approval"))
}
