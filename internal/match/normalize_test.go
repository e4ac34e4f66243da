package match

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeID(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"970101-10-1234", "970101101234"},
		{"9701011  01234", "970101101234"},
		{" a1234567 ", "A1234567"},
		{"", ""},
		{"- - -", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NormalizeID(tt.in), "input %q", tt.in)
	}
}

func TestHyphenate624(t *testing.T) {
	assert.Equal(t, "970101-10-1234", Hyphenate624("970101101234"))
	assert.Empty(t, Hyphenate624("97010110123"), "too short")
	assert.Empty(t, Hyphenate624("9701011012345"), "too long")
	assert.Empty(t, Hyphenate624("97010110123X"), "non-digit")
	assert.Empty(t, Hyphenate624(""))
}
