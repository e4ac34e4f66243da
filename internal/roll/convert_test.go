package roll

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSerialDate(t *testing.T) {
	assert.Equal(t, time.Date(1900, 1, 1, 0, 0, 0, 0, time.UTC), SerialDate(2))
	assert.Equal(t, time.Date(1970, 1, 1, 0, 0, 0, 0, time.UTC), SerialDate(25569))
}

func TestParseDOB_SerialDate(t *testing.T) {
	dob := ParseDOB("25570")
	require.NotNil(t, dob)
	assert.Equal(t, time.Date(1970, 1, 2, 0, 0, 0, 0, time.UTC), *dob)
}

func TestParseDOB_SmallIntegerIsNotASerialDate(t *testing.T) {
	// Below the 1970-01-01 threshold: an implausible integer, not a date.
	assert.Nil(t, ParseDOB("123"))
	assert.Nil(t, ParseDOB("25569"))
}

func TestParseDOB_TextFormats(t *testing.T) {
	expect := time.Date(1997, 1, 2, 0, 0, 0, 0, time.UTC)

	for _, s := range []string{"02/01/1997", "2/1/1997", "1997-01-02", "02-01-1997"} {
		dob := ParseDOB(s)
		require.NotNil(t, dob, s)
		assert.Equal(t, expect, *dob, s)
	}
}

func TestParseDOB_Unparseable(t *testing.T) {
	assert.Nil(t, ParseDOB(""))
	assert.Nil(t, ParseDOB("   "))
	assert.Nil(t, ParseDOB("not a date"))
	assert.Nil(t, ParseDOB("31/31/1997"))
}

func TestParseOptionalInt(t *testing.T) {
	n := ParseOptionalInt(" 42 ")
	require.NotNil(t, n)
	assert.Equal(t, 42, *n)

	assert.Nil(t, ParseOptionalInt(""))
	assert.Nil(t, ParseOptionalInt("x42"))
	assert.Nil(t, ParseOptionalInt("4.2"))
}
