package roll

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHeaderMap_Basic(t *testing.T) {
	header := HeaderMap([]string{"serial_no", "name", "address"}, nil)
	assert.Equal(t, 0, header["serial_no"])
	assert.Equal(t, 1, header["name"])
	assert.Equal(t, 2, header["address"])
}

func TestHeaderMap_FirstOccurrenceWins(t *testing.T) {
	header := HeaderMap([]string{"name", "name"}, nil)
	assert.Equal(t, 0, header["name"])
}

func TestHeaderMap_Aliases(t *testing.T) {
	aliases := map[string]string{"Nama": "name", "No KP": "nric"}
	header := HeaderMap([]string{"Nama", "No KP"}, aliases)
	assert.Equal(t, 0, header["name"])
	assert.Equal(t, 1, header["nric"])
}

func TestValidateHeader_MissingName(t *testing.T) {
	err := ValidateHeader(map[string]int{"address": 0})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `required column "name"`)

	assert.NoError(t, ValidateHeader(map[string]int{"name": 0}))
}

func TestField_MissingOrOutOfRange(t *testing.T) {
	header := map[string]int{"name": 0, "phone": 5}
	fields := []string{"Ali"}

	assert.Equal(t, "Ali", Field(fields, header, "name"))
	assert.Equal(t, "", Field(fields, header, "phone"), "index beyond row yields empty")
	assert.Equal(t, "", Field(fields, header, "address"), "unknown column yields empty")
}

func TestLoadAliases(t *testing.T) {
	path := filepath.Join(t.TempDir(), "aliases.yaml")
	require.NoError(t, os.WriteFile(path, []byte("Nama: name\nAlamat: address\n"), 0o644))

	aliases, err := LoadAliases(path)
	require.NoError(t, err)
	assert.Equal(t, "name", aliases["Nama"])
	assert.Equal(t, "address", aliases["Alamat"])
}

func TestLoadAliases_MissingFile(t *testing.T) {
	_, err := LoadAliases(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}
