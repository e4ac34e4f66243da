package roll

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/civicworks/roster-cli/internal/model"
)

func TestExportCSV(t *testing.T) {
	dob := time.Date(1997, 1, 2, 0, 0, 0, 0, time.UTC)
	serial := 7
	voters := []model.Voter{
		{
			SerialNo:       &serial,
			NRIC:           "970101101234",
			Name:           `Ali "Sang" Budi`,
			DOB:            &dob,
			Address:        "12, Jalan Besar",
			Postcode:       "56000",
			PollingStation: "SK Taman Aman",
		},
	}

	var b strings.Builder
	require.NoError(t, ExportCSV(&b, voters))

	lines := strings.Split(strings.TrimRight(b.String(), "\n"), "\n")
	require.Len(t, lines, 2)

	assert.True(t, strings.HasPrefix(lines[0], "serial_no,nric,old_nric,name,"), "fixed header order")
	assert.Contains(t, lines[0], ",voter_category,polling_station,voting_time,channel")
	assert.Contains(t, lines[1], `"Ali ""Sang"" Budi"`, "internal quotes doubled")
	assert.Contains(t, lines[1], `"12, Jalan Besar"`, "address quoted")
	assert.Contains(t, lines[1], "02/01/1997", "dob as DD/MM/YYYY")
	assert.Contains(t, lines[1], "SK Taman Aman")
	assert.True(t, strings.HasPrefix(lines[1], "7,970101101234,"))
	assert.Equal(t, len(ParseLine(lines[0])), len(ParseLine(lines[1])), "row width matches header")
}

func TestExportCSV_NullFieldsEmpty(t *testing.T) {
	var b strings.Builder
	require.NoError(t, ExportCSV(&b, []model.Voter{{Name: "Ali"}}))

	lines := strings.Split(strings.TrimRight(b.String(), "\n"), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[1], `,,,"Ali",`), "null serial and identifiers render empty")
}

func TestExportGeoJSON(t *testing.T) {
	lat, lng := 3.1390, 101.6869
	voters := []model.Voter{
		{ID: "a", Name: "Ali", Address: "12, Jalan Besar", Locality: "Taman Aman", Lat: &lat, Lng: &lng},
		{ID: "b", Name: "No Coords"},
	}

	var b strings.Builder
	require.NoError(t, ExportGeoJSON(&b, voters))

	var fc struct {
		Type     string `json:"type"`
		Features []struct {
			Geometry struct {
				Coordinates []float64 `json:"coordinates"`
			} `json:"geometry"`
			Properties map[string]any `json:"properties"`
		} `json:"features"`
	}
	require.NoError(t, json.Unmarshal([]byte(b.String()), &fc))

	assert.Equal(t, "FeatureCollection", fc.Type)
	require.Len(t, fc.Features, 1, "ungeocoded voters are skipped")
	assert.InDelta(t, 101.6869, fc.Features[0].Geometry.Coordinates[0], 1e-9)
	assert.InDelta(t, 3.1390, fc.Features[0].Geometry.Coordinates[1], 1e-9)
	assert.Equal(t, "Ali", fc.Features[0].Properties["name"])
}
