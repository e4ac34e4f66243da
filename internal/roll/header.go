package roll

import (
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// Canonical column names consumed by the importer. Header matching is
// case-sensitive; anything not listed here is ignored.
const (
	ColSerialNo        = "serial_no"
	ColNRIC            = "nric"
	ColOldNRIC         = "old_nric"
	ColName            = "name"
	ColPhone           = "phone"
	ColSex             = "sex"
	ColDOB             = "dob"
	ColEthnicity       = "ethnicity"
	ColReligion        = "religion"
	ColEthnicCategory  = "ethnic_category"
	ColHouseNo         = "house_no"
	ColAddress         = "address"
	ColPostcode        = "postcode"
	ColDistrict        = "district"
	ColLocalityCode    = "locality_code"
	ColParliament      = "parliament"
	ColConstituency    = "constituency"
	ColPollingDistrict = "polling_district"
	ColLocality        = "locality"
	ColVoterCategory   = "voter_category"
	ColPollingStation  = "polling_station"
	ColVotingTime      = "voting_time"
	ColChannel         = "channel"
)

// HeaderMap builds a column-name → index lookup from a header row.
// Aliases (foreign header spelling → canonical name) are applied before
// mapping; pass nil when the export already uses canonical names.
func HeaderMap(fields []string, aliases map[string]string) map[string]int {
	header := make(map[string]int, len(fields))
	for i, name := range fields {
		name = strings.TrimSpace(name)
		if canonical, ok := aliases[name]; ok {
			name = canonical
		}
		if _, seen := header[name]; seen {
			continue // first occurrence wins
		}
		header[name] = i
	}
	return header
}

// ValidateHeader rejects a header missing the required name column.
func ValidateHeader(header map[string]int) error {
	if _, ok := header[ColName]; !ok {
		return eris.Errorf("roll: required column %q not found in header", ColName)
	}
	return nil
}

// Field looks a column up by name. A missing column or an index beyond the
// row's fields yields the empty string, never an error.
func Field(fields []string, header map[string]int, col string) string {
	idx, ok := header[col]
	if !ok || idx < 0 || idx >= len(fields) {
		return ""
	}
	return fields[idx]
}

// LoadAliases reads an optional YAML file mapping export header spellings
// to canonical column names.
func LoadAliases(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "roll: read alias file %s", path)
	}
	aliases := make(map[string]string)
	if err := yaml.Unmarshal(data, &aliases); err != nil {
		return nil, eris.Wrapf(err, "roll: parse alias file %s", path)
	}
	return aliases, nil
}
