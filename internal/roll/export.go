package roll

import (
	"io"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/civicworks/roster-cli/internal/model"
)

// exportColumns is the fixed, ordered header of the roll interchange
// format. Downstream consumers depend on this ordering.
var exportColumns = []string{
	ColSerialNo, ColNRIC, ColOldNRIC, ColName, ColPhone, ColSex, ColDOB,
	ColEthnicity, ColReligion, ColEthnicCategory, ColHouseNo, ColAddress,
	ColPostcode, ColDistrict, ColLocalityCode, ColParliament,
	ColConstituency, ColPollingDistrict, ColLocality, ColVoterCategory,
	ColPollingStation, ColVotingTime, ColChannel,
}

// ExportCSV writes voters in the fixed interchange format: dob rendered as
// DD/MM/YYYY, name and address quoted with internal quotes doubled.
func ExportCSV(w io.Writer, voters []model.Voter) error {
	if _, err := io.WriteString(w, strings.Join(exportColumns, ",")+"\n"); err != nil {
		return eris.Wrap(err, "roll: write export header")
	}

	for i := range voters {
		if _, err := io.WriteString(w, exportRow(&voters[i])+"\n"); err != nil {
			return eris.Wrapf(err, "roll: write export row %d", i+2)
		}
	}
	return nil
}

func exportRow(v *model.Voter) string {
	dob := ""
	if v.DOB != nil {
		dob = v.DOB.Format("02/01/2006")
	}

	fields := []string{
		optionalInt(v.SerialNo),
		v.NRIC,
		v.OldNRIC,
		quote(v.Name),
		v.Phone,
		v.Sex,
		dob,
		v.Ethnicity,
		v.Religion,
		v.EthnicCategory,
		v.HouseNo,
		quote(v.Address),
		v.Postcode,
		v.District,
		v.LocalityCode,
		v.Parliament,
		v.Constituency,
		v.PollingDistrict,
		v.Locality,
		v.VoterCategory,
		v.PollingStation,
		v.VotingTime,
		optionalInt(v.ChannelNo),
	}
	return strings.Join(fields, ",")
}

// quote wraps a value in double quotes, doubling any internal quote.
func quote(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

func optionalInt(n *int) string {
	if n == nil {
		return ""
	}
	return strconv.Itoa(*n)
}
