package model

import "time"

// Voter is one electoral-roll entry belonging to a RosterVersion.
// Name is the only hard-required field; everything else tolerates the
// gaps found in real roll exports.
type Voter struct {
	ID        string `json:"id"`
	VersionID string `json:"version_id"`

	SerialNo *int   `json:"serial_no,omitempty"`
	NRIC     string `json:"nric,omitempty"`     // current national identifier
	OldNRIC  string `json:"old_nric,omitempty"` // legacy national identifier
	Name     string `json:"name"`
	Phone    string `json:"phone,omitempty"`
	Sex      string `json:"sex,omitempty"`

	DOB *time.Time `json:"dob,omitempty"`

	Ethnicity      string `json:"ethnicity,omitempty"`
	Religion       string `json:"religion,omitempty"`
	EthnicCategory string `json:"ethnic_category,omitempty"`

	HouseNo         string `json:"house_no,omitempty"`
	Address         string `json:"address,omitempty"`
	Postcode        string `json:"postcode,omitempty"`
	District        string `json:"district,omitempty"`
	LocalityCode    string `json:"locality_code,omitempty"`
	Parliament      string `json:"parliament,omitempty"`
	Constituency    string `json:"constituency,omitempty"`
	PollingDistrict string `json:"polling_district,omitempty"`
	Locality        string `json:"locality,omitempty"`
	VoterCategory   string `json:"voter_category,omitempty"`
	PollingStation  string `json:"polling_station,omitempty"`
	VotingTime      string `json:"voting_time,omitempty"`
	ChannelNo       *int   `json:"channel,omitempty"`

	Lat *float64 `json:"lat,omitempty"`
	Lng *float64 `json:"lng,omitempty"`

	// HouseholdMemberID links this voter to an externally-owned household
	// member record once the matcher finds one.
	HouseholdMemberID *string `json:"household_member_id,omitempty"`

	// SupportStatus is a downstream classification tag; never set here.
	SupportStatus *string `json:"support_status,omitempty"`
}

// Geocoded reports whether the voter already has coordinates.
func (v *Voter) Geocoded() bool {
	return v.Lat != nil && v.Lng != nil
}
