package model

// HouseholdMember is a person record owned by the household subsystem.
// This core only reads it as a linking target for voters.
type HouseholdMember struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	NRIC string `json:"nric,omitempty"`
}
