package model

import "time"

// RosterVersion is a named, dated snapshot of the electoral roll.
// At most one version is flagged active at any time; the store enforces
// this whenever the active flag is set.
type RosterVersion struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}
