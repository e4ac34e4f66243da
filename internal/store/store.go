package store

import (
	"context"

	"github.com/civicworks/roster-cli/internal/db"
	"github.com/civicworks/roster-cli/internal/model"
)

// VoterFilter specifies criteria for listing voters.
type VoterFilter struct {
	Limit  int `json:"limit,omitempty"`
	Offset int `json:"offset,omitempty"`
}

// Store defines the persistence interface for the roster pipeline.
type Store interface {
	// Roster versions
	CreateVersion(ctx context.Context, name string) (*model.RosterVersion, error)
	GetVersion(ctx context.Context, id string) (*model.RosterVersion, error)
	ListVersions(ctx context.Context) ([]model.RosterVersion, error)
	SetActiveVersion(ctx context.Context, id string) error
	ClearVersionVoters(ctx context.Context, versionID string) (int, error)

	// Voters
	InsertVoter(ctx context.Context, v model.Voter) error
	InsertVoterBatch(ctx context.Context, voters []model.Voter) (int, []db.RowError)
	CountVoters(ctx context.Context, versionID string) (int, error)
	ListVoters(ctx context.Context, versionID string, filter VoterFilter) ([]model.Voter, error)
	UnlinkedVoters(ctx context.Context, versionID string) ([]model.Voter, error)
	UngeocodedVoters(ctx context.Context, versionID string) ([]model.Voter, error)
	CountUngeocoded(ctx context.Context, versionID string) (int, error)
	GeocodedVoters(ctx context.Context, versionID string) ([]model.Voter, error)
	LinkVoterHousehold(ctx context.Context, voterID, memberID string) error
	SetVoterLocation(ctx context.Context, voterID string, lat, lng float64) error

	// Household members (owned by the household system; read-only here)
	ListHouseholdMembers(ctx context.Context) ([]model.HouseholdMember, error)

	// Geocode jobs
	CreateGeocodeJob(ctx context.Context, versionID string, total int) (*model.GeocodeJob, error)
	GetGeocodeJob(ctx context.Context, jobID string) (*model.GeocodeJob, error)
	ActiveGeocodeJob(ctx context.Context, versionID string) (*model.GeocodeJob, error)
	ListGeocodeJobs(ctx context.Context, versionID string) ([]model.GeocodeJob, error)
	MarkJobRunning(ctx context.Context, jobID string) error
	TransitionJobStatus(ctx context.Context, jobID string, from, to model.JobStatus) (bool, error)
	UpdateJobProgress(ctx context.Context, jobID string, p model.JobProgress) error
	FinishJob(ctx context.Context, jobID string, status model.JobStatus, errMsg string) error

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
