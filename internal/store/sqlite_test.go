package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/civicworks/roster-cli/internal/model"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLite(filepath.Join(t.TempDir(), "roster.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

func TestSQLiteStore_VersionLifecycle(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	v1, err := s.CreateVersion(ctx, "2026 preliminary roll")
	require.NoError(t, err)
	v2, err := s.CreateVersion(ctx, "2026 final roll")
	require.NoError(t, err)

	got, err := s.GetVersion(ctx, v1.ID)
	require.NoError(t, err)
	assert.Equal(t, "2026 preliminary roll", got.Name)
	assert.False(t, got.Active)

	require.NoError(t, s.SetActiveVersion(ctx, v1.ID))
	require.NoError(t, s.SetActiveVersion(ctx, v2.ID))

	versions, err := s.ListVersions(ctx)
	require.NoError(t, err)
	require.Len(t, versions, 2)
	for _, v := range versions {
		assert.Equal(t, v.ID == v2.ID, v.Active, "only the last activated version stays active")
	}

	err = s.SetActiveVersion(ctx, "ghost")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "version not found")
}

func TestSQLiteStore_VoterRoundTrip(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	v, err := s.CreateVersion(ctx, "test roll")
	require.NoError(t, err)

	dob := time.Date(1970, 1, 2, 0, 0, 0, 0, time.UTC)
	serial := 7
	inserted, rowErrs := s.InsertVoterBatch(ctx, []model.Voter{
		{VersionID: v.ID, Name: "Ali bin Abu", NRIC: "700102-10-5523", SerialNo: &serial, DOB: &dob, Address: "12 Jalan Besar", Postcode: "56000"},
		{VersionID: v.ID, Name: "Siti binti Omar", NRIC: "710305-10-5524"},
	})
	require.Empty(t, rowErrs)
	assert.Equal(t, 2, inserted)

	count, err := s.CountVoters(ctx, v.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	voters, err := s.ListVoters(ctx, v.ID, VoterFilter{})
	require.NoError(t, err)
	require.Len(t, voters, 2)

	var ali *model.Voter
	for i := range voters {
		if voters[i].Name == "Ali bin Abu" {
			ali = &voters[i]
		}
	}
	require.NotNil(t, ali)
	require.NotNil(t, ali.SerialNo)
	assert.Equal(t, 7, *ali.SerialNo)
	require.NotNil(t, ali.DOB)
	assert.Equal(t, dob.Format("2006-01-02"), ali.DOB.UTC().Format("2006-01-02"))
	assert.Nil(t, ali.Lat)
	assert.Nil(t, ali.HouseholdMemberID)
}

func TestSQLiteStore_LinkAndGeocodeSelections(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	v, err := s.CreateVersion(ctx, "test roll")
	require.NoError(t, err)

	inserted, rowErrs := s.InsertVoterBatch(ctx, []model.Voter{
		{VersionID: v.ID, Name: "Ali", Address: "12 Jalan Besar"},
		{VersionID: v.ID, Name: "Siti", Address: "3 Lorong Damai"},
		{VersionID: v.ID, Name: "No Address"},
	})
	require.Empty(t, rowErrs)
	require.Equal(t, 3, inserted)

	unlinked, err := s.UnlinkedVoters(ctx, v.ID)
	require.NoError(t, err)
	require.Len(t, unlinked, 3)

	require.NoError(t, s.LinkVoterHousehold(ctx, unlinked[0].ID, "hh-1"))
	unlinked, err = s.UnlinkedVoters(ctx, v.ID)
	require.NoError(t, err)
	assert.Len(t, unlinked, 2)

	// Voters without an address are never geocoding targets.
	ungeocoded, err := s.UngeocodedVoters(ctx, v.ID)
	require.NoError(t, err)
	require.Len(t, ungeocoded, 2)
	for _, u := range ungeocoded {
		assert.NotEmpty(t, u.Address)
	}

	require.NoError(t, s.SetVoterLocation(ctx, ungeocoded[0].ID, 3.1578, 101.7119))

	n, err := s.CountUngeocoded(ctx, v.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	geocoded, err := s.GeocodedVoters(ctx, v.ID)
	require.NoError(t, err)
	require.Len(t, geocoded, 1)
	require.NotNil(t, geocoded[0].Lat)
	assert.InDelta(t, 3.1578, *geocoded[0].Lat, 1e-9)

	deleted, err := s.ClearVersionVoters(ctx, v.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, deleted)
}

func TestSQLiteStore_GeocodeJobLifecycle(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	v, err := s.CreateVersion(ctx, "test roll")
	require.NoError(t, err)

	job, err := s.CreateGeocodeJob(ctx, v.ID, 25)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusPending, job.Status)

	active, err := s.ActiveGeocodeJob(ctx, v.ID)
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.Equal(t, job.ID, active.ID)

	require.NoError(t, s.MarkJobRunning(ctx, job.ID))
	got, err := s.GetGeocodeJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusRunning, got.Status)
	require.NotNil(t, got.StartedAt)
	firstStart := *got.StartedAt

	require.NoError(t, s.UpdateJobProgress(ctx, job.ID, model.JobProgress{Processed: 10, Geocoded: 8, Failed: 1, Skipped: 1}))

	ok, err := s.TransitionJobStatus(ctx, job.ID, model.JobStatusRunning, model.JobStatusPaused)
	require.NoError(t, err)
	assert.True(t, ok)

	// Pausing an already-paused job must be a no-op.
	ok, err = s.TransitionJobStatus(ctx, job.ID, model.JobStatusRunning, model.JobStatusPaused)
	require.NoError(t, err)
	assert.False(t, ok)

	// Resuming keeps the original start time.
	ok, err = s.TransitionJobStatus(ctx, job.ID, model.JobStatusPaused, model.JobStatusRunning)
	require.NoError(t, err)
	assert.True(t, ok)
	require.NoError(t, s.MarkJobRunning(ctx, job.ID))
	got, err = s.GetGeocodeJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, firstStart.Unix(), got.StartedAt.Unix())

	require.NoError(t, s.FinishJob(ctx, job.ID, model.JobStatusCompleted, ""))
	got, err = s.GetGeocodeJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusCompleted, got.Status)
	assert.Equal(t, 10, got.Processed)
	require.NotNil(t, got.CompletedAt)

	active, err = s.ActiveGeocodeJob(ctx, v.ID)
	require.NoError(t, err)
	assert.Nil(t, active)

	jobs, err := s.ListGeocodeJobs(ctx, v.ID)
	require.NoError(t, err)
	assert.Len(t, jobs, 1)
}
