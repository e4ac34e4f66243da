package match

import (
	"context"
	"sync"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/civicworks/roster-cli/internal/model"
)

type fakeMatchStore struct {
	mu       sync.Mutex
	versions map[string]bool
	voters   []model.Voter
	members  []model.HouseholdMember
	linked   map[string]string // voter id -> member id
}

func newFakeMatchStore(versionID string) *fakeMatchStore {
	return &fakeMatchStore{
		versions: map[string]bool{versionID: true},
		linked:   make(map[string]string),
	}
}

func (s *fakeMatchStore) GetVersion(_ context.Context, id string) (*model.RosterVersion, error) {
	if !s.versions[id] {
		return nil, eris.Errorf("version not found: %s", id)
	}
	return &model.RosterVersion{ID: id}, nil
}

func (s *fakeMatchStore) UnlinkedVoters(_ context.Context, versionID string) ([]model.Voter, error) {
	var out []model.Voter
	for _, v := range s.voters {
		if v.VersionID == versionID && v.HouseholdMemberID == nil {
			out = append(out, v)
		}
	}
	return out, nil
}

func (s *fakeMatchStore) ListHouseholdMembers(_ context.Context) ([]model.HouseholdMember, error) {
	return s.members, nil
}

func (s *fakeMatchStore) LinkVoterHousehold(_ context.Context, voterID, memberID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.linked[voterID] = memberID
	return nil
}

func TestIndex_MatchByIdentifierSpellings(t *testing.T) {
	idx := NewIndex([]model.HouseholdMember{
		{ID: "m1", Name: "Ali bin Abu", NRIC: "970101-10-1234"},
		{ID: "m2", Name: "Siti binti Omar", NRIC: "850505-10-4321"},
	})

	// Spacing garbage in the roll still resolves to the hyphenated member.
	got, ok := idx.Match(&model.Voter{Name: "someone else", NRIC: "9701011  01234"})
	require.True(t, ok)
	assert.Equal(t, "m1", got)

	// Unknown identifier falls through to the name index.
	got, ok = idx.Match(&model.Voter{Name: "Ali Bin Abu", NRIC: "000000-00-0000"})
	require.True(t, ok)
	assert.Equal(t, "m1", got, "unique case-insensitive name")

	_, ok = idx.Match(&model.Voter{Name: "nobody", NRIC: ""})
	assert.False(t, ok)
}

func TestIndex_OldNRICFallback(t *testing.T) {
	idx := NewIndex([]model.HouseholdMember{
		{ID: "m1", Name: "Ali", NRIC: "A123456"},
	})

	got, ok := idx.Match(&model.Voter{Name: "different name", NRIC: "999999-99-9999", OldNRIC: "a123456"})
	require.True(t, ok)
	assert.Equal(t, "m1", got)
}

func TestIndex_AmbiguousNameNeverLinks(t *testing.T) {
	idx := NewIndex([]model.HouseholdMember{
		{ID: "m1", Name: "Ahmad"},
		{ID: "m2", Name: "AHMAD"},
	})

	_, ok := idx.Match(&model.Voter{Name: "ahmad"})
	assert.False(t, ok, "two members fold to the same name")
}

func TestMatcher_Run(t *testing.T) {
	s := newFakeMatchStore("v1")
	s.members = []model.HouseholdMember{
		{ID: "m1", Name: "Ali bin Abu", NRIC: "970101-10-1234"},
		{ID: "m2", Name: "Siti binti Omar", NRIC: "850505-10-4321"},
		{ID: "m3", Name: "Ahmad"},
		{ID: "m4", Name: "ahmad"},
	}
	s.voters = []model.Voter{
		{ID: "voter-1", VersionID: "v1", Name: "A. Abu", NRIC: "970101101234"},
		{ID: "voter-2", VersionID: "v1", Name: "SITI BINTI OMAR"},
		{ID: "voter-3", VersionID: "v1", Name: "Ahmad"},
		{ID: "voter-4", VersionID: "v1", Name: "Stranger", NRIC: "111111-11-1111"},
	}

	m := NewMatcher(s, WithUpdateBatchSize(2))
	result, err := m.Run(context.Background(), "v1")
	require.NoError(t, err)

	assert.Equal(t, 2, result.Matched)
	assert.Equal(t, 2, result.Unmatched)
	assert.Equal(t, 4, result.Total)

	assert.Equal(t, "m1", s.linked["voter-1"])
	assert.Equal(t, "m2", s.linked["voter-2"])
	_, linked := s.linked["voter-3"]
	assert.False(t, linked, "ambiguous name must stay unlinked")
	_, linked = s.linked["voter-4"]
	assert.False(t, linked)
}

func TestMatcher_Run_UnknownVersion(t *testing.T) {
	m := NewMatcher(newFakeMatchStore("v1"))
	_, err := m.Run(context.Background(), "ghost")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "version")
}

func TestMatcher_Run_Idempotent(t *testing.T) {
	s := newFakeMatchStore("v1")
	s.members = []model.HouseholdMember{{ID: "m1", Name: "Ali", NRIC: "970101-10-1234"}}
	member := "m1"
	s.voters = []model.Voter{
		{ID: "voter-1", VersionID: "v1", Name: "Ali", NRIC: "970101-10-1234", HouseholdMemberID: &member},
	}

	m := NewMatcher(s)
	result, err := m.Run(context.Background(), "v1")
	require.NoError(t, err)
	assert.Zero(t, result.Total, "already-linked voters are not candidates")
	assert.Empty(t, s.linked)
}
