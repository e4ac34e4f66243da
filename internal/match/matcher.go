package match

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/text/cases"

	"github.com/civicworks/roster-cli/internal/model"
)

// VoterStore is the slice of the persistence layer the matcher needs.
type VoterStore interface {
	GetVersion(ctx context.Context, id string) (*model.RosterVersion, error)
	UnlinkedVoters(ctx context.Context, versionID string) ([]model.Voter, error)
	ListHouseholdMembers(ctx context.Context) ([]model.HouseholdMember, error)
	LinkVoterHousehold(ctx context.Context, voterID, memberID string) error
}

// Result summarizes one matcher pass over a roster version.
type Result struct {
	Matched   int `json:"matched"`
	Unmatched int `json:"unmatched"`
	Total     int `json:"total"`
}

const defaultUpdateBatchSize = 100

// updateConcurrency caps the in-flight link updates within one batch.
const updateConcurrency = 10

// Matcher links roster voters to externally-owned household members by
// national identifier, falling back to unique names. Running it twice is
// harmless: linked voters are excluded from the candidate set.
type Matcher struct {
	store     VoterStore
	batchSize int
	log       *zap.Logger
}

// MatcherOption customizes a Matcher.
type MatcherOption func(*Matcher)

// WithUpdateBatchSize overrides how many queued links are applied per batch.
func WithUpdateBatchSize(n int) MatcherOption {
	return func(m *Matcher) {
		if n > 0 {
			m.batchSize = n
		}
	}
}

// NewMatcher creates a Matcher with production defaults.
func NewMatcher(s VoterStore, opts ...MatcherOption) *Matcher {
	m := &Matcher{
		store:     s,
		batchSize: defaultUpdateBatchSize,
		log:       zap.L().With(zap.String("component", "match")),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// nameEntry counts how many members share one folded name. Only an entry
// with count 1 may ever produce a link.
type nameEntry struct {
	memberID string
	count    int
}

// Index holds household members keyed by every identifier spelling the
// roll is known to use, plus a case-folded name index with an ambiguity
// count.
type Index struct {
	byID   map[string]string
	byName map[string]nameEntry
	folder cases.Caser
}

// NewIndex builds the lookup structure for a set of household members.
func NewIndex(members []model.HouseholdMember) *Index {
	idx := &Index{
		byID:   make(map[string]string, len(members)*3),
		byName: make(map[string]nameEntry, len(members)),
		folder: cases.Fold(),
	}
	for _, m := range members {
		for _, key := range idSpellings(m.NRIC) {
			if key != "" {
				idx.byID[key] = m.ID
			}
		}
		name := idx.folder.String(strings.TrimSpace(m.Name))
		if name != "" {
			e := idx.byName[name]
			e.memberID = m.ID
			e.count++
			idx.byName[name] = e
		}
	}
	return idx
}

// idSpellings returns the raw-trimmed, normalized, and 6-2-4 hyphenated
// spellings of one identifier.
func idSpellings(raw string) []string {
	norm := NormalizeID(raw)
	return []string{strings.TrimSpace(raw), norm, Hyphenate624(norm)}
}

// Match resolves one voter to a household member id. Identifier matches
// take priority over names; a name shared by more than one member never
// links.
func (idx *Index) Match(v *model.Voter) (string, bool) {
	for _, id := range []string{v.NRIC, v.OldNRIC} {
		if strings.TrimSpace(id) == "" {
			continue
		}
		for _, key := range idSpellings(id) {
			if key == "" {
				continue
			}
			if memberID, ok := idx.byID[key]; ok {
				return memberID, true
			}
		}
	}

	name := idx.folder.String(strings.TrimSpace(v.Name))
	if name == "" {
		return "", false
	}
	if e, ok := idx.byName[name]; ok && e.count == 1 {
		return e.memberID, true
	}
	return "", false
}

type link struct {
	voterID  string
	memberID string
}

// Run matches every unlinked voter in a version and persists the links.
// Links are applied in batches; rows within a batch update concurrently,
// batches run sequentially so progress is bounded when a run is cut short.
func (m *Matcher) Run(ctx context.Context, versionID string) (*Result, error) {
	if _, err := m.store.GetVersion(ctx, versionID); err != nil {
		return nil, eris.Wrapf(err, "match: version %s", versionID)
	}

	members, err := m.store.ListHouseholdMembers(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "match: list household members")
	}
	voters, err := m.store.UnlinkedVoters(ctx, versionID)
	if err != nil {
		return nil, eris.Wrap(err, "match: unlinked voters")
	}

	idx := NewIndex(members)

	var links []link
	for i := range voters {
		if memberID, ok := idx.Match(&voters[i]); ok {
			links = append(links, link{voterID: voters[i].ID, memberID: memberID})
		}
	}

	for start := 0; start < len(links); start += m.batchSize {
		end := start + m.batchSize
		if end > len(links) {
			end = len(links)
		}
		if err := m.applyBatch(ctx, links[start:end]); err != nil {
			return nil, err
		}
	}

	result := &Result{
		Matched:   len(links),
		Unmatched: len(voters) - len(links),
		Total:     len(voters),
	}
	m.log.Info("matcher pass complete",
		zap.String("version_id", versionID),
		zap.Int("members", len(members)),
		zap.Int("matched", result.Matched),
		zap.Int("unmatched", result.Unmatched),
	)
	return result, nil
}

func (m *Matcher) applyBatch(ctx context.Context, batch []link) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(updateConcurrency)
	for _, l := range batch {
		g.Go(func() error {
			return m.store.LinkVoterHousehold(ctx, l.voterID, l.memberID)
		})
	}
	return eris.Wrap(g.Wait(), "match: apply links")
}
