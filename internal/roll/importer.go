package roll

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/civicworks/roster-cli/internal/db"
	"github.com/civicworks/roster-cli/internal/model"
)

// VoterStore is the slice of the persistence layer the importer needs.
type VoterStore interface {
	GetVersion(ctx context.Context, id string) (*model.RosterVersion, error)
	InsertVoterBatch(ctx context.Context, voters []model.Voter) (int, []db.RowError)
}

// ImportResult reports the outcome of an import: how many rows made it in
// and a capped list of per-row error messages keyed by 1-based source row
// number. Row-level problems never abort the import.
type ImportResult struct {
	Imported int      `json:"imported"`
	Errors   []string `json:"errors,omitempty"`
}

// RowsOptions drives the chunked import entry point.
type RowsOptions struct {
	// StartRow is the 1-based source row number of the first data row
	// (2 for a file whose first line is the header).
	StartRow int
	// SkipVersionCheck lets a caller that already validated the target
	// version drive the importer across multiple chunks.
	SkipVersionCheck bool
}

// Importer streams parsed roll rows into the voter store in bounded
// batches, isolating per-row failures.
type Importer struct {
	store     VoterStore
	batchSize int
	maxErrors int
	aliases   map[string]string
}

// ImporterOption configures an Importer.
type ImporterOption func(*Importer)

// WithBatchSize overrides the flush threshold.
func WithBatchSize(n int) ImporterOption {
	return func(im *Importer) {
		if n > 0 {
			im.batchSize = n
		}
	}
}

// WithMaxErrors overrides the error-message cap.
func WithMaxErrors(n int) ImporterOption {
	return func(im *Importer) {
		if n > 0 {
			im.maxErrors = n
		}
	}
}

// WithAliases installs a header-alias map applied before column mapping.
func WithAliases(aliases map[string]string) ImporterOption {
	return func(im *Importer) { im.aliases = aliases }
}

// NewImporter creates an Importer with the default batch size (1000) and
// error cap (100).
func NewImporter(s VoterStore, opts ...ImporterOption) *Importer {
	im := &Importer{store: s, batchSize: 1000, maxErrors: 100}
	for _, opt := range opts {
		opt(im)
	}
	return im
}

// ImportCSV imports full CSV text into the given roster version. Line 0 is
// the header; structural problems (empty file, missing name column,
// unknown version) fail outright with nothing written.
func (im *Importer) ImportCSV(ctx context.Context, versionID, text string) (*ImportResult, error) {
	lines := SplitLines(text)
	if len(lines) == 0 {
		return nil, eris.New("roll: empty import file")
	}

	header := HeaderMap(ParseLine(lines[0]), im.aliases)
	if err := ValidateHeader(header); err != nil {
		return nil, err
	}

	return im.ImportLines(ctx, versionID, lines[1:], header, RowsOptions{StartRow: 2})
}

// ImportLines is the chunked variant: pre-split lines, a pre-built header
// map, and a starting row-number offset, with per-row semantics and error
// numbering identical to ImportCSV. Callers use it to drive one logical
// import across several smaller invocations.
func (im *Importer) ImportLines(ctx context.Context, versionID string, lines []string, header map[string]int, opts RowsOptions) (*ImportResult, error) {
	rows := make([][]string, len(lines))
	for i, line := range lines {
		if strings.TrimSpace(line) == "" {
			rows[i] = nil // blank line: not a row
			continue
		}
		rows[i] = ParseLine(line)
	}
	return im.ImportRows(ctx, versionID, rows, header, opts)
}

// ImportRows imports pre-tokenized rows. A nil or all-blank row is
// skipped without affecting numbering of the rows after it.
func (im *Importer) ImportRows(ctx context.Context, versionID string, rows [][]string, header map[string]int, opts RowsOptions) (*ImportResult, error) {
	if err := ValidateHeader(header); err != nil {
		return nil, err
	}
	if !opts.SkipVersionCheck {
		if _, err := im.store.GetVersion(ctx, versionID); err != nil {
			return nil, eris.Wrapf(err, "roll: target version %s", versionID)
		}
	}
	startRow := opts.StartRow
	if startRow <= 0 {
		startRow = 1
	}

	log := zap.L().With(zap.String("component", "roll.importer"), zap.String("version_id", versionID))

	result := &ImportResult{}
	batch := make([]model.Voter, 0, im.batchSize)
	batchRows := make([]int, 0, im.batchSize)

	flush := func() {
		if len(batch) == 0 {
			return
		}
		inserted, rowErrs := im.store.InsertVoterBatch(ctx, batch)
		result.Imported += inserted
		for _, re := range rowErrs {
			im.addError(result, batchRows[re.Index], re.Err.Error())
		}
		batch = batch[:0]
		batchRows = batchRows[:0]
	}

	for i, fields := range rows {
		rowNum := startRow + i
		if blankRow(fields) {
			continue
		}

		voter, err := im.buildVoter(versionID, fields, header)
		if err != nil {
			im.addError(result, rowNum, err.Error())
			continue
		}

		batch = append(batch, voter)
		batchRows = append(batchRows, rowNum)
		if len(batch) >= im.batchSize {
			flush()
		}
	}
	flush()

	log.Info("import complete",
		zap.Int("imported", result.Imported),
		zap.Int("errors", len(result.Errors)),
	)
	return result, nil
}

// buildVoter converts one tokenized row into a voter record. Name is the
// only hard-required field; numeric and date fields degrade to null.
func (im *Importer) buildVoter(versionID string, fields []string, header map[string]int) (model.Voter, error) {
	name := strings.TrimSpace(Field(fields, header, ColName))
	if name == "" {
		return model.Voter{}, eris.New("Name is required")
	}

	return model.Voter{
		ID:              uuid.New().String(),
		VersionID:       versionID,
		SerialNo:        ParseOptionalInt(Field(fields, header, ColSerialNo)),
		NRIC:            strings.TrimSpace(Field(fields, header, ColNRIC)),
		OldNRIC:         strings.TrimSpace(Field(fields, header, ColOldNRIC)),
		Name:            name,
		Phone:           strings.TrimSpace(Field(fields, header, ColPhone)),
		Sex:             strings.TrimSpace(Field(fields, header, ColSex)),
		DOB:             ParseDOB(Field(fields, header, ColDOB)),
		Ethnicity:       strings.TrimSpace(Field(fields, header, ColEthnicity)),
		Religion:        strings.TrimSpace(Field(fields, header, ColReligion)),
		EthnicCategory:  strings.TrimSpace(Field(fields, header, ColEthnicCategory)),
		HouseNo:         strings.TrimSpace(Field(fields, header, ColHouseNo)),
		Address:         strings.TrimSpace(Field(fields, header, ColAddress)),
		Postcode:        strings.TrimSpace(Field(fields, header, ColPostcode)),
		District:        strings.TrimSpace(Field(fields, header, ColDistrict)),
		LocalityCode:    strings.TrimSpace(Field(fields, header, ColLocalityCode)),
		Parliament:      strings.TrimSpace(Field(fields, header, ColParliament)),
		Constituency:    strings.TrimSpace(Field(fields, header, ColConstituency)),
		PollingDistrict: strings.TrimSpace(Field(fields, header, ColPollingDistrict)),
		Locality:        strings.TrimSpace(Field(fields, header, ColLocality)),
		VoterCategory:   strings.TrimSpace(Field(fields, header, ColVoterCategory)),
		PollingStation:  strings.TrimSpace(Field(fields, header, ColPollingStation)),
		VotingTime:      strings.TrimSpace(Field(fields, header, ColVotingTime)),
		ChannelNo:       ParseOptionalInt(Field(fields, header, ColChannel)),
	}, nil
}

func (im *Importer) addError(result *ImportResult, rowNum int, msg string) {
	if len(result.Errors) >= im.maxErrors {
		return
	}
	result.Errors = append(result.Errors, fmt.Sprintf("Row %d: %s", rowNum, msg))
}

func blankRow(fields []string) bool {
	for _, f := range fields {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}
