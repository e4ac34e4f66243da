package store

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/civicworks/roster-cli/internal/db"
	"github.com/civicworks/roster-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite. It serves local
// and single-operator deployments where running Postgres is overkill.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := sqlDB.Exec(pragma); err != nil {
			sqlDB.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: sqlDB}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS roster_versions (
	id         TEXT PRIMARY KEY,
	name       TEXT NOT NULL,
	active     BOOLEAN NOT NULL DEFAULT 0,
	created_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS voters (
	id                  TEXT PRIMARY KEY,
	version_id          TEXT NOT NULL REFERENCES roster_versions(id),
	serial_no           INTEGER,
	nric                TEXT NOT NULL DEFAULT '',
	old_nric            TEXT NOT NULL DEFAULT '',
	name                TEXT NOT NULL,
	phone               TEXT NOT NULL DEFAULT '',
	sex                 TEXT NOT NULL DEFAULT '',
	dob                 DATETIME,
	ethnicity           TEXT NOT NULL DEFAULT '',
	religion            TEXT NOT NULL DEFAULT '',
	ethnic_category     TEXT NOT NULL DEFAULT '',
	house_no            TEXT NOT NULL DEFAULT '',
	address             TEXT NOT NULL DEFAULT '',
	postcode            TEXT NOT NULL DEFAULT '',
	district            TEXT NOT NULL DEFAULT '',
	locality_code       TEXT NOT NULL DEFAULT '',
	parliament          TEXT NOT NULL DEFAULT '',
	constituency        TEXT NOT NULL DEFAULT '',
	polling_district    TEXT NOT NULL DEFAULT '',
	locality            TEXT NOT NULL DEFAULT '',
	voter_category      TEXT NOT NULL DEFAULT '',
	polling_station     TEXT NOT NULL DEFAULT '',
	voting_time         TEXT NOT NULL DEFAULT '',
	channel_no          INTEGER,
	lat                 REAL,
	lng                 REAL,
	household_member_id TEXT,
	support_status      TEXT
);

CREATE INDEX IF NOT EXISTS idx_voters_version ON voters(version_id);
CREATE INDEX IF NOT EXISTS idx_voters_nric ON voters(nric);

CREATE TABLE IF NOT EXISTS household_members (
	id   TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	nric TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS geocode_jobs (
	id           TEXT PRIMARY KEY,
	version_id   TEXT NOT NULL REFERENCES roster_versions(id),
	status       TEXT NOT NULL DEFAULT 'pending',
	total        INTEGER NOT NULL DEFAULT 0,
	processed    INTEGER NOT NULL DEFAULT 0,
	geocoded     INTEGER NOT NULL DEFAULT 0,
	failed       INTEGER NOT NULL DEFAULT 0,
	skipped      INTEGER NOT NULL DEFAULT 0,
	error        TEXT NOT NULL DEFAULT '',
	created_at   DATETIME NOT NULL DEFAULT (datetime('now')),
	started_at   DATETIME,
	completed_at DATETIME
);

CREATE INDEX IF NOT EXISTS idx_geocode_jobs_version ON geocode_jobs(version_id);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Roster versions

func (s *SQLiteStore) CreateVersion(ctx context.Context, name string) (*model.RosterVersion, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO roster_versions (id, name, active, created_at) VALUES (?, ?, 0, ?)`,
		id, name, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert version")
	}
	return &model.RosterVersion{ID: id, Name: name, CreatedAt: now}, nil
}

func (s *SQLiteStore) GetVersion(ctx context.Context, id string) (*model.RosterVersion, error) {
	var v model.RosterVersion
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, active, created_at FROM roster_versions WHERE id = ?`,
		id,
	).Scan(&v.ID, &v.Name, &v.Active, &v.CreatedAt)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get version %s", id)
	}
	return &v, nil
}

func (s *SQLiteStore) ListVersions(ctx context.Context) ([]model.RosterVersion, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, active, created_at FROM roster_versions ORDER BY created_at DESC`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list versions")
	}
	defer rows.Close()

	var versions []model.RosterVersion
	for rows.Next() {
		var v model.RosterVersion
		if err := rows.Scan(&v.ID, &v.Name, &v.Active, &v.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan version")
		}
		versions = append(versions, v)
	}
	return versions, eris.Wrap(rows.Err(), "sqlite: list versions iterate")
}

func (s *SQLiteStore) SetActiveVersion(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin set active")
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `UPDATE roster_versions SET active = 0 WHERE active = 1`); err != nil {
		return eris.Wrap(err, "sqlite: clear active versions")
	}
	res, err := tx.ExecContext(ctx, `UPDATE roster_versions SET active = 1 WHERE id = ?`, id)
	if err != nil {
		return eris.Wrapf(err, "sqlite: set active version %s", id)
	}
	if err := checkRowsAffected(res, "version", id); err != nil {
		return err
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit set active")
}

func (s *SQLiteStore) ClearVersionVoters(ctx context.Context, versionID string) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM voters WHERE version_id = ?`, versionID)
	if err != nil {
		return 0, eris.Wrapf(err, "sqlite: clear voters for version %s", versionID)
	}
	n, err := res.RowsAffected()
	return int(n), eris.Wrap(err, "sqlite: rows affected")
}

// Voters

var voterInsertSQL = `INSERT INTO voters (` + voterSelectList + `) VALUES (` +
	strings.TrimSuffix(strings.Repeat("?, ", len(voterColumns)), ", ") + `)`

func (s *SQLiteStore) InsertVoter(ctx context.Context, v model.Voter) error {
	if v.ID == "" {
		v.ID = uuid.New().String()
	}
	_, err := s.db.ExecContext(ctx, voterInsertSQL, voterValues(v)...)
	return eris.Wrap(err, "sqlite: insert voter")
}

// InsertVoterBatch inserts row by row inside one transaction. SQLite has
// no COPY path, but the per-row error contract matches the Postgres
// backend exactly.
func (s *SQLiteStore) InsertVoterBatch(ctx context.Context, voters []model.Voter) (int, []db.RowError) {
	var (
		inserted int
		rowErrs  []db.RowError
	)
	for i, v := range voters {
		if v.ID == "" {
			v.ID = uuid.New().String()
		}
		if _, err := s.db.ExecContext(ctx, voterInsertSQL, voterValues(v)...); err != nil {
			rowErrs = append(rowErrs, db.RowError{Index: i, Err: eris.Wrap(err, "sqlite: insert voter")})
			continue
		}
		inserted++
	}
	return inserted, rowErrs
}

func (s *SQLiteStore) CountVoters(ctx context.Context, versionID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM voters WHERE version_id = ?`, versionID,
	).Scan(&count)
	return count, eris.Wrap(err, "sqlite: count voters")
}

func (s *SQLiteStore) ListVoters(ctx context.Context, versionID string, filter VoterFilter) ([]model.Voter, error) {
	query := `SELECT ` + voterSelectList + ` FROM voters WHERE version_id = ? ORDER BY id`
	args := []any{versionID}

	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}
	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	return s.queryVoters(ctx, "list voters", query, args...)
}

func (s *SQLiteStore) UnlinkedVoters(ctx context.Context, versionID string) ([]model.Voter, error) {
	return s.queryVoters(ctx, "unlinked voters",
		`SELECT `+voterSelectList+` FROM voters
		 WHERE version_id = ? AND household_member_id IS NULL
		 ORDER BY id`,
		versionID,
	)
}

func (s *SQLiteStore) UngeocodedVoters(ctx context.Context, versionID string) ([]model.Voter, error) {
	return s.queryVoters(ctx, "ungeocoded voters",
		`SELECT `+voterSelectList+` FROM voters
		 WHERE version_id = ? AND lat IS NULL AND address <> ''
		 ORDER BY id`,
		versionID,
	)
}

func (s *SQLiteStore) CountUngeocoded(ctx context.Context, versionID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM voters WHERE version_id = ? AND lat IS NULL AND address <> ''`,
		versionID,
	).Scan(&count)
	return count, eris.Wrap(err, "sqlite: count ungeocoded")
}

func (s *SQLiteStore) GeocodedVoters(ctx context.Context, versionID string) ([]model.Voter, error) {
	return s.queryVoters(ctx, "geocoded voters",
		`SELECT `+voterSelectList+` FROM voters
		 WHERE version_id = ? AND lat IS NOT NULL AND lng IS NOT NULL
		 ORDER BY id`,
		versionID,
	)
}

func (s *SQLiteStore) queryVoters(ctx context.Context, op, query string, args ...any) ([]model.Voter, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: %s", op)
	}
	defer rows.Close()

	var voters []model.Voter
	for rows.Next() {
		v, err := scanVoter(rows)
		if err != nil {
			return nil, eris.Wrapf(err, "sqlite: scan voter (%s)", op)
		}
		voters = append(voters, *v)
	}
	return voters, eris.Wrapf(rows.Err(), "sqlite: %s iterate", op)
}

func (s *SQLiteStore) LinkVoterHousehold(ctx context.Context, voterID, memberID string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE voters SET household_member_id = ? WHERE id = ?`,
		memberID, voterID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: link voter %s", voterID)
	}
	return checkRowsAffected(res, "voter", voterID)
}

func (s *SQLiteStore) SetVoterLocation(ctx context.Context, voterID string, lat, lng float64) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE voters SET lat = ?, lng = ? WHERE id = ?`,
		lat, lng, voterID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: set voter location %s", voterID)
	}
	return checkRowsAffected(res, "voter", voterID)
}

// Household members

func (s *SQLiteStore) ListHouseholdMembers(ctx context.Context) ([]model.HouseholdMember, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, nric FROM household_members ORDER BY id`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list household members")
	}
	defer rows.Close()

	var members []model.HouseholdMember
	for rows.Next() {
		var m model.HouseholdMember
		if err := rows.Scan(&m.ID, &m.Name, &m.NRIC); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan household member")
		}
		members = append(members, m)
	}
	return members, eris.Wrap(rows.Err(), "sqlite: list household members iterate")
}

// Geocode jobs

func (s *SQLiteStore) CreateGeocodeJob(ctx context.Context, versionID string, total int) (*model.GeocodeJob, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO geocode_jobs (id, version_id, status, total, created_at) VALUES (?, ?, ?, ?, ?)`,
		id, versionID, string(model.JobStatusPending), total, now,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: insert job for version %s", versionID)
	}

	return &model.GeocodeJob{
		ID:        id,
		VersionID: versionID,
		Status:    model.JobStatusPending,
		Total:     total,
		CreatedAt: now,
	}, nil
}

func (s *SQLiteStore) GetGeocodeJob(ctx context.Context, jobID string) (*model.GeocodeJob, error) {
	j, err := scanJob(s.db.QueryRowContext(ctx,
		`SELECT `+jobSelectList+` FROM geocode_jobs WHERE id = ?`, jobID,
	))
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get job %s", jobID)
	}
	return j, nil
}

func (s *SQLiteStore) ActiveGeocodeJob(ctx context.Context, versionID string) (*model.GeocodeJob, error) {
	j, err := scanJob(s.db.QueryRowContext(ctx,
		`SELECT `+jobSelectList+` FROM geocode_jobs
		 WHERE version_id = ? AND status IN ('pending', 'running', 'paused')
		 ORDER BY created_at DESC LIMIT 1`,
		versionID,
	))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "sqlite: active job for version %s", versionID)
	}
	return j, nil
}

func (s *SQLiteStore) ListGeocodeJobs(ctx context.Context, versionID string) ([]model.GeocodeJob, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+jobSelectList+` FROM geocode_jobs WHERE version_id = ? ORDER BY created_at DESC`,
		versionID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list jobs")
	}
	defer rows.Close()

	var jobs []model.GeocodeJob
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan job")
		}
		jobs = append(jobs, *j)
	}
	return jobs, eris.Wrap(rows.Err(), "sqlite: list jobs iterate")
}

func (s *SQLiteStore) MarkJobRunning(ctx context.Context, jobID string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE geocode_jobs SET status = ?, started_at = COALESCE(started_at, ?) WHERE id = ?`,
		string(model.JobStatusRunning), time.Now().UTC(), jobID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: mark job running %s", jobID)
	}
	return checkRowsAffected(res, "job", jobID)
}

func (s *SQLiteStore) TransitionJobStatus(ctx context.Context, jobID string, from, to model.JobStatus) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE geocode_jobs SET status = ? WHERE id = ? AND status = ?`,
		string(to), jobID, string(from),
	)
	if err != nil {
		return false, eris.Wrapf(err, "sqlite: transition job %s", jobID)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, eris.Wrap(err, "sqlite: rows affected")
	}
	return n > 0, nil
}

func (s *SQLiteStore) UpdateJobProgress(ctx context.Context, jobID string, p model.JobProgress) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE geocode_jobs SET processed = ?, geocoded = ?, failed = ?, skipped = ? WHERE id = ?`,
		p.Processed, p.Geocoded, p.Failed, p.Skipped, jobID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update job progress %s", jobID)
	}
	return checkRowsAffected(res, "job", jobID)
}

func (s *SQLiteStore) FinishJob(ctx context.Context, jobID string, status model.JobStatus, errMsg string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE geocode_jobs SET status = ?, error = ?, completed_at = ? WHERE id = ?`,
		string(status), errMsg, time.Now().UTC(), jobID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: finish job %s", jobID)
	}
	return checkRowsAffected(res, "job", jobID)
}

// helpers

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Errorf("%s not found: %s", entity, id)
	}
	return nil
}
