package store

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/civicworks/roster-cli/internal/db"
	"github.com/civicworks/roster-cli/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements lists queries to prepare on each new connection.
// Job polling and per-record voter updates are the hot path while a
// geocoding run is live, so those are prepared up front.
var preparedStatements = map[string]string{
	"get_job":             `SELECT id, version_id, status, total, processed, geocoded, failed, skipped, error, created_at, started_at, completed_at FROM geocode_jobs WHERE id = $1`,
	"update_job_progress": `UPDATE geocode_jobs SET processed = $1, geocoded = $2, failed = $3, skipped = $4 WHERE id = $5`,
	"set_voter_location":  `UPDATE voters SET lat = $1, lng = $2 WHERE id = $3`,
	"link_voter":          `UPDATE voters SET household_member_id = $1 WHERE id = $2`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// Pool returns the underlying database pool for subsystems that need
// direct query access.
func (s *PostgresStore) Pool() db.Pool {
	return s.pool
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS roster_versions (
	id         TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	name       TEXT NOT NULL,
	active     BOOLEAN NOT NULL DEFAULT false,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS voters (
	id                  TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	version_id          TEXT NOT NULL REFERENCES roster_versions(id),
	serial_no           INTEGER,
	nric                TEXT NOT NULL DEFAULT '',
	old_nric            TEXT NOT NULL DEFAULT '',
	name                TEXT NOT NULL,
	phone               TEXT NOT NULL DEFAULT '',
	sex                 TEXT NOT NULL DEFAULT '',
	dob                 DATE,
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
	lat                 DOUBLE PRECISION,
	lng                 DOUBLE PRECISION,
	household_member_id TEXT,
	support_status      TEXT
);

CREATE INDEX IF NOT EXISTS idx_voters_version ON voters(version_id);
CREATE INDEX IF NOT EXISTS idx_voters_nric ON voters(nric) WHERE nric <> '';
CREATE INDEX IF NOT EXISTS idx_voters_ungeocoded ON voters(version_id, id) WHERE lat IS NULL AND address <> '';
CREATE INDEX IF NOT EXISTS idx_voters_unlinked ON voters(version_id, id) WHERE household_member_id IS NULL;

CREATE TABLE IF NOT EXISTS household_members (
	id   TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	nric TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS geocode_jobs (
	id           TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	version_id   TEXT NOT NULL REFERENCES roster_versions(id),
	status       TEXT NOT NULL DEFAULT 'pending',
	total        INTEGER NOT NULL DEFAULT 0,
	processed    INTEGER NOT NULL DEFAULT 0,
	geocoded     INTEGER NOT NULL DEFAULT 0,
	failed       INTEGER NOT NULL DEFAULT 0,
	skipped      INTEGER NOT NULL DEFAULT 0,
	error        TEXT NOT NULL DEFAULT '',
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	started_at   TIMESTAMPTZ,
	completed_at TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_geocode_jobs_version_status ON geocode_jobs(version_id, status);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

// Roster versions

func (s *PostgresStore) CreateVersion(ctx context.Context, name string) (*model.RosterVersion, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.pool.Exec(ctx,
		`INSERT INTO roster_versions (id, name, active, created_at) VALUES ($1, $2, false, $3)`,
		id, name, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert version")
	}
	return &model.RosterVersion{ID: id, Name: name, CreatedAt: now}, nil
}

func (s *PostgresStore) GetVersion(ctx context.Context, id string) (*model.RosterVersion, error) {
	var v model.RosterVersion
	err := s.pool.QueryRow(ctx,
		`SELECT id, name, active, created_at FROM roster_versions WHERE id = $1`,
		id,
	).Scan(&v.ID, &v.Name, &v.Active, &v.CreatedAt)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get version %s", id)
	}
	return &v, nil
}

func (s *PostgresStore) ListVersions(ctx context.Context) ([]model.RosterVersion, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, name, active, created_at FROM roster_versions ORDER BY created_at DESC`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list versions")
	}
	defer rows.Close()

	var versions []model.RosterVersion
	for rows.Next() {
		var v model.RosterVersion
		if err := rows.Scan(&v.ID, &v.Name, &v.Active, &v.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan version")
		}
		versions = append(versions, v)
	}
	return versions, eris.Wrap(rows.Err(), "postgres: list versions iterate")
}

// SetActiveVersion marks one version active and clears the flag from every
// other version in the same transaction.
func (s *PostgresStore) SetActiveVersion(ctx context.Context, id string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin set active")
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `UPDATE roster_versions SET active = false WHERE active`); err != nil {
		return eris.Wrap(err, "postgres: clear active versions")
	}
	tag, err := tx.Exec(ctx, `UPDATE roster_versions SET active = true WHERE id = $1`, id)
	if err != nil {
		return eris.Wrapf(err, "postgres: set active version %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("version not found: %s", id)
	}
	return eris.Wrap(tx.Commit(ctx), "postgres: commit set active")
}

func (s *PostgresStore) ClearVersionVoters(ctx context.Context, versionID string) (int, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM voters WHERE version_id = $1`, versionID)
	if err != nil {
		return 0, eris.Wrapf(err, "postgres: clear voters for version %s", versionID)
	}
	return int(tag.RowsAffected()), nil
}

// Voters

// voterColumns is the canonical column order shared by the bulk inserter
// and the single-row insert.
var voterColumns = []string{
	"id", "version_id", "serial_no", "nric", "old_nric", "name", "phone",
	"sex", "dob", "ethnicity", "religion", "ethnic_category", "house_no",
	"address", "postcode", "district", "locality_code", "parliament",
	"constituency", "polling_district", "locality", "voter_category",
	"polling_station", "voting_time", "channel_no", "lat", "lng",
	"household_member_id", "support_status",
}

var voterSelectList = strings.Join(voterColumns, ", ")

func voterValues(v model.Voter) []any {
	return []any{
		v.ID, v.VersionID, v.SerialNo, v.NRIC, v.OldNRIC, v.Name, v.Phone,
		v.Sex, v.DOB, v.Ethnicity, v.Religion, v.EthnicCategory, v.HouseNo,
		v.Address, v.Postcode, v.District, v.LocalityCode, v.Parliament,
		v.Constituency, v.PollingDistrict, v.Locality, v.VoterCategory,
		v.PollingStation, v.VotingTime, v.ChannelNo, v.Lat, v.Lng,
		v.HouseholdMemberID, v.SupportStatus,
	}
}

type scannable interface {
	Scan(dest ...any) error
}

func scanVoter(row scannable) (*model.Voter, error) {
	var v model.Voter
	err := row.Scan(
		&v.ID, &v.VersionID, &v.SerialNo, &v.NRIC, &v.OldNRIC, &v.Name, &v.Phone,
		&v.Sex, &v.DOB, &v.Ethnicity, &v.Religion, &v.EthnicCategory, &v.HouseNo,
		&v.Address, &v.Postcode, &v.District, &v.LocalityCode, &v.Parliament,
		&v.Constituency, &v.PollingDistrict, &v.Locality, &v.VoterCategory,
		&v.PollingStation, &v.VotingTime, &v.ChannelNo, &v.Lat, &v.Lng,
		&v.HouseholdMemberID, &v.SupportStatus,
	)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func (s *PostgresStore) InsertVoter(ctx context.Context, v model.Voter) error {
	if v.ID == "" {
		v.ID = uuid.New().String()
	}
	placeholders := make([]string, len(voterColumns))
	for i := range voterColumns {
		placeholders[i] = "$" + strconv.Itoa(i+1)
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO voters (`+voterSelectList+`) VALUES (`+strings.Join(placeholders, ", ")+`)`,
		voterValues(v)...,
	)
	return eris.Wrap(err, "postgres: insert voter")
}

// InsertVoterBatch writes a batch through the bulk path with per-row
// fallback. The returned errors are indexed by position within the batch.
func (s *PostgresStore) InsertVoterBatch(ctx context.Context, voters []model.Voter) (int, []db.RowError) {
	rows := make([][]any, len(voters))
	for i, v := range voters {
		if v.ID == "" {
			v.ID = uuid.New().String()
		}
		rows[i] = voterValues(v)
	}
	return db.NewBatchInserter(s.pool, "voters", voterColumns).Flush(ctx, rows)
}

func (s *PostgresStore) CountVoters(ctx context.Context, versionID string) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM voters WHERE version_id = $1`, versionID,
	).Scan(&count)
	return count, eris.Wrap(err, "postgres: count voters")
}

func (s *PostgresStore) ListVoters(ctx context.Context, versionID string, filter VoterFilter) ([]model.Voter, error) {
	query := `SELECT ` + voterSelectList + ` FROM voters WHERE version_id = $1 ORDER BY id`
	args := []any{versionID}

	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += ` LIMIT $` + strconv.Itoa(len(args))
	}
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += ` OFFSET $` + strconv.Itoa(len(args))
	}

	return s.queryVoters(ctx, "list voters", query, args...)
}

// UnlinkedVoters returns voters without a household link, ordered by id so
// matcher passes see a stable sequence.
func (s *PostgresStore) UnlinkedVoters(ctx context.Context, versionID string) ([]model.Voter, error) {
	return s.queryVoters(ctx, "unlinked voters",
		`SELECT `+voterSelectList+` FROM voters
		 WHERE version_id = $1 AND household_member_id IS NULL
		 ORDER BY id`,
		versionID,
	)
}

// UngeocodedVoters returns voters still missing coordinates and carrying a
// non-empty address, ordered by id. Job resumption relies on this ordering
// staying stable between fetches.
func (s *PostgresStore) UngeocodedVoters(ctx context.Context, versionID string) ([]model.Voter, error) {
	return s.queryVoters(ctx, "ungeocoded voters",
		`SELECT `+voterSelectList+` FROM voters
		 WHERE version_id = $1 AND lat IS NULL AND address <> ''
		 ORDER BY id`,
		versionID,
	)
}

func (s *PostgresStore) CountUngeocoded(ctx context.Context, versionID string) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM voters WHERE version_id = $1 AND lat IS NULL AND address <> ''`,
		versionID,
	).Scan(&count)
	return count, eris.Wrap(err, "postgres: count ungeocoded")
}

func (s *PostgresStore) GeocodedVoters(ctx context.Context, versionID string) ([]model.Voter, error) {
	return s.queryVoters(ctx, "geocoded voters",
		`SELECT `+voterSelectList+` FROM voters
		 WHERE version_id = $1 AND lat IS NOT NULL AND lng IS NOT NULL
		 ORDER BY id`,
		versionID,
	)
}

func (s *PostgresStore) queryVoters(ctx context.Context, op, query string, args ...any) ([]model.Voter, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: %s", op)
	}
	defer rows.Close()

	var voters []model.Voter
	for rows.Next() {
		v, err := scanVoter(rows)
		if err != nil {
			return nil, eris.Wrapf(err, "postgres: scan voter (%s)", op)
		}
		voters = append(voters, *v)
	}
	return voters, eris.Wrapf(rows.Err(), "postgres: %s iterate", op)
}

func (s *PostgresStore) LinkVoterHousehold(ctx context.Context, voterID, memberID string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE voters SET household_member_id = $1 WHERE id = $2`,
		memberID, voterID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: link voter %s", voterID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("voter not found: %s", voterID)
	}
	return nil
}

func (s *PostgresStore) SetVoterLocation(ctx context.Context, voterID string, lat, lng float64) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE voters SET lat = $1, lng = $2 WHERE id = $3`,
		lat, lng, voterID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: set voter location %s", voterID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("voter not found: %s", voterID)
	}
	return nil
}

// Household members

func (s *PostgresStore) ListHouseholdMembers(ctx context.Context) ([]model.HouseholdMember, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, name, nric FROM household_members ORDER BY id`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list household members")
	}
	defer rows.Close()

	var members []model.HouseholdMember
	for rows.Next() {
		var m model.HouseholdMember
		if err := rows.Scan(&m.ID, &m.Name, &m.NRIC); err != nil {
			return nil, eris.Wrap(err, "postgres: scan household member")
		}
		members = append(members, m)
	}
	return members, eris.Wrap(rows.Err(), "postgres: list household members iterate")
}

// Geocode jobs

const jobSelectList = `id, version_id, status, total, processed, geocoded, failed, skipped, error, created_at, started_at, completed_at`

func scanJob(row scannable) (*model.GeocodeJob, error) {
	var j model.GeocodeJob
	err := row.Scan(
		&j.ID, &j.VersionID, &j.Status, &j.Total, &j.Processed, &j.Geocoded,
		&j.Failed, &j.Skipped, &j.Error, &j.CreatedAt, &j.StartedAt, &j.CompletedAt,
	)
	if err != nil {
		return nil, err
	}
	return &j, nil
}

func (s *PostgresStore) CreateGeocodeJob(ctx context.Context, versionID string, total int) (*model.GeocodeJob, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.pool.Exec(ctx,
		`INSERT INTO geocode_jobs (id, version_id, status, total, created_at) VALUES ($1, $2, $3, $4, $5)`,
		id, versionID, string(model.JobStatusPending), total, now,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: insert job for version %s", versionID)
	}

	return &model.GeocodeJob{
		ID:        id,
		VersionID: versionID,
		Status:    model.JobStatusPending,
		Total:     total,
		CreatedAt: now,
	}, nil
}

func (s *PostgresStore) GetGeocodeJob(ctx context.Context, jobID string) (*model.GeocodeJob, error) {
	j, err := scanJob(s.pool.QueryRow(ctx,
		`SELECT `+jobSelectList+` FROM geocode_jobs WHERE id = $1`, jobID,
	))
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get job %s", jobID)
	}
	return j, nil
}

// ActiveGeocodeJob returns the newest non-terminal job for a version, or
// nil when every job has finished.
func (s *PostgresStore) ActiveGeocodeJob(ctx context.Context, versionID string) (*model.GeocodeJob, error) {
	j, err := scanJob(s.pool.QueryRow(ctx,
		`SELECT `+jobSelectList+` FROM geocode_jobs
		 WHERE version_id = $1 AND status IN ('pending', 'running', 'paused')
		 ORDER BY created_at DESC LIMIT 1`,
		versionID,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "postgres: active job for version %s", versionID)
	}
	return j, nil
}

func (s *PostgresStore) ListGeocodeJobs(ctx context.Context, versionID string) ([]model.GeocodeJob, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+jobSelectList+` FROM geocode_jobs WHERE version_id = $1 ORDER BY created_at DESC`,
		versionID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list jobs")
	}
	defer rows.Close()

	var jobs []model.GeocodeJob
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan job")
		}
		jobs = append(jobs, *j)
	}
	return jobs, eris.Wrap(rows.Err(), "postgres: list jobs iterate")
}

// MarkJobRunning flips a job to running. StartedAt is set on the first
// transition only; resumed jobs keep their original start time.
func (s *PostgresStore) MarkJobRunning(ctx context.Context, jobID string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE geocode_jobs SET status = $1, started_at = COALESCE(started_at, $2) WHERE id = $3`,
		string(model.JobStatusRunning), time.Now().UTC(), jobID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: mark job running %s", jobID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("job not found: %s", jobID)
	}
	return nil
}

// TransitionJobStatus moves a job from one status to another only if it is
// still in the expected source status. Returns false when the precondition
// did not hold.
func (s *PostgresStore) TransitionJobStatus(ctx context.Context, jobID string, from, to model.JobStatus) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE geocode_jobs SET status = $1 WHERE id = $2 AND status = $3`,
		string(to), jobID, string(from),
	)
	if err != nil {
		return false, eris.Wrapf(err, "postgres: transition job %s", jobID)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *PostgresStore) UpdateJobProgress(ctx context.Context, jobID string, p model.JobProgress) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE geocode_jobs SET processed = $1, geocoded = $2, failed = $3, skipped = $4 WHERE id = $5`,
		p.Processed, p.Geocoded, p.Failed, p.Skipped, jobID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update job progress %s", jobID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("job not found: %s", jobID)
	}
	return nil
}

// FinishJob moves a job into a terminal status and stamps CompletedAt.
func (s *PostgresStore) FinishJob(ctx context.Context, jobID string, status model.JobStatus, errMsg string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE geocode_jobs SET status = $1, error = $2, completed_at = $3 WHERE id = $4`,
		string(status), errMsg, time.Now().UTC(), jobID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: finish job %s", jobID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("job not found: %s", jobID)
	}
	return nil
}

