package geojob

import (
	"context"
	"strings"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/civicworks/roster-cli/internal/model"
	"github.com/civicworks/roster-cli/pkg/geocode"
)

// JobStore is the slice of the persistence layer the engine needs.
type JobStore interface {
	GetVersion(ctx context.Context, id string) (*model.RosterVersion, error)
	CountUngeocoded(ctx context.Context, versionID string) (int, error)
	UngeocodedVoters(ctx context.Context, versionID string) ([]model.Voter, error)
	SetVoterLocation(ctx context.Context, voterID string, lat, lng float64) error

	CreateGeocodeJob(ctx context.Context, versionID string, total int) (*model.GeocodeJob, error)
	GetGeocodeJob(ctx context.Context, jobID string) (*model.GeocodeJob, error)
	ActiveGeocodeJob(ctx context.Context, versionID string) (*model.GeocodeJob, error)
	MarkJobRunning(ctx context.Context, jobID string) error
	TransitionJobStatus(ctx context.Context, jobID string, from, to model.JobStatus) (bool, error)
	UpdateJobProgress(ctx context.Context, jobID string, p model.JobProgress) error
	FinishJob(ctx context.Context, jobID string, status model.JobStatus, errMsg string) error
}

// Geocoder resolves one-line addresses; the production implementation is
// the rate-limited provider client.
type Geocoder interface {
	Geocode(ctx context.Context, address string) (*geocode.Result, error)
}

const defaultCheckpointEvery = 10

// Engine runs durable, resumable geocoding jobs. Progress lives in the
// store, so a job survives process restarts: resuming re-fetches the
// ungeocoded set and skips what a previous run already worked through.
type Engine struct {
	store           JobStore
	geocoder        Geocoder
	checkpointEvery int
	log             *zap.Logger

	mu      sync.Mutex
	running map[string]struct{}
	wg      sync.WaitGroup
}

// EngineOption customizes an Engine.
type EngineOption func(*Engine)

// WithCheckpointEvery overrides how many processed records pass between
// progress writes.
func WithCheckpointEvery(n int) EngineOption {
	return func(e *Engine) {
		if n > 0 {
			e.checkpointEvery = n
		}
	}
}

// NewEngine creates an Engine with production defaults.
func NewEngine(s JobStore, g Geocoder, opts ...EngineOption) *Engine {
	e := &Engine{
		store:           s,
		geocoder:        g,
		checkpointEvery: defaultCheckpointEvery,
		log:             zap.L().With(zap.String("component", "geojob")),
		running:         make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// OneLine builds the provider query from a voter's location fields.
// Empty fields drop out; an entirely empty result means the record is
// skipped rather than sent upstream.
func OneLine(v *model.Voter) string {
	parts := make([]string, 0, 4)
	for _, p := range []string{v.Address, v.Postcode, v.District, v.Locality} {
		if s := strings.TrimSpace(p); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, ", ")
}

// Start creates a geocoding job for a version and launches its run loop.
// Creation is idempotent: an existing non-terminal job for the version is
// returned as-is, relaunching its loop if this process is not already
// driving it.
func (e *Engine) Start(ctx context.Context, versionID string) (*model.GeocodeJob, error) {
	if _, err := e.store.GetVersion(ctx, versionID); err != nil {
		return nil, eris.Wrapf(err, "geojob: version %s", versionID)
	}

	if existing, err := e.store.ActiveGeocodeJob(ctx, versionID); err != nil {
		return nil, eris.Wrap(err, "geojob: check active job")
	} else if existing != nil {
		if existing.Status != model.JobStatusPaused {
			e.launch(existing)
		}
		return existing, nil
	}

	total, err := e.store.CountUngeocoded(ctx, versionID)
	if err != nil {
		return nil, eris.Wrap(err, "geojob: count targets")
	}
	if total == 0 {
		return nil, eris.Errorf("geojob: version %s has no voters left to geocode", versionID)
	}

	job, err := e.store.CreateGeocodeJob(ctx, versionID, total)
	if err != nil {
		return nil, eris.Wrap(err, "geojob: create job")
	}
	e.launch(job)
	return job, nil
}

// Pause asks a running job to stop after the record currently in flight.
func (e *Engine) Pause(ctx context.Context, jobID string) error {
	ok, err := e.store.TransitionJobStatus(ctx, jobID, model.JobStatusRunning, model.JobStatusPaused)
	if err != nil {
		return err
	}
	if !ok {
		return eris.Errorf("geojob: job %s is not running", jobID)
	}
	e.log.Info("job pause requested", zap.String("job_id", jobID))
	return nil
}

// Resume relaunches a paused job from its persisted counters.
func (e *Engine) Resume(ctx context.Context, jobID string) (*model.GeocodeJob, error) {
	ok, err := e.store.TransitionJobStatus(ctx, jobID, model.JobStatusPaused, model.JobStatusRunning)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, eris.Errorf("geojob: job %s is not paused", jobID)
	}
	job, err := e.store.GetGeocodeJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	e.launch(job)
	return job, nil
}

// Wait blocks until every loop launched by this engine has returned.
func (e *Engine) Wait() {
	e.wg.Wait()
}

// launch starts the run loop for a job unless this process is already
// driving it. The loop gets a background context: job lifetime is owned
// by the store, not by the request that started it.
func (e *Engine) launch(job *model.GeocodeJob) {
	e.mu.Lock()
	if _, active := e.running[job.ID]; active {
		e.mu.Unlock()
		return
	}
	e.running[job.ID] = struct{}{}
	e.mu.Unlock()

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		defer func() {
			e.mu.Lock()
			delete(e.running, job.ID)
			e.mu.Unlock()
		}()

		ctx := context.Background()
		defer func() {
			if r := recover(); r != nil {
				e.log.Error("job loop panicked", zap.String("job_id", job.ID), zap.Any("panic", r))
				if err := e.store.FinishJob(ctx, job.ID, model.JobStatusFailed, eris.Errorf("panic: %v", r).Error()); err != nil {
					e.log.Error("failed to record job panic", zap.String("job_id", job.ID), zap.Error(err))
				}
			}
		}()

		if err := e.run(ctx, job.ID); err != nil {
			e.log.Error("job loop failed", zap.String("job_id", job.ID), zap.Error(err))
			if finishErr := e.store.FinishJob(ctx, job.ID, model.JobStatusFailed, err.Error()); finishErr != nil {
				e.log.Error("failed to record job failure", zap.String("job_id", job.ID), zap.Error(finishErr))
			}
		}
	}()
}

// run drives one job until its target set is exhausted, it is paused, or
// something escapes the loop. Per-record geocode outcomes are tallies,
// never loop failures; only store errors escape.
func (e *Engine) run(ctx context.Context, jobID string) error {
	if err := e.store.MarkJobRunning(ctx, jobID); err != nil {
		return err
	}
	job, err := e.store.GetGeocodeJob(ctx, jobID)
	if err != nil {
		return err
	}

	targets, err := e.store.UngeocodedVoters(ctx, job.VersionID)
	if err != nil {
		return eris.Wrap(err, "geojob: fetch targets")
	}

	// Records geocoded by earlier runs have left the target set, so the
	// ones already processed but still present are exactly the failed and
	// skipped ones. Skipping that many from the stable id ordering lands
	// on the first untouched record.
	skip := job.Processed - job.Geocoded
	if skip < 0 {
		skip = 0
	}
	if skip > len(targets) {
		skip = len(targets)
	}

	progress := model.JobProgress{
		Processed: job.Processed,
		Geocoded:  job.Geocoded,
		Failed:    job.Failed,
		Skipped:   job.Skipped,
	}
	e.log.Info("job loop starting",
		zap.String("job_id", jobID),
		zap.String("version_id", job.VersionID),
		zap.Int("targets", len(targets)),
		zap.Int("skip", skip),
	)

	for _, voter := range targets[skip:] {
		current, err := e.store.GetGeocodeJob(ctx, jobID)
		if err != nil {
			return eris.Wrap(err, "geojob: poll status")
		}
		if current.Status == model.JobStatusPaused {
			if err := e.store.UpdateJobProgress(ctx, jobID, progress); err != nil {
				return eris.Wrap(err, "geojob: checkpoint on pause")
			}
			e.log.Info("job paused", zap.String("job_id", jobID), zap.Int("processed", progress.Processed))
			return nil
		}
		if current.Status != model.JobStatusRunning {
			e.log.Warn("job status changed externally, stopping loop",
				zap.String("job_id", jobID),
				zap.String("status", string(current.Status)),
			)
			return nil
		}

		switch addr := OneLine(&voter); {
		case addr == "":
			progress.Skipped++
		default:
			result, err := e.geocoder.Geocode(ctx, addr)
			if err != nil || !result.Matched {
				progress.Failed++
				if err != nil {
					e.log.Debug("geocode call failed", zap.String("voter_id", voter.ID), zap.Error(err))
				}
			} else {
				if err := e.store.SetVoterLocation(ctx, voter.ID, result.Lat, result.Lng); err != nil {
					return eris.Wrap(err, "geojob: persist location")
				}
				progress.Geocoded++
			}
		}
		progress.Processed++

		if progress.Processed%e.checkpointEvery == 0 {
			if err := e.store.UpdateJobProgress(ctx, jobID, progress); err != nil {
				return eris.Wrap(err, "geojob: checkpoint")
			}
		}
	}

	if err := e.store.UpdateJobProgress(ctx, jobID, progress); err != nil {
		return eris.Wrap(err, "geojob: final checkpoint")
	}
	if err := e.store.FinishJob(ctx, jobID, model.JobStatusCompleted, ""); err != nil {
		return eris.Wrap(err, "geojob: complete")
	}
	e.log.Info("job completed",
		zap.String("job_id", jobID),
		zap.Int("processed", progress.Processed),
		zap.Int("geocoded", progress.Geocoded),
		zap.Int("failed", progress.Failed),
		zap.Int("skipped", progress.Skipped),
	)
	return nil
}
