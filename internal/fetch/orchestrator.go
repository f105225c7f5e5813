// Package fetch drives the extraction jobs for one canonical request and
// decides the aggregate outcome once every dispatched job has finished.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/linkloader/internal/extract"
	"github.com/JakeFAU/linkloader/internal/media"
	"github.com/JakeFAU/linkloader/internal/metadata"
	"github.com/JakeFAU/linkloader/internal/metrics"
	"github.com/JakeFAU/linkloader/internal/pool"
)

// State is the per-request orchestration state.
type State string

// Orchestration states. complete, partially_failed and failed are terminal.
const (
	StateIdle            State = "idle"
	StateDispatched      State = "dispatched"
	StateCollecting      State = "collecting"
	StateComplete        State = "complete"
	StatePartiallyFailed State = "partially_failed"
	StateFailed          State = "failed"
)

// Submitter is the worker pool surface the orchestrator needs.
type Submitter interface {
	Submit(ctx context.Context, name string, task pool.Task) (*pool.Future, error)
}

// Result is the classified output of every job for one request.
type Result struct {
	State   State
	Jobs    []media.FetchJob
	Photos  []string
	Videos  []string
	Audio   string
	Sidecar string
	// Trace records every state the request passed through, in order.
	Trace []State
}

// HasMedia reports whether anything deliverable was produced.
func (r Result) HasMedia() bool {
	return len(r.Photos) > 0 || len(r.Videos) > 0 || r.Audio != ""
}

// Metadata parses the primary sidecar, falling back to defaults.
func (r Result) Metadata() media.MediaMetadata {
	return metadata.FromFile(r.Sidecar)
}

// Orchestrator dispatches extraction jobs through a pool.
type Orchestrator struct {
	extractor media.Extractor
	pool      Submitter
	limiter   media.Limiter
	ids       media.IDGenerator
	logger    *zap.Logger
}

// New constructs an Orchestrator. limiter and ids may be nil.
func New(extractor media.Extractor, p Submitter, limiter media.Limiter, ids media.IDGenerator, logger *zap.Logger) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{extractor: extractor, pool: p, limiter: limiter, ids: ids, logger: logger}
}

type pending struct {
	job    media.FetchJob
	future *pool.Future
	err    error
}

// Fetch runs the jobs required by req.Kind under workspace. The returned
// error is non-nil exactly when the state is failed, and wraps
// media.ErrExtractionFailed or media.ErrNoMediaProduced.
func (o *Orchestrator) Fetch(
	ctx context.Context,
	req media.CanonicalRequest,
	prefs media.UserPreferences,
	workspace string,
) (Result, error) {
	res := Result{State: StateIdle, Trace: []State{StateIdle}}
	logger := o.logger.With(zap.String("url", req.CanonicalURL), zap.String("kind", string(req.Kind)))

	switch req.Kind {
	case media.KindPhotoGallery:
		return o.fetchGallery(ctx, req, prefs, workspace, res, logger)
	case media.KindAudioOnly:
		jobs := o.run(ctx, &res, req.CanonicalURL, workspace, media.JobAudio)
		audio := jobs[0]
		if !audio.Outcome.Succeeded() {
			return o.fail(res, audio.Outcome.Err, logger)
		}
		return o.finish(res, StateComplete, logger), nil
	default:
		kinds := []media.JobKind{media.JobVideo}
		if prefs.IncludeAudio {
			kinds = append(kinds, media.JobAudio)
		}
		jobs := o.run(ctx, &res, req.CanonicalURL, workspace, kinds...)
		if !jobs[0].Outcome.Succeeded() {
			return o.fail(res, jobs[0].Outcome.Err, logger)
		}
		if len(jobs) > 1 && !jobs[1].Outcome.Succeeded() {
			logger.Warn("audio job failed, delivering video only", zap.Error(jobs[1].Outcome.Err))
			return o.finish(res, StatePartiallyFailed, logger), nil
		}
		return o.finish(res, StateComplete, logger), nil
	}
}

func (o *Orchestrator) fetchGallery(
	ctx context.Context,
	req media.CanonicalRequest,
	prefs media.UserPreferences,
	workspace string,
	res Result,
	logger *zap.Logger,
) (Result, error) {
	gallery := o.run(ctx, &res, req.CanonicalURL, workspace, media.JobGallery)[0]
	classify(&res)
	if !res.HasMedia() {
		cause := gallery.Outcome.Err
		if cause == nil {
			cause = errors.New("gallery job produced no files")
		}
		return o.fail(res, fmt.Errorf("%w: %w", media.ErrNoMediaProduced, cause), logger)
	}

	state := StateComplete
	if gallery.Outcome.Err != nil {
		state = StatePartiallyFailed
	}
	if prefs.IncludeAudio && res.Audio == "" {
		audio := o.run(ctx, &res, req.CanonicalURL, workspace, media.JobAudio)[0]
		if !audio.Outcome.Succeeded() {
			logger.Warn("gallery audio job failed", zap.Error(audio.Outcome.Err))
			state = StatePartiallyFailed
		}
	}
	return o.finish(res, state, logger), nil
}

// run dispatches every kind, then collects all of them before returning.
func (o *Orchestrator) run(ctx context.Context, res *Result, url, workspace string, kinds ...media.JobKind) []media.FetchJob {
	batch := make([]pending, 0, len(kinds))
	for _, kind := range kinds {
		batch = append(batch, o.dispatch(ctx, url, workspace, kind))
	}
	// A follow-up batch keeps the request in collecting.
	if res.State == StateIdle {
		res.transition(StateDispatched)
	}
	res.transition(StateCollecting)

	jobs := make([]media.FetchJob, 0, len(batch))
	for _, p := range batch {
		job := o.collect(p)
		jobs = append(jobs, job)
		res.Jobs = append(res.Jobs, job)
	}
	return jobs
}

func (o *Orchestrator) dispatch(ctx context.Context, url, workspace string, kind media.JobKind) pending {
	job := media.FetchJob{
		ID:        o.newID(kind),
		Kind:      kind,
		Workspace: filepath.Join(workspace, string(kind)),
	}
	task := func(taskCtx context.Context) ([]string, error) {
		return o.execute(taskCtx, url, job)
	}
	future, err := o.pool.Submit(ctx, string(kind)+":"+job.ID, task)
	if err != nil {
		return pending{job: job, err: fmt.Errorf("%w: dispatch %s job: %w", media.ErrExtractionFailed, kind, err)}
	}
	return pending{job: job, future: future}
}

func (o *Orchestrator) execute(ctx context.Context, url string, job media.FetchJob) ([]string, error) {
	if o.limiter != nil {
		if err := o.limiter.Wait(ctx, url); err != nil {
			return nil, fmt.Errorf("%w: %w", media.ErrExtractionFailed, err)
		}
	}
	err := o.extractor.Extract(ctx, media.ExtractRequest{URL: url, OutputDir: job.Workspace, Mode: job.Kind})
	if err != nil {
		return nil, err
	}
	files, err := extract.ListFiles(job.Workspace)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", media.ErrExtractionFailed, err)
	}
	for _, f := range files {
		if extract.Classify(f).IsMedia() {
			return files, nil
		}
	}
	return files, fmt.Errorf("%w: %s job produced no media", media.ErrExtractionFailed, job.Kind)
}

func (o *Orchestrator) collect(p pending) media.FetchJob {
	job := p.job
	if p.err != nil {
		job.Outcome = media.Outcome{Err: p.err}
		metrics.ObserveExtraction(string(job.Kind), "failed", 0)
		return job
	}
	r := p.future.Wait()
	err := r.Err
	if err != nil && !errors.Is(err, media.ErrExtractionFailed) {
		err = fmt.Errorf("%w: %w", media.ErrExtractionFailed, err)
	}
	job.Outcome = media.Outcome{Paths: r.Paths, Err: err}
	job.Duration = r.Duration

	status := "succeeded"
	if !job.Outcome.Succeeded() {
		status = "failed"
		o.logger.Warn("extraction job failed",
			zap.String("job_id", job.ID),
			zap.String("job_kind", string(job.Kind)),
			zap.Error(err))
	}
	metrics.ObserveExtraction(string(job.Kind), status, r.Duration)
	return job
}

func (o *Orchestrator) fail(res Result, err error, logger *zap.Logger) (Result, error) {
	classify(&res)
	res.transition(StateFailed)
	logger.Warn("fetch failed", zap.Error(err))
	return res, err
}

func (o *Orchestrator) finish(res Result, state State, logger *zap.Logger) Result {
	classify(&res)
	res.transition(state)
	logger.Info("fetch finished",
		zap.String("state", string(state)),
		zap.Int("photos", len(res.Photos)),
		zap.Int("videos", len(res.Videos)),
		zap.Bool("audio", res.Audio != ""))
	return res
}

func (o *Orchestrator) newID(kind media.JobKind) string {
	if o.ids != nil {
		if id, err := o.ids.NewID(); err == nil {
			return id
		}
	}
	return fmt.Sprintf("%s-%d", kind, time.Now().UnixNano())
}

func (r *Result) transition(s State) {
	if r.State == s {
		return
	}
	r.State = s
	r.Trace = append(r.Trace, s)
}
