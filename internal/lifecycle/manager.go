// Package lifecycle owns one request from the first status message to the
// workspace cleanup. It sequences canonicalization, the cache, the fetch,
// assembly and delivery, and turns every failure into exactly one status
// edit.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime/debug"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/linkloader/internal/assembly"
	"github.com/JakeFAU/linkloader/internal/fetch"
	"github.com/JakeFAU/linkloader/internal/media"
	"github.com/JakeFAU/linkloader/internal/metadata"
	"github.com/JakeFAU/linkloader/internal/metrics"
)

// Status texts shown to the requester.
const (
	StatusDownloading = "⏳ Downloading..."
	StatusUploading   = "🔄️ Uploading..."
)

// Request outcomes, used for metrics, events and tracking.
const (
	OutcomeSucceeded  = "succeeded"
	OutcomeCacheHit   = "cache_hit"
	OutcomePartial    = "partial"
	OutcomeFailed     = "failed"
	OutcomeUnexpected = "unexpected"
)

const (
	defaultCleanupGrace = 2 * time.Second
	defaultEventTopic   = "delivery-events"
)

// Canonicalizer resolves a raw link into a classified request.
type Canonicalizer interface {
	Canonicalize(ctx context.Context, rawURL, requesterID string) (media.CanonicalRequest, error)
}

// Fetcher runs the extraction jobs for a request.
type Fetcher interface {
	Fetch(ctx context.Context, req media.CanonicalRequest, prefs media.UserPreferences, workspace string) (fetch.Result, error)
}

// StatusReleaser is implemented by transports that track status messages
// and can forget one whose request has finished.
type StatusReleaser interface {
	ReleaseStatus(msg media.MessageRef)
}

// Config controls workspace handling and failure reporting.
type Config struct {
	BaseDir        string        `mapstructure:"base_dir"`
	CleanupGrace   time.Duration `mapstructure:"cleanup_grace"`
	OperatorChatID string        `mapstructure:"operator_chat_id"`
	EventTopic     string        `mapstructure:"event_topic"`
}

// Deps are the collaborators of a Manager. Publisher and Requests may be nil.
type Deps struct {
	Canonicalizer Canonicalizer
	Cache         media.CacheStore
	Preferences   media.PreferenceStore
	Fetcher       Fetcher
	Transport     media.Transport
	Publisher     media.Publisher
	Requests      media.RequestStore
	Clock         media.Clock
	Logger        *zap.Logger
}

// Job is one accepted link.
type Job struct {
	RequestID   string
	RawURL      string
	RequesterID string
	Target      media.Target
}

// Report summarizes how a job ended.
type Report struct {
	Request  media.CanonicalRequest
	Outcome  string
	CacheHit bool
	State    fetch.State
	Refs     []string
	Err      error
}

// Manager runs jobs end to end.
type Manager struct {
	cfg      Config
	deps     Deps
	executor *assembly.Executor
	logger   *zap.Logger
	sleep    func(context.Context, time.Duration)
}

// New validates deps and builds a Manager.
func New(cfg Config, deps Deps) (*Manager, error) {
	switch {
	case deps.Canonicalizer == nil:
		return nil, errors.New("canonicalizer is required")
	case deps.Cache == nil:
		return nil, errors.New("cache store is required")
	case deps.Preferences == nil:
		return nil, errors.New("preference store is required")
	case deps.Fetcher == nil:
		return nil, errors.New("fetcher is required")
	case deps.Transport == nil:
		return nil, errors.New("transport is required")
	}
	if cfg.BaseDir == "" {
		cfg.BaseDir = filepath.Join(os.TempDir(), "linkloader")
	}
	if cfg.CleanupGrace <= 0 {
		cfg.CleanupGrace = defaultCleanupGrace
	}
	if cfg.EventTopic == "" {
		cfg.EventTopic = defaultEventTopic
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		cfg:      cfg,
		deps:     deps,
		executor: assembly.NewExecutor(deps.Transport, logger.Named("assembly")),
		logger:   logger,
		sleep:    sleepCtx,
	}, nil
}

// run carries the per-job state shared by the pipeline steps.
type run struct {
	job    Job
	status media.MessageRef
	logger *zap.Logger
	report Report
	start  time.Time
	// step names the pipeline stage currently running.
	step string
}

// Handle runs a job to completion. It never panics and always cleans up the
// workspace. Cancelling ctx stops waiting between steps but does not abort
// extraction jobs already running.
func (m *Manager) Handle(ctx context.Context, job Job) (report Report) {
	r := &run{
		job:    job,
		logger: m.logger.With(zap.String("request_id", job.RequestID), zap.String("url", job.RawURL)),
		start:  m.now(),
	}
	m.track(ctx, job, func(rec *media.RequestRecord) {
		rec.Status = media.RequestRunning
		started := r.start
		rec.Started = &started
	})

	workspace := filepath.Join(m.cfg.BaseDir, job.RequestID)
	defer func() {
		if p := recover(); p != nil {
			err := fmt.Errorf("panic: %v", p)
			m.unexpected(ctx, r, err, stackReport{label: "panic stack", trace: debug.Stack()})
		}
		m.cleanup(ctx, r, workspace)
		m.finish(ctx, r)
		report = r.report
	}()

	status, err := m.deps.Transport.SendStatus(ctx, job.Target, StatusDownloading)
	if err != nil {
		r.logger.Warn("send status message", zap.Error(err))
	}
	r.status = status

	if err := m.process(ctx, r, workspace); err != nil {
		if media.IsKnownFailure(err) {
			m.known(ctx, r, err)
		} else {
			m.unexpected(ctx, r, err, stackReport{label: "handler stack", trace: debug.Stack()})
		}
	}
	return r.report
}

func (m *Manager) process(ctx context.Context, r *run, workspace string) error {
	r.step = "canonicalize"
	req, err := m.deps.Canonicalizer.Canonicalize(ctx, r.job.RawURL, r.job.RequesterID)
	if err != nil {
		return fmt.Errorf("canonicalize: %w", err)
	}
	r.report.Request = req
	r.logger = r.logger.With(zap.String("canonical_url", req.CanonicalURL), zap.String("kind", string(req.Kind)))
	m.track(ctx, r.job, func(rec *media.RequestRecord) {
		rec.CanonicalURL = req.CanonicalURL
		rec.Kind = req.Kind
	})

	r.step = "preferences"
	prefs, err := m.deps.Preferences.Get(ctx, req.RequesterID)
	if err != nil {
		r.logger.Warn("load preferences, using defaults", zap.Error(err))
		prefs = media.DefaultPreferences()
	}

	r.step = "cache"
	if m.serveFromCache(ctx, r, req, prefs) {
		return nil
	}

	r.step = "fetch"
	if err := os.MkdirAll(workspace, 0o750); err != nil {
		return fmt.Errorf("create workspace: %w", err)
	}
	res, err := m.deps.Fetcher.Fetch(ctx, req, prefs, workspace)
	r.report.State = res.State
	if err != nil {
		return err
	}

	r.step = "assemble"
	caption := metadata.Caption(res.Metadata())
	in := assembly.FromFiles(req, res.Metadata(), caption, res.Photos, res.Videos, res.Audio)
	plan := assembly.Build(in, prefs)
	if plan.Empty() {
		return fmt.Errorf("%w: nothing to deliver for %s", media.ErrNoMediaProduced, req.Kind)
	}

	r.step = "deliver"
	m.editStatus(ctx, r, StatusUploading)
	delivered, derr := m.executor.Execute(ctx, r.job.Target, plan)
	r.report.Refs = delivered.Refs()
	if update := delivered.CacheUpdate(plan.Caption); !update.Empty() {
		if err := m.deps.Cache.Upsert(ctx, req.CanonicalURL, update); err != nil {
			r.logger.Error("cache update failed", zap.Error(err))
		}
	}
	if derr != nil {
		return derr
	}

	m.deleteStatus(ctx, r)
	r.report.Outcome = OutcomeSucceeded
	if res.State == fetch.StatePartiallyFailed {
		r.report.Outcome = OutcomePartial
	}
	return nil
}

// serveFromCache delivers from stored references. A rejected reference is
// logged and the caller falls through to a fresh fetch.
func (m *Manager) serveFromCache(ctx context.Context, r *run, req media.CanonicalRequest, prefs media.UserPreferences) bool {
	entry, err := m.deps.Cache.Lookup(ctx, req.CanonicalURL)
	if err != nil {
		metrics.ObserveCacheLookup("error")
		r.logger.Warn("cache lookup failed, fetching", zap.Error(err))
		return false
	}
	if !assembly.Usable(req.Kind, entry) {
		metrics.ObserveCacheLookup("miss")
		return false
	}
	metrics.ObserveCacheLookup("hit")

	plan := assembly.Build(assembly.FromCache(req, *entry), prefs)
	if plan.Empty() {
		return false
	}
	delivered, err := m.executor.Execute(ctx, r.job.Target, plan)
	if err != nil {
		r.logger.Warn("cached reference rejected, refetching", zap.Error(err))
		return false
	}
	m.deleteStatus(ctx, r)
	r.report.CacheHit = true
	r.report.Outcome = OutcomeCacheHit
	r.report.Refs = delivered.Refs()
	return true
}

func (m *Manager) known(ctx context.Context, r *run, err error) {
	r.report.Outcome = OutcomeFailed
	r.report.Err = err
	r.logger.Warn("request failed", zap.Error(err))
	m.editStatus(ctx, r, FailureMessage(r.report.Request.Kind, err))
}

// stackReport is a goroutine dump with a note on where it was taken. For
// returned errors that is the request handler, not the failing call.
type stackReport struct {
	label string
	trace []byte
}

func (m *Manager) unexpected(ctx context.Context, r *run, err error, stack stackReport) {
	r.report.Outcome = OutcomeUnexpected
	r.report.Err = err
	r.logger.Error("unexpected failure",
		zap.String("step", r.step),
		zap.Error(err),
		zap.String("stack_source", stack.label),
		zap.ByteString("stack", stack.trace))
	m.editStatus(ctx, r, UnexpectedMessage(err))

	if m.cfg.OperatorChatID == "" {
		return
	}
	doc := fmt.Sprintf("request %s\nurl %s\nstep %s\n\n%s\n\n%s:\n%s",
		r.job.RequestID, r.job.RawURL, r.step, err, stack.label, stack.trace)
	if serr := m.deps.Transport.SendDocument(ctx, m.cfg.OperatorChatID, ErrorLogName, []byte(doc), OperatorCaption(err)); serr != nil {
		r.logger.Error("send operator report", zap.Error(serr))
	}
}

func (m *Manager) editStatus(ctx context.Context, r *run, text string) {
	if r.status == "" {
		return
	}
	if err := m.deps.Transport.EditStatus(ctx, r.job.Target, r.status, text); err != nil {
		r.logger.Warn("edit status message", zap.Error(err))
	}
}

func (m *Manager) deleteStatus(ctx context.Context, r *run) {
	if r.status == "" {
		return
	}
	if err := m.deps.Transport.DeleteStatus(ctx, r.job.Target, r.status); err != nil {
		r.logger.Warn("delete status message", zap.Error(err))
	}
	r.status = ""
}

func (m *Manager) cleanup(ctx context.Context, r *run, workspace string) {
	m.sleep(context.WithoutCancel(ctx), m.cfg.CleanupGrace)
	if err := os.RemoveAll(workspace); err != nil {
		r.logger.Warn("remove workspace", zap.String("dir", workspace), zap.Error(err))
	}
}

// finish records the outcome everywhere it is observed.
func (m *Manager) finish(ctx context.Context, r *run) {
	if r.report.Outcome == "" {
		r.report.Outcome = OutcomeFailed
	}
	if rel, ok := m.deps.Transport.(StatusReleaser); ok && r.status != "" {
		rel.ReleaseStatus(r.status)
	}
	ctx = context.WithoutCancel(ctx)
	end := m.now()
	kind := string(r.report.Request.Kind)
	metrics.ObserveRequest(kind, r.report.Outcome)

	errText := ""
	if r.report.Err != nil {
		errText = r.report.Err.Error()
	}
	m.track(ctx, r.job, func(rec *media.RequestRecord) {
		rec.Status = media.RequestSucceeded
		if r.report.Err != nil {
			rec.Status = media.RequestFailed
		}
		rec.CacheHit = r.report.CacheHit
		rec.ErrorText = errText
		rec.Finished = &end
	})

	if m.deps.Publisher == nil {
		return
	}
	event := media.DeliveryEvent{
		RequestID:    r.job.RequestID,
		CanonicalURL: r.report.Request.CanonicalURL,
		Kind:         r.report.Request.Kind,
		RequesterID:  r.job.RequesterID,
		Outcome:      r.report.Outcome,
		CacheHit:     r.report.CacheHit,
		Refs:         r.report.Refs,
		ErrorText:    errText,
		DurationMS:   end.Sub(r.start).Milliseconds(),
		CompletedAt:  end,
	}
	if _, err := m.deps.Publisher.Publish(ctx, m.cfg.EventTopic, event); err != nil {
		r.logger.Warn("publish delivery event", zap.Error(err))
	}
}

func (m *Manager) track(ctx context.Context, job Job, mutate func(*media.RequestRecord)) {
	if m.deps.Requests == nil || job.RequestID == "" {
		return
	}
	rec, err := m.deps.Requests.Get(ctx, job.RequestID)
	if errors.Is(err, media.ErrRequestNotFound) {
		rec = media.RequestRecord{
			ID:          job.RequestID,
			RawURL:      job.RawURL,
			RequesterID: job.RequesterID,
			Status:      media.RequestQueued,
			Created:     m.now(),
		}
		mutate(&rec)
		err = m.deps.Requests.Create(ctx, rec)
	} else if err == nil {
		mutate(&rec)
		err = m.deps.Requests.Update(ctx, rec)
	}
	if err != nil {
		m.logger.Warn("track request", zap.String("request_id", job.RequestID), zap.Error(err))
	}
}

func (m *Manager) now() time.Time {
	if m.deps.Clock == nil {
		return time.Now().UTC()
	}
	return m.deps.Clock.Now()
}

func sleepCtx(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}
