package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/linkloader/internal/canonical"
	"github.com/JakeFAU/linkloader/internal/lifecycle"
	"github.com/JakeFAU/linkloader/internal/media"
	"github.com/JakeFAU/linkloader/internal/preferences"
	"github.com/JakeFAU/linkloader/internal/storage/memory"
)

type fakeIDGen struct {
	mu  sync.Mutex
	ids []string
	err error
}

func (f *fakeIDGen) NewID() (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	if len(f.ids) == 0 {
		return "", errors.New("no ids left")
	}
	id := f.ids[0]
	f.ids = f.ids[1:]
	return id, nil
}

type fakeClock struct{ now time.Time }

func (c fakeClock) Now() time.Time { return c.now }

// recordingJobs marks every job succeeded in the shared request store.
type recordingJobs struct {
	mu       sync.Mutex
	jobs     []lifecycle.Job
	requests media.RequestStore
	done     chan struct{}
}

func (r *recordingJobs) Handle(ctx context.Context, job lifecycle.Job) lifecycle.Report {
	r.mu.Lock()
	r.jobs = append(r.jobs, job)
	r.mu.Unlock()
	if rec, err := r.requests.Get(ctx, job.RequestID); err == nil {
		rec.Status = media.RequestSucceeded
		_ = r.requests.Update(ctx, rec)
	}
	if r.done != nil {
		r.done <- struct{}{}
	}
	return lifecycle.Report{Outcome: lifecycle.OutcomeSucceeded}
}

func (r *recordingJobs) Jobs() []lifecycle.Job {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]lifecycle.Job(nil), r.jobs...)
}

type testEnv struct {
	server   *Server
	jobs     *recordingJobs
	requests *memory.RequestStore
}

func newTestEnv(t *testing.T, cfg Config, ids ...string) *testEnv {
	t.Helper()
	requests := memory.NewRequestStore()
	jobs := &recordingJobs{requests: requests, done: make(chan struct{}, 8)}
	prefPath := filepath.Join(t.TempDir(), "user_settings.json")
	server, err := NewServer(cfg, Deps{
		Links:       canonical.New(canonical.Config{}, nil, zap.NewNop()),
		Jobs:        jobs,
		Requests:    requests,
		Preferences: preferences.NewStore(preferences.NewFileDocument(prefPath), nil),
		IDs:         &fakeIDGen{ids: ids},
		Clock:       fakeClock{now: time.Unix(100, 0).UTC()},
		Logger:      zap.NewNop(),
	})
	require.NoError(t, err)
	return &testEnv{server: server, jobs: jobs, requests: requests}
}

func (e *testEnv) do(t *testing.T, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, bytes.NewReader([]byte(body)))
	rec := httptest.NewRecorder()
	e.server.Handler().ServeHTTP(rec, req)
	return rec
}

func TestServer_SubmitLink_Engaged(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, Config{}, "req-1")
	rec := env.do(t, http.MethodPost, "/v1/links",
		`{"text":"lol https://vm.tiktok.com/ZMabc/ look","requester_id":"42","message_id":"7"}`)

	require.Equal(t, http.StatusAccepted, rec.Code)
	var resp submitLinkResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "req-1", resp.RequestID)
	require.True(t, resp.Engaged)

	select {
	case <-env.jobs.done:
	case <-time.After(2 * time.Second):
		t.Fatal("job was not handled")
	}
	jobs := env.jobs.Jobs()
	require.Len(t, jobs, 1)
	require.Equal(t, "https://vm.tiktok.com/ZMabc/", jobs[0].RawURL)
	require.Equal(t, media.Target{ChatID: "42", ReplyTo: "7"}, jobs[0].Target)
	require.NoError(t, env.server.Shutdown(context.Background()))

	got := env.do(t, http.MethodGet, "/v1/requests/req-1", "")
	require.Equal(t, http.StatusOK, got.Code)
	require.Contains(t, got.Body.String(), `"status":"succeeded"`)
}

func TestServer_SubmitLink_NoSupportedLink(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, Config{}, "req-2")
	rec := env.do(t, http.MethodPost, "/v1/links", `{"text":"hello https://example.com","requester_id":"42"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"engaged":false`)
	require.Empty(t, env.jobs.Jobs())

	stored, err := env.requests.Get(context.Background(), "req-2")
	require.NoError(t, err)
	require.Equal(t, media.RequestIgnored, stored.Status)
}

func TestServer_SubmitLink_BadInput(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, Config{})
	rec := env.do(t, http.MethodPost, "/v1/links", "{invalid")
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPost, "/v1/links", `{"text":"https://youtube.com/shorts/x"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, rec.Body.String(), "requester_id required")
}

func TestServer_SubmitLink_IDFailure(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, Config{})
	rec := env.do(t, http.MethodPost, "/v1/links", `{"text":"https://youtube.com/shorts/x","requester_id":"1"}`)
	require.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestServer_GetRequest_NotFound(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, Config{})
	rec := env.do(t, http.MethodGet, "/v1/requests/missing", "")
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServer_Preferences(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, Config{})
	rec := env.do(t, http.MethodGet, "/v1/users/42/preferences", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var prefs media.UserPreferences
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &prefs))
	require.Equal(t, media.DefaultPreferences(), prefs)

	rec = env.do(t, http.MethodPost, "/v1/users/42/preferences/sep/toggle", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &prefs))
	require.True(t, prefs.DescriptionSeparate)

	rec = env.do(t, http.MethodPost, "/v1/users/42/preferences/volume/toggle", "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, rec.Body.String(), "unknown preference flag")
}

func TestServer_APIKey(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, Config{APIKey: "secret"})
	rec := env.do(t, http.MethodGet, "/v1/users/42/preferences", "")
	require.Equal(t, http.StatusForbidden, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/v1/users/42/preferences", nil)
	req.Header.Set("X-API-Key", "secret")
	ok := httptest.NewRecorder()
	env.server.Handler().ServeHTTP(ok, req)
	require.Equal(t, http.StatusOK, ok.Code)

	// Probes stay open.
	require.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/healthz", "").Code)
}

func TestServer_Probes(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, Config{})
	rec := env.do(t, http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	require.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/readyz", "").Code)

	env.server.deps.Checks = map[string]ReadinessCheck{
		"cache": func(context.Context) error { return fmt.Errorf("dial tcp: refused") },
	}
	rec = env.do(t, http.MethodGet, "/readyz", "")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.Contains(t, rec.Body.String(), "refused")
}

func TestServer_Metrics(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, Config{})
	rec := env.do(t, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestServer_ShutdownTimesOut(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, Config{})
	env.server.inflight.Add(1)
	defer env.server.inflight.Done()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := env.server.Shutdown(ctx)
	require.Error(t, err)
	require.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestNewServerValidation(t *testing.T) {
	t.Parallel()

	_, err := NewServer(Config{}, Deps{})
	require.Error(t, err)
	require.True(t, strings.Contains(err.Error(), "required"))
}
