package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	_ "github.com/custodia-labs/drive-index/docs"
	"github.com/custodia-labs/drive-index/internal/adapters/driven/auth"
	"github.com/custodia-labs/drive-index/internal/adapters/driven/index"
	"github.com/custodia-labs/drive-index/internal/adapters/driven/memory"
	"github.com/custodia-labs/drive-index/internal/core/domain"
	"github.com/custodia-labs/drive-index/internal/core/ports/driven"
	"github.com/custodia-labs/drive-index/internal/core/services"
)

const (
	testSecret  = "test-jwt-secret"
	operatorKey = "op-secret"
)

// apiFixture serves the API over in-memory stores
type apiFixture struct {
	server   *Server
	assets   *memory.AssetStore
	jobs     *memory.CrawlJobStore
	index    *index.Index
	mirror   *services.PermissionMirror
	alerter  *memory.Alerter
	verifier *auth.Adapter
}

type pingerFunc func(ctx context.Context) error

func (f pingerFunc) Ping(ctx context.Context) error { return f(ctx) }

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newFixture(t *testing.T, schedules ScheduleManager, checks map[string]driven.Pinger) *apiFixture {
	t.Helper()

	hash, err := auth.NewAdapterWithCost(testSecret, "", 4).HashKey(operatorKey)
	if err != nil {
		t.Fatalf("failed to hash operator key: %v", err)
	}

	ix, err := index.New()
	if err != nil {
		t.Fatalf("failed to create index: %v", err)
	}

	logger := quietLogger()
	f := &apiFixture{
		assets:   memory.NewAssetStore(),
		jobs:     memory.NewCrawlJobStore(),
		index:    ix,
		alerter:  memory.NewAlerter(logger),
		verifier: auth.NewAdapterWithCost(testSecret, hash, 4),
	}
	f.mirror = services.NewPermissionMirror(services.PermissionMirrorConfig{
		Store:  memory.NewPermissionStore(),
		Logger: logger,
	})

	cfg := DefaultConfig()
	cfg.Version = "1.2.3"
	cfg.Logger = logger
	cfg.AllowedOrigins = []string{"https://dashboard.test"}

	f.server = NewServer(cfg, Dependencies{
		Search: services.NewSearchService(services.SearchServiceConfig{
			Index:       f.index,
			Permissions: f.mirror,
			Logger:      logger,
		}),
		Crawl: services.NewCrawlService(services.CrawlServiceConfig{
			Jobs:   f.jobs,
			Assets: f.assets,
			Index:  f.index,
			Logger: logger,
		}),
		Schedules: schedules,
		Alerts:    f.alerter,
		Verifier:  f.verifier,
		Checks:    checks,
	})
	return f
}

func (f *apiFixture) token(t *testing.T, subject string, role domain.Role, groups ...string) string {
	t.Helper()
	now := time.Now()
	token, err := f.verifier.GenerateToken(&domain.TokenClaims{
		Subject:   subject,
		Groups:    groups,
		Role:      role,
		IssuedAt:  now.Unix(),
		ExpiresAt: now.Add(time.Hour).Unix(),
	})
	if err != nil {
		t.Fatalf("failed to generate token: %v", err)
	}
	return token
}

func (f *apiFixture) seedAsset(t *testing.T, id, path string, state domain.IndexState, tags domain.Tags, principals ...string) {
	t.Helper()
	ctx := context.Background()

	name := path[strings.LastIndex(path, "/")+1:]
	asset := &domain.Asset{
		FileID:        id,
		ScopeID:       "root",
		Name:          name,
		Path:          path,
		Tags:          tags,
		Confidence:    domain.ConfidenceFull,
		RevisionToken: "1",
		IndexState:    state,
		SourceURL:     "https://drive.test/file/" + id,
	}
	if err := f.assets.Upsert(ctx, asset); err != nil {
		t.Fatalf("failed to store asset: %v", err)
	}
	if _, err := f.mirror.Upsert(ctx, id, principals, "1"); err != nil {
		t.Fatalf("failed to store permissions: %v", err)
	}
	if err := f.index.Upsert(ctx, asset); err != nil {
		t.Fatalf("failed to index asset: %v", err)
	}
}

func (f *apiFixture) do(method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != nil {
		if s, ok := body.(string); ok {
			reader = strings.NewReader(s)
		} else {
			b, _ := json.Marshal(body)
			reader = bytes.NewReader(b)
		}
	}
	req := httptest.NewRequest(method, path, reader)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)
	return rec
}

func bearer(token string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + token}
}

func operatorHeaders() map[string]string {
	return map[string]string{OperatorKeyHeader: operatorKey}
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.NewDecoder(rec.Body).Decode(&out); err != nil {
		t.Fatalf("failed to decode response %q: %v", rec.Body.String(), err)
	}
	return out
}

func expectStatus(t *testing.T, rec *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rec.Code != want {
		t.Fatalf("expected status %d, got %d: %s", want, rec.Code, rec.Body.String())
	}
}

func seedCurriculum(t *testing.T, f *apiFixture) {
	f.seedAsset(t, "vid", "/Subjects/English/Grade 4/Lesson - 'Nature'/Part - 'Garden'/video.mp4", domain.IndexStateIndexed,
		domain.Tags{domain.FacetSubject: "English", domain.FacetGradeLevel: "Grade 4", domain.FacetFileType: "video"},
		"user:alice")
	f.seedAsset(t, "slides", "/Subjects/Math/Grade 4/Lesson - 'Fractions'/Part - 'Halves'/slides.pdf", domain.IndexStateIndexed,
		domain.Tags{domain.FacetSubject: "Math", domain.FacetGradeLevel: "Grade 4", domain.FacetFileType: "pdf"},
		"user:alice", "group:teachers")
}

// Health endpoints

func TestHandleHealth(t *testing.T) {
	f := newFixture(t, nil, nil)

	rec := f.do(http.MethodGet, "/health", nil, nil)
	expectStatus(t, rec, http.StatusOK)
	if resp := decode[StatusResponse](t, rec); resp.Status != "ok" {
		t.Errorf("expected status ok, got %s", resp.Status)
	}
}

func TestHandleVersion(t *testing.T) {
	f := newFixture(t, nil, nil)

	rec := f.do(http.MethodGet, "/version", nil, nil)
	expectStatus(t, rec, http.StatusOK)
	if resp := decode[VersionResponse](t, rec); resp.Version != "1.2.3" {
		t.Errorf("expected version 1.2.3, got %s", resp.Version)
	}
}

func TestHandleReady(t *testing.T) {
	f := newFixture(t, nil, map[string]driven.Pinger{
		"store": pingerFunc(func(ctx context.Context) error { return nil }),
	})

	rec := f.do(http.MethodGet, "/ready", nil, nil)
	expectStatus(t, rec, http.StatusOK)
	resp := decode[ReadyResponse](t, rec)
	if resp.Status != "ready" || resp.Checks["store"] != "ok" {
		t.Errorf("unexpected readiness: %+v", resp)
	}
}

func TestHandleReady_FailingCheck(t *testing.T) {
	f := newFixture(t, nil, map[string]driven.Pinger{
		"store": pingerFunc(func(ctx context.Context) error { return nil }),
		"redis": pingerFunc(func(ctx context.Context) error { return errors.New("connection refused") }),
	})

	rec := f.do(http.MethodGet, "/ready", nil, nil)
	expectStatus(t, rec, http.StatusServiceUnavailable)
	resp := decode[ReadyResponse](t, rec)
	if resp.Checks["redis"] != "connection refused" {
		t.Errorf("expected redis failure to be reported, got %+v", resp.Checks)
	}
	if resp.Checks["store"] != "ok" {
		t.Errorf("expected store ok, got %q", resp.Checks["store"])
	}
}

func TestHandleSwaggerDoc(t *testing.T) {
	f := newFixture(t, nil, nil)

	rec := f.do(http.MethodGet, "/swagger/doc.json", nil, nil)
	expectStatus(t, rec, http.StatusOK)
	if !strings.Contains(rec.Body.String(), "/search") {
		t.Error("expected api doc to describe /search")
	}
}

// Search endpoint

func TestHandleSearch_FiltersByPrincipal(t *testing.T) {
	f := newFixture(t, nil, nil)
	seedCurriculum(t, f)

	rec := f.do(http.MethodPost, "/api/v1/search", SearchRequest{Text: "grade"}, bearer(f.token(t, "alice", domain.RoleSearcher)))
	expectStatus(t, rec, http.StatusOK)
	if result := decode[domain.SearchResult](t, rec); len(result.Results) != 2 {
		t.Errorf("expected alice to see 2 results, got %d", len(result.Results))
	}

	rec = f.do(http.MethodPost, "/api/v1/search", SearchRequest{Text: "grade"}, bearer(f.token(t, "bob", domain.RoleSearcher)))
	expectStatus(t, rec, http.StatusOK)
	if result := decode[domain.SearchResult](t, rec); len(result.Results) != 0 {
		t.Errorf("expected bob to see nothing, got %d", len(result.Results))
	}
}

func TestHandleSearch_GroupGrant(t *testing.T) {
	f := newFixture(t, nil, nil)
	seedCurriculum(t, f)

	rec := f.do(http.MethodPost, "/api/v1/search", SearchRequest{Text: "grade"},
		bearer(f.token(t, "bob", domain.RoleSearcher, "teachers")))
	expectStatus(t, rec, http.StatusOK)

	result := decode[domain.SearchResult](t, rec)
	if len(result.Results) != 1 || result.Results[0].FileID != "slides" {
		t.Errorf("expected only slides through group:teachers, got %+v", result.Results)
	}
}

func TestHandleSearch_FacetFilter(t *testing.T) {
	f := newFixture(t, nil, nil)
	seedCurriculum(t, f)

	req := SearchRequest{FacetFilters: map[string]string{"subject": "english", "gradeLevel": "Grade 4"}}
	rec := f.do(http.MethodPost, "/api/v1/search", req, bearer(f.token(t, "alice", domain.RoleSearcher)))
	expectStatus(t, rec, http.StatusOK)

	result := decode[domain.SearchResult](t, rec)
	if len(result.Results) != 1 || result.Results[0].FileID != "vid" {
		t.Fatalf("expected only the video, got %+v", result.Results)
	}
	if result.Results[0].SourceURL == "" {
		t.Error("expected a source URL on the hit")
	}
}

func TestHandleSearch_BlankFacetName(t *testing.T) {
	f := newFixture(t, nil, nil)

	req := SearchRequest{FacetFilters: map[string]string{" ": "English"}}
	rec := f.do(http.MethodPost, "/api/v1/search", req, bearer(f.token(t, "alice", domain.RoleSearcher)))
	expectStatus(t, rec, http.StatusBadRequest)
}

func TestHandleSearch_InvalidBody(t *testing.T) {
	f := newFixture(t, nil, nil)

	rec := f.do(http.MethodPost, "/api/v1/search", "{not json", bearer(f.token(t, "alice", domain.RoleSearcher)))
	expectStatus(t, rec, http.StatusBadRequest)
}

func TestHandleSearch_Unauthenticated(t *testing.T) {
	f := newFixture(t, nil, nil)

	tests := []struct {
		name    string
		headers map[string]string
		message string
	}{
		{"missing token", nil, "missing authorization token"},
		{"bad token", bearer("garbage"), "invalid token"},
		{"wrong scheme", map[string]string{"Authorization": "Basic abc"}, "missing authorization token"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(http.MethodPost, "/api/v1/search", SearchRequest{Text: "x"}, tt.headers)
			expectStatus(t, rec, http.StatusUnauthorized)
			if resp := decode[ErrorResponse](t, rec); resp.Error != tt.message {
				t.Errorf("expected error %q, got %q", tt.message, resp.Error)
			}
		})
	}
}

func TestHandleSearch_ExpiredToken(t *testing.T) {
	f := newFixture(t, nil, nil)

	past := time.Now().Add(-time.Hour)
	token, _ := f.verifier.GenerateToken(&domain.TokenClaims{
		Subject:   "alice",
		IssuedAt:  past.Add(-time.Hour).Unix(),
		ExpiresAt: past.Unix(),
	})

	rec := f.do(http.MethodPost, "/api/v1/search", SearchRequest{Text: "x"}, bearer(token))
	expectStatus(t, rec, http.StatusUnauthorized)
	if resp := decode[ErrorResponse](t, rec); resp.Error != "token expired" {
		t.Errorf("expected token expired, got %q", resp.Error)
	}
}

// Crawl dashboard endpoints

func TestDashboard_RequiresOperator(t *testing.T) {
	f := newFixture(t, nil, nil)

	rec := f.do(http.MethodGet, "/api/v1/crawl/jobs", nil, bearer(f.token(t, "alice", domain.RoleSearcher)))
	expectStatus(t, rec, http.StatusForbidden)

	rec = f.do(http.MethodGet, "/api/v1/crawl/jobs", nil, map[string]string{OperatorKeyHeader: "wrong"})
	expectStatus(t, rec, http.StatusUnauthorized)

	rec = f.do(http.MethodGet, "/api/v1/crawl/jobs", nil, bearer(f.token(t, "ops", domain.RoleOperator)))
	expectStatus(t, rec, http.StatusOK)

	rec = f.do(http.MethodGet, "/api/v1/crawl/jobs", nil, operatorHeaders())
	expectStatus(t, rec, http.StatusOK)
}

func TestDashboard_JobLifecycle(t *testing.T) {
	f := newFixture(t, nil, nil)
	ops := bearer(f.token(t, "ops", domain.RoleOperator))

	rec := f.do(http.MethodPost, "/api/v1/crawl/scopes/root/full", nil, ops)
	expectStatus(t, rec, http.StatusAccepted)
	job := decode[domain.CrawlJob](t, rec)
	if job.State != domain.JobStateQueued || job.ScopeID != "root" || job.Kind != domain.JobKindFull {
		t.Fatalf("unexpected job: %+v", job)
	}

	rec = f.do(http.MethodGet, "/api/v1/crawl/jobs?state=queued", nil, ops)
	expectStatus(t, rec, http.StatusOK)
	if jobs := decode[[]domain.CrawlJob](t, rec); len(jobs) != 1 || jobs[0].ID != job.ID {
		t.Fatalf("expected the queued job, got %+v", jobs)
	}

	rec = f.do(http.MethodGet, "/api/v1/crawl/jobs/"+job.ID, nil, ops)
	expectStatus(t, rec, http.StatusOK)

	rec = f.do(http.MethodPost, "/api/v1/crawl/jobs/"+job.ID+"/cancel", nil, ops)
	expectStatus(t, rec, http.StatusOK)

	rec = f.do(http.MethodPost, "/api/v1/crawl/jobs/"+job.ID+"/cancel", nil, ops)
	expectStatus(t, rec, http.StatusConflict)

	rec = f.do(http.MethodGet, "/api/v1/crawl/jobs?state=failed", nil, ops)
	expectStatus(t, rec, http.StatusOK)
	failed := decode[[]domain.CrawlJob](t, rec)
	if len(failed) != 1 || failed[0].LastError != domain.ErrCancelled.Error() {
		t.Fatalf("expected a cancelled job, got %+v", failed)
	}

	rec = f.do(http.MethodPost, "/api/v1/crawl/jobs/"+job.ID+"/retry", nil, ops)
	expectStatus(t, rec, http.StatusOK)

	rec = f.do(http.MethodGet, "/api/v1/crawl/jobs/"+job.ID+"/transitions", nil, ops)
	expectStatus(t, rec, http.StatusOK)
	transitions := decode[[]domain.JobTransition](t, rec)
	if len(transitions) != 2 {
		t.Fatalf("expected 2 transitions, got %+v", transitions)
	}
	if transitions[0].To != domain.JobStateFailed || transitions[0].Actor != "user:ops" {
		t.Errorf("unexpected cancel transition: %+v", transitions[0])
	}
	if transitions[1].To != domain.JobStateQueued {
		t.Errorf("expected retry to requeue, got %+v", transitions[1])
	}
}

func TestDashboard_ResolveJobNotInReview(t *testing.T) {
	f := newFixture(t, nil, nil)

	rec := f.do(http.MethodPost, "/api/v1/crawl/scopes/root/full", nil, operatorHeaders())
	job := decode[domain.CrawlJob](t, rec)

	rec = f.do(http.MethodPost, "/api/v1/crawl/jobs/"+job.ID+"/resolve", nil, operatorHeaders())
	expectStatus(t, rec, http.StatusConflict)
}

func TestDashboard_OperatorKeyActor(t *testing.T) {
	f := newFixture(t, nil, nil)

	rec := f.do(http.MethodPost, "/api/v1/crawl/scopes/root/full", nil, operatorHeaders())
	job := decode[domain.CrawlJob](t, rec)
	f.do(http.MethodPost, "/api/v1/crawl/jobs/"+job.ID+"/cancel", nil, operatorHeaders())

	transitions, err := f.jobs.Transitions(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("failed to read transitions: %v", err)
	}
	if len(transitions) != 1 || transitions[0].Actor != operatorKeyActor {
		t.Errorf("expected operator key actor, got %+v", transitions)
	}
}

func TestDashboard_ListJobsValidation(t *testing.T) {
	f := newFixture(t, nil, nil)

	rec := f.do(http.MethodGet, "/api/v1/crawl/jobs?state=bogus", nil, operatorHeaders())
	expectStatus(t, rec, http.StatusBadRequest)

	rec = f.do(http.MethodGet, "/api/v1/crawl/jobs?limit=abc", nil, operatorHeaders())
	expectStatus(t, rec, http.StatusBadRequest)

	rec = f.do(http.MethodGet, "/api/v1/crawl/jobs?state=done", nil, operatorHeaders())
	expectStatus(t, rec, http.StatusOK)
	if body := strings.TrimSpace(rec.Body.String()); body != "[]" {
		t.Errorf("expected empty list, got %s", body)
	}
}

func TestDashboard_UnknownJob(t *testing.T) {
	f := newFixture(t, nil, nil)

	rec := f.do(http.MethodGet, "/api/v1/crawl/jobs/missing", nil, operatorHeaders())
	expectStatus(t, rec, http.StatusNotFound)
}

func TestDashboard_HaltedScope(t *testing.T) {
	f := newFixture(t, nil, nil)
	ctx := context.Background()

	if err := f.jobs.HaltScope(ctx, "root", "credentials revoked"); err != nil {
		t.Fatalf("failed to halt scope: %v", err)
	}

	rec := f.do(http.MethodPost, "/api/v1/crawl/scopes/root/full", nil, operatorHeaders())
	expectStatus(t, rec, http.StatusConflict)

	rec = f.do(http.MethodGet, "/api/v1/crawl/status/root", nil, operatorHeaders())
	expectStatus(t, rec, http.StatusOK)
	status := decode[domain.CrawlStatus](t, rec)
	if !status.Halted || status.HaltReason != "credentials revoked" {
		t.Fatalf("expected halted status, got %+v", status)
	}

	rec = f.do(http.MethodPost, "/api/v1/crawl/scopes/root/resume", nil, operatorHeaders())
	expectStatus(t, rec, http.StatusOK)

	rec = f.do(http.MethodGet, "/api/v1/crawl/status/root", nil, operatorHeaders())
	if status := decode[domain.CrawlStatus](t, rec); status.Halted {
		t.Error("expected scope to be resumed")
	}

	rec = f.do(http.MethodPost, "/api/v1/crawl/scopes/root/full", nil, operatorHeaders())
	expectStatus(t, rec, http.StatusAccepted)
}

func TestDashboard_ResolveAsset(t *testing.T) {
	f := newFixture(t, nil, nil)
	f.seedAsset(t, "board", "/Art/board.psd", domain.IndexStateNeedsReview,
		domain.Tags{domain.FacetFileType: "image"}, "user:alice")

	req := ResolveAssetRequest{Tags: map[string]string{"subject": "Art"}}
	rec := f.do(http.MethodPost, "/api/v1/assets/board/resolve", req, operatorHeaders())
	expectStatus(t, rec, http.StatusOK)

	asset := decode[domain.Asset](t, rec)
	if asset.IndexState != domain.IndexStateIndexed {
		t.Errorf("expected indexed, got %s", asset.IndexState)
	}
	if asset.Tags[domain.FacetSubject] != "Art" || asset.Tags[domain.FacetFileType] != "image" {
		t.Errorf("expected merged tags, got %v", asset.Tags)
	}

	search := SearchRequest{FacetFilters: map[string]string{"subject": "Art"}}
	rec = f.do(http.MethodPost, "/api/v1/search", search, bearer(f.token(t, "alice", domain.RoleSearcher)))
	if result := decode[domain.SearchResult](t, rec); len(result.Results) != 1 {
		t.Errorf("expected resolved asset to be searchable, got %+v", result.Results)
	}
}

func TestDashboard_ResolveAssetErrors(t *testing.T) {
	f := newFixture(t, nil, nil)

	rec := f.do(http.MethodPost, "/api/v1/assets/missing/resolve",
		ResolveAssetRequest{Tags: map[string]string{"subject": "Art"}}, operatorHeaders())
	expectStatus(t, rec, http.StatusNotFound)

	rec = f.do(http.MethodPost, "/api/v1/assets/missing/resolve", ResolveAssetRequest{}, operatorHeaders())
	expectStatus(t, rec, http.StatusBadRequest)

	rec = f.do(http.MethodPost, "/api/v1/assets/missing/resolve", "nope", operatorHeaders())
	expectStatus(t, rec, http.StatusBadRequest)
}

func TestDashboard_Alerts(t *testing.T) {
	f := newFixture(t, nil, nil)

	rec := f.do(http.MethodGet, "/api/v1/alerts", nil, operatorHeaders())
	expectStatus(t, rec, http.StatusOK)
	if alerts := decode[[]domain.Alert](t, rec); len(alerts) != 0 {
		t.Fatalf("expected no alerts, got %d", len(alerts))
	}

	_ = f.alerter.Alert(context.Background(),
		domain.NewAlert(domain.AlertSeverityCritical, "root", "job-1", "source authorization failed"))

	rec = f.do(http.MethodGet, "/api/v1/alerts", nil, operatorHeaders())
	alerts := decode[[]domain.Alert](t, rec)
	if len(alerts) != 1 || alerts[0].Severity != domain.AlertSeverityCritical {
		t.Errorf("expected the critical alert, got %+v", alerts)
	}
}

func TestDashboard_SchedulesNotConfigured(t *testing.T) {
	f := newFixture(t, nil, nil)

	rec := f.do(http.MethodGet, "/api/v1/crawl/schedules", nil, operatorHeaders())
	expectStatus(t, rec, http.StatusServiceUnavailable)
}

func TestDashboard_Schedules(t *testing.T) {
	jobs := memory.NewCrawlJobStore()
	scheduler := services.NewScheduler(services.SchedulerConfig{
		Store:  memory.NewScheduleStore(),
		Jobs:   jobs,
		Logger: quietLogger(),
	})
	if err := scheduler.ScheduleScope(context.Background(), "root"); err != nil {
		t.Fatalf("failed to schedule scope: %v", err)
	}
	f := newFixture(t, scheduler, nil)

	rec := f.do(http.MethodGet, "/api/v1/crawl/schedules", nil, operatorHeaders())
	expectStatus(t, rec, http.StatusOK)
	schedules := decode[[]domain.ScheduledCrawl](t, rec)
	if len(schedules) != 1 || schedules[0].ScopeID != "root" {
		t.Fatalf("expected the root schedule, got %+v", schedules)
	}

	rec = f.do(http.MethodPost, "/api/v1/crawl/schedules/"+schedules[0].ID+"/trigger", nil, operatorHeaders())
	expectStatus(t, rec, http.StatusAccepted)

	rec = f.do(http.MethodPost, "/api/v1/crawl/schedules/"+schedules[0].ID+"/trigger", nil, operatorHeaders())
	expectStatus(t, rec, http.StatusConflict)

	rec = f.do(http.MethodPost, "/api/v1/crawl/schedules/unknown/trigger", nil, operatorHeaders())
	expectStatus(t, rec, http.StatusNotFound)
}

func TestWriteServiceError(t *testing.T) {
	s := &Server{logger: quietLogger()}

	tests := []struct {
		err  error
		want int
	}{
		{domain.ErrNotFound, http.StatusNotFound},
		{domain.ErrInvalidInput, http.StatusBadRequest},
		{domain.ErrInvalidTransition, http.StatusConflict},
		{domain.ErrScopeHalted, http.StatusConflict},
		{domain.ErrAlreadyExists, http.StatusConflict},
		{domain.ErrUnauthorized, http.StatusUnauthorized},
		{domain.ErrTokenInvalid, http.StatusUnauthorized},
		{domain.ErrForbidden, http.StatusForbidden},
		{domain.ErrServiceUnavailable, http.StatusServiceUnavailable},
		{domain.ErrTransient, http.StatusServiceUnavailable},
		{errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			rec := httptest.NewRecorder()
			s.writeServiceError(rec, wrapErr(tt.err), "operation failed")
			if rec.Code != tt.want {
				t.Errorf("expected %d, got %d", tt.want, rec.Code)
			}
		})
	}
}

func wrapErr(err error) error {
	return errors.Join(errors.New("context"), err)
}
