package services

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/drive-index/internal/adapters/driven/index"
	"github.com/custodia-labs/drive-index/internal/adapters/driven/memory"
	"github.com/custodia-labs/drive-index/internal/core/domain"
	"github.com/custodia-labs/drive-index/internal/core/ports/driven/mocks"
	"github.com/custodia-labs/drive-index/internal/core/ports/driving"
)

const (
	curriculumPath = "/Subjects/English/Grade 4/Lesson - 'Nature and Environment'/Part - 'A Walk in the Garden'/video.mp4"
	testWorker     = "worker-1"
)

// engine wires the crawl and query path over in-memory adapters.
type engine struct {
	files   *mocks.MockFileStore
	assets  *memory.AssetStore
	perms   *memory.PermissionStore
	jobs    *memory.CrawlJobStore
	index   *index.Index
	alerter *mocks.MockAlerter
	mirror  *PermissionMirror
	orch    *CrawlOrchestrator
	orchCfg CrawlOrchestratorConfig
	search  driving.SearchService
	crawl   driving.CrawlService
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func buildEngine(scopes ...string) (*engine, error) {
	ix, err := index.New()
	if err != nil {
		return nil, err
	}
	e := &engine{
		files:   mocks.NewMockFileStore(),
		assets:  memory.NewAssetStore(),
		perms:   memory.NewPermissionStore(),
		jobs:    memory.NewCrawlJobStore(),
		index:   ix,
		alerter: mocks.NewMockAlerter(),
	}
	logger := quietLogger()
	e.mirror = NewPermissionMirror(PermissionMirrorConfig{Store: e.perms, Logger: logger})

	retryCfg := fastRetry()
	e.orchCfg = CrawlOrchestratorConfig{
		Files:           e.files,
		Assets:          e.assets,
		Permissions:     e.mirror,
		Index:           e.index,
		Jobs:            e.jobs,
		Alerter:         e.alerter,
		Logger:          logger,
		Retry:           &retryCfg,
		FileConcurrency: 4,
		Scopes:          scopes,
	}
	orch, err := NewCrawlOrchestrator(e.orchCfg)
	if err != nil {
		return nil, err
	}
	e.orch = orch
	e.search = NewSearchService(SearchServiceConfig{Index: e.index, Permissions: e.mirror, Logger: logger})
	e.crawl = NewCrawlService(CrawlServiceConfig{
		Jobs:     e.jobs,
		Assets:   e.assets,
		Index:    e.index,
		Canceler: orch,
		Logger:   logger,
	})
	return e, nil
}

func newEngine(t *testing.T, scopes ...string) *engine {
	t.Helper()
	e, err := buildEngine(scopes...)
	require.NoError(t, err)
	return e
}

// seedCurriculum builds a small drive:
//
//	/Subjects/English/Grade 4/Lesson - 'Nature and Environment'/Part - 'A Walk in the Garden'/video.mp4
//	/Subjects/Math/Grade 4/Lesson - 'Fractions'/Part - 'Halves'/slides.pdf
//	/Shared with me/random.docx  (only with FullTree)
func (e *engine) seedCurriculum(withShared bool) {
	f := e.files
	f.AddFolder("root", "", "")
	f.AddFolder("subjects", "root", "Subjects")
	f.AddFolder("english", "subjects", "English")
	f.AddFolder("english-g4", "english", "Grade 4")
	f.AddFolder("nature", "english-g4", "Lesson - 'Nature and Environment'")
	f.AddFolder("garden", "nature", "Part - 'A Walk in the Garden'")
	f.AddFolder("math", "subjects", "Math")
	f.AddFolder("math-g4", "math", "Grade 4")
	f.AddFolder("fractions", "math-g4", "Lesson - 'Fractions'")
	f.AddFolder("halves", "fractions", "Part - 'Halves'")

	e.putFile("vid", "garden", "video.mp4", "1", "video/mp4", "user:alice")
	e.putFile("slides", "halves", "slides.pdf", "1", "application/pdf", "user:alice")
	if withShared {
		f.AddFolder("shared", "root", "Shared with me")
		e.putFile("random", "shared", "random.docx", "1", "", "user:alice")
	}
}

func (e *engine) putFile(id, parent, name, revision, mime string, principals ...string) {
	e.files.PutFile(domain.FileEntry{
		FileID:        id,
		Name:          name,
		ParentID:      parent,
		RevisionToken: revision,
		MimeType:      mime,
	}, domain.IntrinsicMetadata{AuthorName: "Ada Teacher", SizeBytes: 1024, MimeType: mime}, principals)
}

// runNext claims the oldest job and runs it to completion.
func (e *engine) runNext(ctx context.Context) (*domain.CrawlJob, domain.JobOutcome, error) {
	job, err := e.jobs.ClaimNext(ctx, testWorker, domain.DefaultLivenessWindow)
	if err != nil {
		return nil, domain.JobOutcome{}, err
	}
	if job == nil {
		return nil, domain.JobOutcome{}, fmt.Errorf("no claimable job")
	}
	outcome, err := e.orch.RunJob(ctx, job)
	return job, outcome, err
}

// fullCrawl enqueues and runs a full crawl of scope.
func (e *engine) fullCrawl(ctx context.Context, scope string) (*domain.CrawlJob, domain.JobOutcome, error) {
	if _, err := e.crawl.TriggerFullCrawl(ctx, scope); err != nil {
		return nil, domain.JobOutcome{}, err
	}
	return e.runNext(ctx)
}

func (e *engine) mustFullCrawl(t *testing.T, scope string) domain.JobOutcome {
	t.Helper()
	_, outcome, err := e.fullCrawl(context.Background(), scope)
	require.NoError(t, err)
	return outcome
}

func (e *engine) applyChanges(ctx context.Context, changes ...domain.Change) (domain.JobOutcome, error) {
	if err := e.jobs.Enqueue(ctx, domain.NewIncrementalJob(domain.ChangeStreamScope, changes)); err != nil {
		return domain.JobOutcome{}, err
	}
	_, outcome, err := e.runNext(ctx)
	return outcome, err
}

func (e *engine) searchAs(t *testing.T, principal, text string, filters domain.Tags) *domain.SearchResult {
	t.Helper()
	res, err := e.search.Search(context.Background(), domain.SearchQuery{
		Text:         text,
		FacetFilters: filters,
		Principal:    domain.Principal{ID: principal},
	})
	require.NoError(t, err)
	return res
}

func resultIDs(res *domain.SearchResult) []string {
	ids := make([]string, 0, len(res.Results))
	for _, hit := range res.Results {
		ids = append(ids, hit.FileID)
	}
	return ids
}
