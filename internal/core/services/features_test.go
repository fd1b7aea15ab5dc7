package services

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/cucumber/godog"

	"github.com/custodia-labs/drive-index/internal/core/domain"
)

// crawlFeature holds the state of one scenario.
type crawlFeature struct {
	e       *engine
	outcome domain.JobOutcome
	result  *domain.SearchResult
}

func (f *crawlFeature) reset(ctx context.Context, _ *godog.Scenario) (context.Context, error) {
	e, err := buildEngine()
	if err != nil {
		return ctx, err
	}
	*f = crawlFeature{e: e}
	return ctx, nil
}

func (f *crawlFeature) aDriveWithTheCurriculumTree() error {
	f.e.seedCurriculum(false)
	return nil
}

func (f *crawlFeature) aSharedFolderHolding(name string) error {
	f.e.files.AddFolder("shared", "root", "Shared with me")
	f.e.putFile(strings.TrimSuffix(name, ".docx"), "shared", name, "1", "", "user:alice")
	return nil
}

func (f *crawlFeature) aFullCrawlRuns(scope string) error {
	_, outcome, err := f.e.fullCrawl(context.Background(), scope)
	if err != nil {
		return err
	}
	f.outcome = outcome
	return nil
}

func (f *crawlFeature) theJobEndsInState(state string) error {
	if string(f.outcome.State) != state {
		return fmt.Errorf("job ended in %s (%s), want %s", f.outcome.State, f.outcome.Error, state)
	}
	return nil
}

func (f *crawlFeature) asset(fileID string) (*domain.Asset, error) {
	return f.e.assets.Get(context.Background(), fileID)
}

func (f *crawlFeature) assetHasConfidence(fileID, confidence string) error {
	a, err := f.asset(fileID)
	if err != nil {
		return err
	}
	if string(a.Confidence) != confidence {
		return fmt.Errorf("asset %s has confidence %s, want %s", fileID, a.Confidence, confidence)
	}
	return nil
}

func (f *crawlFeature) assetHasTag(fileID, facet, value string) error {
	a, err := f.asset(fileID)
	if err != nil {
		return err
	}
	if got := a.Tags[domain.Facet(facet)]; got != value {
		return fmt.Errorf("asset %s has %s = %q, want %q", fileID, facet, got, value)
	}
	return nil
}

func (f *crawlFeature) fileIsUpdated(fileID, revision, name string) error {
	meta, err := f.e.files.BaseGetFileMetadata(context.Background(), fileID)
	if err != nil {
		return err
	}
	principals, err := f.e.files.BaseGetPermissions(context.Background(), fileID)
	if err != nil {
		return err
	}
	f.e.putFile(fileID, meta.Entry.ParentID, name, revision, meta.Intrinsic.MimeType, principals...)
	return nil
}

func (f *crawlFeature) changeEventsArrive(fileID, first, second string) error {
	outcome, err := f.e.applyChanges(context.Background(),
		domain.Change{FileID: fileID, RevisionToken: first, Type: domain.ChangeTypeModified},
		domain.Change{FileID: fileID, RevisionToken: second, Type: domain.ChangeTypeModified},
	)
	if err != nil {
		return err
	}
	f.outcome = outcome
	return nil
}

func (f *crawlFeature) assetIsAtRevision(fileID, revision, name string) error {
	a, err := f.asset(fileID)
	if err != nil {
		return err
	}
	if a.RevisionToken != revision || a.Name != name {
		return fmt.Errorf("asset %s is %s at revision %s, want %s at %s", fileID, a.Name, a.RevisionToken, name, revision)
	}
	return nil
}

func (f *crawlFeature) principalSearches(principal, text, facet, value string) error {
	res, err := f.e.search.Search(context.Background(), domain.SearchQuery{
		Text:         text,
		FacetFilters: domain.Tags{domain.Facet(facet): value},
		Principal:    domain.Principal{ID: principal},
	})
	if err != nil {
		return err
	}
	f.result = res
	return nil
}

func (f *crawlFeature) theResultsAre(ids string) error {
	want := strings.Split(ids, ",")
	got := resultIDs(f.result)
	if strings.Join(got, ",") != strings.Join(want, ",") {
		return fmt.Errorf("results are %v, want %v", got, want)
	}
	return nil
}

func (f *crawlFeature) theResultsAreEmpty() error {
	if len(f.result.Results) != 0 {
		return fmt.Errorf("expected no results, got %v", resultIDs(f.result))
	}
	return nil
}

func initializeCrawlScenario(sc *godog.ScenarioContext) {
	f := &crawlFeature{}
	sc.Before(f.reset)

	sc.Step(`^a drive with the curriculum tree$`, f.aDriveWithTheCurriculumTree)
	sc.Step(`^a shared folder holding "([^"]*)"$`, f.aSharedFolderHolding)
	sc.Step(`^a full crawl of "([^"]*)" runs$`, f.aFullCrawlRuns)
	sc.Step(`^the job ends in state "([^"]*)"$`, f.theJobEndsInState)
	sc.Step(`^asset "([^"]*)" has confidence "([^"]*)"$`, f.assetHasConfidence)
	sc.Step(`^asset "([^"]*)" has tag "([^"]*)" = "([^"]*)"$`, f.assetHasTag)
	sc.Step(`^file "([^"]*)" is updated to revision "([^"]*)" named "([^"]*)"$`, f.fileIsUpdated)
	sc.Step(`^change events for "([^"]*)" arrive with revisions "([^"]*)" then "([^"]*)"$`, f.changeEventsArrive)
	sc.Step(`^asset "([^"]*)" is at revision "([^"]*)" named "([^"]*)"$`, f.assetIsAtRevision)
	sc.Step(`^"([^"]*)" searches "([^"]*)" with "([^"]*)" = "([^"]*)"$`, f.principalSearches)
	sc.Step(`^the results are "([^"]*)"$`, f.theResultsAre)
	sc.Step(`^the results are empty$`, f.theResultsAreEmpty)
}

func TestFeatures(t *testing.T) {
	suite := godog.TestSuite{
		ScenarioInitializer: initializeCrawlScenario,
		Options: &godog.Options{
			Format:   "pretty",
			Paths:    []string{"testdata/features"},
			TestingT: t,
			Strict:   true,
		},
	}
	if suite.Run() != 0 {
		t.Fatal("non-zero status returned, failed to run feature tests")
	}
}
