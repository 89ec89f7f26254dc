package report

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/siteverify/internal/common"
	"github.com/ternarybob/siteverify/internal/models"
)

func sampleSummary() *models.RunSummary {
	started := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	s := &models.RunSummary{
		RunID:      "run-1",
		BaseURL:    "https://tdt.example.org",
		Driver:     "static",
		StartedAt:  started,
		FinishedAt: started.Add(1500 * time.Millisecond),
	}
	s.Add(models.CheckResult{
		PageName: "Home", Route: "/", Kind: models.CheckLoad, Outcome: models.OutcomePass,
		Detail: "HTTP 200", Duration: 120 * time.Millisecond,
	})
	s.Add(models.CheckResult{
		PageName: "Contact Us", Route: "/contact-us", Kind: models.CheckForm, Outcome: models.OutcomeFail,
		FailureKind: models.FailureAssertion, Severity: models.SeverityNormal,
		Expectation: "visible form with a submit control", Detail: "no submit control", Duration: 45 * time.Millisecond,
	})
	s.Add(models.CheckResult{
		PageName: "Home", Route: "/", Kind: models.CheckImages, Outcome: models.OutcomeSkipped,
		Detail: "no eligible images",
	})
	s.Add(models.CheckResult{
		PageName: "Content Sync", Route: "/", Kind: models.CheckSyncRevert, Outcome: models.OutcomeFail,
		FailureKind: models.FailureTransactionIntegrity, Severity: models.SeverityHigh,
		Expectation: `title of 1 restored to "Original Heading"`, Detail: "connection reset", Duration: 2 * time.Second,
	})
	return s
}

func TestRenderMarkdown_Golden(t *testing.T) {
	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "summary.md", RenderMarkdown(sampleSummary()))
}

func TestRenderMarkdown_AllPassed(t *testing.T) {
	s := &models.RunSummary{RunID: "ok", StartedAt: time.Now(), FinishedAt: time.Now()}
	s.Add(models.CheckResult{PageName: "Site", Kind: models.CheckSiteFeature, Name: "header", Outcome: models.OutcomePass, Detail: "a | b"})

	out := string(RenderMarkdown(s))
	assert.Contains(t, out, "**Result:** PASS (1 passed, 0 failed, 0 skipped)")
	assert.NotContains(t, out, "## Failures")
	assert.NotContains(t, out, "Warning")
	assert.Contains(t, out, `| site_feature / header | pass | a \| b |`)
}

func TestRenderHTML(t *testing.T) {
	out, err := RenderHTML(sampleSummary())
	require.NoError(t, err)

	html := string(out)
	assert.Contains(t, html, "<title>Site Verification run-1</title>")
	assert.Contains(t, html, "<h1>Site Verification Report</h1>")
	assert.Contains(t, html, "<table>")
	assert.Contains(t, html, "<blockquote>")
}

func TestWriter_WritesRunDirectory(t *testing.T) {
	dir := t.TempDir()
	w := NewWriter(common.ReportConfig{
		ResultsDir:           dir,
		Formats:              []string{"json", "markdown", "html"},
		ScreenshotsOnFailure: true,
	}, arbor.NewLogger())

	summary := sampleSummary()
	run, err := w.Begin(summary.StartedAt)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "run-20260102-030405"), run.Dir())
	assert.True(t, run.ScreenshotsEnabled())

	path, err := run.SaveScreenshot("Contact Us/form", []byte{0x89, 'P', 'N', 'G'})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(run.Dir(), ScreenshotsDir, "contact-us-form.png"), path)

	require.NoError(t, run.Finish(summary))

	for _, name := range []string{JSONFile, MarkdownFile, HTMLFile} {
		assert.FileExists(t, filepath.Join(run.Dir(), name))
	}

	data, err := os.ReadFile(filepath.Join(run.Dir(), JSONFile))
	require.NoError(t, err)
	var decoded models.RunSummary
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, 2, decoded.Failed)
	assert.Len(t, decoded.Results, 4)
}

func TestWriter_UnknownFormat(t *testing.T) {
	w := NewWriter(common.ReportConfig{ResultsDir: t.TempDir(), Formats: []string{"pdf"}}, arbor.NewLogger())
	run, err := w.Begin(time.Now())
	require.NoError(t, err)
	assert.ErrorContains(t, run.Finish(sampleSummary()), "unknown report format")
}

func TestCollectorAndMulti(t *testing.T) {
	a, b := NewCollector(), NewCollector()
	reporter := Multi{a, b, NewLogReporter(arbor.NewLogger())}

	for _, r := range sampleSummary().Results {
		reporter.Report(r)
	}
	assert.Len(t, a.Results(), 4)
	assert.Equal(t, a.Results(), b.Results())
}

func TestTestingReporter_PassesDoNotFail(t *testing.T) {
	r := NewTestingReporter(t)
	r.Report(models.CheckResult{PageName: "Home", Kind: models.CheckLoad, Outcome: models.OutcomePass})
	r.Report(models.CheckResult{PageName: "Home", Kind: models.CheckImages, Outcome: models.OutcomeSkipped})
}
