package contentsync

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/siteverify/internal/browser"
	"github.com/ternarybob/siteverify/internal/interfaces"
	"github.com/ternarybob/siteverify/internal/models"
	"github.com/ternarybob/siteverify/internal/testsite"
)

func newTestPage(t *testing.T) interfaces.BrowserPage {
	t.Helper()
	page, err := browser.NewStaticDriver(nil, "", arbor.NewLogger()).NewPage(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() { _ = page.Close() })
	return page
}

func testOptions(baseURL string) Options {
	return Options{
		BaseURL:            baseURL,
		TargetID:           "1",
		Field:              "title",
		PriorValue:         testsite.OriginalHeading,
		TitlePrefix:        "Automated Test Title",
		ObserveRoute:       "/",
		ObserveSelector:    "h1",
		PropagationTimeout: 2 * time.Second,
		PollInterval:       50 * time.Millisecond,
		RevertTimeout:      2 * time.Second,
		NavigationTimeout:  time.Second,
	}
}

func TestSyncer_ObservesDelayedPropagationThenReverts(t *testing.T) {
	site := testsite.New(t, testsite.Options{PropagationDelay: 200 * time.Millisecond})
	logger := arbor.NewLogger()
	syncer := NewSyncer(testOptions(site.URL), newTestClient(site.URL, testsite.Token), logger)

	result, err := syncer.Run(context.Background(), newTestPage(t))
	require.NoError(t, err)

	require.Len(t, result.Results, 3)
	for _, r := range result.Results {
		assert.True(t, r.Passed(), "%s: %s", r.Kind, r.Detail)
		assert.Equal(t, "/", r.Route)
	}
	assert.Equal(t, models.TxReverted, result.State)

	writes := site.Writes()
	require.Len(t, writes, 2)
	assert.Regexp(t, `^Automated Test Title \d{13}$`, writes[0])
	assert.Equal(t, testsite.OriginalHeading, writes[1])
	assert.Equal(t, testsite.OriginalHeading, site.Heading())
}

func TestSyncer_ObserveTimeoutStillReverts(t *testing.T) {
	site := testsite.New(t, testsite.Options{PropagationDelay: time.Minute})
	opts := testOptions(site.URL)
	opts.PropagationTimeout = 200 * time.Millisecond

	syncer := NewSyncer(opts, newTestClient(site.URL, testsite.Token), arbor.NewLogger())
	result, err := syncer.Run(context.Background(), newTestPage(t))
	require.NoError(t, err)

	require.Len(t, result.Results, 3)
	observe := result.Results[1]
	assert.True(t, observe.Failed())
	assert.Equal(t, models.FailureTimeout, observe.FailureKind)
	assert.Contains(t, observe.Detail, testsite.OriginalHeading)

	assert.True(t, result.Results[2].Passed())
	assert.Equal(t, testsite.OriginalHeading, site.Heading())
}

func TestSyncer_RevertRejected(t *testing.T) {
	site := testsite.New(t, testsite.Options{RejectWritesAfter: 1})
	syncer := NewSyncer(testOptions(site.URL), newTestClient(site.URL, testsite.Token), arbor.NewLogger())

	result, err := syncer.Run(context.Background(), newTestPage(t))
	require.NoError(t, err)

	assert.Equal(t, models.TxRevertFailed, result.State)
	revert := result.Results[len(result.Results)-1]
	assert.Equal(t, models.CheckSyncRevert, revert.Kind)
	assert.Equal(t, models.FailureTransactionIntegrity, revert.FailureKind)
	assert.Equal(t, models.SeverityHigh, revert.Severity)
}

func TestSyncer_CapturePrior(t *testing.T) {
	site := testsite.New(t, testsite.Options{})
	opts := testOptions(site.URL)
	opts.PriorValue = ""
	opts.CapturePrior = true

	syncer := NewSyncer(opts, newTestClient(site.URL, testsite.Token), arbor.NewLogger())
	result, err := syncer.Run(context.Background(), newTestPage(t))
	require.NoError(t, err)
	assert.Equal(t, models.TxReverted, result.State)
	assert.Equal(t, testsite.OriginalHeading, site.Heading())
}

func TestSyncer_MissingPriorValue(t *testing.T) {
	site := testsite.New(t, testsite.Options{})
	opts := testOptions(site.URL)
	opts.PriorValue = ""

	syncer := NewSyncer(opts, newTestClient(site.URL, testsite.Token), arbor.NewLogger())
	_, err := syncer.Run(context.Background(), newTestPage(t))
	assert.ErrorIs(t, err, ErrMissingPriorValue)
	assert.Empty(t, site.Writes())

	failure := SetupFailure(err)
	assert.True(t, failure.Failed())
	assert.Equal(t, models.CheckSyncMutate, failure.Kind)
}

func TestSyncer_OneTransactionPerEntry(t *testing.T) {
	syncer := NewSyncer(Options{TargetID: "1"}, nil, arbor.NewLogger())
	require.True(t, syncer.acquire("1"))

	_, err := syncer.Run(context.Background(), nil)
	assert.ErrorIs(t, err, ErrTransactionInFlight)

	syncer.release("1")
	assert.True(t, syncer.acquire("1"))
}
