package contentsync

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/siteverify/internal/common"
	"github.com/ternarybob/siteverify/internal/interfaces"
	"github.com/ternarybob/siteverify/internal/models"
)

// ErrTransactionInFlight is returned when a second transaction targets content already being changed
var ErrTransactionInFlight = errors.New("a content sync transaction is already running for this entry")

// Options configures a Syncer
type Options struct {
	BaseURL            string
	TargetID           string
	Field              string
	PriorValue         string
	CapturePrior       bool
	TitlePrefix        string
	ObserveRoute       string
	ObserveSelector    string
	PropagationTimeout time.Duration
	PollInterval       time.Duration
	RevertTimeout      time.Duration
	NavigationTimeout  time.Duration
}

// OptionsFromConfig derives sync options from the application config
func OptionsFromConfig(config *common.Config) Options {
	return Options{
		BaseURL:            config.Site.BaseURL,
		TargetID:           config.CMS.TargetID,
		Field:              config.CMS.Field,
		PriorValue:         config.CMS.PriorValue,
		CapturePrior:       config.CMS.CapturePrior,
		TitlePrefix:        config.CMS.TitlePrefix,
		ObserveRoute:       config.CMS.ObserveRoute,
		ObserveSelector:    config.CMS.ObserveSelector,
		PropagationTimeout: config.CMS.PropagationTimeoutDuration(),
		PollInterval:       config.CMS.PollIntervalDuration(),
		RevertTimeout:      config.CMS.RevertTimeoutDuration(),
		NavigationTimeout:  config.Site.NavigationTimeoutDuration(),
	}
}

// NewStoreFromConfig creates the CMS client described by the config
func NewStoreFromConfig(config *common.Config, logger arbor.ILogger) *StrapiClient {
	return NewStrapiClient(config.CMS.BaseURL, config.CMS.APIToken, logger)
}

// Syncer runs content sync transactions against a store and a frontend page.
// Only one transaction per target entry runs at a time.
type Syncer struct {
	opts   Options
	store  interfaces.ContentStore
	logger arbor.ILogger
	now    func() time.Time

	mu     sync.Mutex
	active map[string]bool
}

// NewSyncer creates a Syncer
func NewSyncer(opts Options, store interfaces.ContentStore, logger arbor.ILogger) *Syncer {
	if opts.Field == "" {
		opts.Field = "title"
	}
	if opts.TitlePrefix == "" {
		opts.TitlePrefix = "Automated Test Title"
	}
	return &Syncer{opts: opts, store: store, logger: logger, now: time.Now, active: make(map[string]bool)}
}

func (s *Syncer) acquire(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active[id] {
		return false
	}
	s.active[id] = true
	return true
}

func (s *Syncer) release(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.active, id)
}

// Run performs one transaction, observing on page. Errors are returned only
// when the transaction could not start; every started transaction reports
// through its results.
func (s *Syncer) Run(ctx context.Context, page interfaces.BrowserPage) (*TxResult, error) {
	id := s.opts.TargetID
	if !s.acquire(id) {
		return nil, ErrTransactionInFlight
	}
	defer s.release(id)

	prior := s.opts.PriorValue
	if s.opts.CapturePrior {
		captured, err := s.store.GetField(ctx, id, s.opts.Field)
		if err != nil {
			return nil, fmt.Errorf("failed to capture prior %s of %s: %w", s.opts.Field, id, err)
		}
		prior = captured
	}
	if prior == "" {
		return nil, ErrMissingPriorValue
	}

	tx := NewTransaction(id, s.opts.Field, prior, NewValue(s.opts.TitlePrefix, s.now()), s.opts.RevertTimeout, s.logger)
	tx.Route = s.opts.ObserveRoute

	observer := NewObserver(page, common.JoinURL(s.opts.BaseURL, s.opts.ObserveRoute), s.opts.ObserveSelector,
		s.opts.PropagationTimeout, s.opts.PollInterval, s.opts.NavigationTimeout, s.logger)

	s.logger.Info().
		Str("target_id", id).
		Str("field", s.opts.Field).
		Str("prior", prior).
		Str("value", tx.NewValue).
		Msg("Starting content sync transaction")

	return tx.Run(ctx, Actions{
		Mutate: func(ctx context.Context, value string) error {
			return s.store.SetField(ctx, id, s.opts.Field, value)
		},
		Observe: observer.Observe,
		Revert: func(ctx context.Context, prior string) error {
			return s.store.SetField(ctx, id, s.opts.Field, prior)
		},
	})
}

// SetupFailure converts an error from Run into a reportable result
func SetupFailure(err error) models.CheckResult {
	return models.Fail(PageName, models.CheckSyncMutate, classify(err), "content sync transaction starts", err.Error())
}
