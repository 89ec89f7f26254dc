// Package runner composes page batteries, navigation flows and the content
// sync transaction into a single suite run.
package runner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/ternarybob/arbor"
	"golang.org/x/sync/errgroup"

	"github.com/ternarybob/siteverify/internal/browser"
	"github.com/ternarybob/siteverify/internal/common"
	"github.com/ternarybob/siteverify/internal/contentsync"
	"github.com/ternarybob/siteverify/internal/flow"
	"github.com/ternarybob/siteverify/internal/interfaces"
	"github.com/ternarybob/siteverify/internal/locator"
	"github.com/ternarybob/siteverify/internal/models"
	"github.com/ternarybob/siteverify/internal/pages"
	"github.com/ternarybob/siteverify/internal/report"
	"github.com/ternarybob/siteverify/internal/verify"
)

// RunOptions selects the parts of the suite to execute
type RunOptions struct {
	Pages bool
	Flows bool
	Sync  bool
	Only  []string // Routes to verify; empty means every catalog page
}

// AllParts runs every part the configuration enables
var AllParts = RunOptions{Pages: true, Flows: true, Sync: true}

// Suite runs verification against one site with one driver
type Suite struct {
	config   *common.Config
	registry *pages.Registry
	driver   interfaces.BrowserDriver
	store    interfaces.ContentStore
	reporter interfaces.Reporter
	writer   *report.Writer
	logger   arbor.ILogger

	expander *verify.Expander
	flows    *flow.Runner
}

// NewSuite wires a suite. store may be nil when content sync is disabled and
// writer may be nil to skip run artifacts.
func NewSuite(config *common.Config, registry *pages.Registry, driver interfaces.BrowserDriver, store interfaces.ContentStore, reporter interfaces.Reporter, writer *report.Writer, logger arbor.ILogger) *Suite {
	resolver := locator.NewResolver(logger)

	userAgent := config.Browser.UserAgent
	if userAgent == "" {
		userAgent = browser.DefaultUserAgent
	}
	images := verify.NewImageChecker(logger,
		verify.WithImageRateLimit(config.Site.ImageRateLimit),
		verify.WithImageUserAgent(userAgent),
	)

	return &Suite{
		config:   config,
		registry: registry,
		driver:   driver,
		store:    store,
		reporter: reporter,
		writer:   writer,
		logger:   logger,
		expander: verify.NewExpander(verify.OptionsFromConfig(config), resolver, images, logger),
		flows:    flow.NewRunner(flow.OptionsFromConfig(config), resolver, logger),
	}
}

// collector stamps, records and reports results as they arrive
type collector struct {
	mu       sync.Mutex
	summary  *models.RunSummary
	reporter interfaces.Reporter
}

// record adds results that were already stamped and reported
func (c *collector) record(results ...models.CheckResult) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, r := range results {
		c.summary.Add(r)
	}
}

func (c *collector) emit(results ...models.CheckResult) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, r := range results {
		r.RunID = c.summary.RunID
		c.summary.Add(r)
		if c.reporter != nil {
			c.reporter.Report(r)
		}
	}
}

// Run executes the selected parts and returns the summary. An error is
// returned only when the run could not start; check failures are in the summary.
func (s *Suite) Run(ctx context.Context, opts RunOptions) (*models.RunSummary, error) {
	var specs []models.PageSpec
	if opts.Pages {
		selected, err := s.registry.Select(opts.Only)
		if err != nil {
			return nil, err
		}
		specs = selected
	}

	summary := &models.RunSummary{
		RunID:     uuid.New().String(),
		BaseURL:   s.config.Site.BaseURL,
		Driver:    s.driver.Name(),
		StartedAt: time.Now(),
	}
	c := &collector{summary: summary, reporter: s.reporter}

	var artifacts *report.Run
	if s.writer != nil {
		run, err := s.writer.Begin(summary.StartedAt)
		if err != nil {
			return nil, err
		}
		artifacts = run
	}

	s.logger.Info().
		Str("run_id", summary.RunID).
		Str("base_url", summary.BaseURL).
		Str("driver", summary.Driver).
		Int("pages", len(specs)).
		Msg("Suite run starting")

	if len(specs) > 0 {
		s.runPages(ctx, specs, c, artifacts)
	}
	if opts.Flows && s.config.Flows.Enabled {
		s.runFlows(ctx, c, artifacts)
	}
	if opts.Sync && s.config.CMS.Enabled {
		s.runSync(ctx, c, artifacts)
	}

	summary.FinishedAt = time.Now()

	if artifacts != nil {
		if err := artifacts.Finish(summary); err != nil {
			s.logger.Error().Err(err).Msg("Failed to write run artifacts")
		}
	}

	s.logger.Info().
		Str("run_id", summary.RunID).
		Int("passed", summary.Passed).
		Int("failed", summary.Failed).
		Int("skipped", summary.Skipped).
		Dur("duration", summary.Duration()).
		Msg("Suite run complete")

	return summary, nil
}

// runPages verifies pages in parallel, each on its own page instance.
// Results are recorded in catalog order once every battery has finished.
func (s *Suite) runPages(ctx context.Context, specs []models.PageSpec, c *collector, artifacts *report.Run) {
	batteries := make([][]models.CheckResult, len(specs))

	limit := s.config.Browser.Parallelism
	if limit < 1 {
		limit = 1
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)

	runID := c.summary.RunID
	for i, spec := range specs {
		g.Go(func() error {
			results := s.verifyPage(gctx, spec, artifacts)
			for j := range results {
				results[j].RunID = runID
				if s.reporter != nil {
					s.reporter.Report(results[j])
				}
			}
			batteries[i] = results
			return nil
		})
	}
	_ = g.Wait()

	for _, battery := range batteries {
		c.record(battery...)
	}
}

func (s *Suite) verifyPage(ctx context.Context, spec models.PageSpec, artifacts *report.Run) []models.CheckResult {
	page, err := s.driver.NewPage(ctx)
	if err != nil {
		return []models.CheckResult{models.Fail(spec.Name, models.CheckLoad, models.FailureTransport,
			"page opens", fmt.Sprintf("failed to open page: %v", err)).WithRoute(spec.Route)}
	}
	defer page.Close()

	results := s.expander.Verify(ctx, spec, page)
	for i := range results {
		results[i] = results[i].WithRoute(spec.Route)
	}

	if anyFailed(results) {
		s.screenshot(ctx, page, spec.Name, artifacts)
	}
	return results
}

func (s *Suite) runFlows(ctx context.Context, c *collector, artifacts *report.Run) {
	page, err := s.driver.NewPage(ctx)
	if err != nil {
		c.emit(models.Fail(flow.FlowPageName, models.CheckFlowStep, models.FailureTransport,
			"page opens", fmt.Sprintf("failed to open page: %v", err)))
		return
	}
	defer page.Close()
	page = browser.WithTimeouts(page, s.config.Site.NavigationTimeoutDuration(), s.config.Site.ActionTimeoutDuration())

	steps := flow.StepsFromConfig(s.config)
	flowResults := s.flows.RunFlow(ctx, page, steps)
	c.emit(flowResults...)
	if anyFailed(flowResults) {
		s.screenshot(ctx, page, "navigation-flow", artifacts)
	}

	if len(steps) >= 2 {
		c.emit(s.flows.BackForward(ctx, page, steps[0].Route, steps[1].Route)...)
	}

	c.emit(s.flows.MobileViewport(ctx, page, "/", s.config.Flows.MobileWidth, s.config.Flows.MobileHeight)...)
	if err := page.SetViewport(ctx, s.config.Browser.Width, s.config.Browser.Height); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to restore desktop viewport")
	}

	if !s.config.Flows.SiteWide {
		return
	}
	siteResults := s.flows.SiteWide(ctx, page)
	c.emit(siteResults...)
	if anyFailed(siteResults) {
		s.screenshot(ctx, page, "site-wide", artifacts)
	}
}

func (s *Suite) runSync(ctx context.Context, c *collector, artifacts *report.Run) {
	if s.store == nil {
		c.emit(contentsync.SetupFailure(errors.New("content sync enabled but no CMS client configured")))
		return
	}

	page, err := s.driver.NewPage(ctx)
	if err != nil {
		c.emit(contentsync.SetupFailure(fmt.Errorf("failed to open page: %w", err)))
		return
	}
	defer page.Close()

	syncer := contentsync.NewSyncer(contentsync.OptionsFromConfig(s.config), s.store, s.logger)
	result, err := syncer.Run(ctx, page)
	if err != nil {
		c.emit(contentsync.SetupFailure(err))
		return
	}
	c.emit(result.Results...)
	if anyFailed(result.Results) {
		s.screenshot(ctx, page, "content-sync", artifacts)
	}
}

// screenshot captures the page for a failed battery when enabled
func (s *Suite) screenshot(ctx context.Context, page interfaces.BrowserPage, label string, artifacts *report.Run) {
	if artifacts == nil || !artifacts.ScreenshotsEnabled() {
		return
	}

	shotCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	png, err := page.Screenshot(shotCtx)
	if err != nil {
		if errors.Is(err, browser.ErrUnsupported) {
			s.logger.Debug().Str("label", label).Msg("Driver cannot capture screenshots")
			return
		}
		s.logger.Warn().Err(err).Str("label", label).Msg("Failed to capture screenshot")
		return
	}

	path, err := artifacts.SaveScreenshot(label, png)
	if err != nil {
		s.logger.Warn().Err(err).Str("label", label).Msg("Failed to save screenshot")
		return
	}
	s.logger.Info().Str("path", path).Msg("Failure screenshot saved")
}

func anyFailed(results []models.CheckResult) bool {
	for _, r := range results {
		if r.Failed() {
			return true
		}
	}
	return false
}
