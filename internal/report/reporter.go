// Package report delivers check results to logs, tests and run artifacts.
package report

import (
	"sync"
	"testing"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/siteverify/internal/interfaces"
	"github.com/ternarybob/siteverify/internal/models"
)

// LogReporter writes one structured log line per result
type LogReporter struct {
	logger arbor.ILogger
}

var _ interfaces.Reporter = (*LogReporter)(nil)

// NewLogReporter creates a LogReporter
func NewLogReporter(logger arbor.ILogger) *LogReporter {
	return &LogReporter{logger: logger}
}

// Report logs the result. Failures log at warn, high severity failures at error.
func (r *LogReporter) Report(result models.CheckResult) {
	switch {
	case result.Failed() && result.Severity == models.SeverityHigh:
		r.logger.Error().
			Str("check", result.Label()).
			Str("route", result.Route).
			Str("failure", string(result.FailureKind)).
			Str("expected", result.Expectation).
			Str("detail", result.Detail).
			Msg("FAIL (high severity)")
	case result.Failed():
		r.logger.Warn().
			Str("check", result.Label()).
			Str("route", result.Route).
			Str("failure", string(result.FailureKind)).
			Str("expected", result.Expectation).
			Str("detail", result.Detail).
			Msg("FAIL")
	case result.Outcome == models.OutcomeSkipped:
		r.logger.Info().
			Str("check", result.Label()).
			Str("detail", result.Detail).
			Msg("SKIP")
	default:
		r.logger.Info().
			Str("check", result.Label()).
			Str("detail", result.Detail).
			Dur("duration", result.Duration).
			Msg("PASS")
	}
}

// Collector keeps every result in arrival order
type Collector struct {
	mu      sync.Mutex
	results []models.CheckResult
}

var _ interfaces.Reporter = (*Collector)(nil)

// NewCollector creates an empty Collector
func NewCollector() *Collector {
	return &Collector{}
}

func (c *Collector) Report(result models.CheckResult) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.results = append(c.results, result)
}

// Results returns a copy of the collected results
func (c *Collector) Results() []models.CheckResult {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]models.CheckResult(nil), c.results...)
}

// Multi fans each result out to several reporters
type Multi []interfaces.Reporter

func (m Multi) Report(result models.CheckResult) {
	for _, r := range m {
		r.Report(result)
	}
}

// TestingReporter turns failed checks into test errors
type TestingReporter struct {
	tb testing.TB
}

// NewTestingReporter creates a reporter bound to a test
func NewTestingReporter(tb testing.TB) *TestingReporter {
	return &TestingReporter{tb: tb}
}

func (r *TestingReporter) Report(result models.CheckResult) {
	r.tb.Helper()
	if result.Failed() {
		r.tb.Errorf("%s [%s] expected %s: %s", result.Label(), result.FailureKind, result.Expectation, result.Detail)
		return
	}
	r.tb.Logf("%s %s: %s", result.Label(), result.Outcome, result.Detail)
}
