package models

import (
	"fmt"
	"time"
)

// CheckKind names one check in a verification battery
type CheckKind string

const (
	CheckLoad       CheckKind = "load"
	CheckLandmark   CheckKind = "landmark"
	CheckContent    CheckKind = "content"
	CheckNavigation CheckKind = "navigation"
	CheckImages     CheckKind = "images"
	CheckForm       CheckKind = "form"
	CheckTitle      CheckKind = "title"
	CheckLayout     CheckKind = "layout"
	CheckHeading    CheckKind = "heading"
	CheckItems      CheckKind = "items"

	// Navigation flows
	CheckFlowStep    CheckKind = "flow_step"
	CheckHistory     CheckKind = "history"
	CheckViewport    CheckKind = "viewport"
	CheckMobileMenu  CheckKind = "mobile_menu"
	CheckSiteFeature CheckKind = "site_feature"

	// Content sync transaction
	CheckSyncMutate  CheckKind = "sync_mutate"
	CheckSyncObserve CheckKind = "sync_observe"
	CheckSyncRevert  CheckKind = "sync_revert"
)

// Outcome is the verdict of one check
type Outcome string

const (
	OutcomePass    Outcome = "pass"
	OutcomeFail    Outcome = "fail"
	OutcomeSkipped Outcome = "skipped"
)

// FailureKind classifies why a check failed
type FailureKind string

const (
	FailureNone                 FailureKind = ""
	FailureAssertion            FailureKind = "AssertionFailure"
	FailureTimeout              FailureKind = "Timeout"
	FailureTransport            FailureKind = "TransportFailure"
	FailureTransactionIntegrity FailureKind = "TransactionIntegrityFailure"
)

// Severity of a failed check. Only TransactionIntegrityFailure is high.
type Severity string

const (
	SeverityNormal Severity = "normal"
	SeverityHigh   Severity = "high"
)

// CheckResult is the record emitted for one (page, check) pair.
// Results are values; once emitted they are not modified.
type CheckResult struct {
	RunID       string        `json:"run_id,omitempty"`
	PageName    string        `json:"page_name"`
	Route       string        `json:"route,omitempty"`
	Kind        CheckKind     `json:"kind"`
	Name        string        `json:"name,omitempty"` // Sub-check label for flows and site features
	Outcome     Outcome       `json:"outcome"`
	Detail      string        `json:"detail,omitempty"`
	Expectation string        `json:"expectation,omitempty"`
	FailureKind FailureKind   `json:"failure_kind,omitempty"`
	Severity    Severity      `json:"severity,omitempty"`
	Count       int           `json:"count,omitempty"`
	Duration    time.Duration `json:"duration"`
	Timestamp   time.Time     `json:"timestamp"`
}

// Passed returns true if the check passed
func (r CheckResult) Passed() bool { return r.Outcome == OutcomePass }

// Failed returns true if the check failed
func (r CheckResult) Failed() bool { return r.Outcome == OutcomeFail }

// Label returns "Page/kind" or "Page/kind/name" for logs and reports
func (r CheckResult) Label() string {
	if r.Name != "" {
		return fmt.Sprintf("%s/%s/%s", r.PageName, r.Kind, r.Name)
	}
	return fmt.Sprintf("%s/%s", r.PageName, r.Kind)
}

// Pass builds a passing result
func Pass(page string, kind CheckKind, detail string) CheckResult {
	return CheckResult{
		PageName:  page,
		Kind:      kind,
		Outcome:   OutcomePass,
		Detail:    detail,
		Timestamp: time.Now(),
	}
}

// Fail builds a failing result
func Fail(page string, kind CheckKind, failure FailureKind, expectation, detail string) CheckResult {
	severity := SeverityNormal
	if failure == FailureTransactionIntegrity {
		severity = SeverityHigh
	}
	return CheckResult{
		PageName:    page,
		Kind:        kind,
		Outcome:     OutcomeFail,
		Detail:      detail,
		Expectation: expectation,
		FailureKind: failure,
		Severity:    severity,
		Timestamp:   time.Now(),
	}
}

// Skip builds a skipped result
func Skip(page string, kind CheckKind, detail string) CheckResult {
	return CheckResult{
		PageName:  page,
		Kind:      kind,
		Outcome:   OutcomeSkipped,
		Detail:    detail,
		Timestamp: time.Now(),
	}
}

// WithRoute returns a copy with Route set
func (r CheckResult) WithRoute(route string) CheckResult {
	r.Route = route
	return r
}

// WithName returns a copy with Name set
func (r CheckResult) WithName(name string) CheckResult {
	r.Name = name
	return r
}

// WithCount returns a copy with Count set
func (r CheckResult) WithCount(n int) CheckResult {
	r.Count = n
	return r
}

// WithDuration returns a copy with Duration set
func (r CheckResult) WithDuration(d time.Duration) CheckResult {
	r.Duration = d
	return r
}
