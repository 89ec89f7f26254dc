package models

import "time"

// RunSummary aggregates every result of one suite run
type RunSummary struct {
	RunID      string        `json:"run_id"`
	BaseURL    string        `json:"base_url"`
	Driver     string        `json:"driver"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
	Results    []CheckResult `json:"results"`
	Passed     int           `json:"passed"`
	Failed     int           `json:"failed"`
	Skipped    int           `json:"skipped"`
}

// Add appends a result and updates the counters
func (s *RunSummary) Add(r CheckResult) {
	s.Results = append(s.Results, r)
	switch r.Outcome {
	case OutcomePass:
		s.Passed++
	case OutcomeFail:
		s.Failed++
	case OutcomeSkipped:
		s.Skipped++
	}
}

// Duration returns the wall-clock time of the run
func (s *RunSummary) Duration() time.Duration {
	if s.FinishedAt.IsZero() {
		return 0
	}
	return s.FinishedAt.Sub(s.StartedAt)
}

// OK returns true if no check failed
func (s *RunSummary) OK() bool {
	return s.Failed == 0
}

// HighSeverityFailures returns failures that leave external state suspect
func (s *RunSummary) HighSeverityFailures() []CheckResult {
	var out []CheckResult
	for _, r := range s.Results {
		if r.Failed() && r.Severity == SeverityHigh {
			out = append(out, r)
		}
	}
	return out
}
