package report

import (
	"fmt"
	"strings"
	"time"

	"github.com/ternarybob/siteverify/internal/models"
)

// RenderMarkdown renders a run summary as a Markdown report
func RenderMarkdown(s *models.RunSummary) []byte {
	var b strings.Builder

	verdict := "PASS"
	if !s.OK() {
		verdict = "FAIL"
	}

	b.WriteString("# Site Verification Report\n\n")
	fmt.Fprintf(&b, "- **Run:** `%s`\n", s.RunID)
	fmt.Fprintf(&b, "- **Site:** %s\n", s.BaseURL)
	fmt.Fprintf(&b, "- **Driver:** %s\n", s.Driver)
	fmt.Fprintf(&b, "- **Started:** %s\n", s.StartedAt.UTC().Format(time.RFC3339))
	fmt.Fprintf(&b, "- **Duration:** %s\n", s.Duration().Round(time.Millisecond))
	fmt.Fprintf(&b, "- **Result:** %s (%d passed, %d failed, %d skipped)\n", verdict, s.Passed, s.Failed, s.Skipped)

	if len(s.HighSeverityFailures()) > 0 {
		b.WriteString("\n> **Warning:** a content revert failed. CMS content must be restored manually.\n")
	}

	if s.Failed > 0 {
		b.WriteString("\n## Failures\n\n")
		b.WriteString("| Check | Route | Failure | Expected | Detail |\n")
		b.WriteString("| --- | --- | --- | --- | --- |\n")
		for _, r := range s.Results {
			if !r.Failed() {
				continue
			}
			failure := string(r.FailureKind)
			if r.Severity == models.SeverityHigh {
				failure += " (high)"
			}
			fmt.Fprintf(&b, "| %s | %s | %s | %s | %s |\n",
				cell(r.Label()), cell(r.Route), failure, cell(r.Expectation), cell(r.Detail))
		}
	}

	b.WriteString("\n## Results\n")
	for _, page := range pageOrder(s.Results) {
		fmt.Fprintf(&b, "\n### %s\n\n", page)
		b.WriteString("| Check | Outcome | Detail | Duration |\n")
		b.WriteString("| --- | --- | --- | --- |\n")
		for _, r := range s.Results {
			if r.PageName != page {
				continue
			}
			check := string(r.Kind)
			if r.Name != "" {
				check += " / " + r.Name
			}
			fmt.Fprintf(&b, "| %s | %s | %s | %s |\n",
				cell(check), outcomeLabel(r.Outcome), cell(r.Detail), r.Duration.Round(time.Millisecond))
		}
	}

	return []byte(b.String())
}

// pageOrder lists page names in order of first appearance
func pageOrder(results []models.CheckResult) []string {
	seen := make(map[string]bool)
	var pages []string
	for _, r := range results {
		if !seen[r.PageName] {
			seen[r.PageName] = true
			pages = append(pages, r.PageName)
		}
	}
	return pages
}

func outcomeLabel(o models.Outcome) string {
	if o == models.OutcomeFail {
		return "FAIL"
	}
	return string(o)
}

var cellReplacer = strings.NewReplacer("|", `\|`, "\r\n", " ", "\n", " ")

func cell(s string) string {
	s = strings.TrimSpace(cellReplacer.Replace(s))
	if s == "" {
		return "-"
	}
	return s
}
