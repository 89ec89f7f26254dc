package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/siteverify/internal/common"
	"github.com/ternarybob/siteverify/internal/models"
)

// Artifact file names inside a run directory
const (
	JSONFile       = "results.json"
	MarkdownFile   = "summary.md"
	HTMLFile       = "summary.html"
	ScreenshotsDir = "screenshots"
)

// Writer creates per-run artifact directories under the results directory
type Writer struct {
	resultsDir  string
	formats     []string
	screenshots bool
	logger      arbor.ILogger
}

// NewWriter creates a Writer from report configuration
func NewWriter(config common.ReportConfig, logger arbor.ILogger) *Writer {
	return &Writer{
		resultsDir:  config.ResultsDir,
		formats:     config.Formats,
		screenshots: config.ScreenshotsOnFailure,
		logger:      logger,
	}
}

// Run is the artifact directory of one suite run
type Run struct {
	dir    string
	writer *Writer
}

// Begin creates run-YYYYMMDD-HHMMSS under the results directory
func (w *Writer) Begin(startedAt time.Time) (*Run, error) {
	dir := filepath.Join(w.resultsDir, "run-"+startedAt.Format("20060102-150405"))
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create run directory: %w", err)
	}
	return &Run{dir: dir, writer: w}, nil
}

// Dir returns the run directory
func (r *Run) Dir() string {
	return r.dir
}

// ScreenshotsEnabled reports whether failures should be captured
func (r *Run) ScreenshotsEnabled() bool {
	return r.writer.screenshots
}

var unsafeName = regexp.MustCompile(`[^a-z0-9]+`)

// SaveScreenshot stores a PNG named after label and returns its path
func (r *Run) SaveScreenshot(label string, png []byte) (string, error) {
	dir := filepath.Join(r.dir, ScreenshotsDir)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create screenshots directory: %w", err)
	}

	name := strings.Trim(unsafeName.ReplaceAllString(strings.ToLower(label), "-"), "-")
	if name == "" {
		name = "page"
	}
	path := filepath.Join(dir, name+".png")
	if err := os.WriteFile(path, png, 0644); err != nil {
		return "", fmt.Errorf("failed to write screenshot: %w", err)
	}
	return path, nil
}

// Finish writes the configured report formats for summary
func (r *Run) Finish(summary *models.RunSummary) error {
	w := r.writer
	formats := w.formats
	if len(formats) == 0 {
		formats = []string{"json"}
	}

	for _, format := range formats {
		var (
			name string
			data []byte
			err  error
		)
		switch format {
		case "json":
			name = JSONFile
			data, err = json.MarshalIndent(summary, "", "  ")
		case "markdown":
			name = MarkdownFile
			data = RenderMarkdown(summary)
		case "html":
			name = HTMLFile
			data, err = RenderHTML(summary)
		default:
			return fmt.Errorf("unknown report format: %s", format)
		}
		if err != nil {
			return fmt.Errorf("failed to render %s report: %w", format, err)
		}

		path := filepath.Join(r.dir, name)
		if err := os.WriteFile(path, data, 0644); err != nil {
			return fmt.Errorf("failed to write %s: %w", path, err)
		}
		w.logger.Debug().Str("path", path).Msg("Report written")
	}

	w.logger.Info().
		Str("dir", r.dir).
		Int("passed", summary.Passed).
		Int("failed", summary.Failed).
		Int("skipped", summary.Skipped).
		Msg("Run artifacts written")
	return nil
}
