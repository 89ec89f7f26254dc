// Package site holds live tests against a deployed site. They run only when
// SITEVERIFY_BASE_URL is set, for example:
//
//	SITEVERIFY_BASE_URL=https://tdt.akvotest.org go test ./test/site -v
package site

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"testing"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/siteverify/internal/browser"
	"github.com/ternarybob/siteverify/internal/common"
	"github.com/ternarybob/siteverify/internal/interfaces"
)

var (
	config *common.Config
	driver interfaces.BrowserDriver
	logger arbor.ILogger
)

// TestMain checks the site is reachable and starts one browser for the package
func TestMain(m *testing.M) {
	mw := io.MultiWriter(os.Stderr)

	if os.Getenv("SITEVERIFY_BASE_URL") == "" {
		fmt.Fprintln(mw, "SITEVERIFY_BASE_URL not set, skipping live site tests")
		os.Exit(0)
	}

	var err error
	config, err = common.LoadFromFiles()
	if err != nil {
		fmt.Fprintf(mw, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	logger = arbor.NewLogger()

	if err := verifySiteReachable(config.Site.BaseURL); err != nil {
		fmt.Fprintf(mw, "site not reachable: %v\n", err)
		os.Exit(1)
	}
	fmt.Fprintf(mw, "Site reachable at %s, driver %s\n", config.Site.BaseURL, config.Browser.Driver)

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	driver, err = browser.NewDriver(ctx, config.Browser, logger)
	cancel()
	if err != nil {
		fmt.Fprintf(mw, "failed to start %s driver: %v\n", config.Browser.Driver, err)
		os.Exit(1)
	}

	var exitCode int
	func() {
		defer func() {
			if r := recover(); r != nil {
				fmt.Fprintf(mw, "PANIC during live tests: %v\n", r)
				exitCode = 1
			}
			_ = driver.Close()
		}()
		exitCode = m.Run()
	}()
	os.Exit(exitCode)
}

func verifySiteReachable(baseURL string) error {
	client := &http.Client{Timeout: 15 * time.Second}
	resp, err := client.Get(baseURL)
	if err != nil {
		return fmt.Errorf("%s: %w", baseURL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 500 {
		return fmt.Errorf("%s returned %d", baseURL, resp.StatusCode)
	}
	return nil
}

// newPage opens a page that is closed when the test ends
func newPage(t *testing.T) interfaces.BrowserPage {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	page, err := driver.NewPage(ctx)
	if err != nil {
		t.Fatalf("failed to open page: %v", err)
	}
	t.Cleanup(func() { _ = page.Close() })
	return page
}
