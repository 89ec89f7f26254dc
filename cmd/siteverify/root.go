package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/siteverify/internal/browser"
	"github.com/ternarybob/siteverify/internal/common"
	"github.com/ternarybob/siteverify/internal/contentsync"
	"github.com/ternarybob/siteverify/internal/interfaces"
	"github.com/ternarybob/siteverify/internal/models"
	"github.com/ternarybob/siteverify/internal/pages"
	"github.com/ternarybob/siteverify/internal/report"
	"github.com/ternarybob/siteverify/internal/runner"
)

// errChecksFailed signals a completed run with failed checks
var errChecksFailed = errors.New("one or more checks failed")

// rootOptions holds the persistent flags shared by every command
type rootOptions struct {
	configFiles []string
	baseURL     string
	driver      string
	resultsDir  string
	logLevel    string
	headful     bool
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "siteverify",
		Short: "Declarative site verification and content sync checks",
		Long: `SiteVerify checks a deployed website against a catalog of page
descriptors, walks navigation flows, and verifies that content written
through the CMS API appears on the frontend before reverting it.`,
		SilenceUsage: true,
	}

	flags := cmd.PersistentFlags()
	flags.StringArrayVarP(&opts.configFiles, "config", "c", nil, "configuration file (repeatable, later files override earlier ones)")
	flags.StringVar(&opts.baseURL, "base-url", "", "site base URL (overrides config)")
	flags.StringVar(&opts.driver, "driver", "", "browser driver: chromedp, playwright or static")
	flags.StringVar(&opts.resultsDir, "results-dir", "", "directory for run artifacts")
	flags.StringVar(&opts.logLevel, "log-level", "", "log level: trace, debug, info, warn, error")
	flags.BoolVar(&opts.headful, "headful", false, "show the browser window")

	cmd.AddCommand(newRunCommand(opts))
	cmd.AddCommand(newPagesCommand(opts))
	cmd.AddCommand(newSyncCommand(opts))
	cmd.AddCommand(newWatchCommand(opts))
	cmd.AddCommand(newVersionCommand())

	return cmd
}

// discoverConfig finds a config file when none was given
func discoverConfig() []string {
	for _, candidate := range []string{"siteverify.toml", filepath.Join("deployments", "local", "siteverify.toml")} {
		if _, err := os.Stat(candidate); err == nil {
			return []string{candidate}
		}
	}
	return nil
}

// loadConfig runs the startup sequence: defaults, files, env, flags, validation
func loadConfig(opts *rootOptions, mutate func(*common.Config)) (*common.Config, error) {
	files := opts.configFiles
	if len(files) == 0 {
		files = discoverConfig()
	}

	config, err := common.LoadFromFiles(files...)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration %v: %w", files, err)
	}

	common.ApplyFlagOverrides(config, common.FlagOverrides{
		BaseURL:    opts.baseURL,
		Driver:     opts.driver,
		ResultsDir: opts.resultsDir,
		Headful:    opts.headful,
		LogLevel:   opts.logLevel,
	})
	if mutate != nil {
		mutate(config)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// startup loads config, sets up logging and prints the banner
func startup(opts *rootOptions, mutate func(*common.Config)) (*common.Config, arbor.ILogger, error) {
	config, err := loadConfig(opts, mutate)
	if err != nil {
		return nil, nil, err
	}

	common.InstallCrashHandler(filepath.Join(config.Report.ResultsDir, "logs"))
	logger := common.SetupLogger(config)
	common.PrintBanner(config, logger)
	return config, logger, nil
}

// executeSuite builds the suite from config and runs the selected parts
func executeSuite(ctx context.Context, config *common.Config, logger arbor.ILogger, parts runner.RunOptions) (*models.RunSummary, error) {
	registry, err := pages.NewRegistryFromConfig(config.Catalog.Path)
	if err != nil {
		return nil, err
	}

	driver, err := browser.NewDriver(ctx, config.Browser, logger)
	if err != nil {
		return nil, err
	}
	defer driver.Close()

	var store interfaces.ContentStore
	if config.CMS.Enabled {
		store = contentsync.NewStoreFromConfig(config, logger)
	}

	suite := runner.NewSuite(config, registry, driver, store,
		report.NewLogReporter(logger), report.NewWriter(config.Report, logger), logger)
	return suite.Run(ctx, parts)
}

// finish reports the summary outcome and maps failures to errChecksFailed
func finish(summary *models.RunSummary, logger arbor.ILogger) error {
	for _, r := range summary.HighSeverityFailures() {
		logger.Error().
			Str("check", r.Label()).
			Str("detail", r.Detail).
			Msg("Content revert failed, CMS content must be restored manually")
	}

	fmt.Printf("%d passed, %d failed, %d skipped in %s\n",
		summary.Passed, summary.Failed, summary.Skipped, summary.Duration().Round(time.Millisecond))
	if path := common.GetLogFilePath(logger); path != "" {
		fmt.Printf("log: %s\n", path)
	}

	if !summary.OK() {
		return errChecksFailed
	}
	return nil
}
