package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/ternarybob/siteverify/internal/common"
	"github.com/ternarybob/siteverify/internal/pages"
	"github.com/ternarybob/siteverify/internal/runner"
)

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func newRunCommand(root *rootOptions) *cobra.Command {
	var (
		only    []string
		noFlows bool
		noSync  bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Verify every catalog page, then run flows and content sync",
		Example: `  siteverify run
  siteverify run --only /,/contact-us --driver static
  siteverify run -c siteverify.toml -c local.toml --headful`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			config, logger, err := startup(root, nil)
			if err != nil {
				return err
			}

			ctx, cancel := signalContext()
			defer cancel()

			parts := runner.RunOptions{Pages: true, Flows: !noFlows, Sync: !noSync, Only: only}
			if len(only) > 0 {
				// A page selection narrows the run to those pages
				parts.Flows, parts.Sync = false, false
			}

			summary, err := executeSuite(ctx, config, logger, parts)
			if err != nil {
				return err
			}
			return finish(summary, logger)
		},
	}

	cmd.Flags().StringSliceVar(&only, "only", nil, "routes to verify (comma separated or repeated)")
	cmd.Flags().BoolVar(&noFlows, "no-flows", false, "skip navigation flows and site-wide checks")
	cmd.Flags().BoolVar(&noSync, "no-sync", false, "skip the content sync transaction")
	return cmd
}

func newPagesCommand(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "pages",
		Short: "List the page catalog",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			config, err := loadConfig(root, nil)
			if err != nil {
				return err
			}
			registry, err := pages.NewRegistryFromConfig(config.Catalog.Path)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tROUTE\tCAPABILITIES\tEXPECTED CONTENT")
			for _, spec := range registry.All() {
				var caps []string
				if spec.Capabilities.HasNavigation {
					caps = append(caps, "navigation")
				}
				if spec.Capabilities.HasForm {
					caps = append(caps, "form")
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", spec.Name, spec.Route, strings.Join(caps, ","), spec.ExpectedContentList())
			}
			return w.Flush()
		},
	}
}

func newSyncCommand(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Run only the content sync transaction (write, observe, revert)",
		Long: `Writes a unique title through the CMS API, waits for the frontend to
show it, then restores the prior value. The revert always runs once the
write succeeded. Requires cms.base_url and cms.api_token (or STRAPI_URL
and STRAPI_TOKEN).`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			config, logger, err := startup(root, func(c *common.Config) {
				c.CMS.Enabled = true
			})
			if err != nil {
				return err
			}

			ctx, cancel := signalContext()
			defer cancel()

			summary, err := executeSuite(ctx, config, logger, runner.RunOptions{Sync: true})
			if err != nil {
				return err
			}
			return finish(summary, logger)
		},
	}
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), common.GetFullVersion())
		},
	}
}
