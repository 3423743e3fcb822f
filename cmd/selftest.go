package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/paper-cli/pkg/unpaywall"
)

// selftestDOI is a DOI Unpaywall has a record for.
const selftestDOI = "10.1038/nature12373"

// errCheckSkipped marks a check that does not apply to this configuration.
var errCheckSkipped = errors.New("skipped")

// check is one independent selftest step.
type check struct {
	name string
	run  func(ctx context.Context) error
}

var selftestTimeout time.Duration

var selftestCmd = &cobra.Command{
	Use:   "selftest",
	Short: "Check configuration and connectivity to every external service",
	RunE: func(cmd *cobra.Command, _ []string) error {
		failed := runChecks(cmd.Context(), os.Stdout, selftestChecks(), selftestTimeout)
		if failed > 0 {
			return setupError(fmt.Errorf("%d check(s) failed", failed))
		}
		return nil
	},
}

func init() {
	selftestCmd.Flags().DurationVar(&selftestTimeout, "timeout", 30*time.Second, "per-check timeout")
	rootCmd.AddCommand(selftestCmd)
}

func selftestChecks() []check {
	return []check{
		{"configuration", func(context.Context) error {
			return cfg.Validate("selftest")
		}},
		{"notion database", func(ctx context.Context) error {
			if cfg.Notion.Token == "" || cfg.Notion.DatabaseID == "" {
				return eris.New("notion.token and notion.database_id are required")
			}
			return newGateway().CheckSchema(ctx)
		}},
		{"extraction service", func(ctx context.Context) error {
			a, err := newAnalyzer(ctx)
			if err != nil {
				return err
			}
			defer a.Provider().Close() //nolint:errcheck
			return a.Ping(ctx)
		}},
		{"open-access service", func(ctx context.Context) error {
			oa := newUnpaywall()
			if oa == nil {
				return fmt.Errorf("%w: resolve.contact_email not set", errCheckSkipped)
			}
			_, err := oa.Lookup(ctx, selftestDOI)
			if errors.Is(err, unpaywall.ErrNotFound) {
				return nil
			}
			return err
		}},
	}
}

// runChecks runs every check regardless of earlier failures, prints one
// line each and returns the number that failed.
func runChecks(ctx context.Context, w io.Writer, checks []check, timeout time.Duration) int {
	failed := 0
	for _, c := range checks {
		cctx, cancel := context.WithTimeout(ctx, timeout)
		err := c.run(cctx)
		cancel()

		switch {
		case err == nil:
			fmt.Fprintf(w, "OK    %s\n", c.name)
		case errors.Is(err, errCheckSkipped):
			fmt.Fprintf(w, "SKIP  %s: %v\n", c.name, err)
		default:
			failed++
			fmt.Fprintf(w, "FAIL  %s: %v\n", c.name, err)
		}
	}
	return failed
}
