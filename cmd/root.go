package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/paper-cli/internal/config"
)

// Exit codes.
const (
	exitOK          = 0
	exitItemsFailed = 1
	exitSetup       = 2
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "paper-cli",
	Short: "Academic paper ingestion pipeline",
	Long:  "Resolves paper references to PDFs, extracts their text, asks an extraction service for structured metadata and files the result in a Notion database.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return setupError(fmt.Errorf("load config: %w", err))
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return setupError(fmt.Errorf("init logger: %w", err))
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
	SilenceUsage: true,
}

// exitError carries the process exit code for err.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }

func (e *exitError) Unwrap() error { return e.err }

// setupError marks a configuration or connectivity failure that happened
// before any document was processed.
func setupError(err error) error {
	if err == nil {
		return nil
	}
	return &exitError{code: exitSetup, err: err}
}

// itemsFailedError reports that a run finished with failed documents.
func itemsFailedError(failed, total int) error {
	return &exitError{code: exitItemsFailed, err: fmt.Errorf("%d of %d documents failed", failed, total)}
}

func exitCode(err error) int {
	if err == nil {
		return exitOK
	}
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	// Document failures always arrive as itemsFailedError; anything else
	// stopped the run itself.
	return exitSetup
}

func main() {
	err := rootCmd.Execute()
	os.Exit(exitCode(err))
}
