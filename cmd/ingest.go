package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/paper-cli/internal/batch"
	"github.com/sells-group/paper-cli/internal/ingest"
	"github.com/sells-group/paper-cli/internal/model"
	"github.com/sells-group/paper-cli/internal/store"
)

var (
	ingestPDF string
	ingestURL string
	ingestDOI string
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Ingest a single paper by local path, URL or DOI",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		source, policy := runFlags(cmd)
		ref, err := ingestReference(ingestPDF, ingestURL, ingestDOI, source)
		if err != nil {
			return setupError(err)
		}

		env, err := initEnv(ctx, "ingest", policy)
		if err != nil {
			return err
		}
		defer env.Close()

		run, orch, err := env.startRun(ctx, store.RunMeta{Mode: model.ModeSingle, Target: ref.Raw, Source: ref.Source})
		if err != nil {
			return err
		}

		out := orch.Run(ctx, ref, ingest.NewPacer(0))
		fmt.Fprintln(os.Stdout, ingest.Line(out))

		s := env.finishRun(ctx, run.ID, []model.BatchItemOutcome{out})
		if s.Failed > 0 {
			return itemsFailedError(s.Failed, s.Total)
		}
		return nil
	},
}

// ingestReference builds the reference from exactly one of the three flags.
func ingestReference(pdf, url, doi, source string) (model.Reference, error) {
	if strings.TrimSpace(source) == "" {
		return model.Reference{}, eris.New("--source is required")
	}
	var refs []model.Reference
	if pdf != "" {
		refs = append(refs, model.NewReference(model.ReferenceLocalPath, pdf, source))
	}
	if url != "" {
		refs = append(refs, model.NewReference(model.ReferenceWebURL, url, source))
	}
	if doi != "" {
		refs = append(refs, model.NewReference(model.ReferencePersistentID, doi, source))
	}
	if len(refs) != 1 {
		return model.Reference{}, eris.New("exactly one of --pdf, --url or --doi is required")
	}
	return refs[0], nil
}

var folderCmd = &cobra.Command{
	Use:   "folder <path>",
	Short: "Ingest every PDF in a folder once",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		folder := args[0]
		if err := checkFolder(folder); err != nil {
			return setupError(err)
		}
		source, policy := runFlags(cmd)
		recursive, _ := cmd.Flags().GetBool("recursive")
		if workers, _ := cmd.Flags().GetInt("workers"); workers > 0 {
			cfg.Batch.Workers = workers
		}

		env, err := initEnv(ctx, "ingest", policy)
		if err != nil {
			return err
		}
		defer env.Close()

		run, orch, err := env.startRun(ctx, store.RunMeta{Mode: model.ModeFolder, Target: folder, Source: source})
		if err != nil {
			return err
		}

		d := batch.New(orch, batchConfig(source), batch.WithOutcomeHandler(printOutcome(os.Stdout)))
		outcomes, runErr := d.RunBatch(ctx, folder, recursive)

		s := env.finishRun(ctx, run.ID, outcomes)
		ingest.WriteSummary(os.Stdout, outcomes)
		if runErr != nil && ctx.Err() == nil {
			return setupError(runErr)
		}
		if s.Failed > 0 {
			return itemsFailedError(s.Failed, s.Total)
		}
		return nil
	},
}

var watchCmd = &cobra.Command{
	Use:   "watch <path>",
	Short: "Ingest PDFs as they appear in a folder until interrupted",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		folder := args[0]
		if err := checkFolder(folder); err != nil {
			return setupError(err)
		}
		source, policy := runFlags(cmd)
		recursive, _ := cmd.Flags().GetBool("recursive")
		if poll, _ := cmd.Flags().GetDuration("poll-interval"); poll > 0 {
			cfg.Batch.PollIntervalSecs = int(poll.Seconds())
		}

		env, err := initEnv(ctx, "ingest", policy)
		if err != nil {
			return err
		}
		defer env.Close()

		run, orch, err := env.startRun(ctx, store.RunMeta{Mode: model.ModeWatch, Target: folder, Source: source})
		if err != nil {
			return err
		}

		fmt.Fprintf(os.Stderr, "Watching %s (Ctrl-C to stop)\n", folder)
		d := batch.New(orch, batchConfig(source), batch.WithOutcomeHandler(printOutcome(os.Stdout)))
		watchErr := d.Watch(ctx, folder, recursive)

		outcomes := d.Outcomes()
		s := env.finishRun(ctx, run.ID, outcomes)
		ingest.WriteSummary(os.Stdout, outcomes)
		if watchErr != nil {
			return setupError(watchErr)
		}
		if s.Failed > 0 {
			return itemsFailedError(s.Failed, s.Total)
		}
		return nil
	},
}

func init() {
	ingestCmd.Flags().StringVar(&ingestPDF, "pdf", "", "local PDF path")
	ingestCmd.Flags().StringVar(&ingestURL, "url", "", "URL of a PDF or a paper landing page")
	ingestCmd.Flags().StringVar(&ingestDOI, "doi", "", "DOI or arXiv id")
	ingestCmd.MarkFlagsMutuallyExclusive("pdf", "url", "doi")
	ingestCmd.MarkFlagsOneRequired("pdf", "url", "doi")

	folderCmd.Flags().BoolP("recursive", "r", false, "include subdirectories")
	folderCmd.Flags().Int("workers", 0, "parallel documents (default from config)")

	watchCmd.Flags().BoolP("recursive", "r", false, "include subdirectories")
	watchCmd.Flags().Duration("poll-interval", 0, "fallback folder poll interval (default from config)")

	for _, c := range []*cobra.Command{ingestCmd, folderCmd, watchCmd} {
		c.Flags().String("source", "", "provenance label stored with every record (required)")
		c.Flags().String("on-duplicate", "", "duplicate policy: skip, update or ask (default from config)")
		_ = c.MarkFlagRequired("source")
		rootCmd.AddCommand(c)
	}
}

func runFlags(cmd *cobra.Command) (source, policy string) {
	source, _ = cmd.Flags().GetString("source")
	policy, _ = cmd.Flags().GetString("on-duplicate")
	return strings.TrimSpace(source), policy
}

func checkFolder(path string) error {
	fi, err := os.Stat(path)
	if err != nil {
		return eris.Wrapf(err, "folder %s", path)
	}
	if !fi.IsDir() {
		return eris.Errorf("%s is not a directory", path)
	}
	return nil
}

func batchConfig(source string) batch.Config {
	return batch.Config{
		Source:               source,
		Delay:                time.Duration(cfg.Batch.DelayMs) * time.Millisecond,
		Workers:              cfg.Batch.Workers,
		MaxRequestsPerMinute: cfg.Batch.MaxRequestsPerMinute,
		ProcessedDir:         cfg.Batch.ProcessedDir,
		PollInterval:         time.Duration(cfg.Batch.PollIntervalSecs) * time.Second,
		Debounce:             time.Duration(cfg.Batch.DebounceMs) * time.Millisecond,
		QueueSize:            cfg.Batch.QueueSize,
	}
}

// printOutcome writes one summary line per finished document. Workers call
// it concurrently.
func printOutcome(w io.Writer) func(model.BatchItemOutcome) {
	var mu sync.Mutex
	return func(o model.BatchItemOutcome) {
		mu.Lock()
		defer mu.Unlock()
		fmt.Fprintln(w, ingest.Line(o))
	}
}
