package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/paper-cli/internal/batch"
	"github.com/sells-group/paper-cli/internal/ingest"
	"github.com/sells-group/paper-cli/internal/model"
	"github.com/sells-group/paper-cli/internal/store"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP intake server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if servePort > 0 {
			cfg.Server.Port = servePort
		}
		policy, _ := cmd.Flags().GetString("on-duplicate")

		env, err := initEnv(ctx, "serve", policy)
		if err != nil {
			return err
		}
		defer env.Close()

		addr := fmt.Sprintf(":%d", cfg.Server.Port)
		run, orch, err := env.startRun(ctx, store.RunMeta{Mode: model.ModeServe, Target: addr})
		if err != nil {
			return err
		}

		intake := newIntakeServer(orch, env.Store, run.ID,
			time.Duration(cfg.Batch.DelayMs)*time.Millisecond, cfg.Batch.QueueSize)
		workerDone := make(chan struct{})
		go func() {
			defer close(workerDone)
			intake.work(ctx)
		}()

		srv := &http.Server{
			Addr:              addr,
			Handler:           intake.routes(),
			ReadHeaderTimeout: 10 * time.Second,
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()

		zap.L().Info("starting server", zap.Int("port", cfg.Server.Port), zap.String("run_id", run.ID))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			stop()
			<-workerDone
			env.finishRun(ctx, run.ID, intake.outcomes.Outcomes())
			return setupError(eris.Wrap(err, "server listen"))
		}

		<-workerDone
		env.finishRun(ctx, run.ID, intake.outcomes.Outcomes())
		return nil
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	serveCmd.Flags().String("on-duplicate", "", "duplicate policy: skip or update (default from config)")
	rootCmd.AddCommand(serveCmd)
}

// intakeServer accepts references over HTTP and feeds them to a single
// sequential worker.
type intakeServer struct {
	runner   batch.Runner
	ledger   store.Store
	runID    string
	pacer    *ingest.Pacer
	queue    chan model.Reference
	outcomes *model.OutcomeLog
	log      *zap.Logger
}

func newIntakeServer(runner batch.Runner, ledger store.Store, runID string, delay time.Duration, queueSize int) *intakeServer {
	if queueSize <= 0 {
		queueSize = 64
	}
	return &intakeServer{
		runner:   runner,
		ledger:   ledger,
		runID:    runID,
		pacer:    ingest.NewPacer(delay),
		queue:    make(chan model.Reference, queueSize),
		outcomes: &model.OutcomeLog{},
		log:      zap.L().With(zap.String("component", "serve")),
	}
}

func (s *intakeServer) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", s.handleHealth)
	r.Post("/v1/ingest", s.handleIngest)
	r.Get("/v1/runs/{id}", s.handleGetRun)
	return r
}

// work runs queued references one at a time until ctx is done. The item in
// flight at cancellation runs to completion.
func (s *intakeServer) work(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			if n := len(s.queue); n > 0 {
				s.log.Warn("dropping queued references", zap.Int("count", n))
			}
			return
		case ref := <-s.queue:
			out := s.runner.Run(context.WithoutCancel(ctx), ref, s.pacer)
			s.outcomes.Append(out)
			s.log.Info(ingest.Line(out))
		}
	}
}

type ingestRequest struct {
	Reference string `json:"reference"`
	Kind      string `json:"kind,omitempty"`
	Source    string `json:"source"`
}

func (s *intakeServer) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "queued": len(s.queue)})
}

func (s *intakeServer) handleIngest(w http.ResponseWriter, r *http.Request) {
	var req ingestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	ref, err := requestReference(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	select {
	case s.queue <- ref:
	default:
		writeError(w, http.StatusServiceUnavailable, "queue full, retry later")
		return
	}

	s.log.Info("reference queued",
		zap.String("reference", ref.Raw),
		zap.String("kind", string(ref.Kind)),
		zap.String("request_id", middleware.GetReqID(r.Context())),
	)
	writeJSON(w, http.StatusAccepted, map[string]string{
		"status":    "queued",
		"run_id":    s.runID,
		"reference": ref.Raw,
		"kind":      string(ref.Kind),
	})
}

func (s *intakeServer) handleGetRun(w http.ResponseWriter, r *http.Request) {
	run, err := s.ledger.GetRun(r.Context(), chi.URLParam(r, "id"))
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "run not found")
	case err != nil:
		s.log.Error("get run failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "ledger unavailable")
	default:
		writeJSON(w, http.StatusOK, run)
	}
}

// requestReference validates an intake request.
func requestReference(req ingestRequest) (model.Reference, error) {
	raw := strings.TrimSpace(req.Reference)
	source := strings.TrimSpace(req.Source)
	if raw == "" {
		return model.Reference{}, eris.New("reference is required")
	}
	if source == "" {
		return model.Reference{}, eris.New("source is required")
	}

	switch model.ReferenceKind(req.Kind) {
	case "":
		return model.ParseReference(raw, source), nil
	case model.ReferenceLocalPath, model.ReferenceWebURL, model.ReferencePersistentID:
		return model.NewReference(model.ReferenceKind(req.Kind), raw, source), nil
	default:
		return model.Reference{}, eris.Errorf("kind must be path, url or doi, got %q", req.Kind)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
