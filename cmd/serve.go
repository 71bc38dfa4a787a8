package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/triagehq/triage-cli/internal/jobs"
	"github.com/triagehq/triage-cli/internal/monitoring"
	"github.com/triagehq/triage-cli/internal/rules"
	"github.com/triagehq/triage-cli/internal/service"
	"github.com/triagehq/triage-cli/internal/store"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the triage REST API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx, "serve")
		if err != nil {
			return err
		}
		defer env.Close()

		jobStore, err := jobs.Open(cfg.Jobs.Path)
		if err != nil {
			return err
		}
		defer jobStore.Close()
		if err := jobStore.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate jobs")
		}
		jobStore.StartCleanup(ctx,
			time.Duration(cfg.Jobs.CleanupInterval)*time.Minute,
			time.Duration(cfg.Jobs.RetentionHours)*time.Hour,
		)

		collector := monitoring.NewCollector(env.Store, jobStore)
		checker := monitoring.NewChecker(collector, monitoring.NewAlerter(cfg.Monitoring), cfg.Monitoring)
		go checker.Run(ctx)

		mux := buildMux(ctx, env.Service, jobStore, env.Rules, collector)

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: mux,
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			srv.Shutdown(context.Background())
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

// buildMux registers the REST routes. serverCtx outlives individual
// requests and scopes the async triage runs started by POST /process.
// Any dependency may be nil in tests; its routes then answer 503.
func buildMux(serverCtx context.Context, svc *service.Service, jobStore *jobs.Store, rulesMgr *rules.Manager, collector *monitoring.Collector) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	mux.HandleFunc("POST /api/v1/process", func(w http.ResponseWriter, r *http.Request) {
		if svc == nil || jobStore == nil {
			writeError(w, http.StatusServiceUnavailable, "processing unavailable")
			return
		}

		job, err := jobStore.Create(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, "create job")
			return
		}

		go runJob(serverCtx, svc, jobStore, job.ID)

		writeJSON(w, http.StatusAccepted, map[string]string{
			"job_id": job.ID,
			"status": string(job.Status),
		})
	})

	mux.HandleFunc("GET /api/v1/process/status/{id}", func(w http.ResponseWriter, r *http.Request) {
		if jobStore == nil {
			writeError(w, http.StatusServiceUnavailable, "jobs unavailable")
			return
		}

		job, err := jobStore.Get(r.Context(), r.PathValue("id"))
		if err != nil {
			if eris.Is(err, jobs.ErrJobNotFound) {
				writeError(w, http.StatusNotFound, "job not found")
				return
			}
			writeError(w, http.StatusInternalServerError, "load job")
			return
		}
		writeJSON(w, http.StatusOK, job)
	})

	mux.HandleFunc("GET /api/v1/tickets", func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			writeError(w, http.StatusServiceUnavailable, "store unavailable")
			return
		}

		q := r.URL.Query()
		tickets, err := svc.ListTickets(r.Context(), service.TicketFilter{
			Category: q.Get("category"),
			Priority: q.Get("priority"),
			Status:   q.Get("status"),
		})
		if err != nil {
			writeError(w, http.StatusInternalServerError, "list tickets")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"tickets": tickets,
			"count":   len(tickets),
		})
	})

	mux.HandleFunc("GET /api/v1/tickets/{id}", func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			writeError(w, http.StatusServiceUnavailable, "store unavailable")
			return
		}

		ticket, err := svc.GetTicket(r.Context(), r.PathValue("id"))
		if err != nil {
			if eris.Is(err, store.ErrTicketNotFound) {
				writeError(w, http.StatusNotFound, "ticket not found")
				return
			}
			writeError(w, http.StatusInternalServerError, "load ticket")
			return
		}
		writeJSON(w, http.StatusOK, ticket)
	})

	mux.HandleFunc("PATCH /api/v1/tickets/{id}", func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			writeError(w, http.StatusServiceUnavailable, "store unavailable")
			return
		}

		var patch service.TicketPatch
		if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		ticket, err := svc.UpdateTicket(r.Context(), r.PathValue("id"), patch)
		if err != nil {
			if eris.Is(err, store.ErrTicketNotFound) {
				writeError(w, http.StatusNotFound, "ticket not found")
				return
			}
			writeError(w, http.StatusBadRequest, eris.Cause(err).Error())
			return
		}
		writeJSON(w, http.StatusOK, ticket)
	})

	mux.HandleFunc("POST /api/v1/tickets/deduplicate", func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			writeError(w, http.StatusServiceUnavailable, "store unavailable")
			return
		}

		removed, err := svc.Deduplicate(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, "deduplicate")
			return
		}
		writeJSON(w, http.StatusOK, map[string]int{"removed": removed})
	})

	mux.HandleFunc("GET /api/v1/metrics", func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			writeError(w, http.StatusServiceUnavailable, "store unavailable")
			return
		}

		metrics, err := svc.Metrics(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, "load metrics")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"metrics": metrics,
			"count":   len(metrics),
		})
	})

	mux.HandleFunc("GET /api/v1/priority-rules", func(w http.ResponseWriter, r *http.Request) {
		if rulesMgr == nil {
			writeError(w, http.StatusServiceUnavailable, "rules unavailable")
			return
		}
		writeJSON(w, http.StatusOK, rulesMgr.Get())
	})

	mux.HandleFunc("POST /api/v1/priority-rules", func(w http.ResponseWriter, r *http.Request) {
		if rulesMgr == nil {
			writeError(w, http.StatusServiceUnavailable, "rules unavailable")
			return
		}

		var patches map[string]rules.CategoryRulePatch
		if err := json.NewDecoder(r.Body).Decode(&patches); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if err := rulesMgr.Set(patches); err != nil {
			writeError(w, http.StatusBadRequest, eris.Cause(err).Error())
			return
		}
		writeJSON(w, http.StatusOK, rulesMgr.Get())
	})

	mux.HandleFunc("GET /api/v1/stats", func(w http.ResponseWriter, r *http.Request) {
		if collector == nil {
			writeError(w, http.StatusServiceUnavailable, "stats unavailable")
			return
		}

		snap, err := collector.Collect(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, "collect stats")
			return
		}
		writeJSON(w, http.StatusOK, snap)
	})

	return mux
}

// runJob drives one async triage run, mirroring its lifecycle into the
// job store.
func runJob(ctx context.Context, svc *service.Service, jobStore *jobs.Store, jobID string) {
	log := zap.L().With(zap.String("job_id", jobID))

	if err := jobStore.MarkRunning(ctx, jobID); err != nil {
		log.Error("mark job running failed", zap.Error(err))
		return
	}

	summary, err := svc.Run(ctx, func(progress int, message string) {
		if err := jobStore.UpdateProgress(ctx, jobID, progress, message); err != nil {
			log.Warn("job progress update failed", zap.Error(err))
		}
	})
	if err != nil {
		log.Error("triage job failed", zap.Error(err))
		if ferr := jobStore.Fail(ctx, jobID, err.Error()); ferr != nil {
			log.Error("mark job failed failed", zap.Error(ferr))
		}
		return
	}

	if err := jobStore.Complete(ctx, jobID, summary); err != nil {
		log.Error("mark job complete failed", zap.Error(err))
		return
	}
	log.Info("triage job complete",
		zap.Int("processed", summary.Processed),
		zap.Int("tickets", summary.Tickets),
	)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Warn("write response failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
