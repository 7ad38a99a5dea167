package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/consensus-engine/internal/consensus"
	"github.com/sells-group/consensus-engine/internal/model"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the consensus HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		e, err := buildEnv()
		if err != nil {
			return err
		}
		defer e.Close()

		go e.Monitor.Run(ctx)

		r := chi.NewRouter()
		r.Use(middleware.RequestID)
		r.Use(middleware.Recoverer)
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: []string{"*"},
			AllowedMethods: []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Content-Type"},
		}))

		r.Post("/v1/analyze", handleAnalyze(e))
		r.Get("/v1/health", handleHealth(e))

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: r,
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			srv.Shutdown(ctx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

func handleAnalyze(e *env) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req model.AnalysisRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if req.Record.Name == "" {
			writeError(w, http.StatusBadRequest, "record.name is required")
			return
		}

		res, err := e.Engine.Analyze(r.Context(), req)
		if err != nil {
			switch {
			case errors.Is(err, consensus.ErrConfiguration):
				writeError(w, http.StatusBadRequest, err.Error())
			case errors.Is(err, consensus.ErrNoConsensus):
				writeError(w, http.StatusUnprocessableEntity, err.Error())
			default:
				zap.L().Error("analyze failed", zap.Error(err))
				writeError(w, http.StatusInternalServerError, "internal error")
			}
			return
		}

		writeJSON(w, http.StatusOK, res)
	}
}

func handleHealth(e *env) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		statuses := e.Monitor.Statuses()
		healthy := true
		for _, s := range statuses {
			if s.Degraded {
				healthy = false
			}
		}
		code := http.StatusOK
		if !healthy {
			code = http.StatusServiceUnavailable
		}
		writeJSON(w, code, map[string]any{
			"status":    map[bool]string{true: "ok", false: "degraded"}[healthy],
			"providers": statuses,
		})
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
