package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/reliefmap/pcoder/internal/engine"
	"github.com/reliefmap/pcoder/internal/store"
)

// maxRequestBytes bounds POST /v1/resolve bodies.
const maxRequestBytes = 16 << 20

var (
	servePort    int
	servePersist bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP resolution server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate("serve"); err != nil {
			return err
		}
		if servePersist {
			if err := cfg.Validate("persist"); err != nil {
				return err
			}
		}

		eng, err := engine.FromConfig(ctx, cfg)
		if err != nil {
			return err
		}

		var st store.Store
		if servePersist {
			st, err = store.Open(ctx, cfg.Store.Driver, cfg.Store.DatabaseURL)
			if err != nil {
				return err
			}
			defer st.Close() //nolint:errcheck
		}

		return startServer(ctx, buildMux(ctx, eng, st), resolvePort(servePort, cfg.Server.Port))
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	serveCmd.Flags().BoolVar(&servePersist, "persist", false, "record every resolved table in the configured store")
	rootCmd.AddCommand(serveCmd)
}

// resolvePort prefers the flag value and falls back to the config port.
func resolvePort(flagPort, cfgPort int) int {
	if flagPort != 0 {
		return flagPort
	}
	return cfgPort
}

// resolveRequest carries either a list of tables or a single table.
type resolveRequest struct {
	Tables []engine.Input `json:"tables,omitempty"`
	engine.Input
}

type resolveResponse struct {
	Results []*engine.Result `json:"results"`
	RunIDs  []string         `json:"run_ids,omitempty"`
}

// buildMux wires the HTTP routes. eng and st may be nil: resolve then
// answers 503 and results are not recorded.
func buildMux(ctx context.Context, eng *engine.Engine, st store.Store) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	mux.HandleFunc("POST /v1/resolve", func(w http.ResponseWriter, r *http.Request) {
		if eng == nil {
			writeError(w, http.StatusServiceUnavailable, "engine not ready")
			return
		}

		var req resolveRequest
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes)).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		inputs := req.Tables
		if len(inputs) == 0 && len(req.Rows) > 0 {
			inputs = []engine.Input{req.Input}
		}
		if len(inputs) == 0 {
			writeError(w, http.StatusBadRequest, "rows or tables are required")
			return
		}
		for i := range inputs {
			numberRows(&inputs[i])
		}

		results, err := eng.ProcessBatch(r.Context(), inputs)
		if err != nil {
			zap.L().Error("resolve request failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "resolve failed")
			return
		}

		resp := resolveResponse{Results: results}
		if st != nil {
			for _, res := range results {
				run, err := store.Record(ctx, st, "http", *res)
				if err != nil {
					zap.L().Error("record run failed", zap.String("table", res.Name), zap.Error(err))
					writeError(w, http.StatusInternalServerError, "persist failed")
					return
				}
				resp.RunIDs = append(resp.RunIDs, run.ID)
			}
		}
		writeJSON(w, http.StatusOK, resp)
	})

	mux.HandleFunc("GET /v1/runs/{id}", func(w http.ResponseWriter, r *http.Request) {
		if st == nil {
			writeError(w, http.StatusNotFound, "persistence disabled")
			return
		}
		run, err := st.GetRun(r.Context(), r.PathValue("id"))
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "run not found")
			return
		}
		if err != nil {
			zap.L().Error("get run failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "lookup failed")
			return
		}
		writeJSON(w, http.StatusOK, run)
	})

	return mux
}

// numberRows assigns table order to rows that arrive without sequence
// numbers.
func numberRows(in *engine.Input) {
	for _, r := range in.Rows {
		if r.Seq != 0 {
			return
		}
	}
	for i := range in.Rows {
		in.Rows[i].Seq = i
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Debug("write response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// startServer serves mux on port until ctx is cancelled, then shuts down
// gracefully.
func startServer(ctx context.Context, mux http.Handler, port int) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		zap.L().Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			zap.L().Warn("server shutdown", zap.Error(err))
		}
	}()

	zap.L().Info("starting server", zap.Int("port", port))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return eris.Wrap(err, "server listen")
	}
	return nil
}
