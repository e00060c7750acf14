package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"backtest-lab/internal/config"
	"backtest-lab/internal/dataset"
	"backtest-lab/internal/events"
	"backtest-lab/internal/observability"
	"backtest-lab/internal/orchestrator"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve run submission, progress events, and Prometheus metrics",
	Long: `serve exposes:

  POST /runs      submit a run (optional {"seed": N} body overriding the config seed)
  GET  /ws        WebSocket stream of progress snapshots
  GET  /metrics   Prometheus metrics
  GET  /healthz   liveness probe`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		logger := log.New(cmd.ErrOrStderr(), "", log.LstdFlags)

		cfg, err := config.Load(cfgFile)
		if err != nil {
			return err
		}

		loaded, err := dataset.Load(cfg.Dataset.Path, dataset.Options{
			DatasetID:  cfg.Dataset.DatasetID,
			CalendarID: cfg.Dataset.CalendarID,
			BarMinutes: cfg.Dataset.BarMinutes,
		})
		if err != nil {
			return err
		}

		s, cleanup, err := buildStores(ctx, cfg.Storage, logger)
		if err != nil {
			return err
		}
		defer cleanup()

		hub := events.NewWSHub(logger)
		defer hub.Close()

		srv := &runServer{
			cfg:     cfg,
			loaded:  loaded,
			stores:  s,
			hub:     hub,
			metrics: observability.NewMetrics(cfg.Server.MetricsNamespace),
			logger:  logger,
		}

		mux := http.NewServeMux()
		mux.Handle("/runs", srv)
		mux.Handle("/ws", hub)
		mux.Handle("/metrics", observability.Handler())
		mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusOK)
			fmt.Fprintln(w, "ok")
		})

		httpSrv := &http.Server{
			Addr:              cfg.Server.Addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}

		go func() {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			httpSrv.Shutdown(shutdownCtx)
		}()

		logger.Printf("listening on %s", cfg.Server.Addr)
		if err := httpSrv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	},
}

// runServer accepts run submissions and executes them within the
// request, streaming snapshots to the hub. Runs execute one at a
// time; the stores are write-once, so resubmitting the same config
// surfaces a duplicate-key failure rather than a second run.
type runServer struct {
	cfg     *config.Config
	loaded  *dataset.Loaded
	stores  *stores
	hub     *events.WSHub
	metrics *observability.Metrics
	logger  *log.Logger

	mu sync.Mutex // serializes run execution
}

type runRequest struct {
	Seed *int64 `json:"seed"`
}

type runResponse struct {
	RunID   string `json:"run_id"`
	RunHash string `json:"run_hash"`
	Status  string `json:"status"`
	Cause   string `json:"cause,omitempty"`
}

func (s *runServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req runRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid body: "+err.Error(), http.StatusBadRequest)
			return
		}
	}

	runCfg := s.cfg.Run.ToRunConfig()
	if req.Seed != nil {
		runCfg.RunSeed = *req.Seed
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	orch := orchestrator.New(orchestrator.Options{
		Config:          runCfg,
		Series:          s.loaded.Series,
		Snapshot:        s.loaded.Snapshot,
		ManifestStore:   s.stores.manifests,
		TradeStore:      s.stores.trades,
		EquityStore:     s.stores.equity,
		ValidationStore: s.stores.validations,
		Sink:            s.hub,
		Metrics:         s.metrics,
		Logger:          s.logger,
	})

	result, runErr := orch.Run(r.Context())
	if result == nil {
		http.Error(w, runErr.Error(), http.StatusBadRequest)
		return
	}

	resp := runResponse{
		RunID:   result.Manifest.RunID,
		RunHash: result.Manifest.RunHash,
		Status:  string(result.Manifest.Status),
		Cause:   result.Manifest.FailureCause,
	}
	w.Header().Set("Content-Type", "application/json")
	if runErr != nil {
		w.WriteHeader(http.StatusUnprocessableEntity)
	}
	json.NewEncoder(w).Encode(resp)
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
