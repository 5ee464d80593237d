package cli

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/shaiso/Synchronizer/internal/repo"
	"github.com/shaiso/Synchronizer/internal/synchronizer"
	"github.com/shaiso/Synchronizer/internal/telemetry"
)

// leaderLockName — ключ advisory lock, общий для всех реплик.
const leaderLockName = "synchronizer"

// NewServeCmd создаёт команду долгоживущего процесса с периодическими проходами.
func NewServeCmd(envFn func() (*Env, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run passes on a schedule and serve /healthz and /metrics",
		Long: "Runs the due pass on SYNC_SCHEDULE and the stalled pass on SYNC_STALLED_SCHEDULE.\n" +
			"Only the replica holding the Postgres advisory lock runs passes.",
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := envFn()
			if err != nil {
				return err
			}
			return serve(cmd.Context(), env)
		},
	}
}

func serve(ctx context.Context, env *Env) error {
	cfg := env.Config
	logger := env.Logger

	if err := synchronizer.ValidateSchedule(cfg.Schedule); err != nil {
		return err
	}
	if cfg.StalledSchedule != "-" {
		if err := synchronizer.ValidateSchedule(cfg.StalledSchedule); err != nil {
			return err
		}
	}

	app, err := NewApp(ctx, env, telemetry.NewMetrics(prometheus.DefaultRegisterer))
	if err != nil {
		return err
	}
	defer app.Close()

	trigger, err := synchronizer.NewTrigger(synchronizer.TriggerConfig{
		Synchronizer:    app.Sync,
		Lock:            repo.NewLeaderLock(app.Pool, leaderLockName),
		Schedule:        cfg.Schedule,
		StalledSchedule: cfg.StalledSchedule,
		Logger:          logger,
	})
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           newServeMux(app),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server started", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	trigger.Start(ctx)

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err = <-errCh:
		logger.Error("http server error", "error", err)
	}

	trigger.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if serr := srv.Shutdown(shutdownCtx); serr != nil {
		logger.Error("http shutdown error", "error", serr)
	}

	return err
}

// newServeMux — /healthz и /metrics.
// /healthz отвечает 503, если недоступна БД или брокер.
func newServeMux(app *App) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := app.Pool.Ping(ctx); err != nil {
			http.Error(w, "db: "+err.Error(), http.StatusServiceUnavailable)
			return
		}
		if !app.MQ.IsConnected() {
			http.Error(w, "rabbitmq: not connected", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}
