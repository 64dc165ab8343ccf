package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"mediagrab/internal/metrics"
)

var (
	flagWatch       bool
	flagMetricsAddr string
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Delete artifacts older than the retention window",
	Args:  cobra.NoArgs,
	RunE:  sweepRun,
}

func init() {
	sweepCmd.Flags().BoolVarP(&flagWatch, "watch", "w", false, "Keep running and sweep on the configured interval")
	sweepCmd.Flags().StringVar(&flagMetricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address while watching (e.g. :9090)")
}

func sweepRun(cmd *cobra.Command, args []string) error {
	if !flagWatch {
		a, err := newApp(cfg, nil)
		if err != nil {
			return err
		}
		rep, err := a.sweeper.Sweep()
		if err != nil {
			return fmt.Errorf("sweeping %s: %w", a.dir, err)
		}
		out := stdout()
		if flagJSON {
			return out.json(rep)
		}
		fmt.Fprintf(out.w, "Removed %d files, freed %s.\n", rep.DeletedCount, formatBytes(rep.FreedBytes))
		return nil
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var rec metrics.Recorder
	if flagMetricsAddr != "" {
		rec = metrics.NewProm("mediagrab", prometheus.DefaultRegisterer)
		srv := &http.Server{
			Addr:              flagMetricsAddr,
			Handler:           metricsMux(),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error().Err(err).Str("addr", flagMetricsAddr).Msg("metrics server stopped")
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
		logger.Info().Str("addr", flagMetricsAddr).Msg("serving metrics")
	}

	a, err := newApp(cfg, rec)
	if err != nil {
		return err
	}
	debugf("sweeping %s every %s", a.dir, cfg.Retention.SweepInterval)

	if err := a.sweeper.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func metricsMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return mux
}
