package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"wmscore/internal/config"
	"wmscore/internal/logging"
)

const shutdownTimeout = 5 * time.Second

func newServeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Expose metrics and run the periodic stagnation audit and snapshots",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.serve(cmd.Context())
		},
	}
}

// serve runs until ctx is cancelled. The first failing loop stops the rest.
func (a *app) serve(ctx context.Context) error {
	var stagnantDays atomic.Int64
	stagnantDays.Store(int64(a.cfg.Serve.StagnantDays))

	ln, err := net.Listen("tcp", a.cfg.Serve.MetricsAddr)
	if err != nil {
		return err
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(a.reg, promhttp.HandlerOpts{Registry: a.reg}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.logger().Info().Str("addr", ln.Addr().String()).Msg("metrics listening")
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	if every := a.cfg.Serve.AuditInterval.Std(); every > 0 {
		g.Go(func() error {
			return tick(gctx, every, func(ctx context.Context) {
				a.auditStagnant(ctx, int(stagnantDays.Load()))
			})
		})
	}
	if every := a.cfg.Serve.SnapshotEvery.Std(); every > 0 {
		g.Go(func() error {
			return tick(gctx, every, a.snapshot)
		})
	}
	watcher := config.NewWatcher(a.cfgPath, a.loadConfig, func(cfg config.Config) {
		if lvl, err := logging.ParseLevel(cfg.Log.Level); err == nil {
			a.log.SetLevel(lvl)
		}
		stagnantDays.Store(int64(cfg.Serve.StagnantDays))
		a.logger().Info().Str("level", cfg.Log.Level).Int("stagnant_days", cfg.Serve.StagnantDays).Msg("config reloaded")
	}, func(err error) {
		a.logger().Warn().Err(err).Msg("config reload rejected")
	})
	g.Go(func() error { return watcher.Run(gctx) })

	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// tick calls fn every interval until ctx is done.
func tick(ctx context.Context, every time.Duration, fn func(context.Context)) error {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			fn(ctx)
		}
	}
}

func (a *app) auditStagnant(ctx context.Context, days int) {
	found, err := a.svc.StagnantPallets(ctx, days)
	if err != nil {
		a.logger().Error().Err(err).Msg("stagnation audit failed")
		return
	}
	if len(found) == 0 {
		a.logger().Debug().Int("threshold_days", days).Msg("no stagnant pallets")
		return
	}
	ids := make([]string, 0, len(found))
	for _, sp := range found {
		ids = append(ids, sp.Pallet.ID)
	}
	a.logger().Warn().Int("threshold_days", days).Int("count", len(found)).Strs("pallets", ids).Msg("stagnant pallets")
}

func (a *app) snapshot(ctx context.Context) {
	archive, err := a.openBlob(ctx)
	if err != nil {
		a.logger().Error().Err(err).Msg("snapshot skipped")
		return
	}
	info, err := a.svc.ExportSnapshot(ctx, archive)
	if err != nil {
		a.logger().Error().Err(err).Msg("snapshot failed")
		return
	}
	a.logger().Info().Str("key", info.Key).Int64("size", info.Size).Msg("snapshot written")
	removed, err := a.svc.PruneSnapshots(ctx, archive, a.cfg.Serve.SnapshotKeep)
	if err != nil {
		a.logger().Error().Err(err).Msg("snapshot prune failed")
		return
	}
	if len(removed) > 0 {
		a.logger().Info().Strs("keys", removed).Int("keep", a.cfg.Serve.SnapshotKeep).Msg("snapshots pruned")
	}
}
