package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"wmscore/internal/blob"
	"wmscore/internal/config"
	"wmscore/internal/core"
	"wmscore/internal/logging"
	"wmscore/internal/platform/metrics"
	"wmscore/internal/platform/otel"
	"wmscore/pkg/domain"
)

// app carries the per-invocation wiring shared by every command.
type app struct {
	out     io.Writer
	errOut  io.Writer
	flags   *config.Flags
	cfgPath string
	cfg     config.Config
	log     *logging.Adapter
	svc     *core.Service
	reg     *prometheus.Registry
	closers []func() error
}

func (a *app) logger() *zerolog.Logger { return a.log.Logger() }

// loadConfig resolves the effective configuration from file, env and flags.
func (a *app) loadConfig() (config.Config, error) {
	return config.Load(a.cfgPath, a.flags)
}

// open builds the logger, store and service. It runs before every command
// except help and version.
func (a *app) open(ctx context.Context) error {
	a.cfgPath = a.flags.Path(os.Getenv)
	cfg, err := a.loadConfig()
	if err != nil {
		return err
	}
	a.cfg = cfg

	zl, err := logging.New(cfg.Log.Level, cfg.Log.Format, a.errOut)
	if err != nil {
		return err
	}
	a.log = logging.NewAdapter(zl)

	shutdown, err := otel.Setup(ctx, "wmsctl", cfg.Telemetry)
	if err != nil {
		return fmt.Errorf("tracing: %w", err)
	}
	a.closers = append(a.closers, func() error { return shutdown(context.Background()) })

	audit, err := a.openAudit(cfg.Log.AuditFile)
	if err != nil {
		return err
	}

	store, closeStore, err := core.OpenPersistentStore(ctx, cfg.Storage, core.NewDefaultRulesEngine(), nil)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	a.closers = append(a.closers, closeStore)

	a.reg = prometheus.NewRegistry()
	a.reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	a.svc = core.NewService(store,
		core.WithLogger(a.log),
		core.WithMetricsRecorder(metrics.NewRecorder(a.reg)),
		core.WithTracer(otel.NewTracer(nil)),
		core.WithAuditRecorder(audit),
		core.WithDefaultCapacity(cfg.Warehouse.Capacity()),
		core.WithHighPriorityRows(cfg.Warehouse.HighPriorityRows),
		core.WithOperationTimeout(cfg.Warehouse.OperationTimeout.Std()),
	)
	a.reg.MustRegister(metrics.NewInventoryCollector(a.svc))
	a.logger().Debug().Str("storage", string(cfg.Storage.Driver)).Str("config", a.cfgPath).Msg("service ready")
	return nil
}

func (a *app) openAudit(path string) (core.AuditRecorder, error) {
	if path == "" {
		return nil, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("audit dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o640)
	if err != nil {
		return nil, fmt.Errorf("open audit file: %w", err)
	}
	a.closers = append(a.closers, f.Close)
	return core.NewJSONAuditRecorder(f), nil
}

func (a *app) openBlob(ctx context.Context) (blob.Store, error) {
	store, err := blob.Open(ctx, a.cfg.Blob)
	if err != nil {
		return nil, fmt.Errorf("open snapshot archive: %w", err)
	}
	return store, nil
}

// close releases resources in reverse order of acquisition.
func (a *app) close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

// print writes v as indented JSON, followed by any rule warnings.
func (a *app) print(v any, res ...core.Result) error {
	enc := json.NewEncoder(a.out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return err
	}
	for _, r := range res {
		for _, w := range r.Violations {
			fmt.Fprintf(a.errOut, "warning: %s: %s\n", w.Rule, w.Message)
		}
	}
	return nil
}

// exitCode maps error kinds onto process exit codes: 2 for usage errors,
// 3 for domain rejections and 1 for everything else. A commit that was not
// persisted is lost when the process exits, so it counts as a failure.
func exitCode(err error) int {
	var usage usageError
	switch {
	case errors.As(err, &usage):
		return 2
	case errors.Is(err, domain.ErrNotPersisted):
		return 1
	case domain.KindOf(err) != "internal":
		return 3
	default:
		return 1
	}
}

type usageError struct{ msg string }

func (e usageError) Error() string { return e.msg }

func usagef(format string, args ...any) error {
	return usageError{msg: fmt.Sprintf(format, args...)}
}

// execute runs one wmsctl invocation and releases everything it opened, even
// when the command fails.
func execute(ctx context.Context, args []string, out, errOut io.Writer) error {
	root, a := newRootCmd(out, errOut)
	root.SetArgs(args)
	err := root.ExecuteContext(ctx)
	return errors.Join(err, a.close())
}

// newRootCmd assembles the command tree writing results to out and logs and
// warnings to errOut.
func newRootCmd(out, errOut io.Writer) (*cobra.Command, *app) {
	a := &app{out: out, errOut: errOut}
	root := &cobra.Command{
		Use:           "wmsctl",
		Short:         "Warehouse slot allocation and pallet lifecycle engine",
		Version:       getVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.open(cmd.Context())
		},
	}
	root.SetOut(out)
	root.SetErr(errOut)
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return usageError{msg: err.Error()}
	})
	a.flags = config.RegisterFlags(root.PersistentFlags())

	root.AddCommand(
		newBootstrapCmd(a),
		newPalletCmd(a),
		newInboundCmd(a),
		newOutboundCmd(a),
		newOutboundBatchCmd(a),
		newRelocateCmd(a),
		newSlotCmd(a),
		newStatsCmd(a),
		newSearchCmd(a),
		newStagnantCmd(a),
		newExportCmd(a),
		newImportCmd(a),
		newServeCmd(a),
	)
	markArgErrorsAsUsage(root)
	return root, a
}

// markArgErrorsAsUsage wraps every positional argument validator in the tree
// so wrong argument counts exit like flag errors.
func markArgErrorsAsUsage(cmd *cobra.Command) {
	if validate := cmd.Args; validate != nil {
		cmd.Args = func(c *cobra.Command, args []string) error {
			if err := validate(c, args); err != nil {
				return usageError{msg: err.Error()}
			}
			return nil
		}
	}
	for _, sub := range cmd.Commands() {
		markArgErrorsAsUsage(sub)
	}
}
