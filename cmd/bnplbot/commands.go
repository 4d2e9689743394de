package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/alejandrodnm/bnplbot/config"
	"github.com/alejandrodnm/bnplbot/internal/adapters/api"
	"github.com/alejandrodnm/bnplbot/internal/application/engine"
	"github.com/alejandrodnm/bnplbot/internal/application/state"
	"github.com/alejandrodnm/bnplbot/internal/domain"
)

const (
	stopTimeout = 30 * time.Second
	dateLayout  = "2006-01-02"
)

type rootOptions struct {
	configPath string
	verbose    bool
	logFormat  string
	dryRun     bool

	cfg *config.Config
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:           "bnplbot",
		Short:         "Synthetic activity generator for a BNPL lending protocol",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(opts.configPath)
			if err != nil {
				return err
			}
			if opts.verbose {
				cfg.Log.Level = "debug"
			}
			if opts.logFormat != "" {
				cfg.Log.Format = opts.logFormat
			}
			if opts.dryRun {
				cfg.Bot.DryRun = true
			}
			setupLogger(cfg.Log)
			opts.cfg = cfg
			return nil
		},
	}

	f := root.PersistentFlags()
	f.StringVar(&opts.configPath, "config", "config/config.yaml", "path to config file")
	f.BoolVarP(&opts.verbose, "verbose", "v", false, "set log level to debug")
	f.StringVar(&opts.logFormat, "format", "", "log format: text|json (overrides config)")
	f.BoolVar(&opts.dryRun, "dry-run", false, "use the in-memory ledger instead of the real collaborators")

	root.AddCommand(
		newRunCmd(opts),
		newBootstrapCmd(opts),
		newScenarioCmd(opts),
		newStatusCmd(opts),
		newPauseCmd(opts, false),
		newPauseCmd(opts, true),
		newHistoryCmd(opts),
		newSummaryCmd(opts),
	)
	return root
}

func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
}

func newRunCmd(opts *rootOptions) *cobra.Command {
	var skipBootstrap bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the scheduler until interrupted",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := signalContext(cmd)
			defer cancel()

			a, err := buildApp(opts.cfg)
			if err != nil {
				return err
			}
			defer a.engine.Close()

			if err := a.engine.Initialize(ctx, engine.InitOptions{AutoStart: true, SkipBootstrap: skipBootstrap}); err != nil {
				return err
			}

			if err := config.Watch(ctx, opts.configPath, func(c *config.Config) {
				a.engine.Reconfigure(goalsFrom(c), activeHoursFrom(c))
			}); err != nil {
				slog.Warn("config watch disabled", "err", err)
			}

			if addr := opts.cfg.API.Listen; addr != "" {
				srv := api.NewServer(a.engine, a.metrics.Handler())
				go func() {
					if err := srv.ListenAndServe(ctx, addr); err != nil {
						slog.Error("api server exited", "err", err)
					}
				}()
			}

			<-ctx.Done()
			slog.Info("shutdown requested")

			stopCtx, stopCancel := context.WithTimeout(context.Background(), stopTimeout)
			defer stopCancel()
			if err := a.engine.Stop(stopCtx); err != nil {
				return err
			}
			slog.Info("bnplbot stopped cleanly")
			return nil
		},
	}
	cmd.Flags().BoolVar(&skipBootstrap, "skip-bootstrap", false, "do not seed the pool on startup")
	return cmd
}

func newBootstrapCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "bootstrap",
		Short: "Create accounts, seed TVL and onboard merchants, then exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := signalContext(cmd)
			defer cancel()

			a, err := buildApp(opts.cfg)
			if err != nil {
				return err
			}
			defer a.engine.Close()

			if err := a.engine.Initialize(ctx, engine.InitOptions{SkipBootstrap: true}); err != nil {
				return err
			}
			res := a.engine.RunBootstrap(ctx)
			if err := persist(ctx, a); err != nil {
				return err
			}
			if !res.Success {
				return fmt.Errorf("bootstrap failed: %s", res.Error)
			}
			slog.Info("bootstrap complete", "details", res.Details, "volume", res.Volume)
			return a.engine.ShowStatus(ctx)
		},
	}
}

func newScenarioCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:       "scenario <type>",
		Short:     "Run a single scenario once",
		Args:      cobra.ExactArgs(1),
		ValidArgs: scenarioNames(),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, ok := domain.ParseScenarioType(args[0])
			if !ok {
				return fmt.Errorf("unknown scenario %q, valid: %v", args[0], scenarioNames())
			}

			ctx, cancel := signalContext(cmd)
			defer cancel()

			a, err := buildApp(opts.cfg)
			if err != nil {
				return err
			}
			defer a.engine.Close()

			if err := a.engine.Initialize(ctx, engine.InitOptions{SkipBootstrap: true}); err != nil {
				return err
			}
			res, err := a.engine.RunScenario(ctx, t)
			if errors.Is(err, engine.ErrCannotRun) {
				slog.Warn("scenario preconditions not met, nothing done", "scenario", t)
				return nil
			}
			if err != nil {
				return err
			}
			if err := persist(ctx, a); err != nil {
				return err
			}
			if !res.Success {
				return fmt.Errorf("%s failed: %s", t, res.Error)
			}
			slog.Info("scenario complete", "scenario", t, "volume", res.Volume, "tx", res.TxHash, "details", res.Details)
			return nil
		},
	}
}

func newStatusCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Print goal progress, counters and recent activity",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := signalContext(cmd)
			defer cancel()

			a, err := buildApp(opts.cfg)
			if err != nil {
				return err
			}
			defer a.engine.Close()

			if err := a.engine.Initialize(ctx, engine.InitOptions{SkipBootstrap: true}); err != nil {
				return err
			}
			return a.engine.ShowStatus(ctx)
		},
	}
}

// newPauseCmd escribe el flag del operador; el proceso en ejecución lo
// recoge en el siguiente sondeo.
func newPauseCmd(opts *rootOptions, resume bool) *cobra.Command {
	use, short := "pause", "Ask a running bot to pause"
	if resume {
		use, short = "resume", "Ask a paused bot to resume"
	}
	return &cobra.Command{
		Use:   use,
		Short: short,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := signalContext(cmd)
			defer cancel()

			store, err := openStore(opts.cfg)
			if err != nil {
				return err
			}
			sm := state.New(store)
			defer sm.Close()

			if err := sm.Connect(ctx); err != nil {
				return err
			}
			if err := sm.SetRemoteRunning(ctx, resume); err != nil {
				return err
			}
			slog.Info("operator flag written", "running", resume)
			return nil
		},
	}
}

func newHistoryCmd(opts *rootOptions) *cobra.Command {
	var from, to string

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Print the activity log for a date range",
		RunE: func(cmd *cobra.Command, _ []string) error {
			start, end, err := dateRange(from, to, 1)
			if err != nil {
				return err
			}
			a, err := buildApp(opts.cfg)
			if err != nil {
				return err
			}
			defer a.engine.Close()

			rows, err := a.engine.History(cmd.Context(), start, end)
			if err != nil {
				return err
			}
			a.reporter.PrintHistory(rows)
			return nil
		},
	}
	cmd.Flags().StringVar(&from, "from", "", "first day, YYYY-MM-DD (default: today)")
	cmd.Flags().StringVar(&to, "to", "", "last day inclusive, YYYY-MM-DD (default: today)")
	return cmd
}

func newSummaryCmd(opts *rootOptions) *cobra.Command {
	var days int

	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Print daily totals per scenario",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if days <= 0 {
				return fmt.Errorf("--days must be positive")
			}
			start, end, err := dateRange("", "", days)
			if err != nil {
				return err
			}
			a, err := buildApp(opts.cfg)
			if err != nil {
				return err
			}
			defer a.engine.Close()

			rows, err := a.engine.Summary(cmd.Context(), start, end)
			if err != nil {
				return err
			}
			a.reporter.PrintSummary(rows)
			return nil
		},
	}
	cmd.Flags().IntVar(&days, "days", 7, "number of days to include, today counts as one")
	return cmd
}

// persist guarda el snapshot tras un comando de una sola ejecución.
func persist(ctx context.Context, a *app) error {
	a.engine.Flush()
	if err := a.engine.Save(ctx); err != nil {
		return fmt.Errorf("save state: %w", err)
	}
	return nil
}

// dateRange convierte fechas locales en [from, to). Sin fechas cubre los
// últimos defaultDays días incluyendo hoy.
func dateRange(from, to string, defaultDays int) (time.Time, time.Time, error) {
	now := time.Now()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.Local)

	end := today.AddDate(0, 0, 1)
	if to != "" {
		t, err := time.ParseInLocation(dateLayout, to, time.Local)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("--to: %w", err)
		}
		end = t.AddDate(0, 0, 1)
	}

	start := end.AddDate(0, 0, -defaultDays)
	if from != "" {
		t, err := time.ParseInLocation(dateLayout, from, time.Local)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("--from: %w", err)
		}
		start = t
	}
	if !start.Before(end) {
		return time.Time{}, time.Time{}, fmt.Errorf("empty range %s..%s", start.Format(dateLayout), end.Format(dateLayout))
	}
	return start, end, nil
}

func scenarioNames() []string {
	names := make([]string, len(domain.AllScenarioTypes))
	for i, t := range domain.AllScenarioTypes {
		names[i] = string(t)
	}
	return names
}
