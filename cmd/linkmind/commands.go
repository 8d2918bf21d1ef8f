package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"text/tabwriter"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"

	"linkmind/internal/audit"
	"linkmind/internal/codec"
	"linkmind/internal/config"
	"linkmind/internal/domain"
	"linkmind/internal/handler"
	"linkmind/internal/hub"
	"linkmind/internal/metrics"
	"linkmind/internal/report"
	"linkmind/internal/service"
	"linkmind/internal/watcher"
)

func newFlagSet(a *app, name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(a.stderr)
	return fs
}

// exampleBatch seeds a new installation with one offending and one clean link
var exampleBatch = []domain.NodeSnapshot{
	{ID: "17659-HW", Vendor: "Huawei", BandwidthMHz: 56, ThroughputMbps: 40, LicenseReserved: 400, LicenseActual: 50, AdminStatus: "UP"},
	{ID: "20311-HW", Vendor: "Huawei", BandwidthMHz: 28, ThroughputMbps: 180, LicenseReserved: 200, LicenseActual: 190, AdminStatus: "UP"},
}

// cmdInit writes a default config file and an example snapshot batch
func cmdInit(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet(a, "init")
	path := fs.String("path", config.DefaultConfigPath(), "config file to create")
	example := fs.String("example", "snapshots.example.yaml", "example snapshot batch to create (.json, .yaml); empty to skip")
	force := fs.Bool("force", false, "overwrite existing files")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}

	for _, p := range []string{*path, *example} {
		if p == "" || *force {
			continue
		}
		if _, err := os.Stat(p); err == nil {
			return fmt.Errorf("%s already exists (use -force to overwrite)", p)
		}
	}

	cfg := config.DefaultConfig()
	cfg.Mode = a.cfg.Mode
	if err := cfg.Save(*path); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	fmt.Fprintf(a.stdout, "Wrote %s\n%s\n", *path, cfg.Summary())

	if *example == "" {
		return nil
	}
	if err := writeSnapshots(*example, exampleBatch); err != nil {
		return err
	}
	fmt.Fprintf(a.stdout, "Wrote %s\n", *example)
	return nil
}

func writeSnapshots(path string, snaps []domain.NodeSnapshot) error {
	c, err := codec.ForPath(path)
	if err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := c.Export(snaps, f); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}

func cmdJudge(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet(a, "judge")
	snapshots := fs.String("snapshots", "", "snapshot batch file (.json, .yaml)")
	simulate := fs.Bool("simulate", a.cfg.Mode.IsSimulation(), "dry run: write the audit log, leave the store untouched")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	if *snapshots == "" {
		fmt.Fprintln(a.stderr, "judge: -snapshots is required")
		fs.PrintDefaults()
		return errUsage
	}

	return a.judgeFile(ctx, *snapshots, *simulate)
}

// judgeFile runs one batch from path. A dry run starts a fresh audit log.
func (a *app) judgeFile(ctx context.Context, path string, simulate bool) error {
	snaps, err := readSnapshots(path)
	if err != nil {
		return err
	}

	mode := config.ModeLive
	var (
		opts     []service.Option
		auditLog *audit.Log
	)
	if simulate {
		mode = config.ModeSimulation
		auditLog = audit.NewLog(a.cfg.Files.AuditLog)
		if err := auditLog.Truncate(); err != nil {
			return err
		}
		opts = append(opts, service.WithAuditLog(auditLog))
	}

	outcomes := a.service(mode, opts...).ProcessBatch(ctx, snaps)

	failed := 0
	for _, o := range outcomes {
		fmt.Fprintf(a.stdout, "%s: %s\n", o.LinkID, o.Message)
		if o.Failed() {
			failed++
			continue
		}
		if o.Warning != "" {
			fmt.Fprintf(a.stdout, "%s: warning: %s\n", o.LinkID, o.Warning)
		}
		if o.Script != "" && !simulate {
			fmt.Fprintf(a.stdout, "%s: script: %s\n", o.LinkID, o.Script)
		}
	}

	if auditLog != nil {
		fmt.Fprintf(a.stdout, "Audit saved to %s\n", auditLog.Path())
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d snapshots failed", failed, len(outcomes))
	}
	return nil
}

// cmdWatch judges the drop file every time it is rewritten. Each write is a
// judgment cycle, so the feeding job should write once per day.
func cmdWatch(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet(a, "watch")
	snapshots := fs.String("snapshots", "", "snapshot drop file to watch (.json, .yaml)")
	simulate := fs.Bool("simulate", a.cfg.Mode.IsSimulation(), "dry run: write the audit log, leave the store untouched")
	debounce := fs.Duration("debounce", watcher.DefaultDebounce, "quiet period before a change is judged")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	if *snapshots == "" {
		fmt.Fprintln(a.stderr, "watch: -snapshots is required")
		fs.PrintDefaults()
		return errUsage
	}
	if _, err := codec.ForPath(*snapshots); err != nil {
		return err
	}

	w := watcher.New(*snapshots, func(path string) {
		if err := a.judgeFile(ctx, path, *simulate); err != nil {
			a.logger.Error("judge dropped batch", "path", path, "error", err)
		}
	}, a.logger).WithDebounce(*debounce)

	err := w.Watch(ctx)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func readSnapshots(path string) ([]domain.NodeSnapshot, error) {
	c, err := codec.ForPath(path)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open snapshots: %w", err)
	}
	defer f.Close()

	snaps, err := c.Parse(f)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return snaps, nil
}

func cmdReport(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet(a, "report")
	out := fs.String("out", a.cfg.Files.FinancialReport, "ledger CSV destination")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}

	if a.cfg.Mode.IsSimulation() {
		fmt.Fprintln(a.stdout, "Run in LIVE mode for report.")
		return domain.ErrSimulationMode
	}

	f, err := os.Create(*out)
	if err != nil {
		return fmt.Errorf("create report: %w", err)
	}

	summary, err := a.service(config.ModeLive).Report(ctx, f)
	if cerr := f.Close(); err == nil && cerr != nil {
		err = fmt.Errorf("close report: %w", cerr)
	}
	if err != nil {
		os.Remove(*out)
		return err
	}

	if err := summary.WriteText(a.stdout); err != nil {
		return err
	}
	fmt.Fprintf(a.stdout, "Detailed CSV exported to: %s\n", *out)
	return nil
}

func cmdStatus(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet(a, "status")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}

	svc := a.service(config.ModeLive)
	list, err := svc.Watchlist(ctx)
	if err != nil {
		return err
	}
	total, err := svc.TotalSavings(ctx)
	if err != nil {
		return err
	}

	source := a.cfgPath
	if source == "" {
		source = "built-in defaults"
	}
	fmt.Fprintf(a.stdout, "Config: %s\n%s\n\n", source, a.cfg.Summary())

	tw := tabwriter.NewWriter(a.stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "LINK\tOFFENSE\tSTARTED\tLAST SEEN\tDAYS\tREMAINING\tCLEAN STREAK")
	for _, e := range list {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%d\t%d/%d\n",
			e.LinkID, e.Offense,
			domain.FormatDate(e.StartDate), domain.FormatDate(e.LastSeen),
			e.DaysInJail, e.DaysRemaining,
			e.CleanStreak, a.machine.RedemptionDays())
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	fmt.Fprintf(a.stdout, "\n%d on probation, %s recovered to date\n",
		len(list), report.FormatUSD(decimal.NewFromFloat(total)))
	return nil
}

func cmdVerifyLedger(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet(a, "verify-ledger")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}

	svc := a.service(config.ModeLive)
	if err := svc.VerifyLedger(ctx); err != nil {
		return err
	}

	entries, err := svc.Ledger(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.stdout, "ledger OK (%d entries)\n", len(entries))
	return nil
}

func cmdServe(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet(a, "serve")
	addr := fs.String("addr", a.cfg.Server.Addr, "HTTP listen address")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}

	m := metrics.New(prometheus.DefaultRegisterer)

	eventBus := service.NewEventBus()
	sseHub := hub.New(a.logger)
	go sseHub.Run(ctx)

	// Connect event bus to SSE hub
	eventChan := make(chan service.Event, 100)
	eventBus.Subscribe(eventChan)
	go func() {
		for {
			select {
			case event := <-eventChan:
				sseHub.Publish(string(event.Type), event)
			case <-ctx.Done():
				return
			}
		}
	}()

	live := a.service(config.ModeLive, service.WithMetrics(m), service.WithEvents(eventBus))
	sim := a.service(config.ModeSimulation,
		service.WithMetrics(m),
		service.WithAuditLog(audit.NewLog(a.cfg.Files.AuditLog)))

	h := handler.NewJudgmentHandler(live, sim, a.logger)
	server := &http.Server{
		Addr:         *addr,
		Handler:      handler.NewRouter(h, sseHub, promhttp.Handler(), a.logger),
		ReadTimeout:  a.cfg.Server.ReadTimeout.Duration(),
		WriteTimeout: a.cfg.Server.WriteTimeout.Duration(),
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("server listening", "addr", *addr)
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	a.logger.Info("shutting down server")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	a.logger.Info("server stopped")
	return nil
}
