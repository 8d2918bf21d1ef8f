// Command linkmind audits link telemetry for waste, runs offending links
// through probation and reports the value recovered by liquidations.
//
// Usage:
//
//	linkmind [-config FILE] [-db PATH] [-mode MODE] <command> [flags]
//
// Commands:
//
//	init           write a default config and an example snapshot batch
//	judge          judge a snapshot batch (-snapshots FILE [-simulate])
//	watch          judge a drop file whenever it changes
//	report         export the ledger CSV and print the CFO report
//	status         print the probation watchlist
//	verify-ledger  check the ledger hash chain
//	serve          run the HTTP API
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"linkmind/internal/adapter"
	"linkmind/internal/config"
	"linkmind/internal/probation"
	"linkmind/internal/repository/sqlite"
	"linkmind/internal/rules"
	"linkmind/internal/service"
)

// errUsage marks bad invocations so main can exit with status 2
var errUsage = errors.New("usage")

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		if errors.Is(err, errUsage) {
			os.Exit(2)
		}
		fmt.Fprintf(os.Stderr, "linkmind: %v\n", err)
		os.Exit(1)
	}
}

// app holds what every command needs. store is nil for init.
type app struct {
	cfg        *config.Config
	cfgPath    string
	logger     *slog.Logger
	store      *sqlite.Repository
	engine     *rules.Engine
	machine    *probation.Machine
	generators *adapter.Registry
	stdout     io.Writer
	stderr     io.Writer
}

type command struct {
	run       func(context.Context, *app, []string) error
	needStore bool
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	global := flag.NewFlagSet("linkmind", flag.ContinueOnError)
	global.SetOutput(stderr)
	configPath := global.String("config", "", "config file (default: search LINKMIND_CONFIG, ./linkmind.yaml, XDG, /etc)")
	dbPath := global.String("db", "", "database path (overrides config)")
	modeName := global.String("mode", "", "live or simulation (overrides config)")
	global.Usage = func() {
		fmt.Fprintln(stderr, "usage: linkmind [-config FILE] [-db PATH] [-mode MODE] <init|judge|watch|report|status|verify-ledger|serve> [flags]")
		global.PrintDefaults()
	}

	if err := global.Parse(args); err != nil {
		return errUsage
	}
	if global.NArg() == 0 {
		global.Usage()
		return errUsage
	}

	cfg, path, err := loadConfig(*configPath)
	if err != nil {
		return err
	}

	if *dbPath != "" {
		cfg.Database.Path = *dbPath
	}
	if *modeName != "" {
		if cfg.Mode, err = config.ParseMode(*modeName); err != nil {
			fmt.Fprintf(stderr, "-mode: %v\n", err)
			return errUsage
		}
	}

	logger := cfg.Log.NewLogger(stderr)
	slog.SetDefault(logger)
	if path != "" {
		logger.Debug("config loaded", "path", path)
	}

	cmd, cmdArgs := global.Arg(0), global.Args()[1:]
	commands := map[string]command{
		"init":          {run: cmdInit},
		"judge":         {run: cmdJudge, needStore: true},
		"report":        {run: cmdReport, needStore: true},
		"status":        {run: cmdStatus, needStore: true},
		"verify-ledger": {run: cmdVerifyLedger, needStore: true},
		"watch":         {run: cmdWatch, needStore: true},
		"serve":         {run: cmdServe, needStore: true},
	}
	c, ok := commands[cmd]
	if !ok {
		fmt.Fprintf(stderr, "unknown command %q\n", cmd)
		global.Usage()
		return errUsage
	}

	a := &app{
		cfg:     cfg,
		cfgPath: path,
		logger:  logger,
		engine: rules.NewEngine(rules.Rates{
			LicensePerUnit:  cfg.Rates.LicensePerUnit,
			BandwidthPerMHz: cfg.Rates.BandwidthPerMHz,
		}),
		machine:    probation.NewMachine(cfg.Probation.ProbationDays, cfg.Probation.RedemptionDays),
		generators: adapter.DefaultRegistry(logger),
		stdout:     stdout,
		stderr:     stderr,
	}

	if c.needStore {
		store, err := sqlite.New(cfg.Database.Path)
		if err != nil {
			return fmt.Errorf("open database %s: %w", cfg.Database.Path, err)
		}
		defer store.Close()
		a.store = store
	}

	return c.run(ctx, a, cmdArgs)
}

func loadConfig(path string) (*config.Config, string, error) {
	if path != "" {
		return config.LoadFromPath(path)
	}
	return config.Load()
}

// service builds a judgment service in mode with the app's collaborators
func (a *app) service(mode config.Mode, opts ...service.Option) *service.JudgmentService {
	base := []service.Option{
		service.WithLogger(a.logger),
		service.WithMode(mode),
		service.WithGenerators(a.generators),
	}
	return service.NewJudgmentService(a.store, a.engine, a.machine, append(base, opts...)...)
}
