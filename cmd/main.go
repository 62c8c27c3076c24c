package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/okian/tourney-ingest/internal/adapters/http/api"
	service "github.com/okian/tourney-ingest/internal/app"
	"github.com/okian/tourney-ingest/internal/config"
	"github.com/okian/tourney-ingest/pkg/logger"
)

// Process exit codes.
const (
	exitOK      = 0
	exitFailure = 1
	exitUsage   = 2
)

// Commands.
const (
	cmdRun       = "run"
	cmdIngest    = "ingest"
	cmdNormalize = "normalize"
)

const usage = "usage: tourney-ingest [run|ingest|normalize [log]]"

var errUsage = errors.New(usage)

// command is a parsed invocation.
type command struct {
	name    string
	logPath string
}

func parseArgs(args []string) (command, error) {
	if len(args) == 0 {
		return command{name: cmdRun}, nil
	}
	switch args[0] {
	case cmdRun, cmdIngest:
		if len(args) > 1 {
			return command{}, errUsage
		}
		return command{name: args[0]}, nil
	case cmdNormalize:
		if len(args) > 2 {
			return command{}, errUsage
		}
		c := command{name: cmdNormalize}
		if len(args) == 2 {
			c.logPath = args[1]
		}
		return c, nil
	default:
		return command{}, fmt.Errorf("%w: unknown command %q", errUsage, args[0])
	}
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	cmd, err := parseArgs(args)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return exitUsage
	}

	// Load configuration (defaults -> optional file -> env)
	cfg, err := config.Load()
	if err != nil {
		// Logger isn't configured yet.
		fmt.Fprintln(stderr, "failed to load config:", err)
		return exitFailure
	}

	if err := logger.Init(logger.WithFormat(cfg.LogFormat)); err != nil {
		fmt.Fprintln(stderr, "failed to initialize logging:", err)
		return exitFailure
	}
	defer func() { _ = logger.Sync() }()
	log := logger.Get()

	// Root context with cancel on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		log.Warn(ctx, "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}

	svc, err := service.FromConfig(ctx, cfg, service.WithLogger(log))
	if err != nil {
		log.Error(ctx, "failed to build pipeline", logger.Error(err))
		return exitFailure
	}
	defer func() {
		if err := svc.Close(); err != nil {
			log.Warn(ctx, "close failed", logger.Error(err))
		}
	}()

	if cfg.MetricsAddr != "" {
		srv := api.NewServer(api.StatsFunc(func(ctx context.Context) any { return svc.Stats(ctx) })).WithLogger(log)
		listenCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		go func() {
			if err := srv.ListenAndServe(listenCtx, cfg.MetricsAddr); err != nil {
				log.Error(ctx, "metrics listener failed", logger.Error(err))
			}
		}()
	}

	if err := execute(ctx, svc, cmd, stdout); err != nil {
		log.Error(ctx, "pipeline failed", logger.String("command", cmd.name), logger.Error(err))
		return exitFailure
	}
	return exitOK
}

// summary is printed on stdout when a command completes.
type summary struct {
	Ingest    *service.RunReport       `json:"ingest,omitempty"`
	Normalize *service.NormalizeReport `json:"normalize,omitempty"`
}

func execute(ctx context.Context, svc *service.Service, cmd command, out io.Writer) error {
	var (
		s   summary
		err error
	)
	switch cmd.name {
	case cmdIngest:
		var rep service.RunReport
		rep, err = svc.Ingest(ctx)
		s.Ingest = &rep
	case cmdNormalize:
		var rep service.NormalizeReport
		rep, err = svc.Normalize(ctx, cmd.logPath)
		s.Normalize = &rep
	default:
		var (
			runRep  service.RunReport
			normRep service.NormalizeReport
		)
		runRep, normRep, err = svc.Run(ctx)
		s.Ingest, s.Normalize = &runRep, &normRep
	}
	if err != nil {
		return err
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(s); err != nil {
		return fmt.Errorf("write summary: %w", err)
	}
	return nil
}
