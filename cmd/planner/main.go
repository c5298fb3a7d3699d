// Package main - операторский CLI study-pace.
//
// Команды работают поверх того же движка, что и worker:
//
//	planner today     --user <id> [--max N]
//	planner missed    --user <id>
//	planner capacity  --user <id> [--recalculate]
//	planner plans     --user <id>
//	planner classify  --answers '<json>'
//	planner onboard   --user <id> --answers '<json>' [--plan <id>]
//	planner readiness --user <id> --sleep 7.5 --hrv 55
//	planner streak    --user <id>
//	planner drain
//	planner queue
//	planner migrate   [status|up|rollback]
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/alem-hub/study-pace/config"
	"github.com/alem-hub/study-pace/internal/app"
	"github.com/alem-hub/study-pace/pkg/logger"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:]); err != nil {
		if !errors.Is(err, pflag.ErrHelp) {
			fmt.Fprintf(os.Stderr, "planner: %v\n", err)
		}
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	global := pflag.NewFlagSet("planner", pflag.ContinueOnError)
	global.SetInterspersed(false)
	configPath := global.String("config", "", "optional config file (yaml, toml or json)")
	logLevel := global.String("log-level", "", "override OBSERVABILITY_LOG_LEVEL")
	global.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: planner [--config file] <command> [flags]\n\ncommands:\n")
		for _, c := range commands {
			fmt.Fprintf(os.Stderr, "  %-10s %s\n", c.name, c.summary)
		}
		fmt.Fprintf(os.Stderr, "\nglobal flags:\n%s", global.FlagUsages())
	}
	if err := global.Parse(args); err != nil {
		return err
	}
	if global.NArg() == 0 {
		global.Usage()
		return pflag.ErrHelp
	}

	cmd, ok := lookup(global.Arg(0))
	if !ok {
		global.Usage()
		return fmt.Errorf("unknown command %q", global.Arg(0))
	}

	cfg, err := config.LoadFile(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	level := cfg.Observability.LogLevel
	if *logLevel != "" {
		level = *logLevel
	}

	log, err := logger.New(logger.Options{
		Level:  level,
		Format: "console",
		Name:   "planner",
	})
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	engine, err := app.Build(ctx, cfg, log, app.Options{})
	if err != nil {
		return err
	}
	defer engine.Close()

	c := &cli{engine: engine, out: os.Stdout}
	if engine.Migrator != nil {
		c.migrations = engine.Migrator
	}
	return c.exec(ctx, cmd, global.Args()[1:])
}
