package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gamezone/internal/app"
	"gamezone/internal/app/session"
	"gamezone/internal/config"
	"gamezone/internal/utils"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
)

func main() {
	cliApp := &cli.App{
		Name:  "sweep",
		Usage: "close overdue sessions and roll running visits into their next slot",
		Flags: []cli.Flag{
			&cli.DurationFlag{
				Name:    "grace",
				Usage:   "how long past ends_at a session may run before it is swept",
				EnvVars: []string{"SWEEP_GRACE"},
			},
			&cli.IntFlag{
				Name:    "batch",
				Usage:   "maximum sessions handled per run",
				EnvVars: []string{"SWEEP_BATCH"},
			},
			&cli.DurationFlag{
				Name:  "timeout",
				Value: time.Minute,
				Usage: "abort the run after this long",
			},
		},
		Action: run,
	}

	if err := cliApp.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func run(c *cli.Context) error {
	logger, err := utils.NewLogger(os.Getenv("ENV"))
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Sync()

	utils.LoadEnv(logger)
	cfg := config.LoadConfig()
	if c.IsSet("grace") {
		cfg.SweepGrace = c.Duration("grace")
	}
	if c.IsSet("batch") {
		cfg.SweepBatch = c.Int("batch")
	}

	runner, cleanup, err := app.NewSweepRunner(&cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, c.Duration("timeout"))
	defer cancel()

	res, err := runner.RunOnce(ctx)
	if errors.Is(err, session.ErrSweepInFlight) {
		logger.Info("Another sweep is running, nothing to do")
		return nil
	}
	if err != nil {
		return err
	}

	logger.Info("Sweep finished",
		zap.Int("candidates", res.Candidates),
		zap.Int("rolled_over", res.RolledOver),
		zap.Int("ended", res.Ended),
		zap.Int("skipped", res.Skipped),
		zap.Int("failed", res.Failed),
	)
	return nil
}
