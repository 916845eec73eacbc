package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"expenses/internal/backend"
	"expenses/internal/cli"
	"expenses/internal/commands"
	"expenses/internal/config"
	"expenses/internal/log"
	"expenses/internal/storage"
)

func main() {
	cli.LoadEnvFile()
	cfg := config.Load()

	// Logs go to stderr so that exported CSV on stdout stays clean.
	logCfg := log.DefaultConfig()
	logCfg.Level = log.ParseLevel(cfg.LogLevel)
	logCfg.Component = log.ComponentCLI
	logCfg.Output = os.Stderr
	logger := log.New(logCfg)
	log.SetDefault(logger)

	root := commands.NewRootCommand(commands.Options{
		Location: cfg.Location(),
		Open: func(ctx context.Context) (storage.Store, func() error, error) {
			if err := cfg.Validate(); err != nil {
				return nil, nil, err
			}
			bcfg, err := backend.FromAppConfig(cfg)
			if err != nil {
				return nil, nil, err
			}
			res, err := backend.NewFactory(logger.WithComponent(log.ComponentBackend)).Create(ctx, bcfg)
			if err != nil {
				return nil, nil, err
			}
			return res.Store, res.Cleanup, nil
		},
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := root.ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}
