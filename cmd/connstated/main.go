package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/multierr"

	"connstate/internal/app"
	"connstate/internal/config"
	"connstate/internal/logging"
)

func main() {
	var (
		configPath = flag.String("config", "connstate.yaml", "path to configuration file (YAML)")
		addr       = flag.String("addr", "", "listen address, overrides listen_addr")
	)
	flag.Parse()

	if err := run(*configPath, *addr); err != nil {
		fmt.Fprintf(os.Stderr, "connstated: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath, addr string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if addr != "" {
		cfg.ListenAddr = addr
	}
	if _, err := logging.Setup(cfg.LogLevel, cfg.LogFormat, os.Stderr); err != nil {
		return fmt.Errorf("configure logging: %w", err)
	}
	log := logging.Logger("main")
	log.Info("configuration loaded", "path", configPath, "source", cfg.Source, "addr", cfg.ListenAddr)

	fxApp := app.New(cfg)

	startCtx, cancelStart := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancelStart()
	startErr := fxApp.Start(startCtx)

	if startErr == nil {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		<-ctx.Done()
		stop()
		log.Info("shutting down")
	}

	stopCtx, cancelStop := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelStop()
	return multierr.Append(startErr, fxApp.Stop(stopCtx))
}
