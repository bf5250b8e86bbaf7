package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/inkyu/botkeeper"
	"github.com/inkyu/botkeeper/internal/logger"
)

const shutdownTimeout = 30 * time.Second

func runServe(flags *ServeFlags, args []string) error {
	configPath := flags.ConfigPath
	if len(args) > 0 {
		configPath = args[0]
	}
	if configPath == "" {
		return fmt.Errorf("config file required for serve command. Use --config=config.toml or provide as argument")
	}

	cfg, err := botkeeper.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("error loading config: %w", err)
	}

	if flags.Daemonize {
		return daemonize(flags.PidFile, flags.LogFile)
	}

	log := logger.NewDaemonLogger(cfg.Log.Level, cfg.Log.Color)

	store, err := botkeeper.NewStore(cfg.Store.DSN)
	if err != nil {
		return fmt.Errorf("failed to open status store: %w", err)
	}
	defer func() { _ = store.Close() }()
	if err := store.EnsureSchema(context.Background()); err != nil {
		return fmt.Errorf("failed to prepare status store: %w", err)
	}

	var sinks []botkeeper.HistorySink
	if ch := cfg.History.ClickHouse; ch != nil {
		sink, err := botkeeper.NewClickHouseSink(ch.Addr, ch.Database, ch.Username, ch.Password, ch.Table)
		if err != nil {
			return fmt.Errorf("failed to open clickhouse sink: %w", err)
		}
		defer func() { _ = sink.Close() }()
		if err := sink.EnsureSchema(context.Background()); err != nil {
			return fmt.Errorf("failed to prepare clickhouse table: %w", err)
		}
		sinks = append(sinks, sink)
	}

	if err := botkeeper.RegisterMetricsDefault(); err != nil {
		log.Warn("failed to register metrics", "error", err)
	}
	if cfg.Server.MetricsListen != "" {
		go func() {
			if err := botkeeper.ServeMetrics(cfg.Server.MetricsListen); err != nil {
				log.Error("metrics server error", "error", err)
			}
		}()
	}

	sup := botkeeper.New(store, botkeeper.NewProcFactory(), botkeeper.Options{
		PollInterval: cfg.Supervise.PollInterval,
		StopWait:     cfg.Supervise.StopWait,
		Logger:       log,
		Sinks:        sinks,
	})

	for _, w := range cfg.Workers {
		if !w.Autostart {
			continue
		}
		if err := sup.Start(context.Background(), w.Owner, w.Config); err != nil {
			log.Error("autostart failed", "owner", w.Owner, "error", err)
		}
	}

	server := botkeeper.NewHTTPServer(cfg.Server.Listen, cfg.Server.BasePath, sup)
	log.Info("daemon started", "listen", cfg.Server.Listen, "base_path", cfg.Server.BasePath)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Warn("http shutdown", "error", err)
	}
	if err := sup.Shutdown(ctx); err != nil {
		log.Warn("supervisor shutdown", "error", err)
	}
	_ = removePidFile(flags.PidFile)
	return nil
}
