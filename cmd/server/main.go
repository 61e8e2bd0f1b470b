package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/blukai/fourparty/internal/gameserver"
	"github.com/blukai/fourparty/internal/metrics"
	"github.com/hashicorp/go-multierror"
	"github.com/kelseyhightower/envconfig"
	"github.com/phuslu/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

type Config struct {
	Addr         string        `envconfig:"ADDR" default:"127.0.0.1:8080"`
	MetricsAddr  string        `envconfig:"METRICS_ADDR"`
	InitTimeout  time.Duration `envconfig:"INIT_TIMEOUT" default:"30s"`
	MoveTimeout  time.Duration `envconfig:"MOVE_TIMEOUT" default:"2m"`
	WriteTimeout time.Duration `envconfig:"WRITE_TIMEOUT" default:"5s"`
	LogLevel     string        `envconfig:"LOG_LEVEL" default:"info"`
}

func loadConfig() (*Config, error) {
	config := new(Config)
	if err := envconfig.Process("fourparty", config); err != nil {
		return nil, err
	}
	return config, nil
}

func configureLogger(level string) *log.Logger {
	logger := log.DefaultLogger

	// https://github.com/phuslu/log?tab=readme-ov-file#pretty-console-writer
	logger.Level = log.ParseLevel(level)
	logger.Caller = 1
	logger.TimeFormat = "15:04:05"
	logger.Writer = &log.ConsoleWriter{
		ColorOutput:    true,
		QuoteString:    true,
		EndWithMessage: true,
	}

	return &logger
}

func erringMain() error {
	config, err := loadConfig()
	if err != nil {
		return fmt.Errorf("could not process config: %w", err)
	}

	logger := configureLogger(config.LogLevel)

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	gameServer, err := gameserver.NewGameServer(
		"tcp",
		config.Addr,
		logger,
		gameserver.WithInitTimeout(config.InitTimeout),
		gameserver.WithMoveTimeout(config.MoveTimeout),
		gameserver.WithWriteTimeout(config.WriteTimeout),
		gameserver.WithMetrics(metrics.New(metrics.WithRegistry(registry))),
	)
	if err != nil {
		return fmt.Errorf("could not construct game server: %w", err)
	}
	logger.Info().Msgf("started game server on %s", gameServer.Addr())

	wg := new(sync.WaitGroup)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var runErr error
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := gameServer.Run(ctx); err != nil {
			runErr = multierror.Append(runErr, fmt.Errorf("game server run failed: %w", err))
		}
	}()

	var metricsServer *http.Server
	if config.MetricsAddr != "" {
		metricsServer = &http.Server{
			Addr:              config.MetricsAddr,
			Handler:           metrics.NewRouter(registry),
			ReadHeaderTimeout: 5 * time.Second,
		}
		logger.Info().Msgf("serving metrics on %s", config.MetricsAddr)

		wg.Add(1)
		go func() {
			defer wg.Done()
			err := metricsServer.ListenAndServe()
			if err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error().Msgf("metrics server failed: %v", err)
				// nothing to serve metrics for without the game server
				cancel()
			}
		}()
	}

	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, syscall.SIGTERM, syscall.SIGINT)

	select {
	case sig := <-signalChan:
		logger.Info().Msgf("received %+v signal", sig)
	case <-ctx.Done():
	}

	cancel()
	if metricsServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			logger.Error().Msgf("could not shut down metrics server: %v", err)
		}
	}
	wg.Wait()

	return runErr
}

func main() {
	if err := erringMain(); err != nil {
		fmt.Fprintf(os.Stderr, "fourparty server: %v\n", err)
		os.Exit(1)
	}
}
