/*
 * Copyright 2025 Carver Automation Corporation.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/carverauto/presence/pkg/capture"
	"github.com/carverauto/presence/pkg/config"
	"github.com/carverauto/presence/pkg/db"
	"github.com/carverauto/presence/pkg/lifecycle"
	"github.com/carverauto/presence/pkg/logger"
	"github.com/carverauto/presence/pkg/models"
	"github.com/carverauto/presence/pkg/natsutil"
	"github.com/carverauto/presence/pkg/presence"
	"github.com/carverauto/presence/pkg/version"
)

var (
	ErrCNPGPasswordRequired = errors.New("CNPG password is required; set it in config or provide CNPG_PASSWORD_FILE from a mounted secret")
	ErrCNPGPasswordEmpty    = errors.New("CNPG password file is empty")
)

const serviceName = "presence"

func main() {
	if err := run(); err != nil {
		log.Fatalf("presence: %v", err)
	}
}

func run() error {
	configPath := flag.String("config", "/etc/presence/presence.json", "Path to config file")
	dump := flag.Int("dump", 0, "Print the last N stored events as JSON lines and exit (negative prints all)")
	showVersion := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.GetFullVersion())
		return nil
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var cfg models.PresenceConfig
	if err := loadConfig(ctx, *configPath, &cfg, *dump != 0); err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	if err := applyCNPGPassword(&cfg); err != nil {
		return err
	}

	logCfg := cfg.Logging
	if logCfg == nil {
		logCfg = logger.DefaultConfig()
	}

	if err := lifecycle.InitializeLogger(ctx, logCfg); err != nil {
		return err
	}

	defer func() {
		if err := lifecycle.ShutdownLogger(); err != nil {
			log.Printf("Failed to shut down logger: %v", err)
		}
	}()

	svcLog, err := lifecycle.CreateComponentLogger(ctx, "presence", logCfg)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	dbLog, err := lifecycle.CreateComponentLogger(ctx, "store", logCfg)
	if err != nil {
		return fmt.Errorf("failed to initialize store logger: %w", err)
	}

	store, err := db.Open(ctx, &cfg.Store, dbLog)
	if err != nil {
		return err
	}

	defer func() {
		if err := store.Close(); err != nil {
			svcLog.Error().Err(err).Msg("Failed to close sighting store")
		}
	}()

	if *dump != 0 {
		return dumpEvents(ctx, store, *dump, os.Stdout)
	}

	ctx, shutdownTelemetry := startTelemetry(ctx, &cfg, logCfg, svcLog)
	defer shutdownTelemetry()

	trackerCfg, err := presence.ConfigFromModel(&cfg)
	if err != nil {
		return err
	}

	var opts []presence.Option

	if cfg.Events != nil && cfg.Events.Enabled {
		pub, closeNATS, err := connectPublisher(ctx, &cfg, svcLog)
		if err != nil {
			return err
		}
		defer closeNATS()

		opts = append(opts, presence.WithNotifier(pub))
	}

	tracker, err := presence.NewTracker(trackerCfg, store, svcLog, opts...)
	if err != nil {
		return err
	}

	captureLog, err := lifecycle.CreateComponentLogger(ctx, "capture", logCfg)
	if err != nil {
		return fmt.Errorf("failed to initialize capture logger: %w", err)
	}

	src, err := capture.Open(capture.SourceConfig{
		Interface: cfg.Interface,
		PcapFile:  cfg.PcapFile,
		SnapLen:   cfg.SnapLen,
	}, captureLog)
	if err != nil {
		return err
	}
	defer src.Close()

	svcLog.Info().
		Str("version", version.GetVersion()).
		Strs("targets", trackerCfg.Targets.Strings()).
		Dur("alert_threshold", trackerCfg.AlertThreshold).
		Str("driver", cfg.Store.Driver).
		Msg("Presence tracker started")

	stats, err := capture.NewDispatcher(tracker, captureLog).Run(ctx, src.Packets())
	if errors.Is(err, context.Canceled) {
		svcLog.Info().Uint64("packets", stats.Packets).Msg("Shutting down")
		return nil
	}

	return err
}

// loadConfig validates the whole configuration, or only the store section
// when storeOnly is set for -dump.
func loadConfig(ctx context.Context, path string, cfg *models.PresenceConfig, storeOnly bool) error {
	loader := config.NewConfig(nil)

	if !storeOnly {
		return loader.LoadAndValidate(ctx, path, cfg)
	}

	if err := loader.Load(ctx, path, cfg); err != nil {
		return err
	}

	return cfg.ValidateStore()
}

// startTelemetry wires OTLP metrics and tracing when enabled. The returned
// func flushes whatever was started.
func startTelemetry(ctx context.Context, cfg *models.PresenceConfig, logCfg *logger.Config, log logger.Logger) (context.Context, func()) {
	if cfg.Metrics == nil || !cfg.Metrics.Enabled {
		return ctx, func() {}
	}

	_, err := logger.InitializeMetrics(ctx, logger.MetricsConfig{
		ServiceName:    serviceName,
		ServiceVersion: version.GetVersion(),
		OTel:           &logCfg.OTel,
		ExportInterval: time.Duration(cfg.Metrics.ExportInterval),
	})

	switch {
	case errors.Is(err, logger.ErrOTelMetricsDisabled):
		log.Warn().Msg("Metrics enabled but logging.otel has no endpoint; metrics stay local")
	case err != nil:
		log.Error().Err(err).Msg("Failed to initialize metrics")
	}

	if !cfg.Metrics.Tracing {
		return ctx, func() {}
	}

	tp, traceCtx, rootSpan, err := logger.InitializeTracing(ctx, logger.TracingConfig{
		ServiceName:    serviceName,
		ServiceVersion: version.GetVersion(),
		Logger:         log,
		OTel:           &logCfg.OTel,
	})
	if err != nil {
		log.Error().Err(err).Msg("Failed to initialize tracing")
		return ctx, func() {}
	}

	return traceCtx, func() {
		rootSpan.End()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := tp.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Failed to shut down tracer provider")
		}
	}
}

func connectPublisher(ctx context.Context, cfg *models.PresenceConfig, log logger.Logger) (*natsutil.EventPublisher, func(), error) {
	nc, err := natsutil.ConnectWithSecurity(ctx, cfg.NATS.URL, cfg.NATS.Security, log)
	if err != nil {
		return nil, nil, err
	}

	pub, err := natsutil.CreateEventPublisherWithDomain(ctx, nc, cfg.NATS.Domain, cfg.Events.StreamName, cfg.Events.Subjects, log)
	if err != nil {
		nc.Close()
		return nil, nil, err
	}

	return pub, func() {
		if err := nc.Drain(); err != nil {
			log.Warn().Err(err).Msg("Failed to drain NATS connection")
		}
	}, nil
}

// applyCNPGPassword ensures the CNPG password is sourced from a mounted secret file, not env.
func applyCNPGPassword(cfg *models.PresenceConfig) error {
	if cfg == nil || cfg.Store.Driver != models.StoreDriverCNPG || cfg.Store.CNPG == nil {
		return nil
	}

	if cfg.Store.CNPG.Password != "" {
		return nil
	}

	pwPath := os.Getenv("CNPG_PASSWORD_FILE")
	if pwPath == "" {
		return ErrCNPGPasswordRequired
	}

	data, err := os.ReadFile(pwPath)
	if err != nil {
		return fmt.Errorf("read CNPG password file: %w", err)
	}

	pwd := strings.TrimSpace(string(data))
	if pwd == "" {
		return fmt.Errorf("%w: %s", ErrCNPGPasswordEmpty, pwPath)
	}

	cfg.Store.CNPG.Password = pwd

	return nil
}
