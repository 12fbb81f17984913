// Copyright 2025 UMH Systems GmbH
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/corda/corda-runtime-os-sub044/pkg/config"
	"github.com/corda/corda-runtime-os-sub044/pkg/constants"
	"github.com/corda/corda-runtime-os-sub044/pkg/env"
	"github.com/corda/corda-runtime-os-sub044/pkg/lifecycle"
	"github.com/corda/corda-runtime-os-sub044/pkg/logger"
	"github.com/corda/corda-runtime-os-sub044/pkg/metrics"
	"github.com/corda/corda-runtime-os-sub044/pkg/sentry"
	"github.com/corda/corda-runtime-os-sub044/pkg/starvationchecker"
	"github.com/corda/corda-runtime-os-sub044/pkg/statusapi"
)

// appVersion is set with -ldflags "-X main.appVersion=...".
var appVersion = constants.DefaultAppVersion

func main() {
	initLogger()

	sentry.InitSentry(appVersion, true)

	log := logger.For(logger.ComponentCore)
	log.Infow("Starting lifecycle demo", "version", appVersion)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := loadSettings()
	if err != nil {
		sentry.ReportIssuef(sentry.IssueTypeFatal, log, "Failed to read settings: %v", err)
		os.Exit(1)
	}

	metricsServer := metrics.SetupMetricsEndpoint(cfg.metricsAddr)
	defer shutdown(log, "metrics server", metricsServer.Shutdown)

	registry := lifecycle.NewRegistry()
	metrics.RegisterDebugProvider("coordinators", registry)
	defer metrics.UnregisterDebugProvider("coordinators")

	pool := lifecycle.NewWorkerPool(cfg.workerCount, nil)
	defer shutdown(log, "worker pool", pool.Shutdown)

	checker := starvationchecker.NewStarvationChecker(pool, cfg.starvationThreshold, constants.StarvationCheckInterval)
	defer checker.Stop()

	factory := lifecycle.NewCoordinatorFactory(registry, pool, nil, nil)

	source, err := openConfigSource(ctx, cfg.configPath, log)
	if err != nil {
		sentry.ReportIssuef(sentry.IssueTypeFatal, log, "Failed to open configuration: %v", err)
		os.Exit(1)
	}

	readService, err := config.NewReadService(factory, source, nil)
	if err != nil {
		sentry.ReportIssuef(sentry.IssueTypeFatal, log, "Failed to create configuration read service: %v", err)
		os.Exit(1)
	}
	defer readService.Close()

	if err := readService.Bootstrap(map[string]any{"version": appVersion}); err != nil {
		sentry.ReportIssuef(sentry.IssueTypeFatal, log, "Failed to bootstrap configuration: %v", err)
		os.Exit(1)
	}

	demo, err := newDemo(factory, readService)
	if err != nil {
		sentry.ReportIssuef(sentry.IssueTypeFatal, log, "Failed to create components: %v", err)
		os.Exit(1)
	}
	defer demo.Close()

	if err := readService.Start(); err != nil {
		sentry.ReportIssuef(sentry.IssueTypeFatal, log, "Failed to start configuration read service: %v", err)
		os.Exit(1)
	}

	demo.Start()

	go statusLogger(ctx, demo)

	api, err := statusapi.NewServer(registry, &statusapi.ServerConfig{
		Addr: fmt.Sprintf(":%d", cfg.statusAPIPort),
	}, nil)
	if err != nil {
		sentry.ReportIssuef(sentry.IssueTypeFatal, log, "Failed to create status API: %v", err)
		os.Exit(1)
	}

	go func() {
		if err := api.Start(ctx); err != nil {
			sentry.ReportIssuef(sentry.IssueTypeError, log, "Status API stopped: %v", err)
		}
	}()
	defer shutdown(log, "status API", api.Stop)

	<-ctx.Done()
	log.Info("Shutting down")
}

// initLogger installs the global logger with the sentry hook around its core.
func initLogger() {
	// Neither variable is required, so errors cannot occur.
	level, _ := env.GetAsString(logger.EnvLogLevel, false, string(logger.ProductionLevel))
	format, _ := env.GetAsString(logger.EnvLogFormat, false, string(logger.FormatPretty))

	base := logger.New(level, logger.LogFormat(strings.ToUpper(format)))
	logger.InitializeWith(logger.NewWithCore(sentry.NewSentryHook(base.Core())))
}

type settings struct {
	configPath          string
	metricsAddr         string
	workerCount         int
	statusAPIPort       int
	starvationThreshold time.Duration
}

func loadSettings() (settings, error) {
	var (
		s   settings
		err error
	)

	if s.configPath, err = env.GetAsString(env.ConfigPath, false, ""); err != nil {
		return s, err
	}

	if s.metricsAddr, err = env.GetAsString(env.MetricsAddr, false, constants.DefaultMetricsAddr); err != nil {
		return s, err
	}

	if s.workerCount, err = env.GetAsInt(env.WorkerCount, false, constants.DefaultWorkerCount); err != nil {
		return s, err
	}

	if s.statusAPIPort, err = env.GetAsInt(env.StatusAPIPort, false, constants.DefaultStatusAPIPort); err != nil {
		return s, err
	}

	s.starvationThreshold, err = env.GetAsDuration(env.StarvationThreshold, false, constants.StarvationThreshold)

	return s, err
}

// openConfigSource watches the file at path, or falls back to a fixed
// in-memory configuration when path is empty.
func openConfigSource(ctx context.Context, path string, log *zap.SugaredLogger) (config.Feed, error) {
	if path == "" {
		log.Info("No CONFIG_PATH set, using built-in configuration")

		feed := config.NewMemoryFeed()
		if err := feed.Replace(defaultConfig()); err != nil {
			return nil, err
		}

		return feed, nil
	}

	feed, err := config.NewFileFeed(path, nil)
	if err != nil {
		return nil, err
	}

	if err := feed.Watch(ctx); err != nil {
		return nil, errors.Join(err, feed.Close())
	}

	return feed, nil
}

// statusLogger logs the component statuses until ctx is done.
func statusLogger(ctx context.Context, d *demo) {
	ticker := time.NewTicker(constants.StatusLogInterval)
	defer ticker.Stop()

	log := logger.For("StatusLogger")

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			log.Infof("Components: %s", d)
		}
	}
}

func shutdown(log *zap.SugaredLogger, what string, fn func(context.Context) error) {
	// Leave room for the remaining deferred shutdowns within a 5s kill timeout.
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	if err := fn(ctx); err != nil {
		sentry.ReportIssuef(sentry.IssueTypeError, log, "Failed to shut down %s: %v", what, err)
	}
}
