// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/bacx00/mrvl-livescore/pkg/catalog"
	"github.com/bacx00/mrvl-livescore/pkg/common"
	"github.com/bacx00/mrvl-livescore/pkg/config"
	"github.com/bacx00/mrvl-livescore/pkg/envelope"
	"github.com/bacx00/mrvl-livescore/pkg/metrics"
	"github.com/bacx00/mrvl-livescore/pkg/notify"
	"github.com/bacx00/mrvl-livescore/pkg/repository"
	"github.com/bacx00/mrvl-livescore/pkg/scoring"
	"github.com/bacx00/mrvl-livescore/pkg/server"
)

const (
	serviceName       = "mrvl-livescore"
	notifierQueueSize = 256
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("failed to load configuration")
	}
	common.SetupLogger(cfg.LogLevel, cfg.LogJSON)

	shutdownTracing, err := envelope.SetupTracing(cfg.ZipkinEndpoint, serviceName)
	if err != nil {
		logrus.WithError(err).Fatal("failed to set up tracing")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	scope := envelope.NewRootScope(ctx, "main", "")
	defer scope.Finish()

	if err = run(scope, cfg); err != nil {
		scope.Log.WithError(err).Error("livescore stopped with error")
	}

	if err = shutdownTracing(context.Background()); err != nil {
		scope.Log.WithError(err).Warn("failed to flush traces")
	}
	scope.Log.Info("livescore stopped")
}

func run(scope *envelope.Scope, cfg *config.Config) error {
	repo, closeRepo, err := openRepository(scope, cfg)
	if err != nil {
		return err
	}
	defer closeRepo()

	heroes := catalog.NewDefaultCatalog()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metricsCollector := metrics.NewMetrics(registry)

	group, groupCtx := errgroup.WithContext(scope.Ctx)
	groupScope := scope.WithContext(groupCtx)

	if cfg.HeroCatalogPath != "" {
		refresher := catalog.NewRefresher(heroes, cfg.HeroCatalogPath, cfg.HeroCatalogRefresh())
		if err = refresher.Refresh(scope); err != nil {
			return err
		}
		group.Go(func() error {
			return refresher.Run(groupScope)
		})
	}

	var listeners notify.Fanout
	sinks, closeSinks, err := openSinks(scope, cfg)
	if err != nil {
		return err
	}
	defer closeSinks()

	// dispatchers outlive the server so the batches flushed by engine.Close still go out.
	dispatchCtx, stopDispatch := context.WithCancel(context.Background())
	dispatchScope := scope.WithContext(dispatchCtx)
	var dispatchers errgroup.Group
	for _, sink := range sinks {
		dispatcher := notify.NewDispatcher(sink, notifierQueueSize, metricsCollector)
		listeners = append(listeners, dispatcher)
		dispatchers.Go(func() error {
			return dispatcher.Run(dispatchScope)
		})
	}

	engine := scoring.NewEngine(cfg, repo, heroes, metricsCollector, scoring.WithListener(listeners))

	group.Go(func() error {
		return server.New(cfg, engine, registry).ListenAndServe(groupCtx, scope)
	})

	err = group.Wait()

	engine.Close(scope)
	stopDispatch()
	_ = dispatchers.Wait()

	return err
}

func openRepository(scope *envelope.Scope, cfg *config.Config) (scoring.Repository, func(), error) {
	if cfg.DatabaseDriver == "" || cfg.DatabaseDriver == "memory" {
		scope.Log.Warn("using in-memory match store, state is lost on restart")
		return repository.NewMemory(), func() {}, nil
	}

	store, err := repository.Open(cfg.DatabaseDriver, cfg.DatabaseURL, cfg.StoreTimeout())
	if err != nil {
		return nil, nil, err
	}

	scope.Log.WithField("driver", cfg.DatabaseDriver).Info("match store ready")

	return store, func() {
		if err := store.Close(); err != nil {
			scope.Log.WithError(err).Error("failed to close match store")
		}
	}, nil
}

func openSinks(scope *envelope.Scope, cfg *config.Config) ([]notify.Sink, func(), error) {
	var sinks []notify.Sink
	closers := []func(){}
	closeAll := func() {
		for _, closeFn := range closers {
			closeFn()
		}
	}

	if cfg.AMQPURL != "" {
		publisher, err := notify.DialAMQP(cfg.AMQPURL, cfg.AMQPExchange)
		if err != nil {
			return nil, nil, err
		}
		sinks = append(sinks, publisher)
		closers = append(closers, func() {
			if err := publisher.Close(); err != nil {
				scope.Log.WithError(err).Warn("failed to close amqp publisher")
			}
		})
		scope.Log.WithField("exchange", cfg.AMQPExchange).Info("amqp notifications enabled")
	}

	if cfg.ArchiveBucket != "" {
		client, err := notify.NewS3Client(scope.Ctx, notify.ArchiveConfig{
			Bucket:          cfg.ArchiveBucket,
			Endpoint:        cfg.ArchiveEndpoint,
			Region:          cfg.ArchiveRegion,
			AccessKeyID:     cfg.ArchiveAccessKeyID,
			SecretAccessKey: cfg.ArchiveSecretAccessKey,
		})
		if err != nil {
			closeAll()
			return nil, nil, err
		}
		sinks = append(sinks, notify.NewArchiver(client, cfg.ArchiveBucket))
		scope.Log.WithField("bucket", cfg.ArchiveBucket).Info("match archive enabled")
	}

	return sinks, closeAll, nil
}
