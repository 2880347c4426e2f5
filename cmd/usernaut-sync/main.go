// Command usernaut-sync runs the directory reconciliation engine as a
// single long-lived process: it loads configuration, connects the
// Postgres-backed Directory Store, builds the IdP Admin Client factory,
// starts the cron-driven Scheduled Driver, and blocks until SIGINT or
// SIGTERM, then stops the driver.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/redhat-data-and-ai/usernaut-sync/pkg/config"
	"github.com/redhat-data-and-ai/usernaut-sync/pkg/idp"
	"github.com/redhat-data-and-ai/usernaut-sync/pkg/logger"
	"github.com/redhat-data-and-ai/usernaut-sync/pkg/reconcile"
	"github.com/redhat-data-and-ai/usernaut-sync/pkg/scheduler"
	"github.com/redhat-data-and-ai/usernaut-sync/pkg/store/gormstore"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("failed to load configuration")
	}

	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.Init(level, &logrus.JSONFormatter{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	log := logger.Logger(ctx)

	if !cfg.SyncEnabled {
		log.Info("usernaut-sync disabled (OIDC_SYNC_ENABLED=false), exiting")
		return
	}

	directoryStore, err := gormstore.New(&gormstore.Config{DSN: cfg.DBDSN})
	if err != nil {
		log.WithError(err).Fatal("failed to connect to directory store")
	}

	var lease *scheduler.Lease
	if cfg.RedisAddr != "" {
		lease, err = scheduler.NewLease(&scheduler.LeaseConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		})
		if err != nil {
			log.WithError(err).Warn("failed to connect to redis, proceeding without the distributed lease")
			lease = nil
		}
	}

	clientID := cfg.ClientID
	clientSecret := cfg.ClientSecret

	driver := scheduler.New(scheduler.Config{
		Store: directoryStore,
		NewIdPClient: func() *idp.Client {
			return idp.New(idp.Config{
				AdminURL:     cfg.AdminURL,
				Realm:        cfg.Realm,
				ClientID:     clientID,
				ClientSecret: clientSecret,
			})
		},
		Lease: lease,
		Options: reconcile.Options{
			AvatarOriginHints: cfg.AvatarOriginHints,
		},
		ReplicaCount: cfg.ReplicaCount,
		ReplicaIndex: cfg.ReplicaIndex,
		TickInterval: cfg.TickInterval,
	})

	if err := driver.Start(ctx, cfg.TickInterval); err != nil {
		log.WithError(err).Fatal("failed to start scheduled driver")
	}
	log.WithField("tickInterval", cfg.TickInterval).Info("usernaut-sync started")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Info("shutting down")
	driver.Stop()
	if lease != nil {
		_ = lease.Close()
	}
}
