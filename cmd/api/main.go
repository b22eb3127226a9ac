package main

import (
	"context"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/Wikid82/sentinel/internal/config"
	"github.com/Wikid82/sentinel/internal/database"
	"github.com/Wikid82/sentinel/internal/geoip"
	"github.com/Wikid82/sentinel/internal/logger"
	"github.com/Wikid82/sentinel/internal/metrics"
	"github.com/Wikid82/sentinel/internal/models"
	"github.com/Wikid82/sentinel/internal/sentinel"
	"github.com/Wikid82/sentinel/internal/server"
	"github.com/Wikid82/sentinel/internal/services"
	"github.com/Wikid82/sentinel/internal/store"
	"github.com/Wikid82/sentinel/internal/version"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.Log().WithError(err).Fatal("load config")
	}

	// Setup logging with rotation
	if err := os.MkdirAll(cfg.LogDir, 0o755); err != nil {
		cfg.LogDir = filepath.Join("data", "logs")
		_ = os.MkdirAll(cfg.LogDir, 0o755)
	}
	rotator := &lumberjack.Logger{
		Filename:   filepath.Join(cfg.LogDir, "sentinel.log"),
		MaxSize:    10, // megabytes
		MaxBackups: 3,
		MaxAge:     28, // days
		Compress:   true,
	}
	defer rotator.Close()
	logger.Init(cfg.Debug, io.MultiWriter(os.Stdout, rotator))

	stores, err := store.Open(cfg.DataDir)
	if err != nil {
		logger.Log().WithError(err).Fatal("open sentinel stores")
	}

	db, err := database.Connect(cfg.DatabasePath)
	if err != nil {
		logger.Log().WithError(err).Fatal("connect database")
	}
	defer database.Close(db)

	// Handle CLI commands
	if len(os.Args) > 1 && isCommand(os.Args[1]) {
		if err := db.AutoMigrate(&models.SecurityAudit{}, &models.SecurityDecision{}); err != nil {
			logger.Log().WithError(err).Fatal("auto migrate")
		}
		svc := services.NewSentinelService(stores, db)
		if err := runCommand(os.Stdout, os.Args[1:], svc); err != nil {
			logger.Log().WithError(err).Fatal(os.Args[1])
		}
		return
	}

	logger.Log().Infof("starting %s on version %s", version.Name, version.Full())

	sc, err := stores.Config.Load()
	switch {
	case store.IsStorageError(err):
		logger.Log().WithError(err).Warn("sentinel configuration unreadable, using defaults")
	case err != nil:
		logger.Log().WithField("path", stores.Config.Path()).Info("created default sentinel configuration")
	}
	if sc.Debug {
		logger.SetDebug(true)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics.Register(registry)

	var geo *geoip.Resolver
	if cfg.GeoIPPath != "" {
		if geo, err = geoip.Open(cfg.GeoIPPath); err != nil {
			logger.Log().WithError(err).Warn("geoip disabled")
		}
	}
	defer geo.Close()

	notifier := services.NewNotificationService(cfg.NotifyURLs)
	decisions := services.NewDecisionWriter(db, services.DefaultDecisionBuffer)

	svc := services.NewSentinelService(stores, db)
	svc.SetNotifier(notifier)

	var intel sentinel.IntelSource = sentinel.NoopIntel{}

	opts := []sentinel.Option{
		sentinel.WithIntel(intel),
		sentinel.WithReporter(services.Reporters{decisions, notifier}),
	}
	if geo != nil {
		opts = append(opts, sentinel.WithCountryLookup(geo))
	}
	engine := sentinel.New(stores.Config, stores.State, stores.Events, opts...)

	intelSync := services.NewIntelSyncJob(stores.Config, stores.State, intel)
	if err := intelSync.Start(cfg.SyncSchedule); err != nil {
		logger.Log().WithError(err).Fatal("start intel sync")
	}

	srv, err := server.New(cfg, server.Deps{
		DB:       db,
		Engine:   engine,
		Service:  svc,
		Gatherer: registry,
	})
	if err != nil {
		logger.Log().WithError(err).Fatal("build server")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Log().WithField("port", cfg.HTTPPort).WithField("admin_addr", cfg.AdminAddr).Infof("starting %s", version.Name)
	if err := srv.Run(ctx); err != nil {
		logger.Log().WithError(err).Error("server error")
	}

	intelSync.Stop()
	decisions.Close()
	notifier.Wait()
	logger.Log().Info("shutdown complete")
}
