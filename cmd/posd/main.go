package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/Sirveme/quevendi-pos/api/routes"
	"github.com/Sirveme/quevendi-pos/internal/catalog"
	"github.com/Sirveme/quevendi-pos/internal/connectivity"
	"github.com/Sirveme/quevendi-pos/internal/correlative"
	"github.com/Sirveme/quevendi-pos/internal/maintenance"
	"github.com/Sirveme/quevendi-pos/internal/sales"
	"github.com/Sirveme/quevendi-pos/internal/syncer"
	"github.com/Sirveme/quevendi-pos/pkg/config"
	"github.com/Sirveme/quevendi-pos/pkg/env"
	"github.com/Sirveme/quevendi-pos/pkg/logger"
	"github.com/Sirveme/quevendi-pos/pkg/metrics"
	"github.com/Sirveme/quevendi-pos/pkg/store"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "posd"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "posd",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithTenantID(ctx, cfg.App.TenantID)

	manager := store.NewManager(cfg.Store, logg)
	session, err := manager.Open(ctx, cfg.App.TenantID)
	if err != nil {
		logg.Error(ctx, "failed to open tenant store", err)
		os.Exit(1)
	}
	defer func() {
		if err := manager.Close(); err != nil {
			logg.Error(ctx, "error closing tenant store", err)
		}
	}()

	meta := store.NewMeta(session)
	deviceID, err := meta.DeviceID(ctx)
	if err != nil {
		logg.Error(ctx, "failed to resolve device id", err)
		os.Exit(1)
	}
	ctx = logg.WithDeviceID(ctx, deviceID)

	registry := prometheus.NewRegistry()
	syncMetrics := metrics.NewSyncMetrics(registry)
	maintMetrics := metrics.NewMaintenanceMetrics(registry)

	catalogClient := catalog.NewClient(cfg.Remote.BaseURL, &http.Client{Timeout: cfg.Remote.Timeout})
	catalogSvc, err := catalog.NewService(session, catalogClient, logg)
	if err != nil {
		logg.Error(ctx, "failed to build catalog service", err)
		os.Exit(1)
	}

	salesSvc, err := sales.NewService(sales.ServiceParams{
		Session:      session,
		TenantID:     cfg.App.TenantID,
		Stock:        catalog.NewRepository(session),
		RetryCeiling: cfg.Sync.RetryCeiling,
		Logger:       logg,
	})
	if err != nil {
		logg.Error(ctx, "failed to build sales service", err)
		os.Exit(1)
	}

	allocator, err := correlative.NewAllocator(session, logg)
	if err != nil {
		logg.Error(ctx, "failed to build correlative allocator", err)
		os.Exit(1)
	}

	monitor, err := connectivity.NewMonitor(connectivity.MonitorParams{
		Prober:  connectivity.NewHTTPProber(cfg.Remote.ProbeURL(), cfg.Sync.ProbeTimeout),
		Config:  cfg.Sync,
		Metrics: syncMetrics,
		Logger:  logg,
	})
	if err != nil {
		logg.Error(ctx, "failed to build connectivity monitor", err)
		os.Exit(1)
	}

	syncSvc, err := syncer.NewService(syncer.ServiceParams{
		Sales:        salesSvc,
		Catalog:      catalogSvc,
		Submitter:    syncer.NewSubmitClient(cfg.Remote),
		Connectivity: monitor,
		Tokens:       syncer.StaticTokenSource(env.Get("QUEVENDI_API_TOKEN", "")),
		Config:       cfg.Sync,
		Metrics:      syncMetrics,
		Logger:       logg,
	})
	if err != nil {
		logg.Error(ctx, "failed to build synchronizer", err)
		os.Exit(1)
	}
	monitor.Subscribe(func(online bool) {
		syncSvc.OnConnectivityChange(ctx, online)
	})

	retentionJob, err := maintenance.NewSaleRetentionJob(maintenance.SaleRetentionJobParams{
		Logger:        logg,
		Sales:         salesSvc,
		RetentionDays: cfg.Sync.RetentionDays,
	})
	if err != nil {
		logg.Error(ctx, "failed to build retention job", err)
		os.Exit(1)
	}
	watchJob, err := maintenance.NewCorrelativeWatchJob(maintenance.CorrelativeWatchJobParams{
		Logger: logg,
		Blocks: allocator,
	})
	if err != nil {
		logg.Error(ctx, "failed to build correlative watch job", err)
		os.Exit(1)
	}
	maintSvc, err := maintenance.NewService(maintenance.ServiceParams{
		Logger:   logg,
		Registry: maintenance.NewRegistry(retentionJob, watchJob),
		Lock:     maintenance.NewMutexLock(),
		Metrics:  maintMetrics,
		Interval: cfg.Sync.MaintenanceInterval,
	})
	if err != nil {
		logg.Error(ctx, "failed to build maintenance service", err)
		os.Exit(1)
	}

	statusServer := &http.Server{
		Addr: cfg.Status.Addr,
		Handler: routes.NewRouter(routes.RouterParams{
			Config:      cfg,
			Logger:      logg,
			Sales:       salesSvc,
			Catalog:     catalogSvc,
			Correlative: allocator,
			Monitor:     monitor,
			Device:      meta,
			Registry:    registry,
		}),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go monitor.Run(ctx)
	go syncSvc.Run(ctx)
	go func() {
		if err := maintSvc.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logg.Error(ctx, "maintenance service stopped unexpectedly", err)
		}
	}()
	go func() {
		logg.Info(logg.WithField(ctx, "addr", cfg.Status.Addr), "status server listening")
		if err := statusServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(ctx, "status server stopped unexpectedly", err)
			stop()
		}
	}()

	logg.Info(ctx, "offline subsystem running")
	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := statusServer.Shutdown(shutdownCtx); err != nil {
		logg.Error(ctx, "status server shutdown failed", err)
	}

	logg.Info(ctx, "shutting down gracefully")
}
