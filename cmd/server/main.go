package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"funnelreport/internal/delivery"
	"funnelreport/internal/domain"
	"funnelreport/internal/infrastructure"
	"funnelreport/internal/infrastructure/postgres"
	"funnelreport/internal/usecase"
	"funnelreport/pkg/config"
	"funnelreport/pkg/logger"
	"funnelreport/pkg/metrics"

	"gorm.io/gorm"
)

type stores struct {
	snapshots domain.SnapshotRepository
	leads     domain.LeadRepository
	creatives domain.CreativeRepository
	tenants   domain.TenantDirectory
	db        *gorm.DB
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(cfg.Logging.Level)
	if err := log.EnableSentry(cfg.Logging.SentryDSN, cfg.Logging.Environment); err != nil {
		log.WithError(err).Warn("Sentry disabled")
	}
	defer logger.Flush(2 * time.Second)

	log.Info("Starting server")

	m := metrics.New()

	st, err := openStores(cfg, log)
	if err != nil {
		log.WithError(err).Fatal("Failed to initialise storage")
	}
	if st.db != nil {
		defer func() {
			if err := postgres.Close(st.db); err != nil {
				log.WithError(err).Error("Failed to close database")
			}
		}()
	}

	ads := infrastructure.NewAdsClient(
		cfg.External.AdsAPIBaseURL,
		cfg.External.AdsAPITimeout,
		cfg.External.MaxRetries,
		cfg.External.RetryBaseDelay,
		cfg.External.RateLimitPerSecond,
		log,
		m,
	)
	crm := infrastructure.NewCRMClient(
		cfg.External.CRMAPIBaseURL,
		cfg.External.CRMAPITimeout,
		cfg.External.MaxRetries,
		cfg.External.RetryBaseDelay,
		cfg.External.RateLimitPerSecond,
		log,
		m,
	)

	guard := usecase.NewKeyedGuard()
	creatives := usecase.NewCreativeCache(st.creatives, ads, log, m, cfg.Sync.CreativeTTL, cfg.Sync.BatchSize)

	syncer := usecase.NewSyncService(st.snapshots, st.tenants, ads, creatives, guard, log, m, usecase.SyncOptions{
		BatchSize:         cfg.Sync.BatchSize,
		StaleAfter:        cfg.Sync.StaleAfter,
		BackgroundTimeout: cfg.Sync.BackgroundTimeout,
	})
	leadSync := usecase.NewLeadSyncService(crm, st.leads, st.snapshots, st.tenants, guard, log, m, 0)
	leadService := usecase.NewLeadService(st.leads, log)
	reports := usecase.NewReportService(st.snapshots, st.leads, syncer, usecase.ParseSyncMode(cfg.Sync.ReportSyncMode), log, m)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runner := usecase.NewJobRunner(guard, log)
	runner.Register(usecase.NewWeeklySnapshotJob(st.tenants, syncer, log, cfg.Sync.WeeklySyncInterval, cfg.Sync.LookbackWeeks))
	if cfg.External.CRMAPIBaseURL != "" {
		runner.Register(usecase.NewLeadSyncJob(st.tenants, leadSync, log, cfg.Sync.LeadSyncInterval))
	} else {
		log.Warn("CRM_API_BASE_URL not set, periodic lead sync disabled")
	}
	runner.Start(ctx)

	handlers := delivery.NewHTTPHandlers(reports, syncer, leadSync, leadService, log)
	router := delivery.NewHTTPRouter(handlers, log, m, cfg.Server.RequestTimeout).SetupRoutes()

	server := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.WithField("port", cfg.Server.Port).Info("HTTP server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Error("HTTP server failed")
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("HTTP server shutdown failed")
	}
	runner.Wait()

	log.Info("Server stopped")
}

// openStores uses Postgres when DATABASE_URL is set and in-memory stores with a
// file-backed tenant directory otherwise.
func openStores(cfg *config.Config, log *logger.Logger) (*stores, error) {
	if cfg.Database.URL != "" {
		db, err := postgres.Open(cfg.Database.URL, log)
		if err != nil {
			return nil, err
		}
		log.Info("Using Postgres storage")
		return &stores{
			snapshots: postgres.NewSnapshotRepository(db),
			leads:     postgres.NewLeadRepository(db),
			creatives: postgres.NewCreativeRepository(db),
			tenants:   postgres.NewTenantDirectory(db),
			db:        db,
		}, nil
	}

	tenants, err := infrastructure.LoadTenantDirectory(cfg.Tenants.File, log)
	if err != nil {
		return nil, err
	}
	log.Warn("DATABASE_URL not set, using in-memory storage")
	return &stores{
		snapshots: infrastructure.NewSnapshotRepository(log),
		leads:     infrastructure.NewLeadRepository(log),
		creatives: infrastructure.NewCreativeRepository(log),
		tenants:   tenants,
	}, nil
}
