// Package runtime wires configuration, storage and services into a running
// HTTP server.
package runtime

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"time"

	"github.com/go-redis/redis/v8"
	_ "github.com/lib/pq"

	app "github.com/plugng/plug-backend/internal/app"
	"github.com/plugng/plug-backend/internal/app/httpapi"
	"github.com/plugng/plug-backend/internal/app/services/eligibility"
	"github.com/plugng/plug-backend/internal/app/services/jobs"
	"github.com/plugng/plug-backend/internal/app/services/notifications"
	"github.com/plugng/plug-backend/internal/app/services/opportunities"
	"github.com/plugng/plug-backend/internal/app/storage/postgres"
	"github.com/plugng/plug-backend/internal/config"
	"github.com/plugng/plug-backend/internal/middleware"
	"github.com/plugng/plug-backend/pkg/logger"
)

// Application manages the server lifecycle.
type Application struct {
	cfg        *config.Config
	log        *logger.Logger
	core       *app.Application
	httpServer *http.Server
	db         *sql.DB
}

// NewApplication constructs an application with default wiring.
func NewApplication() (*Application, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	log := logger.New(cfg.Logging)

	stores := app.Stores{}
	var db *sql.DB
	if cfg.Database.DSN != "" {
		db, err = sql.Open("postgres", cfg.Database.DSN)
		if err != nil {
			return nil, fmt.Errorf("open database: %w", err)
		}
		if cfg.Database.MaxOpenConns > 0 {
			db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
		}
		if cfg.Database.MaxIdleConns > 0 {
			db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
		}
		pg := postgres.New(db)
		stores = app.Stores{
			Opportunities: pg,
			Applications:  pg,
			Reviews:       pg,
			Users:         pg,
			Tags:          pg,
			Notifications: pg,
		}
	} else {
		log.Warn("no database DSN configured; using in-memory store")
	}

	opts := app.Options{
		Lifecycle: opportunities.Config{
			AutoPendingApplicants: cfg.Policy.AutoPendingApplicants,
			DuplicateTitleWindow:  cfg.Policy.DuplicateTitleWindow,
		},
		Admission: eligibility.Policy{
			ProfessionalMonthlyApplications: cfg.Policy.ProfessionalMonthlyApplications,
			RequireReviewBeforeApply:        cfg.Policy.RequireReviewBeforeApply,
		},
		Jobs: jobs.Config{
			Spec:             cfg.Jobs.Spec,
			ExpiryWindow:     cfg.Jobs.ExpiryWindow,
			PlanExpiryWindow: cfg.Jobs.PlanExpiryWindow,
		},
	}

	if cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		opts.Suppression = notifications.NewRedisSuppression(client, "")
	}

	core := app.New(stores, opts, log)

	limiter := middleware.NewRateLimiter(cfg.Server.RateLimitPerSec, cfg.Server.RateLimitBurst, log)
	limiter.StartCleanup(10 * time.Minute)

	handler := limiter.Handler(middleware.Metrics(httpapi.NewHandler(core)))

	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	return &Application{
		cfg:        cfg,
		log:        log,
		core:       core,
		httpServer: httpServer,
		db:         db,
	}, nil
}

// Run starts the job scheduler and the HTTP server, blocking until the
// context is cancelled or the server fails.
func (a *Application) Run(ctx context.Context) error {
	if a.cfg.Jobs.Enabled {
		if err := a.core.Jobs.Start(); err != nil {
			return fmt.Errorf("start job scheduler: %w", err)
		}
	}

	errCh := make(chan error, 1)
	go func() {
		a.log.Infof("HTTP server listening on %s", a.httpServer.Addr)
		if err := a.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		return err
	}
}

// Shutdown gracefully stops the scheduler, the HTTP server and the database.
func (a *Application) Shutdown(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, a.cfg.Server.ShutdownTimeout)
	defer cancel()

	if a.cfg.Jobs.Enabled {
		a.core.Jobs.Stop()
	}
	if err := a.httpServer.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if a.db != nil {
		return a.db.Close()
	}
	return nil
}
