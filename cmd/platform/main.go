package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/medwatch/platform/internal/adapters/his"
	"github.com/medwatch/platform/internal/audit"
	"github.com/medwatch/platform/internal/identity"
	"github.com/medwatch/platform/internal/refresh"
	reportapi "github.com/medwatch/platform/internal/report/api"
	"github.com/medwatch/platform/internal/report/domain"
	reportinfra "github.com/medwatch/platform/internal/report/infrastructure"
	"github.com/medwatch/platform/internal/report/workflow"
	"github.com/medwatch/platform/internal/shared/auth"
	"github.com/medwatch/platform/internal/shared/config"
	"github.com/medwatch/platform/internal/shared/database"
	"github.com/medwatch/platform/internal/shared/events"
	"github.com/medwatch/platform/internal/shared/logging"
	"github.com/medwatch/platform/internal/shared/metrics"
	secmiddleware "github.com/medwatch/platform/internal/shared/middleware"
)

// App holds all application dependencies
type App struct {
	Config *config.Config
	Logger zerolog.Logger
	DB     *database.DB
	Bus    events.EventBus
	Intake *his.Adapter
}

func main() {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.Log)
	app := &App{Config: cfg, Logger: logger}

	// Database is optional: without it the platform runs on in-memory
	// stores, which is enough for development and demos.
	db, err := database.New(ctx, cfg.Database)
	if err != nil {
		logger.Warn().Err(err).Msg("database not available, using in-memory stores")
	} else {
		app.DB = db
		defer db.Close()

		if err := database.Migrate(ctx, db.Pool); err != nil {
			logger.Error().Err(err).Msg("migration failed")
			os.Exit(1)
		}
	}

	// Event bus: EventStoreDB when configured, in-process otherwise.
	if cfg.EventStore.Enabled {
		bus, err := events.NewBus(ctx, cfg.EventStore, logger)
		if err != nil {
			logger.Warn().Err(err).Msg("eventstore not available, using in-process bus")
			app.Bus = events.NewMemoryBus()
		} else {
			app.Bus = bus
			logger.Info().Msg("eventstore bus initialized")
		}
	} else {
		app.Bus = events.NewMemoryBus()
	}
	defer app.Bus.Close()

	// Identity directory
	var dir identity.Directory
	if app.DB != nil {
		dir = identity.NewPostgresDirectory(app.DB.Pool)
	} else {
		mem := identity.NewMemoryDirectory()
		seedDevUsers(mem, logger)
		dir = mem
	}
	resolver := identity.NewResolver(dir)

	// Report store and workflow engine
	var reportRepo domain.Repository
	if app.DB != nil {
		reportRepo = reportinfra.NewPostgresRepository(app.DB.Pool)
	} else {
		reportRepo = reportinfra.NewMemoryRepository()
	}
	engine := workflow.NewEngine(reportRepo, resolver, app.Bus, logger)

	// Audit trail
	var auditRepo audit.Repository
	var auditVerifier audit.ChainVerifier
	if app.DB != nil {
		pg := audit.NewPostgresRepository(app.DB.Pool)
		if err := pg.Initialize(ctx); err != nil {
			logger.Error().Err(err).Msg("audit initialization failed")
			os.Exit(1)
		}
		auditRepo = pg
		auditVerifier = pg
	} else {
		mem := audit.NewMemoryRepository()
		auditRepo = mem
		auditVerifier = mem
	}

	auditSubscriber := audit.NewSubscriber(auditRepo, app.Bus)
	if err := auditSubscriber.Start(ctx); err != nil {
		logger.Error().Err(err).Msg("audit subscriber failed to start")
		os.Exit(1)
	}

	// Refresh signal
	signalState := refresh.NewSignal(logger)
	if err := signalState.Start(ctx, app.Bus); err != nil {
		logger.Error().Err(err).Msg("refresh signal failed to start")
		os.Exit(1)
	}

	// Legacy HIS intake
	if cfg.Intake.Enabled {
		app.Intake = his.New(cfg.Intake, engine, dir, logger)
		if err := app.Intake.Start(ctx); err != nil {
			logger.Warn().Err(err).Msg("HIS intake failed to start")
			app.Intake = nil
		}
	}

	// Handlers
	reportHandler := reportapi.NewHandler(engine)
	identityHandler := identity.NewHandler(dir, resolver)
	auditHandler := audit.NewHandler(auditRepo, auditVerifier, resolver)
	refreshHandler := refresh.NewHandler(signalState)

	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(logging.RequestLogger(logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(secmiddleware.SecurityHeaders)
	r.Use(secmiddleware.MaxBody(1 << 20))
	r.Use(secmiddleware.NewIPRateLimiter(50, 100).Middleware)
	r.Use(metrics.Middleware)
	r.Use(corsMiddleware)

	// Health checks (unauthenticated)
	r.Get("/health", healthHandler(app))
	r.Get("/ready", readyHandler(app))
	r.Handle("/metrics", metrics.Handler())

	r.Get("/", infoHandler)

	// API routes
	r.Route("/api/v1", func(r chi.Router) {
		if cfg.Auth.Enabled {
			r.Use(auth.Middleware(cfg.Auth))
		}

		r.Mount("/users", identityHandler.Routes())
		r.Mount("/reports", reportHandler.Routes())
		r.Get("/reports/{reportID}/audit", auditHandler.ReportTrail)
		r.Mount("/audit", auditHandler.Routes())
		r.Mount("/refresh", refreshHandler.Routes())
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	done := make(chan bool)
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		logger.Info().Msg("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if app.Intake != nil {
			if err := app.Intake.Stop(shutdownCtx); err != nil {
				logger.Error().Err(err).Msg("HIS intake shutdown error")
			}
		}

		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("server shutdown error")
		}
		close(done)
	}()

	logger.Info().
		Str("env", cfg.Server.Env).
		Int("port", cfg.Server.Port).
		Bool("database", app.DB != nil).
		Bool("eventstore", cfg.EventStore.Enabled).
		Bool("his_intake", app.Intake != nil).
		Msg("medwatch platform starting")

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error().Err(err).Msg("server error")
		os.Exit(1)
	}

	<-done
	logger.Info().Msg("server stopped")
}

func infoHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"name":    "MedWatch Adverse Effect Review Platform",
		"version": "0.1.0",
		"docs":    "/api/v1",
	})
}

func healthHandler(app *App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]string{
			"status": "healthy",
		})
	}
}

func readyHandler(app *App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		checks := map[string]string{
			"server": "ready",
		}

		if app.DB != nil {
			if err := app.DB.Health(r.Context()); err != nil {
				checks["database"] = "not ready: " + err.Error()
			} else {
				checks["database"] = "ready"
			}
		} else {
			checks["database"] = "not configured"
		}

		if err := app.Bus.Health(); err != nil {
			checks["eventbus"] = "not ready: " + err.Error()
		} else {
			checks["eventbus"] = "ready"
		}

		if app.Intake != nil {
			if err := app.Intake.Health(r.Context()); err != nil {
				checks["his_intake"] = "not ready: " + err.Error()
			} else {
				checks["his_intake"] = "ready"
			}
		} else {
			checks["his_intake"] = "not configured"
		}

		allReady := true
		for _, status := range checks {
			if status != "ready" && status != "not configured" {
				allReady = false
				break
			}
		}

		status := http.StatusOK
		if !allReady {
			status = http.StatusServiceUnavailable
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		json.NewEncoder(w).Encode(map[string]any{
			"status": map[bool]string{true: "ready", false: "not ready"}[allReady],
			"checks": checks,
		})
	}
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Accept, Authorization, Content-Type, X-Request-ID")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// seedDevUsers registers a user per role so the memory-backed setup is
// usable out of the box.
func seedDevUsers(dir *identity.MemoryDirectory, logger zerolog.Logger) {
	seeds := []struct {
		username string
		role     identity.Role
	}{
		{"dev-patient", identity.RolePatient},
		{"dev-professional", identity.RoleProfessional},
		{"dev-supervisor", identity.RoleSupervisor},
		{"dev-admin", identity.RoleAdmin},
	}

	for _, s := range seeds {
		id := dir.Seed(s.username, s.role)
		logger.Info().
			Str("username", s.username).
			Str("role", string(s.role)).
			Str("id", id.String()).
			Msg("seeded dev user")
	}
}
