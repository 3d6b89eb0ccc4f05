package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/lib/pq"

	"echomind/internal/agent"
	"echomind/internal/alert"
	"echomind/internal/checkin"
	"echomind/internal/config"
	"echomind/internal/patient"
	"echomind/internal/platform/telegram"
	"echomind/internal/report"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg := config.Load()

	db, err := connectDB(cfg.DatabaseURL, logger)
	if err != nil {
		logger.Error("could not connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := runMigrations(cfg.MigrationsDir, cfg.DatabaseURL); err != nil {
		logger.Error("migrations failed", "error", err)
		os.Exit(1)
	}
	logger.Info("migrations applied")

	// Clients
	aiClient := agent.NewClient(cfg.OpenAIAPIKey, cfg.OpenAIModel)
	tgClient := telegram.NewClient(cfg.TelegramBotToken)

	// Services
	patientRepo := patient.NewRepository(db)
	patientSvc := patient.NewService(patientRepo)

	checkinRepo := checkin.NewRepository(db)
	checkinSvc := checkin.NewService(checkinRepo, aiClient, aiClient, tgClient, logger)

	alertRepo := alert.NewRepository(db)
	alertSvc := alert.NewService(alertRepo, patientRepo, tgClient, logger,
		cfg.LowScoreThreshold, cfg.DeclineThreshold, cfg.MissedCheckinDays)

	reportSvc := report.NewService(patientRepo, checkinRepo, tgClient, logger)

	webhook := telegram.NewWebhook(patientRepo, patientSvc, checkinSvc, alertSvc, tgClient, logger)

	// Router
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// CORS for the dashboard frontend
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS, PUT, DELETE")
			w.Header().Set("Access-Control-Allow-Headers", "Accept, Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization")
			if r.Method == "OPTIONS" {
				return
			}
			next.ServeHTTP(w, r)
		})
	})

	r.Route("/api", func(r chi.Router) {
		patient.RegisterRoutes(r, patient.NewHandler(patientSvc))
		checkin.RegisterRoutes(r, checkin.NewHandler(checkinRepo, patientRepo))
		alert.RegisterRoutes(r, alert.NewHandler(alertSvc))
		report.RegisterRoutes(r, report.NewHandler(reportSvc, patientRepo))
		webhook.RegisterRoutes(r)
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	scheduler := checkin.NewScheduler(patientRepo, checkinSvc, cfg.CheckinTick, logger)
	go scheduler.Run(ctx)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: r,
	}
	go func() {
		logger.Info("server starting", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown failed", "error", err)
	}
}

func connectDB(url string, logger *slog.Logger) (*sql.DB, error) {
	var db *sql.DB
	var err error
	for i := 0; i < 10; i++ {
		db, err = sql.Open("postgres", url)
		if err == nil {
			err = db.Ping()
		}
		if err == nil {
			return db, nil
		}
		logger.Info("waiting for database", "attempt", i+1)
		time.Sleep(2 * time.Second)
	}
	return nil, err
}

func runMigrations(sourceURL, databaseURL string) error {
	m, err := migrate.New(sourceURL, databaseURL)
	if err != nil {
		return err
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	return nil
}
