package main

import (
	"context"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"github.com/asanalytics/go-asana-reporter/internal/api/handlers"
	"github.com/asanalytics/go-asana-reporter/internal/api/middleware"
	"github.com/asanalytics/go-asana-reporter/internal/asana"
	"github.com/asanalytics/go-asana-reporter/internal/config"
	"github.com/asanalytics/go-asana-reporter/internal/report"
	"github.com/asanalytics/go-asana-reporter/internal/repository"
	"github.com/asanalytics/go-asana-reporter/internal/service"
	"github.com/asanalytics/go-asana-reporter/internal/sheets"
	"github.com/asanalytics/go-asana-reporter/internal/slack"
)

func main() {
	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{})

	_ = godotenv.Load()
	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("failed to load config")
	}

	repo, err := repository.NewPostgresRepo(cfg)
	if err != nil {
		log.WithError(err).Fatal("failed to connect to postgres")
	}

	if err := repo.RunMigrations(context.Background()); err != nil {
		log.WithError(err).Fatal("migration error")
	}

	// Admin seed
	hashed, _ := bcrypt.GenerateFromPassword([]byte(cfg.AdminPassword), bcrypt.DefaultCost)
	if err := repo.UpsertAdmin(context.Background(), cfg.AdminUsername, string(hashed)); err != nil {
		log.WithError(err).Warn("failed seeding admin")
	}

	// Services
	client := asana.NewClient(cfg.AsanaToken, cfg.AsanaWorkspaceID)
	notifier := slack.NewNotifier(cfg.SlackToken, cfg.SlackChannel, log)
	aggregator := report.NewAggregator(repo)

	exporter, err := sheets.NewExporter(context.Background(), cfg, log)
	if err != nil {
		log.WithError(err).Fatal("failed to init sheets exporter")
	}

	fetchService := service.NewFetchService(client, repo, repo, notifier, log, cfg.CompletedSince)
	exportService := service.NewExportService(aggregator, exporter, repo, notifier, log)
	snapshotService := service.NewSnapshotService(client, repo, repo, notifier, log)

	// Handlers
	authHandler := handlers.NewAuthHandler(repo, cfg.JWTSecret)
	jobsHandler := handlers.NewJobsHandler(fetchService, exportService, snapshotService)
	reportsHandler := handlers.NewReportsHandler(aggregator, repo)

	// Router
	r := gin.Default()
	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	api := r.Group("/api/v1")

	auth := api.Group("/auth")
	{
		auth.POST("/login", authHandler.Login)
	}

	protected := api.Group("", middleware.Auth(cfg.JWTSecret))
	{
		jobs := protected.Group("/jobs")
		{
			jobs.POST("/fetch", jobsHandler.RunFetch)
			jobs.POST("/export", jobsHandler.RunExport)
			jobs.POST("/snapshot", jobsHandler.RunSnapshot)
		}

		protected.GET("/reports/:dimension", reportsHandler.GetReport)
		protected.GET("/runs", reportsHandler.ListRuns)
	}

	log.WithField("port", cfg.Port).Info("server running")
	if err := r.Run(":" + cfg.Port); err != nil {
		log.WithError(err).Fatal("server stopped")
	}
}
