package main

import (
	"context"
	"crypto/tls"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/catchallhq/dental-crm/cmd/mainconfig"
	"github.com/catchallhq/dental-crm/internal/api/router"
	"github.com/catchallhq/dental-crm/internal/callbacks"
	"github.com/catchallhq/dental-crm/internal/calllog"
	appconfig "github.com/catchallhq/dental-crm/internal/config"
	"github.com/catchallhq/dental-crm/internal/cti"
	"github.com/catchallhq/dental-crm/internal/events"
	"github.com/catchallhq/dental-crm/internal/notify"
	"github.com/catchallhq/dental-crm/internal/observability/metrics"
	"github.com/catchallhq/dental-crm/internal/patients"
	"github.com/catchallhq/dental-crm/internal/recall"
	"github.com/catchallhq/dental-crm/internal/referrals"
	"github.com/catchallhq/dental-crm/internal/reports"
	"github.com/catchallhq/dental-crm/pkg/logging"
)

func main() {
	// Load .env file when present; otherwise environment variables alone.
	_ = godotenv.Load()

	cfg := appconfig.Load()

	logger := logging.New(cfg.LogLevel)
	logger.Info("starting dental-crm API server",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.DatabaseURL == "" {
		logger.Error("DATABASE_URL is required")
		os.Exit(1)
	}
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to create database pool", "error", err)
		os.Exit(1)
	}
	defer pool.Close()
	if err := pool.Ping(ctx); err != nil {
		logger.Error("failed to ping database", "error", err)
		os.Exit(1)
	}

	// Metrics.
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	crmMetrics := metrics.NewCRMMetrics(registry)

	// Redis feeds the event bus and the urgency snapshot cache. Optional in
	// local development.
	var redisClient *redis.Client
	if cfg.RedisAddr != "" {
		opts := &redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword}
		if cfg.RedisTLS {
			opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
		}
		redisClient = redis.NewClient(opts)
		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.Error("failed to ping redis", "error", err)
			os.Exit(1)
		}
	}

	var publisher events.Publisher = events.NopPublisher{}
	if redisClient != nil {
		publisher = events.NewRedisPublisher(redisClient, logger)
	} else {
		logger.Warn("redis not configured, dashboard events disabled")
	}

	awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
	if err != nil {
		logger.Error("failed to load AWS config", "error", err)
		os.Exit(1)
	}

	// Stores.
	patientStore := patients.NewStore(pool)
	callbackStore := callbacks.NewStore(pool)
	recallStore := recall.NewStore(pool)
	referralStore := referrals.NewStore(pool)
	callStore := calllog.NewStore(pool)
	reportStore := reports.NewStore(pool)

	// Outbound messaging.
	var email notify.EmailSender
	switch {
	case cfg.SendGridAPIKey != "":
		email = notify.NewSendGridSender(notify.SendGridConfig{
			APIKey:    cfg.SendGridAPIKey,
			FromEmail: cfg.SendGridFromEmail,
			FromName:  cfg.SendGridFromName,
		}, logger)
	case cfg.SESFromEmail != "":
		email = notify.NewSESSender(sesv2.NewFromConfig(awsCfg), notify.SESConfig{
			FromEmail: cfg.SESFromEmail,
			FromName:  cfg.SESFromName,
		}, logger)
	default:
		email = notify.NewStubEmailSender(logger)
	}
	notifySvc := notify.NewService(email, notify.NewStubSMSSender(logger), logger)

	// Call analysis pipeline: Bedrock first, Gemini as fallback when a key
	// is configured.
	var llm calllog.LLMClient = calllog.NewBedrockLLMClient(bedrockruntime.NewFromConfig(awsCfg))
	if cfg.GeminiAPIKey != "" {
		gemini, err := calllog.NewGeminiLLMClient(ctx, cfg.GeminiAPIKey, cfg.GeminiModelID)
		if err != nil {
			logger.Error("failed to create Gemini client", "error", err)
			os.Exit(1)
		}
		defer func() { _ = gemini.Close() }()
		llm = calllog.NewFallbackLLMClient(llm, gemini, logger)
	}
	summarizer := calllog.NewSummarizer(llm, cfg.BedrockModelID)

	var jobs calllog.JobRecorder
	if cfg.AnalysisJobsTable != "" {
		jobs = calllog.NewJobStore(dynamodb.NewFromConfig(awsCfg), cfg.AnalysisJobsTable, logger)
	}
	analyzer := calllog.NewAnalyzer(calllog.AnalyzerConfig{
		Repo:       callStore,
		Summarizer: summarizer,
		Jobs:       jobs,
		Patients:   patientStore,
		Metrics:    crmMetrics,
		Publisher:  publisher,
		Logger:     logger,
	})

	var archive calllog.RecordingStorer
	if cfg.RecordingsBucket != "" {
		archive = calllog.NewRecordingArchive(s3.NewFromConfig(awsCfg), cfg.RecordingsBucket, logger)
	}

	// CTI dashboard push.
	hub := cti.NewHub(logger.WithComponent("cti-hub"))
	go hub.Run(ctx)
	if redisClient != nil {
		bridge := cti.NewBridge(redisClient, hub, logger.WithComponent("cti-bridge"))
		go func() {
			if err := bridge.Run(ctx); err != nil && ctx.Err() == nil {
				logger.Error("cti bridge stopped", "error", err)
			}
		}()
	}

	reportsSvc := reports.NewService(patientStore, redisClient, logger)

	routerCfg := &router.Config{
		Logger:           logger,
		PatientsHandler:  patients.NewHandler(patientStore, publisher, crmMetrics, reportsSvc, logger),
		CallbacksHandler: callbacks.NewHandler(callbackStore, logger),
		RecallHandler:    recall.NewHandler(recallStore, patientStore, crmMetrics, logger),
		ReferralsHandler: referrals.NewHandler(referralStore, notifySvc, patientStore, callbackStore, logger),
		CallLogHandler:   calllog.NewHandler(callStore, analyzer, archive, logger),
		CTIHandler:       cti.NewHandler(callStore, patientStore, publisher, logger),
		ReportsHandler:   reports.NewHandler(reportStore, reportsSvc, logger),
		Hub:              hub,

		MetricsHandler:     promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		CORSAllowedOrigins: splitOrigins(cfg.CORSOrigins),
		StaffJWTSecret:     cfg.StaffJWTSecret,
		CTIToken:           cfg.CTIToken,
	}
	r := router.New(routerCfg)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}

func splitOrigins(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	origins := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			origins = append(origins, p)
		}
	}
	return origins
}
