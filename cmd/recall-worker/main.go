package main

import (
	"context"
	"crypto/tls"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/catchallhq/dental-crm/cmd/mainconfig"
	"github.com/catchallhq/dental-crm/internal/callbacks"
	appconfig "github.com/catchallhq/dental-crm/internal/config"
	"github.com/catchallhq/dental-crm/internal/events"
	"github.com/catchallhq/dental-crm/internal/notify"
	"github.com/catchallhq/dental-crm/internal/observability/metrics"
	"github.com/catchallhq/dental-crm/internal/patients"
	"github.com/catchallhq/dental-crm/internal/recall"
	"github.com/catchallhq/dental-crm/internal/reports"
	"github.com/catchallhq/dental-crm/pkg/logging"
)

func main() {
	_ = godotenv.Load()

	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel).WithComponent("recall-worker")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.DatabaseURL == "" {
		logger.Error("recall worker requires DATABASE_URL")
		os.Exit(1)
	}

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to connect postgres", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
	if err != nil {
		logger.Error("failed to load AWS config", "error", err)
		os.Exit(1)
	}

	var publisher events.Publisher = events.NopPublisher{}
	if cfg.RedisAddr != "" {
		opts := &redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword}
		if cfg.RedisTLS {
			opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
		}
		publisher = events.NewRedisPublisher(redis.NewClient(opts), logger)
	}

	recallStore := recall.NewStore(pool)
	callbackStore := callbacks.NewStore(pool)
	patientStore := patients.NewStore(pool)
	reportStore := reports.NewStore(pool)

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

	crmMetrics := metrics.NewCRMMetrics(prometheus.NewRegistry())

	workerCfg := recall.WorkerConfig{
		Interval:     cfg.RecallWorkerInterval,
		SendHour:     cfg.RecallSendHour,
		ResponseDays: cfg.RecallResponseDays,
	}
	var worker *recall.Worker
	if cfg.UseMemoryQueue {
		logger.Info("using in-memory send queue")
		worker = recall.NewWorker(recallStore, recall.NewMemoryQueue(128), notifySvc, callbackStore, publisher, crmMetrics, logger, workerCfg)
	} else {
		if cfg.RecallQueueURL == "" {
			logger.Error("recall worker requires RECALL_QUEUE_URL or USE_MEMORY_QUEUE=true")
			os.Exit(1)
		}
		queue := recall.NewSQSQueue(sqs.NewFromConfig(awsCfg), cfg.RecallQueueURL)
		worker = recall.NewWorker(recallStore, queue, notifySvc, callbackStore, publisher, crmMetrics, logger, workerCfg)
	}

	go func() { _ = worker.Run(ctx) }()

	// Morning staff briefing rides along in the same process.
	if recipients := splitRecipients(cfg.StaffSummaryEmails); len(recipients) > 0 {
		briefing := notify.NewBriefing(notifySvc, patientStore, reportStore, notify.BriefingConfig{
			Recipients: recipients,
			SendHour:   cfg.SummarySendHour,
		}, logger)
		go func() { _ = briefing.Run(ctx) }()
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	logger.Info("recall worker shutting down")
	cancel()
	time.Sleep(2 * time.Second)
}

func splitRecipients(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
