// Command server runs one judge worker process: it leases a worker
// identity, pulls jobs off the shared queue, and runs them through the
// matching pipeline until told to stop.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"github.com/coderunr/judgeworker/internal/checker"
	"github.com/coderunr/judgeworker/internal/config"
	"github.com/coderunr/judgeworker/internal/executer"
	"github.com/coderunr/judgeworker/internal/handler"
	"github.com/coderunr/judgeworker/internal/languages"
	"github.com/coderunr/judgeworker/internal/middleware"
	"github.com/coderunr/judgeworker/internal/orchestrator"
	"github.com/coderunr/judgeworker/internal/queue"
	"github.com/coderunr/judgeworker/internal/sandbox"
	"github.com/coderunr/judgeworker/internal/storage"
	"github.com/coderunr/judgeworker/internal/validator"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("failed to load configuration")
	}

	logger := logrus.New()
	logger.SetLevel(cfg.GetLogLevel())
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	log := logrus.NewEntry(logger)

	log.Info("starting judge worker")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := sandbox.EnsureCgroupsAvailable(ctx); err != nil {
		log.WithError(err).Fatal("sandbox prerequisite check failed")
	}

	registry, err := loadLanguages(cfg)
	if err != nil {
		log.WithError(err).Fatal("failed to load language registry")
	}

	storageClient, err := storage.New(storage.Config{
		Endpoint:  cfg.MinIOEndpoint,
		Port:      cfg.MinIOPort,
		AccessKey: cfg.MinIOAccessKey,
		SecretKey: cfg.MinIOSecretKey,
		Bucket:    cfg.MinIOBucket,
		UseSSL:    cfg.MinIOUseSSL,
	})
	if err != nil {
		log.WithError(err).Fatal("failed to initialise storage client")
	}

	queueClient, err := queue.New(queue.Config{
		URL:            cfg.RedisURL,
		MaxWorkers:     cfg.MaxWorkers,
		WorkerLeaseTTL: cfg.WorkerLeaseTTL,
	}, log)
	if err != nil {
		log.WithError(err).Fatal("failed to connect to queue")
	}
	defer queueClient.Close()

	lease, err := queueClient.AcquireLease(ctx)
	if err != nil {
		log.WithError(err).Fatal("failed to acquire worker identity lease")
	}
	defer lease.Release()
	log = log.WithField("worker_id", lease.WorkerID)
	executer.SetWorkerID(lease.WorkerID)

	checkerManager := checker.NewManager(cfg.CheckerCacheDir, cfg.TestlibHeaderDir, log)
	validatorManager := validator.NewManager(cfg.ValidatorCacheDir, cfg.TestlibHeaderDir, log)

	deps := orchestrator.Deps{
		Queue:             queueClient,
		Storage:           storageClient,
		Languages:         registry,
		CheckerManager:    checkerManager,
		ValidatorManager:  validatorManager,
		CompileTimeMs:     cfg.CompileTimeLimitMs,
		CompileMemoryMB:   cfg.CompileMemoryLimitMB,
		CheckerTimeoutSec: uint32(cfg.CheckerTimeoutSecs),
		WorkerID:          lease.WorkerID,
		Log:               log,
	}

	var adminServer *http.Server
	if cfg.AdminEnabled {
		adminServer = newAdminServer(cfg, registry, queueClient, logger)
		go func() {
			log.WithField("addr", cfg.AdminBindAddress).Info("starting admin surface")
			if err := adminServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.WithError(err).Error("admin surface stopped unexpectedly")
			}
		}()
	}

	loopErr := orchestrator.Run(ctx, deps)
	if loopErr != nil && loopErr != context.Canceled {
		log.WithError(loopErr).Error("orchestrator loop exited")
	}

	if adminServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = adminServer.Shutdown(shutdownCtx)
	}

	log.Info("judge worker shut down")
}

func loadLanguages(cfg *config.Config) (*languages.Registry, error) {
	if cfg.LanguagesConfigPath == "" {
		return languages.Load(nil)
	}
	data, err := os.ReadFile(cfg.LanguagesConfigPath)
	if err != nil {
		return nil, err
	}
	return languages.Load(data)
}

func newAdminServer(cfg *config.Config, registry *languages.Registry, queueClient *queue.Client, logger *logrus.Logger) *http.Server {
	h := handler.New(registry, queueClient, logrus.NewEntry(logger))

	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.CORS())
	r.Use(middleware.JSON)
	r.Use(middleware.BodyLimit(1 << 20))

	r.Get("/healthz", h.Healthz)
	r.Get("/runtimes", h.Runtimes)
	r.HandleFunc("/progress", h.ProgressStream)

	return &http.Server{Addr: cfg.AdminBindAddress, Handler: r}
}
