package app

import (
	"context"
	"fmt"

	"github.com/dubwise/dubwise-backend/internal/broker"
	"github.com/dubwise/dubwise-backend/internal/data/repos/assets"
	"github.com/dubwise/dubwise-backend/internal/data/repos/jobs"
	"github.com/dubwise/dubwise-backend/internal/data/repos/segments"
	"github.com/dubwise/dubwise-backend/internal/db"
	httpx "github.com/dubwise/dubwise-backend/internal/http"
	httpH "github.com/dubwise/dubwise-backend/internal/http/handlers"
	httpMW "github.com/dubwise/dubwise-backend/internal/http/middleware"
	"github.com/dubwise/dubwise-backend/internal/observability"
	"github.com/dubwise/dubwise-backend/internal/pipeline"
	"github.com/dubwise/dubwise-backend/internal/platform/logger"
	"github.com/dubwise/dubwise-backend/internal/services"
	"github.com/dubwise/dubwise-backend/internal/stages/asr"
	"github.com/dubwise/dubwise-backend/internal/stages/mix"
	"github.com/dubwise/dubwise-backend/internal/stages/packager"
	"github.com/dubwise/dubwise-backend/internal/stages/translate"
	"github.com/dubwise/dubwise-backend/internal/stages/tts"
	"github.com/dubwise/dubwise-backend/internal/storage"
	"github.com/dubwise/dubwise-backend/internal/worker"
	"github.com/dubwise/dubwise-backend/internal/workspace"
)

// App wires the full dependency graph once; the api and worker binaries pick
// the entry point they need.
type App struct {
	Cfg Config
	Log *logger.Logger

	database *db.Service
	broker   broker.Broker
	store    storage.ObjectStore
	metrics  *observability.Metrics

	jobService     *services.JobService
	assetService   *services.AssetService
	uploadService  *services.UploadService
	metricsService *services.MetricsService

	coordinator *pipeline.Coordinator
	registry    *worker.Registry
}

func New(cfg Config) (*App, error) {
	mode := "dev"
	if cfg.Environment == "prod" {
		mode = "prod"
	}
	log, err := logger.New(mode)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	database, err := db.New(log, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := database.AutoMigrateAll(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}

	taskBroker, err := broker.NewRedisBroker(cfg.RedisURL, cfg.BrokerQueue, log)
	if err != nil {
		return nil, fmt.Errorf("connect broker: %w", err)
	}

	store, err := storage.NewMinioStore(storage.MinioConfig{
		Endpoint:  cfg.MinioEndpoint,
		AccessKey: cfg.MinioAccessKey,
		SecretKey: cfg.MinioSecretKey,
		UseSSL:    cfg.MinioUseSSL,
	}, log)
	if err != nil {
		return nil, fmt.Errorf("connect object store: %w", err)
	}
	ctx := context.Background()
	for _, bucket := range []string{cfg.BucketRaw, cfg.BucketProcessed, cfg.BucketPublic} {
		if err := store.EnsureBucket(ctx, bucket); err != nil {
			return nil, fmt.Errorf("ensure bucket %s: %w", bucket, err)
		}
	}

	jobRepo := jobs.NewJobRepo(database.DB(), log)
	assetRepo := assets.NewAssetRepo(database.DB(), log)
	segmentRepo := segments.NewSegmentRepo(database.DB(), log)

	ws := workspace.New(cfg.DataDir)
	metrics := observability.NewMetrics()
	retry := broker.RetryPolicy{
		MaxRetries: cfg.MaxRetries,
		MinBackoff: cfg.RetryMinBackoff,
		MaxBackoff: cfg.RetryMaxBackoff,
		JitterFrac: cfg.RetryJitterFrac,
	}

	coordinator := pipeline.NewCoordinator(pipeline.Deps{
		Jobs:     jobRepo,
		Assets:   assetRepo,
		Segments: segmentRepo,
		Broker:   taskBroker,
		Store:    store,
		WS:       ws,
		Metrics:  metrics,
		Log:      log,

		ASR: asr.NewWorker(asr.Config{
			Command:     cfg.ASRCommand,
			Model:       cfg.ASRModel,
			Device:      cfg.ASRDevice,
			ComputeType: cfg.ASRComputeType,
			ModelDir:    cfg.ASRModelDir,
		}, log),
		Translate: translate.NewWorker(translate.Config{
			BaseURL:  cfg.LibreTranslateURL,
			Glossary: cfg.TranslateGlossary,
		}, log),
		TTS: tts.NewWorker(tts.Config{
			Engine:       cfg.TTSEngine,
			PiperCommand: cfg.PiperCommand,
			ModelDir:     cfg.PiperModelDir,
			Voices:       cfg.PiperVoices,
		}, log),
		Mix: mix.NewWorker(mix.Config{
			UseDemucs:      cfg.MixUseDemucs,
			DemucsCommand:  cfg.DemucsCommand,
			DemucsModel:    cfg.DemucsModel,
			VoiceGain:      cfg.MixVoiceGain,
			BackgroundGain: cfg.MixBackgroundGain,
			TargetLoudness: cfg.MixTargetLoudness,
		}, log),
		Package: packager.NewWorker(store, cfg.BucketPublic, log),

		BucketRaw:       cfg.BucketRaw,
		BucketProcessed: cfg.BucketProcessed,
		Retry:           retry,
	})
	registry := worker.NewRegistry()
	coordinator.Register(registry)

	return &App{
		Cfg: cfg,
		Log: log,

		database: database,
		broker:   taskBroker,
		store:    store,
		metrics:  metrics,

		jobService:     services.NewJobService(jobRepo, assetRepo, taskBroker, cfg.AllowedLanguages, cfg.MaxActiveJobsPerKey, log),
		assetService:   services.NewAssetService(assetRepo, store, cfg.BucketPublic, cfg.DownloadURLExpiry, log),
		uploadService:  services.NewUploadService(assetRepo, store, cfg.BucketRaw, cfg.UploadPartSize, cfg.MaxUploadSize, cfg.UploadURLExpiry, log),
		metricsService: services.NewMetricsService(jobRepo, metrics, log),

		coordinator: coordinator,
		registry:    registry,
	}, nil
}

// RunAPI serves the control API until ctx is cancelled.
func (a *App) RunAPI(ctx context.Context) error {
	server := httpx.NewServer(httpx.RouterConfig{
		APIPrefix:      APIPrefix,
		AuthMiddleware: httpMW.NewAuthMiddleware(a.Cfg.APIKeyHeader, a.Cfg.APIKeys, a.Log),
		RateLimiter:    httpMW.NewRateLimiter(a.Cfg.RateLimitPerMinute, a.Log),
		Log:            a.Log,
		UploadHandler:  httpH.NewUploadHandler(a.uploadService),
		AssetHandler:   httpH.NewAssetHandler(a.assetService),
		JobHandler:     httpH.NewJobHandler(a.jobService),
		MetricsHandler: httpH.NewMetricsHandler(a.metricsService, a.metrics, a.Log),
		HealthHandler:  httpH.NewHealthHandler(),
	})
	return server.Run(ctx, a.Cfg.ListenAddr)
}

// RunWorker drives the task pool until ctx is cancelled.
func (a *App) RunWorker(ctx context.Context) error {
	pool := worker.NewPool(a.broker, a.registry, a.Cfg.WorkerConcurrency, a.Log)
	return pool.Run(ctx)
}

func (a *App) Close() {
	if err := a.broker.Close(); err != nil {
		a.Log.Warn("Closing broker failed", "error", err)
	}
}
