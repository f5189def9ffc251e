package app

import (
	"path/filepath"
	"time"

	"github.com/dubwise/dubwise-backend/internal/platform/envutil"
)

const APIPrefix = "/v1"

type Config struct {
	Environment string
	ListenAddr  string

	APIKeyHeader       string
	APIKeys            []string
	RateLimitPerMinute int

	DatabaseURL string
	RedisURL    string
	BrokerQueue string

	MinioEndpoint        string
	MinioAccessKey       string
	MinioSecretKey       string
	MinioUseSSL          bool
	BucketRaw            string
	BucketProcessed      string
	BucketPublic         string
	UploadPartSize       int64
	MaxUploadSize        int64
	UploadURLExpiry      time.Duration
	DownloadURLExpiry    time.Duration

	DataDir          string
	AllowedLanguages []string

	MaxActiveJobsPerKey int
	WorkerConcurrency   int
	MaxRetries          int
	RetryMinBackoff     time.Duration
	RetryMaxBackoff     time.Duration
	RetryJitterFrac     float64

	ASRModel       string
	ASRDevice      string
	ASRComputeType string
	ASRModelDir    string
	ASRCommand     string

	LibreTranslateURL string
	TranslateGlossary map[string]string

	TTSEngine     string
	PiperCommand  string
	PiperModelDir string
	PiperVoices   map[string]string

	FFmpegCommand     string
	MixUseDemucs      bool
	DemucsModel       string
	DemucsCommand     string
	MixVoiceGain      float64
	MixBackgroundGain float64
	MixTargetLoudness float64
}

func defaultPiperVoices() map[string]string {
	return map[string]string{
		"en": "en/en_US-amy-medium.onnx",
		"es": "es/es_ES-ana-medium.onnx",
		"fr": "fr/fr_FR-arthur-medium.onnx",
		"de": "de/de_DE-thorsten-medium.onnx",
	}
}

func LoadConfig() Config {
	dataDir := envutil.Str("DATA_DIR", "data")
	return Config{
		Environment: envutil.Str("ENVIRONMENT", "dev"),
		ListenAddr:  envutil.Str("LISTEN_ADDR", ":8080"),

		APIKeyHeader:       envutil.Str("API_KEY_HEADER", "X-API-Key"),
		APIKeys:            envutil.List("API_KEYS", nil),
		RateLimitPerMinute: envutil.Int("RATE_LIMIT_PER_MINUTE", 120),

		DatabaseURL: envutil.Str("DATABASE_URL", "sqlite://"+filepath.Join(dataDir, "app.db")),
		RedisURL:    envutil.Str("REDIS_URL", "redis://redis:6379/0"),
		BrokerQueue: envutil.Str("BROKER_QUEUE", "pipeline"),

		MinioEndpoint:     envutil.Str("MINIO_ENDPOINT", "minio:9000"),
		MinioAccessKey:    envutil.Str("MINIO_ACCESS_KEY", "minioadmin"),
		MinioSecretKey:    envutil.Str("MINIO_SECRET_KEY", "minioadmin"),
		MinioUseSSL:       envutil.Bool("MINIO_USE_SSL", false),
		BucketRaw:         envutil.Str("MINIO_BUCKET_RAW", "raw"),
		BucketProcessed:   envutil.Str("MINIO_BUCKET_PROCESSED", "proc"),
		BucketPublic:      envutil.Str("MINIO_BUCKET_PUBLIC", "pub"),
		UploadPartSize:    envutil.Int64("UPLOAD_PART_SIZE", 8*1024*1024),
		MaxUploadSize:     envutil.Int64("MAX_UPLOAD_SIZE", 8*1024*1024*1024),
		UploadURLExpiry:   time.Duration(envutil.Int("UPLOAD_URL_EXPIRY_SECONDS", 3600)) * time.Second,
		DownloadURLExpiry: time.Duration(envutil.Int("DOWNLOAD_URL_EXPIRY_SECONDS", 3600)) * time.Second,

		DataDir:          dataDir,
		AllowedLanguages: envutil.List("ALLOWED_LANGUAGES", []string{"en", "es", "fr", "de"}),

		MaxActiveJobsPerKey: envutil.Int("MAX_ACTIVE_JOBS_PER_KEY", 5),
		WorkerConcurrency:   envutil.Int("WORKER_CONCURRENCY", 4),
		MaxRetries:          envutil.Int("MAX_RETRIES", 3),
		RetryMinBackoff:     time.Duration(envutil.Int("RETRY_MIN_BACKOFF_SECONDS", 1)) * time.Second,
		RetryMaxBackoff:     time.Duration(envutil.Int("RETRY_MAX_BACKOFF_SECONDS", 60)) * time.Second,
		RetryJitterFrac:     envutil.Float("RETRY_JITTER_FRAC", 0.2),

		ASRModel:       envutil.Str("ASR_MODEL", "small"),
		ASRDevice:      envutil.Str("ASR_DEVICE", "cpu"),
		ASRComputeType: envutil.Str("ASR_COMPUTE_TYPE", "int8"),
		ASRModelDir:    envutil.Str("ASR_MODEL_DIR", ""),
		ASRCommand:     envutil.Str("ASR_COMMAND", ""),

		LibreTranslateURL: envutil.Str("LIBRETRANSLATE_URL", "http://libretranslate:5000"),
		TranslateGlossary: envutil.Map("TRANSLATE_GLOSSARY", nil),

		TTSEngine:     envutil.Str("TTS_ENGINE", "piper"),
		PiperCommand:  envutil.Str("PIPER_COMMAND", "piper"),
		PiperModelDir: envutil.Str("PIPER_MODEL_DIR", ""),
		PiperVoices:   envutil.Map("PIPER_VOICES", defaultPiperVoices()),

		FFmpegCommand:     envutil.Str("FFMPEG_COMMAND", "ffmpeg"),
		MixUseDemucs:      envutil.Bool("MIX_USE_DEMUCS", false),
		DemucsModel:       envutil.Str("DEMUCS_MODEL", "htdemucs"),
		DemucsCommand:     envutil.Str("DEMUCS_COMMAND", "demucs"),
		MixVoiceGain:      envutil.Float("MIX_VOICE_GAIN", 1.0),
		MixBackgroundGain: envutil.Float("MIX_BACKGROUND_GAIN", 0.35),
		MixTargetLoudness: envutil.Float("MIX_TARGET_LOUDNESS", -16.0),
	}
}
