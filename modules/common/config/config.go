package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"neon-storyboard-server/modules/common/fallback"
)

// Defaults carried over from the browser build of the wizard.
const (
	DefaultAppPassword     = "nihongboluoup!"
	DefaultReasoningModel  = "gemini-2.5-flash"
	DefaultImageModel      = "gemini-2.5-flash-image"
	DefaultVideoModel      = "veo-3.1-fast-generate-preview"
	DefaultDemoVideoURL    = fallback.DemoVideoURL
	QueueBackendMemory     = "memory"
	QueueBackendRedis      = "redis"
	defaultPollInterval    = 5 * time.Second
	defaultVideoTimeout    = 10 * time.Minute
	defaultPromptTimeout   = 2 * time.Minute
	defaultSessionTTL      = 2 * time.Hour
	defaultMaxGenerations  = 4
	defaultLogLevel        = "info"
	defaultLogEncoding     = "console"
	defaultRedisQueueKey   = "storyboard:jobs"
	defaultShutdownTimeout = 15 * time.Second
)

// Config - 모든 환경변수를 담음
type Config struct {
	// Server
	Port            string
	ShutdownTimeout time.Duration
	SessionTTL      time.Duration

	// Logging
	LogLevel    string
	LogEncoding string

	// Auth gate
	AppPassword string

	// Gemini / Veo
	GeminiAPIKey        string // environment layer of the credential lookup
	GeminiDefaultAPIKey string // compiled-in layer, last resort
	ReasoningModel      string
	ImageModel          string
	VideoModel          string
	RateLimitAttempts   int
	RateLimitDelay      time.Duration

	// Video generation policy
	PollInterval      time.Duration
	VideoTimeout      time.Duration
	CredentialTimeout time.Duration
	DemoFallback      bool
	DemoVideoURL      string

	// Job dispatch
	MaxConcurrentGenerations int
	QueueBackend             string

	// Redis
	RedisHost     string
	RedisPort     string
	RedisUsername string
	RedisPassword string
	RedisUseTLS   bool
	RedisQueueKey string
}

// LoadConfig reads .env (if present) and the process environment.
func LoadConfig() (*Config, error) {
	// .env 파일이 없으면 환경변수만 사용
	_ = godotenv.Load()

	cfg := &Config{
		Port:            getEnv("PORT", "8080"),
		ShutdownTimeout: getDuration("SHUTDOWN_TIMEOUT", defaultShutdownTimeout),
		SessionTTL:      getDuration("SESSION_TTL", defaultSessionTTL),

		LogLevel:    getEnv("LOG_LEVEL", defaultLogLevel),
		LogEncoding: getEnv("LOG_ENCODING", defaultLogEncoding),

		AppPassword: getEnv("APP_PASSWORD", DefaultAppPassword),

		GeminiAPIKey:        getEnv("GEMINI_API_KEY", ""),
		GeminiDefaultAPIKey: getEnv("GEMINI_DEFAULT_API_KEY", ""),
		ReasoningModel:      getEnv("GEMINI_MODEL_REASONING", DefaultReasoningModel),
		ImageModel:          getEnv("GEMINI_MODEL_IMAGE", DefaultImageModel),
		VideoModel:          getEnv("VEO_MODEL", DefaultVideoModel),
		RateLimitAttempts:   getInt("GEMINI_RATE_LIMIT_ATTEMPTS", 3),
		RateLimitDelay:      getDuration("GEMINI_RATE_LIMIT_DELAY", 2*time.Second),

		PollInterval:      getDuration("VIDEO_POLL_INTERVAL", defaultPollInterval),
		VideoTimeout:      getDuration("VIDEO_TIMEOUT", defaultVideoTimeout),
		CredentialTimeout: getDuration("CREDENTIAL_PROMPT_TIMEOUT", defaultPromptTimeout),
		DemoFallback:      getBool("VIDEO_DEMO_FALLBACK", false),
		DemoVideoURL:      getEnv("DEMO_VIDEO_URL", DefaultDemoVideoURL),

		MaxConcurrentGenerations: getInt("MAX_CONCURRENT_GENERATIONS", defaultMaxGenerations),
		QueueBackend:             getEnv("QUEUE_BACKEND", QueueBackendMemory),

		RedisHost:     getEnv("REDIS_HOST", "localhost"),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		RedisUsername: getEnv("REDIS_USERNAME", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisUseTLS:   getBool("REDIS_USE_TLS", false),
		RedisQueueKey: getEnv("REDIS_QUEUE_KEY", defaultRedisQueueKey),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// validate - 필수 환경변수 검증
func (c *Config) validate() error {
	if c.AppPassword == "" {
		return fmt.Errorf("APP_PASSWORD must not be empty")
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("VIDEO_POLL_INTERVAL must be positive")
	}
	if c.VideoTimeout <= 0 {
		return fmt.Errorf("VIDEO_TIMEOUT must be positive")
	}
	if c.MaxConcurrentGenerations < 0 {
		return fmt.Errorf("MAX_CONCURRENT_GENERATIONS must not be negative")
	}
	switch c.QueueBackend {
	case QueueBackendMemory:
	case QueueBackendRedis:
		if c.RedisHost == "" {
			return fmt.Errorf("REDIS_HOST is required when QUEUE_BACKEND=redis")
		}
	default:
		return fmt.Errorf("unknown QUEUE_BACKEND %q", c.QueueBackend)
	}
	return nil
}

// UsesDefaultPassword reports whether the auth gate still runs on the shipped secret.
func (c *Config) UsesDefaultPassword() bool {
	return c.AppPassword == DefaultAppPassword
}

// GetRedisAddr - Redis 연결 문자열 생성
func (c *Config) GetRedisAddr() string {
	return fmt.Sprintf("%s:%s", c.RedisHost, c.RedisPort)
}

// getEnv - 환경변수 가져오기 (기본값 지원)
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
