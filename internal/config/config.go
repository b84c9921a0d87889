package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Load reads the .env file specified by MEDIATOR_ENV (or .env by default),
// then loads the corresponding .secret file if it exists.
// All config is flat env vars read via os.Getenv after loading.
func Load() error {
	envFile := os.Getenv("MEDIATOR_ENV")
	if envFile == "" {
		envFile = ".env"
	}

	// Load main env file (ignore error if file doesn't exist)
	_ = godotenv.Load(envFile)

	// Load secret sidecar if it exists
	_ = godotenv.Load(envFile + ".secret")

	return nil
}

func stringOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func intOr(key string, def int) int {
	v, err := strconv.Atoi(os.Getenv(key))
	if err != nil || v < 0 {
		return def
	}
	return v
}

func durationOr(key string, def time.Duration) time.Duration {
	v, err := time.ParseDuration(os.Getenv(key))
	if err != nil || v < 0 {
		return def
	}
	return v
}

func ServerPort() int {
	port, err := strconv.Atoi(os.Getenv("SERVER_PORT"))
	if err != nil {
		return 8080
	}
	return port
}

func ServerAddr() string {
	return fmt.Sprintf(":%d", ServerPort())
}

// StoreDriver selects the dispute registry backend: memory or postgres.
func StoreDriver() string {
	return stringOr("STORE_DRIVER", "memory")
}

func DatabaseURL() string {
	return os.Getenv("DATABASE_URL")
}

// RedisURL enables cross-instance event relay when set.
// Accepts redis:// URLs or host:port.
func RedisURL() string {
	return os.Getenv("REDIS_URL")
}

// LLMProvider returns the configured resolution provider.
// Defaults to "mock" if not set.
// Valid values: openai, anthropic, gemini, grok, mock
func LLMProvider() string {
	return stringOr("LLM_PROVIDER", "mock")
}

// LLMAPIKey returns the API key for the configured LLM provider.
func LLMAPIKey() string {
	switch LLMProvider() {
	case "anthropic":
		return os.Getenv("ANTHROPIC_API_KEY")
	case "gemini":
		return os.Getenv("GEMINI_API_KEY")
	case "grok":
		return os.Getenv("XAI_API_KEY")
	case "mock":
		return ""
	default:
		return os.Getenv("OPENAI_API_KEY")
	}
}

// MockResolutionDelay is the simulated latency of the mock provider.
func MockResolutionDelay() time.Duration {
	return durationOr("MOCK_RESOLUTION_DELAY", 2*time.Second)
}

// ResolutionTimeout bounds a single provider call.
func ResolutionTimeout() time.Duration {
	return durationOr("RESOLUTION_TIMEOUT", 30*time.Second)
}

// ResolutionMaxAttempts is the number of provider calls per generation,
// i.e. one call plus retries. Defaults to 2.
func ResolutionMaxAttempts() int {
	n := intOr("RESOLUTION_MAX_ATTEMPTS", 2)
	if n == 0 {
		return 1
	}
	return n
}

func ResolutionSweepInterval() time.Duration {
	d := durationOr("RESOLUTION_SWEEP_INTERVAL", time.Minute)
	if d == 0 {
		return time.Minute
	}
	return d
}

// BlobProvider selects attachment storage: memory or s3.
func BlobProvider() string {
	return stringOr("BLOB_PROVIDER", "memory")
}

func S3Bucket() string {
	return stringOr("S3_BUCKET", "mediator-attachments")
}

func S3Region() string {
	return stringOr("S3_REGION", "us-east-1")
}

// S3Endpoint overrides the S3 endpoint, e.g. for MinIO.
func S3Endpoint() string {
	return os.Getenv("S3_ENDPOINT")
}

func S3AccessKey() string {
	return os.Getenv("S3_ACCESS_KEY")
}

func S3SecretKey() string {
	return os.Getenv("S3_SECRET_KEY")
}

func MaxAttachmentBytes() int64 {
	return int64(intOr("MAX_ATTACHMENT_BYTES", 10<<20))
}

// PaymentProvider selects the payment gateway: mock or decline.
func PaymentProvider() string {
	return stringOr("PAYMENT_PROVIDER", "mock")
}

// FreeActions is the number of billable actions each user gets for free.
func FreeActions() int {
	return intOr("FREE_ACTIONS", 3)
}

func ActionPriceCents() int64 {
	return int64(intOr("ACTION_PRICE_CENTS", 499))
}

// PublicBaseURL prefixes share links.
func PublicBaseURL() string {
	return stringOr("PUBLIC_BASE_URL", "http://localhost:8080")
}

// AdminAPIKey guards the admin console routes. Empty disables them.
func AdminAPIKey() string {
	return os.Getenv("ADMIN_API_KEY")
}

// RateLimitRPS returns requests per second limit.
// Defaults to 100 if not set.
func RateLimitRPS() float64 {
	rps, err := strconv.ParseFloat(os.Getenv("RATE_LIMIT_RPS"), 64)
	if err != nil || rps <= 0 {
		return 100
	}
	return rps
}

// RateLimitBurst returns the burst size for rate limiting.
// Defaults to 20 if not set.
func RateLimitBurst() int {
	burst, err := strconv.Atoi(os.Getenv("RATE_LIMIT_BURST"))
	if err != nil || burst <= 0 {
		return 20
	}
	return burst
}

// LogLevel returns the log level (debug, info, warn, error).
// Defaults to "info" if not set.
func LogLevel() string {
	return stringOr("LOG_LEVEL", "info")
}
