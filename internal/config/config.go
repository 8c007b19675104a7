package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config aggregates runtime configuration for the service.
type Config struct {
	App          App
	Postgres     Postgres
	Redis        Redis
	Logger       LoggerConfig
	Auth         Auth
	Pipeline     Pipeline
	Resilience   Resilience
	Classifier   Classifier
	Drafts       Drafts
	Notification Notification
}

// App controls server level behavior.
type App struct {
	Name                  string
	Env                   string
	Host                  string
	Port                  string
	Version               string
	RequestTimeoutSeconds int
}

// Postgres holds DB connection values.
type Postgres struct {
	DSN            string
	MaxConns       int32
	MinConns       int32
	RunMigrations  bool
	ConnMaxIdleSec int32
	ConnMaxLifeSec int32
}

// Redis holds Redis connection values.
type Redis struct {
	Addr     string
	Password string
	DB       int
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level string
}

// Auth defines webhook authentication parameters. Push notifications carry a
// bearer token signed by the mail provider's subscription.
type Auth struct {
	PushSecret   string
	PushAudience string
}

// Pipeline sizes the ingestion work queue and the processing policies.
type Pipeline struct {
	WorkerPoolSize      int
	LaneCapacity        int
	ProcessingCeiling   time.Duration
	IdempotencyTTL      time.Duration
	ContextTurns        int
	ConfidenceThreshold float64
	ReopenClosedTickets bool
}

// Resilience carries the shared retry and circuit breaker knobs applied to
// every external dependency.
type Resilience struct {
	MaxAttempts      int
	BaseDelay        time.Duration
	MaxDelay         time.Duration
	FailureThreshold int
	Cooldown         time.Duration
	PerCallTimeout   time.Duration
}

// Classifier configures the LLM used for intent labelling and answers.
type Classifier struct {
	APIKey string
	Model  string
}

// Drafts points at the draft creation endpoint of the mail provider.
type Drafts struct {
	Endpoint string
	Token    string
}

// Notification holds escalation notification endpoints.
type Notification struct {
	EmailFrom  string
	WebhookURL string
	Team       string
}

// Load reads configuration from environment variables, applying defaults where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	confidence, err := strconv.ParseFloat(getEnv("PIPELINE_CONFIDENCE_THRESHOLD", "0.5"), 64)
	if err != nil {
		return nil, fmt.Errorf("invalid PIPELINE_CONFIDENCE_THRESHOLD: %w", err)
	}

	cfg := &Config{
		App: App{
			Name:                  getEnv("APP_NAME", "mail-helpdesk"),
			Env:                   getEnv("APP_ENV", "development"),
			Host:                  getEnv("APP_HOST", "0.0.0.0"),
			Port:                  getEnv("APP_PORT", "8080"),
			Version:               getEnv("APP_VERSION", "dev"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 30),
		},
		Postgres: Postgres{
			DSN:            os.Getenv("POSTGRES_DSN"),
			MaxConns:       int32(getEnvAsInt("POSTGRES_MAX_CONNS", 10)),
			MinConns:       int32(getEnvAsInt("POSTGRES_MIN_CONNS", 2)),
			RunMigrations:  getEnvAsBool("POSTGRES_RUN_MIGRATIONS", true),
			ConnMaxIdleSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", 30)),
			ConnMaxLifeSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", 300)),
		},
		Redis: Redis{
			Addr:     getEnv("REDIS_ADDR", "127.0.0.1:6379"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       redisDB,
		},
		Logger: LoggerConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Auth: Auth{
			PushSecret:   getEnv("AUTH_PUSH_SECRET", "dev-secret"),
			PushAudience: getEnv("AUTH_PUSH_AUDIENCE", "mail-helpdesk"),
		},
		Pipeline: Pipeline{
			WorkerPoolSize:      getEnvAsInt("PIPELINE_WORKER_POOL_SIZE", 8),
			LaneCapacity:        getEnvAsInt("PIPELINE_LANE_CAPACITY", 64),
			ProcessingCeiling:   getEnvAsDuration("PIPELINE_PROCESSING_CEILING", 2*time.Minute),
			IdempotencyTTL:      getEnvAsDuration("PIPELINE_IDEMPOTENCY_TTL", 72*time.Hour),
			ContextTurns:        getEnvAsInt("PIPELINE_CONTEXT_TURNS", 10),
			ConfidenceThreshold: confidence,
			ReopenClosedTickets: getEnvAsBool("PIPELINE_REOPEN_CLOSED_TICKETS", false),
		},
		Resilience: Resilience{
			MaxAttempts:      getEnvAsInt("RESILIENCE_MAX_ATTEMPTS", 3),
			BaseDelay:        getEnvAsDuration("RESILIENCE_BASE_DELAY", 100*time.Millisecond),
			MaxDelay:         getEnvAsDuration("RESILIENCE_MAX_DELAY", 5*time.Second),
			FailureThreshold: getEnvAsInt("RESILIENCE_FAILURE_THRESHOLD", 5),
			Cooldown:         getEnvAsDuration("RESILIENCE_COOLDOWN", 30*time.Second),
			PerCallTimeout:   getEnvAsDuration("RESILIENCE_PER_CALL_TIMEOUT", 15*time.Second),
		},
		Classifier: Classifier{
			APIKey: os.Getenv("CLASSIFIER_API_KEY"),
			Model:  getEnv("CLASSIFIER_MODEL", "gemini-2.0-flash"),
		},
		Drafts: Drafts{
			Endpoint: getEnv("DRAFTS_ENDPOINT", ""),
			Token:    os.Getenv("DRAFTS_TOKEN"),
		},
		Notification: Notification{
			EmailFrom:  getEnv("NOTIFY_EMAIL_FROM", "noreply@example.com"),
			WebhookURL: getEnv("NOTIFY_WEBHOOK_URL", ""),
			Team:       getEnv("NOTIFY_TEAM", "support"),
		},
	}

	return cfg, nil
}

// Addr returns the HTTP bind address.
func (a App) Addr() string {
	return fmt.Sprintf("%s:%s", a.Host, a.Port)
}

// RequestTimeout returns the configured request timeout duration.
func (a App) RequestTimeout() time.Duration {
	if a.RequestTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(a.RequestTimeoutSeconds) * time.Second
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsBool(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(val)
	if err != nil {
		return fallback
	}
	return parsed
}
