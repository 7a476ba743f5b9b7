package infra

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/Dexploarer/hyper-forge-sub006/internal/domain"
)

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv         string
	LogLevel       string
	Port           string
	DatabaseURL    string
	DBMaxConns     int
	DBMinConns     int
	JWTSecret      string
	RedisURL       string
	QueuePrefix    string
	StorageDir     string
	StorageBaseURL string
	CDNUploadURL   string
	CDNAPIKey      string

	// RehostAllowedHosts are private hosts whose images may be fetched and
	// republished. The StorageBaseURL host is always included.
	RehostAllowedHosts []string

	PromptProvider string
	OpenAIAPIKey   string
	OpenAIModel    string
	OpenAIBaseURL  string
	OpenAIOrg      string
	ImageModel     string
	MeshyAPIKey    string
	MeshyBaseURL   string
	MeshyModel     string

	WorkerConcurrency    int
	WorkerMaxRetries     int
	WorkerDequeueTimeout time.Duration
	WorkerStatusInterval time.Duration
	CleanupSchedule      string

	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration
	RateLimitPerMin  int
	CORSOrigins      []string
}

// LoadConfig loads configuration from environment variables and applies defaults where needed.
func LoadConfig() (*Config, error) {
	port := getEnv("PORT", "8080")
	cfg := &Config{
		AppEnv:         getEnv("APP_ENV", "development"),
		LogLevel:       strings.ToLower(os.Getenv("LOG_LEVEL")),
		Port:           port,
		DatabaseURL:    os.Getenv("DATABASE_URL"),
		DBMaxConns:     getEnvInt("DB_MAX_CONNS", 10),
		DBMinConns:     getEnvInt("DB_MIN_CONNS", 1),
		JWTSecret:      os.Getenv("JWT_SECRET"),
		RedisURL:       getEnv("REDIS_URL", "redis://localhost:6379/0"),
		QueuePrefix:    getEnv("QUEUE_PREFIX", "asset-forge"),
		StorageDir:     getEnv("STORAGE_DIR", "./data/assets"),
		StorageBaseURL: getEnv("STORAGE_BASE_URL", "http://localhost:"+port+"/static"),
		CDNUploadURL:   os.Getenv("CDN_UPLOAD_URL"),
		CDNAPIKey:      os.Getenv("CDN_API_KEY"),

		RehostAllowedHosts: splitList(os.Getenv("REHOST_ALLOWED_HOSTS")),

		PromptProvider: strings.ToLower(getEnv("PROMPT_PROVIDER", "openai")),
		OpenAIAPIKey:   os.Getenv("OPENAI_API_KEY"),
		OpenAIModel:    getEnv("OPENAI_MODEL", "gpt-4o-mini"),
		OpenAIBaseURL:  getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
		OpenAIOrg:      os.Getenv("OPENAI_ORG"),
		ImageModel:     getEnv("OPENAI_IMAGE_MODEL", "gpt-image-1"),
		MeshyAPIKey:    os.Getenv("MESHY_API_KEY"),
		MeshyBaseURL:   getEnv("MESHY_BASE_URL", "https://api.meshy.ai"),
		MeshyModel:     getEnv("MESHY_MODEL", "meshy-5"),

		WorkerConcurrency:    getEnvInt("WORKER_CONCURRENCY", 2),
		WorkerMaxRetries:     getEnvInt("WORKER_MAX_RETRIES", 3),
		WorkerDequeueTimeout: getEnvDuration("WORKER_DEQUEUE_TIMEOUT", 5*time.Second),
		WorkerStatusInterval: getEnvDuration("WORKER_STATUS_INTERVAL", 2*time.Second),
		CleanupSchedule:      getEnv("CLEANUP_SCHEDULE", "@every 15m"),

		HTTPReadTimeout:  time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 15)),
		HTTPWriteTimeout: time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 30)),
		HTTPIdleTimeout:  time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),
		RateLimitPerMin:  getEnvInt("RATE_LIMIT_PER_MINUTE", 30),
		CORSOrigins:      splitList(os.Getenv("CORS_ALLOWED_ORIGINS")),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}

	if cfg.WorkerConcurrency < 1 {
		cfg.WorkerConcurrency = 1
	}
	// Each worker slot holds a connection while a stage persists.
	if cfg.DBMaxConns < cfg.WorkerConcurrency+1 {
		cfg.DBMaxConns = cfg.WorkerConcurrency + 1
	}
	if cfg.DBMinConns < 0 || cfg.DBMinConns > cfg.DBMaxConns {
		cfg.DBMinConns = 1
	}

	return cfg, nil
}

// PublicArtifactURL returns the base URL under which vendors can fetch
// uploaded artifacts. Local storage served from localhost does not count.
func (c *Config) PublicArtifactURL() string {
	if c.CDNUploadURL != "" {
		return c.CDNUploadURL
	}
	base := strings.ToLower(c.StorageBaseURL)
	for _, local := range []string{"://localhost", "://127.0.0.1", "://0.0.0.0", "://[::1]"} {
		if strings.Contains(base, local) {
			return ""
		}
	}
	return c.StorageBaseURL
}

// RehostHosts returns the lower-cased host names private image URLs may
// point at.
func (c *Config) RehostHosts() []string {
	var hosts []string
	if u, err := url.Parse(c.StorageBaseURL); err == nil && u.Hostname() != "" {
		hosts = append(hosts, strings.ToLower(u.Hostname()))
	}
	for _, h := range c.RehostAllowedHosts {
		hosts = append(hosts, strings.ToLower(strings.TrimSuffix(h, ".")))
	}
	return hosts
}

// RequireWorkerUpstreams reports every upstream a worker cannot run without.
func (c *Config) RequireWorkerUpstreams() error {
	var missing []string
	if strings.TrimSpace(c.MeshyAPIKey) == "" {
		missing = append(missing, "MESHY_API_KEY")
	}
	if strings.TrimSpace(c.OpenAIAPIKey) == "" {
		missing = append(missing, "OPENAI_API_KEY")
	}
	if c.PublicArtifactURL() == "" {
		missing = append(missing, "CDN_UPLOAD_URL or public STORAGE_BASE_URL")
	}
	if len(missing) > 0 {
		return &domain.UpstreamUnavailableError{Missing: missing}
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

// getEnvDuration accepts Go duration strings ("5s") or plain seconds.
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return fallback
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if i, err := strconv.Atoi(v); err == nil {
		return time.Duration(i) * time.Second
	}
	return fallback
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
