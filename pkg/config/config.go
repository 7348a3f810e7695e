// Package config loads and validates application configuration from YAML
// files with environment-variable overrides. It provides typed structs for
// every subsystem (Server, Corpus, Retrieval, Auth, FGA, Redis, Kafka, etc.).
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Corpus    CorpusConfig    `yaml:"corpus"`
	Retrieval RetrievalConfig `yaml:"retrieval"`
	Auth      AuthConfig      `yaml:"auth"`
	FGA       FGAConfig       `yaml:"fga"`
	Postgres  PostgresConfig  `yaml:"postgres"`
	Redis     RedisConfig     `yaml:"redis"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	RateLimit RateLimitConfig `yaml:"rateLimit"`
	Logging   LoggingConfig   `yaml:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
}

// CorpusConfig selects where the document collection is loaded from at
// startup. Source is either "file" (YAML) or "postgres".
type CorpusConfig struct {
	Source string `yaml:"source"`
	Path   string `yaml:"path"`
	Table  string `yaml:"table"`
}

// RetrievalConfig controls ranking and the optional candidate cache.
type RetrievalConfig struct {
	TopK         int  `yaml:"topK"`
	MaxTopK      int  `yaml:"maxTopK"`
	CacheEnabled bool `yaml:"cacheEnabled"`
}

// AuthConfig controls caller authentication. When Domain and Audience are
// set, bearer tokens are validated against the issuer's JWKS. AllowDevAuth
// additionally accepts the X-Dev-User header for local development.
type AuthConfig struct {
	Domain       string        `yaml:"domain"`
	Audience     string        `yaml:"audience"`
	Issuer       string        `yaml:"issuer"`
	JWKSRefresh  time.Duration `yaml:"jwksRefresh"`
	AllowDevAuth bool          `yaml:"allowDevAuth"`
}

// FGAConfig holds the OpenFGA / Auth0 FGA decision-point settings.
// Mode is "fga" for the remote Check API or "roles" for the explicit
// offline role-heuristic policy (local demos only).
type FGAConfig struct {
	Mode         string        `yaml:"mode"`
	APIURL       string        `yaml:"apiUrl"`
	StoreID      string        `yaml:"storeId"`
	ModelID      string        `yaml:"modelId"`
	BearerToken  string        `yaml:"bearerToken"`
	CheckTimeout time.Duration `yaml:"checkTimeout"`
}

// PostgresConfig holds PostgreSQL connection parameters for the optional
// postgres corpus source.
type PostgresConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	Database        string        `yaml:"database"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	SSLMode         string        `yaml:"sslMode"`
	MaxOpenConns    int           `yaml:"maxOpenConns"`
	MaxIdleConns    int           `yaml:"maxIdleConns"`
	ConnMaxLifetime time.Duration `yaml:"connMaxLifetime"`
}

// DSN returns a lib/pq-compatible data source name.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

// RedisConfig holds Redis connection parameters for the rank cache.
type RedisConfig struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	PoolSize int           `yaml:"poolSize"`
	CacheTTL time.Duration `yaml:"cacheTTL"`
}

// KafkaConfig holds Kafka broker settings for the audit trail.
type KafkaConfig struct {
	Enabled    bool     `yaml:"enabled"`
	Brokers    []string `yaml:"brokers"`
	AuditTopic string   `yaml:"auditTopic"`
}

// RateLimitConfig controls per-identity request limiting.
type RateLimitConfig struct {
	RequestsPerMinute int `yaml:"requestsPerMinute"`
}

// LoggingConfig controls structured logging level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig controls the Prometheus metrics endpoint.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// Load reads a YAML config file (if provided) and applies environment-variable
// overrides. It returns a Config populated with sensible defaults for any
// missing values.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}
	applyEnvOverrides(cfg)
	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// defaultConfig returns a Config with defaults for local development.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 15 * time.Second,
		},
		Corpus: CorpusConfig{
			Source: "file",
			Path:   "configs/corpus.yaml",
			Table:  "documents",
		},
		Retrieval: RetrievalConfig{
			TopK:         3,
			MaxTopK:      25,
			CacheEnabled: true,
		},
		Auth: AuthConfig{
			JWKSRefresh:  time.Hour,
			AllowDevAuth: true,
		},
		FGA: FGAConfig{
			Mode:         "roles",
			CheckTimeout: 2 * time.Second,
		},
		Postgres: PostgresConfig{
			Host:            "localhost",
			Port:            5432,
			Database:        "answergate",
			User:            "answergate",
			Password:        "localdev",
			SSLMode:         "disable",
			MaxOpenConns:    10,
			MaxIdleConns:    2,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			Password: "",
			DB:       0,
			PoolSize: 10,
			CacheTTL: 60 * time.Second,
		},
		Kafka: KafkaConfig{
			Enabled:    false,
			Brokers:    []string{"localhost:9092"},
			AuditTopic: "query-audit",
		},
		RateLimit: RateLimitConfig{
			RequestsPerMinute: 120,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9090,
		},
	}
}

// validate rejects configurations that cannot produce a working service.
func validate(cfg *Config) error {
	switch cfg.Corpus.Source {
	case "file", "postgres":
	default:
		return fmt.Errorf("corpus.source must be \"file\" or \"postgres\", got %q", cfg.Corpus.Source)
	}
	switch cfg.FGA.Mode {
	case "fga":
		if cfg.FGA.APIURL == "" || cfg.FGA.StoreID == "" {
			return fmt.Errorf("fga.mode=fga requires fga.apiUrl and fga.storeId")
		}
	case "roles":
	default:
		return fmt.Errorf("fga.mode must be \"fga\" or \"roles\", got %q", cfg.FGA.Mode)
	}
	if cfg.Retrieval.TopK <= 0 {
		return fmt.Errorf("retrieval.topK must be positive, got %d", cfg.Retrieval.TopK)
	}
	return nil
}

// applyEnvOverrides reads AG_* environment variables and overrides the
// corresponding config fields.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("AG_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("AG_CORPUS_SOURCE"); v != "" {
		cfg.Corpus.Source = v
	}
	if v := os.Getenv("AG_CORPUS_PATH"); v != "" {
		cfg.Corpus.Path = v
	}
	if v := os.Getenv("AG_RETRIEVAL_TOPK"); v != "" {
		if k, err := strconv.Atoi(v); err == nil {
			cfg.Retrieval.TopK = k
		}
	}
	if v := os.Getenv("AG_AUTH_DOMAIN"); v != "" {
		cfg.Auth.Domain = v
	}
	if v := os.Getenv("AG_AUTH_AUDIENCE"); v != "" {
		cfg.Auth.Audience = v
	}
	if v := os.Getenv("AG_AUTH_ISSUER"); v != "" {
		cfg.Auth.Issuer = v
	}
	if v := os.Getenv("AG_ALLOW_DEV_AUTH"); v != "" {
		cfg.Auth.AllowDevAuth = isTruthy(v)
	}
	if v := os.Getenv("AG_FGA_MODE"); v != "" {
		cfg.FGA.Mode = v
	}
	if v := os.Getenv("AG_FGA_API_URL"); v != "" {
		cfg.FGA.APIURL = v
	}
	if v := os.Getenv("AG_FGA_STORE_ID"); v != "" {
		cfg.FGA.StoreID = v
	}
	if v := os.Getenv("AG_FGA_MODEL_ID"); v != "" {
		cfg.FGA.ModelID = v
	}
	if v := os.Getenv("AG_FGA_BEARER_TOKEN"); v != "" {
		cfg.FGA.BearerToken = v
	}
	if v := os.Getenv("AG_POSTGRES_HOST"); v != "" {
		cfg.Postgres.Host = v
	}
	if v := os.Getenv("AG_POSTGRES_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Postgres.Port = port
		}
	}
	if v := os.Getenv("AG_POSTGRES_DATABASE"); v != "" {
		cfg.Postgres.Database = v
	}
	if v := os.Getenv("AG_POSTGRES_USER"); v != "" {
		cfg.Postgres.User = v
	}
	if v := os.Getenv("AG_POSTGRES_PASSWORD"); v != "" {
		cfg.Postgres.Password = v
	}
	if v := os.Getenv("AG_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("AG_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("AG_KAFKA_ENABLED"); v != "" {
		cfg.Kafka.Enabled = isTruthy(v)
	}
	if v := os.Getenv("AG_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("AG_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("AG_LOGGING_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
}

func isTruthy(v string) bool {
	switch strings.ToLower(v) {
	case "1", "true", "yes":
		return true
	}
	return false
}
