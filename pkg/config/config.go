// Package config loads and validates the run configuration from YAML files
// with environment-variable overrides. It provides typed structs for the
// cross-validation run, coherence scoring, vocabulary filtering, exports and
// every optional backing service (Postgres, Kafka, Redis, metrics).
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	apperrors "github.com/Adithya-Monish-Kumar-K/topic-crossval/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Alpha estimation modes.
const (
	AlphaSymmetric = "symmetric"
	AlphaAuto      = "auto"
)

// Config is the top-level application configuration.
type Config struct {
	Run        RunConfig        `yaml:"run"`
	Coherence  CoherenceConfig  `yaml:"coherence"`
	Vocabulary VocabularyConfig `yaml:"vocabulary"`
	Input      InputConfig      `yaml:"input"`
	Export     ExportConfig     `yaml:"export"`
	Postgres   PostgresConfig   `yaml:"postgres"`
	Kafka      KafkaConfig      `yaml:"kafka"`
	Redis      RedisConfig      `yaml:"redis"`
	Logging    LoggingConfig    `yaml:"logging"`
	Metrics    MetricsConfig    `yaml:"metrics"`
}

// RunConfig controls fold splitting, the topic-count sweep and the
// variational trainer. It is treated as immutable once a run starts.
type RunConfig struct {
	Folds           int           `yaml:"folds"`
	Shuffle         bool          `yaml:"shuffle"`
	Seed            uint64        `yaml:"seed"`
	FixedK          int           `yaml:"fixedK"`
	CandidateKs     []int         `yaml:"candidateKs"`
	MaxIterations   int           `yaml:"maxIterations"`
	Tolerance       float64       `yaml:"tolerance"`
	GammaIterations int           `yaml:"gammaIterations"`
	GammaThreshold  float64       `yaml:"gammaThreshold"`
	Alpha           float64       `yaml:"alpha"`
	AlphaMode       string        `yaml:"alphaMode"`
	Eta             float64       `yaml:"eta"`
	Workers         int           `yaml:"workers"`
	FoldWorkers     int           `yaml:"foldWorkers"`
	FoldTimeout     time.Duration `yaml:"foldTimeout"`
}

// Sweeping reports whether the run selects K per fold instead of using a
// fixed topic count.
func (r RunConfig) Sweeping() bool {
	return len(r.CandidateKs) > 0
}

// CoherenceConfig controls the sliding-window coherence metric.
type CoherenceConfig struct {
	TopN   int `yaml:"topN"`
	Window int `yaml:"window"`
}

// VocabularyConfig holds optional document-frequency filters. Zero values
// disable filtering.
type VocabularyConfig struct {
	MinDocFreq int     `yaml:"minDocFreq"`
	MaxDocFreq float64 `yaml:"maxDocFreq"`
}

// InputConfig locates the corpus and tunes the tokenizer applied to
// records that carry raw text.
type InputConfig struct {
	Path           string   `yaml:"path"`
	MinTokenLength int      `yaml:"minTokenLength"`
	Stem           bool     `yaml:"stem"`
	StripAccents   bool     `yaml:"stripAccents"`
	StopWords      []string `yaml:"stopWords"`
}

// ExportConfig controls the tabular outputs, the HTML report and the
// optional SQLite results file.
type ExportConfig struct {
	Dir          string `yaml:"dir"`
	Similarity   bool   `yaml:"similarity"`
	KeywordsTopN int    `yaml:"keywordsTopN"`
	ReportPath   string `yaml:"reportPath"`
	SQLitePath   string `yaml:"sqlitePath"`
}

// PostgresConfig holds PostgreSQL connection parameters for the result sink.
type PostgresConfig struct {
	Enabled         bool          `yaml:"enabled"`
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

// KafkaConfig holds Kafka broker and topic settings for the result sink.
type KafkaConfig struct {
	Enabled           bool     `yaml:"enabled"`
	Brokers           []string `yaml:"brokers"`
	Topic             string   `yaml:"topic"`
	BatchSize         int      `yaml:"batchSize"`
	MessagesPerSecond float64  `yaml:"messagesPerSecond"`
}

// RedisConfig holds Redis connection and model-cache parameters.
type RedisConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	PoolSize int           `yaml:"poolSize"`
	CacheTTL time.Duration `yaml:"cacheTTL"`
}

// LoggingConfig controls structured logging level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig controls the Prometheus metrics server.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// Load reads a YAML config file (if provided), applies environment-variable
// overrides and validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, apperrors.Newf(apperrors.ErrInvalidConfiguration, "parsing config file %s: %v", path, err)
		}
	}
	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns a Config matching the original analysis settings: five
// shuffled folds, ten topics, ten passes, top-10 coherence words over
// 110-token windows.
func Default() *Config {
	return &Config{
		Run: RunConfig{
			Folds:           5,
			Shuffle:         true,
			Seed:            42,
			FixedK:          10,
			MaxIterations:   10,
			Tolerance:       1e-4,
			GammaIterations: 50,
			GammaThreshold:  1e-3,
			AlphaMode:       AlphaSymmetric,
			Workers:         4,
			FoldWorkers:     2,
			FoldTimeout:     10 * time.Minute,
		},
		Coherence: CoherenceConfig{
			TopN:   10,
			Window: 110,
		},
		Input: InputConfig{
			MinTokenLength: 3,
			StripAccents:   true,
		},
		Export: ExportConfig{
			Dir:          "out",
			KeywordsTopN: 10,
			ReportPath:   "out/report.html",
		},
		Postgres: PostgresConfig{
			Host:            "localhost",
			Port:            5432,
			Database:        "topics",
			User:            "topics",
			Password:        "localdev",
			SSLMode:         "disable",
			MaxOpenConns:    10,
			MaxIdleConns:    2,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Kafka: KafkaConfig{
			Brokers:   []string{"localhost:9092"},
			Topic:     "topic-distributions",
			BatchSize: 100,
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			PoolSize: 10,
			CacheTTL: 24 * time.Hour,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Metrics: MetricsConfig{
			Port: 9090,
		},
	}
}

// Validate checks every setting that must hold before training starts.
func (c *Config) Validate() error {
	if err := c.Run.Validate(); err != nil {
		return err
	}
	if c.Coherence.TopN < 2 {
		return apperrors.Newf(apperrors.ErrInvalidConfiguration, "coherence topN must be at least 2, got %d", c.Coherence.TopN)
	}
	if c.Coherence.Window < 2 {
		return apperrors.Newf(apperrors.ErrInvalidConfiguration, "coherence window must be at least 2, got %d", c.Coherence.Window)
	}
	if c.Vocabulary.MinDocFreq < 0 {
		return apperrors.Newf(apperrors.ErrInvalidConfiguration, "minDocFreq must not be negative")
	}
	if c.Vocabulary.MaxDocFreq < 0 || c.Vocabulary.MaxDocFreq > 1 {
		return apperrors.Newf(apperrors.ErrInvalidConfiguration, "maxDocFreq must be within [0, 1], got %g", c.Vocabulary.MaxDocFreq)
	}
	if c.Kafka.Enabled && (len(c.Kafka.Brokers) == 0 || c.Kafka.Topic == "") {
		return apperrors.New(apperrors.ErrInvalidConfiguration, "kafka sink needs brokers and a topic")
	}
	if c.Kafka.MessagesPerSecond < 0 {
		return apperrors.New(apperrors.ErrInvalidConfiguration, "kafka messagesPerSecond must not be negative")
	}
	if c.Export.KeywordsTopN < 1 {
		return apperrors.Newf(apperrors.ErrInvalidConfiguration, "keywordsTopN must be positive, got %d", c.Export.KeywordsTopN)
	}
	return nil
}

// Validate checks the run settings.
func (r RunConfig) Validate() error {
	if r.Folds < 2 {
		return apperrors.Newf(apperrors.ErrInvalidConfiguration, "folds must be at least 2, got %d", r.Folds)
	}
	if r.Sweeping() {
		for _, k := range r.CandidateKs {
			if k < 2 {
				return apperrors.Newf(apperrors.ErrInvalidConfiguration, "candidate topic count must be at least 2, got %d", k)
			}
		}
	} else if r.FixedK < 2 {
		return apperrors.Newf(apperrors.ErrInvalidConfiguration, "fixedK must be at least 2 when no candidateKs are given, got %d", r.FixedK)
	}
	if r.MaxIterations < 1 {
		return apperrors.Newf(apperrors.ErrInvalidConfiguration, "maxIterations must be positive, got %d", r.MaxIterations)
	}
	if r.Tolerance < 0 || r.GammaThreshold < 0 {
		return apperrors.New(apperrors.ErrInvalidConfiguration, "tolerances must not be negative")
	}
	if r.GammaIterations < 1 {
		return apperrors.Newf(apperrors.ErrInvalidConfiguration, "gammaIterations must be positive, got %d", r.GammaIterations)
	}
	if r.Alpha < 0 || r.Eta < 0 {
		return apperrors.New(apperrors.ErrInvalidConfiguration, "alpha and eta must not be negative")
	}
	switch r.AlphaMode {
	case AlphaSymmetric, AlphaAuto:
	default:
		return apperrors.Newf(apperrors.ErrInvalidConfiguration, "unknown alphaMode %q", r.AlphaMode)
	}
	if r.Workers < 1 || r.FoldWorkers < 1 {
		return apperrors.New(apperrors.ErrInvalidConfiguration, "workers and foldWorkers must be positive")
	}
	if r.FoldTimeout < 0 {
		return apperrors.New(apperrors.ErrInvalidConfiguration, "foldTimeout must not be negative")
	}
	return nil
}

// applyEnvOverrides reads TC_* environment variables and overrides the
// corresponding config fields.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("TC_RUN_FOLDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Run.Folds = n
		}
	}
	if v := os.Getenv("TC_RUN_SEED"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			cfg.Run.Seed = n
		}
	}
	if v := os.Getenv("TC_RUN_FIXED_K"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Run.FixedK = n
		}
	}
	if v := os.Getenv("TC_RUN_CANDIDATE_KS"); v != "" {
		ks := make([]int, 0)
		for _, part := range strings.Split(v, ",") {
			if n, err := strconv.Atoi(strings.TrimSpace(part)); err == nil {
				ks = append(ks, n)
			}
		}
		cfg.Run.CandidateKs = ks
	}
	if v := os.Getenv("TC_RUN_MAX_ITERATIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Run.MaxIterations = n
		}
	}
	if v := os.Getenv("TC_RUN_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Run.Workers = n
		}
	}
	if v := os.Getenv("TC_RUN_FOLD_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Run.FoldTimeout = d
		}
	}
	if v := os.Getenv("TC_INPUT_PATH"); v != "" {
		cfg.Input.Path = v
	}
	if v := os.Getenv("TC_EXPORT_DIR"); v != "" {
		cfg.Export.Dir = v
	}
	if v := os.Getenv("TC_EXPORT_REPORT_PATH"); v != "" {
		cfg.Export.ReportPath = v
	}
	if v := os.Getenv("TC_EXPORT_SQLITE_PATH"); v != "" {
		cfg.Export.SQLitePath = v
	}
	if v := os.Getenv("TC_POSTGRES_HOST"); v != "" {
		cfg.Postgres.Host = v
	}
	if v := os.Getenv("TC_POSTGRES_PASSWORD"); v != "" {
		cfg.Postgres.Password = v
	}
	if v := os.Getenv("TC_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("TC_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("TC_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("TC_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("TC_LOGGING_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
}
