// Package config defines the configuration tree of the KeyConcept binaries.
// This file holds only data types and validation; loading lives in loader.go.
package config

import (
	"strings"
	"time"

	"github.com/turtacn/KeyConcept/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/KeyConcept/pkg/errors"
)

// ─────────────────────────────────────────────────────────────────────────────
// Sections
// ─────────────────────────────────────────────────────────────────────────────

// ServerConfig holds HTTP server tunables.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	Mode            string        `mapstructure:"mode"` // "debug" | "release" | "test"
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	MaxBodySize     int64         `mapstructure:"max_body_size"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	CORSOrigins     []string      `mapstructure:"cors_origins"`
}

// GRPCConfig holds the gRPC listener settings.
type GRPCConfig struct {
	Enabled    bool `mapstructure:"enabled"`
	Port       int  `mapstructure:"port"`
	Reflection bool `mapstructure:"reflection"`
}

// AnalysisConfig selects the text pipeline.
type AnalysisConfig struct {
	// Stemmer is "light", "full" or "none".
	Stemmer string `mapstructure:"stemmer"`

	// StopWordsFile replaces the built-in German list when set.
	StopWordsFile string `mapstructure:"stop_words_file"`

	// ExclusionProfile names the markup patterns removed before analysis.
	ExclusionProfile string `mapstructure:"exclusion_profile"`
}

// OntologyConfig describes where concepts come from and which are hidden.
type OntologyConfig struct {
	Source            string        `mapstructure:"source"` // "file" | "neo4j"
	Path              string        `mapstructure:"path"`
	IncludeNamespaces []string      `mapstructure:"include_namespaces"`
	ExcludeNamespaces []string      `mapstructure:"exclude_namespaces"`
	IgnoreProperties  []string      `mapstructure:"ignore_properties"`
	Watch             bool          `mapstructure:"watch"`
	WatchDebounce     time.Duration `mapstructure:"watch_debounce"`
}

// AnnotationConfig controls link rendering and result caching.
type AnnotationConfig struct {
	MaxSimilarConcepts int           `mapstructure:"max_similar_concepts"`
	SearchURL          string        `mapstructure:"search_url"`
	LinkClass          string        `mapstructure:"link_class"`
	TitlePrefix        string        `mapstructure:"title_prefix"`
	CacheEnabled       bool          `mapstructure:"cache_enabled"`
	CacheTTL           time.Duration `mapstructure:"cache_ttl"`
}

// Neo4jConfig holds the ontology graph connection.
type Neo4jConfig struct {
	URI                   string        `mapstructure:"uri"`
	User                  string        `mapstructure:"user"`
	Password              string        `mapstructure:"password"`
	Database              string        `mapstructure:"database"`
	MaxConnectionPoolSize int           `mapstructure:"max_connection_pool_size"`
	ConnectionTimeout     time.Duration `mapstructure:"connection_timeout"`
}

// RedisConfig holds the annotation cache connection.
type RedisConfig struct {
	Addr         string        `mapstructure:"addr"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	PoolSize     int           `mapstructure:"pool_size"`
	MinIdleConns int           `mapstructure:"min_idle_conns"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	KeyPrefix    string        `mapstructure:"key_prefix"`
}

// DatabaseConfig holds the PostgreSQL connection used for term reports.
type DatabaseConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	DBName          string        `mapstructure:"db_name"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	MaxConns        int           `mapstructure:"max_conns"`
	MinConns        int           `mapstructure:"min_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	MigrationPath   string        `mapstructure:"migration_path"`
}

// KafkaConfig holds the job queue settings.
type KafkaConfig struct {
	Brokers     []string      `mapstructure:"brokers"`
	GroupID     string        `mapstructure:"group_id"`
	JobTopic    string        `mapstructure:"job_topic"`
	ResultTopic string        `mapstructure:"result_topic"`
	BatchSize   int           `mapstructure:"batch_size"`
	Timeout     time.Duration `mapstructure:"timeout"`

	// DeadLetterTopic receives jobs that failed every retry.  Empty disables
	// dead-lettering.
	DeadLetterTopic string `mapstructure:"dead_letter_topic"`
}

// MinIOConfig holds the document store.
type MinIOConfig struct {
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Bucket    string `mapstructure:"bucket"`
	UseSSL    bool   `mapstructure:"use_ssl"`
	Region    string `mapstructure:"region"`
}

// OpenSearchConfig holds the annotated-document index.  Without addresses
// document search and indexing are disabled.
type OpenSearchConfig struct {
	Addresses          []string `mapstructure:"addresses"`
	User               string   `mapstructure:"user"`
	Password           string   `mapstructure:"password"`
	InsecureSkipVerify bool     `mapstructure:"insecure_skip_verify"`
	Index              string   `mapstructure:"index"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	Path           string `mapstructure:"path"`
	Namespace      string `mapstructure:"namespace"`
	ProcessMetrics bool   `mapstructure:"process_metrics"`
	GoMetrics      bool   `mapstructure:"go_metrics"`
}

// WorkerConfig holds annotation worker parameters.
type WorkerConfig struct {
	Concurrency  int           `mapstructure:"concurrency"`
	MaxRetries   int           `mapstructure:"max_retries"`
	RetryBackoff time.Duration `mapstructure:"retry_backoff"`
	OutputSuffix string        `mapstructure:"output_suffix"`
	JobTimeout   time.Duration `mapstructure:"job_timeout"`
}

// APIKey grants a role to the caller presenting Key.
type APIKey struct {
	Name string `mapstructure:"name"`
	Key  string `mapstructure:"key"`
	Role string `mapstructure:"role"` // "user" | "privileged"
}

// AuthConfig lists the accepted API keys.  With no keys configured every
// caller is an unprivileged anonymous user.
type AuthConfig struct {
	Header  string   `mapstructure:"header"`
	APIKeys []APIKey `mapstructure:"api_keys"`
}

// Role names accepted in AuthConfig.
const (
	RoleUser       = "user"
	RolePrivileged = "privileged"
)

// ─────────────────────────────────────────────────────────────────────────────
// Root
// ─────────────────────────────────────────────────────────────────────────────

// Config is the root configuration shared by cmd/keyconcept, cmd/apiserver
// and cmd/worker.  Each binary reads only the sections it needs.
type Config struct {
	Server     ServerConfig      `mapstructure:"server"`
	GRPC       GRPCConfig        `mapstructure:"grpc"`
	Log        logging.LogConfig `mapstructure:"log"`
	Analysis   AnalysisConfig    `mapstructure:"analysis"`
	Ontology   OntologyConfig    `mapstructure:"ontology"`
	Annotation AnnotationConfig  `mapstructure:"annotation"`
	Neo4j      Neo4jConfig       `mapstructure:"neo4j"`
	Redis      RedisConfig       `mapstructure:"redis"`
	Database   DatabaseConfig    `mapstructure:"database"`
	Kafka      KafkaConfig       `mapstructure:"kafka"`
	MinIO      MinIOConfig       `mapstructure:"minio"`
	OpenSearch OpenSearchConfig  `mapstructure:"opensearch"`
	Metrics    MetricsConfig     `mapstructure:"metrics"`
	Worker     WorkerConfig      `mapstructure:"worker"`
	Auth       AuthConfig        `mapstructure:"auth"`
}

// RoleForKey returns the role bound to key, or "" when key is unknown.
func (a AuthConfig) RoleForKey(key string) string {
	if key == "" {
		return ""
	}
	for _, k := range a.APIKeys {
		if k.Key == key {
			return k.Role
		}
	}
	return ""
}

// ─────────────────────────────────────────────────────────────────────────────
// Validation
// ─────────────────────────────────────────────────────────────────────────────

func invalid(format string, args ...interface{}) error {
	return errors.Newf(errors.ErrCodeValidation, "config: "+format, args...)
}

// Validate checks a defaulted Config.  It returns the first violation found;
// binaries refuse to start on any error.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return invalid("server.port %d is out of range [1, 65535]", c.Server.Port)
	}
	switch c.Server.Mode {
	case "debug", "release", "test":
	default:
		return invalid("server.mode %q is invalid; expected debug|release|test", c.Server.Mode)
	}
	if c.GRPC.Enabled && (c.GRPC.Port < 1 || c.GRPC.Port > 65535) {
		return invalid("grpc.port %d is out of range [1, 65535]", c.GRPC.Port)
	}
	if c.GRPC.Enabled && c.GRPC.Port == c.Server.Port {
		return invalid("grpc.port must differ from server.port")
	}

	switch strings.ToLower(c.Log.Level) {
	case logging.LevelDebug, logging.LevelInfo, logging.LevelWarn, logging.LevelError:
	default:
		return invalid("log.level %q is invalid; expected debug|info|warn|error", c.Log.Level)
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		return invalid("log.format %q is invalid; expected json|console", c.Log.Format)
	}

	switch strings.ToLower(c.Analysis.Stemmer) {
	case "light", "full", "none":
	default:
		return invalid("analysis.stemmer %q is invalid; expected light|full|none", c.Analysis.Stemmer)
	}

	switch c.Ontology.Source {
	case "file":
		if c.Ontology.Path == "" {
			return invalid("ontology.path is required for the file source")
		}
	case "neo4j":
		if c.Neo4j.URI == "" {
			return invalid("neo4j.uri is required for the neo4j source")
		}
	default:
		return invalid("ontology.source %q is invalid; expected file|neo4j", c.Ontology.Source)
	}

	if c.Annotation.MaxSimilarConcepts < 1 {
		return invalid("annotation.max_similar_concepts must be ≥ 1, got %d", c.Annotation.MaxSimilarConcepts)
	}

	if c.Database.Enabled {
		if c.Database.Host == "" {
			return invalid("database.host is required")
		}
		if c.Database.DBName == "" {
			return invalid("database.db_name is required")
		}
		if c.Database.MaxConns < 1 {
			return invalid("database.max_conns must be ≥ 1, got %d", c.Database.MaxConns)
		}
	}
	if c.Redis.DB < 0 {
		return invalid("redis.db must be ≥ 0, got %d", c.Redis.DB)
	}
	if len(c.Kafka.Brokers) == 0 {
		return invalid("kafka.brokers must contain at least one broker address")
	}
	if c.Worker.Concurrency < 1 {
		return invalid("worker.concurrency must be ≥ 1, got %d", c.Worker.Concurrency)
	}

	seen := make(map[string]struct{}, len(c.Auth.APIKeys))
	for i, k := range c.Auth.APIKeys {
		if k.Key == "" {
			return invalid("auth.api_keys[%d].key is empty", i)
		}
		if _, dup := seen[k.Key]; dup {
			return invalid("auth.api_keys[%d] repeats a key", i)
		}
		seen[k.Key] = struct{}{}
		if k.Role != RoleUser && k.Role != RolePrivileged {
			return invalid("auth.api_keys[%d].role %q is invalid; expected user|privileged", i, k.Role)
		}
	}
	return nil
}
