package config

import "time"

const (
	DefaultServerPort = 8080
	DefaultServerMode = "release"
	DefaultGRPCPort   = 9090

	DefaultStemmer          = "light"
	DefaultExclusionProfile = "xwiki21"

	DefaultOntologySource = "file"
	DefaultOntologyPath   = "configs/ontology.yaml"

	DefaultMaxSimilarConcepts = 5
	DefaultSearchURL          = "/search"
	DefaultLinkClass          = "similarconcept"
	DefaultTitlePrefix        = "Ähnliche Begriffe:"

	DefaultDBHost     = "localhost"
	DefaultDBPort     = 5432
	DefaultDBName     = "keyconcept"
	DefaultDBMaxConns = 10

	DefaultRedisAddr = "localhost:6379"

	DefaultKafkaBroker      = "localhost:9092"
	DefaultKafkaGroupID     = "keyconcept-worker"
	DefaultKafkaJobTopic    = "keyconcept.annotation.jobs"
	DefaultKafkaResultTopic = "keyconcept.annotation.results"

	DefaultMinIOEndpoint = "localhost:9000"
	DefaultMinIOBucket   = "documents"

	DefaultOpenSearchIndex = "keyconcept-documents"

	DefaultMetricsPath      = "/metrics"
	DefaultMetricsNamespace = "keyconcept"

	DefaultWorkerConcurrency = 4
	DefaultOutputSuffix      = ".enhanced"

	DefaultAuthHeader = "X-API-Key"
)

// ApplyDefaults fills zero-valued fields of cfg.  Explicit values always win,
// so it runs after unmarshalling and before Validate.
func ApplyDefaults(cfg *Config) {
	if cfg == nil {
		return
	}

	// ── Server ────────────────────────────────────────────────────────────────
	if cfg.Server.Port == 0 {
		cfg.Server.Port = DefaultServerPort
	}
	if cfg.Server.Mode == "" {
		cfg.Server.Mode = DefaultServerMode
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 15 * time.Second
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = 30 * time.Second
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 10 * time.Second
	}
	if cfg.Server.MaxBodySize == 0 {
		cfg.Server.MaxBodySize = 8 << 20
	}
	if cfg.GRPC.Port == 0 {
		cfg.GRPC.Port = DefaultGRPCPort
	}

	// ── Log ───────────────────────────────────────────────────────────────────
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}

	// ── Analysis / ontology / annotation ──────────────────────────────────────
	if cfg.Analysis.Stemmer == "" {
		cfg.Analysis.Stemmer = DefaultStemmer
	}
	if cfg.Analysis.ExclusionProfile == "" {
		cfg.Analysis.ExclusionProfile = DefaultExclusionProfile
	}
	if cfg.Ontology.Source == "" {
		cfg.Ontology.Source = DefaultOntologySource
	}
	if cfg.Ontology.Source == DefaultOntologySource && cfg.Ontology.Path == "" {
		cfg.Ontology.Path = DefaultOntologyPath
	}
	if cfg.Ontology.WatchDebounce == 0 {
		cfg.Ontology.WatchDebounce = 500 * time.Millisecond
	}
	if cfg.Annotation.MaxSimilarConcepts == 0 {
		cfg.Annotation.MaxSimilarConcepts = DefaultMaxSimilarConcepts
	}
	if cfg.Annotation.SearchURL == "" {
		cfg.Annotation.SearchURL = DefaultSearchURL
	}
	if cfg.Annotation.LinkClass == "" {
		cfg.Annotation.LinkClass = DefaultLinkClass
	}
	if cfg.Annotation.TitlePrefix == "" {
		cfg.Annotation.TitlePrefix = DefaultTitlePrefix
	}
	if cfg.Annotation.CacheTTL == 0 {
		cfg.Annotation.CacheTTL = 10 * time.Minute
	}

	// ── Stores ────────────────────────────────────────────────────────────────
	if cfg.Neo4j.MaxConnectionPoolSize == 0 {
		cfg.Neo4j.MaxConnectionPoolSize = 50
	}
	if cfg.Neo4j.ConnectionTimeout == 0 {
		cfg.Neo4j.ConnectionTimeout = 10 * time.Second
	}
	if cfg.Redis.Addr == "" {
		cfg.Redis.Addr = DefaultRedisAddr
	}
	if cfg.Redis.KeyPrefix == "" {
		cfg.Redis.KeyPrefix = "keyconcept:"
	}
	if cfg.Database.Host == "" {
		cfg.Database.Host = DefaultDBHost
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = DefaultDBPort
	}
	if cfg.Database.DBName == "" {
		cfg.Database.DBName = DefaultDBName
	}
	if cfg.Database.MaxConns == 0 {
		cfg.Database.MaxConns = DefaultDBMaxConns
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = "disable"
	}
	if cfg.Database.MigrationPath == "" {
		cfg.Database.MigrationPath = "file://migrations"
	}

	// ── Jobs ──────────────────────────────────────────────────────────────────
	if len(cfg.Kafka.Brokers) == 0 {
		cfg.Kafka.Brokers = []string{DefaultKafkaBroker}
	}
	if cfg.Kafka.GroupID == "" {
		cfg.Kafka.GroupID = DefaultKafkaGroupID
	}
	if cfg.Kafka.JobTopic == "" {
		cfg.Kafka.JobTopic = DefaultKafkaJobTopic
	}
	if cfg.Kafka.ResultTopic == "" {
		cfg.Kafka.ResultTopic = DefaultKafkaResultTopic
	}
	if cfg.Kafka.Timeout == 0 {
		cfg.Kafka.Timeout = 10 * time.Second
	}
	if cfg.MinIO.Endpoint == "" {
		cfg.MinIO.Endpoint = DefaultMinIOEndpoint
	}
	if cfg.MinIO.Bucket == "" {
		cfg.MinIO.Bucket = DefaultMinIOBucket
	}
	if cfg.OpenSearch.Index == "" {
		cfg.OpenSearch.Index = DefaultOpenSearchIndex
	}
	if cfg.Worker.Concurrency == 0 {
		cfg.Worker.Concurrency = DefaultWorkerConcurrency
	}
	if cfg.Worker.MaxRetries == 0 {
		cfg.Worker.MaxRetries = 3
	}
	if cfg.Worker.RetryBackoff == 0 {
		cfg.Worker.RetryBackoff = time.Second
	}
	if cfg.Worker.OutputSuffix == "" {
		cfg.Worker.OutputSuffix = DefaultOutputSuffix
	}
	if cfg.Worker.JobTimeout == 0 {
		cfg.Worker.JobTimeout = time.Minute
	}

	// ── Metrics / auth ────────────────────────────────────────────────────────
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = DefaultMetricsPath
	}
	if cfg.Metrics.Namespace == "" {
		cfg.Metrics.Namespace = DefaultMetricsNamespace
	}
	if cfg.Auth.Header == "" {
		cfg.Auth.Header = DefaultAuthHeader
	}
}

// Default returns a fully defaulted Config, suitable for the CLI when no
// configuration file is given.
func Default() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}
