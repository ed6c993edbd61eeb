package config

import (
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"github.com/turtacn/KeyConcept/pkg/errors"
)

// envPrefix prefixes every environment override, e.g. KEYCONCEPT_SERVER_PORT.
const envPrefix = "KEYCONCEPT"

// envKeys are bound explicitly so that Unmarshal sees environment values for
// keys absent from the file.
var envKeys = []string{
	"server.host", "server.port", "server.mode",
	"grpc.enabled", "grpc.port", "grpc.reflection",
	"log.level", "log.format",
	"analysis.stemmer", "analysis.stop_words_file", "analysis.exclusion_profile",
	"ontology.source", "ontology.path", "ontology.watch",
	"annotation.max_similar_concepts", "annotation.search_url", "annotation.cache_enabled", "annotation.cache_ttl",
	"neo4j.uri", "neo4j.user", "neo4j.password", "neo4j.database",
	"redis.addr", "redis.password", "redis.db",
	"database.enabled", "database.host", "database.port", "database.user", "database.password", "database.db_name",
	"kafka.brokers", "kafka.group_id", "kafka.job_topic", "kafka.result_topic", "kafka.dead_letter_topic",
	"minio.endpoint", "minio.access_key", "minio.secret_key", "minio.bucket", "minio.use_ssl",
	"opensearch.addresses", "opensearch.user", "opensearch.password", "opensearch.index",
	"metrics.enabled", "metrics.namespace",
	"worker.concurrency",
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, k := range envKeys {
		_ = v.BindEnv(k)
	}
	return v
}

// Load reads the YAML file at path, applies KEYCONCEPT_* overrides and
// defaults, and validates the result.  An empty path loads from the
// environment alone.
func Load(path string) (*Config, error) {
	v := newViper()
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeValidation, "config: read file").WithDetail(path)
		}
	}
	return finalize(v)
}

// LoadFromEnv builds a Config from KEYCONCEPT_* variables only.
func LoadFromEnv() (*Config, error) {
	return Load("")
}

func finalize(v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeValidation, "config: unmarshal")
	}
	// Comma separated env values arrive as a single element.
	cfg.Kafka.Brokers = splitList(cfg.Kafka.Brokers)
	cfg.OpenSearch.Addresses = splitList(cfg.OpenSearch.Addresses)

	ApplyDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func splitList(in []string) []string {
	var out []string
	for _, s := range in {
		for _, part := range strings.Split(s, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

// Watcher delivers re-parsed configurations after the file changes on disk.
// Invalid revisions are reported to onError and never reach onChange.
type Watcher struct {
	v        *viper.Viper
	mu       sync.Mutex
	current  *Config
	onChange []func(*Config)
}

// Watch starts watching path.  It performs an initial load and fails if that
// load fails; later parse errors go to onError, which may be nil.
func Watch(path string, onChange func(*Config), onError func(error)) (*Watcher, error) {
	v := newViper()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeValidation, "config: read file").WithDetail(path)
	}
	cfg, err := finalize(v)
	if err != nil {
		return nil, err
	}
	w := &Watcher{v: v, current: cfg}
	if onChange != nil {
		w.onChange = append(w.onChange, onChange)
	}
	v.OnConfigChange(func(fsnotify.Event) {
		next, err := finalize(v)
		if err != nil {
			if onError != nil {
				onError(err)
			}
			return
		}
		w.mu.Lock()
		w.current = next
		callbacks := append([]func(*Config){}, w.onChange...)
		w.mu.Unlock()
		for _, fn := range callbacks {
			fn(next)
		}
	})
	v.WatchConfig()
	return w, nil
}

// OnChange registers fn for every later valid revision.
func (w *Watcher) OnChange(fn func(*Config)) {
	w.mu.Lock()
	w.onChange = append(w.onChange, fn)
	w.mu.Unlock()
}

// Current returns the most recent valid configuration.
func (w *Watcher) Current() *Config {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current
}

// MustLoad panics when Load fails.  main() only.
func MustLoad(path string) *Config {
	cfg, err := Load(path)
	if err != nil {
		panic("config: " + err.Error())
	}
	return cfg
}
