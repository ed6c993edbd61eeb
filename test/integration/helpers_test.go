//go:build integration

// Package integration runs the KeyConcept stack against real backends
// started with testcontainers.  Run with: go test -tags integration ./test/...
package integration

import (
	"context"
	"fmt"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/turtacn/KeyConcept/internal/application/annotation"
	"github.com/turtacn/KeyConcept/internal/application/ontology_loader"
	"github.com/turtacn/KeyConcept/internal/application/termstats"
	"github.com/turtacn/KeyConcept/internal/config"
	"github.com/turtacn/KeyConcept/internal/domain/conceptindex"
	"github.com/turtacn/KeyConcept/internal/domain/ontology"
	"github.com/turtacn/KeyConcept/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/KeyConcept/internal/intelligence/stemmer"
	"github.com/turtacn/KeyConcept/internal/intelligence/textanalysis"
	httpserver "github.com/turtacn/KeyConcept/internal/interfaces/http"
	"github.com/turtacn/KeyConcept/internal/interfaces/http/handlers"
	"github.com/turtacn/KeyConcept/pkg/client"
)

const (
	herbsPath     = "../../internal/domain/ontology/testdata/herbs.yaml"
	migrationsURL = "file://../../migrations"

	privilegedKey = "curator-key"
)

// startContainer launches req and returns the host:port of its first
// exposed port.
func startContainer(t *testing.T, req testcontainers.ContainerRequest) string {
	t.Helper()
	if testing.Short() {
		t.Skip("integration test skipped in short mode")
	}
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	endpoint, err := container.Endpoint(ctx, "")
	require.NoError(t, err)
	return endpoint
}

func startPostgres(t *testing.T) config.DatabaseConfig {
	t.Helper()
	ctx := context.Background()
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:16-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "test",
				"POSTGRES_PASSWORD": "test",
				"POSTGRES_DB":       "keyconcept_test",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432/tcp")
	require.NoError(t, err)

	return config.DatabaseConfig{
		Enabled:       true,
		Host:          host,
		Port:          port.Int(),
		User:          "test",
		Password:      "test",
		DBName:        "keyconcept_test",
		SSLMode:       "disable",
		MaxConns:      4,
		MigrationPath: migrationsURL,
	}
}

func startRedis(t *testing.T) config.RedisConfig {
	t.Helper()
	addr := startContainer(t, testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForListeningPort("6379/tcp").WithStartupTimeout(30 * time.Second),
	})
	return config.RedisConfig{Addr: addr, KeyPrefix: "keyconcept-it:", DialTimeout: 5 * time.Second}
}

func startMinIO(t *testing.T) config.MinIOConfig {
	t.Helper()
	endpoint := startContainer(t, testcontainers.ContainerRequest{
		Image:        "minio/minio:RELEASE.2024-01-16T16-07-38Z",
		ExposedPorts: []string{"9000/tcp"},
		Cmd:          []string{"server", "/data"},
		Env: map[string]string{
			"MINIO_ROOT_USER":     "minioadmin",
			"MINIO_ROOT_PASSWORD": "minioadmin",
		},
		WaitingFor: wait.ForHTTP("/minio/health/live").WithPort("9000/tcp").WithStartupTimeout(60 * time.Second),
	})
	return config.MinIOConfig{
		Endpoint:  endpoint,
		AccessKey: "minioadmin",
		SecretKey: "minioadmin",
		Bucket:    "documents",
	}
}

// pipeline is the analysis stack over the herbs test ontology.
type pipeline struct {
	analyzer *textanalysis.Analyzer
	index    *conceptindex.Index
	loader   *ontology_loader.Loader
}

func newPipeline(t *testing.T) *pipeline {
	t.Helper()
	analyzer := textanalysis.NewAnalyzer(stemmer.None{}, textanalysis.WithStopWords(textanalysis.NewStopWords("der", "und", "das")))
	index := conceptindex.New(analyzer, ontology.ExclusionPolicy{})
	loader, err := ontology_loader.New(index, ontology.NewFileSource(herbsPath), ontology_loader.WithLogger(logging.NewNopLogger()))
	require.NoError(t, err)
	_, err = loader.Load(context.Background())
	require.NoError(t, err)
	return &pipeline{analyzer: analyzer, index: index, loader: loader}
}

// serve starts the HTTP API over the given services and returns an SDK
// client authenticated with the privileged key.
func serve(t *testing.T, p *pipeline, ann annotation.Service, terms termstats.Service) *client.Client {
	t.Helper()
	log := logging.NewNopLogger()
	router := httpserver.NewRouter(httpserver.RouterConfig{
		AnnotationHandler: handlers.NewAnnotationHandler(ann, log),
		IndexHandler:      handlers.NewIndexHandler(p.index, p.loader, log),
		TermsHandler:      handlers.NewTermsHandler(terms, log),
		HealthHandler:     handlers.NewHealthHandler("integration"),
		Server:            config.ServerConfig{Mode: "test", MaxBodySize: 1 << 20},
		Auth: config.AuthConfig{APIKeys: []config.APIKey{
			{Name: "curator", Key: privilegedKey, Role: config.RolePrivileged},
		}},
		Logger: log,
	})
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	c, err := client.NewClient(srv.URL, privilegedKey, client.WithRetryMax(0))
	require.NoError(t, err)
	return c
}

func uniqueName(prefix string) string {
	return fmt.Sprintf("%s-%d", prefix, time.Now().UnixNano())
}
