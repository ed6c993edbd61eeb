package main

import (
	"context"

	"github.com/turtacn/KeyConcept/internal/application/ontology_loader"
	"github.com/turtacn/KeyConcept/internal/infrastructure/database/neo4j"
	"github.com/turtacn/KeyConcept/internal/infrastructure/database/postgres"
	"github.com/turtacn/KeyConcept/internal/infrastructure/database/redis"
	"github.com/turtacn/KeyConcept/internal/infrastructure/search/opensearch"
	"github.com/turtacn/KeyConcept/pkg/errors"
)

// Adapters for HealthHandler
type postgresHealthAdapter struct {
	conn *postgres.Connection
}

func (a *postgresHealthAdapter) Name() string {
	return "postgres"
}

func (a *postgresHealthAdapter) Check(ctx context.Context) error {
	return a.conn.HealthCheck(ctx)
}

type redisHealthAdapter struct {
	client *redis.Client
}

func (a *redisHealthAdapter) Name() string {
	return "redis"
}

func (a *redisHealthAdapter) Check(ctx context.Context) error {
	return a.client.Ping(ctx)
}

type neo4jHealthAdapter struct {
	driver *neo4j.Driver
}

func (a *neo4jHealthAdapter) Name() string {
	return "neo4j"
}

func (a *neo4jHealthAdapter) Check(ctx context.Context) error {
	return a.driver.HealthCheck(ctx)
}

type opensearchHealthAdapter struct {
	client *opensearch.Client
}

func (a *opensearchHealthAdapter) Name() string {
	return "opensearch"
}

func (a *opensearchHealthAdapter) Check(ctx context.Context) error {
	return a.client.Ping(ctx)
}

// indexHealthAdapter is unhealthy until the first ontology load succeeds.
type indexHealthAdapter struct {
	loader *ontology_loader.Loader
}

func (a *indexHealthAdapter) Name() string {
	return "concept_index"
}

func (a *indexHealthAdapter) Check(ctx context.Context) error {
	if !a.loader.Ready() {
		return errors.New(errors.ErrCodeServiceUnavailable, "concept index not loaded")
	}
	return nil
}
