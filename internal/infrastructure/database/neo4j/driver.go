// Package neo4j connects to the ontology graph.  The driver types are hidden
// behind small interfaces so that OntologySource can be tested without a
// running database.
package neo4j

import (
	"context"
	"sync"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/turtacn/KeyConcept/internal/config"
	"github.com/turtacn/KeyConcept/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/KeyConcept/pkg/errors"
)

// Result is the subset of neo4j.ResultWithContext used here.
type Result interface {
	Next(ctx context.Context) bool
	Record() *neo4j.Record
	Err() error
}

// Transaction runs Cypher inside a managed transaction.
type Transaction interface {
	Run(ctx context.Context, cypher string, params map[string]any) (Result, error)
}

// TransactionWork is retried by the driver on transient failures, so it must
// not have side effects outside the transaction.
type TransactionWork func(tx Transaction) (any, error)

type session interface {
	ExecuteRead(ctx context.Context, work TransactionWork) (any, error)
	ExecuteWrite(ctx context.Context, work TransactionWork) (any, error)
	Close(ctx context.Context) error
}

type driver interface {
	VerifyConnectivity(ctx context.Context) error
	NewSession(ctx context.Context, cfg neo4j.SessionConfig) session
	Close(ctx context.Context) error
}

type boltTx struct{ tx neo4j.ManagedTransaction }

func (t boltTx) Run(ctx context.Context, cypher string, params map[string]any) (Result, error) {
	return t.tx.Run(ctx, cypher, params)
}

type boltSession struct{ s neo4j.SessionWithContext }

func (s boltSession) ExecuteRead(ctx context.Context, work TransactionWork) (any, error) {
	return s.s.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) { return work(boltTx{tx}) })
}

func (s boltSession) ExecuteWrite(ctx context.Context, work TransactionWork) (any, error) {
	return s.s.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) { return work(boltTx{tx}) })
}

func (s boltSession) Close(ctx context.Context) error { return s.s.Close(ctx) }

type boltDriver struct{ d neo4j.DriverWithContext }

func (d boltDriver) VerifyConnectivity(ctx context.Context) error { return d.d.VerifyConnectivity(ctx) }

func (d boltDriver) NewSession(ctx context.Context, cfg neo4j.SessionConfig) session {
	return boltSession{d.d.NewSession(ctx, cfg)}
}

func (d boltDriver) Close(ctx context.Context) error { return d.d.Close(ctx) }

// Driver owns the bolt connection pool.
type Driver struct {
	d        driver
	database string
	logger   logging.Logger
	once     sync.Once
}

// NewDriver connects to cfg.URI and verifies connectivity.
func NewDriver(ctx context.Context, cfg config.Neo4jConfig, logger logging.Logger) (*Driver, error) {
	logger = logging.OrNop(logger).Named("neo4j")
	d, err := neo4j.NewDriverWithContext(cfg.URI, neo4j.BasicAuth(cfg.User, cfg.Password, ""), func(c *neo4j.Config) {
		if cfg.MaxConnectionPoolSize > 0 {
			c.MaxConnectionPoolSize = cfg.MaxConnectionPoolSize
		}
		if cfg.ConnectionTimeout > 0 {
			c.SocketConnectTimeout = cfg.ConnectionTimeout
			c.ConnectionAcquisitionTimeout = cfg.ConnectionTimeout
		}
	})
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "create neo4j driver").WithDetail(cfg.URI)
	}

	vctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := d.VerifyConnectivity(vctx); err != nil {
		_ = d.Close(context.Background())
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "connect to neo4j").WithDetail(cfg.URI)
	}
	logger.Info("connected to neo4j", logging.String("uri", cfg.URI), logging.String("database", cfg.Database))
	return newDriver(boltDriver{d}, cfg.Database, logger), nil
}

func newDriver(d driver, database string, logger logging.Logger) *Driver {
	if database == "" {
		database = "neo4j"
	}
	return &Driver{d: d, database: database, logger: logging.OrNop(logger)}
}

func (d *Driver) execute(ctx context.Context, mode neo4j.AccessMode, work TransactionWork) (any, error) {
	s := d.d.NewSession(ctx, neo4j.SessionConfig{DatabaseName: d.database, AccessMode: mode})
	defer s.Close(ctx)

	var (
		out any
		err error
	)
	if mode == neo4j.AccessModeRead {
		out, err = s.ExecuteRead(ctx, work)
	} else {
		out, err = s.ExecuteWrite(ctx, work)
	}
	if err != nil {
		if ctx.Err() != nil {
			return nil, err
		}
		d.logger.Error("neo4j transaction failed", logging.Bool("write", mode == neo4j.AccessModeWrite), logging.Err(err))
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "neo4j transaction")
	}
	return out, nil
}

func (d *Driver) ExecuteRead(ctx context.Context, work TransactionWork) (any, error) {
	return d.execute(ctx, neo4j.AccessModeRead, work)
}

func (d *Driver) ExecuteWrite(ctx context.Context, work TransactionWork) (any, error) {
	return d.execute(ctx, neo4j.AccessModeWrite, work)
}

// HealthCheck verifies connectivity and runs a trivial query.
func (d *Driver) HealthCheck(ctx context.Context) error {
	if err := d.d.VerifyConnectivity(ctx); err != nil {
		return errors.Wrap(err, errors.ErrCodeDatabaseError, "neo4j connectivity")
	}
	_, err := d.ExecuteRead(ctx, func(tx Transaction) (any, error) {
		res, err := tx.Run(ctx, "RETURN 1", nil)
		if err != nil {
			return nil, err
		}
		for res.Next(ctx) {
		}
		return nil, res.Err()
	})
	return err
}

// Close releases the pool once; later calls return nil.
func (d *Driver) Close(ctx context.Context) error {
	var err error
	d.once.Do(func() {
		if err = d.d.Close(ctx); err != nil {
			d.logger.Error("neo4j close failed", logging.Err(err))
			return
		}
		d.logger.Info("neo4j driver closed")
	})
	return err
}

// CollectRecords maps every remaining record of res.
func CollectRecords[T any](ctx context.Context, res Result, mapper func(*neo4j.Record) (T, error)) ([]T, error) {
	var out []T
	for res.Next(ctx) {
		v, err := mapper(res.Record())
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	if err := res.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
