package postgres

import (
	"database/sql"
	stderrors "errors"
	"strconv"

	"github.com/golang-migrate/migrate/v4"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"

	"github.com/turtacn/KeyConcept/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/KeyConcept/pkg/errors"
)

// Migrator applies the schema migrations under a golang-migrate source URL
// such as "file://migrations".
type Migrator struct {
	m      migration
	logger logging.Logger
}

// migration is the subset of *migrate.Migrate used here.
type migration interface {
	Up() error
	Steps(n int) error
	Version() (uint, bool, error)
	Force(v int) error
}

// NewMigrator binds the migrations at sourceURL to db.
func NewMigrator(db *sql.DB, sourceURL string, log logging.Logger) (*Migrator, error) {
	drv, err := migratepg.WithInstance(db, &migratepg.Config{})
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to create migration driver")
	}
	m, err := migrate.NewWithDatabaseInstance(sourceURL, "postgres", drv)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to create migrate instance")
	}
	return &Migrator{m: m, logger: logging.OrNop(log).Named("migrate")}, nil
}

// Up applies all pending migrations.  An up-to-date schema is not an error.
func (g *Migrator) Up() error {
	if err := g.m.Up(); err != nil && !stderrors.Is(err, migrate.ErrNoChange) {
		version, _, _ := g.Version()
		return errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to run migrations").
			WithDetail("version=" + strconv.FormatUint(uint64(version), 10))
	}
	version, dirty, err := g.Version()
	if err != nil {
		return err
	}
	g.logger.Info("database migrations completed", logging.Int64("version", int64(version)), logging.Bool("dirty", dirty))
	return nil
}

// Down rolls back steps migrations.
func (g *Migrator) Down(steps int) error {
	if steps <= 0 {
		return errors.Newf(errors.ErrCodeValidation, "steps must be greater than 0, got %d", steps)
	}
	if err := g.m.Steps(-steps); err != nil {
		if stderrors.Is(err, migrate.ErrNoChange) {
			return errors.New(errors.ErrCodeConflict, "no migrations to roll back")
		}
		return errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to roll back migrations")
	}
	g.logger.Info("database migrations rolled back", logging.Int("steps", steps))
	return nil
}

// Version returns the applied version; zero when nothing was applied.  A
// dirty schema needs Force after manual repair.
func (g *Migrator) Version() (uint, bool, error) {
	v, dirty, err := g.m.Version()
	if err != nil {
		if stderrors.Is(err, migrate.ErrNilVersion) {
			return 0, false, nil
		}
		return 0, false, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to read migration version")
	}
	return v, dirty, nil
}

// Force records version as applied without running anything.
func (g *Migrator) Force(version int) error {
	if err := g.m.Force(version); err != nil {
		return errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to force migration version")
	}
	g.logger.Warn("migration version forced", logging.Int("version", version))
	return nil
}
