package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	stderrors "errors"
	"time"

	"github.com/google/uuid"

	"github.com/turtacn/KeyConcept/internal/domain/termstats"
	"github.com/turtacn/KeyConcept/internal/infrastructure/database/postgres"
	"github.com/turtacn/KeyConcept/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/KeyConcept/internal/infrastructure/monitoring/prometheus"
	"github.com/turtacn/KeyConcept/pkg/errors"
)

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

type postgresTermStatsRepo struct {
	conn    *postgres.Connection
	log     logging.Logger
	metrics *prometheus.AppMetrics
}

func NewPostgresTermStatsRepo(conn *postgres.Connection, log logging.Logger, metrics *prometheus.AppMetrics) termstats.Repository {
	return &postgresTermStatsRepo{
		conn:    conn,
		log:     logging.OrNop(log),
		metrics: metrics,
	}
}

func (r *postgresTermStatsRepo) observe(op string, start time.Time) {
	prometheus.RecordDBQuery(r.metrics, "postgres", op, time.Since(start))
}

func (r *postgresTermStatsRepo) Save(ctx context.Context, rep *termstats.Report) error {
	defer r.observe("term_report_save", time.Now())

	terms := rep.Terms(0, rep.Len())
	err := postgres.WithTransaction(ctx, r.conn.DB(), func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO term_reports (id, name, documents, tokens, term_count, created_at)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			rep.ID, rep.Name, rep.Documents, rep.Tokens, len(terms), rep.CreatedAt,
		)
		if err != nil {
			return err
		}

		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO term_report_entries (report_id, position, term, tf, df, tfidf, average_tf, variants)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for i, t := range terms {
			variants, err := json.Marshal(t.Variants)
			if err != nil {
				return errors.Wrap(err, errors.ErrCodeSerialization, "encode spelling variants")
			}
			if _, err := stmt.ExecContext(ctx, rep.ID, i, t.Term, t.TF, t.DF, t.TFIDF, t.AverageTF, variants); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to save term report")
	}
	r.log.Info("term report saved",
		logging.String("report_id", rep.ID.String()),
		logging.String("name", rep.Name),
		logging.Int("terms", len(terms)),
	)
	return nil
}

const selectSummary = `SELECT id, name, documents, tokens, term_count, created_at FROM term_reports`

func (r *postgresTermStatsRepo) Get(ctx context.Context, id uuid.UUID) (*termstats.Report, error) {
	defer r.observe("term_report_get", time.Now())

	row := r.conn.DB().QueryRowContext(ctx, selectSummary+` WHERE id = $1`, id)
	return r.load(ctx, row)
}

func (r *postgresTermStatsRepo) Latest(ctx context.Context, name string) (*termstats.Report, error) {
	defer r.observe("term_report_latest", time.Now())

	row := r.conn.DB().QueryRowContext(ctx, selectSummary+` WHERE name = $1 ORDER BY created_at DESC LIMIT 1`, name)
	return r.load(ctx, row)
}

func (r *postgresTermStatsRepo) load(ctx context.Context, row scanner) (*termstats.Report, error) {
	s, err := scanSummary(row)
	if err != nil {
		if stderrors.Is(err, sql.ErrNoRows) {
			return nil, errors.New(errors.ErrCodeReportNotFound, "term report not found")
		}
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to read term report")
	}

	rows, err := r.conn.DB().QueryContext(ctx, `
		SELECT term, tf, df, tfidf, average_tf, variants
		FROM term_report_entries WHERE report_id = $1 ORDER BY position`, s.ID)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to read term report entries")
	}
	defer rows.Close()

	terms := make([]termstats.Term, 0, s.Terms)
	for rows.Next() {
		t, err := scanTerm(rows)
		if err != nil {
			return nil, err
		}
		terms = append(terms, t)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to read term report entries")
	}
	return termstats.Restore(s, terms), nil
}

func (r *postgresTermStatsRepo) List(ctx context.Context, limit, offset int) ([]termstats.Summary, error) {
	defer r.observe("term_report_list", time.Now())

	if limit <= 0 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	rows, err := r.conn.DB().QueryContext(ctx, selectSummary+` ORDER BY created_at DESC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to list term reports")
	}
	defer rows.Close()

	var out []termstats.Summary
	for rows.Next() {
		s, err := scanSummary(rows)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to scan term report")
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *postgresTermStatsRepo) Delete(ctx context.Context, id uuid.UUID) error {
	defer r.observe("term_report_delete", time.Now())

	res, err := r.conn.DB().ExecContext(ctx, `DELETE FROM term_reports WHERE id = $1`, id)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to delete term report")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.New(errors.ErrCodeReportNotFound, "term report not found")
	}
	return nil
}

func scanSummary(row scanner) (termstats.Summary, error) {
	var s termstats.Summary
	err := row.Scan(&s.ID, &s.Name, &s.Documents, &s.Tokens, &s.Terms, &s.CreatedAt)
	return s, err
}

func scanTerm(row scanner) (termstats.Term, error) {
	var (
		t        termstats.Term
		variants []byte
	)
	if err := row.Scan(&t.Term, &t.TF, &t.DF, &t.TFIDF, &t.AverageTF, &variants); err != nil {
		return t, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to scan term entry")
	}
	if len(variants) > 0 {
		if err := json.Unmarshal(variants, &t.Variants); err != nil {
			return t, errors.Wrap(err, errors.ErrCodeSerialization, "decode spelling variants")
		}
	}
	return t, nil
}
