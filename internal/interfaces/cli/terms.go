package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/turtacn/KeyConcept/internal/application/termstats"
	"github.com/turtacn/KeyConcept/internal/config"
	domainTerms "github.com/turtacn/KeyConcept/internal/domain/termstats"
	"github.com/turtacn/KeyConcept/internal/infrastructure/database/postgres"
	"github.com/turtacn/KeyConcept/internal/infrastructure/database/postgres/repositories"
	"github.com/turtacn/KeyConcept/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/KeyConcept/pkg/errors"
)

type termsOptions struct {
	name       string
	out        string
	rank       string
	limit      int
	save       bool
	privileged bool
}

// termTable renders the top of a ranked report.
type termTable struct {
	report *domainTerms.Report
	rank   domainTerms.Ranking
	terms  []domainTerms.Term
}

func (t termTable) TableHeaders() []string {
	return []string{"Term", "TF", "DF", "TF-IDF", "Avg TF", "Spellings"}
}

func (t termTable) TableRows() [][]string {
	rows := make([][]string, 0, len(t.terms))
	for _, term := range t.terms {
		rows = append(rows, []string{
			term.Term,
			strconv.Itoa(term.TF),
			strconv.Itoa(term.DF),
			strconv.FormatFloat(term.TFIDF, 'f', 6, 64),
			strconv.FormatFloat(term.AverageTF, 'f', 3, 64),
			strings.Join(term.Spellings(), ", "),
		})
	}
	return rows
}

func (t termTable) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "# %s: %d documents, %d tokens, %d terms, ranked by %s\n",
		t.report.Name, t.report.Documents, t.report.Tokens, t.report.Len(), t.rank)
	_ = domainTerms.WriteText(&sb, t.terms, t.rank)
	return strings.TrimSuffix(sb.String(), "\n")
}

func (t termTable) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		*domainTerms.Report

		Rank  domainTerms.Ranking `json:"rank"`
		Total int                 `json:"total"`
		Terms []domainTerms.Term  `json:"terms"`
	}{t.report, t.rank, t.report.Len(), t.terms})
}

// NewTermsCmd computes term statistics over the documents of a directory.
func NewTermsCmd() *cobra.Command {
	opts := &termsOptions{}
	cmd := &cobra.Command{
		Use:   "terms <dir>",
		Short: "Compute term statistics over the documents of a directory",
		Long: "Counts the non-concept terms of every regular file in <dir>.  With --out one\n" +
			"text file per ranking is written; otherwise the top --limit terms are printed.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTerms(cmd, args[0], opts)
		},
	}
	f := cmd.Flags()
	f.StringVar(&opts.name, "name", "", "corpus name (default: directory name)")
	f.StringVar(&opts.out, "out", "", "directory receiving one file per ranking")
	f.StringVar(&opts.rank, "rank", string(domainTerms.RankTFIDF), "ranking to print: tfidf|tf|df|avg-tf")
	f.IntVar(&opts.limit, "limit", 20, "number of terms to print (0 prints all)")
	f.BoolVar(&opts.save, "save", false, "store the report in PostgreSQL")
	f.BoolVar(&opts.privileged, "privileged", false, "treat hidden concepts as concepts")
	return cmd
}

func runTerms(cmd *cobra.Command, dir string, opts *termsOptions) error {
	cliCtx, err := GetCLIContext(cmd)
	if err != nil {
		return err
	}
	rank := domainTerms.Ranking(opts.rank)
	if !rank.Valid() {
		return errors.Newf(errors.ErrCodeBadRequest, "unknown ranking %q; expected tfidf|tf|df|avg-tf", opts.rank)
	}
	if opts.limit < 0 {
		return errors.Newf(errors.ErrCodeBadRequest, "--limit must be non-negative, got %d", opts.limit)
	}
	name := opts.name
	if name == "" {
		name = filepath.Base(filepath.Clean(dir))
	}

	docs, err := termstats.ReadCorpusDir(dir)
	if err != nil {
		return err
	}

	ctx, cancel := commandContext(cmd, cliCtx)
	defer cancel()
	engine, err := cliCtx.Engine(ctx)
	if err != nil {
		return err
	}

	var repo domainTerms.Repository
	if opts.save {
		r, closeRepo, err := openTermRepository(ctx, cliCtx.Config, cliCtx.Logger)
		if err != nil {
			return err
		}
		defer closeRepo()
		repo = r
	}
	svc, err := engine.Terms(repo)
	if err != nil {
		return err
	}
	report, err := svc.Compute(ctx, &termstats.ComputeRequest{
		Name:       name,
		Documents:  docs,
		Privileged: opts.privileged,
		Save:       opts.save,
	})
	if err != nil {
		return err
	}
	cliCtx.Logger.Info("term statistics computed",
		logging.String("corpus", name),
		logging.Int("documents", report.Documents),
		logging.Int("terms", report.Len()))

	if opts.out != "" {
		paths, err := termstats.WriteRankFiles(opts.out, report)
		if err != nil {
			return err
		}
		for _, p := range paths {
			PrintSuccess(cmd, "wrote "+p)
		}
		return nil
	}

	ranked := report.Ranked(rank)
	if opts.limit > 0 && len(ranked) > opts.limit {
		ranked = ranked[:opts.limit]
	}
	return PrintResult(cmd, termTable{report: report, rank: rank, terms: ranked})
}

// openTermRepository connects to PostgreSQL and applies pending migrations.
func openTermRepository(ctx context.Context, cfg *config.Config, logger logging.Logger) (domainTerms.Repository, func(), error) {
	if !cfg.Database.Enabled {
		return nil, nil, errors.New(errors.ErrCodeValidation, "--save needs database.enabled")
	}
	conn, err := postgres.NewConnection(ctx, cfg.Database, logger)
	if err != nil {
		return nil, nil, err
	}
	closeConn := func() {
		if err := conn.Close(); err != nil {
			logger.Warn("closing database failed", logging.Err(err))
		}
	}
	m, err := postgres.NewMigrator(conn.DB(), cfg.Database.MigrationPath, logger)
	if err != nil {
		closeConn()
		return nil, nil, err
	}
	if err := m.Up(); err != nil {
		closeConn()
		return nil, nil, err
	}
	return repositories.NewPostgresTermStatsRepo(conn, logger, nil), closeConn, nil
}
