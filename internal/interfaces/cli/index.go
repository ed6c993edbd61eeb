package cli

import (
	"strconv"

	"github.com/spf13/cobra"

	"github.com/turtacn/KeyConcept/internal/domain/conceptindex"
	"github.com/turtacn/KeyConcept/internal/domain/ontology"
	"github.com/turtacn/KeyConcept/internal/infrastructure/database/neo4j"
	"github.com/turtacn/KeyConcept/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/KeyConcept/pkg/errors"
)

type statsTable struct {
	conceptindex.Stats
}

func (s statsTable) TableHeaders() []string { return []string{"Metric", "Value"} }

func (s statsTable) TableRows() [][]string {
	return [][]string{
		{"concepts", strconv.Itoa(s.Concepts)},
		{"labels", strconv.Itoa(s.Labels)},
		{"prefixes", strconv.Itoa(s.Prefixes)},
		{"generation", strconv.FormatUint(s.Generation, 10)},
		{"build time", s.Duration.String()},
	}
}

// NewIndexCmd groups the concept index inspection commands.
func NewIndexCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "index",
		Short: "Inspect the concept index built from the ontology",
	}

	stats := &cobra.Command{
		Use:   "stats",
		Short: "Print concept, label and prefix counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx, err := GetCLIContext(cmd)
			if err != nil {
				return err
			}
			ctx, cancel := commandContext(cmd, cliCtx)
			defer cancel()
			engine, err := cliCtx.Engine(ctx)
			if err != nil {
				return err
			}
			return PrintResult(cmd, statsTable{engine.Index.Stats()})
		},
	}

	dump := &cobra.Command{
		Use:   "dump",
		Short: "Print every indexed label key with its concepts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx, err := GetCLIContext(cmd)
			if err != nil {
				return err
			}
			ctx, cancel := commandContext(cmd, cliCtx)
			defer cancel()
			engine, err := cliCtx.Engine(ctx)
			if err != nil {
				return err
			}
			return engine.Index.Dump(cmd.OutOrStdout())
		},
	}

	cmd.AddCommand(stats, dump)
	return cmd
}

type modelSummary struct {
	Path        string `json:"path"`
	Concepts    int    `json:"concepts"`
	Classes     int    `json:"classes"`
	Individuals int    `json:"individuals"`
	Stored      int    `json:"stored,omitempty"`
}

func (m modelSummary) TableHeaders() []string { return []string{"Metric", "Value"} }

func (m modelSummary) TableRows() [][]string {
	rows := [][]string{
		{"concepts", strconv.Itoa(m.Concepts)},
		{"classes", strconv.Itoa(m.Classes)},
		{"individuals", strconv.Itoa(m.Individuals)},
	}
	if m.Stored > 0 {
		rows = append(rows, []string{"stored", strconv.Itoa(m.Stored)})
	}
	return rows
}

// NewOntologyCmd groups commands working on ontology files.
func NewOntologyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ontology",
		Short: "Validate ontology files and import them into the graph",
	}

	validate := &cobra.Command{
		Use:   "validate <file>",
		Short: "Parse an ontology file and check its references",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx, err := GetCLIContext(cmd)
			if err != nil {
				return err
			}
			ctx, cancel := commandContext(cmd, cliCtx)
			defer cancel()
			model, err := ontology.NewFileSource(args[0]).Load(ctx)
			if err != nil {
				return err
			}
			return PrintResult(cmd, summarize(args[0], model))
		},
	}

	importCmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Write an ontology file into the configured Neo4j graph",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx, err := GetCLIContext(cmd)
			if err != nil {
				return err
			}
			if cliCtx.Config.Neo4j.URI == "" {
				return errors.New(errors.ErrCodeValidation, "neo4j.uri is not configured")
			}
			ctx, cancel := commandContext(cmd, cliCtx)
			defer cancel()
			model, err := ontology.NewFileSource(args[0]).Load(ctx)
			if err != nil {
				return err
			}

			driver, err := neo4j.NewDriver(ctx, cliCtx.Config.Neo4j, cliCtx.Logger)
			if err != nil {
				return err
			}
			defer func() {
				if err := driver.Close(ctx); err != nil {
					cliCtx.Logger.Warn("closing neo4j driver failed", logging.Err(err))
				}
			}()

			n, err := neo4j.NewOntologySource(driver, cliCtx.Logger).Store(ctx, model)
			if err != nil {
				return err
			}
			summary := summarize(args[0], model)
			summary.Stored = n
			if cliCtx.OutputFormat == OutputText {
				PrintSuccess(cmd, "imported "+strconv.Itoa(n)+" concepts from "+args[0])
				return nil
			}
			return PrintResult(cmd, summary)
		},
	}

	cmd.AddCommand(validate, importCmd)
	return cmd
}

func summarize(path string, m *ontology.Model) modelSummary {
	return modelSummary{
		Path:        path,
		Concepts:    m.Len(),
		Classes:     len(m.Classes()),
		Individuals: len(m.Individuals()),
	}
}
