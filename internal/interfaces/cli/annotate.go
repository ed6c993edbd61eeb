package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/turtacn/KeyConcept/internal/application/annotation"
	"github.com/turtacn/KeyConcept/internal/domain/ontology"
	"github.com/turtacn/KeyConcept/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/KeyConcept/pkg/errors"
)

// ─────────────────────────────────────────────────────────────────────────────
// Table renderings
// ─────────────────────────────────────────────────────────────────────────────

type tokenTable struct {
	*annotation.TokenizeResult
}

func (t tokenTable) TableHeaders() []string {
	return []string{"Token", "Start", "End", "Flags"}
}

func (t tokenTable) TableRows() [][]string {
	rows := make([][]string, 0, len(t.Tokens))
	for _, tok := range t.Tokens {
		var flags []string
		if tok.AfterPunctuation {
			flags = append(flags, "after-punct")
		}
		if tok.Keyword {
			flags = append(flags, "keyword")
		}
		rows = append(rows, []string{tok.Text, strconv.Itoa(tok.Start), strconv.Itoa(tok.End), strings.Join(flags, ",")})
	}
	return rows
}

type annotationTable struct {
	*annotation.ExtractResult
}

func (a annotationTable) TableHeaders() []string {
	return []string{"Start", "End", "Surface", "Key", "Concepts"}
}

func (a annotationTable) TableRows() [][]string {
	rows := make([][]string, 0, len(a.Annotations))
	for _, ann := range a.Annotations {
		rows = append(rows, []string{
			strconv.Itoa(ann.Start),
			strconv.Itoa(ann.End),
			ann.Surface,
			ann.Key,
			joinIDs(ann.Concepts),
		})
	}
	return rows
}

type plainTextView struct {
	*annotation.PlainTextResult
}

func (p plainTextView) String() string { return p.Plain }

func (p plainTextView) TableHeaders() []string { return []string{"Position", "Correction"} }

func (p plainTextView) TableRows() [][]string {
	rows := make([][]string, 0, len(p.Breakpoints))
	for _, b := range p.Breakpoints {
		rows = append(rows, []string{strconv.Itoa(b.Position), strconv.Itoa(b.Correction)})
	}
	return rows
}

type similarView struct {
	*annotation.SimilarResult
}

func (s similarView) String() string {
	var sb strings.Builder
	for _, id := range s.Concepts {
		sb.WriteString(string(id))
		sb.WriteByte('\n')
	}
	if len(s.Labels) > 0 {
		fmt.Fprintf(&sb, "labels: %s\n", strings.Join(s.Labels, ", "))
	}
	return strings.TrimSuffix(sb.String(), "\n")
}

func (s similarView) TableHeaders() []string { return []string{"Concept"} }

func (s similarView) TableRows() [][]string {
	rows := make([][]string, 0, len(s.Concepts))
	for _, id := range s.Concepts {
		rows = append(rows, []string{string(id)})
	}
	return rows
}

func joinIDs(ids []ontology.ConceptID) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = string(id)
	}
	return strings.Join(parts, " ")
}

// ─────────────────────────────────────────────────────────────────────────────
// Commands
// ─────────────────────────────────────────────────────────────────────────────

// NewTokenizeCmd prints the analyzed tokens of its arguments, or of stdin for
// "-".
func NewTokenizeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tokenize <text|->",
		Short: "Print the stemmed tokens of a text",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx, err := GetCLIContext(cmd)
			if err != nil {
				return err
			}
			text := strings.Join(args, " ")
			if text == "-" {
				if text, err = readInput(cmd, "-"); err != nil {
					return err
				}
			}
			ctx, cancel := commandContext(cmd, cliCtx)
			defer cancel()
			engine, err := cliCtx.Engine(ctx)
			if err != nil {
				return err
			}
			res, err := engine.Annotation.Tokenize(ctx, text)
			if err != nil {
				return err
			}
			return PrintResult(cmd, tokenTable{res})
		},
	}
}

// NewAnnotateCmd prints the concept spans of a document, or the document with
// similar-concept links inserted when --enhance is set.
func NewAnnotateCmd() *cobra.Command {
	var (
		enhance    bool
		privileged bool
	)
	cmd := &cobra.Command{
		Use:   "annotate <file|->",
		Short: "Find ontology concepts in a wiki document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx, err := GetCLIContext(cmd)
			if err != nil {
				return err
			}
			text, err := readInput(cmd, args[0])
			if err != nil {
				return err
			}
			ctx, cancel := commandContext(cmd, cliCtx)
			defer cancel()
			engine, err := cliCtx.Engine(ctx)
			if err != nil {
				return err
			}

			if enhance {
				res, err := engine.Annotation.Enhance(ctx, &annotation.EnhanceRequest{Text: text, Privileged: privileged})
				if err != nil {
					return err
				}
				cliCtx.Logger.Info("document enhanced", logging.Int("links", res.Links), logging.Int("tokens", res.Tokens))
				if cliCtx.OutputFormat == OutputJSON {
					return PrintResult(cmd, res)
				}
				_, err = fmt.Fprint(cmd.OutOrStdout(), res.Text)
				return err
			}

			res, err := engine.Annotation.Extract(ctx, &annotation.ExtractRequest{Text: text, Privileged: privileged})
			if err != nil {
				return err
			}
			cliCtx.Logger.Info("document annotated", logging.Int("annotations", len(res.Annotations)), logging.Int("tokens", res.Tokens))
			return PrintResult(cmd, annotationTable{res})
		},
	}
	cmd.Flags().BoolVar(&enhance, "enhance", false, "print the document with similar-concept links")
	cmd.Flags().BoolVar(&privileged, "privileged", false, "include concepts hidden from unprivileged readers")
	return cmd
}

// NewPlainTextCmd prints the plain view of a wiki document.
func NewPlainTextCmd() *cobra.Command {
	var exclusions string
	cmd := &cobra.Command{
		Use:   "plaintext <file|->",
		Short: "Print the plain view of a wiki document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx, err := GetCLIContext(cmd)
			if err != nil {
				return err
			}
			text, err := readInput(cmd, args[0])
			if err != nil {
				return err
			}
			var patterns []string
			if cmd.Flags().Changed("exclude") {
				patterns = splitPatterns(exclusions)
			}
			ctx, cancel := commandContext(cmd, cliCtx)
			defer cancel()
			engine, err := cliCtx.Engine(ctx)
			if err != nil {
				return err
			}
			res, err := engine.Annotation.PlainText(ctx, text, patterns)
			if err != nil {
				return err
			}
			return PrintResult(cmd, plainTextView{res})
		},
	}
	cmd.Flags().StringVar(&exclusions, "exclude", "", "newline separated regular expressions replacing the configured profile")
	return cmd
}

func splitPatterns(s string) []string {
	out := []string{}
	for _, p := range strings.Split(s, "\n") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// NewSimilarCmd prints the concepts similar to the given ones.
func NewSimilarCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "similar <concept-id>...",
		Short: "List concepts similar to the given concepts",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx, err := GetCLIContext(cmd)
			if err != nil {
				return err
			}
			if limit < 0 {
				return errors.Newf(errors.ErrCodeBadRequest, "--limit must be non-negative, got %d", limit)
			}
			ids := make([]ontology.ConceptID, len(args))
			for i, a := range args {
				ids[i] = ontology.ConceptID(a)
			}
			ctx, cancel := commandContext(cmd, cliCtx)
			defer cancel()
			engine, err := cliCtx.Engine(ctx)
			if err != nil {
				return err
			}
			res, err := engine.Annotation.Similar(ctx, &annotation.SimilarRequest{Concepts: ids, Limit: limit})
			if err != nil {
				return err
			}
			return PrintResult(cmd, similarView{res})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum number of labels (0 uses annotation.max_similar_concepts)")
	return cmd
}
