package textanalysis

import (
	"github.com/turtacn/KeyConcept/internal/config"
	"github.com/turtacn/KeyConcept/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/KeyConcept/internal/intelligence/stemmer"
)

// FromConfig builds the Analyzer selected by the analysis section.
func FromConfig(cfg config.AnalysisConfig, logger logging.Logger) (*Analyzer, error) {
	st, err := stemmer.New(stemmer.Mode(cfg.Stemmer))
	if err != nil {
		return nil, err
	}
	opts := []Option{WithLogger(logger)}
	if cfg.StopWordsFile != "" {
		sw, err := LoadStopWordsFile(cfg.StopWordsFile)
		if err != nil {
			return nil, err
		}
		opts = append(opts, WithStopWords(sw))
	}
	return NewAnalyzer(st, opts...), nil
}
