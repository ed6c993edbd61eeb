package termstats

import (
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	domainTerms "github.com/turtacn/KeyConcept/internal/domain/termstats"
	"github.com/turtacn/KeyConcept/pkg/errors"
)

// rankFilePrefix names the dump file of every ranking.
var rankFilePrefix = map[domainTerms.Ranking]string{
	domainTerms.RankTF:        "simple-tf-",
	domainTerms.RankDF:        "simple-df-",
	domainTerms.RankTFIDF:     "tfidf-",
	domainTerms.RankAverageTF: "avg-tf-",
}

// ReadCorpusDir reads every regular, non-hidden file directly inside dir as
// one document named after the file.  Subdirectories are not descended into.
func ReadCorpusDir(dir string) (map[string]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeBadRequest, "read corpus directory").WithDetail(dir)
	}
	docs := make(map[string]string, len(entries))
	for _, e := range entries {
		if !e.Type().IsRegular() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeBadRequest, "read corpus document").WithDetail(e.Name())
		}
		if !utf8.Valid(data) {
			return nil, errors.New(errors.ErrCodeValidation, "corpus document is not valid UTF-8").WithDetail(e.Name())
		}
		docs[e.Name()] = string(data)
	}
	return docs, nil
}

// WriteRankFiles writes one text dump per ranking into dir, creating it if
// needed, and returns the written paths in Rankings order.
func WriteRankFiles(dir string, r *domainTerms.Report) ([]string, error) {
	if r == nil {
		return nil, errors.InvalidParam("report is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "create output directory").WithDetail(dir)
	}
	paths := make([]string, 0, len(domainTerms.Rankings))
	for _, rank := range domainTerms.Rankings {
		path := filepath.Join(dir, rankFilePrefix[rank]+r.Name+".txt")
		if err := writeRank(path, r, rank); err != nil {
			return paths, err
		}
		paths = append(paths, path)
	}
	return paths, nil
}

func writeRank(path string, r *domainTerms.Report, rank domainTerms.Ranking) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "create rank file").WithDetail(path)
	}
	if err := domainTerms.WriteText(f, r.Ranked(rank), rank); err != nil {
		f.Close()
		return errors.Wrap(err, errors.ErrCodeInternal, "write rank file").WithDetail(path)
	}
	if err := f.Close(); err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "close rank file").WithDetail(path)
	}
	return nil
}
