package textanalysis

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/KeyConcept/internal/config"
	apperrors "github.com/turtacn/KeyConcept/pkg/errors"
)

func TestFromConfig(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "stop.txt")
	require.NoError(t, os.WriteFile(path, []byte("kerbel | herb\n"), 0o644))

	a, err := FromConfig(config.AnalysisConfig{Stemmer: "none", StopWordsFile: path}, nil)
	require.NoError(t, err)
	texts := tokenTexts(a.Tokens("Kerbel und Ingwer"))
	assert.NotContains(t, texts, "kerbel")
	assert.Contains(t, texts, "ingwer")
}

func TestFromConfig_Errors(t *testing.T) {
	t.Parallel()

	_, err := FromConfig(config.AnalysisConfig{Stemmer: "porter"}, nil)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeStemmerUnsupported))

	_, err = FromConfig(config.AnalysisConfig{Stemmer: "light", StopWordsFile: filepath.Join(t.TempDir(), "missing.txt")}, nil)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeStopWordsInvalid))
}
