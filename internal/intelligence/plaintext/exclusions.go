package plaintext

import (
	"regexp"
	"strings"

	"github.com/turtacn/KeyConcept/pkg/errors"
)

// Exclusion profile names.
const (
	ProfileXWiki21 = "xwiki21"
	ProfileNone    = "none"
)

// Macros whose body is removed together with the macro markers.
var bodyMacros = []string{"velocity", "groovy", "html", "code", "comment"}

var xwiki21 = buildXWiki21()

func buildXWiki21() []*regexp.Regexp {
	branches := make([]string, len(bodyMacros))
	for i, name := range bodyMacros {
		branches[i] = `\{\{` + name + `.*?\}\}.*?\{\{/` + name + `\}\}`
	}
	return []*regexp.Regexp{
		regexp.MustCompile(`(?s)\(%.*?%\)`),
		regexp.MustCompile(`(?s)` + strings.Join(branches, "|")),
		regexp.MustCompile(`\{\{/?[a-zA-Z].*?/?\}\}`),
		regexp.MustCompile(`\[\[.*?\]\]`),
	}
}

// DefaultExclusions returns the XWiki 2.1 markup patterns in application
// order: parameters "(% %)", body macros such as {{code}}…{{/code}}, other
// macro markers, then links "[[ ]]".
func DefaultExclusions() []*regexp.Regexp {
	return append([]*regexp.Regexp(nil), xwiki21...)
}

// Profile returns the patterns of a named exclusion profile.  The empty name
// selects the XWiki 2.1 profile.
func Profile(name string) ([]*regexp.Regexp, error) {
	switch strings.ToLower(name) {
	case ProfileXWiki21, "":
		return DefaultExclusions(), nil
	case ProfileNone:
		return nil, nil
	default:
		return nil, errors.New(errors.ErrCodeExclusionProfileUnknown, "unknown exclusion profile").WithDetail("profile=" + name)
	}
}

// Compile compiles caller supplied exclusion patterns.
func Compile(patterns []string) ([]*regexp.Regexp, error) {
	out := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeExclusionPatternInvalid, "invalid exclusion pattern").WithDetail("pattern=" + p)
		}
		out = append(out, re)
	}
	return out, nil
}
