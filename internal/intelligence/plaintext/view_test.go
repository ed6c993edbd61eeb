package plaintext

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/KeyConcept/pkg/errors"
)

func assertRoundTrip(t *testing.T, v *View) {
	t.Helper()
	plain, orig := v.Plain(), v.Original()
	for p := 0; p < len(plain); p++ {
		o := v.OriginalPosition(p)
		require.Less(t, o, len(orig), "position %d", p)
		assert.Equal(t, plain[p], orig[o], "position %d maps to %d", p, o)
	}
}

func TestNewView_XWiki21(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in, want string
	}{
		{"", ""},
		{"Text [[link>>target]] and [[rest]]", "Text  and "},
		{"Some [[Text>>doc:link]] and macro {{code}}code{{/code}} text.", "Some  and macro  text."},
		{"A {{html}}macro{{/html}} followed by [[link]]", "A  followed by "},
		{"B {{html}}macro{{/html}} followed by [[link]] and {{html}}more{{/html}} text.", "B  followed by  and  text."},
		{
			"C {{html}}macro{{/html}} followed by [[link]] and {{html}}more{{/html}} text, finishing with a [[link>>doc:test]]",
			"C  followed by  and  text, finishing with a ",
		},
		{"Two [[consecutive>>target]][[links]]", "Two "},
		{"Two [[consecutive>>target]][[links]] with more text", "Two  with more text"},
		{`{{include document="Panels.PanelSheet"/}}`, ""},
		{"A Macro {{velocity}}containing a [[Link]]{{/velocity}} inside", "A Macro  inside"},
		{"(% class=\"box\" %)Kerbel und\n{{comment}}\nnotiz\n{{/comment}}Dill", "Kerbel und\nDill"},
		{"Größe [[Kräuter]] und Kerbel", "Größe  und Kerbel"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			v := NewView(tt.in, DefaultExclusions()...)
			assert.Equal(t, tt.want, v.Plain())
			assert.Equal(t, tt.in, v.Original())
			assertRoundTrip(t, v)
		})
	}
}

func TestNewView_Breakpoints(t *testing.T) {
	t.Parallel()

	v := NewView("B {{html}}macro{{/html}} followed by [[link]] and {{html}}more{{/html}} text.", DefaultExclusions()...)
	assert.Equal(t, []Breakpoint{{2, 22}, {15, 30}, {20, 51}}, v.Breakpoints())
}

func TestNewView_EmptyInput(t *testing.T) {
	t.Parallel()

	v := NewView("", DefaultExclusions()...)
	assert.Equal(t, "", v.Plain())
	assert.Empty(t, v.Breakpoints())
}

func TestNewView_NoMatches(t *testing.T) {
	t.Parallel()

	in := "Kerbel und Dill ohne Markup."
	v := NewView(in, DefaultExclusions()...)
	assert.Equal(t, in, v.Plain())
	assert.Empty(t, v.Breakpoints())
	assert.Equal(t, 7, v.OriginalPosition(7))
}

func TestNewView_IdentityWithoutPatterns(t *testing.T) {
	t.Parallel()

	in := "Some [[Text>>doc:link]]"
	v := NewView(in)
	assert.Equal(t, in, v.Plain())
	assert.Empty(t, v.Breakpoints())
}

// Building the view twice yields the same mapping.
func TestNewView_Idempotent(t *testing.T) {
	t.Parallel()

	in := "Some [[Text>>doc:link]] and macro {{code}}code{{/code}} text."
	a := NewView(in, DefaultExclusions()...)
	b := NewView(in, DefaultExclusions()...)
	assert.Equal(t, a.Plain(), b.Plain())
	assert.Equal(t, a.Breakpoints(), b.Breakpoints())
}

func TestView_OriginalEndPosition(t *testing.T) {
	t.Parallel()

	in := "Some [[Text>>doc:link]] and macro"
	v := NewView(in, DefaultExclusions()...)
	require.Equal(t, "Some  and macro", v.Plain())

	// "Some" ends before the removed link.
	assert.Equal(t, 4, v.OriginalEndPosition(4))
	// "and" starts after it.
	start := v.OriginalPosition(6)
	end := v.OriginalEndPosition(9)
	assert.Equal(t, "and", in[start:end])
	assert.Equal(t, 0, v.OriginalEndPosition(0))
}

func TestView_NilPatternSkipped(t *testing.T) {
	t.Parallel()

	v := NewView("a [[b]] c", nil, regexp.MustCompile(`\[\[.*?\]\]`))
	assert.Equal(t, "a  c", v.Plain())
}

func TestProfile(t *testing.T) {
	t.Parallel()

	p, err := Profile("")
	require.NoError(t, err)
	assert.Len(t, p, 4)

	p, err = Profile("XWIKI21")
	require.NoError(t, err)
	assert.Len(t, p, 4)

	p, err = Profile(ProfileNone)
	require.NoError(t, err)
	assert.Empty(t, p)

	_, err = Profile("mediawiki")
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeExclusionProfileUnknown))
}

func TestCompile(t *testing.T) {
	t.Parallel()

	res, err := Compile([]string{`<!--.*?-->`})
	require.NoError(t, err)
	assert.Equal(t, "a  b", NewView("a <!-- x --> b", res...).Plain())

	_, err = Compile([]string{`(`})
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeExclusionPatternInvalid))
}

func TestDefaultExclusions_ReturnsCopy(t *testing.T) {
	t.Parallel()

	a := DefaultExclusions()
	a[0] = nil
	assert.NotNil(t, DefaultExclusions()[0])
}
