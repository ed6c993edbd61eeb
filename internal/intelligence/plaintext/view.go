// Package plaintext removes structural wiki markup from a page while keeping
// a table that maps every position of the remaining plain text back to the
// original page.
package plaintext

import (
	"regexp"
	"sort"
	"strings"
)

// Breakpoint says that plain positions from Position up to the next
// breakpoint lie Correction bytes further right in the original text.
type Breakpoint struct {
	Position   int `json:"position"`
	Correction int `json:"correction"`
}

// View is the plain form of a text together with its offset table.  A View is
// immutable once built.
type View struct {
	original string
	plain    string
	offsets  []Breakpoint
}

// NewView deletes every match of each pattern, one full pass per pattern in
// the given order, and records the offset corrections.  Without patterns the
// view is the identity.
func NewView(text string, patterns ...*regexp.Regexp) *View {
	v := &View{original: text, plain: text}
	if text == "" {
		return v
	}

	cleaned := text
	for _, re := range patterns {
		if re == nil {
			continue
		}
		matches := re.FindAllStringIndex(cleaned, -1)
		if len(matches) == 0 {
			continue
		}
		var b strings.Builder
		b.Grow(len(cleaned))
		last := 0
		for _, m := range matches {
			b.WriteString(cleaned[last:m[0]])
			last = m[1]
			if d := m[1] - m[0]; d > 0 {
				v.remove(b.Len(), d)
			}
		}
		b.WriteString(cleaned[last:])
		cleaned = b.String()
	}
	v.plain = cleaned
	return v
}

// remove records the deletion of d bytes at plain position s.  Breakpoints
// inside the deleted range vanish, later ones move left by d and grow by d.
func (v *View) remove(s, d int) {
	v.put(s, d+v.correction(s+d))

	i := sort.Search(len(v.offsets), func(i int) bool { return v.offsets[i].Position > s })
	kept := v.offsets[:i]
	for _, bp := range v.offsets[i:] {
		if bp.Position > s+d {
			kept = append(kept, Breakpoint{Position: bp.Position - d, Correction: bp.Correction + d})
		}
	}
	v.offsets = kept
}

func (v *View) put(pos, correction int) {
	i := sort.Search(len(v.offsets), func(i int) bool { return v.offsets[i].Position >= pos })
	if i < len(v.offsets) && v.offsets[i].Position == pos {
		v.offsets[i].Correction = correction
		return
	}
	v.offsets = append(v.offsets, Breakpoint{})
	copy(v.offsets[i+1:], v.offsets[i:])
	v.offsets[i] = Breakpoint{Position: pos, Correction: correction}
}

// correction returns the correction of the greatest breakpoint at or before
// pos, zero when there is none.
func (v *View) correction(pos int) int {
	i := sort.Search(len(v.offsets), func(i int) bool { return v.offsets[i].Position > pos })
	if i == 0 {
		return 0
	}
	return v.offsets[i-1].Correction
}

// Original returns the text the view was built from.
func (v *View) Original() string { return v.original }

// Plain returns the text with all markup removed.
func (v *View) Plain() string { return v.plain }

// OriginalPosition maps a plain position to the position of the same byte in
// the original text.
func (v *View) OriginalPosition(p int) int {
	return p + v.correction(p)
}

// OriginalEndPosition maps an exclusive plain end offset to an exclusive end
// offset in the original text.
func (v *View) OriginalEndPosition(p int) int {
	return v.OriginalPosition(p-1) + 1
}

// Breakpoints returns a copy of the offset table in ascending order.
func (v *View) Breakpoints() []Breakpoint {
	return append([]Breakpoint(nil), v.offsets...)
}
