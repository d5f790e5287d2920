package ingest

import (
	"regexp"
	"slices"
	"sort"
	"strings"
	"unicode"

	"filing_ingest/pkg/models"
)

// DefaultTOCThreshold is the visible-text size below which a section is
// considered a table-of-contents entry rather than real content.
const DefaultTOCThreshold = 400

const (
	titleWordCount = 4
	titleScanBytes = 300
)

// Span is a half-open byte range [Start, End) into the raw document.
type Span struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Text returns the slice of doc covered by the span.
func (s Span) Text(doc string) string {
	if s.Start < 0 || s.End > len(doc) || s.End < s.Start {
		return ""
	}
	return doc[s.Start:s.End]
}

// Segments maps recognised items to their ranges. An empty map means the
// document had no usable item headings.
type Segments map[models.SectionName]Span

// SectionSpan pairs a section name with its range.
type SectionSpan struct {
	Name models.SectionName
	Span Span
}

// Ordered returns the spans in canonical item order.
func (s Segments) Ordered() []SectionSpan {
	out := make([]SectionSpan, 0, len(s))
	for name, span := range s {
		out = append(out, SectionSpan{Name: name, Span: span})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name.Rank() < out[j].Name.Rank() })
	return out
}

// =============================================================================
// PARSER
// =============================================================================

// Matches "Item 7", "ITEM&nbsp;1A", "Item</b> <b>1B" ... Letter and digit
// boundaries are checked by hand since RE2 has no lookaround.
var itemMarker = regexp.MustCompile(`(?i)item(?:\s|&nbsp;|&#160;|&#xa0;|<[^>]*>)*(\d{1,2})([a-c])?`)

var (
	tagPattern    = regexp.MustCompile(`<[^>]*>`)
	entityPattern = regexp.MustCompile(`&(?:[a-zA-Z]+|#\d+|#[xX][0-9a-fA-F]+);`)
)

// TenKParser splits a 10-K into items with an ordered-scan state machine.
//
// The scan keeps the highest item rank accepted so far. A marker at or below
// that rank is a cross-reference or running header and is dropped. The one
// exception is a table of contents. When every section accepted so far is
// thin and the marker reads as the body heading of an item the run listed,
// the scan restarts at the marker. See restartsContents.
type TenKParser struct {
	tocThreshold int
}

// NewTenKParser creates a parser. tocThreshold <= 0 selects DefaultTOCThreshold.
func NewTenKParser(tocThreshold int) *TenKParser {
	if tocThreshold <= 0 {
		tocThreshold = DefaultTOCThreshold
	}
	return &TenKParser{tocThreshold: tocThreshold}
}

type marker struct {
	def   models.SectionDefinition
	start int
	title []string // leading title words, lower case
}

// Segment returns the item ranges found in doc. Start offsets strictly
// increase with item rank and every End is >= Start.
func (p *TenKParser) Segment(doc string) Segments {
	ms := p.markers(doc)
	next := nextHigher(ms)

	var accepted []marker
	thick := false // sections only grow, so once thick the run stays thick
	for i, m := range ms {
		if len(accepted) == 0 || m.def.Rank > accepted[len(accepted)-1].def.Rank {
			accepted = append(accepted, m)
			continue
		}
		if thick {
			continue
		}
		if !p.allThin(doc, accepted, m.start) {
			thick = true
			continue
		}
		if restartsContents(accepted, m, ms, next[i]) {
			accepted = append(accepted[:0], m)
		}
	}

	segments := make(Segments, len(accepted))
	for i, m := range accepted {
		end := len(doc)
		if i+1 < len(accepted) {
			end = accepted[i+1].start
		}
		segments[m.def.Name] = Span{Start: m.start, End: end}
	}
	return segments
}

// markers finds item headings in document order.
func (p *TenKParser) markers(doc string) []marker {
	var out []marker
	for _, loc := range itemMarker.FindAllStringSubmatchIndex(doc, -1) {
		start, end := loc[0], loc[1]
		if start > 0 && isLetter(doc[start-1]) {
			continue // "Subitem", "LineItem"
		}
		if end < len(doc) && isDigit(doc[end]) {
			continue // "Item 405 of Regulation S-K"
		}
		item, labelEnd := doc[loc[2]:loc[3]], loc[3]
		// In "Item 1Business" the letter belongs to the title, not the item.
		if loc[4] >= 0 && !(end < len(doc) && isLetter(doc[end])) {
			item, labelEnd = item+doc[loc[4]:loc[5]], loc[5]
		}
		if !atHeadingPosition(doc, start) {
			continue
		}
		def, ok := models.LookupItem(strings.TrimLeft(item, "0"))
		if !ok {
			continue
		}
		out = append(out, marker{def: def, start: start, title: titleWords(doc, labelEnd, titleWordCount)})
	}
	return out
}

// restartsContents reports whether m begins the body that a thin run listed
// as contents. The body starts again at or before the run's first item, its
// title agrees with the run's entry for the same item, and its next item is
// one the run already named. A cross-reference inside the last section fails
// at least one of these.
func restartsContents(accepted []marker, m marker, ms []marker, next int) bool {
	if m.def.Rank > accepted[0].def.Rank || next < 0 {
		return false
	}
	if ms[next].def.Rank > accepted[len(accepted)-1].def.Rank {
		return false
	}
	for _, a := range accepted {
		if a.def.Rank == m.def.Rank {
			return titlesAgree(a.title, m.title)
		}
	}
	return true
}

// titlesAgree reports whether either title starts with a word the other
// carries, so "Business" matches "Description of Business".
func titlesAgree(a, b []string) bool {
	if len(a) == 0 || len(b) == 0 {
		return false
	}
	return slices.Contains(b, a[0]) || slices.Contains(a, b[0])
}

// titleWords reads up to n words after pos, skipping tags, entities and
// punctuation. It stops at the first digit, which ends a TOC entry at its
// page number.
func titleWords(doc string, pos, n int) []string {
	var words []string
	var word strings.Builder
	flush := func() {
		if word.Len() > 0 {
			words = append(words, strings.ToLower(word.String()))
			word.Reset()
		}
	}
	limit := min(len(doc), pos+titleScanBytes)
	for i := pos; i < limit && len(words) < n; i++ {
		switch c := doc[i]; {
		case isLetter(c):
			word.WriteByte(c)
		case c == '\'' && word.Len() > 0:
			word.WriteByte(c) // "Management's" stays one word
		case isDigit(c):
			flush()
			return words
		case c == '<':
			flush()
			if j := strings.IndexByte(doc[i:limit], '>'); j > 0 {
				i += j
			}
		case c == '&':
			flush()
			if loc := entityPattern.FindStringIndex(doc[i:min(limit, i+12)]); loc != nil && loc[0] == 0 {
				i += loc[1] - 1
			}
		default:
			flush()
		}
	}
	flush()
	return words
}

// nextHigher maps each marker to the index of the first later marker with a
// higher rank, or -1.
func nextHigher(ms []marker) []int {
	next := make([]int, len(ms))
	var stack []int
	for i := len(ms) - 1; i >= 0; i-- {
		for len(stack) > 0 && ms[stack[len(stack)-1]].def.Rank <= ms[i].def.Rank {
			stack = stack[:len(stack)-1]
		}
		next[i] = -1
		if len(stack) > 0 {
			next[i] = stack[len(stack)-1]
		}
		stack = append(stack, i)
	}
	return next
}

// allThin reports whether every accepted section up to limit is below the TOC threshold.
func (p *TenKParser) allThin(doc string, accepted []marker, limit int) bool {
	for i, m := range accepted {
		end := limit
		if i+1 < len(accepted) {
			end = accepted[i+1].start
		}
		if visibleLength(doc[m.start:end]) >= p.tocThreshold {
			return false
		}
	}
	return true
}

// atHeadingPosition reports whether pos begins a line, the document, or
// the text right after a tag, ignoring blanks and space entities.
func atHeadingPosition(doc string, pos int) bool {
	i := pos
	for i > 0 {
		switch c := doc[i-1]; {
		case c == ' ' || c == '\t' || c == '\r':
			i--
		case c == '\n' || c == '>':
			return true
		case c == 0xA0 && i >= 2 && doc[i-2] == 0xC2: // U+00A0
			i -= 2
		case c == ';':
			j := strings.LastIndexByte(doc[:i-1], '&')
			if j < 0 || !isSpaceEntity(doc[j:i]) {
				return false
			}
			i = j
		default:
			return false
		}
	}
	return true
}

func isSpaceEntity(s string) bool {
	switch strings.ToLower(s) {
	case "&nbsp;", "&#160;", "&#xa0;", "&ensp;", "&emsp;", "&thinsp;":
		return true
	}
	return false
}

// visibleLength approximates the rendered text size of a markup fragment.
func visibleLength(fragment string) int {
	text := tagPattern.ReplaceAllString(fragment, " ")
	text = entityPattern.ReplaceAllString(text, " ")
	n := 0
	for _, r := range text {
		if !unicode.IsSpace(r) {
			n++
		}
	}
	return n
}

func isLetter(c byte) bool { return (c|0x20) >= 'a' && (c|0x20) <= 'z' }

func isDigit(c byte) bool { return c >= '0' && c <= '9' }
