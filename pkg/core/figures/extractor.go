// Package figures mines revenue breakdowns (by product, segment or
// geography) from normalized MD&A text.
//
// Extraction is heuristic: a category is reported only when its label and
// a currency amount sit together in the text following an anchor phrase.
// Nothing is inferred beyond what the text states.
package figures

import (
	"regexp"
	"sort"
	"strconv"
	"strings"

	"filing_ingest/pkg/models"
)

// DefaultWindowLines is how many lines after an anchor are scanned.
const DefaultWindowLines = 40

var (
	// "$ 209,586", "$(1,234)", "209,586", "$4.2 billion", "3.5 million"
	amountPattern = regexp.MustCompile(`(?i)(\$\s*)?(\()?(\d{1,3}(?:,\d{3})+(?:\.\d+)?|\d+(?:\.\d+)?)(\))?(\s*(?:millions?|billions?|thousands?)\b)?`)

	// "6%", "(2)%", "-3.5 %"
	percentPattern = regexp.MustCompile(`(\()?(-)?(\d+(?:\.\d+)?)(\))?\s*%`)

	unitPattern       = regexp.MustCompile(`(?i)\bin\s+(thousands|millions|billions)\b`)
	changeHeader      = regexp.MustCompile(`(?i)\bchange\b`)
	growthWordPattern = regexp.MustCompile(`(?i)\b(increase[sd]?|grew|growth|rose|higher|decrease[sd]?|decline[sd]?|fell|lower)\b`)
)

// Extractor finds RevenueFacts in MD&A text.
type Extractor struct {
	vocab       *Vocabulary
	windowLines int
	labels      map[models.BreakdownType][]labelMatcher
}

type labelMatcher struct {
	label string
	re    *regexp.Regexp
}

// NewExtractor compiles the vocabulary. A nil vocab selects DefaultVocabulary;
// windowLines <= 0 selects DefaultWindowLines.
func NewExtractor(vocab *Vocabulary, windowLines int) *Extractor {
	if vocab == nil {
		vocab = DefaultVocabulary()
	}
	if windowLines <= 0 {
		windowLines = DefaultWindowLines
	}
	e := &Extractor{
		vocab:       vocab,
		windowLines: windowLines,
		labels:      make(map[models.BreakdownType][]labelMatcher),
	}
	for axis, labels := range vocab.Categories {
		matchers := make([]labelMatcher, 0, len(labels))
		for _, label := range labels {
			pattern := `(?i)(?:^|[^\p{L}\p{N}])(` + regexp.QuoteMeta(label) + `)(?:[^\p{L}\p{N}]|$)`
			matchers = append(matchers, labelMatcher{label: label, re: regexp.MustCompile(pattern)})
		}
		// Longest first, so "Google Services" claims its span before "Services".
		sort.SliceStable(matchers, func(i, j int) bool { return len(matchers[i].label) > len(matchers[j].label) })
		e.labels[axis] = matchers
	}
	return e
}

// Extract returns at most one RevenueFact per breakdown axis: the anchor
// window with the most matched categories wins. No anchor or no anchored
// amounts yields nil.
func (e *Extractor) Extract(ticker string, fiscalYear int, mdaText string) []models.RevenueFact {
	lines := strings.Split(mdaText, "\n")
	lower := make([]string, len(lines))
	for i, l := range lines {
		lower[i] = strings.ToLower(l)
	}

	var facts []models.RevenueFact
	for _, axis := range models.BreakdownTypes {
		var best *windowResult
		for i := range lines {
			anchor, ok := e.anchorAt(axis, lower[i])
			if !ok {
				continue
			}
			end := i + 1 + e.windowLines
			if end > len(lines) {
				end = len(lines)
			}
			res := e.scanWindow(axis, lines[i:end])
			if len(res.figures) == 0 {
				continue
			}
			if best == nil || len(res.figures) > len(best.figures) {
				res.anchor = anchor
				best = &res
			}
		}
		if best == nil {
			continue
		}
		facts = append(facts, models.RevenueFact{
			Ticker:        ticker,
			FiscalYear:    fiscalYear,
			BreakdownType: axis,
			Unit:          best.unit,
			Anchor:        best.anchor,
			Categories:    best.figures,
		})
	}
	return facts
}

func (e *Extractor) anchorAt(axis models.BreakdownType, lowerLine string) (string, bool) {
	for _, phrase := range e.vocab.Anchors[axis] {
		if strings.Contains(lowerLine, strings.ToLower(phrase)) {
			return phrase, true
		}
	}
	return "", false
}

// =============================================================================
// WINDOW SCAN
// =============================================================================

type occurrence struct {
	label      string
	start, end int
}

type amountToken struct {
	start, end int
	value      float64
	scale      string // "millions" etc. when the token carries its own scale word
}

type windowResult struct {
	anchor  string
	unit    string
	figures map[string]models.CategoryFigure
}

func (e *Extractor) scanWindow(axis models.BreakdownType, window []string) windowResult {
	res := windowResult{unit: detectUnit(window), figures: map[string]models.CategoryFigure{}}
	amounts := make([][]amountToken, len(window))
	occs := make([][]occurrence, len(window))
	for i, line := range window {
		amounts[i] = findAmounts(line)
		occs[i] = e.findLabels(axis, line)
	}
	if res.unit == "" {
		res.unit = firstTokenScale(amounts)
	}

	changeFrom := -1
	var total float64
	haveTotal := false
	growth := map[string]float64{}

	// Pass 1: pair labels with amounts; read change columns of table rows.
	for li, line := range window {
		if changeFrom < 0 && changeHeader.MatchString(line) {
			changeFrom = li
		}
		if !haveTotal && isTotalLine(line) && len(amounts[li]) > 0 {
			total = res.convert(amounts[li][0])
			haveTotal = true
		}
		for k, oc := range occs[li] {
			if _, seen := res.figures[oc.label]; seen {
				continue
			}
			lo, hi := chunkBounds(occs[li], k, len(line))
			tok, ok := firstAmountIn(amounts[li], oc.end, hi)
			if !ok {
				tok, ok = lastAmountIn(amounts[li], lo, oc.start)
			}
			sameLine := ok
			if !ok && k == len(occs[li])-1 && li+1 < len(window) && len(occs[li+1]) == 0 && len(amounts[li+1]) > 0 {
				tok, ok = amounts[li+1][0], true
			}
			if !ok {
				continue
			}
			res.figures[oc.label] = models.CategoryFigure{Amount: res.convert(tok)}
			// The change column follows the current-period amount.
			if sameLine && changeFrom >= 0 && changeFrom < li && tok.end <= hi {
				if pct, ok := firstPercent(line[tok.end:hi]); ok {
					growth[oc.label] = pct
				}
			}
		}
	}

	// Pass 2: prose growth statements for labels still without a rate.
	for li, line := range window {
		for k, oc := range occs[li] {
			if _, paired := res.figures[oc.label]; !paired {
				continue
			}
			if _, done := growth[oc.label]; done {
				continue
			}
			_, hi := chunkBounds(occs[li], k, len(line))
			if pct, ok := proseGrowth(line[oc.end:hi]); ok {
				growth[oc.label] = pct
			}
		}
	}

	denominator := total
	if !haveTotal || total <= 0 {
		denominator = 0
		for _, f := range res.figures {
			denominator += f.Amount
		}
	}
	for label, f := range res.figures {
		if g, ok := growth[label]; ok {
			f.GrowthRate = &g
		}
		if denominator > 0 {
			share := f.Amount / denominator
			f.ShareOfTotal = &share
		}
		res.figures[label] = f
	}
	return res
}

// findLabels returns non-overlapping label occurrences on a line, in order.
func (e *Extractor) findLabels(axis models.BreakdownType, line string) []occurrence {
	var out []occurrence
	for _, m := range e.labels[axis] {
		for _, loc := range m.re.FindAllStringSubmatchIndex(line, -1) {
			oc := occurrence{label: m.label, start: loc[2], end: loc[3]}
			if !overlaps(out, oc) {
				out = append(out, oc)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].start < out[j].start })
	return out
}

func overlaps(existing []occurrence, oc occurrence) bool {
	for _, x := range existing {
		if oc.start < x.end && x.start < oc.end {
			return true
		}
	}
	return false
}

// chunkBounds returns the part of the line owned by occurrence k: from the
// end of the previous label to the start of the next one.
func chunkBounds(occs []occurrence, k, lineLen int) (lo, hi int) {
	hi = lineLen
	if k > 0 {
		lo = occs[k-1].end
	}
	if k+1 < len(occs) {
		hi = occs[k+1].start
	}
	return lo, hi
}

func firstAmountIn(tokens []amountToken, from, to int) (amountToken, bool) {
	for _, t := range tokens {
		if t.start >= from && t.end <= to {
			return t, true
		}
	}
	return amountToken{}, false
}

func lastAmountIn(tokens []amountToken, from, to int) (amountToken, bool) {
	for i := len(tokens) - 1; i >= 0; i-- {
		if t := tokens[i]; t.start >= from && t.end <= to {
			return t, true
		}
	}
	return amountToken{}, false
}

// findAmounts returns currency-amount tokens: "$"-prefixed, comma-grouped or
// scale-worded numbers. Percentages are excluded.
func findAmounts(line string) []amountToken {
	var out []amountToken
	for _, loc := range amountPattern.FindAllStringSubmatchIndex(line, -1) {
		start, end := loc[0], loc[1]
		dollar := loc[2] >= 0
		digits := line[loc[6]:loc[7]]
		scale := ""
		if loc[10] >= 0 {
			scale = normalizeScale(line[loc[10]:loc[11]])
		}
		if !dollar && !strings.Contains(digits, ",") && scale == "" {
			continue
		}
		if rest := strings.TrimLeft(line[end:], " "); strings.HasPrefix(rest, "%") {
			continue
		}
		raw := digits
		if loc[4] >= 0 && loc[8] >= 0 {
			raw = "(" + digits + ")"
		}
		out = append(out, amountToken{start: start, end: end, value: parseNumericValue(raw), scale: scale})
	}
	return out
}

// parseNumericValue parses "1,234.5"; parentheses mean negative.
func parseNumericValue(s string) float64 {
	s = strings.TrimSpace(s)
	s = strings.ReplaceAll(s, ",", "")
	s = strings.ReplaceAll(s, "$", "")
	s = strings.ReplaceAll(s, " ", "")

	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		s = "-" + s[1:len(s)-1]
	}

	val, _ := strconv.ParseFloat(s, 64)
	return val
}

func firstPercent(s string) (float64, bool) {
	m := percentPattern.FindStringSubmatch(s)
	if m == nil {
		return 0, false
	}
	return percentValue(m, false), true
}

// proseGrowth finds the first percentage preceded by a growth word.
// A decline word or parentheses make the rate negative.
func proseGrowth(s string) (float64, bool) {
	for _, loc := range percentPattern.FindAllStringSubmatchIndex(s, -1) {
		words := growthWordPattern.FindAllString(s[:loc[0]], -1)
		if len(words) == 0 {
			continue
		}
		m := make([]string, 5)
		for g := 0; g < 5; g++ {
			if loc[2*g] >= 0 {
				m[g] = s[loc[2*g]:loc[2*g+1]]
			}
		}
		return percentValue(m, isDeclineWord(words[len(words)-1])), true
	}
	return 0, false
}

func percentValue(m []string, decline bool) float64 {
	v, _ := strconv.ParseFloat(m[3], 64)
	if (m[1] != "" && m[4] != "") || m[2] != "" || decline {
		v = -v
	}
	return v
}

func isDeclineWord(w string) bool {
	w = strings.ToLower(w)
	return strings.HasPrefix(w, "decrease") || strings.HasPrefix(w, "decline") || w == "fell" || w == "lower"
}

func isTotalLine(line string) bool {
	l := strings.ToLower(strings.TrimSpace(line))
	return strings.HasPrefix(l, "total") && (strings.Contains(l, "sales") || strings.Contains(l, "revenue"))
}

// detectUnit reads a "(in millions)"-style caption from the window.
func detectUnit(window []string) string {
	for _, line := range window {
		if m := unitPattern.FindStringSubmatch(line); m != nil {
			return strings.ToLower(m[1])
		}
	}
	return ""
}

func firstTokenScale(amounts [][]amountToken) string {
	for _, line := range amounts {
		for _, t := range line {
			if t.scale != "" {
				return t.scale
			}
		}
	}
	return ""
}

// convert expresses a token in the window unit.
func (r *windowResult) convert(t amountToken) float64 {
	if t.scale == "" || r.unit == "" || t.scale == r.unit {
		return t.value
	}
	return t.value * scaleFactor(t.scale) / scaleFactor(r.unit)
}

func normalizeScale(word string) string {
	w := strings.ToLower(strings.TrimSpace(word))
	if !strings.HasSuffix(w, "s") {
		w += "s"
	}
	return w
}

func scaleFactor(unit string) float64 {
	switch unit {
	case "thousands":
		return 1e3
	case "millions":
		return 1e6
	case "billions":
		return 1e9
	}
	return 1
}

// HasCurrencyAmount reports whether text carries at least one currency-amount token.
func HasCurrencyAmount(text string) bool {
	for _, line := range strings.Split(text, "\n") {
		if len(findAmounts(line)) > 0 {
			return true
		}
	}
	return false
}
