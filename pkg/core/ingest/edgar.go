package ingest

// API Documentation: https://www.sec.gov/developer

import (
	"context"
	"fmt"
	"net/http"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/agext/levenshtein"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/phuslu/log"

	"filing_ingest/pkg/core/logging"
	"filing_ingest/pkg/models"
)

const (
	// SEC EDGAR endpoints
	DefaultTickersURL     = "https://www.sec.gov/files/company_tickers.json"
	DefaultSubmissionsURL = "https://data.sec.gov/submissions"
	DefaultArchivesURL    = "https://www.sec.gov/Archives/edgar/data"

	defaultLookback       = 3
	submissionsCacheSize  = 256
	maxSuggestions        = 3
	maxSuggestionDistance = 2
)

// Qualifying annual report forms. "10-KA" shows up in some older indexes.
var (
	originalForms  = map[string]bool{"10-K": true, "10-K405": true, "10-KT": true}
	amendmentForms = map[string]bool{"10-K/A": true, "10-K405/A": true, "10-KT/A": true, "10-KA": true}
)

// =============================================================================
// SEC EDGAR DATA TYPES
// =============================================================================

// SECCompanyInfo represents the top-level company submission response.
type SECCompanyInfo struct {
	CIK     string     `json:"cik"`
	Name    string     `json:"name"`
	Tickers []string   `json:"tickers"`
	Filings SECFilings `json:"filings"`
}

// SECFilings contains the recent filing list.
type SECFilings struct {
	Recent SECRecentFilings `json:"recent"`
}

// SECRecentFilings holds arrays of filing attributes (parallel arrays).
type SECRecentFilings struct {
	AccessionNumber []string `json:"accessionNumber"` // e.g., "0000320193-24-000123"
	FilingDate      []string `json:"filingDate"`      // e.g., "2024-11-01"
	ReportDate      []string `json:"reportDate"`      // fiscal period end
	Form            []string `json:"form"`            // "10-K", "10-K/A", "8-K"
	PrimaryDocument []string `json:"primaryDocument"` // filename
}

// CompanyTicker is one row of company_tickers.json:
// { "0": {"cik_str": 320193, "ticker": "AAPL", "title": "Apple Inc."}, ... }
type CompanyTicker struct {
	CIK    int    `json:"cik_str"`
	Ticker string `json:"ticker"`
	Title  string `json:"title"`
}

// candidate is a qualifying filing row denormalized from the parallel arrays.
type candidate struct {
	accession  string
	sequence   int
	filingDate string
	reportDate string
	form       string
	primaryDoc string
	amendment  bool
}

// =============================================================================
// LOCATOR
// =============================================================================

// JSONGetter is the subset of Fetcher the locator needs.
type JSONGetter interface {
	GetJSON(ctx context.Context, url string, v interface{}) error
}

// EDGARLocator resolves tickers to their most recent qualifying 10-K.
type EDGARLocator struct {
	client         JSONGetter
	tickersURL     string
	submissionsURL string
	archivesURL    string
	lookback       int
	logger         *log.Logger

	tickerMu    sync.Mutex
	tickerCache map[string]CompanyTicker // upper-case ticker -> entry

	submissions *lru.Cache[string, *SECCompanyInfo]
}

// LocatorOption configures an EDGARLocator.
type LocatorOption func(*EDGARLocator)

// WithEndpoints overrides the EDGAR base URLs (used by tests).
func WithEndpoints(tickersURL, submissionsURL, archivesURL string) LocatorOption {
	return func(l *EDGARLocator) {
		l.tickersURL = tickersURL
		l.submissionsURL = strings.TrimRight(submissionsURL, "/")
		l.archivesURL = strings.TrimRight(archivesURL, "/")
	}
}

// WithLookback sets how many of the most recent qualifying filings are considered.
func WithLookback(n int) LocatorOption {
	return func(l *EDGARLocator) {
		if n > 0 {
			l.lookback = n
		}
	}
}

// WithLocatorLogger sets the logger.
func WithLocatorLogger(lg *log.Logger) LocatorOption {
	return func(l *EDGARLocator) { l.logger = lg }
}

// NewEDGARLocator creates a locator that issues its requests through client.
func NewEDGARLocator(client JSONGetter, opts ...LocatorOption) *EDGARLocator {
	cache, _ := lru.New[string, *SECCompanyInfo](submissionsCacheSize)
	l := &EDGARLocator{
		client:         client,
		tickersURL:     DefaultTickersURL,
		submissionsURL: DefaultSubmissionsURL,
		archivesURL:    DefaultArchivesURL,
		lookback:       defaultLookback,
		logger:         logging.NewSilent(),
		submissions:    cache,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Locate returns the most recent qualifying annual filing for ticker.
// Originals win over amendments within the lookback window.
func (l *EDGARLocator) Locate(ctx context.Context, ticker string) (*models.FilingMetadata, error) {
	ticker = NormalizeTicker(ticker)
	entry, err := l.LookupCIK(ctx, ticker)
	if err != nil {
		return nil, err
	}
	cik := padCIK(entry.CIK)

	info, err := l.companyInfo(ctx, cik)
	if err != nil {
		if errorStatus(err) == http.StatusNotFound {
			return nil, fmt.Errorf("%w: %s (CIK %s has no submissions)", ErrNoFilingAvailable, ticker, cik)
		}
		return nil, fmt.Errorf("failed to fetch submissions for %s: %w", ticker, err)
	}

	chosen, ok := selectFiling(qualifyingFilings(info), l.lookback)
	if !ok {
		return nil, fmt.Errorf("%w: %s (CIK %s)", ErrNoFilingAvailable, ticker, cik)
	}

	meta := &models.FilingMetadata{
		Ticker:          ticker,
		CIK:             cik,
		CompanyName:     firstNonEmpty(info.Name, entry.Title),
		FilingType:      models.FilingOriginal,
		Form:            chosen.form,
		AccessionNumber: chosen.accession,
		FilingDate:      chosen.filingDate,
		ReportDate:      chosen.reportDate,
		FiscalYear:      extractFiscalYear(chosen.reportDate, chosen.primaryDoc, chosen.filingDate),
		PrimaryDocument: chosen.primaryDoc,
		DocumentURL:     l.documentURL(entry.CIK, chosen.accession, chosen.primaryDoc),
	}
	if chosen.amendment {
		meta.FilingType = models.FilingAmendment
		l.logger.Warn().Str("ticker", ticker).Str("form", chosen.form).Msg("no original annual report in lookback window, using amendment")
	}
	l.logger.Info().Str("ticker", ticker).Str("cik", cik).Str("form", meta.Form).Str("filed", meta.FilingDate).Msg("located filing")
	return meta, nil
}

// LookupCIK resolves a ticker using the cached SEC ticker map.
func (l *EDGARLocator) LookupCIK(ctx context.Context, ticker string) (CompanyTicker, error) {
	ticker = NormalizeTicker(ticker)

	l.tickerMu.Lock()
	defer l.tickerMu.Unlock()

	if l.tickerCache == nil {
		if err := l.loadTickerCache(ctx); err != nil {
			return CompanyTicker{}, err
		}
	}
	if entry, ok := l.tickerCache[ticker]; ok {
		return entry, nil
	}
	if suggestions := l.closestTickers(ticker); len(suggestions) > 0 {
		return CompanyTicker{}, fmt.Errorf("%w: %s (did you mean %s?)", ErrNotFound, ticker, strings.Join(suggestions, ", "))
	}
	return CompanyTicker{}, fmt.Errorf("%w: %s", ErrNotFound, ticker)
}

// loadTickerCache fetches company_tickers.json. Caller holds tickerMu.
func (l *EDGARLocator) loadTickerCache(ctx context.Context) error {
	var mapping map[string]CompanyTicker
	if err := l.client.GetJSON(ctx, l.tickersURL, &mapping); err != nil {
		return fmt.Errorf("failed to fetch ticker mapping: %w", err)
	}
	cache := make(map[string]CompanyTicker, len(mapping))
	for _, entry := range mapping {
		cache[NormalizeTicker(entry.Ticker)] = entry
	}
	l.tickerCache = cache
	l.logger.Debug().Int("tickers", len(cache)).Msg("loaded SEC ticker map")
	return nil
}

// closestTickers returns up to maxSuggestions known tickers within a small edit distance.
func (l *EDGARLocator) closestTickers(ticker string) []string {
	type scored struct {
		ticker string
		dist   int
	}
	var matches []scored
	for known := range l.tickerCache {
		if d := levenshtein.Distance(ticker, known, nil); d <= maxSuggestionDistance {
			matches = append(matches, scored{known, d})
		}
	}
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].dist != matches[j].dist {
			return matches[i].dist < matches[j].dist
		}
		return matches[i].ticker < matches[j].ticker
	})
	out := make([]string, 0, maxSuggestions)
	for i := 0; i < len(matches) && i < maxSuggestions; i++ {
		out = append(out, matches[i].ticker)
	}
	return out
}

func (l *EDGARLocator) companyInfo(ctx context.Context, cik string) (*SECCompanyInfo, error) {
	if info, ok := l.submissions.Get(cik); ok {
		return info, nil
	}
	var info SECCompanyInfo
	url := fmt.Sprintf("%s/CIK%s.json", l.submissionsURL, cik)
	if err := l.client.GetJSON(ctx, url, &info); err != nil {
		return nil, err
	}
	l.submissions.Add(cik, &info)
	return &info, nil
}

// documentURL builds .../Archives/edgar/data/{cik}/{accession-no-dashes}/{document}.
func (l *EDGARLocator) documentURL(cik int, accession, primaryDoc string) string {
	return fmt.Sprintf("%s/%d/%s/%s", l.archivesURL, cik, strings.ReplaceAll(accession, "-", ""), primaryDoc)
}

// qualifyingFilings extracts annual report rows, newest first.
// Ties on filing date are broken by accession sequence number.
func qualifyingFilings(info *SECCompanyInfo) []candidate {
	recent := info.Filings.Recent
	out := make([]candidate, 0)
	for i := range recent.Form {
		form := strings.ToUpper(strings.TrimSpace(recent.Form[i]))
		original, amendment := originalForms[form], amendmentForms[form]
		if !original && !amendment {
			continue
		}
		if i >= len(recent.AccessionNumber) || i >= len(recent.FilingDate) || i >= len(recent.PrimaryDocument) {
			continue
		}
		c := candidate{
			accession:  recent.AccessionNumber[i],
			sequence:   accessionSequence(recent.AccessionNumber[i]),
			filingDate: recent.FilingDate[i],
			form:       form,
			primaryDoc: recent.PrimaryDocument[i],
			amendment:  amendment,
		}
		if i < len(recent.ReportDate) {
			c.reportDate = recent.ReportDate[i]
		}
		if c.primaryDoc == "" {
			continue
		}
		out = append(out, c)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].filingDate != out[j].filingDate {
			return out[i].filingDate > out[j].filingDate // ISO dates sort lexically
		}
		return out[i].sequence > out[j].sequence
	})
	return out
}

// selectFiling applies the original-over-amendment rule to the first lookback candidates.
func selectFiling(candidates []candidate, lookback int) (candidate, bool) {
	if len(candidates) == 0 {
		return candidate{}, false
	}
	if lookback > 0 && len(candidates) > lookback {
		candidates = candidates[:lookback]
	}
	for _, c := range candidates {
		if !c.amendment {
			return c, true
		}
	}
	return candidates[0], true
}

// accessionSequence returns the trailing sequence segment of
// "0000320193-24-000123", or 0 when the format is unexpected.
func accessionSequence(accession string) int {
	parts := strings.Split(accession, "-")
	if len(parts) != 3 {
		return 0
	}
	n, err := strconv.Atoi(parts[2])
	if err != nil {
		return 0
	}
	return n
}

// NormalizeTicker upper-cases a symbol and maps share-class dots to dashes (BRK.B -> BRK-B).
func NormalizeTicker(ticker string) string {
	return strings.ReplaceAll(strings.ToUpper(strings.TrimSpace(ticker)), ".", "-")
}

func padCIK(cik int) string {
	return fmt.Sprintf("%010d", cik)
}

var docYearPattern = regexp.MustCompile(`(20\d{2})(\d{2})(\d{2})`)

// extractFiscalYear derives the fiscal year from the report date, then the
// date stamp in the primary document name, then the filing year minus one.
func extractFiscalYear(reportDate, primaryDoc, filingDate string) int {
	if len(reportDate) >= 4 {
		if y, err := strconv.Atoi(reportDate[:4]); err == nil {
			return y
		}
	}
	if m := docYearPattern.FindStringSubmatch(primaryDoc); m != nil {
		y, _ := strconv.Atoi(m[1])
		return y
	}
	if len(filingDate) >= 4 {
		if y, err := strconv.Atoi(filingDate[:4]); err == nil {
			return y - 1
		}
	}
	return 0
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
