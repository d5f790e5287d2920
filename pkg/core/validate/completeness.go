// Package validate checks persisted filing artifacts for completeness and
// reports the gaps per ticker and across a batch.
package validate

import (
	"errors"
	"fmt"
	"math"
	"os"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/phuslu/log"

	"filing_ingest/pkg/core/figures"
	"filing_ingest/pkg/core/ingest"
	"filing_ingest/pkg/core/logging"
	"filing_ingest/pkg/core/store"
	"filing_ingest/pkg/models"
)

// Validator recomputes ValidationResults from the artifact tree. It never
// modifies artifacts.
type Validator struct {
	store    *store.ArtifactStore
	expected []models.SectionName
	vocab    *figures.Vocabulary
	logger   *log.Logger
	now      func() time.Time
}

// NewValidator creates a validator. Empty expected selects
// models.DefaultExpectedSections; nil vocab selects the default vocabulary.
func NewValidator(s *store.ArtifactStore, expected []models.SectionName, vocab *figures.Vocabulary, logger *log.Logger) *Validator {
	if len(expected) == 0 {
		expected = models.DefaultExpectedSections
	}
	if vocab == nil {
		vocab = figures.DefaultVocabulary()
	}
	if logger == nil {
		logger = logging.NewSilent()
	}
	return &Validator{store: s, expected: expected, vocab: vocab, logger: logger, now: time.Now}
}

// Expected returns the sections every complete ticker must have.
func (v *Validator) Expected() []models.SectionName { return v.expected }

// ValidateTicker checks one ticker's expected sections and MD&A content.
func (v *Validator) ValidateTicker(ticker string) models.ValidationResult {
	ticker = ingest.NormalizeTicker(ticker)
	res := models.ValidationResult{
		Ticker:   ticker,
		Sections: make(map[models.SectionName]models.SectionStatus, len(v.expected)),
	}

	parsed, err := v.store.LoadParsedFiling(ticker)
	if err != nil {
		res.Status = models.TickerNotParsed
		for _, name := range v.expected {
			res.Sections[name] = models.StatusMissing
		}
		if !errors.Is(err, store.ErrNotParsed) {
			res.Findings = append(res.Findings, fmt.Sprintf("metadata unreadable: %v", err))
		}
		return res
	}
	if parsed.Filing != nil {
		res.FilingType = parsed.Filing.FilingType
		if parsed.Filing.IsAmendment() {
			res.Findings = append(res.Findings, fmt.Sprintf("parsed from amendment %s; sections may be incomplete", parsed.Filing.Form))
		}
	}

	res.Status = models.TickerComplete
	for _, name := range v.expected {
		status, finding := v.checkSection(parsed, name)
		res.Sections[name] = status
		if status != models.StatusOK {
			res.Status = models.TickerIncomplete
			res.Findings = append(res.Findings, finding)
		}
	}

	if res.Sections[models.SectionMDA] == models.StatusOK {
		res.MDA = v.checkMDA(ticker)
		if res.MDA.NeedsAttention {
			res.Findings = append(res.Findings, mdaFinding(res.MDA))
		}
	}
	return res
}

func (v *Validator) checkSection(parsed *models.ParsedFiling, name models.SectionName) (models.SectionStatus, string) {
	rec, ok := parsed.Sections[name]
	if !ok {
		return models.StatusMissing, fmt.Sprintf("%s: no section record", name)
	}
	info, err := os.Stat(v.store.ArtifactPath(rec))
	if err != nil || info.IsDir() {
		return models.StatusNoFile, fmt.Sprintf("%s: artifact %s not found", name, rec.TextArtifact)
	}
	if info.Size() != int64(rec.CharCount) {
		return models.StatusSizeMismatch, fmt.Sprintf("%s: recorded %d bytes, artifact has %d", name, rec.CharCount, info.Size())
	}
	return models.StatusOK, ""
}

// checkMDA looks for the signal the figure extractor needs. Diagnostic only.
func (v *Validator) checkMDA(ticker string) models.MDAContentCheck {
	text, err := v.store.ReadSection(ticker, models.SectionMDA)
	if err != nil {
		v.logger.Warn().Str("ticker", ticker).Err(err).Msg("could not read MD&A for content check")
		return models.MDAContentCheck{}
	}
	check := models.MDAContentCheck{
		Checked:            true,
		HasBreakdownPhrase: v.vocab.HasBreakdownPhrase(text),
		HasCurrencyAmount:  figures.HasCurrencyAmount(text),
	}
	check.NeedsAttention = !check.HasBreakdownPhrase || !check.HasCurrencyAmount
	return check
}

func mdaFinding(c models.MDAContentCheck) string {
	switch {
	case !c.HasBreakdownPhrase && !c.HasCurrencyAmount:
		return "item_7_mda: no revenue-breakdown phrase and no currency amounts"
	case !c.HasBreakdownPhrase:
		return "item_7_mda: no revenue-breakdown phrase"
	default:
		return "item_7_mda: no currency amounts"
	}
}

// ValidateBatch validates every ticker and aggregates the results. Each
// distinct ticker appears exactly once in the report, in input order.
func (v *Validator) ValidateBatch(tickers []string) *models.ValidationReport {
	report := &models.ValidationReport{
		RunID:       uuid.NewString(),
		GeneratedAt: v.now().UTC(),
		Expected:    v.expected,
		Tickers:     make([]models.ValidationResult, 0, len(tickers)),
	}
	seen := make(map[string]bool, len(tickers))
	for _, t := range tickers {
		key := ingest.NormalizeTicker(t)
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		report.Tickers = append(report.Tickers, v.ValidateTicker(key))
	}
	report.Summary = Summarize(v.expected, report.Tickers)
	v.logger.Info().Str("run_id", report.RunID).
		Int("tickers", report.Summary.TotalTickers).
		Int("complete", report.Summary.Complete).
		Int("incomplete", report.Summary.Incomplete).
		Int("not_parsed", report.Summary.NotParsed).
		Msg("validation finished")
	return report
}

// Summarize counts statuses per section and lists tickers needing a re-fetch.
func Summarize(expected []models.SectionName, results []models.ValidationResult) models.ValidationSummary {
	sum := models.ValidationSummary{
		TotalTickers: len(results),
		Sections:     make(map[models.SectionName]map[models.SectionStatus]models.StatusCount, len(expected)),
	}
	counts := make(map[models.SectionName]map[models.SectionStatus]int, len(expected))
	for _, name := range expected {
		counts[name] = make(map[models.SectionStatus]int, len(models.SectionStatuses))
	}

	for _, r := range results {
		switch r.Status {
		case models.TickerComplete:
			sum.Complete++
		case models.TickerIncomplete:
			sum.Incomplete++
		case models.TickerNotParsed:
			sum.NotParsed++
		}
		if r.MDA.NeedsAttention {
			sum.MDAAttention++
		}
		refetch := r.Status == models.TickerNotParsed
		for _, name := range expected {
			status := r.Sections[name]
			if status == "" {
				status = models.StatusMissing
			}
			counts[name][status]++
			if status != models.StatusOK {
				refetch = true
			}
		}
		if refetch {
			sum.RefetchTickers = append(sum.RefetchTickers, r.Ticker)
		}
	}
	sort.Strings(sum.RefetchTickers)

	for name, byStatus := range counts {
		sum.Sections[name] = make(map[models.SectionStatus]models.StatusCount, len(models.SectionStatuses))
		for _, status := range models.SectionStatuses {
			sum.Sections[name][status] = models.StatusCount{
				Count:   byStatus[status],
				Percent: percent(byStatus[status], len(results)),
			}
		}
	}
	return sum
}

func percent(n, total int) float64 {
	if total == 0 {
		return 0
	}
	return math.Round(float64(n)/float64(total)*10000) / 100
}
