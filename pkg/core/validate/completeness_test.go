package validate

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"filing_ingest/pkg/core/normalize"
	"filing_ingest/pkg/core/store"
	"filing_ingest/pkg/models"
)

const goodMDA = "Net sales by category\niPhone $ 205,489\nServices $ 78,129"

func writeTicker(t *testing.T, s *store.ArtifactStore, ticker string, filingType models.FilingType, sections map[models.SectionName]string) *models.ParsedFiling {
	t.Helper()
	parsed := &models.ParsedFiling{
		Ticker:   ticker,
		Filing:   &models.FilingMetadata{Ticker: ticker, FilingType: filingType, Form: "10-K"},
		ParsedAt: time.Now().UTC(),
	}
	if filingType == models.FilingAmendment {
		parsed.Filing.Form = "10-K/A"
	}
	var texts []store.SectionText
	for name, text := range sections {
		texts = append(texts, store.SectionText{Name: name, Text: text, Metrics: normalize.Measure(text, 0)})
	}
	require.NoError(t, s.WriteFiling(parsed, texts))
	return parsed
}

func fullSections() map[models.SectionName]string {
	return map[models.SectionName]string{
		models.SectionBusiness:    "We make phones.",
		models.SectionRiskFactors: "Competition is intense.",
		models.SectionMDA:         goodMDA,
	}
}

func TestValidateTicker_Complete(t *testing.T) {
	s := store.NewArtifactStore(t.TempDir(), nil)
	writeTicker(t, s, "AAPL", models.FilingOriginal, fullSections())

	res := NewValidator(s, nil, nil, nil).ValidateTicker("AAPL")
	assert.Equal(t, models.TickerComplete, res.Status)
	assert.Equal(t, models.FilingOriginal, res.FilingType)
	for _, name := range models.DefaultExpectedSections {
		assert.Equal(t, models.StatusOK, res.Sections[name], name)
	}
	assert.True(t, res.MDA.Checked)
	assert.True(t, res.MDA.HasBreakdownPhrase)
	assert.True(t, res.MDA.HasCurrencyAmount)
	assert.False(t, res.MDA.NeedsAttention)
	assert.Empty(t, res.Findings)
}

func TestValidateTicker_SizeMismatch(t *testing.T) {
	s := store.NewArtifactStore(t.TempDir(), nil)
	parsed := writeTicker(t, s, "AAPL", models.FilingOriginal, fullSections())

	// Truncate the risk factors artifact behind the store's back.
	path := s.ArtifactPath(parsed.Sections[models.SectionRiskFactors])
	require.NoError(t, os.WriteFile(path, []byte("Compet"), 0644))

	res := NewValidator(s, nil, nil, nil).ValidateTicker("AAPL")
	assert.Equal(t, models.TickerIncomplete, res.Status)
	assert.Equal(t, models.StatusSizeMismatch, res.Sections[models.SectionRiskFactors])
	assert.Equal(t, models.StatusOK, res.Sections[models.SectionBusiness])
	require.Len(t, res.Findings, 1)
	assert.Contains(t, res.Findings[0], "item_1a_risk_factors")
}

func TestValidateTicker_NoFile(t *testing.T) {
	s := store.NewArtifactStore(t.TempDir(), nil)
	parsed := writeTicker(t, s, "AAPL", models.FilingOriginal, fullSections())
	require.NoError(t, os.Remove(s.ArtifactPath(parsed.Sections[models.SectionBusiness])))

	res := NewValidator(s, nil, nil, nil).ValidateTicker("AAPL")
	assert.Equal(t, models.TickerIncomplete, res.Status)
	assert.Equal(t, models.StatusNoFile, res.Sections[models.SectionBusiness])
}

func TestValidateTicker_MissingSection(t *testing.T) {
	s := store.NewArtifactStore(t.TempDir(), nil)
	sections := fullSections()
	delete(sections, models.SectionMDA)
	writeTicker(t, s, "MSFT", models.FilingOriginal, sections)

	res := NewValidator(s, nil, nil, nil).ValidateTicker("MSFT")
	assert.Equal(t, models.TickerIncomplete, res.Status)
	assert.Equal(t, models.StatusMissing, res.Sections[models.SectionMDA])
	assert.False(t, res.MDA.Checked, "no MD&A, no content check")
}

func TestValidateTicker_NotParsed(t *testing.T) {
	s := store.NewArtifactStore(t.TempDir(), nil)
	res := NewValidator(s, nil, nil, nil).ValidateTicker("NOPE")

	assert.Equal(t, models.TickerNotParsed, res.Status)
	require.Len(t, res.Sections, len(models.DefaultExpectedSections))
	for _, status := range res.Sections {
		assert.Equal(t, models.StatusMissing, status)
	}
}

func TestValidateTicker_MDANeedsAttention(t *testing.T) {
	s := store.NewArtifactStore(t.TempDir(), nil)
	sections := fullSections()
	sections[models.SectionMDA] = "Results of operations improved across the board."
	writeTicker(t, s, "TSLA", models.FilingAmendment, sections)

	res := NewValidator(s, nil, nil, nil).ValidateTicker("TSLA")
	assert.Equal(t, models.TickerComplete, res.Status, "content checks never change completeness")
	assert.Equal(t, models.FilingAmendment, res.FilingType)
	assert.True(t, res.MDA.NeedsAttention)
	assert.False(t, res.MDA.HasBreakdownPhrase)
	assert.False(t, res.MDA.HasCurrencyAmount)
	require.Len(t, res.Findings, 2)
	assert.Contains(t, res.Findings[0], "10-K/A")
}

func TestValidateTicker_CustomExpectedSections(t *testing.T) {
	s := store.NewArtifactStore(t.TempDir(), nil)
	writeTicker(t, s, "AAPL", models.FilingOriginal, fullSections())

	v := NewValidator(s, []models.SectionName{models.SectionBusiness, models.SectionControls}, nil, nil)
	res := v.ValidateTicker("AAPL")
	assert.Equal(t, models.TickerIncomplete, res.Status)
	assert.Len(t, res.Sections, 2)
	assert.Equal(t, models.StatusMissing, res.Sections[models.SectionControls])
}

func TestValidateBatch_Summary(t *testing.T) {
	s := store.NewArtifactStore(t.TempDir(), nil)
	writeTicker(t, s, "AAPL", models.FilingOriginal, fullSections())
	partial := fullSections()
	delete(partial, models.SectionRiskFactors)
	writeTicker(t, s, "MSFT", models.FilingOriginal, partial)

	v := NewValidator(s, nil, nil, nil)
	fixed := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	v.now = func() time.Time { return fixed }

	report := v.ValidateBatch([]string{"AAPL", "MSFT", "ZZZZ", "NVDA"})
	require.Len(t, report.Tickers, 4)
	assert.NotEmpty(t, report.RunID)
	assert.Equal(t, fixed, report.GeneratedAt)
	assert.Equal(t, "ZZZZ", report.Tickers[2].Ticker)

	sum := report.Summary
	assert.Equal(t, 4, sum.TotalTickers)
	assert.Equal(t, 1, sum.Complete)
	assert.Equal(t, 1, sum.Incomplete)
	assert.Equal(t, 2, sum.NotParsed)
	assert.Equal(t, []string{"MSFT", "NVDA", "ZZZZ"}, sum.RefetchTickers)

	risk := sum.Sections[models.SectionRiskFactors]
	assert.Equal(t, 1, risk[models.StatusOK].Count)
	assert.Equal(t, 25.0, risk[models.StatusOK].Percent)
	assert.Equal(t, 3, risk[models.StatusMissing].Count)
	assert.Equal(t, 75.0, risk[models.StatusMissing].Percent)
	assert.Equal(t, 0, risk[models.StatusNoFile].Count)
}

func TestSummarize_Empty(t *testing.T) {
	sum := Summarize(models.DefaultExpectedSections, nil)
	assert.Equal(t, 0, sum.TotalTickers)
	assert.Equal(t, 0.0, sum.Sections[models.SectionMDA][models.StatusOK].Percent)
}

func TestWriteReport(t *testing.T) {
	s := store.NewArtifactStore(t.TempDir(), nil)
	writeTicker(t, s, "AAPL", models.FilingOriginal, fullSections())
	report := NewValidator(s, nil, nil, nil).ValidateBatch([]string{"AAPL", "A|B"})

	dir := filepath.Join(t.TempDir(), "reports")
	paths, err := WriteReport(dir, report)
	require.NoError(t, err)
	require.Len(t, paths, 3)

	md, err := os.ReadFile(filepath.Join(dir, "validation_report.md"))
	require.NoError(t, err)
	assert.Contains(t, string(md), "| AAPL | COMPLETE |")
	assert.Contains(t, string(md), `A\|B`)
	assert.Contains(t, string(md), "## Re-fetch")

	html, err := os.ReadFile(filepath.Join(dir, "validation_report.html"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(html), "<!DOCTYPE html>"))
	assert.Contains(t, string(html), "<table>")

	_, err = os.Stat(filepath.Join(dir, "validation_report.json"))
	assert.NoError(t, err)
}
