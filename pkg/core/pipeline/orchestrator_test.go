package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"filing_ingest/pkg/core/ingest"
	"filing_ingest/pkg/core/store"
	"filing_ingest/pkg/models"
)

// --- Mocks ---

type MockLocator struct {
	LocateFunc func(ctx context.Context, ticker string) (*models.FilingMetadata, error)
}

func (m *MockLocator) Locate(ctx context.Context, ticker string) (*models.FilingMetadata, error) {
	if m.LocateFunc != nil {
		return m.LocateFunc(ctx, ticker)
	}
	return &models.FilingMetadata{
		Ticker:      ticker,
		CIK:         "0000320193",
		FilingType:  models.FilingOriginal,
		Form:        "10-K",
		FiscalYear:  2024,
		DocumentURL: "https://www.sec.gov/Archives/edgar/data/320193/" + strings.ToLower(ticker) + ".htm",
	}, nil
}

type MockFetcher struct {
	FetchFunc func(ctx context.Context, url string) (string, error)
	calls     atomic.Int32
}

func (m *MockFetcher) FetchDocument(ctx context.Context, url string) (string, error) {
	m.calls.Add(1)
	if m.FetchFunc != nil {
		return m.FetchFunc(ctx, url)
	}
	return fullDocument, nil
}

type MockSink struct {
	SaveFunc func(ctx context.Context, parsed *models.ParsedFiling, facts []models.RevenueFact) error
	saved    atomic.Int32
}

func (m *MockSink) SaveFiling(ctx context.Context, parsed *models.ParsedFiling, facts []models.RevenueFact) error {
	m.saved.Add(1)
	if m.SaveFunc != nil {
		return m.SaveFunc(ctx, parsed, facts)
	}
	return nil
}

// --- Fixtures ---

func filler(word string, n int) string {
	return "<p>" + strings.TrimSpace(strings.Repeat(word+" ", n)) + "</p>\n"
}

var fullDocument = "<html><body>\n" +
	"<p>Item 1. Business</p>\n" + filler("business", 100) +
	"<p>Item 1A. Risk Factors</p>\n" + filler("risk", 100) +
	"<p>Item 7. Management's Discussion and Analysis</p>\n" +
	"<p>Net sales by category</p>\n" +
	"<p>iPhone net sales were <ix:nonFraction name=\"us-gaap:Revenue\">$209,586</ix:nonFraction> for the year.</p>\n" +
	"<p>Services net sales were $109,158 for the year.</p>\n" +
	"</body></html>"

var noRiskDocument = "<p>Item 1. Business</p>\n" + filler("business", 100) +
	"<p>Item 7. Management's Discussion and Analysis</p>\n" + filler("sales", 100)

func newTestPipeline(t *testing.T, fetcher DocumentFetcher, opts ...Option) (*Pipeline, *store.ArtifactStore) {
	t.Helper()
	artifacts := store.NewArtifactStore(t.TempDir(), nil)
	return NewPipeline(&MockLocator{}, fetcher, artifacts, opts...), artifacts
}

// --- Unit of work ---

func TestProcessTicker_FullFiling(t *testing.T) {
	sink := &MockSink{}
	p, artifacts := newTestPipeline(t, &MockFetcher{}, WithSink(sink))

	out := p.ProcessTicker(context.Background(), "aapl")
	assert.Equal(t, "AAPL", out.Ticker)
	assert.Equal(t, OutcomeOK, out.Status)
	assert.Empty(t, out.Error)
	assert.Equal(t, []models.SectionName{models.SectionBusiness, models.SectionRiskFactors, models.SectionMDA}, out.Sections)
	assert.Empty(t, out.Missing)
	assert.Equal(t, 1, out.Facts)
	assert.EqualValues(t, 1, sink.saved.Load())

	parsed, err := artifacts.LoadParsedFiling("AAPL")
	require.NoError(t, err)
	require.Len(t, parsed.Sections, 3)
	for _, rec := range parsed.Sections {
		assert.Greater(t, rec.CharCount, 0)
	}
	assert.Greater(t, parsed.TextLength, 0)
	assert.EqualValues(t, 2024, parsed.Filing.FiscalYear)

	mda, err := artifacts.ReadSection("AAPL", models.SectionMDA)
	require.NoError(t, err)
	assert.Contains(t, mda, "$209,586", "inline XBRL values stay in the text")

	facts, err := artifacts.LoadFacts("AAPL")
	require.NoError(t, err)
	require.Len(t, facts, 1)
	assert.Equal(t, 209586.0, facts[0].Categories["iPhone"].Amount)
	assert.Equal(t, 109158.0, facts[0].Categories["Services"].Amount)
	assert.Equal(t, 2024, facts[0].FiscalYear)

	assert.Equal(t, models.TickerComplete, p.Validator().ValidateTicker("AAPL").Status)
}

func TestProcessTicker_TransientFetchLeavesNoArtifacts(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	fetcher := ingest.NewFetcher("test-agent test@example.com",
		ingest.WithLimiter(ingest.Unlimited{}),
		ingest.WithRetry(3, time.Millisecond, 2*time.Millisecond))
	locator := &MockLocator{LocateFunc: func(ctx context.Context, ticker string) (*models.FilingMetadata, error) {
		return &models.FilingMetadata{Ticker: ticker, FilingType: models.FilingOriginal, DocumentURL: srv.URL + "/doc.htm"}, nil
	}}
	artifacts := store.NewArtifactStore(t.TempDir(), nil)
	p := NewPipeline(locator, fetcher, artifacts)

	out := p.ProcessTicker(context.Background(), "AAPL")
	assert.Equal(t, OutcomeFetchFailed, out.Status)
	assert.Equal(t, "transient", out.ErrorKind)
	assert.Contains(t, out.Error, "503")
	assert.EqualValues(t, 3, hits.Load())

	_, err := os.Stat(artifacts.TickerDir("AAPL"))
	assert.True(t, errors.Is(err, os.ErrNotExist), "no partial artifacts after a failed fetch")
}

func TestProcessTicker_LocatorFailures(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want OutcomeStatus
	}{
		{"unknown ticker", ingest.ErrNotFound, OutcomeNotFound},
		{"no filing", ingest.ErrNoFilingAvailable, OutcomeNoFiling},
		{"upstream", &ingest.TransientFetchError{URL: "u", StatusCode: 503, Attempts: 3}, OutcomeFetchFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			locator := &MockLocator{LocateFunc: func(ctx context.Context, ticker string) (*models.FilingMetadata, error) {
				return nil, tt.err
			}}
			fetcher := &MockFetcher{}
			artifacts := store.NewArtifactStore(t.TempDir(), nil)
			out := NewPipeline(locator, fetcher, artifacts).ProcessTicker(context.Background(), "ZZZZ")

			assert.Equal(t, tt.want, out.Status)
			assert.NotEmpty(t, out.Error)
			assert.EqualValues(t, 0, fetcher.calls.Load())
		})
	}
}

func TestProcessTicker_EmptySegmentation(t *testing.T) {
	fetcher := &MockFetcher{FetchFunc: func(ctx context.Context, url string) (string, error) {
		return "<html><body><p>Cover page only. See exhibit 13.</p></body></html>", nil
	}}
	p, artifacts := newTestPipeline(t, fetcher)

	out := p.ProcessTicker(context.Background(), "WRAP")
	assert.Equal(t, OutcomeEmptySegmentation, out.Status)
	assert.Empty(t, out.Sections)
	assert.Len(t, out.Missing, len(models.DefaultExpectedSections))

	parsed, err := artifacts.LoadParsedFiling("WRAP")
	require.NoError(t, err)
	assert.Empty(t, parsed.Sections)
	assert.Equal(t, models.TickerIncomplete, p.Validator().ValidateTicker("WRAP").Status)
}

func TestProcessTicker_PartialAndNoFigures(t *testing.T) {
	fetcher := &MockFetcher{FetchFunc: func(ctx context.Context, url string) (string, error) {
		return noRiskDocument, nil
	}}
	p, _ := newTestPipeline(t, fetcher)

	out := p.ProcessTicker(context.Background(), "MSFT")
	assert.Equal(t, OutcomePartial, out.Status)
	assert.Equal(t, []models.SectionName{models.SectionRiskFactors}, out.Missing)
	assert.Equal(t, 0, out.Facts)

	p2, _ := newTestPipeline(t, fetcher, WithExpectedSections([]models.SectionName{models.SectionBusiness, models.SectionMDA}))
	out = p2.ProcessTicker(context.Background(), "MSFT")
	assert.Equal(t, OutcomeNoFigures, out.Status)
}

func TestProcessTicker_SinkFailureIsAWarning(t *testing.T) {
	sink := &MockSink{SaveFunc: func(ctx context.Context, parsed *models.ParsedFiling, facts []models.RevenueFact) error {
		return errors.New("connection refused")
	}}
	p, _ := newTestPipeline(t, &MockFetcher{}, WithSink(sink))

	out := p.ProcessTicker(context.Background(), "AAPL")
	assert.Equal(t, OutcomeOK, out.Status)
	require.Len(t, out.Warnings, 1)
	assert.Contains(t, out.Warnings[0], "connection refused")
}

func TestProcessTicker_Idempotent(t *testing.T) {
	parsedAt := time.Date(2024, 11, 1, 9, 30, 0, 0, time.UTC)
	p, artifacts := newTestPipeline(t, &MockFetcher{}, WithClock(func() time.Time { return parsedAt }))
	dir := artifacts.TickerDir("AAPL")

	readAll := func() map[string][]byte {
		entries, err := os.ReadDir(dir)
		require.NoError(t, err)
		files := make(map[string][]byte, len(entries))
		for _, e := range entries {
			data, err := os.ReadFile(filepath.Join(dir, e.Name()))
			require.NoError(t, err)
			files[e.Name()] = data
		}
		return files
	}

	require.Equal(t, OutcomeOK, p.ProcessTicker(context.Background(), "AAPL").Status)
	first, err := artifacts.LoadParsedFiling("AAPL")
	require.NoError(t, err)
	before := readAll()

	require.Equal(t, OutcomeOK, p.ProcessTicker(context.Background(), "AAPL").Status)
	second, err := artifacts.LoadParsedFiling("AAPL")
	require.NoError(t, err)

	assert.Equal(t, before, readAll(), "every artifact, metadata.json included, is rewritten identically")
	assert.Contains(t, before, store.MetadataFile)
	assert.Equal(t, first.Sections, second.Sections)
	assert.True(t, parsedAt.Equal(second.ParsedAt))
}

// --- Batch ---

func batchFetcher() *MockFetcher {
	return &MockFetcher{FetchFunc: func(ctx context.Context, url string) (string, error) {
		if strings.HasSuffix(url, "msft.htm") {
			return noRiskDocument, nil
		}
		return fullDocument, nil
	}}
}

func batchLocator() *MockLocator {
	def := &MockLocator{}
	return &MockLocator{LocateFunc: func(ctx context.Context, ticker string) (*models.FilingMetadata, error) {
		if ticker == "NOPE" {
			return nil, ingest.ErrNotFound
		}
		return def.Locate(ctx, ticker)
	}}
}

func TestRunBatch_ReportsEveryTickerInOrder(t *testing.T) {
	artifacts := store.NewArtifactStore(t.TempDir(), nil)
	p := NewPipeline(batchLocator(), batchFetcher(), artifacts, WithConcurrency(3))

	res, err := p.RunBatch(context.Background(), []string{"aapl", "MSFT", "NOPE", "AAPL", " "})
	require.NoError(t, err)
	require.Len(t, res.Outcomes, 3)
	assert.NotEmpty(t, res.RunID)

	assert.Equal(t, "AAPL", res.Outcomes[0].Ticker)
	assert.Equal(t, OutcomeOK, res.Outcomes[0].Status)
	assert.Equal(t, "MSFT", res.Outcomes[1].Ticker)
	assert.Equal(t, OutcomePartial, res.Outcomes[1].Status)
	assert.Equal(t, "NOPE", res.Outcomes[2].Ticker)
	assert.Equal(t, OutcomeNotFound, res.Outcomes[2].Status)
	assert.Equal(t, 1, res.Counts[OutcomeOK])

	data, err := os.ReadFile(filepath.Join(artifacts.Root(), OutcomesFile))
	require.NoError(t, err)
	var onDisk BatchResult
	require.NoError(t, json.Unmarshal(data, &onDisk))
	assert.Equal(t, res.RunID, onDisk.RunID)
	assert.Len(t, onDisk.Outcomes, 3)
}

func TestRunBatch_ResumesAndForce(t *testing.T) {
	artifacts := store.NewArtifactStore(t.TempDir(), nil)
	fetcher := batchFetcher()

	_, err := NewPipeline(batchLocator(), fetcher, artifacts).RunBatch(context.Background(), []string{"AAPL", "MSFT"})
	require.NoError(t, err)
	assert.EqualValues(t, 2, fetcher.calls.Load())

	res, err := NewPipeline(batchLocator(), fetcher, artifacts).RunBatch(context.Background(), []string{"AAPL", "MSFT"})
	require.NoError(t, err)
	assert.Equal(t, OutcomeSkipped, res.Outcomes[0].Status, "complete tickers are not re-fetched")
	assert.Equal(t, OutcomePartial, res.Outcomes[1].Status)
	assert.EqualValues(t, 3, fetcher.calls.Load())

	res, err = NewPipeline(batchLocator(), fetcher, artifacts, WithForce(true)).RunBatch(context.Background(), []string{"AAPL"})
	require.NoError(t, err)
	assert.Equal(t, OutcomeOK, res.Outcomes[0].Status)
	assert.EqualValues(t, 4, fetcher.calls.Load())
}

func TestRunBatch_CanceledContextStillReportsEveryTicker(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	locator := &MockLocator{LocateFunc: func(ctx context.Context, ticker string) (*models.FilingMetadata, error) {
		return nil, ctx.Err()
	}}
	artifacts := store.NewArtifactStore(t.TempDir(), nil)
	res, err := NewPipeline(locator, &MockFetcher{}, artifacts, WithConcurrency(2)).RunBatch(ctx, []string{"A", "B", "C"})
	require.NoError(t, err)
	require.Len(t, res.Outcomes, 3)
	for _, o := range res.Outcomes {
		assert.Equal(t, OutcomeFetchFailed, o.Status)
		assert.Equal(t, "canceled", o.ErrorKind)
	}
}
