// Package pipeline runs the per-ticker ingestion unit of work
// (locate, fetch, segment, normalize, persist, extract) and maps it over a
// batch of tickers.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/phuslu/log"
	"golang.org/x/sync/errgroup"

	"filing_ingest/pkg/core/figures"
	"filing_ingest/pkg/core/ingest"
	"filing_ingest/pkg/core/logging"
	"filing_ingest/pkg/core/normalize"
	"filing_ingest/pkg/core/store"
	"filing_ingest/pkg/core/validate"
	"filing_ingest/pkg/models"
)

// OutcomesFile is written under the artifact root after every batch.
const OutcomesFile = "batch_outcomes.json"

// Locator resolves a ticker to its most recent qualifying annual filing.
type Locator interface {
	Locate(ctx context.Context, ticker string) (*models.FilingMetadata, error)
}

// DocumentFetcher retrieves the raw filing document.
type DocumentFetcher interface {
	FetchDocument(ctx context.Context, url string) (string, error)
}

// FilingSink mirrors a parse into secondary storage (e.g. *store.FilingRepo).
type FilingSink interface {
	SaveFiling(ctx context.Context, parsed *models.ParsedFiling, facts []models.RevenueFact) error
}

// OutcomeStatus is the terminal state of one ticker in a batch.
type OutcomeStatus string

const (
	OutcomeOK                OutcomeStatus = "OK"
	OutcomeNotFound          OutcomeStatus = "NOT_FOUND"
	OutcomeNoFiling          OutcomeStatus = "NO_FILING"
	OutcomeFetchFailed       OutcomeStatus = "FETCH_FAILED"
	OutcomeEmptySegmentation OutcomeStatus = "EMPTY_SEGMENTATION"
	OutcomePartial           OutcomeStatus = "PARTIAL"
	OutcomeNoFigures         OutcomeStatus = "NO_FIGURES"
	OutcomeSkipped           OutcomeStatus = "SKIPPED"
	OutcomeStoreFailed       OutcomeStatus = "STORE_FAILED"
)

// TickerOutcome records what happened to one ticker.
type TickerOutcome struct {
	Ticker     string                 `json:"ticker"`
	Status     OutcomeStatus          `json:"status"`
	Filing     *models.FilingMetadata `json:"filing,omitempty"`
	Sections   []models.SectionName   `json:"sections,omitempty"`
	Missing    []models.SectionName   `json:"missing,omitempty"`
	Facts      int                    `json:"facts"`
	ErrorKind  string                 `json:"error_kind,omitempty"` // "transient", "permanent", "canceled"
	Error      string                 `json:"error,omitempty"`
	Warnings   []string               `json:"warnings,omitempty"`
	DurationMS int64                  `json:"duration_ms"`
}

// BatchResult lists one outcome per input ticker, in input order.
type BatchResult struct {
	RunID      string                `json:"run_id"`
	StartedAt  time.Time             `json:"started_at"`
	FinishedAt time.Time             `json:"finished_at"`
	Counts     map[OutcomeStatus]int `json:"counts"`
	Outcomes   []TickerOutcome       `json:"outcomes"`
}

// Pipeline wires the stages together. Construct with NewPipeline.
type Pipeline struct {
	locator   Locator
	fetcher   DocumentFetcher
	store     *store.ArtifactStore
	segmenter *ingest.TenKParser
	extractor *figures.Extractor
	validator *validate.Validator
	sink      FilingSink

	expected     []models.SectionName
	wordsPerPage int
	concurrency  int
	force        bool
	logger       *log.Logger
	now          func() time.Time
}

// Option configures a Pipeline.
type Option func(*Pipeline)

func WithSegmenter(s *ingest.TenKParser) Option { return func(p *Pipeline) { p.segmenter = s } }

func WithExtractor(e *figures.Extractor) Option { return func(p *Pipeline) { p.extractor = e } }

func WithValidator(v *validate.Validator) Option { return func(p *Pipeline) { p.validator = v } }

// WithSink mirrors every successful parse into sink. Sink failures are
// reported as warnings and never fail the ticker.
func WithSink(s FilingSink) Option { return func(p *Pipeline) { p.sink = s } }

func WithExpectedSections(names []models.SectionName) Option {
	return func(p *Pipeline) {
		if len(names) > 0 {
			p.expected = names
		}
	}
}

func WithWordsPerPage(n int) Option { return func(p *Pipeline) { p.wordsPerPage = n } }

func WithConcurrency(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.concurrency = n
		}
	}
}

// WithForce disables the resume check so every ticker is re-processed.
func WithForce(force bool) Option { return func(p *Pipeline) { p.force = force } }

// WithClock sets the clock behind ParsedAt and the batch timestamps.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) {
		if now != nil {
			p.now = now
		}
	}
}

func WithLogger(l *log.Logger) Option {
	return func(p *Pipeline) {
		if l != nil {
			p.logger = l
		}
	}
}

// NewPipeline creates a pipeline over the given locator, fetcher and store.
func NewPipeline(locator Locator, fetcher DocumentFetcher, artifacts *store.ArtifactStore, opts ...Option) *Pipeline {
	p := &Pipeline{
		locator:      locator,
		fetcher:      fetcher,
		store:        artifacts,
		expected:     models.DefaultExpectedSections,
		wordsPerPage: normalize.DefaultWordsPerPage,
		concurrency:  1,
		logger:       logging.NewSilent(),
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.segmenter == nil {
		p.segmenter = ingest.NewTenKParser(ingest.DefaultTOCThreshold)
	}
	if p.extractor == nil {
		p.extractor = figures.NewExtractor(nil, 0)
	}
	if p.validator == nil {
		p.validator = validate.NewValidator(artifacts, p.expected, nil, p.logger)
	}
	return p
}

// =============================================================================
// Unit of work
// =============================================================================

// ProcessTicker runs every stage for one ticker. It never returns an error;
// failures are reported in the outcome. Artifacts are written only after the
// document was fetched, segmented and normalized, so a failed fetch leaves
// the previous artifacts (or none) untouched.
//
// Re-running on the same document rewrites the section files and
// revenue_facts.json byte for byte. metadata.json differs only in parsed_at,
// which comes from the pipeline clock (see WithClock).
func (p *Pipeline) ProcessTicker(ctx context.Context, ticker string) TickerOutcome {
	start := time.Now()
	ticker = ingest.NormalizeTicker(ticker)
	out := p.process(ctx, ticker)
	out.Ticker = ticker
	out.DurationMS = time.Since(start).Milliseconds()

	ev := p.logger.Info()
	if out.Error != "" {
		ev = p.logger.Warn().Str("error", out.Error)
	}
	ev.Str("ticker", ticker).Str("status", string(out.Status)).
		Int("sections", len(out.Sections)).Int("facts", out.Facts).
		Dur("elapsed", time.Since(start)).Msg("ticker processed")
	return out
}

func (p *Pipeline) process(ctx context.Context, ticker string) TickerOutcome {
	filing, err := p.locator.Locate(ctx, ticker)
	if err != nil {
		return failure(locateStatus(err), err)
	}
	out := TickerOutcome{Filing: filing}

	doc, err := p.fetcher.FetchDocument(ctx, filing.DocumentURL)
	if err != nil {
		f := failure(OutcomeFetchFailed, err)
		f.Filing = filing
		return f
	}

	segments := p.segmenter.Segment(doc)
	sections := make([]store.SectionText, 0, len(segments))
	for _, seg := range segments.Ordered() {
		text, err := normalize.Text(seg.Span.Text(doc))
		if err != nil {
			out.Warnings = append(out.Warnings, fmt.Sprintf("%s: normalize: %v", seg.Name, err))
			continue
		}
		if text == "" {
			out.Warnings = append(out.Warnings, fmt.Sprintf("%s: no visible text", seg.Name))
			continue
		}
		sections = append(sections, store.SectionText{
			Name:    seg.Name,
			Text:    text,
			Metrics: normalize.Measure(text, p.wordsPerPage),
		})
	}

	parsed := &models.ParsedFiling{
		Ticker:   ticker,
		Filing:   filing,
		ParsedAt: p.now().UTC(),
	}
	if full, err := normalize.Text(doc); err == nil {
		m := normalize.Measure(full, p.wordsPerPage)
		parsed.TextLength = m.CharCount
		parsed.LineCount = m.LineCount
	}
	if err := p.store.WriteFiling(parsed, sections); err != nil {
		f := failure(OutcomeStoreFailed, err)
		f.Filing = filing
		return f
	}
	for _, s := range sections {
		out.Sections = append(out.Sections, s.Name)
	}
	for _, name := range p.expected {
		if _, ok := parsed.Sections[name]; !ok {
			out.Missing = append(out.Missing, name)
		}
	}

	var facts []models.RevenueFact
	if mda, ok := findSection(sections, models.SectionMDA); ok {
		facts = p.extractor.Extract(ticker, filing.FiscalYear, mda)
	}
	if err := p.store.WriteFacts(ticker, facts); err != nil {
		out.Warnings = append(out.Warnings, fmt.Sprintf("write facts: %v", err))
	}
	out.Facts = len(facts)

	if p.sink != nil {
		if err := p.sink.SaveFiling(ctx, parsed, facts); err != nil {
			out.Warnings = append(out.Warnings, fmt.Sprintf("sink: %v", err))
		}
	}

	switch {
	case len(sections) == 0:
		out.Status = OutcomeEmptySegmentation
	case len(out.Missing) > 0:
		out.Status = OutcomePartial
	case len(facts) == 0:
		out.Status = OutcomeNoFigures
	default:
		out.Status = OutcomeOK
	}
	return out
}

func findSection(sections []store.SectionText, name models.SectionName) (string, bool) {
	for _, s := range sections {
		if s.Name == name {
			return s.Text, true
		}
	}
	return "", false
}

func locateStatus(err error) OutcomeStatus {
	switch {
	case errors.Is(err, ingest.ErrNotFound):
		return OutcomeNotFound
	case errors.Is(err, ingest.ErrNoFilingAvailable):
		return OutcomeNoFiling
	default:
		return OutcomeFetchFailed
	}
}

func failure(status OutcomeStatus, err error) TickerOutcome {
	out := TickerOutcome{Status: status, Error: err.Error()}
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		out.ErrorKind = "canceled"
	case ingest.IsTransient(err):
		out.ErrorKind = "transient"
	case ingest.IsPermanent(err):
		out.ErrorKind = "permanent"
	}
	return out
}

// =============================================================================
// Batch
// =============================================================================

// RunBatch processes tickers with at most Concurrency workers and writes
// OutcomesFile under the artifact root. Tickers whose artifacts already
// validate COMPLETE are skipped unless force is set. Duplicate tickers
// (after normalization) are processed once and reported once.
func (p *Pipeline) RunBatch(ctx context.Context, tickers []string) (*BatchResult, error) {
	res := &BatchResult{
		RunID:     uuid.NewString(),
		StartedAt: p.now().UTC(),
		Counts:    make(map[OutcomeStatus]int),
	}

	unique := make([]string, 0, len(tickers))
	seen := make(map[string]bool, len(tickers))
	for _, t := range tickers {
		t = ingest.NormalizeTicker(t)
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		unique = append(unique, t)
	}
	res.Outcomes = make([]TickerOutcome, len(unique))

	p.logger.Info().Str("run_id", res.RunID).Int("tickers", len(unique)).
		Int("concurrency", p.concurrency).Msg("batch started")

	var g errgroup.Group
	g.SetLimit(p.concurrency)
	for i, ticker := range unique {
		g.Go(func() error {
			if !p.force && p.validator.ValidateTicker(ticker).Status == models.TickerComplete {
				res.Outcomes[i] = TickerOutcome{Ticker: ticker, Status: OutcomeSkipped}
				return nil
			}
			res.Outcomes[i] = p.ProcessTicker(ctx, ticker)
			return nil
		})
	}
	_ = g.Wait() // workers never return errors

	for _, o := range res.Outcomes {
		res.Counts[o.Status]++
	}
	res.FinishedAt = p.now().UTC()

	p.logger.Info().Str("run_id", res.RunID).
		Int("ok", res.Counts[OutcomeOK]).
		Int("skipped", res.Counts[OutcomeSkipped]).
		Int("failed", res.Counts[OutcomeFetchFailed]+res.Counts[OutcomeNotFound]+res.Counts[OutcomeNoFiling]).
		Dur("elapsed", res.FinishedAt.Sub(res.StartedAt)).
		Msg("batch finished")

	if err := p.store.WriteJSON(OutcomesFile, res); err != nil {
		return res, fmt.Errorf("failed to write batch outcomes: %w", err)
	}
	return res, nil
}

// Validator returns the validator used for resume checks.
func (p *Pipeline) Validator() *validate.Validator { return p.validator }
