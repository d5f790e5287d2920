package models

import "time"

// SectionStatus is the validator's verdict for one expected section.
type SectionStatus string

const (
	StatusOK           SectionStatus = "OK"
	StatusMissing      SectionStatus = "MISSING"
	StatusNoFile       SectionStatus = "NO_FILE"
	StatusSizeMismatch SectionStatus = "SIZE_MISMATCH"
)

// SectionStatuses lists statuses in report order.
var SectionStatuses = []SectionStatus{StatusOK, StatusMissing, StatusNoFile, StatusSizeMismatch}

// TickerStatus summarises a ticker across all its expected sections.
type TickerStatus string

const (
	TickerComplete   TickerStatus = "COMPLETE"
	TickerIncomplete TickerStatus = "INCOMPLETE"
	TickerNotParsed  TickerStatus = "NOT_PARSED"
)

// MDAContentCheck flags MD&A text that parsed but likely lacks usable figures.
type MDAContentCheck struct {
	Checked            bool `json:"checked"`
	HasBreakdownPhrase bool `json:"has_breakdown_phrase"`
	HasCurrencyAmount  bool `json:"has_currency_amount"`
	NeedsAttention     bool `json:"needs_attention"`
}

// ValidationResult is a diagnostic snapshot for one ticker.
type ValidationResult struct {
	Ticker     string                        `json:"ticker"`
	Status     TickerStatus                  `json:"status"`
	Sections   map[SectionName]SectionStatus `json:"sections"`
	MDA        MDAContentCheck               `json:"mda"`
	Findings   []string                      `json:"findings,omitempty"`
	FilingType FilingType                    `json:"filing_type,omitempty"`
}

// StatusCount holds a count and its share of the batch.
type StatusCount struct {
	Count   int     `json:"count"`
	Percent float64 `json:"percent"`
}

// ValidationSummary aggregates results across a batch.
type ValidationSummary struct {
	TotalTickers   int                                           `json:"total_tickers"`
	Complete       int                                           `json:"complete"`
	Incomplete     int                                           `json:"incomplete"`
	NotParsed      int                                           `json:"not_parsed"`
	MDAAttention   int                                           `json:"mda_needs_attention"`
	Sections       map[SectionName]map[SectionStatus]StatusCount `json:"sections"`
	RefetchTickers []string                                      `json:"refetch_tickers,omitempty"`
}

// ValidationReport is the aggregate output of one validation run.
type ValidationReport struct {
	RunID       string             `json:"run_id"`
	GeneratedAt time.Time          `json:"generated_at"`
	Expected    []SectionName      `json:"expected_sections"`
	Tickers     []ValidationResult `json:"tickers"`
	Summary     ValidationSummary  `json:"summary"`
}
