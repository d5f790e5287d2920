package models

import (
	"time"
)

// FilingType distinguishes an original annual report from an amendment.
type FilingType string

const (
	FilingOriginal  FilingType = "original"
	FilingAmendment FilingType = "amendment"
)

// FilingMetadata describes where a qualifying annual filing lives.
type FilingMetadata struct {
	Ticker          string     `json:"ticker"`
	CIK             string     `json:"cik"`
	CompanyName     string     `json:"company_name"`
	FilingType      FilingType `json:"filing_type"`
	Form            string     `json:"form"` // "10-K", "10-K/A", ...
	AccessionNumber string     `json:"accession_number"`
	FilingDate      string     `json:"filing_date"` // YYYY-MM-DD
	ReportDate      string     `json:"report_date"` // fiscal period end
	FiscalYear      int        `json:"fiscal_year"`
	PrimaryDocument string     `json:"primary_document"`
	DocumentURL     string     `json:"document_url"`
}

// IsAmendment reports whether the located filing is a 10-K/A.
func (m *FilingMetadata) IsAmendment() bool {
	return m != nil && m.FilingType == FilingAmendment
}

// SectionRecord summarises one persisted section artifact.
// CharCount is the UTF-8 byte length of the artifact content.
type SectionRecord struct {
	SectionName  SectionName `json:"section_name"`
	CharCount    int         `json:"char_count"`
	WordCount    int         `json:"word_count"`
	LineCount    int         `json:"line_count"`
	PageEstimate int         `json:"page_estimate"`
	TextArtifact string      `json:"text_artifact"` // path relative to the artifact root
	ContentHash  string      `json:"content_hash"`  // sha256 of the artifact content
}

// ParsedFiling is the per-ticker parse result; a re-parse replaces it wholesale.
type ParsedFiling struct {
	Ticker     string                        `json:"ticker"`
	Filing     *FilingMetadata               `json:"filing,omitempty"`
	TextLength int                           `json:"text_length"`
	LineCount  int                           `json:"line_count"`
	Sections   map[SectionName]SectionRecord `json:"sections"`
	ParsedAt   time.Time                     `json:"parsed_at"`
}

// BreakdownType is the axis along which revenue is disaggregated.
type BreakdownType string

const (
	BreakdownProduct   BreakdownType = "product"
	BreakdownSegment   BreakdownType = "segment"
	BreakdownGeography BreakdownType = "geography"
)

// BreakdownTypes lists the axes in reporting order.
var BreakdownTypes = []BreakdownType{BreakdownProduct, BreakdownSegment, BreakdownGeography}

// CategoryFigure is one category's anchored amount plus optional growth and share.
type CategoryFigure struct {
	Amount       float64  `json:"amount"`
	GrowthRate   *float64 `json:"growth_rate,omitempty"`    // percent, e.g. -2.0
	ShareOfTotal *float64 `json:"share_of_total,omitempty"` // fraction 0..1
}

// RevenueFact is a revenue breakdown along one axis for one fiscal year.
type RevenueFact struct {
	Ticker        string                    `json:"ticker"`
	FiscalYear    int                       `json:"fiscal_year"`
	BreakdownType BreakdownType             `json:"breakdown_type"`
	Unit          string                    `json:"unit,omitempty"` // "millions", "thousands", ...
	Anchor        string                    `json:"anchor"`         // phrase that opened the window
	Categories    map[string]CategoryFigure `json:"categories"`
}
