package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"filing_ingest/pkg/models"
)

// Schema creates the tables read by the web layer.
const Schema = `
CREATE TABLE IF NOT EXISTS filing_sections (
	ticker           TEXT        NOT NULL,
	section_name     TEXT        NOT NULL,
	cik              TEXT        NOT NULL DEFAULT '',
	accession_number TEXT        NOT NULL DEFAULT '',
	filing_type      TEXT        NOT NULL DEFAULT 'original',
	fiscal_year      INTEGER     NOT NULL DEFAULT 0,
	char_count       INTEGER     NOT NULL,
	word_count       INTEGER     NOT NULL,
	page_estimate    INTEGER     NOT NULL,
	text_artifact    TEXT        NOT NULL,
	content_hash     TEXT        NOT NULL,
	updated_at       TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	PRIMARY KEY (ticker, section_name)
);

CREATE TABLE IF NOT EXISTS revenue_facts (
	ticker         TEXT        NOT NULL,
	fiscal_year    INTEGER     NOT NULL,
	breakdown_type TEXT        NOT NULL,
	unit           TEXT        NOT NULL DEFAULT '',
	anchor         TEXT        NOT NULL DEFAULT '',
	categories     JSONB       NOT NULL,
	updated_at     TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	PRIMARY KEY (ticker, fiscal_year, breakdown_type)
);
`

const upsertSectionSQL = `
	INSERT INTO filing_sections (
		ticker, section_name, cik, accession_number, filing_type, fiscal_year,
		char_count, word_count, page_estimate, text_artifact, content_hash
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	ON CONFLICT (ticker, section_name)
	DO UPDATE SET
		cik = EXCLUDED.cik,
		accession_number = EXCLUDED.accession_number,
		filing_type = EXCLUDED.filing_type,
		fiscal_year = EXCLUDED.fiscal_year,
		char_count = EXCLUDED.char_count,
		word_count = EXCLUDED.word_count,
		page_estimate = EXCLUDED.page_estimate,
		text_artifact = EXCLUDED.text_artifact,
		content_hash = EXCLUDED.content_hash,
		updated_at = NOW()
`

const upsertFactSQL = `
	INSERT INTO revenue_facts (ticker, fiscal_year, breakdown_type, unit, anchor, categories)
	VALUES ($1, $2, $3, $4, $5, $6)
	ON CONFLICT (ticker, fiscal_year, breakdown_type)
	DO UPDATE SET
		unit = EXCLUDED.unit,
		anchor = EXCLUDED.anchor,
		categories = EXCLUDED.categories,
		updated_at = NOW()
`

// FilingRepo mirrors validated section records and revenue facts into Postgres.
type FilingRepo struct {
	pool *pgxpool.Pool
}

// NewFilingRepo creates a new filing repository
func NewFilingRepo(pool *pgxpool.Pool) *FilingRepo {
	return &FilingRepo{pool: pool}
}

// EnsureSchema creates the tables when they do not exist.
func (r *FilingRepo) EnsureSchema(ctx context.Context) error {
	if r.pool == nil {
		return fmt.Errorf("database pool not configured")
	}
	if _, err := r.pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// SaveFiling replaces a ticker's section rows and upserts its facts in one transaction.
func (r *FilingRepo) SaveFiling(ctx context.Context, parsed *models.ParsedFiling, facts []models.RevenueFact) error {
	if r.pool == nil {
		return fmt.Errorf("database pool not configured")
	}
	if parsed == nil {
		return fmt.Errorf("parsed filing is nil")
	}

	batch := &pgx.Batch{}
	batch.Queue(`DELETE FROM filing_sections WHERE ticker = $1`, parsed.Ticker)

	var cik, accession string
	filingType := string(models.FilingOriginal)
	fiscalYear := 0
	if parsed.Filing != nil {
		cik, accession = parsed.Filing.CIK, parsed.Filing.AccessionNumber
		filingType = string(parsed.Filing.FilingType)
		fiscalYear = parsed.Filing.FiscalYear
	}
	for _, rec := range parsed.Sections {
		batch.Queue(upsertSectionSQL,
			parsed.Ticker, string(rec.SectionName), cik, accession, filingType, fiscalYear,
			rec.CharCount, rec.WordCount, rec.PageEstimate, rec.TextArtifact, rec.ContentHash,
		)
	}
	for _, fact := range facts {
		categories, err := json.Marshal(fact.Categories)
		if err != nil {
			return fmt.Errorf("failed to marshal categories: %w", err)
		}
		batch.Queue(upsertFactSQL,
			fact.Ticker, fact.FiscalYear, string(fact.BreakdownType), fact.Unit, fact.Anchor, categories,
		)
	}

	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("failed to save filing %s: %w", parsed.Ticker, err)
		}
		return nil
	})
}
