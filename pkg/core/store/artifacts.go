// Package store persists per-ticker filing artifacts on disk and, optionally, in Postgres.
//
// Disk layout:
//
//	<root>/<TICKER>/<section_name>.txt   normalized section text
//	<root>/<TICKER>/metadata.json        ParsedFiling summary
//	<root>/<TICKER>/revenue_facts.json   extracted revenue facts
package store

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/phuslu/log"

	"filing_ingest/pkg/core/logging"
	"filing_ingest/pkg/core/normalize"
	"filing_ingest/pkg/core/utils"
	"filing_ingest/pkg/models"
)

const (
	MetadataFile = "metadata.json"
	FactsFile    = "revenue_facts.json"

	sectionExt = ".txt"
)

// ErrNotParsed means the ticker has no metadata file.
var ErrNotParsed = errors.New("ticker has not been parsed")

// SectionText is one normalized section ready to be persisted.
type SectionText struct {
	Name    models.SectionName
	Text    string
	Metrics normalize.Metrics
}

// ArtifactStore reads and writes the per-ticker artifact tree.
type ArtifactStore struct {
	root   string
	logger *log.Logger
}

// NewArtifactStore creates a store rooted at dir. A nil logger is silent.
func NewArtifactStore(dir string, logger *log.Logger) *ArtifactStore {
	if logger == nil {
		logger = logging.NewSilent()
	}
	return &ArtifactStore{root: dir, logger: logger}
}

// Root returns the artifact root directory.
func (s *ArtifactStore) Root() string { return s.root }

// TickerDir returns the directory holding a ticker's artifacts.
func (s *ArtifactStore) TickerDir(ticker string) string {
	return filepath.Join(s.root, tickerKey(ticker))
}

// ArtifactPath resolves a record's root-relative artifact reference.
func (s *ArtifactStore) ArtifactPath(rec models.SectionRecord) string {
	return filepath.Join(s.root, filepath.FromSlash(rec.TextArtifact))
}

// WriteFiling persists every section and then the metadata file, filling
// parsed.Sections with the resulting records. Section files from an earlier
// parse that are not in sections are removed. Files are overwritten whole.
// Section files depend only on their text; metadata.json also carries
// parsed.ParsedAt, so it repeats byte for byte only when that does.
func (s *ArtifactStore) WriteFiling(parsed *models.ParsedFiling, sections []SectionText) error {
	ticker := tickerKey(parsed.Ticker)
	dir := s.TickerDir(ticker)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create artifact dir: %w", err)
	}

	records := make(map[models.SectionName]models.SectionRecord, len(sections))
	for _, sec := range sections {
		if !sec.Name.Valid() {
			return fmt.Errorf("unknown section name %q", sec.Name)
		}
		data := []byte(sec.Text)
		if err := os.WriteFile(filepath.Join(dir, string(sec.Name)+sectionExt), data, 0644); err != nil {
			return fmt.Errorf("failed to write section %s: %w", sec.Name, err)
		}
		records[sec.Name] = models.SectionRecord{
			SectionName:  sec.Name,
			CharCount:    sec.Metrics.CharCount,
			WordCount:    sec.Metrics.WordCount,
			LineCount:    sec.Metrics.LineCount,
			PageEstimate: sec.Metrics.PageEstimate,
			TextArtifact: ticker + "/" + string(sec.Name) + sectionExt,
			ContentHash:  ContentHash(data),
		}
	}

	if err := s.removeStale(dir, records); err != nil {
		return err
	}

	parsed.Ticker = ticker
	parsed.Sections = records
	if err := writeJSON(filepath.Join(dir, MetadataFile), parsed); err != nil {
		return fmt.Errorf("failed to write metadata: %w", err)
	}
	s.logger.Debug().Str("ticker", ticker).Int("sections", len(records)).Msg("artifacts written")
	return nil
}

func (s *ArtifactStore) removeStale(dir string, keep map[models.SectionName]models.SectionRecord) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("failed to list artifact dir: %w", err)
	}
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, sectionExt) {
			continue
		}
		section := models.SectionName(strings.TrimSuffix(name, sectionExt))
		if _, ok := keep[section]; ok || !section.Valid() {
			continue
		}
		if err := os.Remove(filepath.Join(dir, name)); err != nil {
			return fmt.Errorf("failed to remove stale section %s: %w", name, err)
		}
		s.logger.Debug().Str("file", name).Msg("removed stale section artifact")
	}
	return nil
}

// LoadParsedFiling reads a ticker's metadata file. Truncated or otherwise
// malformed files are repaired when possible. Missing metadata yields ErrNotParsed.
func (s *ArtifactStore) LoadParsedFiling(ticker string) (*models.ParsedFiling, error) {
	path := filepath.Join(s.TickerDir(ticker), MetadataFile)
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotParsed, tickerKey(ticker))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read metadata: %w", err)
	}

	var parsed models.ParsedFiling
	repaired, err := utils.DecodeLenient(data, &parsed)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}
	if repaired {
		s.logger.Warn().Str("ticker", tickerKey(ticker)).Str("file", path).Msg("metadata was malformed and has been repaired in memory")
	}
	if parsed.Sections == nil {
		parsed.Sections = map[models.SectionName]models.SectionRecord{}
	}
	return &parsed, nil
}

// ReadSection returns the persisted text of one section.
func (s *ArtifactStore) ReadSection(ticker string, name models.SectionName) (string, error) {
	data, err := os.ReadFile(filepath.Join(s.TickerDir(ticker), string(name)+sectionExt))
	if err != nil {
		return "", fmt.Errorf("failed to read section %s for %s: %w", name, tickerKey(ticker), err)
	}
	return string(data), nil
}

// WriteFacts replaces a ticker's revenue facts file. Facts are sorted by axis.
func (s *ArtifactStore) WriteFacts(ticker string, facts []models.RevenueFact) error {
	dir := s.TickerDir(ticker)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create artifact dir: %w", err)
	}
	sorted := append([]models.RevenueFact{}, facts...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].BreakdownType < sorted[j].BreakdownType })
	if err := writeJSON(filepath.Join(dir, FactsFile), sorted); err != nil {
		return fmt.Errorf("failed to write revenue facts: %w", err)
	}
	return nil
}

// LoadFacts reads a ticker's revenue facts. A missing file yields no facts.
func (s *ArtifactStore) LoadFacts(ticker string) ([]models.RevenueFact, error) {
	data, err := os.ReadFile(filepath.Join(s.TickerDir(ticker), FactsFile))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read revenue facts: %w", err)
	}
	var facts []models.RevenueFact
	if _, err := utils.DecodeLenient(data, &facts); err != nil {
		return nil, fmt.Errorf("failed to decode revenue facts: %w", err)
	}
	return facts, nil
}

// WriteJSON writes v as indented JSON under the artifact root.
func (s *ArtifactStore) WriteJSON(name string, v interface{}) error {
	if err := os.MkdirAll(s.root, 0755); err != nil {
		return fmt.Errorf("failed to create artifact root: %w", err)
	}
	return writeJSON(filepath.Join(s.root, name), v)
}

// ContentHash returns the hex SHA-256 of an artifact's content.
func ContentHash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func writeJSON(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0644)
}

func tickerKey(ticker string) string {
	return strings.ToUpper(strings.TrimSpace(ticker))
}
