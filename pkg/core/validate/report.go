package validate

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"filing_ingest/pkg/core/utils"
	"filing_ingest/pkg/models"
)

const reportBaseName = "validation_report"

// WriteReport writes the report as JSON, Markdown and HTML into dir and
// returns the written paths in that order.
func WriteReport(dir string, report *models.ValidationReport) ([]string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create report dir: %w", err)
	}

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal report: %w", err)
	}
	md := RenderMarkdown(report)
	page, err := utils.RenderMarkdownHTML("Filing validation "+report.RunID, md)
	if err != nil {
		return nil, err
	}

	outputs := []struct {
		ext  string
		data []byte
	}{
		{".json", data},
		{".md", []byte(md)},
		{".html", page},
	}
	paths := make([]string, 0, len(outputs))
	for _, out := range outputs {
		path := filepath.Join(dir, reportBaseName+out.ext)
		if err := os.WriteFile(path, out.data, 0644); err != nil {
			return paths, fmt.Errorf("write %s: %w", path, err)
		}
		paths = append(paths, path)
	}
	return paths, nil
}

// RenderMarkdown formats the report for humans: a summary, a per-section
// status table and one row per ticker.
func RenderMarkdown(report *models.ValidationReport) string {
	var b strings.Builder
	s := report.Summary

	b.WriteString("# Filing Validation Report\n\n")
	fmt.Fprintf(&b, "- Run: `%s`\n", report.RunID)
	fmt.Fprintf(&b, "- Generated: %s\n", report.GeneratedAt.Format("2006-01-02 15:04:05 UTC"))
	fmt.Fprintf(&b, "- Tickers: %d (complete %d, incomplete %d, not parsed %d)\n",
		s.TotalTickers, s.Complete, s.Incomplete, s.NotParsed)
	fmt.Fprintf(&b, "- MD&A needing attention: %d\n\n", s.MDAAttention)

	b.WriteString("## Sections\n\n| Section |")
	for _, status := range models.SectionStatuses {
		fmt.Fprintf(&b, " %s |", status)
	}
	b.WriteString("\n|---|")
	b.WriteString(strings.Repeat("---|", len(models.SectionStatuses)))
	b.WriteString("\n")
	for _, name := range report.Expected {
		fmt.Fprintf(&b, "| %s |", name)
		for _, status := range models.SectionStatuses {
			c := s.Sections[name][status]
			fmt.Fprintf(&b, " %d (%.1f%%) |", c.Count, c.Percent)
		}
		b.WriteString("\n")
	}

	b.WriteString("\n## Tickers\n\n| Ticker | Status | Filing | Findings |\n|---|---|---|---|\n")
	for _, r := range report.Tickers {
		filing := string(r.FilingType)
		if filing == "" {
			filing = "-"
		}
		fmt.Fprintf(&b, "| %s | %s | %s | %s |\n",
			utils.MarkdownCell(r.Ticker), r.Status, filing,
			utils.MarkdownCell(strings.Join(r.Findings, "; ")))
	}

	if len(s.RefetchTickers) > 0 {
		b.WriteString("\n## Re-fetch\n\n")
		for _, t := range s.RefetchTickers {
			fmt.Fprintf(&b, "- %s\n", t)
		}
	}
	return b.String()
}
