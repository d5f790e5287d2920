package utils

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeLenient(t *testing.T) {
	var v struct {
		Ticker string `json:"ticker"`
		Count  int    `json:"count"`
	}

	repaired, err := DecodeLenient([]byte(`{"ticker": "AAPL", "count": 3}`), &v)
	require.NoError(t, err)
	assert.False(t, repaired)
	assert.Equal(t, "AAPL", v.Ticker)

	repaired, err = DecodeLenient([]byte(`{"ticker": "MSFT", "count": 7,`), &v)
	require.NoError(t, err)
	assert.True(t, repaired)
	assert.Equal(t, "MSFT", v.Ticker)
	assert.Equal(t, 7, v.Count)
}

func TestParseHJSON(t *testing.T) {
	out, err := ParseHJSON(`{
		# comment
		user_agent: Acme Research ops@acme.example
		concurrency: 2
	}`)
	require.NoError(t, err)
	assert.Contains(t, out, `"user_agent":"Acme Research ops@acme.example"`)
	assert.Contains(t, out, `"concurrency":2`)

	_, err = ParseHJSON(`{ "unterminated": [1, 2 }`)
	assert.Error(t, err)
}

func TestRenderMarkdownHTML(t *testing.T) {
	md := "# Report\n\n| Ticker | Status |\n|---|---|\n| AAPL | COMPLETE |\n"
	page, err := RenderMarkdownHTML("Run <1>", md)
	require.NoError(t, err)

	html := string(page)
	assert.True(t, strings.HasPrefix(html, "<!DOCTYPE html>"))
	assert.Contains(t, html, "<title>Run &lt;1&gt;</title>")
	assert.Contains(t, html, "<h1>Report</h1>")
	assert.Contains(t, html, "<td>AAPL</td>")
}

func TestMarkdownCell(t *testing.T) {
	assert.Equal(t, `a \| b c`, MarkdownCell("a | b\nc"))
}
