// Package normalize turns raw filing markup into plain text and measures it.
package normalize

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// DefaultWordsPerPage is the page-estimate divisor.
const DefaultWordsPerPage = 500

// markupPattern matches the opening of a tag, comment or doctype. A bare "<"
// in prose ("Revenue < $5 million") does not count.
var markupPattern = regexp.MustCompile(`<[a-zA-Z/!?]`)

// blockElements start a new paragraph in the output.
var blockElements = map[atom.Atom]bool{
	atom.Address: true, atom.Article: true, atom.Aside: true, atom.Blockquote: true,
	atom.Body: true, atom.Br: true, atom.Caption: true, atom.Center: true,
	atom.Dd: true, atom.Div: true, atom.Dl: true, atom.Dt: true,
	atom.Figcaption: true, atom.Figure: true, atom.Footer: true, atom.Form: true,
	atom.H1: true, atom.H2: true, atom.H3: true, atom.H4: true, atom.H5: true, atom.H6: true,
	atom.Header: true, atom.Hr: true, atom.Li: true, atom.Main: true, atom.Nav: true,
	atom.Ol: true, atom.P: true, atom.Pre: true, atom.Section: true, atom.Table: true,
	atom.Tbody: true, atom.Tfoot: true, atom.Thead: true, atom.Title: true,
	atom.Tr: true, atom.Ul: true,
}

// Text strips markup from a raw fragment or document: invisible elements and
// the inline-XBRL header go, every other wrapper is unwrapped. Blocks become
// lines, table cells on a row are joined by spaces, whitespace runs (NBSP
// included) collapse to one space and blank lines are dropped.
//
// Input without any tags is treated as plain text and keeps its line breaks.
func Text(raw string) (string, error) {
	if !markupPattern.MatchString(raw) {
		return collapseLines(html.UnescapeString(raw)), nil
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(raw))
	if err != nil {
		return "", fmt.Errorf("failed to parse HTML: %w", err)
	}
	RemoveNoise(doc)

	var buf strings.Builder
	for _, n := range doc.Nodes {
		writeText(&buf, n)
	}
	return collapseLines(buf.String()), nil
}

var lineBreaks = strings.NewReplacer("\n", " ", "\r", " ")

func writeText(buf *strings.Builder, n *html.Node) {
	switch n.Type {
	case html.TextNode:
		// Newlines inside a text node are source formatting, not breaks.
		buf.WriteString(lineBreaks.Replace(n.Data))
		return
	case html.CommentNode, html.DoctypeNode:
		return
	case html.ElementNode:
		if n.DataAtom == atom.Td || n.DataAtom == atom.Th {
			buf.WriteByte(' ')
		}
		if blockElements[n.DataAtom] {
			buf.WriteByte('\n')
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		writeText(buf, c)
	}
	if n.Type == html.ElementNode {
		switch {
		case blockElements[n.DataAtom]:
			buf.WriteByte('\n')
		case n.DataAtom == atom.Td || n.DataAtom == atom.Th:
			buf.WriteByte(' ')
		}
	}
}

// collapseLines normalises each line's whitespace and drops empty lines.
func collapseLines(s string) string {
	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		if fields := strings.Fields(line); len(fields) > 0 {
			out = append(out, strings.Join(fields, " "))
		}
	}
	return strings.Join(out, "\n")
}

// Metrics are size measures of normalized text.
type Metrics struct {
	CharCount    int // UTF-8 bytes, comparable to the artifact file size
	WordCount    int
	LineCount    int
	PageEstimate int
}

// Measure computes Metrics. wordsPerPage <= 0 selects DefaultWordsPerPage.
func Measure(text string, wordsPerPage int) Metrics {
	if wordsPerPage <= 0 {
		wordsPerPage = DefaultWordsPerPage
	}
	m := Metrics{
		CharCount: len(text),
		WordCount: len(strings.Fields(text)),
	}
	if text != "" {
		m.LineCount = strings.Count(text, "\n") + 1
	}
	m.PageEstimate = (m.WordCount + wordsPerPage - 1) / wordsPerPage
	return m
}
