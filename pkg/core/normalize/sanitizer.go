package normalize

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// noiseSelector matches elements whose content never reaches the reader.
const noiseSelector = "script, style, noscript, template, head, [hidden], " +
	"[style*='display:none'], [style*='display: none'], " +
	`ix\:header, ix\:hidden`

// RemoveNoise strips invisible elements and the inline-XBRL header block.
// Other ix:* wrappers are unwrapped so the tagged values stay in the text.
func RemoveNoise(doc *goquery.Document) {
	doc.Find(noiseSelector).Remove()

	// Tag names arrive lower-cased from the HTML parser and cascadia has no
	// namespace wildcard, so match the ix: prefix by hand.
	doc.Find("*").Each(func(i int, sel *goquery.Selection) {
		node := sel.Get(0)
		if node.Type != html.ElementNode || !strings.HasPrefix(node.Data, "ix:") {
			return
		}
		if node.Data == "ix:header" || node.Data == "ix:hidden" {
			sel.Remove()
			return
		}
		unwrap(node)
	})
}

// unwrap replaces n with its children in the parent's child list.
func unwrap(n *html.Node) {
	parent := n.Parent
	if parent == nil {
		return
	}
	for c := n.FirstChild; c != nil; {
		next := c.NextSibling
		n.RemoveChild(c)
		parent.InsertBefore(c, n)
		c = next
	}
	parent.RemoveChild(n)
}
