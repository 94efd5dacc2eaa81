package provider

import (
	"bytes"
	"strings"

	"golang.org/x/net/html"
)

// tableCell is one extracted <td>/<th>: its visible text plus the href of
// the first anchor inside it, if any.
type tableCell struct {
	Text string
	Link string
}

// extractTableRows parses every <table> in the document and returns its
// data rows. Header-only rows (all <th>) are skipped. Parsing never fails
// hard: malformed HTML yields whatever rows the tokenizer could recover.
func extractTableRows(body []byte) [][]tableCell {
	doc, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return nil
	}

	var rows [][]tableCell
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "tr" {
			if row, header := parseRow(n); !header && len(row) > 0 {
				rows = append(rows, row)
			}
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return rows
}

func parseRow(tr *html.Node) (row []tableCell, headerOnly bool) {
	headerOnly = true
	for c := tr.FirstChild; c != nil; c = c.NextSibling {
		if c.Type != html.ElementNode {
			continue
		}
		switch c.Data {
		case "td":
			headerOnly = false
			row = append(row, tableCell{Text: nodeText(c), Link: firstHref(c)})
		case "th":
			row = append(row, tableCell{Text: nodeText(c), Link: firstHref(c)})
		}
	}
	return row, headerOnly
}

func nodeText(n *html.Node) string {
	var b strings.Builder
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.Join(strings.Fields(b.String()), " ")
}

func firstHref(n *html.Node) string {
	if n.Type == html.ElementNode && n.Data == "a" {
		for _, attr := range n.Attr {
			if attr.Key == "href" {
				return attr.Val
			}
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if href := firstHref(c); href != "" {
			return href
		}
	}
	return ""
}
