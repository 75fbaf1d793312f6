package fetch

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// nonContentSelector matches markup that carries no readable page content.
const nonContentSelector = "script, style, nav, footer, header, noscript"

// extract parses an HTML document and pulls out the title, meta description,
// and a whitespace-normalized text blob with non-content tags removed.
func extract(html []byte) (title, metaDescription, text string, err error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return "", "", "", fmt.Errorf("fetch: parse html: %w", err)
	}

	title = strings.TrimSpace(doc.Find("title").First().Text())

	if desc, ok := doc.Find(`meta[name="description"]`).First().Attr("content"); ok {
		metaDescription = strings.TrimSpace(desc)
	}

	doc.Find(nonContentSelector).Remove()

	body := doc.Find("body")
	raw := body.Text()
	if body.Length() == 0 {
		raw = doc.Text()
	}

	// Collapse runs of whitespace and newlines into single spaces.
	text = strings.Join(strings.Fields(raw), " ")

	return title, metaDescription, text, nil
}
