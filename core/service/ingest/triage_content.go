package ingest

import (
	"strings"

	"triage_server/core/port/out"

	"github.com/PuerkitoBio/goquery"
)

// Content is the readable body of a message.
type Content struct {
	Text string
	HTML string
}

// ExtractContent prefers the text/plain part, falls back to the top-level
// body, and finally to the visible text of the HTML part.
func ExtractContent(msg *out.ProviderMessage) Content {
	var c Content
	c.HTML, _ = msg.FirstPart("text/html")

	if text, ok := msg.FirstPart("text/plain"); ok && strings.TrimSpace(text) != "" {
		c.Text = text
	} else if strings.TrimSpace(msg.Body) != "" {
		c.Text = msg.Body
		if c.HTML == "" && looksLikeHTML(msg.Body) {
			c.HTML = msg.Body
			c.Text = htmlText(msg.Body)
		}
	} else if c.HTML != "" {
		c.Text = htmlText(c.HTML)
	}
	c.Text = strings.TrimSpace(c.Text)
	return c
}

func looksLikeHTML(s string) bool {
	head := strings.ToLower(strings.TrimSpace(s))
	if len(head) > 512 {
		head = head[:512]
	}
	return strings.HasPrefix(head, "<!doctype html") || strings.Contains(head, "<html") || strings.Contains(head, "<body")
}

func htmlText(html string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return ""
	}
	doc.Find("script, style, head").Remove()
	return strings.Join(strings.Fields(doc.Text()), " ")
}
