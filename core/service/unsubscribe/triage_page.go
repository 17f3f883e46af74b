package unsubscribe

import (
	"context"
	"fmt"
	"regexp"
	"slices"
	"strings"
	"time"

	"triage_server/core/port/out"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// Page is a parsed snapshot of the session's current document. Actions
// go through the session with a short per-action deadline.
type Page struct {
	session       out.BrowserSession
	doc           *goquery.Document
	actionTimeout time.Duration
}

func loadPage(ctx context.Context, session out.BrowserSession, actionTimeout time.Duration) (*Page, error) {
	actx, cancel := context.WithTimeout(ctx, actionTimeout)
	defer cancel()

	raw, err := session.HTML(actx)
	if err != nil {
		return nil, fmt.Errorf("read page: %w", err)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("parse page: %w", err)
	}
	return &Page{session: session, doc: doc, actionTimeout: actionTimeout}, nil
}

func (p *Page) click(ctx context.Context, selector string) error {
	actx, cancel := context.WithTimeout(ctx, p.actionTimeout)
	defer cancel()
	return p.session.Click(actx, selector)
}

func (p *Page) setChecked(ctx context.Context, selector string, checked bool) error {
	actx, cancel := context.WithTimeout(ctx, p.actionTimeout)
	defer cancel()
	return p.session.SetChecked(actx, selector, checked)
}

func (p *Page) submit(ctx context.Context, formSelector string) error {
	actx, cancel := context.WithTimeout(ctx, p.actionTimeout)
	defer cancel()
	return p.session.Submit(actx, formSelector)
}

// visibleText is the body text without scripts and styles.
func (p *Page) visibleText() string {
	body := p.doc.Find("body").Clone()
	body.Find("script, style, noscript").Remove()
	return normalizeSpace(body.Text())
}

var plainIdent = regexp.MustCompile(`^[A-Za-z][\w-]*$`)

// cssPath returns a selector that addresses sel in the live DOM: the id
// when it is unique, otherwise an nth-child chain from <html>.
func cssPath(doc *goquery.Document, sel *goquery.Selection) string {
	node := sel.Get(0)
	if id, ok := sel.Attr("id"); ok && plainIdent.MatchString(id) && doc.Find("#"+id).Length() == 1 {
		return node.Data + "#" + id
	}

	var parts []string
	for n := node; n != nil && n.Type == html.ElementNode; n = n.Parent {
		if n.Data == "html" {
			parts = append(parts, "html")
			break
		}
		idx := 1
		for s := n.PrevSibling; s != nil; s = s.PrevSibling {
			if s.Type == html.ElementNode {
				idx++
			}
		}
		parts = append(parts, fmt.Sprintf("%s:nth-child(%d)", n.Data, idx))
	}
	slices.Reverse(parts)
	return strings.Join(parts, " > ")
}

// fieldLabel collects the text a user would read next to a form input.
func fieldLabel(doc *goquery.Document, input *goquery.Selection) string {
	var label string
	if id, ok := input.Attr("id"); ok && plainIdent.MatchString(id) {
		label = doc.Find(`label[for="` + id + `"]`).Text()
	}
	label = normalizeSpace(label + " " + input.Closest("label").Text())
	if label == "" {
		if parent := input.Parent(); parent.Find("input").Length() == 1 {
			label = normalizeSpace(parent.Text())
		}
	}

	name, _ := input.Attr("name")
	value, _ := input.Attr("value")
	return normalizeSpace(label + " " + name + " " + value)
}

func isDisabled(sel *goquery.Selection) bool {
	if _, ok := sel.Attr("disabled"); ok {
		return true
	}
	if _, ok := sel.Attr("hidden"); ok {
		return true
	}
	style, _ := sel.Attr("style")
	style = strings.ReplaceAll(strings.ToLower(style), " ", "")
	return strings.Contains(style, "display:none") || strings.Contains(style, "visibility:hidden")
}

func normalizeSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
