// Package linkextract finds the unsubscribe target of a message.
//
// Candidates are ranked in four tiers: the List-Unsubscribe header, HTML
// anchors whose text mentions unsubscribing, anchors whose href does, and
// bare URLs in the plain-text body. Every candidate passes the URL filter
// before it can be selected.
package linkextract

import (
	"net/url"
	"regexp"
	"sort"
	"strings"
	"unicode"

	"triage_server/core/domain"

	"github.com/PuerkitoBio/goquery"
)

const maxURLLength = 2048

const (
	tierHeader = iota + 1
	tierAnchorText
	tierAnchorHref
	tierPlainText
)

var anchorTextPhrases = []string{
	"unsubscribe",
	"opt out",
	"opt-out",
	"manage preferences",
	"email preferences",
	"manage subscription",
	"update preferences",
}

var hrefKeywords = []string{
	"unsubscribe",
	"unsub",
	"opt-out",
	"optout",
	"remove",
}

var plainURLPattern = regexp.MustCompile(`(?i)https?://[^\s<>"'\x60]+`)

// Input is the message content available to the extractor. Any field may
// be empty.
type Input struct {
	ListUnsubscribe string
	HTML            string
	Text            string
}

type Status string

const (
	StatusFound   Status = "found"
	StatusNoLink  Status = "no_link"
	StatusInvalid Status = "invalid_only"
)

type Result struct {
	Selected   *domain.LinkCandidate
	Candidates []domain.LinkCandidate
	Rejected   []domain.RejectedLink
}

// Status distinguishes "nothing found" from "only unsafe links found".
func (r Result) Status() Status {
	switch {
	case r.Selected != nil:
		return StatusFound
	case len(r.Rejected) > 0:
		return StatusInvalid
	default:
		return StatusNoLink
	}
}

type collector struct {
	seen     map[string]bool
	accepted []domain.LinkCandidate
	rejected []domain.RejectedLink
}

func (c *collector) add(raw string, source domain.LinkSource, tier int) {
	cleaned, reason := Sanitize(raw)
	if reason != "" {
		c.rejected = append(c.rejected, domain.RejectedLink{Raw: raw, Source: source, Reason: reason})
		return
	}
	if c.seen[cleaned] {
		return
	}
	c.seen[cleaned] = true
	c.accepted = append(c.accepted, domain.LinkCandidate{URL: cleaned, Source: source, Tier: tier})
}

// Extract ranks every unsubscribe candidate in the message and selects the
// best one. It never fails; unparsable HTML yields no HTML candidates.
func Extract(in Input) Result {
	c := &collector{seen: make(map[string]bool)}

	for _, token := range ParseListUnsubscribe(in.ListUnsubscribe) {
		c.add(token, domain.LinkSourceHeader, tierHeader)
	}

	text := in.Text
	if strings.TrimSpace(in.HTML) != "" {
		if doc, err := goquery.NewDocumentFromReader(strings.NewReader(in.HTML)); err == nil {
			collectAnchors(doc, c)
			if strings.TrimSpace(text) == "" {
				text = doc.Find("body").Text()
			}
		}
	}

	for _, raw := range plainURLPattern.FindAllString(text, -1) {
		raw = strings.TrimRightFunc(raw, isTrailingPunct)
		if strings.Contains(strings.ToLower(raw), "unsubscribe") {
			c.add(raw, domain.LinkSourcePlainText, tierPlainText)
		}
	}

	sort.SliceStable(c.accepted, func(i, j int) bool {
		a, b := c.accepted[i], c.accepted[j]
		if a.Tier != b.Tier {
			return a.Tier < b.Tier
		}
		return schemeRank(a.URL) < schemeRank(b.URL)
	})

	res := Result{Candidates: c.accepted, Rejected: c.rejected}
	if len(c.accepted) > 0 {
		best := c.accepted[0]
		res.Selected = &best
	}
	return res
}

func collectAnchors(doc *goquery.Document, c *collector) {
	var hrefMatches []string

	doc.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		href := strings.TrimSpace(a.AttrOr("href", ""))
		if href == "" {
			return
		}
		label := normalizeSpace(a.Text())
		if label == "" {
			label = normalizeSpace(a.AttrOr("title", "") + " " + a.AttrOr("aria-label", ""))
		}
		if containsAny(strings.ToLower(label), anchorTextPhrases) {
			c.add(href, domain.LinkSourceAnchor, tierAnchorText)
			return
		}
		if containsAny(strings.ToLower(href), hrefKeywords) {
			hrefMatches = append(hrefMatches, href)
		}
	})

	for _, href := range hrefMatches {
		c.add(href, domain.LinkSourceHref, tierAnchorHref)
	}
}

// ParseListUnsubscribe splits a List-Unsubscribe header into its targets,
// http(s) targets first.
func ParseListUnsubscribe(header string) []string {
	var web, other []string
	for _, part := range splitListUnsubscribe(header) {
		lower := strings.ToLower(part)
		if strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://") {
			web = append(web, part)
		} else {
			other = append(other, part)
		}
	}
	return append(web, other...)
}

// splitListUnsubscribe returns the <...> delimited targets of header. Commas
// inside the brackets belong to the URL. Headers without brackets are split
// on commas.
func splitListUnsubscribe(header string) []string {
	header = strings.TrimSpace(header)
	if header == "" {
		return nil
	}

	var tokens []string
	add := func(tok string) {
		if tok = strings.TrimSpace(tok); tok != "" {
			tokens = append(tokens, tok)
		}
	}

	if !strings.Contains(header, "<") {
		for _, part := range strings.Split(header, ",") {
			add(part)
		}
		return tokens
	}

	rest := header
	for {
		start := strings.IndexByte(rest, '<')
		if start < 0 {
			break
		}
		rest = rest[start+1:]
		end := strings.IndexByte(rest, '>')
		if end < 0 {
			add(rest)
			break
		}
		add(rest[:end])
		rest = rest[end+1:]
	}
	return tokens
}

// Sanitize validates raw as a navigable web URL. A non-empty reason means
// the URL was rejected.
func Sanitize(raw string) (cleaned, reason string) {
	s := strings.TrimSpace(raw)
	s = strings.TrimPrefix(s, "<")
	s = strings.TrimSuffix(s, ">")

	switch {
	case s == "":
		return "", "empty url"
	case len(s) > maxURLLength:
		return "", "url too long"
	case strings.IndexFunc(s, func(r rune) bool { return unicode.IsSpace(r) || unicode.IsControl(r) }) >= 0:
		return "", "url contains whitespace or control characters"
	}

	u, err := url.Parse(s)
	if err != nil {
		return "", "malformed url"
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme == "mailto" {
		return "", "mailto target is not navigable"
	}
	if scheme != "http" && scheme != "https" {
		return "", "unsupported scheme"
	}
	if u.Hostname() == "" {
		return "", "missing host"
	}
	if u.User != nil {
		return "", "credentials in url"
	}
	u.Scheme = scheme
	return u.String(), ""
}

func schemeRank(u string) int {
	if strings.HasPrefix(u, "https://") {
		return 0
	}
	return 1
}

func containsAny(s string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}

func normalizeSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func isTrailingPunct(r rune) bool {
	return strings.ContainsRune(".,;:!?)]}'\"", r)
}
