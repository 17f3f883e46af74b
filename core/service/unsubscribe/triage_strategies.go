package unsubscribe

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Action describes what a strategy did on the page.
type Action struct {
	Strategy string
	Selector string
	Detail   string
}

// Strategy recognises one kind of unsubscribe page and drives it.
type Strategy interface {
	Name() string
	// Try returns a nil Action when the page has nothing it recognises.
	Try(ctx context.Context, p *Page) (*Action, error)
}

// DefaultStrategies returns the strategies in the order they are tried.
func DefaultStrategies() []Strategy {
	return []Strategy{ButtonStrategy{}, CheckboxStrategy{}, PreferenceCenterStrategy{}}
}

const (
	clickableSelector = `button, a, input[type="submit"], input[type="button"], [role="button"]`
	maxControlLabel   = 80
)

var (
	unsubscribeLabel = regexp.MustCompile(`(?i)\b(unsubscribe|opt[\s-]?out|optout|remove)\b`)
	unsubscribeAttr  = regexp.MustCompile(`(?i)(unsubscribe|unsub|opt[-_]?out)`)
	confirmLabel     = regexp.MustCompile(`(?i)\b(yes|confirm)\b`)
	negativeLabel    = regexp.MustCompile(`(?i)(re-?subscribe|keep\s+(me\s+)?subscribed|stay\s+subscribed|don'?t\s+unsubscribe|do\s+not\s+unsubscribe|changed\s+my\s+mind|^(cancel|no|back|go\s+back)$)`)
)

// ButtonStrategy clicks a button or link labelled unsubscribe / opt out /
// remove, then follows one confirmation step if the next page asks for it.
type ButtonStrategy struct{}

func (ButtonStrategy) Name() string { return "button" }

func (s ButtonStrategy) Try(ctx context.Context, p *Page) (*Action, error) {
	control := findControl(p.doc, true)
	if control == nil {
		return nil, nil
	}
	selector := cssPath(p.doc, control)
	if err := p.click(ctx, selector); err != nil {
		return nil, fmt.Errorf("click %s: %w", selector, err)
	}
	act := &Action{Strategy: s.Name(), Selector: selector, Detail: fmt.Sprintf("clicked %q", controlLabel(control))}

	next, err := loadPage(ctx, p.session, p.actionTimeout)
	if err != nil || DetectPageState(next.visibleText()).State != PageUnknown {
		return act, nil
	}
	confirm := findConfirmControl(next.doc)
	if confirm == nil {
		return act, nil
	}
	confirmSel := cssPath(next.doc, confirm)
	if err := next.click(ctx, confirmSel); err != nil {
		return nil, fmt.Errorf("confirm %s: %w", confirmSel, err)
	}
	act.Detail += fmt.Sprintf(", confirmed with %q", controlLabel(confirm))
	return act, nil
}

// findControl prefers a matching visible label, then a matching id, class
// or name, then a bare confirmation control.
func findControl(doc *goquery.Document, allowConfirm bool) *goquery.Selection {
	var byLabel, byAttr, byConfirm *goquery.Selection
	doc.Find(clickableSelector).EachWithBreak(func(_ int, el *goquery.Selection) bool {
		if !isClickable(el) {
			return true
		}
		label := controlLabel(el)
		if negativeLabel.MatchString(label) {
			return true
		}
		switch {
		case unsubscribeLabel.MatchString(label) && len(label) <= maxControlLabel:
			byLabel = el
			return false
		case byAttr == nil && unsubscribeAttr.MatchString(controlAttrs(el)):
			byAttr = el
		case byConfirm == nil && allowConfirm && confirmLabel.MatchString(label) && len(label) <= maxControlLabel:
			byConfirm = el
		}
		return true
	})
	switch {
	case byLabel != nil:
		return byLabel
	case byAttr != nil:
		return byAttr
	default:
		return byConfirm
	}
}

func findConfirmControl(doc *goquery.Document) *goquery.Selection {
	var found *goquery.Selection
	doc.Find(clickableSelector).EachWithBreak(func(_ int, el *goquery.Selection) bool {
		if !isClickable(el) {
			return true
		}
		label := controlLabel(el)
		if negativeLabel.MatchString(label) || len(label) > maxControlLabel {
			return true
		}
		if confirmLabel.MatchString(label) {
			found = el
			return false
		}
		return true
	})
	return found
}

func isClickable(el *goquery.Selection) bool {
	if isDisabled(el) {
		return false
	}
	if goquery.NodeName(el) == "a" {
		href, _ := el.Attr("href")
		if strings.HasPrefix(strings.ToLower(strings.TrimSpace(href)), "mailto:") {
			return false
		}
	}
	return true
}

func controlLabel(el *goquery.Selection) string {
	if goquery.NodeName(el) == "input" {
		v, _ := el.Attr("value")
		return normalizeSpace(v)
	}
	if label := normalizeSpace(el.Text()); label != "" {
		return label
	}
	if aria, ok := el.Attr("aria-label"); ok {
		return normalizeSpace(aria)
	}
	title, _ := el.Attr("title")
	return normalizeSpace(title)
}

func controlAttrs(el *goquery.Selection) string {
	id, _ := el.Attr("id")
	class, _ := el.Attr("class")
	name, _ := el.Attr("name")
	return id + " " + class + " " + name
}

var (
	optOutField       = regexp.MustCompile(`(?i)(unsubscribe|opt[\s-]?out|do\s+not\s+(send|e-?mail|contact)|stop\s+(all\s+)?(e-?mails?|sending))`)
	subscriptionField = regexp.MustCompile(`(?i)(subscri|newsletter|e-?mails?|mailing|updates|offers|promotion|marketing|communications|notifications|digest)`)
)

// CheckboxStrategy unchecks every subscription checkbox in a form, checks
// any explicit opt-out box, and submits the form.
type CheckboxStrategy struct{}

func (CheckboxStrategy) Name() string { return "checkbox_form" }

func (s CheckboxStrategy) Try(ctx context.Context, p *Page) (*Action, error) {
	type change struct {
		selector string
		checked  bool
	}

	var (
		act *Action
		err error
	)
	p.doc.Find("form").EachWithBreak(func(_ int, form *goquery.Selection) bool {
		var changes []change
		form.Find(`input[type="checkbox"]`).Each(func(_ int, box *goquery.Selection) {
			if isDisabled(box) {
				return
			}
			label := fieldLabel(p.doc, box)
			switch {
			case optOutField.MatchString(label):
				changes = append(changes, change{cssPath(p.doc, box), true})
			case subscriptionField.MatchString(label):
				changes = append(changes, change{cssPath(p.doc, box), false})
			}
		})
		if len(changes) == 0 {
			return true
		}

		for _, c := range changes {
			if err = p.setChecked(ctx, c.selector, c.checked); err != nil {
				err = fmt.Errorf("set %s: %w", c.selector, err)
				return false
			}
		}
		formSel := cssPath(p.doc, form)
		if err = p.submit(ctx, formSel); err != nil {
			err = fmt.Errorf("submit %s: %w", formSel, err)
			return false
		}
		act = &Action{
			Strategy: s.Name(),
			Selector: formSel,
			Detail:   fmt.Sprintf("updated %d checkbox(es) and submitted", len(changes)),
		}
		return false
	})
	return act, err
}

var noneOption = regexp.MustCompile(`(?i)(\bnone\b|unsubscribe\s+(me\s+)?(from\s+)?all|opt[\s-]?out\s+(of\s+)?(all|everything)|no\s+(more\s+)?e-?mails|\bnever\b|\bunsubscribe\b)`)

// PreferenceCenterStrategy picks the "none" / "unsubscribe from all" option
// of a radio group and submits its form.
type PreferenceCenterStrategy struct{}

func (PreferenceCenterStrategy) Name() string { return "preference_center" }

func (s PreferenceCenterStrategy) Try(ctx context.Context, p *Page) (*Action, error) {
	var chosen, form *goquery.Selection
	p.doc.Find(`input[type="radio"]`).EachWithBreak(func(_ int, radio *goquery.Selection) bool {
		if isDisabled(radio) {
			return true
		}
		if f := radio.Closest("form"); f.Length() > 0 && noneOption.MatchString(fieldLabel(p.doc, radio)) {
			chosen, form = radio, f
			return false
		}
		return true
	})
	if chosen == nil {
		return nil, nil
	}

	selector := cssPath(p.doc, chosen)
	if err := p.setChecked(ctx, selector, true); err != nil {
		return nil, fmt.Errorf("select %s: %w", selector, err)
	}
	formSel := cssPath(p.doc, form)
	if err := p.submit(ctx, formSel); err != nil {
		return nil, fmt.Errorf("submit %s: %w", formSel, err)
	}
	group, _ := chosen.Attr("name")
	return &Action{
		Strategy: s.Name(),
		Selector: selector,
		Detail:   fmt.Sprintf("selected %q in group %q and submitted", fieldLabel(p.doc, chosen), group),
	}, nil
}
