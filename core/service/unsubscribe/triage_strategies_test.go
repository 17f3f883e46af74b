package unsubscribe

import (
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
)

func TestDetectPageState(t *testing.T) {
	tests := []struct {
		text string
		want PageState
	}{
		{"Successfully Unsubscribed", PageSuccess},
		{"You will no longer receive marketing emails from us.", PageSuccess},
		{"You have been removed from our mailing list.", PageSuccess},
		{"Your preferences have been updated", PageSuccess},
		{"You are already unsubscribed.", PageAlreadyDone},
		{"This address is not subscribed to any list", PageAlreadyDone},
		{"You'll no longer receive these emails.", PageSuccess},
		{"You no longer receive marketing email from us.", PageSuccess},
		{"You're not subscribed to this list.", PageAlreadyDone},
		{"You are not currently subscribed.", PageAlreadyDone},
		{"Are you sure you want to unsubscribe?", PageUnknown},
		{"", PageUnknown},
	}
	for _, tt := range tests {
		if got := DetectPageState(tt.text).State; got != tt.want {
			t.Errorf("DetectPageState(%q) = %s, want %s", tt.text, got, tt.want)
		}
	}
}

func mustDoc(t *testing.T, html string) *goquery.Document {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		t.Fatal(err)
	}
	return doc
}

func TestCSSPath(t *testing.T) {
	doc := mustDoc(t, `<html><body><div><p>x</p><a href="/u">Unsubscribe</a></div><span id="dup"></span><span id="dup"></span></body></html>`)

	if got := cssPath(doc, doc.Find("a")); got != "html > body:nth-child(2) > div:nth-child(1) > a:nth-child(2)" {
		t.Errorf("anchor path = %q", got)
	}
	if got := cssPath(doc, doc.Find("span").Last()); got != "html > body:nth-child(2) > span:nth-child(3)" {
		t.Errorf("duplicate id path = %q", got)
	}

	doc = mustDoc(t, `<html><body><button id="unsubscribe-btn">Unsubscribe</button></body></html>`)
	if got := cssPath(doc, doc.Find("button")); got != "button#unsubscribe-btn" {
		t.Errorf("id path = %q", got)
	}
}

func TestFindControl(t *testing.T) {
	tests := []struct {
		name string
		html string
		want string
	}{
		{"button text", `<button id="a">Save</button><button id="b">Unsubscribe</button>`, "b"},
		{"anchor text", `<a id="a" href="/x">Opt out of emails</a>`, "a"},
		{"submit input", `<input type="submit" id="a" value="Remove me">`, "a"},
		{"class name", `<a id="a" class="btn-unsub" href="/x">Go</a>`, "a"},
		{"label wins over class", `<a id="a" class="unsubscribe" href="/x">Go</a><button id="b">Unsubscribe</button>`, "b"},
		{"confirm only", `<button id="a">Confirm</button>`, "a"},
		{"resubscribe ignored", `<button id="a">Resubscribe</button>`, ""},
		{"mailto ignored", `<a id="a" href="mailto:x@y.test">Unsubscribe</a>`, ""},
		{"disabled ignored", `<button id="a" disabled>Unsubscribe</button>`, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := mustDoc(t, "<html><body>"+tt.html+"</body></html>")
			got := ""
			if sel := findControl(doc, true); sel != nil {
				got, _ = sel.Attr("id")
			}
			if got != tt.want {
				t.Errorf("findControl() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestFieldLabel(t *testing.T) {
	doc := mustDoc(t, `<html><body>
		<label for="n1">Monthly newsletter</label><input type="checkbox" id="n1" name="news">
		<div><input type="checkbox" id="n2"> Product updates</div>
	</body></html>`)

	if got := fieldLabel(doc, doc.Find("#n1")); got != "Monthly newsletter news" {
		t.Errorf("label[for] = %q", got)
	}
	if got := fieldLabel(doc, doc.Find("#n2")); got != "Product updates" {
		t.Errorf("parent text = %q", got)
	}
}
