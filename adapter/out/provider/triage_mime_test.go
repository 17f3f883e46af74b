package provider

import (
	"strings"
	"testing"
	"time"
)

func crlf(s string) []byte {
	return []byte(strings.ReplaceAll(s, "\n", "\r\n"))
}

func TestParseRawMessage_Multipart(t *testing.T) {
	raw := crlf(`From: "Shop News" <news@shop.test>
To: me@example.com
Subject: =?UTF-8?Q?Spring_sale_=E2=9C=93?=
Date: Mon, 03 Mar 2025 10:15:00 +0000
List-Unsubscribe: <https://shop.test/u?id=1>, <mailto:u@shop.test>
List-Unsubscribe-Post: List-Unsubscribe=One-Click
MIME-Version: 1.0
Content-Type: multipart/alternative; boundary="b1"

--b1
Content-Type: text/plain; charset=utf-8
Content-Transfer-Encoding: quoted-printable

Everything is 20% off=21
--b1
Content-Type: text/html; charset=utf-8

<p>Everything is 20% off!</p>
--b1--
`)

	msg, err := ParseRawMessage("m1", raw)
	if err != nil {
		t.Fatalf("ParseRawMessage() error = %v", err)
	}
	if msg.Subject != "Spring sale ✓" {
		t.Errorf("Subject = %q", msg.Subject)
	}
	if msg.From != "Shop News <news@shop.test>" {
		t.Errorf("From = %q", msg.From)
	}
	if !msg.ReceivedAt.Equal(time.Date(2025, 3, 3, 10, 15, 0, 0, time.UTC)) {
		t.Errorf("ReceivedAt = %v", msg.ReceivedAt)
	}
	if msg.Header("list-unsubscribe") != "<https://shop.test/u?id=1>, <mailto:u@shop.test>" {
		t.Errorf("List-Unsubscribe = %q", msg.Header("list-unsubscribe"))
	}
	if msg.Body != "" {
		t.Errorf("Body should be empty for multipart, got %q", msg.Body)
	}
	text, ok := msg.FirstPart("text/plain")
	if !ok || strings.TrimSpace(text) != "Everything is 20% off!" {
		t.Errorf("text part = %q", text)
	}
	if html, ok := msg.FirstPart("text/html"); !ok || !strings.Contains(html, "<p>") {
		t.Errorf("html part = %q", html)
	}
}

func TestParseRawMessage_SinglePart(t *testing.T) {
	raw := crlf(`From: alerts@bank.test
Subject: Statement ready
Content-Type: text/html; charset=utf-8

<html><body>Your statement is ready.</body></html>
`)

	msg, err := ParseRawMessage("m2", raw)
	if err != nil {
		t.Fatalf("ParseRawMessage() error = %v", err)
	}
	if msg.From != "alerts@bank.test" {
		t.Errorf("From = %q", msg.From)
	}
	if !strings.Contains(msg.Body, "Your statement is ready.") {
		t.Errorf("Body = %q", msg.Body)
	}
	if len(msg.Parts) != 1 || msg.Parts[0].ContentType != "text/html" {
		t.Errorf("Parts = %+v", msg.Parts)
	}
	if !msg.ReceivedAt.IsZero() {
		t.Errorf("ReceivedAt = %v, want zero without a Date header", msg.ReceivedAt)
	}
}

func TestParseRawMessage_SkipsAttachments(t *testing.T) {
	raw := crlf(`From: a@x.test
Subject: Invoice
Content-Type: multipart/mixed; boundary="mix"

--mix
Content-Type: text/plain

See attached.
--mix
Content-Type: application/pdf
Content-Disposition: attachment; filename="invoice.pdf"
Content-Transfer-Encoding: base64

JVBERi0xLjQK
--mix--
`)

	msg, err := ParseRawMessage("m3", raw)
	if err != nil {
		t.Fatalf("ParseRawMessage() error = %v", err)
	}
	if len(msg.Parts) != 1 {
		t.Fatalf("Parts = %+v", msg.Parts)
	}
	if strings.TrimSpace(msg.Parts[0].Content) != "See attached." {
		t.Errorf("Content = %q", msg.Parts[0].Content)
	}
}
