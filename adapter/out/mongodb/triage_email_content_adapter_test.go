package mongodb

import (
	"strings"
	"testing"

	"triage_server/core/domain"
)

func TestDocumentConversion(t *testing.T) {
	tests := []struct {
		name           string
		html           string
		wantCompressed bool
	}{
		{"small body stays plain", "<p>hi</p>", false},
		{"large body is gzipped", "<p>" + strings.Repeat("unsubscribe ", 200) + "</p>", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := &domain.EmailContent{
				EmailID:             9,
				AccountID:           2,
				SourceMessageID:     "m9",
				HTML:                tt.html,
				Text:                "hi",
				Headers:             map[string]string{"Subject": "x"},
				ListUnsubscribe:     "<https://x.test/u>",
				ListUnsubscribePost: "List-Unsubscribe=One-Click",
			}

			doc, err := toDocument(in)
			if err != nil {
				t.Fatalf("toDocument() error = %v", err)
			}
			if doc.IsCompressed != tt.wantCompressed {
				t.Errorf("IsCompressed = %v", doc.IsCompressed)
			}
			if doc.StoredAt.IsZero() {
				t.Error("StoredAt not defaulted")
			}

			got, err := fromDocument(doc)
			if err != nil {
				t.Fatalf("fromDocument() error = %v", err)
			}
			if got.HTML != in.HTML || got.Text != in.Text || got.ListUnsubscribePost != in.ListUnsubscribePost {
				t.Errorf("round trip = %+v", got)
			}
		})
	}
}
