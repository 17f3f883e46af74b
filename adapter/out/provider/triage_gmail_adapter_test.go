package provider

import (
	"context"
	"encoding/base64"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"triage_server/core/port/out"

	"github.com/goccy/go-json"
	"golang.org/x/oauth2"
)

func testToken() *oauth2.Token {
	return &oauth2.Token{AccessToken: "test-token", TokenType: "Bearer", Expiry: time.Now().Add(time.Hour)}
}

func newTestAdapter(t *testing.T, handler http.HandlerFunc) *GmailAdapter {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewGmailAdapter(&GmailConfig{Endpoint: srv.URL + "/", HTTPClient: srv.Client()})
}

func TestGmailAdapter_ListRecentMessages(t *testing.T) {
	a := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/gmail/v1/users/me/messages" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if r.URL.Query().Get("labelIds") != "INBOX" || r.URL.Query().Get("maxResults") != "5" {
			t.Errorf("query = %s", r.URL.RawQuery)
		}
		if r.Header.Get("Authorization") != "Bearer test-token" {
			t.Errorf("Authorization = %q", r.Header.Get("Authorization"))
		}
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"messages":[{"id":"m1","threadId":"t1"},{"id":"m2","threadId":"t2"}]}`)
	})

	refs, err := a.ListRecentMessages(context.Background(), testToken(), 5)
	if err != nil {
		t.Fatalf("ListRecentMessages() error = %v", err)
	}
	if len(refs) != 2 || refs[0].ID != "m1" || refs[1].ThreadID != "t2" {
		t.Errorf("refs = %+v", refs)
	}
}

func TestGmailAdapter_GetMessage(t *testing.T) {
	raw := "From: news@shop.test\r\nSubject: Hi\r\nContent-Type: text/plain\r\n\r\nhello\r\n"
	a := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/gmail/v1/users/me/messages/m1" || r.URL.Query().Get("format") != "raw" {
			t.Errorf("request = %s?%s", r.URL.Path, r.URL.RawQuery)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"id":           "m1",
			"threadId":     "t1",
			"raw":          base64.URLEncoding.EncodeToString([]byte(raw)),
			"internalDate": "1700000000000",
		})
	})

	msg, err := a.GetMessage(context.Background(), testToken(), "m1")
	if err != nil {
		t.Fatalf("GetMessage() error = %v", err)
	}
	if msg.Subject != "Hi" || msg.ThreadID != "t1" || strings.TrimSpace(msg.Body) != "hello" {
		t.Errorf("msg = %+v", msg)
	}
	if !msg.ReceivedAt.Equal(time.UnixMilli(1700000000000)) {
		t.Errorf("ReceivedAt = %v, want internal date", msg.ReceivedAt)
	}
}

func TestGmailAdapter_ArchiveMessage(t *testing.T) {
	var body map[string][]string
	a := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/gmail/v1/users/me/messages/m1/modify" {
			t.Errorf("request = %s %s", r.Method, r.URL.Path)
		}
		json.NewDecoder(r.Body).Decode(&body)
		io.WriteString(w, `{"id":"m1"}`)
	})

	if err := a.ArchiveMessage(context.Background(), testToken(), "m1"); err != nil {
		t.Fatalf("ArchiveMessage() error = %v", err)
	}
	if len(body["removeLabelIds"]) != 1 || body["removeLabelIds"][0] != "INBOX" {
		t.Errorf("body = %v", body)
	}
}

func TestGmailAdapter_ErrorMapping(t *testing.T) {
	tests := []struct {
		status   int
		message  string
		wantCode out.ProviderErrorCode
	}{
		{401, "Invalid Credentials", out.ProviderErrTokenExpired},
		{403, "Insufficient Permission", out.ProviderErrAuth},
		{403, "User Rate Limit Exceeded", out.ProviderErrRateLimit},
		{404, "Not Found", out.ProviderErrNotFound},
		{429, "Too Many Requests", out.ProviderErrRateLimit},
		{503, "Backend Error", out.ProviderErrServer},
	}
	for _, tt := range tests {
		t.Run(tt.message, func(t *testing.T) {
			a := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				json.NewEncoder(w).Encode(map[string]any{
					"error": map[string]any{"code": tt.status, "message": tt.message},
				})
			})

			err := a.ArchiveMessage(context.Background(), testToken(), "m1")
			pe, ok := err.(*out.ProviderError)
			if !ok {
				t.Fatalf("err = %T %v, want *out.ProviderError", err, err)
			}
			if pe.Code != tt.wantCode {
				t.Errorf("Code = %s, want %s", pe.Code, tt.wantCode)
			}
		})
	}
}

func TestGmailAdapter_PingReportsOpenBreaker(t *testing.T) {
	a := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]any{"code": 503, "message": "Backend Error"},
		})
	})

	if err := a.Ping(context.Background()); err != nil {
		t.Fatalf("Ping() on a fresh adapter = %v", err)
	}
	for i := 0; i < 6; i++ {
		a.ArchiveMessage(context.Background(), testToken(), "m1")
	}
	if err := a.Ping(context.Background()); err == nil {
		t.Error("Ping() = nil after repeated server errors")
	}
}

func TestDecodeRaw(t *testing.T) {
	want := "Subject: x\r\n\r\nbody?>"
	for _, enc := range []*base64.Encoding{base64.URLEncoding, base64.RawURLEncoding} {
		got, err := decodeRaw(enc.EncodeToString([]byte(want)))
		if err != nil || string(got) != want {
			t.Errorf("decodeRaw() = %q, %v", got, err)
		}
	}
}
