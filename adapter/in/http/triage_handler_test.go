package http

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"triage_server/core/domain"
	"triage_server/core/port/in"
	"triage_server/infra/middleware"
	"triage_server/pkg/apperr"

	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

type fakeIngest struct {
	report *domain.BatchReport
	err    error
	gotID  int64
}

func (f *fakeIngest) SyncAccount(_ context.Context, _ uuid.UUID, accountID int64) (*domain.BatchReport, error) {
	f.gotID = accountID
	return f.report, f.err
}

type fakeUnsubscribe struct {
	gotIDs  []int64
	preview *in.LinkPreview
	err     error
}

func (f *fakeUnsubscribe) UnsubscribeBatch(_ context.Context, _ uuid.UUID, ids []int64) (*domain.UnsubscribeBatchResult, error) {
	f.gotIDs = ids
	res := &domain.UnsubscribeBatchResult{Details: []domain.UnsubscribeDetail{}}
	for i, id := range ids {
		status := domain.UnsubscribeSuccess
		if i == 1 {
			status = domain.UnsubscribeFailed
		}
		res.Add(domain.UnsubscribeDetail{EmailID: id, Status: status})
	}
	return res, nil
}

func (f *fakeUnsubscribe) PreviewLinks(_ context.Context, _ uuid.UUID, emailID int64) (*in.LinkPreview, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.preview, nil
}

func newHandlerApp(ingest in.IngestionService, unsub in.UnsubscribeService, authed bool) *fiber.App {
	app := fiber.New(fiber.Config{ErrorHandler: middleware.ErrorHandler()})
	api := app.Group("/api/v1", func(c *fiber.Ctx) error {
		if authed {
			c.Locals("user_id", uuid.New())
		}
		return c.Next()
	})
	pass := func(c *fiber.Ctx) error { return c.Next() }
	NewSyncHandler(ingest).Register(api, pass)
	NewUnsubscribeHandler(unsub).Register(api, pass)
	return app
}

func do(t *testing.T, app *fiber.App, method, path, body string) (int, string) {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test() error = %v", err)
	}
	b, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, string(b)
}

func TestUnsubscribeValidation(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"missing field", `{}`},
		{"empty array", `{"email_ids":[]}`},
		{"string", `{"email_ids":"1,2"}`},
		{"number", `{"email_ids":5}`},
		{"null", `{"email_ids":null}`},
		{"non numeric items", `{"email_ids":["a"]}`},
		{"not json", `email_ids=1`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			unsub := &fakeUnsubscribe{}
			app := newHandlerApp(&fakeIngest{}, unsub, true)
			code, body := do(t, app, http.MethodPost, "/api/v1/emails/unsubscribe", tt.body)
			if code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400 (%s)", code, body)
			}
			if unsub.gotIDs != nil {
				t.Error("service must not run for an invalid body")
			}
		})
	}
}

func TestUnsubscribePartialFailureIs200(t *testing.T) {
	unsub := &fakeUnsubscribe{}
	app := newHandlerApp(&fakeIngest{}, unsub, true)

	code, body := do(t, app, http.MethodPost, "/api/v1/emails/unsubscribe", `{"email_ids":[4,5,6]}`)
	if code != http.StatusOK {
		t.Fatalf("status = %d, want 200", code)
	}

	var res domain.UnsubscribeBatchResult
	if err := json.Unmarshal([]byte(body), &res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if res.Total != 3 || res.Successful != 2 || res.Failed != 1 {
		t.Errorf("result = %+v", res)
	}
	if len(unsub.gotIDs) != 3 || unsub.gotIDs[0] != 4 {
		t.Errorf("ids = %v", unsub.gotIDs)
	}
}

func TestRoutesRequireUser(t *testing.T) {
	app := newHandlerApp(&fakeIngest{}, &fakeUnsubscribe{}, false)
	code, body := do(t, app, http.MethodPost, "/api/v1/emails/unsubscribe", `{"email_ids":[1]}`)
	if code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401 (%s)", code, body)
	}
}

func TestSyncAccount(t *testing.T) {
	ingest := &fakeIngest{report: &domain.BatchReport{Imported: 2, SkippedDuplicates: 1, Errors: []string{}}}
	app := newHandlerApp(ingest, &fakeUnsubscribe{}, true)

	code, body := do(t, app, http.MethodPost, "/api/v1/accounts/12/sync", "")
	if code != http.StatusOK {
		t.Fatalf("status = %d (%s)", code, body)
	}
	if ingest.gotID != 12 {
		t.Errorf("account id = %d", ingest.gotID)
	}
	if !strings.Contains(body, `"imported":2`) || !strings.Contains(body, `"skipped_duplicates":1`) {
		t.Errorf("body = %s", body)
	}

	code, _ = do(t, app, http.MethodPost, "/api/v1/accounts/abc/sync", "")
	if code != http.StatusBadRequest {
		t.Errorf("bad id status = %d, want 400", code)
	}

	ingest.err = apperr.Conflict("sync already running")
	code, _ = do(t, app, http.MethodPost, "/api/v1/accounts/12/sync", "")
	if code != http.StatusConflict {
		t.Errorf("locked status = %d, want 409", code)
	}
}

func TestPreviewLinks(t *testing.T) {
	unsub := &fakeUnsubscribe{preview: &in.LinkPreview{
		EmailID:    3,
		Selected:   &domain.LinkCandidate{URL: "https://a.example/u", Source: domain.LinkSourceHeader, Tier: 1},
		Candidates: []domain.LinkCandidate{{URL: "https://a.example/u", Source: domain.LinkSourceHeader, Tier: 1}},
	}}
	app := newHandlerApp(&fakeIngest{}, unsub, true)

	code, body := do(t, app, http.MethodGet, "/api/v1/emails/3/unsubscribe-links", "")
	if code != http.StatusOK || !strings.Contains(body, "https://a.example/u") {
		t.Errorf("status = %d body = %s", code, body)
	}

	unsub.err = apperr.NotFound("email")
	code, _ = do(t, app, http.MethodGet, "/api/v1/emails/3/unsubscribe-links", "")
	if code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", code)
	}
}

func TestReady(t *testing.T) {
	app := fiber.New()
	NewHealthHandler(map[string]Pinger{
		"postgres": PingFunc(func(context.Context) error { return nil }),
		"mongodb":  nil,
	}).Register(app)

	code, body := do(t, app, http.MethodGet, "/ready", "")
	if code != http.StatusOK || !strings.Contains(body, `"mongodb":"not configured"`) {
		t.Errorf("status = %d body = %s", code, body)
	}

	app = fiber.New()
	NewHealthHandler(map[string]Pinger{
		"redis": PingFunc(func(context.Context) error { return errors.New("refused") }),
	}).Register(app)
	code, _ = do(t, app, http.MethodGet, "/ready", "")
	if code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", code)
	}

	code, body = do(t, app, http.MethodGet, "/metrics", "")
	if code != http.StatusOK || !strings.Contains(body, "go_goroutines") {
		t.Errorf("metrics status = %d", code)
	}
}
