package browser

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"

	"triage_server/core/port/out"
	"triage_server/pkg/httputil"
)

const oneClickBody = "List-Unsubscribe=One-Click"

// OneClickClient sends RFC 8058 unsubscribe POSTs.
type OneClickClient struct {
	client *http.Client
	guard  *NavigationGuard
}

// NewOneClickClient uses the shared unsubscribe HTTP client when client is nil.
// Every redirect hop is checked by guard as well as the first target.
func NewOneClickClient(client *http.Client, guard *NavigationGuard) *OneClickClient {
	if client == nil {
		client = httputil.UnsubscribeClient()
	}
	guarded := *client
	next := client.CheckRedirect
	guarded.CheckRedirect = func(req *http.Request, via []*http.Request) error {
		if err := guard.Check(req.Context(), req.URL.String()); err != nil {
			return err
		}
		if next != nil {
			return next(req, via)
		}
		if len(via) >= 10 {
			return errors.New("stopped after 10 redirects")
		}
		return nil
	}
	return &OneClickClient{client: &guarded, guard: guard}
}

func (c *OneClickClient) PostOneClick(ctx context.Context, target string) (int, error) {
	if err := c.guard.Check(ctx, target); err != nil {
		return 0, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, strings.NewReader(oneClickBody))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	return resp.StatusCode, nil
}

var _ out.OneClickUnsubscriber = (*OneClickClient)(nil)
