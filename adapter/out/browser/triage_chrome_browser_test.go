package browser

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"os/exec"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"triage_server/core/port/out"

	"github.com/rs/zerolog"
)

func findChrome(t *testing.T) string {
	t.Helper()
	if p := os.Getenv("CHROME_PATH"); p != "" {
		return p
	}
	for _, name := range []string{"google-chrome", "google-chrome-stable", "chromium", "chromium-browser", "headless-shell"} {
		if p, err := exec.LookPath(name); err == nil {
			return p
		}
	}
	t.Skip("no chrome binary found")
	return ""
}

// publicGuard treats every hostname as public while still blocking IP
// literals such as 127.0.0.1.
func publicGuard() *NavigationGuard {
	return &NavigationGuard{
		lookup: func(context.Context, string) ([]net.IPAddr, error) {
			return []net.IPAddr{{IP: net.ParseIP("93.184.216.34")}}, nil
		},
	}
}

func TestChromeSessionOutlivesStart(t *testing.T) {
	execPath := findChrome(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<html><body><p>You have been unsubscribed.</p></body></html>`))
	}))
	defer srv.Close()

	b := NewChromeBrowser(ChromeConfig{ExecPath: execPath, NoSandbox: true}, NewNavigationGuard(true), zerolog.Nop())

	startCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	session, err := b.NewSession(startCtx)
	cancel()
	if err != nil {
		t.Fatalf("NewSession() error = %v", err)
	}
	defer session.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	res, err := session.Navigate(ctx, srv.URL+"/landing")
	if err != nil {
		t.Fatalf("Navigate() error = %v", err)
	}
	if res.StatusCode != http.StatusOK {
		t.Errorf("status = %d", res.StatusCode)
	}
	text, err := session.Text(ctx)
	if err != nil {
		t.Fatalf("Text() error = %v", err)
	}
	if !strings.Contains(text, "unsubscribed") {
		t.Errorf("text = %q", text)
	}
}

func TestChromeSessionBlocksRedirectToPrivateHost(t *testing.T) {
	execPath := findChrome(t)

	var internalHit atomic.Bool
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/internal":
			internalHit.Store(true)
			w.Write([]byte("secret"))
		default:
			http.Redirect(w, r, srv.URL+"/internal", http.StatusTemporaryRedirect)
		}
	}))
	defer srv.Close()

	u, _ := url.Parse(srv.URL)
	b := NewChromeBrowser(ChromeConfig{
		ExecPath:  execPath,
		NoSandbox: true,
		Flags:     map[string]interface{}{"host-resolver-rules": "MAP public.test 127.0.0.1"},
	}, publicGuard(), zerolog.Nop())

	session, err := b.NewSession(context.Background())
	if err != nil {
		t.Fatalf("NewSession() error = %v", err)
	}
	defer session.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	_, err = session.Navigate(ctx, "http://public.test:"+u.Port()+"/start")
	if !errors.Is(err, out.ErrBlockedURL) {
		t.Errorf("Navigate() error = %v, want ErrBlockedURL", err)
	}
	if internalHit.Load() {
		t.Error("redirect reached the private address")
	}
}
