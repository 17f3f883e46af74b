package browser

import (
	"context"
	"errors"
	"net"
	"testing"

	"triage_server/core/port/out"
)

func TestNavigationGuard(t *testing.T) {
	g := NewNavigationGuard(false)
	g.lookup = func(_ context.Context, host string) ([]net.IPAddr, error) {
		switch host {
		case "intranet.example.com":
			return []net.IPAddr{{IP: net.ParseIP("10.0.0.8")}}, nil
		case "unknown.example.com":
			return nil, errors.New("no such host")
		}
		return []net.IPAddr{{IP: net.ParseIP("93.184.216.34")}}, nil
	}

	tests := []struct {
		url     string
		blocked bool
	}{
		{"https://news.example.com/unsub?u=1", false},
		{"http://93.184.216.34/optout", false},
		{"https://unknown.example.com/", false},
		{"ftp://example.com/file", true},
		{"javascript:alert(1)", true},
		{"https:///nohost", true},
		{"http://127.0.0.1:8080/admin", true},
		{"http://[::1]/", true},
		{"http://169.254.169.254/latest/meta-data", true},
		{"http://192.168.1.1/", true},
		{"http://0.0.0.0/", true},
		{"http://localhost:3000/", true},
		{"http://metadata.google.internal/", true},
		{"https://intranet.example.com/unsubscribe", true},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			err := g.Check(context.Background(), tt.url)
			if got := errors.Is(err, out.ErrBlockedURL); got != tt.blocked {
				t.Errorf("Check(%q) = %v, blocked want %v", tt.url, err, tt.blocked)
			}
		})
	}
}

func TestNavigationGuardAllowPrivate(t *testing.T) {
	g := NewNavigationGuard(true)
	if err := g.Check(context.Background(), "http://127.0.0.1:9000/unsub"); err != nil {
		t.Errorf("Check() = %v, want nil", err)
	}
	if err := g.Check(context.Background(), "file:///etc/passwd"); !errors.Is(err, out.ErrBlockedURL) {
		t.Errorf("Check(file) = %v, want ErrBlockedURL", err)
	}
}
