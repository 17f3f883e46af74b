// Package browser drives a headless Chrome for unsubscribe flows.
package browser

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"triage_server/core/port/out"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/fetch"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
)

const guardLookupTimeout = 5 * time.Second

// blockedResources are never needed to find or press an unsubscribe control.
var blockedResources = []string{"*.png", "*.jpg", "*.jpeg", "*.gif", "*.webp", "*.mp4", "*.woff", "*.woff2"}

type ChromeConfig struct {
	ExecPath  string
	NoSandbox bool
	UserAgent string
	// Flags are extra Chrome command-line switches.
	Flags map[string]interface{}
	// StartTimeout bounds launching the browser process.
	StartTimeout time.Duration
}

// ChromeBrowser implements out.Browser. Every session is a separate Chrome
// process with its own profile, so no cookies or storage leak between flows.
type ChromeBrowser struct {
	config ChromeConfig
	guard  *NavigationGuard
	logger zerolog.Logger
}

func NewChromeBrowser(cfg ChromeConfig, guard *NavigationGuard, logger zerolog.Logger) *ChromeBrowser {
	if cfg.StartTimeout <= 0 {
		cfg.StartTimeout = 20 * time.Second
	}
	return &ChromeBrowser{config: cfg, guard: guard, logger: logger}
}

func (b *ChromeBrowser) allocatorOptions() []chromedp.ExecAllocatorOption {
	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	opts = append(opts,
		chromedp.Flag("headless", true),
		chromedp.Flag("incognito", true),
		chromedp.DisableGPU,
		chromedp.WindowSize(1280, 900),
	)
	if b.config.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(b.config.ExecPath))
	}
	if b.config.NoSandbox {
		opts = append(opts, chromedp.NoSandbox)
	}
	for name, value := range b.config.Flags {
		opts = append(opts, chromedp.Flag(name, value))
	}
	if b.config.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(b.config.UserAgent))
	}
	return opts
}

func (b *ChromeBrowser) NewSession(ctx context.Context) (out.BrowserSession, error) {
	// The browser lifetime is tied to the session, not to ctx. The first Run
	// on tabCtx launches Chrome, so it must not carry a deadline; the launch
	// is bounded by closing the session instead.
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.WithoutCancel(ctx), b.allocatorOptions()...)
	tabCtx, tabCancel := chromedp.NewContext(allocCtx)

	s := &ChromeSession{
		ctx:    tabCtx,
		cancel: func() { tabCancel(); allocCancel() },
		guard:  b.guard,
		logger: b.logger,
	}
	chromedp.ListenTarget(tabCtx, s.onRequestPaused)

	started := make(chan error, 1)
	go func() {
		started <- chromedp.Run(tabCtx,
			network.Enable(),
			network.SetBlockedURLS(blockedResources),
			fetch.Enable().WithPatterns([]*fetch.RequestPattern{
				{URLPattern: "*", ResourceType: network.ResourceTypeDocument},
			}),
		)
	}()

	timer := time.NewTimer(b.config.StartTimeout)
	defer timer.Stop()

	select {
	case err := <-started:
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("start browser: %w", err)
		}
		return s, nil
	case <-timer.C:
		s.Close()
		<-started
		return nil, fmt.Errorf("start browser: timed out after %s", b.config.StartTimeout)
	case <-ctx.Done():
		s.Close()
		<-started
		return nil, fmt.Errorf("start browser: %w", ctx.Err())
	}
}

// ChromeSession is a single tab in a private browser process.
type ChromeSession struct {
	ctx    context.Context
	cancel context.CancelFunc
	guard  *NavigationGuard
	logger zerolog.Logger

	mu      sync.Mutex
	blocked error

	closeOnce sync.Once
}

func (s *ChromeSession) setBlocked(err error) {
	s.mu.Lock()
	s.blocked = err
	s.mu.Unlock()
}

func (s *ChromeSession) takeBlocked() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	err := s.blocked
	s.blocked = nil
	return err
}

// derive returns a tab context that honors the caller's deadline and
// cancellation.
func (s *ChromeSession) derive(ctx context.Context) (context.Context, func()) {
	runCtx, cancel := context.WithCancel(s.ctx)
	if deadline, ok := ctx.Deadline(); ok {
		var dcancel context.CancelFunc
		runCtx, dcancel = context.WithDeadline(runCtx, deadline)
		prev := cancel
		cancel = func() { dcancel(); prev() }
	}
	stop := context.AfterFunc(ctx, cancel)
	return runCtx, func() { stop(); cancel() }
}

func (s *ChromeSession) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, done := s.derive(ctx)
	defer done()

	err := chromedp.Run(runCtx, actions...)
	if err != nil && ctx.Err() != nil {
		return fmt.Errorf("%w: %v", ctx.Err(), err)
	}
	return err
}

func (s *ChromeSession) Navigate(ctx context.Context, target string) (*out.NavigationResult, error) {
	if err := s.guard.Check(ctx, target); err != nil {
		return nil, err
	}

	s.takeBlocked()
	runCtx, done := s.derive(ctx)
	resp, err := chromedp.RunResponse(runCtx, chromedp.Navigate(target))
	done()
	if err != nil {
		if blocked := s.takeBlocked(); blocked != nil {
			return nil, fmt.Errorf("navigate: %w", blocked)
		}
		if ctx.Err() != nil {
			return nil, fmt.Errorf("navigate: %w: %v", ctx.Err(), err)
		}
		return nil, fmt.Errorf("navigate: %w", err)
	}

	final, err := s.CurrentURL(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.guard.Check(ctx, final); err != nil {
		return nil, err
	}

	res := &out.NavigationResult{URL: final}
	if resp != nil {
		res.StatusCode = int(resp.Status)
	}
	return res, nil
}

func (s *ChromeSession) HTML(ctx context.Context) (string, error) {
	var html string
	if err := s.run(ctx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", fmt.Errorf("read page html: %w", err)
	}
	return html, nil
}

func (s *ChromeSession) Text(ctx context.Context) (string, error) {
	var text string
	err := s.run(ctx, chromedp.Evaluate(`document.body ? document.body.innerText : ""`, &text))
	if err != nil {
		return "", fmt.Errorf("read page text: %w", err)
	}
	return text, nil
}

func (s *ChromeSession) CurrentURL(ctx context.Context) (string, error) {
	var loc string
	if err := s.run(ctx, chromedp.Location(&loc)); err != nil {
		return "", fmt.Errorf("read location: %w", err)
	}
	return loc, nil
}

func (s *ChromeSession) Click(ctx context.Context, selector string) error {
	err := s.run(ctx,
		chromedp.Click(selector, chromedp.ByQuery, chromedp.NodeVisible),
		chromedp.Sleep(300*time.Millisecond),
		chromedp.WaitReady("body", chromedp.ByQuery),
	)
	if err != nil {
		return fmt.Errorf("click %s: %w", selector, err)
	}
	return s.checkLocation(ctx)
}

const setCheckedScript = `(function(sel, checked) {
	const el = document.querySelector(sel);
	if (!el) return false;
	if (el.checked !== checked) {
		el.checked = checked;
		el.dispatchEvent(new Event("input", {bubbles: true}));
		el.dispatchEvent(new Event("change", {bubbles: true}));
	}
	return true;
})(%s, %t)`

var errNoElement = errors.New("element not found")

func (s *ChromeSession) SetChecked(ctx context.Context, selector string, checked bool) error {
	sel, err := json.Marshal(selector)
	if err != nil {
		return err
	}

	var found bool
	if err := s.run(ctx, chromedp.Evaluate(fmt.Sprintf(setCheckedScript, sel, checked), &found)); err != nil {
		return fmt.Errorf("set checked %s: %w", selector, err)
	}
	if !found {
		return fmt.Errorf("set checked %s: %w", selector, errNoElement)
	}
	return nil
}

func (s *ChromeSession) Submit(ctx context.Context, formSelector string) error {
	err := s.run(ctx,
		chromedp.Submit(formSelector, chromedp.ByQuery),
		chromedp.Sleep(500*time.Millisecond),
		chromedp.WaitReady("body", chromedp.ByQuery),
	)
	if err != nil {
		return fmt.Errorf("submit %s: %w", formSelector, err)
	}
	return s.checkLocation(ctx)
}

// checkLocation stops the session on a page the guard refuses, e.g. after
// a form posted to an internal host.
func (s *ChromeSession) checkLocation(ctx context.Context) error {
	loc, err := s.CurrentURL(ctx)
	if err != nil {
		return err
	}
	if err := s.guard.Check(ctx, loc); err != nil {
		_ = s.run(ctx, chromedp.Navigate("about:blank"))
		return err
	}
	return nil
}

// onRequestPaused checks every document request, redirect hops included,
// against the guard before Chrome sends it.
func (s *ChromeSession) onRequestPaused(ev interface{}) {
	e, ok := ev.(*fetch.EventRequestPaused)
	if !ok {
		return
	}
	go func() {
		c := chromedp.FromContext(s.ctx)
		if c == nil || c.Target == nil {
			return
		}
		execCtx := cdp.WithExecutor(s.ctx, c.Target)

		checkCtx, cancel := context.WithTimeout(s.ctx, guardLookupTimeout)
		err := s.guard.Check(checkCtx, e.Request.URL)
		cancel()

		if err != nil {
			s.logger.Warn().Err(err).Msg("blocked browser request")
			s.setBlocked(err)
			_ = fetch.FailRequest(e.RequestID, network.ErrorReasonBlockedByClient).Do(execCtx)
			return
		}
		_ = fetch.ContinueRequest(e.RequestID).Do(execCtx)
	}()
}

func (s *ChromeSession) Close() error {
	s.closeOnce.Do(func() {
		s.cancel()
		s.logger.Debug().Msg("browser session closed")
	})
	return nil
}

var (
	_ out.Browser        = (*ChromeBrowser)(nil)
	_ out.BrowserSession = (*ChromeSession)(nil)
)
