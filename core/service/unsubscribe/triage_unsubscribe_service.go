// Package unsubscribe drives unsubscribe flows for imported emails: link
// discovery, an optional RFC 8058 one-click POST, and a headless browser
// session per email that tries each interaction strategy in turn.
package unsubscribe

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"triage_server/core/domain"
	"triage_server/core/port/in"
	"triage_server/core/port/out"
	"triage_server/core/service/linkextract"
	"triage_server/pkg/apperr"
	"triage_server/pkg/logger"
	"triage_server/pkg/metrics"
	"triage_server/pkg/resilience"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	DefaultPageTimeout   = 30 * time.Second
	DefaultActionTimeout = 5 * time.Second
)

// Config bounds the browser work done for one email.
type Config struct {
	PageTimeout   time.Duration
	ActionTimeout time.Duration
	// Navigation is the retry policy for the initial page load.
	Navigation resilience.RetryConfig
}

func DefaultConfig() Config {
	return Config{
		PageTimeout:   DefaultPageTimeout,
		ActionTimeout: DefaultActionTimeout,
		Navigation:    resilience.NavigationRetryConfig(),
	}
}

// Options carries the optional collaborators.
type Options struct {
	Contents   out.EmailContentStore
	OneClick   out.OneClickUnsubscriber
	Strategies []Strategy
	Config     Config
	Logger     zerolog.Logger
}

type Service struct {
	emails     out.EmailRepository
	accounts   out.AccountRepository
	categories out.CategoryRepository
	contents   out.EmailContentStore
	attempts   out.UnsubscribeAttemptRepository
	browser    out.Browser
	oneClick   out.OneClickUnsubscriber
	strategies []Strategy
	cfg        Config
	log        zerolog.Logger
	now        func() time.Time
}

func NewService(
	emails out.EmailRepository,
	accounts out.AccountRepository,
	categories out.CategoryRepository,
	attempts out.UnsubscribeAttemptRepository,
	browser out.Browser,
	opts Options,
) *Service {
	cfg := opts.Config
	if cfg.PageTimeout <= 0 {
		cfg.PageTimeout = DefaultPageTimeout
	}
	if cfg.ActionTimeout <= 0 {
		cfg.ActionTimeout = DefaultActionTimeout
	}
	if cfg.Navigation.MaxAttempts <= 0 {
		cfg.Navigation = resilience.NavigationRetryConfig()
	}
	cfg.Navigation.ShouldRetry = isRetryableNavigation

	strategies := opts.Strategies
	if len(strategies) == 0 {
		strategies = DefaultStrategies()
	}

	return &Service{
		emails:     emails,
		accounts:   accounts,
		categories: categories,
		contents:   opts.Contents,
		attempts:   attempts,
		browser:    browser,
		oneClick:   opts.OneClick,
		strategies: strategies,
		cfg:        cfg,
		log:        opts.Logger.With().Str("component", "unsubscribe").Logger(),
		now:        time.Now,
	}
}

// UnsubscribeBatch processes the emails one after another, each in its own
// browser session. Per-email failures are reported in the result; only an
// empty request is an error.
func (s *Service) UnsubscribeBatch(ctx context.Context, userID uuid.UUID, emailIDs []int64) (*domain.UnsubscribeBatchResult, error) {
	if len(emailIDs) == 0 {
		return nil, apperr.BadRequest("email_ids must be a non-empty array")
	}

	result := &domain.UnsubscribeBatchResult{Details: make([]domain.UnsubscribeDetail, 0, len(emailIDs))}
	seen := make(map[int64]bool, len(emailIDs))
	for _, id := range emailIDs {
		if seen[id] {
			continue
		}
		seen[id] = true

		var detail domain.UnsubscribeDetail
		if ctx.Err() != nil {
			detail = domain.UnsubscribeDetail{EmailID: id, Status: domain.UnsubscribeFailed, Message: "request cancelled"}
		} else {
			detail = s.unsubscribeOne(ctx, userID, id)
		}
		result.Add(detail)
		metrics.UnsubscribeOutcomes.WithLabelValues(string(detail.Status), string(detail.Method)).Inc()
	}

	s.log.Info().
		Str("user_id", userID.String()).
		Int("total", result.Total).
		Int("successful", result.Successful).
		Int("failed", result.Failed).
		Int("no_link", result.NoLink).
		Msg("unsubscribe batch finished")
	return result, nil
}

// PreviewLinks reports the candidates for one email without acting on them.
func (s *Service) PreviewLinks(ctx context.Context, userID uuid.UUID, emailID int64) (*in.LinkPreview, error) {
	rec, err := s.emails.GetByID(ctx, emailID)
	if errors.Is(err, out.ErrNotFound) {
		return nil, apperr.NotFound("email")
	}
	if err != nil {
		return nil, apperr.DatabaseError("load email", err)
	}
	if err := s.checkOwner(ctx, userID, rec); err != nil {
		return nil, apperr.NotFound("email")
	}

	found, _ := s.findLink(ctx, rec)
	preview := &in.LinkPreview{
		EmailID:    emailID,
		Selected:   found.Selected,
		Candidates: found.Candidates,
		Rejected:   found.Rejected,
	}
	if preview.Candidates == nil {
		preview.Candidates = []domain.LinkCandidate{}
	}
	return preview, nil
}

func (s *Service) unsubscribeOne(ctx context.Context, userID uuid.UUID, emailID int64) domain.UnsubscribeDetail {
	detail := domain.UnsubscribeDetail{EmailID: emailID, Status: domain.UnsubscribeFailed}
	log := s.log.With().Int64("email_id", emailID).Logger()

	rec, err := s.emails.GetByID(ctx, emailID)
	if err != nil {
		if errors.Is(err, out.ErrNotFound) {
			detail.Message = "email not found"
		} else {
			log.Error().Err(err).Msg("failed to load email")
			detail.Message = "could not load email"
		}
		return detail
	}
	if err := s.checkOwner(ctx, userID, rec); err != nil {
		log.Warn().Err(err).Msg("ownership check failed")
		detail.Message = "email not found"
		return detail
	}

	found, postHeader := s.findLink(ctx, rec)
	if found.Selected == nil {
		detail.Status = domain.UnsubscribeNoLink
		detail.Method = domain.LinkSourceNone
		detail.Message = "no unsubscribe link found"
		if found.Status() == linkextract.StatusInvalid {
			detail.Message = "only unsafe unsubscribe links found"
		}
		s.recordNoLink(ctx, rec.ID, found)
		return detail
	}

	target := *found.Selected
	detail.Link = target.URL
	detail.Method = target.Source

	attempt := &domain.UnsubscribeAttempt{
		EmailID: rec.ID,
		Method:  target.Source,
		Link:    target.URL,
		Status:  domain.AttemptPending,
		Details: map[string]any{
			"candidates": len(found.Candidates),
			"rejected":   len(found.Rejected),
		},
		CreatedAt: s.now(),
	}
	recorded := true
	if err := s.attempts.Create(ctx, attempt); err != nil {
		recorded = false
		log.Warn().Err(err).Msg("failed to record pending attempt")
	}

	var res outcome
	if s.oneClickEligible(target, postHeader) {
		res = s.tryOneClick(ctx, target.URL)
		if res.status == domain.UnsubscribeSuccess {
			detail.Method = domain.LinkSourceOneClick
			attempt.Method = domain.LinkSourceOneClick
		} else {
			attempt.Details["one_click"] = res.message
			log.Info().Str("reason", res.message).Msg("one-click failed, falling back to browser")
		}
	}
	if res.status != domain.UnsubscribeSuccess {
		res = s.runBrowser(ctx, target.URL)
	}

	detail.Status = res.status
	detail.Message = res.message

	for k, v := range res.details {
		attempt.Details[k] = v
	}
	attempt.Status = domain.AttemptFailed
	if res.status == domain.UnsubscribeSuccess {
		attempt.Status = domain.AttemptSuccess
	} else {
		attempt.ErrorMessage = res.message
	}
	attempt.UpdatedAt = s.now()
	// No pending row exists after a failed Create.
	persist := s.attempts.Update
	if !recorded {
		persist = s.attempts.Create
	}
	if err := persist(context.WithoutCancel(ctx), attempt); err != nil {
		log.Warn().Err(err).Msg("failed to record attempt outcome")
	}

	log.Info().
		Str("status", string(res.status)).
		Str("method", string(detail.Method)).
		Str("link", logger.MaskURL(target.URL)).
		Msg(res.message)
	return detail
}

// checkOwner walks the account and category of the record.
func (s *Service) checkOwner(ctx context.Context, userID uuid.UUID, rec *domain.EmailRecord) error {
	account, err := s.accounts.GetByID(ctx, rec.AccountID)
	if err != nil {
		return fmt.Errorf("load account %d: %w", rec.AccountID, err)
	}
	if !account.OwnedBy(userID) {
		return fmt.Errorf("account %d belongs to another user", rec.AccountID)
	}
	if rec.CategoryID != nil {
		cat, err := s.categories.GetByID(ctx, *rec.CategoryID)
		if err != nil {
			return fmt.Errorf("load category %d: %w", *rec.CategoryID, err)
		}
		if cat.UserID != userID {
			return fmt.Errorf("category %d belongs to another user", cat.ID)
		}
	}
	return nil
}

// findLink runs the extractor over the stored content, falling back to
// the record's snapshot when no content was stored.
func (s *Service) findLink(ctx context.Context, rec *domain.EmailRecord) (linkextract.Result, string) {
	input := linkextract.Input{ListUnsubscribe: rec.ListUnsubscribe, Text: rec.Body}
	postHeader := rec.ListUnsubscribePost

	if s.contents != nil {
		content, err := s.contents.GetContent(ctx, rec.ID)
		if err != nil {
			s.log.Warn().Err(err).Int64("email_id", rec.ID).Msg("stored content unavailable")
		}
		if content != nil {
			input.HTML = content.HTML
			if content.Text != "" {
				input.Text = content.Text
			}
			if content.ListUnsubscribe != "" {
				input.ListUnsubscribe = content.ListUnsubscribe
			}
			if content.ListUnsubscribePost != "" {
				postHeader = content.ListUnsubscribePost
			}
		}
	}
	return linkextract.Extract(input), postHeader
}

func (s *Service) recordNoLink(ctx context.Context, emailID int64, found linkextract.Result) {
	rejected := make([]string, 0, len(found.Rejected))
	for _, r := range found.Rejected {
		rejected = append(rejected, r.Reason)
	}
	now := s.now()
	attempt := &domain.UnsubscribeAttempt{
		EmailID:      emailID,
		Method:       domain.LinkSourceNone,
		Status:       domain.AttemptFailed,
		ErrorMessage: "no unsubscribe link found",
		Details: map[string]any{
			"outcome":  string(domain.UnsubscribeNoLink),
			"rejected": rejected,
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.attempts.Create(ctx, attempt); err != nil {
		s.log.Warn().Err(err).Int64("email_id", emailID).Msg("failed to record no-link attempt")
	}
}

func (s *Service) oneClickEligible(target domain.LinkCandidate, postHeader string) bool {
	if s.oneClick == nil || target.Source != domain.LinkSourceHeader {
		return false
	}
	if !strings.Contains(strings.ToLower(postHeader), "one-click") {
		return false
	}
	u, err := url.Parse(target.URL)
	return err == nil && u.Scheme == "https"
}

type outcome struct {
	status  domain.UnsubscribeStatus
	message string
	details map[string]any
}

func failed(message string, details map[string]any) outcome {
	return outcome{status: domain.UnsubscribeFailed, message: message, details: details}
}

func (s *Service) tryOneClick(ctx context.Context, link string) outcome {
	pctx, cancel := context.WithTimeout(ctx, s.cfg.PageTimeout)
	defer cancel()

	status, err := s.oneClick.PostOneClick(pctx, link)
	details := map[string]any{"strategy": "one_click", "http_status": status}
	switch {
	case err != nil:
		return failed("one-click request failed: "+err.Error(), details)
	case status >= 200 && status < 300:
		return outcome{status: domain.UnsubscribeSuccess, message: "unsubscribed via one-click request", details: details}
	default:
		return failed(fmt.Sprintf("one-click request returned HTTP %d", status), details)
	}
}

// runBrowser opens a fresh session, loads the target with retries, applies
// the first matching strategy and reads the resulting page.
func (s *Service) runBrowser(ctx context.Context, link string) outcome {
	details := map[string]any{}

	session, err := s.browser.NewSession(ctx)
	if err != nil {
		return failed("could not start browser: "+err.Error(), details)
	}
	defer func() {
		if err := session.Close(); err != nil {
			s.log.Warn().Err(err).Msg("browser session close failed")
		}
	}()

	nav, err := s.navigate(ctx, session, link)
	if err != nil {
		if ctx.Err() != nil {
			return failed("request cancelled", details)
		}
		return failed("navigation failed: "+err.Error(), details)
	}
	details["landing_url"] = logger.MaskURL(nav.URL)
	details["http_status"] = nav.StatusCode

	page, err := loadPage(ctx, session, s.cfg.ActionTimeout)
	if err != nil {
		return failed(err.Error(), details)
	}

	var act *Action
	for _, st := range s.strategies {
		act, err = st.Try(ctx, page)
		if err != nil {
			details["strategy"] = st.Name()
			return failed("interaction failed: "+err.Error(), details)
		}
		if act != nil {
			break
		}
	}

	if act == nil {
		verdict := s.readVerdict(ctx, session)
		if verdict.State == PageUnknown {
			return failed("could not find interactive element", details)
		}
		details["strategy"] = "landing_page"
		details["matched"] = verdict.Matched
		return verdictOutcome(verdict, "landing page", details)
	}

	details["strategy"] = act.Strategy
	details["selector"] = act.Selector
	details["action"] = act.Detail
	if u, err := s.currentURL(ctx, session); err == nil {
		details["final_url"] = logger.MaskURL(u)
	}

	verdict := s.readVerdict(ctx, session)
	if verdict.State == PageUnknown {
		return failed("could not confirm success", details)
	}
	details["matched"] = verdict.Matched
	return verdictOutcome(verdict, act.Strategy+" strategy", details)
}

func verdictOutcome(v PageVerdict, via string, details map[string]any) outcome {
	if v.State == PageAlreadyDone {
		return outcome{status: domain.UnsubscribeSuccess, message: "already unsubscribed (" + via + ")", details: details}
	}
	return outcome{status: domain.UnsubscribeSuccess, message: "unsubscribed via " + via, details: details}
}

// navigate retries network errors and 5xx responses; 4xx and blocked
// targets fail at once.
func (s *Service) navigate(ctx context.Context, session out.BrowserSession, link string) (*out.NavigationResult, error) {
	var res *out.NavigationResult
	cfg := s.cfg.Navigation
	cfg.OnRetry = func(attempt int, delay time.Duration, err error) {
		s.log.Debug().Err(err).Int("attempt", attempt).Dur("backoff", delay).Msg("retrying navigation")
	}

	err := resilience.Retry(ctx, cfg, func(int) error {
		nctx, cancel := context.WithTimeout(ctx, s.cfg.PageTimeout)
		defer cancel()

		r, err := session.Navigate(nctx, link)
		if err != nil {
			metrics.BrowserNavigations.WithLabelValues("error").Inc()
			if errors.Is(err, out.ErrBlockedURL) {
				return resilience.Permanent(err)
			}
			return err
		}
		if r.StatusCode >= 400 {
			metrics.BrowserNavigations.WithLabelValues("http_error").Inc()
			return &httpStatusError{code: r.StatusCode}
		}
		metrics.BrowserNavigations.WithLabelValues("ok").Inc()
		res = r
		return nil
	})
	return res, err
}

type httpStatusError struct{ code int }

func (e *httpStatusError) Error() string { return fmt.Sprintf("HTTP %d", e.code) }

func isRetryableNavigation(err error) bool {
	var se *httpStatusError
	if errors.As(err, &se) {
		return se.code >= 500
	}
	return resilience.IsRetryableError(err)
}

func (s *Service) readVerdict(ctx context.Context, session out.BrowserSession) PageVerdict {
	actx, cancel := context.WithTimeout(ctx, s.cfg.ActionTimeout)
	defer cancel()
	text, err := session.Text(actx)
	if err != nil {
		s.log.Debug().Err(err).Msg("could not read page text")
		return PageVerdict{State: PageUnknown}
	}
	return DetectPageState(text)
}

func (s *Service) currentURL(ctx context.Context, session out.BrowserSession) (string, error) {
	actx, cancel := context.WithTimeout(ctx, s.cfg.ActionTimeout)
	defer cancel()
	return session.CurrentURL(actx)
}
