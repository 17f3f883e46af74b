// Package ingest imports inbox messages: fetch, de-duplicate, classify,
// summarize, persist and archive, one message at a time.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"triage_server/core/domain"
	"triage_server/core/port/out"
	"triage_server/pkg/apperr"
	"triage_server/pkg/logger"
	"triage_server/pkg/metrics"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
)

const DefaultPageSize = 20

type Classifier interface {
	Classify(ctx context.Context, email string, candidates []*domain.Category) domain.ClassificationResult
}

type Summarizer interface {
	Summarize(ctx context.Context, email string) (*domain.Summary, error)
}

type Service struct {
	accounts   out.AccountRepository
	categories out.CategoryRepository
	emails     out.EmailRepository
	contents   out.EmailContentStore
	mailbox    out.MailboxProvider
	locker     out.SyncLocker
	classifier Classifier
	summarizer Summarizer
	pageSize   int
	now        func() time.Time
}

// Options carries the optional collaborators of the service.
type Options struct {
	// Contents stores full HTML and headers; nil disables it.
	Contents out.EmailContentStore
	// Locker prevents concurrent syncs of one account; nil disables it.
	Locker   out.SyncLocker
	PageSize int
}

func NewService(
	accounts out.AccountRepository,
	categories out.CategoryRepository,
	emails out.EmailRepository,
	mailbox out.MailboxProvider,
	classifier Classifier,
	summarizer Summarizer,
	opts Options,
) *Service {
	if opts.PageSize <= 0 {
		opts.PageSize = DefaultPageSize
	}
	return &Service{
		accounts:   accounts,
		categories: categories,
		emails:     emails,
		contents:   opts.Contents,
		mailbox:    mailbox,
		locker:     opts.Locker,
		classifier: classifier,
		summarizer: summarizer,
		pageSize:   opts.PageSize,
		now:        time.Now,
	}
}

// SyncAccount runs one ingestion pass over the account's inbox. Per-message
// failures are collected in the report; only account-level failures such as
// revoked credentials are returned as errors.
func (s *Service) SyncAccount(ctx context.Context, userID uuid.UUID, accountID int64) (*domain.BatchReport, error) {
	start := s.now()
	log := logger.WithContext(ctx).WithFields(map[string]any{
		"account_id": accountID,
		"user_id":    userID.String(),
	})

	account, err := s.accounts.GetByID(ctx, accountID)
	if errors.Is(err, out.ErrNotFound) || (err == nil && !account.OwnedBy(userID)) {
		return nil, apperr.NotFound("mailbox account")
	}
	if err != nil {
		return nil, apperr.DatabaseError("load account", err)
	}
	log = log.WithField("mailbox", logger.MaskEmail(account.Email))

	if s.locker != nil {
		release, ok, err := s.locker.Acquire(ctx, accountID)
		switch {
		case err != nil:
			log.WithError(err).Warn("sync lock unavailable, continuing without it")
		case !ok:
			return nil, apperr.Conflict("a sync is already running for this account")
		default:
			defer release()
		}
	}

	token := accountToken(account)

	refs, err := s.mailbox.ListRecentMessages(ctx, token, s.pageSize)
	if err != nil {
		return nil, providerFailure(err)
	}

	inbox, candidates, err := s.partitionCategories(ctx, account.UserID)
	if err != nil {
		return nil, apperr.DatabaseError("load categories", err)
	}

	ids := make([]string, len(refs))
	for i, ref := range refs {
		ids[i] = ref.ID
	}
	existing, err := s.emails.ExistingSourceIDs(ctx, accountID, ids)
	if err != nil {
		return nil, apperr.DatabaseError("check duplicates", err)
	}

	report := &domain.BatchReport{Errors: []string{}}
	for _, ref := range refs {
		if ctx.Err() != nil {
			report.Errors = append(report.Errors, "sync cancelled: "+ctx.Err().Error())
			break
		}
		if existing[ref.ID] {
			report.SkippedDuplicates++
			metrics.MessagesProcessed.WithLabelValues("skipped").Inc()
			continue
		}

		res, err := s.importMessage(ctx, account, token, ref.ID, inbox, candidates, report)
		if err != nil {
			if out.IsAuthError(err) {
				return nil, providerFailure(err)
			}
			report.Errors = append(report.Errors, fmt.Sprintf("%s: %v", ref.ID, err))
			metrics.MessagesProcessed.WithLabelValues("failed").Inc()
			log.WithError(err).WithField("message_id", ref.ID).Warn("message import failed")
			continue
		}
		switch res {
		case outcomeImported:
			report.Imported++
		case outcomeDuplicate:
			report.SkippedDuplicates++
		}
		metrics.MessagesProcessed.WithLabelValues(string(res)).Inc()
	}

	if err := s.accounts.UpdateLastSync(ctx, accountID, s.now()); err != nil {
		log.WithError(err).Warn("failed to update last sync time")
	}
	if report.Imported > 0 {
		if err := s.categories.RefreshCounts(ctx, account.UserID); err != nil {
			log.WithError(err).Warn("failed to refresh category counts")
		}
	}

	elapsed := s.now().Sub(start)
	metrics.SyncDuration.Observe(elapsed.Seconds())
	log.WithDuration(elapsed).Info("sync finished: imported=%d skipped=%d errors=%d",
		report.Imported, report.SkippedDuplicates, len(report.Errors))
	return report, nil
}

type outcome string

const (
	outcomeImported  outcome = "imported"
	outcomeDuplicate outcome = "skipped"
)

func (s *Service) importMessage(
	ctx context.Context,
	account *domain.MailboxAccount,
	token *oauth2.Token,
	messageID string,
	inbox *domain.Category,
	candidates []*domain.Category,
	report *domain.BatchReport,
) (outcome, error) {
	msg, err := s.mailbox.GetMessage(ctx, token, messageID)
	if err != nil {
		return "", fmt.Errorf("fetch: %w", err)
	}

	content := ExtractContent(msg)
	rec := &domain.EmailRecord{
		AccountID:            account.ID,
		UserID:               account.UserID,
		SourceMessageID:      msg.ID,
		Subject:              msg.Subject,
		Sender:               msg.From,
		ReceivedAt:           msg.ReceivedAt,
		Body:                 content.Text,
		ListUnsubscribe:      msg.Header("List-Unsubscribe"),
		ListUnsubscribePost:  msg.Header("List-Unsubscribe-Post"),
		ClassificationMethod: domain.ClassifiedByNone,
		Actions:              []string{},
	}
	if rec.ReceivedAt.IsZero() {
		rec.ReceivedAt = s.now()
	}

	if len(candidates) == 0 {
		rec.CategoryID = &inbox.ID
		rec.Summary = domain.FallbackSummary(rec.Sender, rec.Subject)
	} else {
		s.classifyAndSummarize(ctx, rec, content, inbox, candidates, report)
	}

	if err := s.emails.Create(ctx, rec); err != nil {
		if errors.Is(err, out.ErrDuplicate) {
			return outcomeDuplicate, nil
		}
		return "", fmt.Errorf("persist: %w", err)
	}

	if s.contents != nil {
		if err := s.contents.SaveContent(ctx, &domain.EmailContent{
			EmailID:             rec.ID,
			AccountID:           rec.AccountID,
			SourceMessageID:     rec.SourceMessageID,
			HTML:                content.HTML,
			Text:                content.Text,
			Headers:             msg.Headers,
			ListUnsubscribe:     rec.ListUnsubscribe,
			ListUnsubscribePost: rec.ListUnsubscribePost,
			StoredAt:            s.now(),
		}); err != nil {
			report.Warnings = append(report.Warnings, fmt.Sprintf("%s: content not stored: %v", msg.ID, err))
		}
	}

	if err := s.mailbox.ArchiveMessage(ctx, token, msg.ID); err != nil {
		logger.WithContext(ctx).WithError(err).WithField("message_id", msg.ID).Warn("archive failed, message stays in inbox")
		report.Warnings = append(report.Warnings, fmt.Sprintf("%s: archive failed: %v", msg.ID, err))
	} else if err := s.emails.MarkArchived(ctx, rec.ID); err != nil {
		logger.WithContext(ctx).WithError(err).Warn("failed to mark email %d archived", rec.ID)
	}

	return outcomeImported, nil
}

func (s *Service) classifyAndSummarize(
	ctx context.Context,
	rec *domain.EmailRecord,
	content Content,
	inbox *domain.Category,
	candidates []*domain.Category,
	report *domain.BatchReport,
) {
	text := ComposeEmailText(rec.Sender, rec.Subject, content.Text)

	result := s.classifier.Classify(ctx, text, candidates)
	rec.ClassificationMethod = result.Method
	rec.CategoryID = result.CategoryID
	if rec.CategoryID == nil {
		rec.CategoryID = &inbox.ID
		report.Warnings = append(report.Warnings, fmt.Sprintf("%s: classification fallback to %s", rec.SourceMessageID, inbox.Name))
	}

	summary, err := s.summarizer.Summarize(ctx, text)
	if err != nil {
		rec.Summary = domain.FallbackSummary(rec.Sender, rec.Subject)
		report.Warnings = append(report.Warnings, fmt.Sprintf("%s: summary fallback: %v", rec.SourceMessageID, err))
		return
	}
	rec.Summary = summary.Text
	rec.Actions = summary.Actions
}

func (s *Service) partitionCategories(ctx context.Context, userID uuid.UUID) (*domain.Category, []*domain.Category, error) {
	all, err := s.categories.ListByUser(ctx, userID)
	if err != nil {
		return nil, nil, err
	}
	inbox, candidates := domain.SplitInbox(all)
	if inbox == nil {
		if inbox, err = s.categories.EnsureInbox(ctx, userID); err != nil {
			return nil, nil, err
		}
	}
	return inbox, candidates, nil
}

func accountToken(a *domain.MailboxAccount) *oauth2.Token {
	return &oauth2.Token{
		AccessToken:  a.AccessToken,
		RefreshToken: a.RefreshToken,
		TokenType:    "Bearer",
		Expiry:       a.ExpiresAt,
	}
}

func providerFailure(err error) error {
	if out.IsAuthError(err) {
		return apperr.TokenExpired("gmail", err)
	}
	var pe *out.ProviderError
	if errors.As(err, &pe) && pe.Code == out.ProviderErrRateLimit {
		return apperr.New("RATE_LIMITED", "mailbox provider rate limit reached", 429).WithError(err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return apperr.Timeout("mailbox fetch")
	}
	return apperr.ExternalError("gmail", err)
}

// ComposeEmailText is the text handed to the classifier and summarizer.
func ComposeEmailText(sender, subject, body string) string {
	var b strings.Builder
	b.WriteString("From: ")
	b.WriteString(sender)
	b.WriteString("\nSubject: ")
	b.WriteString(subject)
	if body = strings.TrimSpace(body); body != "" {
		b.WriteString("\n\n")
		b.WriteString(body)
	}
	return b.String()
}
