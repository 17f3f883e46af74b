package ingest

import (
	"context"
	"errors"
	"sync"
	"time"

	"triage_server/core/domain"
	"triage_server/core/port/out"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
)

type fakeAccounts struct {
	accounts map[int64]*domain.MailboxAccount
	lastSync map[int64]time.Time
}

func (f *fakeAccounts) GetByID(_ context.Context, id int64) (*domain.MailboxAccount, error) {
	a, ok := f.accounts[id]
	if !ok {
		return nil, out.ErrNotFound
	}
	return a, nil
}

func (f *fakeAccounts) UpdateLastSync(_ context.Context, id int64, at time.Time) error {
	f.lastSync[id] = at
	return nil
}

type fakeCategories struct {
	list         []*domain.Category
	ensureCalls  int
	refreshCalls int
}

func (f *fakeCategories) GetByID(_ context.Context, id int64) (*domain.Category, error) {
	for _, c := range f.list {
		if c.ID == id {
			return c, nil
		}
	}
	return nil, out.ErrNotFound
}

func (f *fakeCategories) ListByUser(context.Context, uuid.UUID) ([]*domain.Category, error) {
	return f.list, nil
}

func (f *fakeCategories) EnsureInbox(_ context.Context, userID uuid.UUID) (*domain.Category, error) {
	f.ensureCalls++
	inbox := &domain.Category{ID: 1, UserID: userID, Name: domain.InboxCategoryName}
	f.list = append(f.list, inbox)
	return inbox, nil
}

func (f *fakeCategories) RefreshCounts(context.Context, uuid.UUID) error {
	f.refreshCalls++
	return nil
}

type fakeEmails struct {
	mu       sync.Mutex
	nextID   int64
	records  map[string]*domain.EmailRecord
	failFor  map[string]bool
	archived map[int64]bool
}

func newFakeEmails() *fakeEmails {
	return &fakeEmails{
		nextID:   100,
		records:  map[string]*domain.EmailRecord{},
		failFor:  map[string]bool{},
		archived: map[int64]bool{},
	}
}

func (f *fakeEmails) ExistingSourceIDs(_ context.Context, _ int64, ids []string) (map[string]bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	found := map[string]bool{}
	for _, id := range ids {
		if _, ok := f.records[id]; ok {
			found[id] = true
		}
	}
	return found, nil
}

func (f *fakeEmails) Create(_ context.Context, rec *domain.EmailRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failFor[rec.SourceMessageID] {
		return errors.New("write failed")
	}
	if _, ok := f.records[rec.SourceMessageID]; ok {
		return out.ErrDuplicate
	}
	f.nextID++
	rec.ID = f.nextID
	f.records[rec.SourceMessageID] = rec
	return nil
}

func (f *fakeEmails) GetByID(_ context.Context, id int64) (*domain.EmailRecord, error) {
	for _, r := range f.records {
		if r.ID == id {
			return r, nil
		}
	}
	return nil, out.ErrNotFound
}

func (f *fakeEmails) MarkArchived(_ context.Context, id int64) error {
	f.archived[id] = true
	return nil
}

type fakeContents struct {
	saved map[int64]*domain.EmailContent
}

func (f *fakeContents) SaveContent(_ context.Context, c *domain.EmailContent) error {
	f.saved[c.EmailID] = c
	return nil
}

func (f *fakeContents) GetContent(_ context.Context, id int64) (*domain.EmailContent, error) {
	return f.saved[id], nil
}

type fakeMailbox struct {
	messages   []*out.ProviderMessage
	listErr    error
	getErr     map[string]error
	archiveErr error
	gets       []string
	archives   []string
}

func (f *fakeMailbox) ListRecentMessages(_ context.Context, _ *oauth2.Token, pageSize int) ([]out.ProviderMessageRef, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	var refs []out.ProviderMessageRef
	for i, m := range f.messages {
		if i >= pageSize {
			break
		}
		refs = append(refs, out.ProviderMessageRef{ID: m.ID})
	}
	return refs, nil
}

func (f *fakeMailbox) GetMessage(_ context.Context, _ *oauth2.Token, id string) (*out.ProviderMessage, error) {
	f.gets = append(f.gets, id)
	if err := f.getErr[id]; err != nil {
		return nil, err
	}
	for _, m := range f.messages {
		if m.ID == id {
			return m, nil
		}
	}
	return nil, errors.New("missing")
}

func (f *fakeMailbox) ArchiveMessage(_ context.Context, _ *oauth2.Token, id string) error {
	f.archives = append(f.archives, id)
	return f.archiveErr
}

type fakeClassifier struct {
	result domain.ClassificationResult
	calls  int
}

func (f *fakeClassifier) Classify(context.Context, string, []*domain.Category) domain.ClassificationResult {
	f.calls++
	return f.result
}

type fakeSummarizer struct {
	err   error
	calls int
}

func (f *fakeSummarizer) Summarize(_ context.Context, email string) (*domain.Summary, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &domain.Summary{Text: "AI summary", Actions: []string{"Reply"}}, nil
}

type fakeLocker struct {
	held bool
}

func (f *fakeLocker) Acquire(context.Context, int64) (func(), bool, error) {
	if f.held {
		return nil, false, nil
	}
	f.held = true
	return func() { f.held = false }, true, nil
}
