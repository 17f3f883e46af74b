package unsubscribe

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"triage_server/core/domain"
	"triage_server/core/port/out"

	"github.com/PuerkitoBio/goquery"
	"github.com/google/uuid"
)

type sitePage struct {
	status int
	html   string
}

type fakeBrowser struct {
	mu       sync.Mutex
	pages    map[string]sitePage
	// actions maps a selector passed to Click or Submit to the document
	// shown afterwards.
	actions  map[string]string
	navErrs  map[string]error
	navCalls map[string]int
	sessions []*fakeSession
}

func newFakeBrowser() *fakeBrowser {
	return &fakeBrowser{
		pages:    map[string]sitePage{},
		actions:  map[string]string{},
		navErrs:  map[string]error{},
		navCalls: map[string]int{},
	}
}

func (b *fakeBrowser) NewSession(context.Context) (out.BrowserSession, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	s := &fakeSession{browser: b, checked: map[string]bool{}}
	b.sessions = append(b.sessions, s)
	return s, nil
}

type fakeSession struct {
	browser *fakeBrowser
	url     string
	page    sitePage
	clicks  []string
	submits []string
	checked map[string]bool
	closed  bool
}

func (s *fakeSession) Navigate(_ context.Context, url string) (*out.NavigationResult, error) {
	b := s.browser
	b.mu.Lock()
	b.navCalls[url]++
	err := b.navErrs[url]
	page, ok := b.pages[url]
	b.mu.Unlock()
	if err != nil {
		return nil, err
	}
	if !ok {
		page = sitePage{status: 404, html: "<html><body>Not Found</body></html>"}
	}
	s.url, s.page = url, page
	status := page.status
	if status == 0 {
		status = 200
	}
	return &out.NavigationResult{URL: url, StatusCode: status}, nil
}

func (s *fakeSession) HTML(context.Context) (string, error) { return s.page.html, nil }

func (s *fakeSession) Text(context.Context) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s.page.html))
	if err != nil {
		return "", err
	}
	return strings.Join(strings.Fields(doc.Find("body").Text()), " "), nil
}

func (s *fakeSession) CurrentURL(context.Context) (string, error) { return s.url, nil }

func (s *fakeSession) Click(_ context.Context, selector string) error {
	s.clicks = append(s.clicks, selector)
	return s.transition(selector)
}

func (s *fakeSession) SetChecked(_ context.Context, selector string, checked bool) error {
	s.checked[selector] = checked
	return nil
}

func (s *fakeSession) Submit(_ context.Context, formSelector string) error {
	s.submits = append(s.submits, formSelector)
	return s.transition(formSelector)
}

func (s *fakeSession) transition(selector string) error {
	s.browser.mu.Lock()
	next, ok := s.browser.actions[selector]
	s.browser.mu.Unlock()
	if !ok {
		return nil
	}
	s.page = sitePage{status: 200, html: next}
	return nil
}

func (s *fakeSession) Close() error {
	s.closed = true
	return nil
}

type fakeOneClick struct {
	status int
	err    error
	calls  []string
}

func (f *fakeOneClick) PostOneClick(_ context.Context, url string) (int, error) {
	f.calls = append(f.calls, url)
	return f.status, f.err
}

type store struct {
	emails     map[int64]*domain.EmailRecord
	contents   map[int64]*domain.EmailContent
	accounts   map[int64]*domain.MailboxAccount
	categories map[int64]*domain.Category
	attempts   []*domain.UnsubscribeAttempt
	nextID     int64

	failCreates int
	updates     int
}

func newStore(owner uuid.UUID) *store {
	return &store{
		emails:     map[int64]*domain.EmailRecord{},
		contents:   map[int64]*domain.EmailContent{},
		accounts:   map[int64]*domain.MailboxAccount{1: {ID: 1, UserID: owner}},
		categories: map[int64]*domain.Category{},
	}
}

func (s *store) addEmail(rec *domain.EmailRecord, content *domain.EmailContent) {
	if rec.AccountID == 0 {
		rec.AccountID = 1
	}
	s.emails[rec.ID] = rec
	if content != nil {
		content.EmailID = rec.ID
		s.contents[rec.ID] = content
	}
}

func (s *store) attemptsFor(emailID int64) []*domain.UnsubscribeAttempt {
	var found []*domain.UnsubscribeAttempt
	for _, a := range s.attempts {
		if a.EmailID == emailID {
			found = append(found, a)
		}
	}
	return found
}

type emailRepo struct{ *store }

func (r emailRepo) ExistingSourceIDs(context.Context, int64, []string) (map[string]bool, error) {
	return map[string]bool{}, nil
}
func (r emailRepo) Create(context.Context, *domain.EmailRecord) error { return errors.New("unused") }
func (r emailRepo) GetByID(_ context.Context, id int64) (*domain.EmailRecord, error) {
	if rec, ok := r.emails[id]; ok {
		return rec, nil
	}
	return nil, out.ErrNotFound
}
func (r emailRepo) MarkArchived(context.Context, int64) error { return nil }

type accountRepo struct{ *store }

func (r accountRepo) GetByID(_ context.Context, id int64) (*domain.MailboxAccount, error) {
	if a, ok := r.accounts[id]; ok {
		return a, nil
	}
	return nil, out.ErrNotFound
}
func (r accountRepo) UpdateLastSync(context.Context, int64, time.Time) error { return nil }

type categoryRepo struct{ *store }

func (r categoryRepo) GetByID(_ context.Context, id int64) (*domain.Category, error) {
	if c, ok := r.categories[id]; ok {
		return c, nil
	}
	return nil, out.ErrNotFound
}
func (r categoryRepo) ListByUser(context.Context, uuid.UUID) ([]*domain.Category, error) {
	return nil, nil
}
func (r categoryRepo) EnsureInbox(context.Context, uuid.UUID) (*domain.Category, error) {
	return nil, errors.New("unused")
}
func (r categoryRepo) RefreshCounts(context.Context, uuid.UUID) error { return nil }

type contentStore struct{ *store }

func (r contentStore) SaveContent(context.Context, *domain.EmailContent) error { return nil }
func (r contentStore) GetContent(_ context.Context, id int64) (*domain.EmailContent, error) {
	return r.contents[id], nil
}

type attemptRepo struct{ *store }

func (r attemptRepo) Create(_ context.Context, a *domain.UnsubscribeAttempt) error {
	if r.failCreates > 0 {
		r.failCreates--
		return errors.New("insert failed")
	}
	r.nextID++
	a.ID = r.nextID
	r.attempts = append(r.attempts, a)
	return nil
}

func (r attemptRepo) Update(_ context.Context, a *domain.UnsubscribeAttempt) error {
	r.updates++
	for i, existing := range r.attempts {
		if existing.ID == a.ID {
			r.attempts[i] = a
			return nil
		}
	}
	return out.ErrNotFound
}
