package web

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"testing/fstest"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/inboxowl/inboxowl/internal/analysis"
	"github.com/inboxowl/inboxowl/internal/cache"
	"github.com/inboxowl/inboxowl/internal/config"
	"github.com/inboxowl/inboxowl/internal/database"
	"github.com/inboxowl/inboxowl/internal/gmail"
	"github.com/inboxowl/inboxowl/internal/pipeline"
	"github.com/inboxowl/inboxowl/internal/rules"
)

// memStore is an in-memory stand-in for the PostgreSQL store.
type memStore struct {
	mu          sync.Mutex
	nextID      int64
	users       map[int64]*database.User
	categories  map[int64]*database.Category
	rules       []*database.Rule
	emails      map[int64]*database.Email
	analyses    map[int64]*database.EmailAnalysis
	ruleLinks   map[int64]int64
	manualLinks map[int64][]int64
}

func newMemStore() *memStore {
	return &memStore{
		users:       map[int64]*database.User{1: {ID: 1, Email: "owl@example.com", AccessToken: "tok"}},
		categories:  make(map[int64]*database.Category),
		emails:      make(map[int64]*database.Email),
		analyses:    make(map[int64]*database.EmailAnalysis),
		ruleLinks:   make(map[int64]int64),
		manualLinks: make(map[int64][]int64),
		nextID:      100,
	}
}

func (m *memStore) id() int64 {
	m.nextID++
	return m.nextID
}

func (m *memStore) UpsertUser(ctx context.Context, email, googleID, name string, token *oauth2.Token) (*database.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u := &database.User{ID: m.id(), Email: email, GoogleID: googleID, Name: name}
	m.users[u.ID] = u
	return u, nil
}

func (m *memStore) GetUserByID(ctx context.Context, userID int64) (*database.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return nil, database.ErrNotFound
	}
	return u, nil
}

func (m *memStore) UpdateUserToken(ctx context.Context, userID int64, token *oauth2.Token) error {
	return nil
}

func (m *memStore) ListCategories(ctx context.Context, userID int64) ([]*database.Category, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*database.Category
	for _, c := range m.categories {
		if c.UserID == userID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *memStore) CreateCategory(ctx context.Context, category *database.Category) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.categories {
		if c.UserID == category.UserID && c.Name == category.Name {
			return database.ErrConflict
		}
	}
	category.ID = m.id()
	m.categories[category.ID] = category
	return nil
}

func (m *memStore) UpdateCategory(ctx context.Context, category *database.Category) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.categories[category.ID]
	if !ok || existing.UserID != category.UserID {
		return database.ErrNotFound
	}
	m.categories[category.ID] = category
	return nil
}

func (m *memStore) DeleteCategory(ctx context.Context, userID, categoryID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.categories[categoryID]
	if !ok || existing.UserID != userID {
		return database.ErrNotFound
	}
	delete(m.categories, categoryID)
	return nil
}

func (m *memStore) AddEmailsToCategory(ctx context.Context, userID, categoryID int64, emailIDs []int64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.categories[categoryID]; !ok {
		return 0, database.ErrNotFound
	}
	added := 0
	for _, id := range emailIDs {
		e, ok := m.emails[id]
		if !ok || e.UserID != userID {
			continue
		}
		linked := false
		for _, c := range m.manualLinks[id] {
			linked = linked || c == categoryID
		}
		if !linked {
			m.manualLinks[id] = append(m.manualLinks[id], categoryID)
		}
		added++
	}
	return added, nil
}

func (m *memStore) ListRules(ctx context.Context, userID int64) ([]*database.Rule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*database.Rule(nil), m.rules...), nil
}

func (m *memStore) CreateRule(ctx context.Context, rule *database.Rule) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	category, ok := m.categories[rule.CategoryID]
	if !ok || category.UserID != rule.UserID {
		return database.ErrNotFound
	}
	rule.ID = m.id()
	rule.CategoryName = category.Name
	m.rules = append(m.rules, rule)
	return nil
}

func (m *memStore) UpdateRule(ctx context.Context, rule *database.Rule) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, r := range m.rules {
		if r.ID == rule.ID && r.UserID == rule.UserID {
			rule.CategoryName = m.categories[rule.CategoryID].Name
			m.rules[i] = rule
			return nil
		}
	}
	return database.ErrNotFound
}

func (m *memStore) DeleteRule(ctx context.Context, userID, ruleID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, r := range m.rules {
		if r.ID == ruleID && r.UserID == userID {
			m.rules = append(m.rules[:i], m.rules[i+1:]...)
			return nil
		}
	}
	return database.ErrNotFound
}

func (m *memStore) GetActiveRules(ctx context.Context, userID int64) ([]*rules.Rule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*rules.Rule
	for _, r := range m.rules {
		if r.UserID == userID && r.IsActive {
			out = append(out, r.Engine())
		}
	}
	return out, nil
}

func (m *memStore) ListEmails(ctx context.Context, userID int64, categoryID *int64, limit int) ([]*database.Email, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*database.Email
	for _, e := range m.emails {
		if e.UserID != userID {
			continue
		}
		if categoryID != nil && m.ruleLinks[e.ID] != *categoryID {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

func (m *memStore) ListAllEmails(ctx context.Context, userID int64) ([]*database.Email, error) {
	return m.ListEmails(ctx, userID, nil, 0)
}

func (m *memStore) GetEmail(ctx context.Context, userID, emailID int64) (*database.Email, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.emails[emailID]
	if !ok || e.UserID != userID {
		return nil, database.ErrNotFound
	}
	return e, nil
}

func (m *memStore) UpsertEmail(ctx context.Context, email *database.Email) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.emails {
		if e.UserID == email.UserID && e.MessageID == email.MessageID {
			email.ID = e.ID
		}
	}
	if email.ID == 0 {
		email.ID = m.id()
	}
	m.emails[email.ID] = email
	return nil
}

func (m *memStore) SetRuleMembership(ctx context.Context, emailID int64, categoryID *int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if categoryID == nil {
		delete(m.ruleLinks, emailID)
	} else {
		m.ruleLinks[emailID] = *categoryID
	}
	return nil
}

func (m *memStore) ReplaceRuleMemberships(ctx context.Context, userID int64, assignments map[int64]int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ruleLinks = make(map[int64]int64, len(assignments))
	for emailID, categoryID := range assignments {
		m.ruleLinks[emailID] = categoryID
	}
	return nil
}

func (m *memStore) GetAnalysis(ctx context.Context, emailID int64) (*database.EmailAnalysis, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.analyses[emailID]
	if !ok {
		return nil, database.ErrNotFound
	}
	return a, nil
}

func (m *memStore) UpsertAnalysis(ctx context.Context, a *database.EmailAnalysis) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.analyses[a.EmailID] = a
	return nil
}

func (m *memStore) DeleteAnalysis(ctx context.Context, emailID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.analyses, emailID)
	return nil
}

func (m *memStore) Ping(ctx context.Context) error { return nil }

type stubMailbox struct {
	mu       sync.Mutex
	lists    int
	messages map[string]*gmail.Message
	fail     bool
}

func (s *stubMailbox) ListInboxMessageIDs(ctx context.Context, maxResults int64) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lists++
	if s.fail {
		return nil, errors.New("gmail unavailable")
	}
	var ids []string
	for id := range s.messages {
		ids = append(ids, id)
	}
	return ids, nil
}

func (s *stubMailbox) GetMessage(ctx context.Context, messageID string) (*gmail.Message, error) {
	if s.fail {
		return nil, errors.New("gmail unavailable")
	}
	msg, ok := s.messages[messageID]
	if !ok {
		return nil, errors.New("not found")
	}
	return msg, nil
}

func (s *stubMailbox) Token() (*oauth2.Token, error) {
	return &oauth2.Token{AccessToken: "tok"}, nil
}

type testEnv struct {
	server  *Server
	store   *memStore
	mailbox *stubMailbox
	cookie  *http.Cookie
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	cfg := &config.Config{
		SessionSecret:  config.DefaultSessionSecret,
		GoogleClientID: "client",
		FrontendURL:    "/",
	}
	logger := zap.NewNop()
	store := newMemStore()
	mailbox := &stubMailbox{messages: map[string]*gmail.Message{
		"g1": {ID: "g1", Subject: "Weekly digest", Sender: "News", Body: "Top stories this week.", Labels: []string{"INBOX"}, ReceivedAt: time.Now()},
	}}
	kv := cache.NewMemory(100)
	messages := cache.NewMessageCache(kv, time.Hour, logger)
	categorizer := rules.NewCategorizer(store, rules.UnknownFieldMatch, logger)

	server := NewServer(cfg, Deps{
		Store:     store,
		Analysis:  analysis.NewService(store, nil, categorizer, logger),
		Syncer:    pipeline.NewSyncer(store, messages, rules.UnknownFieldMatch, pipeline.Options{BatchSize: 3}, logger),
		Throttle:  cache.NewSyncThrottle(kv, 15*time.Second, logger),
		Messages:  messages,
		Mailboxes: func(ctx context.Context, user *database.User) (pipeline.Mailbox, error) { return mailbox, nil },
		Logger:    logger,
	})

	return &testEnv{server: server, store: store, mailbox: mailbox, cookie: sessionCookie(t, server, 1)}
}

func sessionCookie(t *testing.T, s *Server, userID int64) *http.Cookie {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	session, _ := s.sessionStore.Get(req, "session")
	session.Values["user_id"] = userID
	if err := session.Save(req, rec); err != nil {
		t.Fatalf("failed to save session: %v", err)
	}
	cookies := rec.Result().Cookies()
	if len(cookies) == 0 {
		t.Fatal("expected session cookie")
	}
	return cookies[0]
}

func (e *testEnv) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if s, ok := body.(string); ok {
			buf.WriteString(s)
		} else if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("failed to encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.AddCookie(e.cookie)
	rec := httptest.NewRecorder()
	e.server.Handler().ServeHTTP(rec, req)
	return rec
}

func TestAPI_RequiresSession(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/categories", nil)
	rec := httptest.NewRecorder()
	env.server.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", rec.Code)
	}
}

func TestAPI_CategoryLifecycle(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	if rec := env.do(t, http.MethodPost, "/api/v1/categories", map[string]string{"name": " "}); rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for blank name, got %d", rec.Code)
	}

	rec := env.do(t, http.MethodPost, "/api/v1/categories", map[string]string{"name": "Reading", "color": "#00f"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	if rec := env.do(t, http.MethodPost, "/api/v1/categories", map[string]string{"name": "Reading"}); rec.Code != http.StatusConflict {
		t.Errorf("expected 409 for duplicate, got %d", rec.Code)
	}

	if rec := env.do(t, http.MethodDelete, "/api/v1/categories/9999", nil); rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 for unknown category, got %d", rec.Code)
	}
}

func TestAPI_RuleValidation(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	category := &database.Category{UserID: 1, Name: "Reading"}
	env.store.CreateCategory(context.Background(), category)

	tests := []struct {
		name string
		body string
	}{
		{"not an array", `{"name":"r","categoryId":` + itoa(category.ID) + `,"conditions":{"field":"subject"}}`},
		{"empty list", `{"name":"r","categoryId":` + itoa(category.ID) + `,"conditions":[]}`},
		{"unknown field", `{"name":"r","categoryId":` + itoa(category.ID) + `,"conditions":[{"field":"cc","operator":"contains","value":"x"}]}`},
		{"empty value", `{"name":"r","categoryId":` + itoa(category.ID) + `,"conditions":[{"field":"subject","operator":"contains","value":""}]}`},
		{"missing name", `{"categoryId":` + itoa(category.ID) + `,"conditions":[{"field":"subject","operator":"contains","value":"x"}]}`},
	}

	for _, tt := range tests {
		rec := env.do(t, http.MethodPost, "/api/v1/rules", tt.body)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("%s: expected 400, got %d", tt.name, rec.Code)
		}
	}
	if len(env.store.rules) != 0 {
		t.Errorf("expected no rules stored, got %d", len(env.store.rules))
	}
}

func TestAPI_CreateRuleRecomputesMembership(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	ctx := context.Background()
	category := &database.Category{UserID: 1, Name: "Reading"}
	env.store.CreateCategory(ctx, category)
	digest := &database.Email{UserID: 1, MessageID: "m1", Subject: "Weekly Digest"}
	other := &database.Email{UserID: 1, MessageID: "m2", Subject: "Hello"}
	env.store.UpsertEmail(ctx, digest)
	env.store.UpsertEmail(ctx, other)

	rec := env.do(t, http.MethodPost, "/api/v1/rules", map[string]interface{}{
		"name":       "Digests",
		"categoryId": category.ID,
		"conditions": []map[string]string{{"field": "subject", "operator": "contains", "value": "digest"}},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	if env.store.ruleLinks[digest.ID] != category.ID {
		t.Errorf("expected digest linked to %d, got %v", category.ID, env.store.ruleLinks)
	}
	if _, ok := env.store.ruleLinks[other.ID]; ok {
		t.Error("expected non-matching email to stay unlinked")
	}

	ruleID := env.store.rules[0].ID
	if rec := env.do(t, http.MethodDelete, "/api/v1/rules/"+itoa(ruleID), nil); rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if len(env.store.ruleLinks) != 0 {
		t.Errorf("expected rule links cleared after delete, got %v", env.store.ruleLinks)
	}
}

func TestAPI_ListEmailsSyncsOncePerWindow(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/v1/emails", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var emails []database.Email
	if err := json.Unmarshal(rec.Body.Bytes(), &emails); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	if len(emails) != 1 || emails[0].Subject != "Weekly digest" {
		t.Errorf("expected synced email, got %+v", emails)
	}

	env.do(t, http.MethodGet, "/api/v1/emails", nil)
	if env.mailbox.lists != 1 {
		t.Errorf("expected one provider sync within the window, got %d", env.mailbox.lists)
	}

	if rec := env.do(t, http.MethodPost, "/api/v1/emails/sync", nil); rec.Code != http.StatusOK {
		t.Errorf("expected explicit sync to succeed, got %d", rec.Code)
	}
	if env.mailbox.lists != 2 {
		t.Errorf("expected explicit sync to bypass throttle, got %d lists", env.mailbox.lists)
	}
}

func TestAPI_ListEmailsFallsBackWhenProviderFails(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	env.mailbox.fail = true
	env.store.UpsertEmail(context.Background(), &database.Email{UserID: 1, MessageID: "old", Subject: "Stored"})

	rec := env.do(t, http.MethodGet, "/api/v1/emails", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "Stored") {
		t.Errorf("expected stored email, got %s", rec.Body.String())
	}
}

func TestAPI_GetEmailDetail(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	stored := &database.Email{UserID: 1, MessageID: "g1", Subject: "Weekly digest", Snippet: "Top"}
	env.store.UpsertEmail(context.Background(), stored)

	rec := env.do(t, http.MethodGet, "/api/v1/emails/"+itoa(stored.ID), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var detail struct {
		Body   string `json:"body"`
		Source string `json:"source"`
	}
	json.Unmarshal(rec.Body.Bytes(), &detail)
	if detail.Source != "gmail" || detail.Body != "Top stories this week." {
		t.Errorf("expected body from gmail, got %+v", detail)
	}

	rec = env.do(t, http.MethodGet, "/api/v1/emails/"+itoa(stored.ID), nil)
	json.Unmarshal(rec.Body.Bytes(), &detail)
	if detail.Source != "cache" {
		t.Errorf("expected cached copy on second read, got %s", detail.Source)
	}

	if rec := env.do(t, http.MethodGet, "/api/v1/emails/424242", nil); rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}

func TestAPI_AnalysisIsCached(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	email := &database.Email{UserID: 1, MessageID: "s1", Subject: "Win a free prize now!!", Body: "claim your prize"}
	env.store.UpsertEmail(context.Background(), email)

	path := "/api/v1/emails/" + itoa(email.ID) + "/analysis"
	var first, second analysis.Result

	rec := env.do(t, http.MethodGet, path, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	json.Unmarshal(rec.Body.Bytes(), &first)
	if !first.IsSpam || first.Cached {
		t.Errorf("expected fresh spam verdict, got %+v", first)
	}

	rec = env.do(t, http.MethodGet, path, nil)
	json.Unmarshal(rec.Body.Bytes(), &second)
	if !second.Cached || second.SpamScore != first.SpamScore {
		t.Errorf("expected cached identical verdict, got %+v", second)
	}
}

func TestAPI_AdHocAnalyze(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/v1/analyze", map[string]string{"subject": "", "content": ""})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var result analysis.Result
	json.Unmarshal(rec.Body.Bytes(), &result)
	if !result.Empty {
		t.Errorf("expected empty result, got %+v", result)
	}

	if rec := env.do(t, http.MethodPost, "/api/v1/analyze", map[string]interface{}{"emailId": 999}); rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 for foreign email, got %d", rec.Code)
	}
}

func TestHealthz(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/healthz", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("expected request id header")
	}
}

func itoa(n int64) string {
	return strconv.FormatInt(n, 10)
}

func TestSPAFallback(t *testing.T) {
	t.Parallel()
	frontend := fstest.MapFS{
		"index.html":         {Data: []byte("<html>owl app</html>")},
		"assets/app.1a2b.js": {Data: []byte("console.log('owl')")},
	}
	server := NewServer(&config.Config{SessionSecret: config.DefaultSessionSecret}, Deps{
		Store:      newMemStore(),
		FrontendFS: frontend,
		Logger:     zap.NewNop(),
	})

	get := func(path string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		return rec
	}

	rec := get("/settings/rules")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "owl app") {
		t.Errorf("expected index for client route, got %d %q", rec.Code, rec.Body.String())
	}
	if rec.Header().Get("Cache-Control") != "no-cache" {
		t.Errorf("expected no-cache on index, got %q", rec.Header().Get("Cache-Control"))
	}

	rec = get("/assets/app.1a2b.js")
	if !strings.Contains(rec.Body.String(), "console.log") {
		t.Errorf("expected asset body, got %q", rec.Body.String())
	}
	if !strings.Contains(rec.Header().Get("Cache-Control"), "immutable") {
		t.Errorf("expected immutable asset caching, got %q", rec.Header().Get("Cache-Control"))
	}

	rec = get("/api/v1/nope")
	if rec.Code != http.StatusNotFound || !strings.Contains(rec.Body.String(), "not found") {
		t.Errorf("expected JSON 404 for unknown API path, got %d %q", rec.Code, rec.Body.String())
	}
}

func TestAPI_AnalysisOfOtherUsersEmailIsNotFound(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	ctx := context.Background()
	email := &database.Email{UserID: 1, MessageID: "p1", Subject: "Payroll", Body: "Salary details."}
	env.store.UpsertEmail(ctx, email)
	env.store.UpsertAnalysis(ctx, &database.EmailAnalysis{EmailID: email.ID, Summary: "owner only"})
	env.cookie = sessionCookie(t, env.server, 2)

	path := "/api/v1/emails/" + itoa(email.ID) + "/analysis"
	rec := env.do(t, http.MethodGet, path, nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "owner only") {
		t.Errorf("expected stored summary withheld, got %s", rec.Body.String())
	}

	if rec := env.do(t, http.MethodGet, path+"?refresh=true", nil); rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 on refresh, got %d", rec.Code)
	}
	if rec := env.do(t, http.MethodPost, "/api/v1/analyze", map[string]interface{}{"emailId": email.ID, "refresh": true}); rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 from analyze, got %d", rec.Code)
	}
	if a, err := env.store.GetAnalysis(ctx, email.ID); err != nil || a.Summary != "owner only" {
		t.Errorf("expected owner's analysis kept, got %+v (%v)", a, err)
	}
}

func TestAPI_SyncReportsSyncedAt(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	before := time.Now().Add(-time.Second)

	rec := env.do(t, http.MethodPost, "/api/v1/emails/sync", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var body struct {
		Fetched  int        `json:"fetched"`
		Stored   int        `json:"stored"`
		SyncedAt *time.Time `json:"syncedAt"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	if body.Fetched != 1 || body.Stored != 1 {
		t.Errorf("expected one message fetched and stored, got %+v", body)
	}
	if body.SyncedAt == nil || body.SyncedAt.Before(before) {
		t.Errorf("expected a recent syncedAt, got %v", body.SyncedAt)
	}
}

func TestAPI_AddEmailsToCategoryCountsOwnedEmails(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	ctx := context.Background()
	category := &database.Category{UserID: 1, Name: "Keep"}
	env.store.CreateCategory(ctx, category)
	mine := &database.Email{UserID: 1, MessageID: "a1", Subject: "Mine"}
	theirs := &database.Email{UserID: 2, MessageID: "b1", Subject: "Theirs"}
	env.store.UpsertEmail(ctx, mine)
	env.store.UpsertEmail(ctx, theirs)

	path := "/api/v1/categories/" + itoa(category.ID) + "/emails"
	body := map[string][]int64{"emailIds": {mine.ID, theirs.ID, 9999}}
	for i := 0; i < 2; i++ {
		rec := env.do(t, http.MethodPost, path, body)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}
		var got map[string]int
		json.Unmarshal(rec.Body.Bytes(), &got)
		if got["added"] != 1 {
			t.Errorf("call %d: expected 1 linked email, got %v", i+1, got)
		}
	}
	if links := env.store.manualLinks[mine.ID]; len(links) != 1 {
		t.Errorf("expected a single manual link, got %v", links)
	}
	if _, ok := env.store.manualLinks[theirs.ID]; ok {
		t.Error("expected another user's email to stay unlinked")
	}
}
