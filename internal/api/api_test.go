// Orderbell - Order Event Notification Fan-out
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/orderbell

package api

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/orderbell/internal/auth"
	"github.com/tomtom215/orderbell/internal/authz"
	"github.com/tomtom215/orderbell/internal/config"
	"github.com/tomtom215/orderbell/internal/database"
	"github.com/tomtom215/orderbell/internal/dedupe"
	"github.com/tomtom215/orderbell/internal/logging"
	"github.com/tomtom215/orderbell/internal/models"
	"github.com/tomtom215/orderbell/internal/notify"
)

const testSecret = "api_test_secret_that_is_long_enough_for_hs256_0123456789"

func init() {
	logging.Init(logging.Config{Level: "error", Output: io.Discard})
}

// =====================================================
// Fakes
// =====================================================

type fakeStore struct {
	mu            sync.Mutex
	notifications map[string][]models.PersistedNotification
	targets       map[string]models.PushDeliveryTarget
	users         map[string]models.User
	listErr       error
	lastLimit     int
	lastUnread    bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		notifications: map[string][]models.PersistedNotification{},
		targets:       map[string]models.PushDeliveryTarget{},
		users:         map[string]models.User{},
	}
}

func (s *fakeStore) ListNotifications(_ context.Context, userID string, limit, offset int, unreadOnly bool) ([]models.PersistedNotification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastLimit, s.lastUnread = limit, unreadOnly
	if s.listErr != nil {
		return nil, s.listErr
	}
	all := s.notifications[userID]
	if offset >= len(all) {
		return nil, nil
	}
	all = all[offset:]
	if len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

func (s *fakeStore) MarkRead(_ context.Context, userID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, n := range s.notifications[userID] {
		if n.ID == id {
			s.notifications[userID][i].Read = true
			return nil
		}
	}
	return database.ErrNotFound
}

func (s *fakeStore) MarkAllRead(_ context.Context, userID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for i := range s.notifications[userID] {
		if !s.notifications[userID][i].Read {
			s.notifications[userID][i].Read = true
			n++
		}
	}
	return n, nil
}

func (s *fakeStore) UpsertPushTarget(_ context.Context, t *models.PushDeliveryTarget) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t.ID == "" {
		t.ID = "pt-" + t.UserID
	}
	t.CreatedAt = time.Now()
	s.targets[t.ID] = *t
	return nil
}

func (s *fakeStore) DeleteUserPushTarget(_ context.Context, userID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.targets[id]
	if !ok || t.UserID != userID {
		return database.ErrNotFound
	}
	delete(s.targets, id)
	return nil
}

func (s *fakeStore) UpsertUser(_ context.Context, u *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[u.ID] = *u
	return nil
}

func (s *fakeStore) Ping(context.Context) error { return nil }

type fakeNotifier struct {
	mu      sync.Mutex
	sync    []*models.NotificationEvent
	async   []*models.NotificationEvent
	outcome models.DispatchOutcome
}

func (f *fakeNotifier) Dispatch(_ context.Context, ev *models.NotificationEvent) *models.DispatchOutcome {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sync = append(f.sync, ev)
	o := f.outcome
	return &o
}

func (f *fakeNotifier) DispatchAsync(_ context.Context, ev *models.NotificationEvent) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.async = append(f.async, ev)
}

type fixedUnread int

func (c fixedUnread) CountUnread(context.Context, string) int { return int(c) }

type fakeBroadcaster struct {
	events []*models.AdminEvent
}

func (f *fakeBroadcaster) Broadcast(_ context.Context, ev *models.AdminEvent) notify.BroadcastSummary {
	f.events = append(f.events, ev)
	return notify.BroadcastSummary{Attempted: 2, Delivered: 2}
}

type fakePublisher struct {
	err           error
	notifications []*models.NotificationEvent
	admin         []*models.AdminEvent
}

func (f *fakePublisher) PublishNotification(_ context.Context, ev *models.NotificationEvent) error {
	f.notifications = append(f.notifications, ev)
	return f.err
}

func (f *fakePublisher) PublishAdminEvent(_ context.Context, ev *models.AdminEvent) error {
	f.admin = append(f.admin, ev)
	return f.err
}

type fakeLedger struct {
	claimed  map[string]bool
	released int
	err      error
}

func (l *fakeLedger) Claim(_ context.Context, ev *models.NotificationEvent) error {
	if l.err != nil {
		return l.err
	}
	if l.claimed[dedupe.Key(ev)] {
		return dedupe.ErrDuplicate
	}
	l.claimed[dedupe.Key(ev)] = true
	return nil
}

func (l *fakeLedger) Release(_ context.Context, ev *models.NotificationEvent) error {
	delete(l.claimed, dedupe.Key(ev))
	l.released++
	return nil
}

// =====================================================
// Harness
// =====================================================

type testEnv struct {
	server      http.Handler
	store       *fakeStore
	notifier    *fakeNotifier
	broadcaster *fakeBroadcaster
	jwt         *auth.JWTManager
}

func newTestEnv(t *testing.T, mutate func(*Dependencies)) *testEnv {
	t.Helper()

	secCfg := &config.SecurityConfig{AuthMode: "jwt", JWTSecret: testSecret, SessionTimeout: time.Hour}
	authn, err := auth.NewMiddleware(secCfg)
	if err != nil {
		t.Fatalf("auth.NewMiddleware: %v", err)
	}
	jwtManager, err := auth.NewJWTManager(secCfg)
	if err != nil {
		t.Fatalf("NewJWTManager: %v", err)
	}
	enforcer, err := authz.NewEnforcer(nil)
	if err != nil {
		t.Fatalf("NewEnforcer: %v", err)
	}
	t.Cleanup(enforcer.Close)

	env := &testEnv{
		store:       newFakeStore(),
		notifier:    &fakeNotifier{outcome: models.DispatchOutcome{OverallSuccess: true, InAppSuccess: true, PushSuccess: true, NotificationID: "n-1"}},
		broadcaster: &fakeBroadcaster{},
		jwt:         jwtManager,
	}
	deps := Dependencies{
		Notifications: env.store,
		PushTargets:   env.store,
		Directory:     env.store,
		Notifier:      env.notifier,
		Unread:        fixedUnread(3),
		Broadcaster:   env.broadcaster,
		Database:      env.store,
	}
	if mutate != nil {
		mutate(&deps)
	}

	chiMw := NewChiMiddleware(&ChiMiddlewareConfig{RateLimitDisabled: true})
	env.server = NewRouter(NewHandler(deps), authn, authz.NewMiddleware(enforcer), chiMw).Setup()
	return env
}

func (e *testEnv) token(t *testing.T, userID string, role models.Role) string {
	t.Helper()
	tok, err := e.jwt.GenerateToken(userID, string(role), "")
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	return tok
}

func (e *testEnv) do(t *testing.T, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = bytes.NewBufferString(b)
	default:
		data, err := json.Marshal(b)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.server.ServeHTTP(rec, req)
	return rec
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *APIError       `json:"error"`
	Meta    *APIMeta        `json:"meta"`
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return env
}

func validEvent() models.NotificationEvent {
	return models.NotificationEvent{
		RecipientUserID: "cust-1",
		OrderID:         "ord-1",
		OrderNumber:     "A-1001",
		EventType:       models.EventOrderShipped,
	}
}

var errBoom = errors.New("boom")
