// Orderbell - Order Event Notification Fan-out
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/orderbell

package notify

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tomtom215/orderbell/internal/logging"
	"github.com/tomtom215/orderbell/internal/models"
)

func init() {
	logging.Init(logging.Config{Level: "error", Output: io.Discard})
}

var errStorage = errors.New("storage unavailable")

// fakeInApp is a scriptable in-app channel.
type fakeInApp struct {
	calls   atomic.Int32
	delay   time.Duration
	fail    bool
	panics  bool
	lastReq atomic.Pointer[InAppRequest]
}

func (f *fakeInApp) Deliver(_ context.Context, req *InAppRequest) *InAppResult {
	f.calls.Add(1)
	f.lastReq.Store(req)
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if f.panics {
		panic("in-app exploded")
	}
	if f.fail {
		return &InAppResult{Error: errStorage.Error(), ErrorCode: ErrorCodeStorage}
	}
	return &InAppResult{Success: true, NotificationID: "n-1"}
}

// fakePush is a scriptable push channel.
type fakePush struct {
	calls   atomic.Int32
	delay   time.Duration
	fail    bool
	lastReq atomic.Pointer[PushRequest]
}

func (f *fakePush) Deliver(_ context.Context, req *PushRequest) *PushResult {
	f.calls.Add(1)
	f.lastReq.Store(req)
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if f.fail {
		return &PushResult{Targets: 1, Error: "push service down", ErrorCode: ErrorCodeSendFailed}
	}
	return &PushResult{Success: true, Targets: 1, Delivered: 1}
}

// memStore is an in-memory notification, push target and unread store.
type memStore struct {
	mu            sync.Mutex
	notifications []models.PersistedNotification
	targets       map[string][]models.PushDeliveryTarget
	createErr     error
	listErr       error
	countErr      error
}

func (m *memStore) CreateNotification(_ context.Context, n *models.PersistedNotification) error {
	if m.createErr != nil {
		return m.createErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notifications = append(m.notifications, *n)
	return nil
}

func (m *memStore) ListPushTargets(_ context.Context, userID string) ([]models.PushDeliveryTarget, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.targets[userID], nil
}

func (m *memStore) CountUnread(_ context.Context, userID string) (int, error) {
	if m.countErr != nil {
		return 0, m.countErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, rec := range m.notifications {
		if rec.UserID == userID && !rec.Read {
			n++
		}
	}
	return n, nil
}

// recordingSender captures payloads and returns a per-endpoint error.
type recordingSender struct {
	mu       sync.Mutex
	payloads [][]byte
	errs     map[string]error
	calls    atomic.Int32
	inFlight atomic.Int32
	maxSeen  atomic.Int32
	delay    time.Duration
}

func (s *recordingSender) Send(_ context.Context, target models.PushDeliveryTarget, payload []byte) error {
	s.calls.Add(1)
	cur := s.inFlight.Add(1)
	defer s.inFlight.Add(-1)
	for {
		prev := s.maxSeen.Load()
		if cur <= prev || s.maxSeen.CompareAndSwap(prev, cur) {
			break
		}
	}
	if s.delay > 0 {
		time.Sleep(s.delay)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.payloads = append(s.payloads, payload)
	return s.errs[target.Endpoint]
}
