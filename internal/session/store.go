// Package session keeps the selection state of open calendar views between requests.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tiffix/order-calendar/internal/calendar"
)

// ErrNotFound is returned for unknown or expired sessions.
var ErrNotFound = errors.New("session not found")

// Store persists calendar.State by session ID.
type Store interface {
	Create(ctx context.Context, st calendar.State) (string, error)
	Load(ctx context.Context, id string) (calendar.State, error)
	Save(ctx context.Context, id string, st calendar.State) error
	// Update applies fn to the stored state as one atomic read-modify-write.
	// An error from fn leaves the state unchanged.
	Update(ctx context.Context, id string, fn UpdateFunc) (calendar.State, error)
	Delete(ctx context.Context, id string) error
}

// UpdateFunc is one transition of a session's state.
type UpdateFunc func(st calendar.State) (calendar.State, error)

// NewID returns a fresh session ID.
func NewID() string {
	return uuid.NewString()
}

type entry struct {
	state   calendar.State
	expires time.Time
}

// Memory is a process-local Store. Sessions expire ttl after their last use.
type Memory struct {
	mu       sync.Mutex
	sessions map[string]entry
	ttl      time.Duration
	now      func() time.Time
}

// NewMemory keeps sessions in process until they sit idle for ttl.
func NewMemory(ttl time.Duration) *Memory {
	return &Memory{
		sessions: make(map[string]entry),
		ttl:      ttl,
		now:      time.Now,
	}
}

func (m *Memory) Create(_ context.Context, st calendar.State) (string, error) {
	id := NewID()
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sweepLocked()
	m.sessions[id] = entry{state: st, expires: m.expiry()}
	return id, nil
}

func (m *Memory) Load(_ context.Context, id string) (calendar.State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.sessions[id]
	if !ok || m.expired(e) {
		delete(m.sessions, id)
		return calendar.State{}, ErrNotFound
	}
	e.expires = m.expiry()
	m.sessions[id] = e
	return e.state, nil
}

func (m *Memory) Save(_ context.Context, id string, st calendar.State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.sessions[id]
	if !ok || m.expired(e) {
		delete(m.sessions, id)
		return ErrNotFound
	}
	m.sessions[id] = entry{state: st, expires: m.expiry()}
	return nil
}

// Update runs fn under the store lock.
func (m *Memory) Update(_ context.Context, id string, fn UpdateFunc) (calendar.State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.sessions[id]
	if !ok || m.expired(e) {
		delete(m.sessions, id)
		return calendar.State{}, ErrNotFound
	}
	next, err := fn(e.state)
	if err != nil {
		return calendar.State{}, err
	}
	m.sessions[id] = entry{state: next, expires: m.expiry()}
	return next, nil
}

func (m *Memory) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[id]; !ok {
		return ErrNotFound
	}
	delete(m.sessions, id)
	return nil
}

// Len counts live sessions.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sweepLocked()
	return len(m.sessions)
}

func (m *Memory) expiry() time.Time {
	if m.ttl <= 0 {
		return time.Time{}
	}
	return m.now().Add(m.ttl)
}

func (m *Memory) expired(e entry) bool {
	return !e.expires.IsZero() && m.now().After(e.expires)
}

func (m *Memory) sweepLocked() {
	for id, e := range m.sessions {
		if m.expired(e) {
			delete(m.sessions, id)
		}
	}
}
