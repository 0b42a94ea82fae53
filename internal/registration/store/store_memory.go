package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"onboard/internal/registration/models"
	id "onboard/pkg/domain"
	"onboard/pkg/platform/sentinel"
)

// InMemoryStore mirrors RedisStore semantics for tests and Redis-less runs.
// Records are held encoded so callers never share memory with the store,
// and entries past ExpiresAt are invisible exactly as an expired key would be.
type InMemoryStore struct {
	mu       sync.Mutex
	sessions map[string][]byte
	expiry   map[string]time.Time
	clock    func() time.Time
}

type MemoryOption func(*InMemoryStore)

func WithClock(clock func() time.Time) MemoryOption {
	return func(s *InMemoryStore) {
		if clock != nil {
			s.clock = clock
		}
	}
}

func NewInMemory(opts ...MemoryOption) *InMemoryStore {
	s := &InMemoryStore{
		sessions: make(map[string][]byte),
		expiry:   make(map[string]time.Time),
		clock:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *InMemoryStore) Create(_ context.Context, session *models.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock()
	if !session.ExpiresAt.After(now) {
		return sentinel.ErrExpired
	}
	key := sessionKey(session.ID)
	if _, ok := s.liveLocked(key, now); ok {
		return fmt.Errorf("session %s: %w", session.ID, sentinel.ErrConflict)
	}
	data, err := encode(session)
	if err != nil {
		return err
	}
	s.sessions[key] = data
	s.expiry[key] = session.ExpiresAt
	return nil
}

func (s *InMemoryStore) FindByID(_ context.Context, sessionID id.SessionID) (*models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, ok := s.liveLocked(sessionKey(sessionID), s.clock())
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return decode(data)
}

// Execute holds the store lock for the whole read-validate-write, so it can
// never report a conflict.
func (s *InMemoryStore) Execute(_ context.Context, sessionID id.SessionID, validate ValidateFunc, mutate MutateFunc) (*models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := sessionKey(sessionID)
	data, ok := s.liveLocked(key, s.clock())
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	session, err := decode(data)
	if err != nil {
		return nil, err
	}
	if err := validate(session); err != nil {
		return nil, err
	}

	expiresAt := session.ExpiresAt
	mutate(session)
	session.ExpiresAt = expiresAt

	encoded, err := encode(session)
	if err != nil {
		return nil, err
	}
	s.sessions[key] = encoded
	return decode(encoded)
}

// ScanAll visits live sessions in key order.
func (s *InMemoryStore) ScanAll(ctx context.Context, fn func(*models.Session) error) error {
	s.mu.Lock()
	now := s.clock()
	keys := make([]string, 0, len(s.sessions))
	snapshot := make(map[string][]byte, len(s.sessions))
	for key := range s.sessions {
		if data, ok := s.liveLocked(key, now); ok {
			keys = append(keys, key)
			snapshot[key] = data
		}
	}
	s.mu.Unlock()

	sort.Strings(keys)
	for _, key := range keys {
		if err := ctx.Err(); err != nil {
			return err
		}
		session, err := decode(snapshot[key])
		if err != nil {
			continue
		}
		if err := fn(session); err != nil {
			return err
		}
	}
	return nil
}

// liveLocked returns the record for key if it has not expired, evicting it otherwise.
func (s *InMemoryStore) liveLocked(key string, now time.Time) ([]byte, bool) {
	data, ok := s.sessions[key]
	if !ok {
		return nil, false
	}
	if !now.Before(s.expiry[key]) {
		delete(s.sessions, key)
		delete(s.expiry, key)
		return nil, false
	}
	return data, true
}
