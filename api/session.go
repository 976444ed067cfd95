package api

import (
	"context"
	"sync"

	"boardsync/identity"
	"boardsync/store"
)

// StoreFactory builds a task store pinned to one user. The session manager
// calls it at most once per signed-in user.
type StoreFactory func(user identity.User) *store.Store

// SessionManager owns one task store per signed-in user. A store lives for
// the duration of the session: it is created lazily on first touch, its
// collections are loaded once, and it is torn down when the session ends.
type SessionManager struct {
	factory StoreFactory

	mu     sync.Mutex
	stores map[string]*store.Store
}

// NewSessionManager creates a session manager around the given factory.
func NewSessionManager(factory StoreFactory) *SessionManager {
	if factory == nil {
		panic("api.NewSessionManager: factory is nil")
	}
	return &SessionManager{
		factory: factory,
		stores:  map[string]*store.Store{},
	}
}

// StoreFor returns the user's store, creating and loading it on first touch.
// A load failure discards the store so the next request retries cleanly.
func (m *SessionManager) StoreFor(ctx context.Context, user identity.User) (*store.Store, error) {
	m.mu.Lock()
	s, ok := m.stores[user.ID]
	if !ok {
		s = m.factory(user)
		m.stores[user.ID] = s
	}
	m.mu.Unlock()

	if err := s.LoadTasks(ctx); err != nil {
		m.drop(user.ID, s)
		return nil, err
	}
	if err := s.LoadCategories(ctx); err != nil {
		m.drop(user.ID, s)
		return nil, err
	}
	return s, nil
}

// End tears down the user's session. In-flight remote work is drained before
// the store is discarded so no mutation is lost on logout.
func (m *SessionManager) End(userID string) {
	m.mu.Lock()
	s, ok := m.stores[userID]
	delete(m.stores, userID)
	m.mu.Unlock()
	if ok {
		s.Wait()
	}
}

// Shutdown drains every live session.
func (m *SessionManager) Shutdown() {
	m.mu.Lock()
	stores := make([]*store.Store, 0, len(m.stores))
	for _, s := range m.stores {
		stores = append(stores, s)
	}
	m.stores = map[string]*store.Store{}
	m.mu.Unlock()
	for _, s := range stores {
		s.Wait()
	}
}

func (m *SessionManager) drop(userID string, s *store.Store) {
	m.mu.Lock()
	if m.stores[userID] == s {
		delete(m.stores, userID)
	}
	m.mu.Unlock()
}
