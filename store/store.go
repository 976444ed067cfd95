// Package store holds the optimistic in-memory task state that mediates
// between the UI and the remote row store. Mutations apply locally before the
// remote call is issued, so callers never wait on network latency; each
// remote completion then reconciles or rolls back under the store lock.
package store

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"boardsync/domain"
	"boardsync/identity"
	"boardsync/storage"
)

// EventSink receives change events after confirmed mutations. Implementations
// must tolerate being called from multiple goroutines.
type EventSink interface {
	Publish(ctx context.Context, events ...storage.Event) error
}

// Store is the single authoritative in-memory container for one user's tasks
// and categories. Construct one per session and drop it on logout.
type Store struct {
	remote   storage.Remote
	identity identity.Provider
	events   EventSink
	logger   *log.Logger
	now      func() time.Time
	policy   RollbackPolicy

	mu               sync.Mutex
	tasks            []domain.Task
	categories       []domain.Category
	tasksLoaded      bool
	categoriesLoaded bool
	filter           domain.Filter
	sortBy           domain.SortOption
	searchQuery      string
	subs             map[int]func()
	nextSub          int

	inflight sync.WaitGroup
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger used for swallowed remote failures.
func WithLogger(logger *log.Logger) Option {
	return func(s *Store) { s.logger = logger }
}

// WithNow overrides the clock used for created-at stamps and overdue
// detection. The default is time.Now in the local zone.
func WithNow(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithPolicy overrides the rollback policy.
func WithPolicy(p RollbackPolicy) Option {
	return func(s *Store) { s.policy = p }
}

// WithEventSink publishes a change event after every confirmed mutation.
func WithEventSink(sink EventSink) Option {
	return func(s *Store) { s.events = sink }
}

// New creates a Store backed by the given remote and identity provider.
func New(remote storage.Remote, provider identity.Provider, opts ...Option) *Store {
	if remote == nil {
		panic("store.New: remote is nil")
	}
	if provider == nil {
		panic("store.New: identity provider is nil")
	}
	s := &Store{
		remote:   remote,
		identity: provider,
		logger:   log.StandardLogger(),
		now:      time.Now,
		policy:   DefaultRollbackPolicy(),
		filter:   domain.FilterAll,
		sortBy:   domain.SortNewest,
		subs:     map[int]func(){},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// tempID allocates a local identifier for an entity the remote store has not
// confirmed yet. It is UUID-shaped so the UI can treat it like a permanent id.
func tempID() string {
	return uuid.NewString()
}

// permanentID reports whether id looks like a remote-assigned identifier and
// may therefore be reused on re-insert.
func permanentID(id string) bool {
	if len(id) != 36 {
		return false
	}
	_, err := uuid.Parse(id)
	return err == nil
}

// Subscribe registers fn to run after every state change and returns the
// matching unsubscribe. Callbacks run outside the store lock, in mutation
// order.
func (s *Store) Subscribe(fn func()) (unsubscribe func()) {
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}

func (s *Store) notify() {
	s.mu.Lock()
	fns := make([]func(), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

// Wait blocks until every in-flight remote call has reconciled. Tests and
// shutdown paths use it; the UI never needs to.
func (s *Store) Wait() {
	s.inflight.Wait()
}

// currentUser resolves the session user. An unauthenticated resolution is
// reported as ok=false so operations can no-op silently.
func (s *Store) currentUser(ctx context.Context) (identity.User, bool) {
	user, err := s.identity.CurrentUser(ctx)
	if err != nil {
		if !errors.Is(err, identity.ErrUnauthenticated) {
			s.logger.WithError(err).Warn("identity resolution failed")
		} else {
			s.logger.Debug("skipping store operation: no authenticated user")
		}
		return identity.User{}, false
	}
	return user, true
}

// goRemote runs the remote leg of a mutation in its own goroutine. The
// callers' context is deliberately not propagated: once issued, a mutation
// cannot be cancelled.
func (s *Store) goRemote(op string, fn func(ctx context.Context) error) {
	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		if err := fn(context.Background()); err != nil {
			s.logger.WithError(err).WithField("op", op).Warn("remote sync failed")
		}
	}()
}

func (s *Store) publish(ctx context.Context, userID, entityType, entityID, eventType string, data any) {
	if s.events == nil {
		return
	}
	ev, err := storage.NewEvent(userID, entityType, entityID, eventType, data)
	if err != nil {
		s.logger.WithError(err).Warn("encode change event")
		return
	}
	if err := s.events.Publish(ctx, ev); err != nil {
		s.logger.WithError(err).WithField("type", eventType).Warn("publish change event")
	}
}

// LoadTasks fetches the user's tasks once per session. Subsequent calls are
// no-ops until the store is discarded; there is no refresh. Rows that fail to
// map are dropped with a warning rather than failing the load.
func (s *Store) LoadTasks(ctx context.Context) error {
	s.mu.Lock()
	loaded := s.tasksLoaded
	s.mu.Unlock()
	if loaded {
		return nil
	}

	user, ok := s.currentUser(ctx)
	if !ok {
		return nil
	}

	rows, err := s.remote.Tasks(ctx, user.ID)
	if err != nil {
		return err
	}

	tasks := make([]domain.Task, 0, len(rows))
	for _, row := range rows {
		task, err := storage.TaskFromRow(row)
		if err != nil {
			s.logger.WithError(err).WithField("row", row.ID).Warn("dropping malformed task row")
			continue
		}
		tasks = append(tasks, task)
	}

	s.mu.Lock()
	if s.tasksLoaded {
		s.mu.Unlock()
		return nil
	}
	s.tasks = tasks
	s.tasksLoaded = true
	s.mu.Unlock()
	s.notify()
	return nil
}

// LoadCategories fetches the user's categories once per session.
func (s *Store) LoadCategories(ctx context.Context) error {
	s.mu.Lock()
	loaded := s.categoriesLoaded
	s.mu.Unlock()
	if loaded {
		return nil
	}

	user, ok := s.currentUser(ctx)
	if !ok {
		return nil
	}

	rows, err := s.remote.Categories(ctx, user.ID)
	if err != nil {
		return err
	}

	categories := make([]domain.Category, 0, len(rows))
	for _, row := range rows {
		cat, err := storage.CategoryFromRow(row)
		if err != nil {
			s.logger.WithError(err).WithField("row", row.ID).Warn("dropping malformed category row")
			continue
		}
		categories = append(categories, cat)
	}

	s.mu.Lock()
	if s.categoriesLoaded {
		s.mu.Unlock()
		return nil
	}
	s.categories = categories
	s.categoriesLoaded = true
	s.mu.Unlock()
	s.notify()
	return nil
}
