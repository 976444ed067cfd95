package store

import "boardsync/domain"

// Tasks returns a snapshot of the task collection. Callers may iterate and
// index freely; mutations go through the store operations only.
func (s *Store) Tasks() []domain.Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.Task(nil), s.tasks...)
}

// Categories returns a snapshot of the category collection.
func (s *Store) Categories() []domain.Category {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.Category(nil), s.categories...)
}

// CategoryByID looks up a category for display. A dangling reference simply
// reports ok=false; tasks keep their categoryId even after the category is
// gone.
func (s *Store) CategoryByID(id string) (domain.Category, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.categories {
		if c.ID == id {
			return c, true
		}
	}
	return domain.Category{}, false
}

// ActiveCount counts tasks not yet completed.
func (s *Store) ActiveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return domain.ActiveCount(s.tasks)
}

// CompletedCount counts completed tasks.
func (s *Store) CompletedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return domain.CompletedCount(s.tasks)
}

// BoardTasks partitions the collection into the three board buckets for the
// current local day. Recomputed on every read, never stored.
func (s *Store) BoardTasks() domain.Board {
	s.mu.Lock()
	tasks := append([]domain.Task(nil), s.tasks...)
	today := domain.LocalDay(s.now())
	s.mu.Unlock()
	return domain.BoardFor(tasks, today)
}

// SetFilter narrows VisibleTasks.
func (s *Store) SetFilter(f domain.Filter) {
	s.mu.Lock()
	s.filter = f
	s.mu.Unlock()
	s.notify()
}

// SetSort orders VisibleTasks.
func (s *Store) SetSort(o domain.SortOption) {
	s.mu.Lock()
	s.sortBy = o
	s.mu.Unlock()
	s.notify()
}

// SetSearchQuery restricts VisibleTasks to titles containing the query.
func (s *Store) SetSearchQuery(q string) {
	s.mu.Lock()
	s.searchQuery = q
	s.mu.Unlock()
	s.notify()
}

// Filter returns the active filter.
func (s *Store) Filter() domain.Filter {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.filter
}

// Sort returns the active sort option.
func (s *Store) Sort() domain.SortOption {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sortBy
}

// SearchQuery returns the active search query.
func (s *Store) SearchQuery() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.searchQuery
}

// VisibleTasks applies the store's filter, sort and search state.
func (s *Store) VisibleTasks() []domain.Task {
	s.mu.Lock()
	tasks := append([]domain.Task(nil), s.tasks...)
	filter, sortBy, query := s.filter, s.sortBy, s.searchQuery
	s.mu.Unlock()
	return domain.Visible(tasks, filter, sortBy, query)
}
