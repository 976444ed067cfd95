package store

import (
	"context"

	"boardsync/domain"
	"boardsync/storage"
)

// AddCategory optimistically appends a new category. On remote rejection the
// temp entry is removed, same as a failed task add.
func (s *Store) AddCategory(ctx context.Context, name, color string) error {
	user, ok := s.currentUser(ctx)
	if !ok {
		return nil
	}

	cat := domain.Category{ID: tempID(), Name: name, Color: color}
	s.mu.Lock()
	s.categories = append(s.categories, cat)
	s.mu.Unlock()
	s.notify()

	row := storage.RowFromCategory(user.ID, cat)
	row.ID = ""
	s.goRemote("add_category", func(ctx context.Context) error {
		stored, err := s.remote.InsertCategory(ctx, row)
		if err != nil {
			s.removeCategory(cat.ID)
			return err
		}
		confirmed, err := storage.CategoryFromRow(stored)
		if err != nil {
			s.removeCategory(cat.ID)
			return err
		}
		s.mu.Lock()
		if i := s.categoryIndexLocked(cat.ID); i >= 0 {
			s.categories[i] = confirmed
		}
		s.mu.Unlock()
		s.notify()
		s.publish(ctx, user.ID, "category", confirmed.ID, storage.CategoryCreated, confirmed)
		return nil
	})
	return nil
}

// EditCategory renames or recolors a category.
func (s *Store) EditCategory(ctx context.Context, id, name, color string) error {
	user, ok := s.currentUser(ctx)
	if !ok {
		return nil
	}

	s.mu.Lock()
	i := s.categoryIndexLocked(id)
	if i < 0 {
		s.mu.Unlock()
		return nil
	}
	prev := s.categories[i]
	s.categories[i].Name = name
	s.categories[i].Color = color
	s.mu.Unlock()
	s.notify()

	patch := storage.CategoryRowPatch{Name: &name, Color: &color}
	s.goRemote("edit_category", func(ctx context.Context) error {
		if err := s.remote.UpdateCategory(ctx, user.ID, id, patch); err != nil {
			if s.policy.Edit {
				s.mu.Lock()
				if i := s.categoryIndexLocked(id); i >= 0 {
					s.categories[i].Name = prev.Name
					s.categories[i].Color = prev.Color
				}
				s.mu.Unlock()
				s.notify()
			}
			return err
		}
		s.publish(ctx, user.ID, "category", id, storage.CategoryUpdated, patch)
		return nil
	})
	return nil
}

// DeleteCategory removes a category and returns it for undo. Tasks keep
// their reference to the deleted id; lookups simply miss.
func (s *Store) DeleteCategory(ctx context.Context, id string) (domain.Category, bool) {
	user, ok := s.currentUser(ctx)
	if !ok {
		return domain.Category{}, false
	}

	s.mu.Lock()
	i := s.categoryIndexLocked(id)
	if i < 0 {
		s.mu.Unlock()
		return domain.Category{}, false
	}
	removed := s.categories[i]
	idx := i
	s.categories = append(s.categories[:i], s.categories[i+1:]...)
	s.mu.Unlock()
	s.notify()

	s.goRemote("delete_category", func(ctx context.Context) error {
		if err := s.remote.DeleteCategory(ctx, user.ID, id); err != nil {
			if s.policy.Delete {
				s.mu.Lock()
				if s.categoryIndexLocked(id) < 0 {
					if idx > len(s.categories) {
						idx = len(s.categories)
					}
					s.categories = append(s.categories[:idx], append([]domain.Category{removed}, s.categories[idx:]...)...)
				}
				s.mu.Unlock()
				s.notify()
			}
			return err
		}
		s.publish(ctx, user.ID, "category", id, storage.CategoryDeleted, nil)
		return nil
	})
	return removed, true
}

// RestoreCategory re-adds a previously deleted category, keeping its id when
// it is remote-shaped.
func (s *Store) RestoreCategory(ctx context.Context, cat domain.Category) error {
	user, ok := s.currentUser(ctx)
	if !ok {
		return nil
	}

	s.mu.Lock()
	if s.categoryIndexLocked(cat.ID) >= 0 {
		s.mu.Unlock()
		return nil
	}
	s.categories = append(s.categories, cat)
	s.mu.Unlock()
	s.notify()

	row := storage.RowFromCategory(user.ID, cat)
	if !permanentID(cat.ID) {
		row.ID = ""
	}
	s.goRemote("restore_category", func(ctx context.Context) error {
		stored, err := s.remote.InsertCategory(ctx, row)
		if err != nil {
			if s.policy.Restore {
				s.removeCategory(cat.ID)
			}
			return err
		}
		confirmed, err := storage.CategoryFromRow(stored)
		if err != nil {
			return err
		}
		s.mu.Lock()
		if i := s.categoryIndexLocked(cat.ID); i >= 0 {
			s.categories[i] = confirmed
		}
		s.mu.Unlock()
		s.notify()
		s.publish(ctx, user.ID, "category", confirmed.ID, storage.CategoryCreated, confirmed)
		return nil
	})
	return nil
}

func (s *Store) categoryIndexLocked(id string) int {
	for i := range s.categories {
		if s.categories[i].ID == id {
			return i
		}
	}
	return -1
}

func (s *Store) removeCategory(id string) {
	s.mu.Lock()
	if i := s.categoryIndexLocked(id); i >= 0 {
		s.categories = append(s.categories[:i], s.categories[i+1:]...)
	}
	s.mu.Unlock()
	s.notify()
}
