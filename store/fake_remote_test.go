package store

import (
	"context"
	"fmt"
	"sync"

	"boardsync/storage"
)

// fakeRemote is an in-memory Remote with per-method failure injection. When
// hold is set, every call blocks until the channel is closed so tests can
// observe the optimistic state before reconciliation.
type fakeRemote struct {
	mu         sync.Mutex
	tasks      map[string]storage.TaskRow
	categories map[string]storage.CategoryRow
	seq        int
	hold       chan struct{}

	listErr      error
	insertErr    error
	updateErr    error
	positionsErr error
	deleteErr    error
	categoryErr  error

	listCalls     int
	inserted      []storage.TaskRow
	patches       []storage.TaskRowPatch
	positionCalls []map[string]int
	deletedIDs    [][]string
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{
		tasks:      map[string]storage.TaskRow{},
		categories: map[string]storage.CategoryRow{},
	}
}

func (f *fakeRemote) wait() {
	if f.hold != nil {
		<-f.hold
	}
}

func (f *fakeRemote) nextID() string {
	f.seq++
	return fmt.Sprintf("00000000-0000-0000-0000-%012d", f.seq)
}

func (f *fakeRemote) Tasks(ctx context.Context, userID string) ([]storage.TaskRow, error) {
	f.wait()
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listCalls++
	if f.listErr != nil {
		return nil, f.listErr
	}
	rows := make([]storage.TaskRow, 0, len(f.tasks))
	for _, row := range f.tasks {
		rows = append(rows, row)
	}
	return rows, nil
}

func (f *fakeRemote) Categories(ctx context.Context, userID string) ([]storage.CategoryRow, error) {
	f.wait()
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	rows := make([]storage.CategoryRow, 0, len(f.categories))
	for _, row := range f.categories {
		rows = append(rows, row)
	}
	return rows, nil
}

func (f *fakeRemote) InsertTask(ctx context.Context, row storage.TaskRow) (storage.TaskRow, error) {
	f.wait()
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.insertErr != nil {
		return storage.TaskRow{}, f.insertErr
	}
	if row.ID == "" {
		row.ID = f.nextID()
	}
	if row.CreatedAt == "" {
		row.CreatedAt = "2024-06-01T00:00:00Z"
	}
	f.tasks[row.ID] = row
	f.inserted = append(f.inserted, row)
	return row, nil
}

func (f *fakeRemote) InsertTasks(ctx context.Context, rows []storage.TaskRow) ([]storage.TaskRow, error) {
	f.wait()
	f.mu.Lock()
	if f.insertErr != nil {
		f.mu.Unlock()
		return nil, f.insertErr
	}
	f.mu.Unlock()
	out := make([]storage.TaskRow, 0, len(rows))
	for _, row := range rows {
		stored, err := f.InsertTask(ctx, row)
		if err != nil {
			return nil, err
		}
		out = append(out, stored)
	}
	return out, nil
}

func (f *fakeRemote) UpdateTask(ctx context.Context, userID, taskID string, patch storage.TaskRowPatch) error {
	f.wait()
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.updateErr != nil {
		return f.updateErr
	}
	f.patches = append(f.patches, patch)
	row, ok := f.tasks[taskID]
	if !ok {
		return nil
	}
	if patch.Title != nil {
		row.Title = *patch.Title
	}
	if patch.Priority != nil {
		row.Priority = *patch.Priority
	}
	if patch.Status != nil {
		row.Status = *patch.Status
	}
	if patch.Completed != nil {
		row.Completed = *patch.Completed
	}
	if patch.CategoryID != nil {
		row.CategoryID = *patch.CategoryID
	}
	if patch.DueDate != nil {
		row.DueDate = *patch.DueDate
	}
	if patch.Position != nil {
		row.Position = *patch.Position
	}
	f.tasks[taskID] = row
	return nil
}

func (f *fakeRemote) UpdatePositions(ctx context.Context, userID string, positions map[string]int) error {
	f.wait()
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.positionsErr != nil {
		return f.positionsErr
	}
	f.positionCalls = append(f.positionCalls, positions)
	for id, pos := range positions {
		if row, ok := f.tasks[id]; ok {
			row.Position = pos
			f.tasks[id] = row
		}
	}
	return nil
}

func (f *fakeRemote) DeleteTasks(ctx context.Context, userID string, ids ...string) error {
	f.wait()
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deleteErr != nil {
		return f.deleteErr
	}
	f.deletedIDs = append(f.deletedIDs, ids)
	for _, id := range ids {
		delete(f.tasks, id)
	}
	return nil
}

func (f *fakeRemote) InsertCategory(ctx context.Context, row storage.CategoryRow) (storage.CategoryRow, error) {
	f.wait()
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.categoryErr != nil {
		return storage.CategoryRow{}, f.categoryErr
	}
	if row.ID == "" {
		row.ID = f.nextID()
	}
	if row.CreatedAt == "" {
		row.CreatedAt = "2024-06-01T00:00:00Z"
	}
	f.categories[row.ID] = row
	return row, nil
}

func (f *fakeRemote) UpdateCategory(ctx context.Context, userID, categoryID string, patch storage.CategoryRowPatch) error {
	f.wait()
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.categoryErr != nil {
		return f.categoryErr
	}
	row, ok := f.categories[categoryID]
	if !ok {
		return nil
	}
	if patch.Name != nil {
		row.Name = *patch.Name
	}
	if patch.Color != nil {
		row.Color = *patch.Color
	}
	f.categories[categoryID] = row
	return nil
}

func (f *fakeRemote) DeleteCategory(ctx context.Context, userID, categoryID string) error {
	f.wait()
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.categoryErr != nil {
		return f.categoryErr
	}
	delete(f.categories, categoryID)
	return nil
}

// fakeSink records published change events.
type fakeSink struct {
	mu     sync.Mutex
	events []storage.Event
}

func (f *fakeSink) Publish(ctx context.Context, events ...storage.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, events...)
	return nil
}

func (f *fakeSink) types() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.events))
	for i, ev := range f.events {
		out[i] = ev.Type
	}
	return out
}
