package storage

import (
	"errors"
	"fmt"

	"boardsync/domain"
)

// ErrMalformedRow marks a row that cannot be mapped to an entity. Loads drop
// such rows instead of failing wholesale.
var ErrMalformedRow = errors.New("malformed row")

// TaskFromRow maps a task row to its in-memory entity. The persisted
// status/completed pair collapses into the single completed+listId pair:
// status "done" or a set completed flag both mean the done partition.
func TaskFromRow(row TaskRow) (domain.Task, error) {
	if row.ID == "" {
		return domain.Task{}, fmt.Errorf("%w: missing id", ErrMalformedRow)
	}
	if row.Title == "" {
		return domain.Task{}, fmt.Errorf("%w: task %s has no title", ErrMalformedRow, row.ID)
	}

	listID := domain.ListTodo
	completed := row.Completed
	if row.Status == string(domain.ListDone) || row.Completed {
		listID = domain.ListDone
		completed = true
	}

	priority := domain.Priority(row.Priority)
	if !priority.Valid() {
		priority = domain.PriorityMedium
	}

	return domain.Task{
		ID:         row.ID,
		Title:      row.Title,
		Completed:  completed,
		Priority:   priority,
		CategoryID: row.CategoryID,
		ListID:     listID,
		DueDate:    row.DueDate,
		CreatedAt:  row.CreatedAt,
		Position:   row.Position,
	}, nil
}

// RowFromTask maps an entity back to its row shape for inserts.
func RowFromTask(userID string, t domain.Task) TaskRow {
	list := t.ListID.Normalize()
	return TaskRow{
		ID:         t.ID,
		UserID:     userID,
		Title:      t.Title,
		Priority:   string(t.Priority),
		Status:     string(list),
		Completed:  list == domain.ListDone,
		CategoryID: t.CategoryID,
		DueDate:    t.DueDate,
		Position:   t.Position,
		CreatedAt:  t.CreatedAt,
	}
}

// PatchFromUpdate translates the fields present in the update, and only
// those, into a row patch. A nil field is simply not sent; clearing a field
// therefore requires an explicit empty value.
func PatchFromUpdate(u domain.TaskUpdate) TaskRowPatch {
	var patch TaskRowPatch
	if u.Title != nil {
		patch.Title = u.Title
	}
	if u.Priority != nil {
		p := string(*u.Priority)
		patch.Priority = &p
	}
	if u.CategoryID != nil {
		patch.CategoryID = u.CategoryID
	}
	if u.DueDate != nil {
		patch.DueDate = u.DueDate
	}
	return patch
}

// StatusPatch builds the patch that flips a task between partitions.
func StatusPatch(list domain.ListID) TaskRowPatch {
	list = list.Normalize()
	status := string(list)
	completed := list == domain.ListDone
	return TaskRowPatch{Status: &status, Completed: &completed}
}

// CategoryFromRow maps a category row to its in-memory entity.
func CategoryFromRow(row CategoryRow) (domain.Category, error) {
	if row.ID == "" {
		return domain.Category{}, fmt.Errorf("%w: missing id", ErrMalformedRow)
	}
	if row.Name == "" {
		return domain.Category{}, fmt.Errorf("%w: category %s has no name", ErrMalformedRow, row.ID)
	}
	return domain.Category{ID: row.ID, Name: row.Name, Color: row.Color}, nil
}

// RowFromCategory maps a category entity back to its row shape.
func RowFromCategory(userID string, c domain.Category) CategoryRow {
	return CategoryRow{ID: c.ID, UserID: userID, Name: c.Name, Color: c.Color}
}
