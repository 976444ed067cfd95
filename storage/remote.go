// Package storage talks to the durable per-user row store. Rows are the
// source of truth; the in-memory task store treats everything here as capable
// of partial failure surfaced as an error value.
package storage

import "context"

// TaskRow is the wire shape of a task row.
type TaskRow struct {
	ID         string `json:"id"`
	UserID     string `json:"user_id"`
	Title      string `json:"title"`
	Priority   string `json:"priority"`
	Status     string `json:"status"`
	Completed  bool   `json:"completed"`
	CategoryID string `json:"category_id,omitempty"`
	DueDate    string `json:"due_date,omitempty"`
	Position   int    `json:"position"`
	CreatedAt  string `json:"created_at"`
}

// CategoryRow is the wire shape of a category row.
type CategoryRow struct {
	ID        string `json:"id"`
	UserID    string `json:"user_id"`
	Name      string `json:"name"`
	Color     string `json:"color"`
	CreatedAt string `json:"created_at"`
}

// TaskRowPatch carries a partial update; nil fields are not written.
type TaskRowPatch struct {
	Title      *string `json:"title,omitempty"`
	Priority   *string `json:"priority,omitempty"`
	Status     *string `json:"status,omitempty"`
	Completed  *bool   `json:"completed,omitempty"`
	CategoryID *string `json:"category_id,omitempty"`
	DueDate    *string `json:"due_date,omitempty"`
	Position   *int    `json:"position,omitempty"`
}

// CategoryRowPatch carries a partial category update.
type CategoryRowPatch struct {
	Name  *string `json:"name,omitempty"`
	Color *string `json:"color,omitempty"`
}

// Remote is the row store the task store synchronizes against.
type Remote interface {
	// Tasks lists all task rows for the user, ordered by position ascending.
	Tasks(ctx context.Context, userID string) ([]TaskRow, error)
	// Categories lists all category rows for the user in creation order.
	Categories(ctx context.Context, userID string) ([]CategoryRow, error)

	// InsertTask stores a row and returns it with the store-assigned id and
	// creation timestamp filled in. A row arriving with a usable id keeps it.
	InsertTask(ctx context.Context, row TaskRow) (TaskRow, error)
	// InsertTasks bulk-inserts rows; returned rows are in input order.
	InsertTasks(ctx context.Context, rows []TaskRow) ([]TaskRow, error)
	UpdateTask(ctx context.Context, userID, taskID string, patch TaskRowPatch) error
	// UpdatePositions writes the position column for every listed task so the
	// remote ordering matches the local partition ordering after a move.
	UpdatePositions(ctx context.Context, userID string, positions map[string]int) error
	DeleteTasks(ctx context.Context, userID string, ids ...string) error

	InsertCategory(ctx context.Context, row CategoryRow) (CategoryRow, error)
	UpdateCategory(ctx context.Context, userID, categoryID string, patch CategoryRowPatch) error
	DeleteCategory(ctx context.Context, userID, categoryID string) error
}
