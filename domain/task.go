package domain

// Priority ranks a task.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// Valid reports whether p is one of the known priorities.
func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh:
		return true
	}
	return false
}

// ListID names a persisted task partition. Only "todo" and "done" are ever
// stored; "overdue" exists purely as a derived board bucket.
type ListID string

const (
	ListTodo    ListID = "todo"
	ListDone    ListID = "done"
	ListOverdue ListID = "overdue"
)

// Normalize maps the derived overdue bucket back to its persisted partition.
func (l ListID) Normalize() ListID {
	if l == ListOverdue {
		return ListTodo
	}
	return l
}

// Task represents a single board item.
type Task struct {
	ID         string   `json:"id"`
	Title      string   `json:"title"`
	Completed  bool     `json:"completed"`
	Priority   Priority `json:"priority"`
	CategoryID string   `json:"categoryId,omitempty"`
	ListID     ListID   `json:"listId"`
	DueDate    string   `json:"dueDate,omitempty"`
	CreatedAt  string   `json:"createdAt"`
	Position   int      `json:"position"`
}

// TaskUpdate carries a partial patch over the editable task fields. Nil
// fields are left untouched; clearing a field requires an explicit empty
// value, never a nil pointer.
type TaskUpdate struct {
	Title      *string   `json:"title,omitempty"`
	Priority   *Priority `json:"priority,omitempty"`
	CategoryID *string   `json:"categoryId,omitempty"`
	DueDate    *string   `json:"dueDate,omitempty"`
}

// Empty reports whether the update patches nothing.
func (u TaskUpdate) Empty() bool {
	return u.Title == nil && u.Priority == nil && u.CategoryID == nil && u.DueDate == nil
}

// Category represents a user-defined label. Tasks reference categories
// weakly: deleting a category never cascades to its tasks.
type Category struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Color string `json:"color"`
}

// BoardList describes one of the three fixed board columns.
type BoardList struct {
	ID       ListID `json:"id"`
	Title    string `json:"title"`
	Color    string `json:"color"`
	Position int    `json:"position"`
}

// DefaultLists is the fixed column layout of the board.
var DefaultLists = []BoardList{
	{ID: ListOverdue, Title: "Due Task", Color: "red", Position: 0},
	{ID: ListTodo, Title: "To Do", Color: "yellow", Position: 1},
	{ID: ListDone, Title: "Done", Color: "green", Position: 2},
}

// CategoryPalette holds the color tokens a category may carry.
var CategoryPalette = []string{"cyan", "pink", "yellow", "green", "red", "purple"}
