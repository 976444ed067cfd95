package domain

import (
	"sort"
	"time"
)

// LocalDay formats t as YYYY-MM-DD in t's own location. Due dates are
// compared as strings at local-day granularity so a task never flips between
// overdue and due depending on the device's offset from UTC.
func LocalDay(t time.Time) string {
	return t.Format("2006-01-02")
}

// Overdue reports whether the task's due date lies strictly before today,
// where today is a LocalDay string. Completed tasks are never overdue.
func (t Task) Overdue(today string) bool {
	return !t.Completed && t.DueDate != "" && t.DueDate < today
}

// Board holds the three derived columns. Every task lands in exactly one
// bucket; bucket membership is never persisted.
type Board struct {
	Overdue []Task `json:"overdue"`
	Todo    []Task `json:"todo"`
	Done    []Task `json:"done"`
}

// BoardFor partitions tasks into the three board buckets for the given local
// day and sorts each bucket by position ascending, ties broken by the
// original slice order.
func BoardFor(tasks []Task, today string) Board {
	b := Board{Overdue: []Task{}, Todo: []Task{}, Done: []Task{}}
	for _, t := range tasks {
		switch {
		case t.Completed || t.ListID == ListDone:
			b.Done = append(b.Done, t)
		case t.Overdue(today):
			b.Overdue = append(b.Overdue, t)
		default:
			b.Todo = append(b.Todo, t)
		}
	}
	sortByPosition(b.Overdue)
	sortByPosition(b.Todo)
	sortByPosition(b.Done)
	return b
}

func sortByPosition(tasks []Task) {
	sort.SliceStable(tasks, func(i, j int) bool { return tasks[i].Position < tasks[j].Position })
}

// ActiveCount counts tasks not yet completed.
func ActiveCount(tasks []Task) int {
	n := 0
	for _, t := range tasks {
		if !t.Completed {
			n++
		}
	}
	return n
}

// CompletedCount counts completed tasks.
func CompletedCount(tasks []Task) int {
	return len(tasks) - ActiveCount(tasks)
}
