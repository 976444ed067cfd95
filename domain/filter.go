package domain

import (
	"sort"
	"strings"
)

// Filter narrows the visible task list.
type Filter string

const (
	FilterAll       Filter = "all"
	FilterActive    Filter = "active"
	FilterCompleted Filter = "completed"
)

// SortOption orders the visible task list.
type SortOption string

const (
	SortNewest       SortOption = "newest"
	SortOldest       SortOption = "oldest"
	SortPriority     SortOption = "priority"
	SortAlphabetical SortOption = "alphabetical"
)

var priorityRank = map[Priority]int{PriorityHigh: 0, PriorityMedium: 1, PriorityLow: 2}

// Visible applies filter, free-text search and sort to tasks and returns a
// new slice; the input is never mutated. Unknown filter or sort values fall
// back to "all" and "newest".
func Visible(tasks []Task, filter Filter, sortBy SortOption, query string) []Task {
	query = strings.ToLower(strings.TrimSpace(query))
	out := make([]Task, 0, len(tasks))
	for _, t := range tasks {
		switch filter {
		case FilterActive:
			if t.Completed {
				continue
			}
		case FilterCompleted:
			if !t.Completed {
				continue
			}
		}
		if query != "" && !strings.Contains(strings.ToLower(t.Title), query) {
			continue
		}
		out = append(out, t)
	}

	switch sortBy {
	case SortOldest:
		sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt < out[j].CreatedAt })
	case SortPriority:
		sort.SliceStable(out, func(i, j int) bool {
			return priorityRank[out[i].Priority] < priorityRank[out[j].Priority]
		})
	case SortAlphabetical:
		sort.SliceStable(out, func(i, j int) bool {
			return strings.ToLower(out[i].Title) < strings.ToLower(out[j].Title)
		})
	default: // newest
		sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt > out[j].CreatedAt })
	}
	return out
}
