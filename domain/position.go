package domain

// RenumberPartition walks tasks in slice order and reassigns contiguous
// 0-based positions to every member of the given partition, leaving other
// partitions untouched. This is the single position-assignment rule used
// after every structural mutation: relative order inside a partition is
// always the slice order, and positions never carry gaps or duplicates.
func RenumberPartition(tasks []Task, list ListID) {
	next := 0
	for i := range tasks {
		if tasks[i].ListID != list {
			continue
		}
		tasks[i].Position = next
		next++
	}
}

// RenumberPartitions renumbers several partitions in one pass, deduplicating
// repeated list ids.
func RenumberPartitions(tasks []Task, lists ...ListID) {
	seen := make(map[ListID]struct{}, len(lists))
	for _, l := range lists {
		if _, ok := seen[l]; ok {
			continue
		}
		seen[l] = struct{}{}
		RenumberPartition(tasks, l)
	}
}

// PartitionPositions returns the id→position mapping for every task in the
// given partition, in the shape the remote bulk position sync expects.
func PartitionPositions(tasks []Task, list ListID) map[string]int {
	out := make(map[string]int)
	for _, t := range tasks {
		if t.ListID == list {
			out[t.ID] = t.Position
		}
	}
	return out
}
