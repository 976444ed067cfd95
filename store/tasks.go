package store

import (
	"context"
	"sort"
	"time"

	"boardsync/domain"
	"boardsync/storage"
)

// Draft carries the caller-supplied fields of a new task. Title is assumed
// trimmed and non-empty by the UI; the store does not re-validate it.
type Draft struct {
	Title      string
	Priority   domain.Priority
	CategoryID string
	DueDate    string
}

// AddTask inserts a new task at the head of the todo partition.
func (s *Store) AddTask(ctx context.Context, draft Draft) error {
	return s.addTask(ctx, draft, domain.ListTodo)
}

// AddTaskToList inserts a new task at the head of an arbitrary partition.
// The overdue bucket is never persisted, so it normalizes to todo.
func (s *Store) AddTaskToList(ctx context.Context, draft Draft, list domain.ListID) error {
	return s.addTask(ctx, draft, list.Normalize())
}

func (s *Store) addTask(ctx context.Context, draft Draft, list domain.ListID) error {
	user, ok := s.currentUser(ctx)
	if !ok {
		return nil
	}
	if !draft.Priority.Valid() {
		draft.Priority = domain.PriorityMedium
	}

	task := domain.Task{
		ID:         tempID(),
		Title:      draft.Title,
		Completed:  list == domain.ListDone,
		Priority:   draft.Priority,
		CategoryID: draft.CategoryID,
		ListID:     list,
		DueDate:    draft.DueDate,
		CreatedAt:  s.now().UTC().Format(time.RFC3339),
		Position:   0,
	}

	s.mu.Lock()
	var shifted []string
	for i := range s.tasks {
		if s.tasks[i].ListID == list {
			s.tasks[i].Position++
			shifted = append(shifted, s.tasks[i].ID)
		}
	}
	s.tasks = append([]domain.Task{task}, s.tasks...)
	s.mu.Unlock()
	s.notify()

	row := storage.RowFromTask(user.ID, task)
	row.ID = "" // the remote store assigns the permanent id
	s.goRemote("add_task", func(ctx context.Context) error {
		stored, err := s.remote.InsertTask(ctx, row)
		if err != nil {
			s.rollbackAdd(task.ID, shifted)
			return err
		}
		confirmed, err := storage.TaskFromRow(stored)
		if err != nil {
			s.rollbackAdd(task.ID, shifted)
			return err
		}
		s.confirmInserts(map[string]domain.Task{task.ID: confirmed})
		s.publish(ctx, user.ID, "task", confirmed.ID, storage.TaskCreated, confirmed)
		return nil
	})
	return nil
}

// rollbackAdd drops the temp entry and undoes the position shift of its
// partition siblings, leaving the collection exactly as before the add.
func (s *Store) rollbackAdd(tempID string, shifted []string) {
	s.mu.Lock()
	if i := s.indexOfLocked(tempID); i >= 0 {
		s.tasks = append(s.tasks[:i], s.tasks[i+1:]...)
	}
	for _, id := range shifted {
		if i := s.indexOfLocked(id); i >= 0 {
			s.tasks[i].Position--
		}
	}
	s.mu.Unlock()
	s.notify()
}

// confirmInserts swaps temp entries for their confirmed entities in place.
// The locally assigned position is kept: a move that raced the confirmation
// may already have renumbered it.
func (s *Store) confirmInserts(confirmed map[string]domain.Task) {
	s.mu.Lock()
	for tempID, task := range confirmed {
		if i := s.indexOfLocked(tempID); i >= 0 {
			task.Position = s.tasks[i].Position
			s.tasks[i] = task
		}
	}
	s.mu.Unlock()
	s.notify()
}

// ToggleTask flips a task's completed flag and moves it between the todo and
// done partitions, keeping the two fields in lockstep.
func (s *Store) ToggleTask(ctx context.Context, id string) error {
	user, ok := s.currentUser(ctx)
	if !ok {
		return nil
	}

	s.mu.Lock()
	i := s.indexOfLocked(id)
	if i < 0 {
		s.mu.Unlock()
		return nil
	}
	prevCompleted := s.tasks[i].Completed
	prevList := s.tasks[i].ListID
	newList := domain.ListTodo
	if !prevCompleted {
		newList = domain.ListDone
	}
	s.tasks[i].Completed = !prevCompleted
	s.tasks[i].ListID = newList
	s.mu.Unlock()
	s.notify()

	patch := storage.StatusPatch(newList)
	s.goRemote("toggle_task", func(ctx context.Context) error {
		if err := s.remote.UpdateTask(ctx, user.ID, id, patch); err != nil {
			if s.policy.Toggle {
				s.patchTask(id, func(t *domain.Task) {
					t.Completed = prevCompleted
					t.ListID = prevList
				})
			}
			return err
		}
		s.publish(ctx, user.ID, "task", id, storage.TaskUpdated, patch)
		return nil
	})
	return nil
}

// EditTask merges the fields present in updates. Only those fields travel to
// the remote store; clearing a field needs an explicit empty value.
func (s *Store) EditTask(ctx context.Context, id string, updates domain.TaskUpdate) error {
	user, ok := s.currentUser(ctx)
	if !ok || updates.Empty() {
		return nil
	}

	s.mu.Lock()
	i := s.indexOfLocked(id)
	if i < 0 {
		s.mu.Unlock()
		return nil
	}
	prev := captureUpdate(&s.tasks[i], updates)
	applyUpdate(&s.tasks[i], updates)
	s.mu.Unlock()
	s.notify()

	patch := storage.PatchFromUpdate(updates)
	s.goRemote("edit_task", func(ctx context.Context) error {
		if err := s.remote.UpdateTask(ctx, user.ID, id, patch); err != nil {
			if s.policy.Edit {
				s.patchTask(id, func(t *domain.Task) { applyUpdate(t, prev) })
			}
			return err
		}
		s.publish(ctx, user.ID, "task", id, storage.TaskUpdated, patch)
		return nil
	})
	return nil
}

// captureUpdate records the current values of exactly the fields updates is
// about to overwrite, for a targeted rollback.
func captureUpdate(t *domain.Task, updates domain.TaskUpdate) domain.TaskUpdate {
	var prev domain.TaskUpdate
	if updates.Title != nil {
		v := t.Title
		prev.Title = &v
	}
	if updates.Priority != nil {
		v := t.Priority
		prev.Priority = &v
	}
	if updates.CategoryID != nil {
		v := t.CategoryID
		prev.CategoryID = &v
	}
	if updates.DueDate != nil {
		v := t.DueDate
		prev.DueDate = &v
	}
	return prev
}

func applyUpdate(t *domain.Task, u domain.TaskUpdate) {
	if u.Title != nil {
		t.Title = *u.Title
	}
	if u.Priority != nil {
		t.Priority = *u.Priority
	}
	if u.CategoryID != nil {
		t.CategoryID = *u.CategoryID
	}
	if u.DueDate != nil {
		t.DueDate = *u.DueDate
	}
}

// DeleteTask removes a task and returns the removed entity so the caller can
// offer undo via RestoreTask.
func (s *Store) DeleteTask(ctx context.Context, id string) (domain.Task, bool) {
	user, ok := s.currentUser(ctx)
	if !ok {
		return domain.Task{}, false
	}

	s.mu.Lock()
	i := s.indexOfLocked(id)
	if i < 0 {
		s.mu.Unlock()
		return domain.Task{}, false
	}
	removed := s.tasks[i]
	idx := i
	s.tasks = append(s.tasks[:i], s.tasks[i+1:]...)
	s.mu.Unlock()
	s.notify()

	s.goRemote("delete_task", func(ctx context.Context) error {
		if err := s.remote.DeleteTasks(ctx, user.ID, id); err != nil {
			if s.policy.Delete {
				s.reinsertAt(removed, idx)
			}
			return err
		}
		s.publish(ctx, user.ID, "task", id, storage.TaskDeleted, nil)
		return nil
	})
	return removed, true
}

// RestoreTask re-adds a previously deleted task at its original position.
// A remote-shaped id is kept on re-insert; a temp id is dropped so the row
// store assigns a fresh one.
func (s *Store) RestoreTask(ctx context.Context, task domain.Task) error {
	user, ok := s.currentUser(ctx)
	if !ok {
		return nil
	}

	s.mu.Lock()
	if s.indexOfLocked(task.ID) >= 0 {
		s.mu.Unlock()
		return nil
	}
	s.tasks = append(s.tasks, task)
	sort.SliceStable(s.tasks, func(i, j int) bool { return s.tasks[i].Position < s.tasks[j].Position })
	s.mu.Unlock()
	s.notify()

	row := storage.RowFromTask(user.ID, task)
	if !permanentID(task.ID) {
		row.ID = ""
	}
	s.goRemote("restore_task", func(ctx context.Context) error {
		stored, err := s.remote.InsertTask(ctx, row)
		if err != nil {
			if s.policy.Restore {
				s.removeTasks(task.ID)
			}
			return err
		}
		confirmed, err := storage.TaskFromRow(stored)
		if err != nil {
			return err
		}
		s.confirmInserts(map[string]domain.Task{task.ID: confirmed})
		s.publish(ctx, user.ID, "task", confirmed.ID, storage.TaskCreated, confirmed)
		return nil
	})
	return nil
}

// MoveTaskToList is the drag-and-drop primitive: it reassigns the task's
// partition, inserts it at the requested slot, and renumbers every affected
// partition to contiguous 0-based positions. The whole resulting ordering is
// pushed to the remote store so sibling positions cannot drift.
func (s *Store) MoveTaskToList(ctx context.Context, taskID string, targetList domain.ListID, targetPosition int) error {
	user, ok := s.currentUser(ctx)
	if !ok {
		return nil
	}
	target := targetList.Normalize()

	s.mu.Lock()
	i := s.indexOfLocked(taskID)
	if i < 0 {
		s.mu.Unlock()
		return nil
	}
	source := s.tasks[i].ListID
	prev := s.capturePlacementLocked(source, target)

	s.tasks[i].ListID = target
	s.tasks[i].Completed = target == domain.ListDone
	s.placeLocked(taskID, target, targetPosition)
	if source != target {
		domain.RenumberPartition(s.tasks, source)
	}

	finalPos := s.tasks[s.indexOfLocked(taskID)].Position
	positions := domain.PartitionPositions(s.tasks, target)
	if source != target {
		for id, pos := range domain.PartitionPositions(s.tasks, source) {
			positions[id] = pos
		}
	}
	s.mu.Unlock()
	s.notify()

	patch := storage.StatusPatch(target)
	patch.Position = &finalPos
	s.goRemote("move_task", func(ctx context.Context) error {
		if err := s.remote.UpdateTask(ctx, user.ID, taskID, patch); err != nil {
			if s.policy.Move {
				s.restorePlacement(prev)
			}
			return err
		}
		if err := s.remote.UpdatePositions(ctx, user.ID, positions); err != nil {
			if s.policy.Move {
				s.restorePlacement(prev)
			}
			return err
		}
		s.publish(ctx, user.ID, "task", taskID, storage.TaskMoved, map[string]any{
			"listId":   target,
			"position": finalPos,
		})
		return nil
	})
	return nil
}

// placeLocked orders the partition by position (ties broken by slice order),
// slots the given task at the clamped index and assigns contiguous positions.
// A later mover always wins the contested slot: the previous occupant and
// everything below shift down.
func (s *Store) placeLocked(taskID string, list domain.ListID, position int) {
	type member struct {
		idx int
		pos int
	}
	var members []member
	for i := range s.tasks {
		if s.tasks[i].ListID == list && s.tasks[i].ID != taskID {
			members = append(members, member{idx: i, pos: s.tasks[i].Position})
		}
	}
	sort.SliceStable(members, func(a, b int) bool { return members[a].pos < members[b].pos })

	if position < 0 {
		position = 0
	}
	if position > len(members) {
		position = len(members)
	}

	order := make([]int, 0, len(members)+1)
	for _, m := range members[:position] {
		order = append(order, m.idx)
	}
	order = append(order, s.indexOfLocked(taskID))
	for _, m := range members[position:] {
		order = append(order, m.idx)
	}
	for pos, idx := range order {
		s.tasks[idx].Position = pos
	}
}

// ClearCompleted removes every completed task and returns the removed set
// for undo via RestoreTasks. The remote delete is a single bulk call.
func (s *Store) ClearCompleted(ctx context.Context) []domain.Task {
	user, ok := s.currentUser(ctx)
	if !ok {
		return nil
	}

	s.mu.Lock()
	var cleared []domain.Task
	remaining := s.tasks[:0:0]
	for _, t := range s.tasks {
		if t.Completed {
			cleared = append(cleared, t)
		} else {
			remaining = append(remaining, t)
		}
	}
	if len(cleared) == 0 {
		s.mu.Unlock()
		return nil
	}
	s.tasks = remaining
	s.mu.Unlock()
	s.notify()

	ids := make([]string, len(cleared))
	for i, t := range cleared {
		ids[i] = t.ID
	}
	s.goRemote("clear_completed", func(ctx context.Context) error {
		if err := s.remote.DeleteTasks(ctx, user.ID, ids...); err != nil {
			if s.policy.Clear {
				s.readdTasks(cleared)
			}
			return err
		}
		for _, id := range ids {
			s.publish(ctx, user.ID, "task", id, storage.TaskDeleted, nil)
		}
		return nil
	})
	return cleared
}

// RestoreTasks bulk re-inserts a previously cleared set, deduplicated
// against the current collection.
func (s *Store) RestoreTasks(ctx context.Context, tasks []domain.Task) error {
	user, ok := s.currentUser(ctx)
	if !ok || len(tasks) == 0 {
		return nil
	}

	s.mu.Lock()
	existing := make(map[string]struct{}, len(s.tasks))
	for _, t := range s.tasks {
		existing[t.ID] = struct{}{}
	}
	var added []domain.Task
	for _, t := range tasks {
		if _, dup := existing[t.ID]; dup {
			continue
		}
		existing[t.ID] = struct{}{}
		added = append(added, t)
		s.tasks = append(s.tasks, t)
	}
	sort.SliceStable(s.tasks, func(i, j int) bool { return s.tasks[i].Position < s.tasks[j].Position })
	s.mu.Unlock()
	s.notify()

	if len(added) == 0 {
		return nil
	}

	rows := make([]storage.TaskRow, len(added))
	for i, t := range added {
		row := storage.RowFromTask(user.ID, t)
		if !permanentID(t.ID) {
			row.ID = ""
		}
		rows[i] = row
	}
	s.goRemote("restore_tasks", func(ctx context.Context) error {
		stored, err := s.remote.InsertTasks(ctx, rows)
		if err != nil {
			if s.policy.Restore {
				ids := make([]string, len(added))
				for i, t := range added {
					ids[i] = t.ID
				}
				s.removeTasks(ids...)
			}
			return err
		}
		confirmed := make(map[string]domain.Task, len(stored))
		for i, row := range stored {
			if i >= len(added) {
				break
			}
			task, err := storage.TaskFromRow(row)
			if err != nil {
				s.logger.WithError(err).Warn("dropping malformed confirmation row")
				continue
			}
			confirmed[added[i].ID] = task
			s.publish(ctx, user.ID, "task", task.ID, storage.TaskCreated, task)
		}
		s.confirmInserts(confirmed)
		return nil
	})
	return nil
}

// ReorderTasks handles a single-list drag: the active task takes the slot of
// the task it was dropped over, and the affected partitions are renumbered.
// Dropping a task onto itself changes nothing.
func (s *Store) ReorderTasks(ctx context.Context, activeID, overID string) error {
	user, ok := s.currentUser(ctx)
	if !ok || activeID == overID {
		return nil
	}

	s.mu.Lock()
	oldIdx := s.indexOfLocked(activeID)
	newIdx := s.indexOfLocked(overID)
	if oldIdx < 0 || newIdx < 0 || oldIdx == newIdx {
		s.mu.Unlock()
		return nil
	}
	activeList := s.tasks[oldIdx].ListID
	overList := s.tasks[newIdx].ListID
	prev := s.capturePlacementLocked(activeList, overList)

	moved := s.tasks[oldIdx]
	s.tasks = append(s.tasks[:oldIdx], s.tasks[oldIdx+1:]...)
	if newIdx > len(s.tasks) {
		newIdx = len(s.tasks)
	}
	s.tasks = append(s.tasks[:newIdx], append([]domain.Task{moved}, s.tasks[newIdx:]...)...)
	domain.RenumberPartitions(s.tasks, activeList, overList)

	positions := domain.PartitionPositions(s.tasks, activeList)
	if overList != activeList {
		for id, pos := range domain.PartitionPositions(s.tasks, overList) {
			positions[id] = pos
		}
	}
	s.mu.Unlock()
	s.notify()

	s.goRemote("reorder_tasks", func(ctx context.Context) error {
		if err := s.remote.UpdatePositions(ctx, user.ID, positions); err != nil {
			if s.policy.Reorder {
				s.restorePlacement(prev)
			}
			return err
		}
		s.publish(ctx, user.ID, "task", activeID, storage.TaskMoved, positions)
		return nil
	})
	return nil
}

func (s *Store) indexOfLocked(id string) int {
	for i := range s.tasks {
		if s.tasks[i].ID == id {
			return i
		}
	}
	return -1
}

// patchTask mutates a single task in place if it is still present.
func (s *Store) patchTask(id string, fn func(*domain.Task)) {
	s.mu.Lock()
	if i := s.indexOfLocked(id); i >= 0 {
		fn(&s.tasks[i])
	}
	s.mu.Unlock()
	s.notify()
}

func (s *Store) removeTasks(ids ...string) {
	s.mu.Lock()
	for _, id := range ids {
		if i := s.indexOfLocked(id); i >= 0 {
			s.tasks = append(s.tasks[:i], s.tasks[i+1:]...)
		}
	}
	s.mu.Unlock()
	s.notify()
}

// reinsertAt puts a rolled-back delete back at its original slice index.
func (s *Store) reinsertAt(task domain.Task, idx int) {
	s.mu.Lock()
	if s.indexOfLocked(task.ID) < 0 {
		if idx > len(s.tasks) {
			idx = len(s.tasks)
		}
		s.tasks = append(s.tasks[:idx], append([]domain.Task{task}, s.tasks[idx:]...)...)
	}
	s.mu.Unlock()
	s.notify()
}

// readdTasks re-inserts rolled-back bulk removals, skipping ids that came
// back through another path meanwhile.
func (s *Store) readdTasks(tasks []domain.Task) {
	s.mu.Lock()
	for _, t := range tasks {
		if s.indexOfLocked(t.ID) < 0 {
			s.tasks = append(s.tasks, t)
		}
	}
	sort.SliceStable(s.tasks, func(i, j int) bool { return s.tasks[i].Position < s.tasks[j].Position })
	s.mu.Unlock()
	s.notify()
}

type placement struct {
	list      domain.ListID
	completed bool
	position  int
}

// capturePlacementLocked snapshots partition membership and positions of
// every task in the given partitions, for a targeted rollback that leaves
// unrelated tasks alone.
func (s *Store) capturePlacementLocked(lists ...domain.ListID) map[string]placement {
	want := make(map[domain.ListID]struct{}, len(lists))
	for _, l := range lists {
		want[l] = struct{}{}
	}
	prev := make(map[string]placement)
	for _, t := range s.tasks {
		if _, ok := want[t.ListID]; ok {
			prev[t.ID] = placement{list: t.ListID, completed: t.Completed, position: t.Position}
		}
	}
	return prev
}

func (s *Store) restorePlacement(prev map[string]placement) {
	s.mu.Lock()
	for i := range s.tasks {
		if p, ok := prev[s.tasks[i].ID]; ok {
			s.tasks[i].ListID = p.list
			s.tasks[i].Completed = p.completed
			s.tasks[i].Position = p.position
		}
	}
	s.mu.Unlock()
	s.notify()
}
