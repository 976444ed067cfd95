package storage

import (
	"encoding/json"
	"testing"

	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"
)

func TestPositionActionsMergeEveryListedRow(t *testing.T) {
	positions := map[string]int{
		"task-a": 0,
		"task-b": 1,
		"task-c": 2,
	}
	actions, err := positionActions("user-1", positions)
	if err != nil {
		t.Fatalf("positionActions: %v", err)
	}
	if len(actions) != len(positions) {
		t.Fatalf("got %d actions, want %d", len(actions), len(positions))
	}
	seen := map[string]bool{}
	for _, a := range actions {
		if a.ActionType != aztables.TransactionTypeUpdateMerge {
			t.Fatalf("action type = %v, want UpdateMerge", a.ActionType)
		}
		if a.IfMatch == nil || *a.IfMatch != "*" {
			t.Fatalf("merge action must be unconditional, got %v", a.IfMatch)
		}
		var ent struct {
			PartitionKey string `json:"PartitionKey"`
			RowKey       string `json:"RowKey"`
			Position     int    `json:"Position"`
		}
		if err := json.Unmarshal(a.Entity, &ent); err != nil {
			t.Fatalf("unmarshal action entity: %v", err)
		}
		if ent.PartitionKey != "user-1" {
			t.Fatalf("partition key = %q, want user-1", ent.PartitionKey)
		}
		want, ok := positions[ent.RowKey]
		if !ok {
			t.Fatalf("unexpected row key %q", ent.RowKey)
		}
		if ent.Position != want {
			t.Fatalf("position for %s = %d, want %d", ent.RowKey, ent.Position, want)
		}
		seen[ent.RowKey] = true
	}
	if len(seen) != len(positions) {
		t.Fatalf("batch covered %d rows, want %d", len(seen), len(positions))
	}
}

func TestInsertActionsCarryFullRows(t *testing.T) {
	rows := []TaskRow{
		{ID: "task-a", UserID: "user-1", Title: "one", Status: "todo", Position: 0},
		{ID: "task-b", UserID: "user-1", Title: "two", Status: "done", Completed: true, Position: 1},
	}
	actions, err := insertActions(rows)
	if err != nil {
		t.Fatalf("insertActions: %v", err)
	}
	if len(actions) != 2 {
		t.Fatalf("got %d actions, want 2", len(actions))
	}
	for i, a := range actions {
		if a.ActionType != aztables.TransactionTypeAdd {
			t.Fatalf("action type = %v, want Add", a.ActionType)
		}
		var ent taskEntity
		if err := json.Unmarshal(a.Entity, &ent); err != nil {
			t.Fatalf("unmarshal action entity: %v", err)
		}
		if got := rowFromTaskEntity(ent); got != rows[i] {
			t.Fatalf("row %d round-tripped as %+v, want %+v", i, got, rows[i])
		}
	}
}

func TestDeleteActionsTargetRowKeys(t *testing.T) {
	actions := deleteActions("user-1", []string{"task-a", "task-b"})
	if len(actions) != 2 {
		t.Fatalf("got %d actions, want 2", len(actions))
	}
	for i, id := range []string{"task-a", "task-b"} {
		a := actions[i]
		if a.ActionType != aztables.TransactionTypeDelete {
			t.Fatalf("action type = %v, want Delete", a.ActionType)
		}
		var ent struct {
			PartitionKey string `json:"PartitionKey"`
			RowKey       string `json:"RowKey"`
		}
		if err := json.Unmarshal(a.Entity, &ent); err != nil {
			t.Fatalf("unmarshal action entity: %v", err)
		}
		if ent.PartitionKey != "user-1" || ent.RowKey != id {
			t.Fatalf("action %d targets %s/%s, want user-1/%s", i, ent.PartitionKey, ent.RowKey, id)
		}
	}
}

func TestBatchChunksRespectServiceLimit(t *testing.T) {
	cases := []struct {
		actions int
		want    []int
	}{
		{0, nil},
		{1, []int{1}},
		{transactionLimit, []int{transactionLimit}},
		{transactionLimit + 1, []int{transactionLimit, 1}},
		{2*transactionLimit + 50, []int{transactionLimit, transactionLimit, 50}},
	}
	for _, tc := range cases {
		chunks := batchChunks(make([]aztables.TransactionAction, tc.actions))
		if len(chunks) != len(tc.want) {
			t.Fatalf("%d actions: got %d chunks, want %d", tc.actions, len(chunks), len(tc.want))
		}
		for i, chunk := range chunks {
			if len(chunk) != tc.want[i] {
				t.Fatalf("%d actions: chunk %d has %d actions, want %d", tc.actions, i, len(chunk), tc.want[i])
			}
		}
	}
}
