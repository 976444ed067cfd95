package storage

import (
	"testing"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
)

func TestNewEventEncodesPayload(t *testing.T) {
	ev, err := NewEvent("user-1", "task", "task-1", TaskCreated, map[string]string{"title": "hello"})
	if err != nil {
		t.Fatalf("NewEvent: %v", err)
	}
	if _, err := uuid.Parse(ev.ID); err != nil {
		t.Fatalf("event id %q is not a uuid", ev.ID)
	}
	if ev.UserID != "user-1" || ev.EntityType != "task" || ev.EntityID != "task-1" || ev.Type != TaskCreated {
		t.Fatalf("event %+v", ev)
	}
	if ev.Time == 0 {
		t.Fatal("event time not set")
	}

	var payload map[string]string
	if err := sonic.Unmarshal(ev.Data, &payload); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if payload["title"] != "hello" {
		t.Fatalf("payload %v", payload)
	}
}

func TestNewEventNilData(t *testing.T) {
	ev, err := NewEvent("user-1", "task", "task-1", TaskDeleted, nil)
	if err != nil {
		t.Fatalf("NewEvent: %v", err)
	}
	if ev.Data != nil {
		t.Fatalf("expected empty data, got %s", ev.Data)
	}
}

func TestNewEventRejectsUnencodablePayload(t *testing.T) {
	if _, err := NewEvent("user-1", "task", "task-1", TaskUpdated, func() {}); err == nil {
		t.Fatal("expected an encoding error")
	}
}
