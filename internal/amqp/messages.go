package amqp

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"expenses/internal/core"
)

// EventType names the mutation that produced an ExpenseEvent.
type EventType string

const (
	EventCreated EventType = "expense.created"
	EventUpdated EventType = "expense.updated"
	EventDeleted EventType = "expense.deleted"
)

func (t EventType) Valid() bool {
	switch t {
	case EventCreated, EventUpdated, EventDeleted:
		return true
	}
	return false
}

// ExpenseEvent carries the record as it was after the mutation, or as it was
// before removal for EventDeleted.
type ExpenseEvent struct {
	Type       EventType    `json:"type"`
	ID         uuid.UUID    `json:"id"`
	Expense    core.Expense `json:"expense"`
	OccurredAt time.Time    `json:"occurred_at"`
}

func NewExpenseEvent(t EventType, e core.Expense) ExpenseEvent {
	return ExpenseEvent{Type: t, ID: e.ID, Expense: e, OccurredAt: time.Now().UTC()}
}

func (e ExpenseEvent) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// ExpenseEventFromJSON decodes and checks an event body.
func ExpenseEventFromJSON(data []byte) (ExpenseEvent, error) {
	var ev ExpenseEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return ExpenseEvent{}, fmt.Errorf("decode expense event: %w", err)
	}
	if !ev.Type.Valid() {
		return ExpenseEvent{}, fmt.Errorf("decode expense event: unknown type %q", ev.Type)
	}
	if ev.ID == uuid.Nil {
		return ExpenseEvent{}, fmt.Errorf("decode expense event: missing id")
	}
	return ev, nil
}
