package amqp

import (
	"encoding/json"
	"fmt"
	"time"
)

// Operations carried by ExpenseChangedMessage.
const (
	OpCreate    = "create"
	OpUpdate    = "update"
	OpDelete    = "delete"
	OpReconcile = "reconcile"
)

// ExpenseChangedMessage announces that an owner's mirror was rewritten.
// Consumers re-read the mirror; the message carries no record data.
type ExpenseChangedMessage struct {
	OwnerKey    string    `json:"owner_key"`
	Operation   string    `json:"operation"`
	ExpenseID   string    `json:"expense_id,omitempty"`
	RecordCount int       `json:"record_count"`
	Timestamp   time.Time `json:"timestamp"`
}

// NewExpenseChangedMessage creates a message stamped with the current time.
func NewExpenseChangedMessage(ownerKey, op, expenseID string, count int) *ExpenseChangedMessage {
	return &ExpenseChangedMessage{
		OwnerKey:    ownerKey,
		Operation:   op,
		ExpenseID:   expenseID,
		RecordCount: count,
		Timestamp:   time.Now().UTC(),
	}
}

func (m *ExpenseChangedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// ExpenseChangedMessageFromJSON decodes a message and requires an owner key.
func ExpenseChangedMessageFromJSON(data []byte) (*ExpenseChangedMessage, error) {
	var msg ExpenseChangedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.OwnerKey == "" {
		return nil, fmt.Errorf("message without owner_key")
	}
	return &msg, nil
}
