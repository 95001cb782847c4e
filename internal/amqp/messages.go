package amqp

import (
	"encoding/json"
	"fmt"
	"time"
)

// Entities a ledger event can refer to.
const (
	EntityMember       = "member"
	EntityExpense      = "expense"
	EntityCycleSummary = "cycle_summary"
	EntityLedger       = "ledger"
)

// Operations carried by a ledger event.
const (
	OpCreated  = "created"
	OpUpdated  = "updated"
	OpDeleted  = "deleted"
	OpRestored = "restored"
)

// LedgerEvent announces a committed write. It carries enough to tell which
// cycles changed; consumers reload the data they need from the store.
type LedgerEvent struct {
	Entity    string `json:"entity"`
	Operation string `json:"operation"`
	ID        int64  `json:"id,omitempty"`
	// Dates are the expense dates touched by the write, old and new.
	Dates     []time.Time `json:"dates,omitempty"`
	CycleKey  string      `json:"cycleKey,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// NewLedgerEvent creates an event stamped with the current time.
func NewLedgerEvent(entity, op string, id int64) *LedgerEvent {
	return &LedgerEvent{
		Entity:    entity,
		Operation: op,
		ID:        id,
		Timestamp: time.Now(),
	}
}

// RoutingKey is "<entity>.<operation>".
func (m *LedgerEvent) RoutingKey() string {
	return m.Entity + "." + m.Operation
}

// ToJSON converts the message to JSON bytes
func (m *LedgerEvent) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// LedgerEventFromJSON parses and sanity-checks a message body.
func LedgerEventFromJSON(data []byte) (*LedgerEvent, error) {
	var msg LedgerEvent
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.Entity == "" || msg.Operation == "" {
		return nil, fmt.Errorf("ledger event missing entity or operation")
	}
	return &msg, nil
}
