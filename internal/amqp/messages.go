package amqp

import (
	"encoding/json"
	"time"
)

// RoutingPrefix prefixes the routing key of every ledger change message.
const RoutingPrefix = "ledger."

// LedgerChanged announces that a user's ledger was written. It carries no
// payload: consumers re-read the ledger from the store.
type LedgerChanged struct {
	UserID    string    `json:"user_id"`
	Timestamp time.Time `json:"timestamp"`
}

// NewLedgerChanged creates a message stamped with the current time.
func NewLedgerChanged(uid string) *LedgerChanged {
	return &LedgerChanged{UserID: uid, Timestamp: time.Now()}
}

// RoutingKey returns the topic routing key for uid.
func RoutingKey(uid string) string {
	return RoutingPrefix + uid
}

// ToJSON converts the message to JSON bytes
func (m *LedgerChanged) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// LedgerChangedFromJSON decodes a message.
func LedgerChangedFromJSON(data []byte) (*LedgerChanged, error) {
	var msg LedgerChanged
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
