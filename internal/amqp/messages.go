package amqp

import (
	"encoding/json"
	"time"
)

// AccountRecomputedMessage announces that an account's aggregates were
// rewritten. Consumers reload the account itself; the message carries only
// enough to route and log it.
type AccountRecomputedMessage struct {
	AccountID string    `json:"accountId"`
	BookID    string    `json:"accountBookId"`
	Reason    string    `json:"reason"`
	Month     string    `json:"month"`
	Balance   string    `json:"balance"`
	Timestamp time.Time `json:"timestamp"`
}

// NewAccountRecomputedMessage creates a message stamped with the current time.
func NewAccountRecomputedMessage(accountID, bookID, reason, month, balance string) *AccountRecomputedMessage {
	return &AccountRecomputedMessage{
		AccountID: accountID,
		BookID:    bookID,
		Reason:    reason,
		Month:     month,
		Balance:   balance,
		Timestamp: time.Now(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *AccountRecomputedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// AccountRecomputedMessageFromJSON decodes a message body.
func AccountRecomputedMessageFromJSON(data []byte) (*AccountRecomputedMessage, error) {
	var msg AccountRecomputedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
