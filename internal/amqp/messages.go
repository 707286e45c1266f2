package amqp

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// EventTransactionRecorded is the message type of TransactionRecordedMessage.
const EventTransactionRecorded = "transaction.recorded"

// TransactionRecordedMessage announces that a transaction was stored. It
// carries references only; subscribers re-read from the store.
type TransactionRecordedMessage struct {
	ID        string    `json:"id"`
	Ref       string    `json:"ref"`
	User      string    `json:"user"`
	Origin    string    `json:"origin"`
	Timestamp time.Time `json:"timestamp"`
}

func NewTransactionRecordedMessage(ref, user, origin string) *TransactionRecordedMessage {
	return &TransactionRecordedMessage{
		ID:        uuid.NewString(),
		Ref:       ref,
		User:      user,
		Origin:    origin,
		Timestamp: time.Now().UTC(),
	}
}

func (m *TransactionRecordedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func TransactionRecordedMessageFromJSON(data []byte) (*TransactionRecordedMessage, error) {
	var msg TransactionRecordedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
