package amqp

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// JobKind names the ledger maintenance a worker performs for one account.
type JobKind string

const (
	JobRecalculate  JobKind = "recalculate"
	JobRecategorize JobKind = "recategorize"
)

// JobMessage asks a worker to rebuild derived ledger state for an account.
// From is optional; without it the whole history is processed.
type JobMessage struct {
	ID        uuid.UUID  `json:"id"`
	Kind      JobKind    `json:"kind"`
	AccountID int64      `json:"account_id"`
	From      *time.Time `json:"from,omitempty"`
	To        *time.Time `json:"to,omitempty"`
	// Uncategorized restricts a recategorize job to transactions without a category.
	Uncategorized bool      `json:"uncategorized,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}

func NewRecalculateJob(accountID int64, from *time.Time) *JobMessage {
	return &JobMessage{
		ID:        uuid.New(),
		Kind:      JobRecalculate,
		AccountID: accountID,
		From:      from,
		Timestamp: time.Now(),
	}
}

func NewRecategorizeJob(accountID int64, from, to *time.Time, uncategorized bool) *JobMessage {
	return &JobMessage{
		ID:            uuid.New(),
		Kind:          JobRecategorize,
		AccountID:     accountID,
		From:          from,
		To:            to,
		Uncategorized: uncategorized,
		Timestamp:     time.Now(),
	}
}

// Validate rejects messages a worker cannot act on. Invalid messages are
// dropped rather than requeued.
func (m *JobMessage) Validate() error {
	switch m.Kind {
	case JobRecalculate, JobRecategorize:
	default:
		return fmt.Errorf("unknown job kind %q", m.Kind)
	}
	if m.AccountID <= 0 {
		return fmt.Errorf("invalid account id %d", m.AccountID)
	}
	if m.From != nil && m.To != nil && !m.From.Before(*m.To) {
		return fmt.Errorf("job window is empty")
	}
	return nil
}

func (m *JobMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func JobMessageFromJSON(data []byte) (*JobMessage, error) {
	var msg JobMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if err := msg.Validate(); err != nil {
		return nil, err
	}
	return &msg, nil
}
