package amqp

import (
	"encoding/json"
	"fmt"
	"time"
)

// Action is what happened to a transaction.
type Action string

const (
	ActionCreated Action = "created"
	ActionUpdated Action = "updated"
	ActionDeleted Action = "deleted"
)

func (a Action) IsValid() bool {
	switch a {
	case ActionCreated, ActionUpdated, ActionDeleted:
		return true
	}
	return false
}

// TransactionChangedMessage tells consumers that a project's transactions
// changed. It carries identifiers only; consumers reload the project.
type TransactionChangedMessage struct {
	OrganizationID string    `json:"organization_id"`
	ProjectID      string    `json:"project_id"`
	TransactionID  string    `json:"transaction_id"`
	Action         Action    `json:"action"`
	Timestamp      time.Time `json:"timestamp"`
}

func NewTransactionChangedMessage(orgID, projectID, transactionID string, action Action) *TransactionChangedMessage {
	return &TransactionChangedMessage{
		OrganizationID: orgID,
		ProjectID:      projectID,
		TransactionID:  transactionID,
		Action:         action,
		Timestamp:      time.Now(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *TransactionChangedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// TransactionChangedMessageFromJSON decodes and checks a message body.
func TransactionChangedMessageFromJSON(data []byte) (*TransactionChangedMessage, error) {
	var msg TransactionChangedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.OrganizationID == "" || msg.ProjectID == "" {
		return nil, fmt.Errorf("message without organization or project")
	}
	if !msg.Action.IsValid() {
		return nil, fmt.Errorf("unknown action %q", msg.Action)
	}
	return &msg, nil
}
