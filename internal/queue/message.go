package queue

import (
	"encoding/json"
	"time"
)

// MessageVersion is the current redelivery message schema.
const MessageVersion = 1

// Message asks a worker to retry delivery of one stored submission.
type Message struct {
	SubmissionID int64  `json:"submissionId"`
	RequestID    string `json:"requestId,omitempty"`
	Reason       string `json:"reason,omitempty"`
	EnqueuedAt   string `json:"enqueuedAt"`
	Version      int    `json:"version"`
}

// NewMessage builds a redelivery message stamped with the current time.
func NewMessage(submissionID int64, requestID, reason string) Message {
	return Message{
		SubmissionID: submissionID,
		RequestID:    requestID,
		Reason:       reason,
		EnqueuedAt:   time.Now().UTC().Format(time.RFC3339),
		Version:      MessageVersion,
	}
}

// EncodeMessage returns the JSON representation of a message.
func EncodeMessage(msg Message) ([]byte, error) {
	return json.Marshal(msg)
}

// DecodeMessage parses a JSON payload into a Message.
func DecodeMessage(payload []byte) (Message, error) {
	var msg Message
	if err := json.Unmarshal(payload, &msg); err != nil {
		return Message{}, err
	}
	return msg, nil
}
