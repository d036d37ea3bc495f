package models

import "time"

// DeadLetterNotice is published to the notice stream when a record fails on
// its final attempt.
type DeadLetterNotice struct {
	MessageID string    `json:"message_id"`
	Source    string    `json:"source"`
	Reason    string    `json:"reason"`
	Attempts  int       `json:"attempts"`
	Body      string    `json:"body"`
	TraceID   string    `json:"trace_id,omitempty"`
	FailedAt  time.Time `json:"failed_at"`
}

// DeadLetterEntry is a record peeked from the dead-letter queue.
type DeadLetterEntry struct {
	MessageID    string    `json:"message_id"`
	Body         string    `json:"body"`
	ReceiveCount int       `json:"receive_count"`
	SentAt       time.Time `json:"sent_at,omitempty"`
	Sender       *Sender   `json:"sender,omitempty"`
}

// Sender is filled in when the dead-lettered body still decodes.
type Sender struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

type DeadLetterList struct {
	Entries   []DeadLetterEntry `json:"entries"`
	Count     int               `json:"count"`
	Available int               `json:"available"`
}
