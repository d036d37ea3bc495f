// Package envelope decodes transport records into NotificationEvents.
package envelope

import "time"

// NotificationEvent is one contact message ready for delivery. It is
// immutable once built; use NewNotificationEvent or the decoders.
type NotificationEvent struct {
	senderName  string
	senderEmail string
	body        string
	occurredAt  time.Time
}

func NewNotificationEvent(senderName, senderEmail, body string, occurredAt time.Time) NotificationEvent {
	return NotificationEvent{
		senderName:  senderName,
		senderEmail: senderEmail,
		body:        body,
		occurredAt:  occurredAt.UTC(),
	}
}

func (e NotificationEvent) SenderName() string    { return e.senderName }
func (e NotificationEvent) SenderEmail() string   { return e.senderEmail }
func (e NotificationEvent) Body() string          { return e.body }
func (e NotificationEvent) OccurredAt() time.Time { return e.occurredAt }

// ContactMessage is the producer-side JSON body of a queued record.
type ContactMessage struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Message string `json:"message"`
}
