package envelope

import (
	"encoding/json"
	"strconv"
	"time"

	"herald/internal/constants"
	"herald/pkg/errors"
)

const snsTypeNotification = "Notification"

// Keys SNS always writes into a notification delivered to a queue.
var snsRequiredKeys = []string{"Type", "MessageId", "TopicArn", "Message"}

// DecodeQueueMessage decodes a poll-based queue record. occurredAt comes from
// the SentTimestamp system attribute (epoch milliseconds). Bodies that are an
// SNS notification (topic fan-out into the queue) are unwrapped and use the
// notification timestamp instead.
func DecodeQueueMessage(body string, attributes map[string]string) (NotificationEvent, error) {
	if inner, ts, ok := unwrapSNS(body); ok {
		return DecodeNotification(inner, ts)
	}

	contact, err := decodeContact(body)
	if err != nil {
		return NotificationEvent{}, err
	}

	occurredAt, err := parseEpochMillis(attributes[constants.AttrSentTimestamp])
	if err != nil {
		return NotificationEvent{}, err
	}

	return NewNotificationEvent(contact.Name, contact.Email, contact.Message, occurredAt), nil
}

// DecodeNotification decodes a pub/sub push record whose timestamp is an
// RFC 3339 string.
func DecodeNotification(body, timestamp string) (NotificationEvent, error) {
	contact, err := decodeContact(body)
	if err != nil {
		return NotificationEvent{}, err
	}

	occurredAt, err := parseRFC3339(timestamp)
	if err != nil {
		return NotificationEvent{}, err
	}

	return NewNotificationEvent(contact.Name, contact.Email, contact.Message, occurredAt), nil
}

func decodeContact(body string) (ContactMessage, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(body), &fields); err != nil {
		return ContactMessage{}, errors.ErrMalformedEnvelope.
			WithMessage("record body is not a JSON object").
			WithCause(err)
	}
	if fields == nil {
		return ContactMessage{}, errors.ErrMalformedEnvelope.WithMessage("record body is null")
	}

	var contact ContactMessage
	for _, f := range []struct {
		key string
		dst *string
	}{
		{"name", &contact.Name},
		{"email", &contact.Email},
		{"message", &contact.Message},
	} {
		raw, ok := fields[f.key]
		if !ok {
			return ContactMessage{}, missingField(f.key)
		}
		if err := json.Unmarshal(raw, f.dst); err != nil {
			return ContactMessage{}, errors.ErrMalformedEnvelope.
				WithMessage("field " + f.key + " must be a string").
				WithDetail("field", f.key).
				WithCause(err)
		}
		if *f.dst == "" {
			return ContactMessage{}, missingField(f.key)
		}
	}

	return contact, nil
}

func missingField(key string) error {
	return errors.ErrMalformedEnvelope.
		WithMessage("missing required field " + key).
		WithDetail("field", key)
}

// unwrapSNS matches keys exactly, so a contact body carrying its own "Type"
// field is never mistaken for an envelope.
func unwrapSNS(body string) (string, string, bool) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(body), &fields); err != nil {
		return "", "", false
	}
	for _, key := range snsRequiredKeys {
		if _, ok := fields[key]; !ok {
			return "", "", false
		}
	}

	var typ, message, timestamp string
	if json.Unmarshal(fields["Type"], &typ) != nil || typ != snsTypeNotification {
		return "", "", false
	}
	if json.Unmarshal(fields["Message"], &message) != nil {
		return "", "", false
	}
	if raw, ok := fields["Timestamp"]; ok {
		_ = json.Unmarshal(raw, &timestamp)
	}
	return message, timestamp, true
}

func parseEpochMillis(v string) (time.Time, error) {
	if v == "" {
		return time.Time{}, errors.ErrMissingTimestamp.WithMessage("record has no " + constants.AttrSentTimestamp + " attribute")
	}
	ms, err := strconv.ParseInt(v, 10, 64)
	if err != nil || ms <= 0 {
		return time.Time{}, errors.ErrMissingTimestamp.
			WithMessage("unparseable " + constants.AttrSentTimestamp + " attribute").
			WithDetail("value", v)
	}
	return time.UnixMilli(ms).UTC(), nil
}

func parseRFC3339(v string) (time.Time, error) {
	if v == "" {
		return time.Time{}, errors.ErrMissingTimestamp.WithMessage("record has no " + constants.AttrTimestamp)
	}
	t, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return time.Time{}, errors.ErrMissingTimestamp.
			WithMessage("unparseable " + constants.AttrTimestamp).
			WithDetail("value", v).
			WithCause(err)
	}
	return t.UTC(), nil
}
