package envelope

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"herald/pkg/errors"
)

func sentAt(ms string) map[string]string {
	return map[string]string{"SentTimestamp": ms, "ApproximateReceiveCount": "1"}
}

func TestDecodeQueueMessage(t *testing.T) {
	ev, err := DecodeQueueMessage(`{"name":"Ada","email":"ada@x.com","message":"Hi"}`, sentAt("1700000000000"))
	require.NoError(t, err)

	assert.Equal(t, "Ada", ev.SenderName())
	assert.Equal(t, "ada@x.com", ev.SenderEmail())
	assert.Equal(t, "Hi", ev.Body())
	assert.Equal(t, time.Date(2023, 11, 14, 22, 13, 20, 0, time.UTC), ev.OccurredAt())
}

func TestDecodeQueueMessage_IgnoresUnknownFields(t *testing.T) {
	ev, err := DecodeQueueMessage(`{"name":"Ada","email":"ada@x.com","message":"Hi","source":"landing"}`, sentAt("1700000000000"))
	require.NoError(t, err)
	assert.Equal(t, "Hi", ev.Body())
}

func TestDecodeQueueMessage_Malformed(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "not json", body: `name=Ada`},
		{name: "json array", body: `["Ada"]`},
		{name: "json null", body: `null`},
		{name: "missing email", body: `{"name":"Ada","message":"Hi"}`},
		{name: "missing name", body: `{"email":"ada@x.com","message":"Hi"}`},
		{name: "missing message", body: `{"name":"Ada","email":"ada@x.com"}`},
		{name: "empty email", body: `{"name":"Ada","email":"","message":"Hi"}`},
		{name: "null message", body: `{"name":"Ada","email":"ada@x.com","message":null}`},
		{name: "numeric name", body: `{"name":42,"email":"ada@x.com","message":"Hi"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeQueueMessage(tt.body, sentAt("1700000000000"))
			require.Error(t, err)
			assert.True(t, errors.IsMalformed(err), "got %v", err)
		})
	}
}

func TestDecodeQueueMessage_MissingEmailNamesField(t *testing.T) {
	_, err := DecodeQueueMessage(`{"name":"Ada","message":"Hi"}`, sentAt("1700000000000"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "email")
}

func TestDecodeQueueMessage_Timestamp(t *testing.T) {
	body := `{"name":"Ada","email":"ada@x.com","message":"Hi"}`

	_, err := DecodeQueueMessage(body, map[string]string{})
	assert.True(t, errors.IsMissingTimestamp(err))

	_, err = DecodeQueueMessage(body, nil)
	assert.True(t, errors.IsMissingTimestamp(err))

	_, err = DecodeQueueMessage(body, sentAt("yesterday"))
	assert.True(t, errors.IsMissingTimestamp(err))
}

func TestDecodeQueueMessage_BodyCheckedBeforeTimestamp(t *testing.T) {
	_, err := DecodeQueueMessage(`{"name":"Ada"}`, nil)
	assert.True(t, errors.IsMalformed(err))
}

func TestDecodeQueueMessage_UnwrapsSNSNotification(t *testing.T) {
	body := `{
		"Type": "Notification",
		"MessageId": "b1f6c1f8-3a0e-4a5e-8a25-1d5a7c0f1e11",
		"TopicArn": "arn:aws:sns:us-east-1:123456789012:contact",
		"Message": "{\"name\":\"Grace\",\"email\":\"grace@navy.mil\",\"message\":\"Bug found\"}",
		"Timestamp": "2024-01-02T03:04:05.678Z"
	}`

	ev, err := DecodeQueueMessage(body, sentAt("1700000000000"))
	require.NoError(t, err)
	assert.Equal(t, "Grace", ev.SenderName())
	assert.Equal(t, time.Date(2024, 1, 2, 3, 4, 5, 678000000, time.UTC), ev.OccurredAt())
}

func TestDecodeQueueMessage_ContactWithTypeFieldIsNotUnwrapped(t *testing.T) {
	bodies := []string{
		`{"name":"Ada","email":"ada@x.com","message":"Hi","Type":"Notification"}`,
		`{"name":"Ada","email":"ada@x.com","message":"Hi","Type":"Notification","MessageId":"m-1"}`,
		`{"name":"Ada","email":"ada@x.com","message":"Hi","type":"Notification","messageid":"m-1","topicarn":"arn"}`,
	}
	for _, body := range bodies {
		ev, err := DecodeQueueMessage(body, sentAt("1700000000000"))
		require.NoError(t, err, body)
		assert.Equal(t, "Ada", ev.SenderName())
		assert.Equal(t, "Hi", ev.Body())
		assert.Equal(t, time.Unix(1700000000, 0).UTC(), ev.OccurredAt())
	}
}

func TestDecodeQueueMessage_SNSEnvelopeOfOtherType(t *testing.T) {
	body := `{"Type":"SubscriptionConfirmation","MessageId":"m-1","TopicArn":"arn","Message":"confirm"}`
	_, err := DecodeQueueMessage(body, sentAt("1700000000000"))
	assert.True(t, errors.IsMalformed(err))
}

func TestDecodeNotification(t *testing.T) {
	ev, err := DecodeNotification(`{"name":"Ada","email":"ada@x.com","message":"Hi"}`, "2023-11-14T22:13:20.000Z")
	require.NoError(t, err)
	assert.Equal(t, time.Unix(1700000000, 0).UTC(), ev.OccurredAt())

	_, err = DecodeNotification(`{"name":"Ada","email":"ada@x.com","message":"Hi"}`, "")
	assert.True(t, errors.IsMissingTimestamp(err))

	_, err = DecodeNotification(`{"name":"Ada","message":"Hi"}`, "2023-11-14T22:13:20.000Z")
	assert.True(t, errors.IsMalformed(err))
}

func TestNewNotificationEvent_NormalizesToUTC(t *testing.T) {
	loc := time.FixedZone("CET", 3600)
	ev := NewNotificationEvent("Ada", "ada@x.com", "Hi", time.Date(2023, 11, 14, 23, 13, 20, 0, loc))
	assert.Equal(t, time.UTC, ev.OccurredAt().Location())
	assert.Equal(t, 22, ev.OccurredAt().Hour())
}
