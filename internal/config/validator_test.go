package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func validConfig() *Config {
	return &Config{
		Server:  ServerConfig{Port: 8080, ReadTimeoutSeconds: time.Second, WriteTimeoutSeconds: time.Second},
		Ingress: IngressConfig{Type: "sqs"},
		Queue: QueueConfig{
			URL:               "https://sqs.us-east-1.amazonaws.com/123456789012/contact.fifo",
			MaxReceiveCount:   3,
			MaxMessages:       10,
			WaitTimeSeconds:   20,
			VisibilityTimeout: 30 * time.Second,
		},
		Webhook:  WebhookConfig{URL: "https://discord.example.com/api/webhooks/1/abc", Timeout: time.Second, Color: 0xff0000},
		Consumer: ConsumerConfig{Concurrency: 4},
	}
}

func TestValidateStatic(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(c *Config)
		wantField string
	}{
		{name: "valid", mutate: func(c *Config) {}},
		{name: "sns needs no queue url", mutate: func(c *Config) { c.Ingress.Type = "sns"; c.Queue.URL = "" }},
		{name: "sqs needs queue url", mutate: func(c *Config) { c.Queue.URL = "" }, wantField: "queue.url"},
		{name: "unknown ingress", mutate: func(c *Config) { c.Ingress.Type = "kinesis" }, wantField: "ingress.type"},
		{name: "relative webhook url", mutate: func(c *Config) { c.Webhook.URL = "/api/webhooks/1" }, wantField: "webhook.url"},
		{name: "color out of range", mutate: func(c *Config) { c.Webhook.Color = 0x1000000 }, wantField: "webhook.color"},
		{name: "zero receive count", mutate: func(c *Config) { c.Queue.MaxReceiveCount = 0 }, wantField: "queue.max_receive_count"},
		{name: "too many messages", mutate: func(c *Config) { c.Queue.MaxMessages = 11 }, wantField: "queue.max_messages"},
		{name: "retry delay beyond visibility", mutate: func(c *Config) { c.Queue.RetryDelay = time.Minute }, wantField: "queue.retry_delay"},
		{name: "zero concurrency", mutate: func(c *Config) { c.Consumer.Concurrency = 0 }, wantField: "consumer.concurrency"},
		{name: "kafka without topic", mutate: func(c *Config) { c.Broker.Kafka.Brokers = []string{"kafka:9092"} }, wantField: "broker.kafka.dead_letter_topic"},
		{name: "rate limit without rps", mutate: func(c *Config) { c.Webhook.RateLimit = RateLimitConfig{Enabled: true, Burst: 1} }, wantField: "webhook.rate_limit"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := ValidateStatic(cfg)
			if tt.wantField == "" {
				assert.NoError(t, err)
				return
			}
			if assert.Error(t, err) {
				assert.Contains(t, err.Error(), tt.wantField)
			}
		})
	}
}
