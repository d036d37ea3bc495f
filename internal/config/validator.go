package config

import (
	"fmt"
	"net/url"
	"strings"

	"herald/internal/constants"
)

type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s': %s", e.Field, e.Message)
}

func ValidateStatic(cfg *Config) error {
	var errors []error

	if err := validateServer(cfg.Server); err != nil {
		errors = append(errors, err)
	}

	if err := validateIngress(cfg.Ingress, cfg.Queue); err != nil {
		errors = append(errors, err)
	}

	if err := validateQueue(cfg.Queue); err != nil {
		errors = append(errors, err)
	}

	if err := validateWebhook(cfg.Webhook); err != nil {
		errors = append(errors, err)
	}

	if cfg.Consumer.Concurrency < 1 {
		errors = append(errors, &ValidationError{
			Field:   "consumer.concurrency",
			Message: fmt.Sprintf("concurrency must be at least 1, got %d", cfg.Consumer.Concurrency),
		})
	}

	if cfg.Database.Redis.Enabled() {
		if err := validateRedis(cfg.Database.Redis); err != nil {
			errors = append(errors, err)
		}
	}

	if err := validateKafka(cfg.Broker.Kafka); err != nil {
		errors = append(errors, err)
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed: %v", errors)
	}

	return nil
}

// ValidateQueueOnly checks what queue tooling needs.
func ValidateQueueOnly(cfg *Config) error {
	if cfg.Queue.URL == "" && !cfg.Queue.InMemory() {
		return &ValidationError{
			Field:   "queue.url",
			Message: "queue URL is required",
		}
	}
	return validateQueue(cfg.Queue)
}

func validateServer(cfg ServerConfig) error {
	if cfg.Port < 1 || cfg.Port > 65535 {
		return &ValidationError{
			Field:   "server.port",
			Message: fmt.Sprintf("port must be between 1 and 65535, got %d", cfg.Port),
		}
	}

	if cfg.ReadTimeoutSeconds <= 0 {
		return &ValidationError{
			Field:   "server.read_timeout_seconds",
			Message: "read timeout must be positive",
		}
	}

	if cfg.WriteTimeoutSeconds <= 0 {
		return &ValidationError{
			Field:   "server.write_timeout_seconds",
			Message: "write timeout must be positive",
		}
	}

	return nil
}

func validateIngress(cfg IngressConfig, queue QueueConfig) error {
	switch cfg.Type {
	case constants.TransportSQS:
		if queue.URL == "" && !queue.InMemory() {
			return &ValidationError{
				Field:   "queue.url",
				Message: "queue URL is required for the sqs ingress",
			}
		}
		return nil
	case constants.TransportSNS:
		return nil
	case "":
		return &ValidationError{
			Field:   "ingress.type",
			Message: "ingress type is required",
		}
	default:
		return &ValidationError{
			Field:   "ingress.type",
			Message: fmt.Sprintf("unknown ingress type: %s (supported: sqs, sns)", cfg.Type),
		}
	}
}

func validateQueue(cfg QueueConfig) error {
	if cfg.MaxReceiveCount < 1 {
		return &ValidationError{
			Field:   "queue.max_receive_count",
			Message: "max_receive_count must be at least 1",
		}
	}

	if cfg.MaxMessages < 1 || cfg.MaxMessages > 10 {
		return &ValidationError{
			Field:   "queue.max_messages",
			Message: fmt.Sprintf("max_messages must be between 1 and 10, got %d", cfg.MaxMessages),
		}
	}

	if cfg.WaitTimeSeconds < 0 || cfg.WaitTimeSeconds > 20 {
		return &ValidationError{
			Field:   "queue.wait_time_seconds",
			Message: fmt.Sprintf("wait_time_seconds must be between 0 and 20, got %d", cfg.WaitTimeSeconds),
		}
	}

	if cfg.VisibilityTimeout <= 0 {
		return &ValidationError{
			Field:   "queue.visibility_timeout",
			Message: "visibility timeout must be positive",
		}
	}

	if cfg.Poll.MaxInterval > 0 && cfg.Poll.InitialInterval > 0 && cfg.Poll.MaxInterval < cfg.Poll.InitialInterval {
		return &ValidationError{
			Field:   "queue.poll.max_interval",
			Message: "max_interval must be greater than or equal to initial_interval",
		}
	}

	if cfg.RetryDelay < 0 || cfg.RetryDelay > cfg.VisibilityTimeout {
		return &ValidationError{
			Field:   "queue.retry_delay",
			Message: "retry_delay must be between 0 and the visibility timeout",
		}
	}

	if cfg.Poll.Multiplier < 0 {
		return &ValidationError{
			Field:   "queue.poll.multiplier",
			Message: "multiplier must be non-negative",
		}
	}

	return nil
}

func validateWebhook(cfg WebhookConfig) error {
	if cfg.URL == "" {
		return &ValidationError{
			Field:   "webhook.url",
			Message: "webhook URL is required",
		}
	}

	u, err := url.Parse(cfg.URL)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return &ValidationError{
			Field:   "webhook.url",
			Message: "webhook URL must be an absolute http(s) URL",
		}
	}

	if cfg.Timeout <= 0 {
		return &ValidationError{
			Field:   "webhook.timeout",
			Message: "timeout must be positive",
		}
	}

	if cfg.Color < 0 || cfg.Color > 0xFFFFFF {
		return &ValidationError{
			Field:   "webhook.color",
			Message: fmt.Sprintf("color must be a 24-bit RGB value, got %d", cfg.Color),
		}
	}

	if cfg.RateLimit.Enabled && (cfg.RateLimit.RPS <= 0 || cfg.RateLimit.Burst < 1) {
		return &ValidationError{
			Field:   "webhook.rate_limit",
			Message: "rps must be positive and burst at least 1 when rate limiting is enabled",
		}
	}

	return nil
}

func validateRedis(cfg RedisConfig) error {
	if cfg.Port < 1 || cfg.Port > 65535 {
		return &ValidationError{
			Field:   "database.redis.port",
			Message: fmt.Sprintf("port must be between 1 and 65535, got %d", cfg.Port),
		}
	}

	if cfg.TTLSeconds < 0 {
		return &ValidationError{
			Field:   "database.redis.ttl_seconds",
			Message: "TTL must be non-negative",
		}
	}

	return nil
}

func validateKafka(cfg KafkaConfig) error {
	if len(cfg.Brokers) == 0 {
		return nil
	}

	for i, broker := range cfg.Brokers {
		if strings.TrimSpace(broker) == "" {
			return &ValidationError{
				Field:   fmt.Sprintf("broker.kafka.brokers[%d]", i),
				Message: "broker address cannot be empty",
			}
		}
	}

	if cfg.DeadLetterTopic == "" {
		return &ValidationError{
			Field:   "broker.kafka.dead_letter_topic",
			Message: "dead_letter_topic is required when brokers are configured",
		}
	}

	return nil
}
