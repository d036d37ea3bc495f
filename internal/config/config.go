package config

import (
	"time"

	"herald/internal/constants"
)

type Config struct {
	Server         ServerConfig         `mapstructure:"server"`
	Ingress        IngressConfig        `mapstructure:"ingress"`
	Queue          QueueConfig          `mapstructure:"queue"`
	Webhook        WebhookConfig        `mapstructure:"webhook"`
	Consumer       ConsumerConfig       `mapstructure:"consumer"`
	Database       DatabaseConfig       `mapstructure:"database"`
	Broker         BrokerConfig         `mapstructure:"broker"`
	Logging        LoggingConfig        `mapstructure:"logging"`
	CircuitBreaker CircuitBreakerConfig `mapstructure:"circuit_breaker"`
	Tracing        TracingConfig        `mapstructure:"tracing"`
}

type ServerConfig struct {
	Port                int             `mapstructure:"port"`
	ReadTimeoutSeconds  time.Duration   `mapstructure:"read_timeout_seconds"`
	WriteTimeoutSeconds time.Duration   `mapstructure:"write_timeout_seconds"`
	RateLimit           RateLimitConfig `mapstructure:"rate_limit"`
}

// IngressConfig selects the transport variant feeding the batch consumer.
type IngressConfig struct {
	Type string `mapstructure:"type"` // "sqs" or "sns"
}

// QueueConfig describes the durable queue and its redrive contract. The
// queue itself is provisioned elsewhere; these values must mirror it.
type QueueConfig struct {
	Region            string        `mapstructure:"region"`
	Endpoint          string        `mapstructure:"endpoint"`
	URL               string        `mapstructure:"url"`
	DeadLetterURL     string        `mapstructure:"dead_letter_url"`
	MaxReceiveCount   int           `mapstructure:"max_receive_count"`
	WaitTimeSeconds   int32         `mapstructure:"wait_time_seconds"`
	MaxMessages       int32         `mapstructure:"max_messages"`
	VisibilityTimeout time.Duration `mapstructure:"visibility_timeout"`
	MessageGroupID    string        `mapstructure:"message_group_id"`
	Poll              RetryConfig   `mapstructure:"poll"`

	// ReleaseFailures makes failed records visible again after RetryDelay
	// instead of the full visibility timeout (worker mode only).
	ReleaseFailures bool          `mapstructure:"release_failures"`
	RetryDelay      time.Duration `mapstructure:"retry_delay"`
}

// InMemory reports whether the queue pair is simulated in process.
func (c QueueConfig) InMemory() bool {
	return c.Endpoint == constants.MemoryQueueEndpoint
}

type RetryConfig struct {
	MaxAttempts     int           `mapstructure:"max_attempts"`
	InitialInterval time.Duration `mapstructure:"initial_interval"`
	MaxInterval     time.Duration `mapstructure:"max_interval"`
	Multiplier      float64       `mapstructure:"multiplier"`
	MaxElapsedTime  time.Duration `mapstructure:"max_elapsed_time"`
}

type WebhookConfig struct {
	URL       string          `mapstructure:"url"`
	Timeout   time.Duration   `mapstructure:"timeout"`
	Color     int             `mapstructure:"color"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
}

type RateLimitConfig struct {
	Enabled bool    `mapstructure:"enabled"`
	RPS     float64 `mapstructure:"rps"`
	Burst   int     `mapstructure:"burst"`
}

type ConsumerConfig struct {
	Concurrency int `mapstructure:"concurrency"`
}

type DatabaseConfig struct {
	Redis RedisConfig `mapstructure:"redis"`
}

type RedisConfig struct {
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	Password        string `mapstructure:"password"`
	DB              int    `mapstructure:"db"`
	TTLSeconds      int    `mapstructure:"ttl_seconds"`
	ConnectAttempts int    `mapstructure:"connect_attempts"`
}

func (c RedisConfig) Enabled() bool {
	return c.Host != ""
}

type BrokerConfig struct {
	Kafka KafkaConfig `mapstructure:"kafka"`
}

// KafkaConfig configures the optional dead-letter notice stream.
type KafkaConfig struct {
	Brokers         []string `mapstructure:"brokers"`
	DeadLetterTopic string   `mapstructure:"dead_letter_topic"`
}

func (c KafkaConfig) Enabled() bool {
	return len(c.Brokers) > 0 && c.DeadLetterTopic != ""
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type CircuitBreakerConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	MaxRequests  uint32        `mapstructure:"max_requests"`
	Interval     time.Duration `mapstructure:"interval"`
	Timeout      time.Duration `mapstructure:"timeout"`
	FailureRatio float64       `mapstructure:"failure_ratio"`
	MinRequests  uint32        `mapstructure:"min_requests"`
}

type TracingConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	ServiceName string        `mapstructure:"service_name"`
	OTLP        OTLPConfig    `mapstructure:"otlp"`
	Sampler     SamplerConfig `mapstructure:"sampler"`
}

type OTLPConfig struct {
	Endpoint string `mapstructure:"endpoint"`
	Insecure bool   `mapstructure:"insecure"`
}

type SamplerConfig struct {
	Type  string  `mapstructure:"type"`
	Param float64 `mapstructure:"param"`
}
