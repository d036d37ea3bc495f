package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"herald/internal/constants"
)

// LoadConfig reads configFile (optional: Lambda deployments are env-only),
// applies environment overrides and validates the result.
func LoadConfig(configFile string) (*Config, error) {
	return load(configFile, ValidateStatic)
}

// LoadQueueConfig is LoadConfig for tooling that only talks to the queue
// (enqueue, dlq list): the webhook and consumer sections are not validated.
func LoadQueueConfig(configFile string) (*Config, error) {
	return load(configFile, ValidateQueueOnly)
}

func load(configFile string, validate func(*Config) error) (*Config, error) {
	viper.Reset()

	viper.SetConfigType("yaml")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	setDefaults()
	bindEnvVariables()

	if configFile != "" {
		viper.SetConfigFile(configFile)
		if err := viper.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", configFile, err)
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := applyEnvOverrides(&cfg); err != nil {
		return nil, fmt.Errorf("failed to apply environment overrides: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

func setDefaults() {
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.read_timeout_seconds", 10*time.Second)
	viper.SetDefault("server.write_timeout_seconds", 10*time.Second)
	viper.SetDefault("server.rate_limit.enabled", true)
	viper.SetDefault("server.rate_limit.rps", 5.0)
	viper.SetDefault("server.rate_limit.burst", 10)

	viper.SetDefault("ingress.type", constants.TransportSQS)

	viper.SetDefault("queue.region", "us-east-1")
	viper.SetDefault("queue.max_receive_count", constants.DefaultMaxReceiveCount)
	viper.SetDefault("queue.wait_time_seconds", 20)
	viper.SetDefault("queue.max_messages", 10)
	viper.SetDefault("queue.visibility_timeout", 30*time.Second)
	viper.SetDefault("queue.message_group_id", constants.DefaultMessageGroupID)
	viper.SetDefault("queue.poll.initial_interval", time.Second)
	viper.SetDefault("queue.poll.max_interval", 30*time.Second)
	viper.SetDefault("queue.poll.multiplier", 2.0)
	viper.SetDefault("queue.release_failures", true)
	viper.SetDefault("queue.retry_delay", 5*time.Second)

	viper.SetDefault("webhook.timeout", constants.DefaultHTTPTimeout)
	viper.SetDefault("webhook.color", constants.DefaultEmbedColor)
	viper.SetDefault("webhook.rate_limit.enabled", true)
	viper.SetDefault("webhook.rate_limit.rps", 5.0)
	viper.SetDefault("webhook.rate_limit.burst", 5)

	viper.SetDefault("consumer.concurrency", 10)

	viper.SetDefault("database.redis.port", 6379)
	viper.SetDefault("database.redis.ttl_seconds", constants.DefaultTTLSeconds)
	viper.SetDefault("database.redis.connect_attempts", 3)

	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")

	viper.SetDefault("tracing.service_name", constants.ServiceName)
}

func bindEnvVariables() {
	viper.BindEnv("ingress.type", "INGRESS_TYPE")

	// QUEUE_URL and WEBHOOK_DISCORD are the names the provisioning layer
	// injects into the function environment.
	viper.BindEnv("queue.url", "QUEUE_URL")
	viper.BindEnv("queue.dead_letter_url", "QUEUE_DEAD_LETTER_URL", "DLQ_URL")
	viper.BindEnv("queue.region", "QUEUE_REGION", "AWS_REGION")
	viper.BindEnv("queue.endpoint", "QUEUE_ENDPOINT")
	viper.BindEnv("queue.max_receive_count", "QUEUE_MAX_RECEIVE_COUNT")
	viper.BindEnv("queue.visibility_timeout", "QUEUE_VISIBILITY_TIMEOUT")

	viper.BindEnv("webhook.url", "WEBHOOK_URL", "WEBHOOK_DISCORD")
	viper.BindEnv("webhook.timeout", "WEBHOOK_TIMEOUT")

	viper.BindEnv("consumer.concurrency", "CONSUMER_CONCURRENCY")

	viper.BindEnv("database.redis.host", "DATABASE_REDIS_HOST")
	viper.BindEnv("database.redis.port", "DATABASE_REDIS_PORT")
	viper.BindEnv("database.redis.password", "DATABASE_REDIS_PASSWORD")
	viper.BindEnv("database.redis.db", "DATABASE_REDIS_DB")

	viper.BindEnv("broker.kafka.dead_letter_topic", "BROKER_KAFKA_DEAD_LETTER_TOPIC")

	viper.BindEnv("server.port", "SERVER_PORT")

	viper.BindEnv("logging.level", "LOGGING_LEVEL")
	viper.BindEnv("logging.format", "LOGGING_FORMAT")

	viper.BindEnv("tracing.otlp.endpoint", "TRACING_OTLP_ENDPOINT")
	viper.BindEnv("tracing.otlp.insecure", "TRACING_OTLP_INSECURE")
	viper.BindEnv("tracing.enabled", "TRACING_ENABLED")
	viper.BindEnv("tracing.service_name", "TRACING_SERVICE_NAME")
}

func applyEnvOverrides(cfg *Config) error {
	if brokersEnv := viper.GetString("BROKER_KAFKA_BROKERS"); brokersEnv != "" {
		brokers := strings.Split(brokersEnv, ",")
		for i := range brokers {
			brokers[i] = strings.TrimSpace(brokers[i])
		}
		if len(brokers) > 0 && brokers[0] != "" {
			cfg.Broker.Kafka.Brokers = brokers
		}
	}

	cfg.Ingress.Type = strings.ToLower(strings.TrimSpace(cfg.Ingress.Type))

	return nil
}
