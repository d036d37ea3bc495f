package broker

import (
	"herald/internal/config"
	"herald/internal/logger"
	"herald/internal/redrive"
)

// NewDeadLetterSink returns the configured dead-letter sink and its closer.
// Without a notice stream the sink is nil and the consumer only logs.
func NewDeadLetterSink(cfg config.BrokerConfig, log logger.Logger) (redrive.Sink, func() error) {
	if !cfg.Kafka.Enabled() {
		return nil, func() error { return nil }
	}
	p := NewKafkaDeadLetterPublisher(cfg.Kafka, log)
	return p, p.Close
}
