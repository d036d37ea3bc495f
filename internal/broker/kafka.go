package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"herald/internal/config"
	"herald/internal/constants"
	"herald/internal/logger"
	"herald/internal/redrive"
	"herald/pkg/logging"
	"herald/pkg/metrics"
	"herald/pkg/models"
	"herald/pkg/tracing"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaDeadLetterPublisher announces records that failed on their final
// attempt. The queue still performs the move; the notice lets downstream
// tooling react without polling the DLQ.
type KafkaDeadLetterPublisher struct {
	writer messageWriter
	topic  string
	logger logger.Logger
}

func NewKafkaDeadLetterPublisher(cfg config.KafkaConfig, log logger.Logger) *KafkaDeadLetterPublisher {
	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Balancer:     &kafka.LeastBytes{},
		BatchTimeout: constants.KafkaBatchTimeout,
		WriteTimeout: constants.KafkaWriteTimeout,
		Async:        false,
	}
	return &KafkaDeadLetterPublisher{writer: w, topic: cfg.DeadLetterTopic, logger: log}
}

func (p *KafkaDeadLetterPublisher) DeadLetter(ctx context.Context, dl redrive.DeadLetter) error {
	notice := models.DeadLetterNotice{
		MessageID: dl.MessageID,
		Source:    dl.Source,
		Reason:    dl.Reason,
		Attempts:  dl.Attempts,
		Body:      dl.Body,
		TraceID:   logging.GetTraceID(ctx),
		FailedAt:  dl.FailedAt,
	}
	body, err := json.Marshal(notice)
	if err != nil {
		return fmt.Errorf("failed to marshal dead-letter notice: %w", err)
	}

	err = p.writer.WriteMessages(ctx, kafka.Message{
		Topic:   p.topic,
		Key:     []byte(dl.MessageID),
		Value:   body,
		Headers: tracing.InjectKafkaHeaders(ctx, nil),
		Time:    time.Now(),
	})
	if err != nil {
		metrics.DeadLetterNoticesTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("failed to write kafka message: %w", err)
	}

	metrics.DeadLetterNoticesTotal.WithLabelValues("success").Inc()
	p.logger.InfowCtx(ctx, "Dead-letter notice published",
		"topic", p.topic,
		"reason", dl.Reason,
		"attempts", dl.Attempts,
	)
	return nil
}

func (p *KafkaDeadLetterPublisher) Close() error {
	return p.writer.Close()
}
