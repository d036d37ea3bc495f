package redrive

import (
	"context"
	"sync"
	"time"

	"herald/internal/constants"
)

// DeadLetter describes a record the queue is about to move, or has moved, to
// the dead-letter queue.
type DeadLetter struct {
	MessageID string
	Body      string
	Attempts  int
	Reason    string
	Source    string
	FailedAt  time.Time
}

// Sink is told about records that failed on their final attempt.
type Sink interface {
	DeadLetter(ctx context.Context, dl DeadLetter) error
}

// Policy is the redrive contract shared by the queue and the consumer. It
// must mirror the maxReceiveCount of the provisioned queue.
type Policy struct {
	MaxAttempts int
	Sink        Sink
}

func NewPolicy(maxAttempts int, sink Sink) Policy {
	return Policy{MaxAttempts: maxAttempts, Sink: sink}
}

func (p Policy) maxAttempts() int {
	if p.MaxAttempts <= 0 {
		return constants.DefaultMaxReceiveCount
	}
	return p.MaxAttempts
}

// FinalAttempt reports whether a failure on this attempt sends the record to
// the dead-letter queue instead of another redelivery.
func (p Policy) FinalAttempt(attempt int) bool {
	return attempt >= p.maxAttempts()
}

// Exhausted reports whether a record received priorReceives times must not
// be delivered again.
func (p Policy) Exhausted(priorReceives int) bool {
	return priorReceives >= p.maxAttempts()
}

// Notify forwards dl to the sink, if any.
func (p Policy) Notify(ctx context.Context, dl DeadLetter) error {
	if p.Sink == nil {
		return nil
	}
	return p.Sink.DeadLetter(ctx, dl)
}

// MemorySink records dead letters in memory.
type MemorySink struct {
	mu      sync.Mutex
	letters []DeadLetter
}

func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

func (s *MemorySink) DeadLetter(_ context.Context, dl DeadLetter) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.letters = append(s.letters, dl)
	return nil
}

func (s *MemorySink) Letters() []DeadLetter {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]DeadLetter, len(s.letters))
	copy(out, s.letters)
	return out
}
