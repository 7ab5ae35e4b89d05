// Package notifier delivers raised alerts to out-of-band channels.
package notifier

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"warden/internal/alert/models"
	"warden/internal/platform/kafka/producer"
)

// Notifier delivers an alert. Failures never affect whether the alert was recorded.
type Notifier interface {
	Notify(ctx context.Context, a *models.Alert) error
}

// Log writes alerts to the structured log.
type Log struct {
	logger *slog.Logger
}

func NewLog(logger *slog.Logger) *Log {
	if logger == nil {
		logger = slog.Default()
	}
	return &Log{logger: logger}
}

func (n *Log) Notify(ctx context.Context, a *models.Alert) error {
	n.logger.WarnContext(ctx, "security alert raised",
		"alert_id", a.ID,
		"subject_id", a.SubjectID,
		"alert_type", a.Type,
	)
	return nil
}

// Publisher is the producing side of a message broker.
type Publisher interface {
	Produce(ctx context.Context, msg *producer.Message) error
}

// Kafka publishes alerts as JSON keyed by subject so a subject's alerts stay ordered.
type Kafka struct {
	publisher Publisher
	topic     string
}

func NewKafka(publisher Publisher, topic string) *Kafka {
	return &Kafka{publisher: publisher, topic: topic}
}

func (n *Kafka) Notify(ctx context.Context, a *models.Alert) error {
	value, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("encode alert: %w", err)
	}
	return n.publisher.Produce(ctx, &producer.Message{
		Topic: n.topic,
		Key:   []byte(a.SubjectID.String()),
		Value: value,
		Headers: map[string]string{
			"alert_type": string(a.Type),
		},
	})
}

// Multi fans an alert out to every notifier and joins their errors.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, a *models.Alert) error {
	var errs []error
	for _, n := range m {
		if err := n.Notify(ctx, a); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
