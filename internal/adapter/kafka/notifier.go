// Package kafka publishes export-completion notices so downstream consumers
// can reload the store without polling it.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/sayantanonfire/era5-export/internal/pipeline"
)

// Notifier produces export notices to a Kafka topic.
// It implements pipeline.Notifier.
type Notifier struct {
	writer *kafkago.Writer
	logger *slog.Logger
}

// NewNotifier creates a Kafka producer for the configured notification topic.
func NewNotifier(brokers []string, topic string, logger *slog.Logger) *Notifier {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafkago.LeastBytes{},
		RequiredAcks: kafkago.RequireAll,
	}
	return &Notifier{writer: w, logger: logger}
}

// NotifyExport serializes and publishes one export notice. Notices for the
// same store path share a key so consumers see them in order.
func (n *Notifier) NotifyExport(ctx context.Context, notice pipeline.ExportNotice) error {
	msg, err := serializeToMessage(notice)
	if err != nil {
		return err
	}
	if err := n.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish export notice: %w", err)
	}
	n.logger.Debug("export notice published", "store", notice.StorePath, "variables", len(notice.Variables))
	return nil
}

func (n *Notifier) Close() error {
	return n.writer.Close()
}

// serializeToMessage marshals an export notice into a Kafka message.
func serializeToMessage(notice pipeline.ExportNotice) (kafkago.Message, error) {
	data, err := json.Marshal(notice)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize export notice: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(notice.StorePath),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "variable_count", Value: []byte(strconv.Itoa(len(notice.Variables)))},
			{Key: "completed_at", Value: []byte(notice.CompletedAt.Format(time.RFC3339))},
		},
	}, nil
}
