package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/couchcryptid/icra-risk-service/internal/domain"
	kafkago "github.com/segmentio/kafka-go"
)

// Header keys attached to every published assessment.
const (
	HeaderRiskLevel  = "nivel_risco"
	HeaderStatus     = "status"
	HeaderAssessedAt = "assessed_at"
	HeaderRunID      = "run_id"
)

// Writer produces assessment messages to a Kafka topic.
// It implements pipeline.AssessmentLoader.
type Writer struct {
	writer *kafkago.Writer
	logger *slog.Logger
}

// NewWriter creates a Kafka producer for topic.
func NewWriter(brokers []string, topic string, logger *slog.Logger) *Writer {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireAll,
	}
	return &Writer{writer: w, logger: logger}
}

// LoadBatch publishes one message per assessment in a single WriteMessages
// call. Messages are keyed by point id so a point's history stays on one
// partition.
func (w *Writer) LoadBatch(ctx context.Context, runID string, assessments []domain.RiskAssessment) error {
	if len(assessments) == 0 {
		return nil
	}
	msgs := make([]kafkago.Message, len(assessments))
	for i := range assessments {
		msg, err := serializeToMessage(runID, assessments[i])
		if err != nil {
			return err
		}
		msgs[i] = msg
	}
	if err := w.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("write %d assessments to %s: %w", len(msgs), w.writer.Topic, err)
	}
	w.logger.Debug("assessments published", "run_id", runID, "topic", w.writer.Topic, "count", len(msgs))
	return nil
}

func (w *Writer) Close() error {
	return w.writer.Close()
}

// serializeToMessage marshals an assessment into a Kafka message.
func serializeToMessage(runID string, a domain.RiskAssessment) (kafkago.Message, error) {
	data, err := json.Marshal(a)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize assessment %s: %w", a.PointID, err)
	}
	return kafkago.Message{
		Key:   []byte(a.PointID),
		Value: data,
		Headers: []kafkago.Header{
			{Key: HeaderRiskLevel, Value: []byte(a.Level)},
			{Key: HeaderStatus, Value: []byte(a.Status)},
			{Key: HeaderAssessedAt, Value: []byte(a.AssessedAt.Format(time.RFC3339))},
			{Key: HeaderRunID, Value: []byte(runID)},
		},
	}, nil
}
