// Package notify delivers advisory change notices to realtime subscribers.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	appledger "github.com/mxi/presale/internal/application/ledger"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// KafkaConfig holds the producer settings
type KafkaConfig struct {
	Brokers      []string
	Topic        string
	WriteTimeout time.Duration
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher publishes change notices keyed by entity ID so every notice
// for one entity lands on the same partition in order. Writes are
// fire-and-forget with a single attempt.
type KafkaPublisher struct {
	writer  messageWriter
	timeout time.Duration
	logger  *zap.Logger
}

// NewKafkaPublisher creates a publisher for the configured topic
func NewKafkaPublisher(cfg KafkaConfig, logger *zap.Logger) (*KafkaPublisher, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("notify: at least one kafka broker is required")
	}
	if cfg.Topic == "" {
		return nil, errors.New("notify: kafka topic is required")
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 5 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  cfg.Topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		MaxAttempts:            1,
		BatchSize:              100,
		BatchTimeout:           10 * time.Millisecond,
		WriteTimeout:           cfg.WriteTimeout,
		AllowAutoTopicCreation: false,
		ErrorLogger: kafka.LoggerFunc(func(msg string, args ...any) {
			logger.Warn(fmt.Sprintf(msg, args...))
		}),
	}
	logger.Info("Kafka change notifier initialized",
		zap.Strings("brokers", cfg.Brokers),
		zap.String("topic", cfg.Topic),
	)
	return newKafkaPublisher(writer, cfg.WriteTimeout, logger), nil
}

func newKafkaPublisher(w messageWriter, timeout time.Duration, logger *zap.Logger) *KafkaPublisher {
	return &KafkaPublisher{writer: w, timeout: timeout, logger: logger}
}

// Notify writes one notice
func (p *KafkaPublisher) Notify(ctx context.Context, notice appledger.ChangeNotice) error {
	value, err := json.Marshal(notice)
	if err != nil {
		return fmt.Errorf("notify: encode notice: %w", err)
	}
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(notice.EntityID),
		Value: value,
		Time:  notice.OccurredAt,
		Headers: []kafka.Header{
			{Key: "entity_type", Value: []byte(notice.EntityType)},
			{Key: "event_type", Value: []byte(notice.EventType)},
		},
	})
}

// Close flushes pending messages and closes the writer
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// LogNotifier logs notices instead of publishing them. It is used when no
// broker is configured.
type LogNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier creates a LogNotifier
func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogNotifier{logger: logger}
}

// Notify logs the notice at debug level
func (n *LogNotifier) Notify(_ context.Context, notice appledger.ChangeNotice) error {
	n.logger.Debug("Change notice",
		zap.String("entity_type", notice.EntityType),
		zap.String("entity_id", notice.EntityID),
		zap.String("new_state", notice.NewState),
		zap.String("event_type", notice.EventType),
	)
	return nil
}

var (
	_ appledger.ChangeNotifier = (*KafkaPublisher)(nil)
	_ appledger.ChangeNotifier = (*LogNotifier)(nil)
)
