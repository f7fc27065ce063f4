// Package handoff publishes analysis requests for newly stored articles and
// significant updates to the external analysis workers.
package handoff

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/IBM/sarama"
)

// Reason says why an article needs analysis
type Reason string

const (
	ReasonNew               Reason = "new"
	ReasonSignificantUpdate Reason = "significant_update"
)

// AnalysisRequest is the message handed to the analysis workers
type AnalysisRequest struct {
	Reason      Reason    `json:"reason"`
	ArticleID   int64     `json:"article_id"`
	Title       string    `json:"title"`
	URL         string    `json:"url"`
	Source      string    `json:"source,omitempty"`
	RunID       string    `json:"run_id"`
	Reasons     []string  `json:"significance_reasons,omitempty"`
	RequestedAt time.Time `json:"requested_at"`
}

// Publisher delivers analysis requests
type Publisher interface {
	Publish(ctx context.Context, req AnalysisRequest) error
	Close() error
}

// KafkaConfig configures the Kafka publisher
type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

// KafkaPublisher sends requests with a sarama SyncProducer, keyed by article
// id so every request for one article lands on the same partition.
type KafkaPublisher struct {
	producer sarama.SyncProducer
	topic    string
}

// NewSaramaConfig returns the producer settings used in production
func NewSaramaConfig() *sarama.Config {
	cfg := sarama.NewConfig()
	cfg.Version = sarama.V3_6_0_0
	cfg.ClientID = "newsdedup"
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Retry.Max = 3
	cfg.Producer.Return.Successes = true
	cfg.Producer.Idempotent = false
	return cfg
}

// NewKafkaPublisher connects a SyncProducer to the brokers
func NewKafkaPublisher(cfg KafkaConfig) (*KafkaPublisher, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("kafka brokers cannot be empty")
	}
	if cfg.Topic == "" {
		return nil, fmt.Errorf("kafka topic cannot be empty")
	}
	producer, err := sarama.NewSyncProducer(cfg.Brokers, NewSaramaConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka producer: %w", err)
	}
	return NewKafkaPublisherWithProducer(producer, cfg.Topic), nil
}

// NewKafkaPublisherWithProducer wraps an existing producer
func NewKafkaPublisherWithProducer(producer sarama.SyncProducer, topic string) *KafkaPublisher {
	return &KafkaPublisher{producer: producer, topic: topic}
}

func (p *KafkaPublisher) Publish(ctx context.Context, req AnalysisRequest) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if req.RequestedAt.IsZero() {
		req.RequestedAt = time.Now().UTC()
	}
	payload, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("failed to encode analysis request: %w", err)
	}

	partition, offset, err := p.producer.SendMessage(&sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(strconv.FormatInt(req.ArticleID, 10)),
		Value: sarama.ByteEncoder(payload),
		Headers: []sarama.RecordHeader{
			{Key: []byte("reason"), Value: []byte(req.Reason)},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to publish analysis request for article %d: %w", req.ArticleID, err)
	}
	slog.Debug("published analysis request",
		"article_id", req.ArticleID, "reason", req.Reason, "partition", partition, "offset", offset)
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.producer.Close()
}

// LogPublisher logs requests instead of sending them. Used when no brokers
// are configured and for dry runs.
type LogPublisher struct {
	logger *slog.Logger
}

// NewLogPublisher creates a LogPublisher; a nil logger uses slog.Default()
func NewLogPublisher(logger *slog.Logger) *LogPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogPublisher{logger: logger}
}

func (p *LogPublisher) Publish(ctx context.Context, req AnalysisRequest) error {
	p.logger.InfoContext(ctx, "analysis request",
		"reason", req.Reason,
		"article_id", req.ArticleID,
		"title", req.Title,
		"url", req.URL,
		"run_id", req.RunID)
	return nil
}

func (p *LogPublisher) Close() error { return nil }
