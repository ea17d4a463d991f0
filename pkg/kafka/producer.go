package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"go.uber.org/zap"
)

var ErrUnknownCompression = errors.New("unknown compression codec")

var compressionCodecs = map[string]sarama.CompressionCodec{
	"":       sarama.CompressionNone,
	"none":   sarama.CompressionNone,
	"gzip":   sarama.CompressionGZIP,
	"snappy": sarama.CompressionSnappy,
	"lz4":    sarama.CompressionLZ4,
	"zstd":   sarama.CompressionZSTD,
}

// Producer publishes tracked events to a single topic.
type Producer struct {
	producer sarama.SyncProducer
	topic    string
	logger   *zap.Logger
}

type ProducerConfig struct {
	Brokers []string
	Topic   string
	Retries int
	Timeout time.Duration

	RequiredAcks     int
	Compression      string
	IdempotentWrites bool
	MaxMessageBytes  int
}

func producerConfig(cfg ProducerConfig) (*sarama.Config, error) {
	codec, ok := compressionCodecs[cfg.Compression]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownCompression, cfg.Compression)
	}

	sc := sarama.NewConfig()
	sc.Version = sarama.V3_3_0_0
	sc.ClientID = "engagement-collector"

	p := &sc.Producer
	p.Return.Successes = true
	p.Return.Errors = true
	p.Partitioner = sarama.NewHashPartitioner
	p.Compression = codec
	p.Timeout = cfg.Timeout
	p.Retry.Max = cfg.Retries
	p.RequiredAcks = sarama.RequiredAcks(cfg.RequiredAcks)
	if cfg.MaxMessageBytes > 0 {
		p.MaxMessageBytes = cfg.MaxMessageBytes
	}

	// Idempotence is only accepted by sarama with acks=all, a single
	// in-flight request and at least one retry.
	if cfg.IdempotentWrites {
		p.Idempotent = true
		p.RequiredAcks = sarama.WaitForAll
		p.Retry.Max = max(cfg.Retries, 5)
		sc.Net.MaxOpenRequests = 1
	}

	if err := sc.Validate(); err != nil {
		return nil, fmt.Errorf("invalid producer config: %w", err)
	}
	return sc, nil
}

func NewProducer(cfg ProducerConfig, logger *zap.Logger) (*Producer, error) {
	sc, err := producerConfig(cfg)
	if err != nil {
		return nil, err
	}

	client, err := sarama.NewSyncProducer(cfg.Brokers, sc)
	if err != nil {
		return nil, fmt.Errorf("could not connect producer to %v: %w", cfg.Brokers, err)
	}

	logger.Info("kafka producer ready",
		zap.Strings("brokers", cfg.Brokers),
		zap.String("topic", cfg.Topic),
		zap.Stringer("compression", sc.Producer.Compression),
		zap.Bool("idempotent", sc.Producer.Idempotent),
	)
	return NewProducerFromClient(client, cfg.Topic, logger), nil
}

// NewProducerFromClient wraps an existing sync producer, e.g. sarama/mocks.
func NewProducerFromClient(producer sarama.SyncProducer, topic string, logger *zap.Logger) *Producer {
	return &Producer{producer: producer, topic: topic, logger: logger}
}

// SendMessage publishes value as JSON. Messages sharing a key land on the
// same partition, so one session's events stay ordered.
func (p *Producer) SendMessage(ctx context.Context, key string, value any) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("publish %s: %w", p.topic, err)
	}

	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}

	partition, offset, err := p.producer.SendMessage(&sarama.ProducerMessage{
		Topic:   p.topic,
		Key:     sarama.StringEncoder(key),
		Value:   sarama.ByteEncoder(payload),
		Headers: messageHeaders(time.Now()),
	})
	if err != nil {
		p.logger.Error("publish failed",
			zap.String("topic", p.topic),
			zap.String("key", key),
			zap.Error(err),
		)
		return fmt.Errorf("publish %s: %w", p.topic, err)
	}

	p.logger.Debug("published",
		zap.String("key", key),
		zap.Int32("partition", partition),
		zap.Int64("offset", offset),
	)
	return nil
}

func messageHeaders(now time.Time) []sarama.RecordHeader {
	return []sarama.RecordHeader{
		{Key: []byte("content-type"), Value: []byte("application/json")},
		{Key: []byte("timestamp"), Value: []byte(now.UTC().Format(time.RFC3339Nano))},
	}
}

func (p *Producer) Close() error {
	if err := p.producer.Close(); err != nil {
		p.logger.Error("could not close kafka producer", zap.Error(err))
		return fmt.Errorf("close producer: %w", err)
	}
	p.logger.Info("kafka producer closed")
	return nil
}
