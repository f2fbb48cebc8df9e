package source

import (
	"context"
	"errors"
	"fmt"
	"time"

	segmentio "github.com/segmentio/kafka-go"
)

const defaultFetchTimeout = time.Second

// KafkaReader is the part of a kafka-go partition reader the source uses.
type KafkaReader interface {
	FetchMessage(ctx context.Context) (segmentio.Message, error)
	SetOffset(offset int64) error
	Close() error
}

// Kafka reads one topic partition. Offsets are Kafka message offsets; the
// shard checkpoint, not a consumer group, tracks progress.
type Kafka struct {
	reader  KafkaReader
	timeout time.Duration
}

func NewKafka(cfg Config) (*Kafka, error) {
	if len(cfg.Brokers) == 0 || cfg.Topic == "" {
		return nil, fmt.Errorf("kafka source requires brokers and topic")
	}
	r := segmentio.NewReader(segmentio.ReaderConfig{
		Brokers:   cfg.Brokers,
		Topic:     cfg.Topic,
		Partition: cfg.Partition,
		MinBytes:  1,
		MaxBytes:  10e6,
	})
	return NewKafkaWithReader(r, cfg.FetchTimeout), nil
}

// NewKafkaWithReader wraps an existing reader.
func NewKafkaWithReader(r KafkaReader, fetchTimeout time.Duration) *Kafka {
	if fetchTimeout <= 0 {
		fetchTimeout = defaultFetchTimeout
	}
	return &Kafka{reader: r, timeout: fetchTimeout}
}

func (k *Kafka) Seek(_ context.Context, after int64) error {
	if after < 0 {
		return k.reader.SetOffset(segmentio.FirstOffset)
	}
	return k.reader.SetOffset(after + 1)
}

// Next waits up to the fetch timeout for a message. Running out of time
// means the partition is caught up.
func (k *Kafka) Next(ctx context.Context) (Document, error) {
	fctx, cancel := context.WithTimeout(ctx, k.timeout)
	defer cancel()
	msg, err := k.reader.FetchMessage(fctx)
	switch {
	case err == nil:
		return Document{Offset: msg.Offset, Raw: msg.Value}, nil
	case errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil:
		return Document{}, ErrCaughtUp
	case ctx.Err() != nil:
		return Document{}, ctx.Err()
	default:
		return Document{}, fmt.Errorf("fetch from kafka: %w", err)
	}
}

func (k *Kafka) Close() error {
	return k.reader.Close()
}
