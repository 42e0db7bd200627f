package audit

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"
)

// LogSink writes events to a structured logger.
type LogSink struct {
	Logger *slog.Logger
}

func (LogSink) Name() string { return "log" }

func (s LogSink) Write(ctx context.Context, e Event) error {
	level := slog.LevelInfo
	if e.Outcome == OutcomeFailed {
		level = slog.LevelError
	}
	s.Logger.LogAttrs(ctx, level, "audit",
		slog.String("operation", e.Operation),
		slog.String("outcome", e.Outcome),
		slog.String("code", e.Code),
		slog.String("actor", e.Actor),
		slog.String("user_id", e.UserID),
		slog.String("tournament_id", e.TournamentID),
		slog.Any("slot_numbers", e.SlotNumbers),
		slog.Int64("amount", e.Amount),
		slog.String("error", e.Error),
	)
	return nil
}

// Publisher is the subset of *redis.Client used by RedisSink.
type Publisher interface {
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
}

// RedisChannel is the default pub/sub channel for audit events.
const RedisChannel = "audit_events"

// RedisSink publishes events as JSON on a pub/sub channel.
type RedisSink struct {
	client  Publisher
	channel string
}

func NewRedisSink(client Publisher, channel string) *RedisSink {
	return &RedisSink{client: client, channel: channel}
}

func (*RedisSink) Name() string { return "redis" }

func (s *RedisSink) Write(ctx context.Context, e Event) error {
	b, err := json.Marshal(e)
	if err != nil {
		return err
	}
	return s.client.Publish(ctx, s.channel, b).Err()
}

// MessageWriter is the subset of *kafka.Writer used by KafkaSink.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// KafkaSink produces events to a topic, keyed by user so one user's events stay ordered.
type KafkaSink struct {
	writer MessageWriter
}

func NewKafkaSink(w MessageWriter) *KafkaSink {
	return &KafkaSink{writer: w}
}

// NewKafkaWriter builds a writer for the audit topic.
func NewKafkaWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
	}
}

func (*KafkaSink) Name() string { return "kafka" }

func (s *KafkaSink) Write(ctx context.Context, e Event) error {
	b, err := json.Marshal(e)
	if err != nil {
		return err
	}
	key := e.UserID
	if key == "" {
		key = e.Actor
	}
	return s.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(key),
		Value: b,
		Headers: []kafka.Header{
			{Key: "operation", Value: []byte(e.Operation)},
		},
	})
}
