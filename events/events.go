// Package events publishes committed trades to downstream consumers.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
)

// TradeEvent describes a committed cash-affecting transaction.
type TradeEvent struct {
	TransactionID uint            `json:"transaction_id"`
	UserID        uint            `json:"user_id"`
	Action        string          `json:"action"`
	Symbol        string          `json:"symbol,omitempty"`
	Shares        int64           `json:"shares"`
	Price         decimal.Decimal `json:"price"`
	Total         decimal.Decimal `json:"total"`
	Cash          decimal.Decimal `json:"cash"`
	At            time.Time       `json:"at"`
}

type Publisher interface {
	Publish(ctx context.Context, event TradeEvent) error
	Close() error
}

// Noop drops every event.
type Noop struct{}

func (Noop) Publish(context.Context, TradeEvent) error { return nil }
func (Noop) Close() error                              { return nil }

type KafkaPublisher struct {
	writer *kafka.Writer
}

func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	slog.Info("Initializing Kafka publisher", "brokers", brokers, "topic", topic)

	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireOne,
			MaxAttempts:  3,
			WriteTimeout: 10 * time.Second,
			Logger: kafka.LoggerFunc(func(msg string, args ...interface{}) {
				slog.Debug("Kafka writer", "message", fmt.Sprintf(msg, args...))
			}),
			ErrorLogger: kafka.LoggerFunc(func(msg string, args ...interface{}) {
				slog.Error("Kafka writer error", "message", fmt.Sprintf(msg, args...))
			}),
		},
	}
}

// Message encodes event keyed by user so one user's trades stay ordered
// within a partition.
func Message(event TradeEvent) (kafka.Message, error) {
	value, err := json.Marshal(event)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("marshal trade event: %w", err)
	}
	return kafka.Message{
		Key:   []byte(strconv.FormatUint(uint64(event.UserID), 10)),
		Value: value,
		Time:  event.At,
	}, nil
}

func (p *KafkaPublisher) Publish(ctx context.Context, event TradeEvent) error {
	msg, err := Message(event)
	if err != nil {
		return err
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish trade event: %w", err)
	}
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
