package kafka

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"stagepass/internal/logger"
)

// Handler processes one message. A message is committed only after its
// handler returns nil; on error the same message is retried after a delay.
type Handler func(ctx context.Context, msg kafka.Message) error

// messageReader is the subset of *kafka.Reader the consumer uses.
type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

const (
	minRetryDelay = 200 * time.Millisecond
	maxRetryDelay = 10 * time.Second
)

type Consumer struct {
	reader messageReader
	logger *logger.Logger

	retryDelay time.Duration
}

// NewConsumer joins groupID and reads every topic in topics.
func NewConsumer(brokers []string, topics []string, groupID string, log *logger.Logger) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     brokers,
		GroupTopics: topics,
		GroupID:     groupID,
		MinBytes:    1,
		MaxBytes:    10e6,
	})
	return &Consumer{reader: reader, logger: log, retryDelay: minRetryDelay}
}

// Start blocks until ctx is cancelled.
func (c *Consumer) Start(ctx context.Context, handle Handler) error {
	c.logger.Info("KAFKA", "Consumer started")

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return nil
			}
			c.logger.Error("KAFKA", fmt.Sprintf("Error reading message: %v", err))
			continue
		}

		if !c.handleUntilDone(ctx, handle, msg) {
			return nil
		}

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.logger.Error("KAFKA", fmt.Sprintf("Failed to commit %s offset %d: %v", msg.Topic, msg.Offset, err))
			continue
		}
		c.logger.LogKafka("CONSUME", msg.Topic, string(msg.Key))
	}
}

// handleUntilDone runs handle until it succeeds, backing off between
// attempts. It reports false if ctx ends first.
func (c *Consumer) handleUntilDone(ctx context.Context, handle Handler, msg kafka.Message) bool {
	delay := c.retryDelay
	for {
		err := handle(ctx, msg)
		if err == nil {
			return true
		}
		c.logger.Error("KAFKA", fmt.Sprintf("Failed to handle %s offset %d, retrying in %s: %v", msg.Topic, msg.Offset, delay, err))

		select {
		case <-ctx.Done():
			return false
		case <-time.After(delay):
		}
		delay *= 2
		if delay > maxRetryDelay {
			delay = maxRetryDelay
		}
	}
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}
