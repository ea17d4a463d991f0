package kafka

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/IBM/sarama"
	"go.uber.org/zap"
)

// consumeRetryDelay separates Consume attempts after a group error.
const consumeRetryDelay = time.Second

// MessageHandler processes one record. A returned error is logged and the
// offset is still marked: a poison message must not stall the partition.
type MessageHandler func(ctx context.Context, key, value []byte) error

// Consumer feeds a consumer group's records to a MessageHandler. It
// implements sarama.ConsumerGroupHandler.
type Consumer struct {
	group   sarama.ConsumerGroup
	topics  []string
	handler MessageHandler
	logger  *zap.Logger

	readyOnce sync.Once
	ready     chan struct{}
}

type ConsumerConfig struct {
	Brokers           []string
	Topics            []string
	GroupID           string
	AutoCommit        bool
	CommitInterval    time.Duration
	SessionTimeout    time.Duration
	RebalanceStrategy string
}

func consumerConfig(cfg ConsumerConfig) (*sarama.Config, error) {
	sc := sarama.NewConfig()
	sc.Version = sarama.V3_3_0_0
	sc.ClientID = "engagement-analytics"

	c := &sc.Consumer
	c.Return.Errors = true
	c.Offsets.Initial = sarama.OffsetOldest
	c.Offsets.AutoCommit.Enable = cfg.AutoCommit
	if cfg.CommitInterval > 0 {
		c.Offsets.AutoCommit.Interval = cfg.CommitInterval
	}
	if cfg.SessionTimeout > 0 {
		c.Group.Session.Timeout = cfg.SessionTimeout
		c.Group.Heartbeat.Interval = cfg.SessionTimeout / 3
	}
	c.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{balanceStrategy(cfg.RebalanceStrategy)}

	if err := sc.Validate(); err != nil {
		return nil, fmt.Errorf("invalid consumer config: %w", err)
	}
	return sc, nil
}

func NewConsumer(cfg ConsumerConfig, handler MessageHandler, logger *zap.Logger) (*Consumer, error) {
	sc, err := consumerConfig(cfg)
	if err != nil {
		return nil, err
	}

	group, err := sarama.NewConsumerGroup(cfg.Brokers, cfg.GroupID, sc)
	if err != nil {
		return nil, fmt.Errorf("could not join consumer group %s: %w", cfg.GroupID, err)
	}

	logger.Info("kafka consumer ready",
		zap.String("group_id", cfg.GroupID),
		zap.Strings("topics", cfg.Topics),
		zap.String("strategy", sc.Consumer.Group.Rebalance.GroupStrategies[0].Name()),
	)
	return newConsumer(group, cfg.Topics, handler, logger), nil
}

func newConsumer(group sarama.ConsumerGroup, topics []string, handler MessageHandler, logger *zap.Logger) *Consumer {
	return &Consumer{
		group:   group,
		topics:  topics,
		handler: handler,
		logger:  logger,
		ready:   make(chan struct{}),
	}
}

// balanceStrategy maps a config name to a sarama strategy; range is the
// default.
func balanceStrategy(name string) sarama.BalanceStrategy {
	switch name {
	case "sticky":
		return sarama.NewBalanceStrategySticky()
	case "roundrobin":
		return sarama.NewBalanceStrategyRoundRobin()
	default:
		return sarama.NewBalanceStrategyRange()
	}
}

// Start consumes until ctx is cancelled or the group is closed. Consume
// returns on every rebalance, so it runs in a loop.
func (c *Consumer) Start(ctx context.Context) error {
	go c.logErrors()

	for {
		err := c.group.Consume(ctx, c.topics, c)
		switch {
		case errors.Is(err, sarama.ErrClosedConsumerGroup):
			return nil
		case ctx.Err() != nil:
			c.logger.Info("consumer stopping")
			return nil
		case err != nil:
			c.logger.Error("consume failed, retrying", zap.Error(err))
			select {
			case <-time.After(consumeRetryDelay):
			case <-ctx.Done():
				return nil
			}
		}
	}
}

func (c *Consumer) logErrors() {
	for err := range c.group.Errors() {
		c.logger.Error("consumer group error", zap.Error(err))
	}
}

func (c *Consumer) Close() error {
	if err := c.group.Close(); err != nil {
		c.logger.Error("could not close consumer group", zap.Error(err))
		return fmt.Errorf("close consumer group: %w", err)
	}
	c.logger.Info("kafka consumer closed")
	return nil
}

// Setup runs at the start of each session, after a rebalance.
func (c *Consumer) Setup(session sarama.ConsumerGroupSession) error {
	if session != nil {
		c.logger.Info("partitions assigned", zap.Any("claims", session.Claims()))
	}
	c.readyOnce.Do(func() { close(c.ready) })
	return nil
}

func (c *Consumer) Cleanup(sarama.ConsumerGroupSession) error {
	return nil
}

func (c *Consumer) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	ctx := session.Context()
	for {
		select {
		case msg, ok := <-claim.Messages():
			if !ok || msg == nil {
				return nil
			}
			c.handle(ctx, msg)
			session.MarkMessage(msg, "")
		case <-ctx.Done():
			return nil
		}
	}
}

func (c *Consumer) handle(ctx context.Context, msg *sarama.ConsumerMessage) {
	err := c.handler(ctx, msg.Key, msg.Value)
	if err == nil {
		return
	}
	c.logger.Warn("dropping message",
		zap.String("topic", msg.Topic),
		zap.Int32("partition", msg.Partition),
		zap.Int64("offset", msg.Offset),
		zap.ByteString("key", msg.Key),
		zap.Error(err),
	)
}

// WaitReady is closed once the first session has been set up.
func (c *Consumer) WaitReady() <-chan struct{} {
	return c.ready
}
