package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestProducerSendMessage(t *testing.T) {
	mock := mocks.NewSyncProducer(t, nil)
	mock.ExpectSendMessageWithCheckerFunctionAndSucceed(func(val []byte) error {
		var decoded map[string]string
		if err := json.Unmarshal(val, &decoded); err != nil {
			return err
		}
		if decoded["page"] != "home" {
			return errors.New("unexpected payload")
		}
		return nil
	})

	p := NewProducerFromClient(mock, "tracked-events", zap.NewNop())
	require.NoError(t, p.SendMessage(context.Background(), "abc123", map[string]string{"page": "home"}))
	require.NoError(t, p.Close())
}

func TestProducerSendMessageFailure(t *testing.T) {
	mock := mocks.NewSyncProducer(t, nil)
	mock.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	p := NewProducerFromClient(mock, "tracked-events", zap.NewNop())
	err := p.SendMessage(context.Background(), "abc123", "x")
	assert.ErrorIs(t, err, sarama.ErrOutOfBrokers)
	require.NoError(t, p.Close())
}

func TestProducerCancelledContext(t *testing.T) {
	mock := mocks.NewSyncProducer(t, nil)
	p := NewProducerFromClient(mock, "tracked-events", zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, p.SendMessage(ctx, "k", "v"), context.Canceled)
	require.NoError(t, p.Close())
}

func TestProducerConfig(t *testing.T) {
	sc, err := producerConfig(ProducerConfig{
		Retries:          2,
		Timeout:          time.Second,
		RequiredAcks:     1,
		Compression:      "snappy",
		IdempotentWrites: true,
		MaxMessageBytes:  1 << 20,
	})
	require.NoError(t, err)

	assert.Equal(t, sarama.CompressionSnappy, sc.Producer.Compression)
	assert.True(t, sc.Producer.Idempotent)
	assert.Equal(t, sarama.WaitForAll, sc.Producer.RequiredAcks)
	assert.Equal(t, 5, sc.Producer.Retry.Max)
	assert.Equal(t, 1, sc.Net.MaxOpenRequests)
	assert.Equal(t, 1<<20, sc.Producer.MaxMessageBytes)
}

func TestProducerConfigUnknownCompression(t *testing.T) {
	_, err := producerConfig(ProducerConfig{Compression: "brotli", Timeout: time.Second})
	assert.ErrorIs(t, err, ErrUnknownCompression)
}

type fakeSession struct {
	ctx context.Context

	mu     sync.Mutex
	marked []int64
}

func (s *fakeSession) Claims() map[string][]int32               { return nil }
func (s *fakeSession) MemberID() string                         { return "member" }
func (s *fakeSession) GenerationID() int32                      { return 1 }
func (s *fakeSession) MarkOffset(string, int32, int64, string)  {}
func (s *fakeSession) Commit()                                  {}
func (s *fakeSession) ResetOffset(string, int32, int64, string) {}
func (s *fakeSession) Context() context.Context                 { return s.ctx }
func (s *fakeSession) MarkMessage(msg *sarama.ConsumerMessage, _ string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.marked = append(s.marked, msg.Offset)
}

type fakeClaim struct {
	messages chan *sarama.ConsumerMessage
}

func (c *fakeClaim) Topic() string                            { return "tracked-events" }
func (c *fakeClaim) Partition() int32                         { return 0 }
func (c *fakeClaim) InitialOffset() int64                     { return 0 }
func (c *fakeClaim) HighWaterMarkOffset() int64               { return 0 }
func (c *fakeClaim) Messages() <-chan *sarama.ConsumerMessage { return c.messages }

func TestConsumeClaimMarksEveryMessage(t *testing.T) {
	var handled []string
	handler := func(_ context.Context, key, value []byte) error {
		handled = append(handled, string(value))
		if string(value) == "bad" {
			return errors.New("cannot decode")
		}
		return nil
	}
	c := newConsumer(nil, []string{"tracked-events"}, handler, zap.NewNop())

	claim := &fakeClaim{messages: make(chan *sarama.ConsumerMessage, 3)}
	claim.messages <- &sarama.ConsumerMessage{Offset: 1, Key: []byte("s1"), Value: []byte("ok")}
	claim.messages <- &sarama.ConsumerMessage{Offset: 2, Key: []byte("s1"), Value: []byte("bad")}
	claim.messages <- &sarama.ConsumerMessage{Offset: 3, Key: []byte("s2"), Value: []byte("ok")}
	close(claim.messages)

	session := &fakeSession{ctx: context.Background()}
	require.NoError(t, c.ConsumeClaim(session, claim))

	assert.Equal(t, []string{"ok", "bad", "ok"}, handled)
	assert.Equal(t, []int64{1, 2, 3}, session.marked)
}

func TestSetupSignalsReadyOnce(t *testing.T) {
	c := newConsumer(nil, nil, nil, zap.NewNop())

	require.NoError(t, c.Setup(nil))
	require.NoError(t, c.Setup(nil))

	select {
	case <-c.WaitReady():
	default:
		t.Fatal("consumer not ready after setup")
	}
}

func TestConsumerConfig(t *testing.T) {
	sc, err := consumerConfig(ConsumerConfig{
		AutoCommit:        true,
		CommitInterval:    2 * time.Second,
		SessionTimeout:    30 * time.Second,
		RebalanceStrategy: "sticky",
	})
	require.NoError(t, err)

	assert.Equal(t, sarama.OffsetOldest, sc.Consumer.Offsets.Initial)
	assert.Equal(t, 10*time.Second, sc.Consumer.Group.Heartbeat.Interval)
	require.Len(t, sc.Consumer.Group.Rebalance.GroupStrategies, 1)
	assert.Equal(t, "sticky", sc.Consumer.Group.Rebalance.GroupStrategies[0].Name())
}
