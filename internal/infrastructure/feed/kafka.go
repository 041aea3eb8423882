// Package feed connects the service to the realtime change stream: a Kafka
// topic carrying one envelope per committed row change in the marketplace
// backend.
package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/julioberne/mercadosocial/internal/app/dto"
)

// KafkaConfig holds Kafka connection configuration.
type KafkaConfig struct {
	Brokers       []string
	Topic         string
	ConsumerGroup string
	BatchSize     int
	BatchTimeout  int
	BufferSize    int
}

// ChangeProducer publishes change envelopes. Used by the demo generator and
// by tooling that replays changes.
type ChangeProducer interface {
	PublishChange(ctx context.Context, env *dto.ChangeEnvelope) error
	Close() error
}

// ChangeConsumer subscribes to the change stream.
type ChangeConsumer interface {
	Subscribe(ctx context.Context) (<-chan *dto.ChangeEnvelope, error)
	Close() error
}

// KafkaProducer implements ChangeProducer on a kafka-go writer.
type KafkaProducer struct {
	writer *kafka.Writer
}

func NewKafkaProducer(config KafkaConfig) *KafkaProducer {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(config.Brokers...),
		Topic:        config.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
	}
	return &KafkaProducer{writer: writer}
}

// PublishChange sends one envelope, keyed by table so changes to the same
// table stay ordered within a partition.
func (p *KafkaProducer) PublishChange(ctx context.Context, env *dto.ChangeEnvelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("encoding change envelope: %w", err)
	}
	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(env.Table),
		Value: data,
		Time:  time.Now(),
	})
}

func (p *KafkaProducer) Close() error {
	return p.writer.Close()
}

// KafkaConsumer implements ChangeConsumer on a kafka-go reader with explicit
// batched commits.
type KafkaConsumer struct {
	log          *slog.Logger
	reader       *kafka.Reader
	batchSize    int
	batchTimeout time.Duration
	bufferSize   int

	pendingMu   sync.Mutex
	pendingMsgs map[string]kafka.Message
}

func NewKafkaConsumer(log *slog.Logger, config KafkaConfig) *KafkaConsumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        config.Brokers,
		Topic:          config.Topic,
		GroupID:        config.ConsumerGroup,
		MinBytes:       10e3,
		MaxBytes:       10e6,
		CommitInterval: 0, // commits are explicit, in batches
		StartOffset:    kafka.LastOffset,
	})

	bufferSize := config.BufferSize
	if bufferSize <= 0 {
		bufferSize = 1000
	}

	return &KafkaConsumer{
		log:          log,
		reader:       reader,
		batchSize:    config.BatchSize,
		batchTimeout: time.Duration(config.BatchTimeout) * time.Millisecond,
		bufferSize:   bufferSize,
		pendingMsgs:  make(map[string]kafka.Message),
	}
}

// Subscribe starts the fetch loop and returns the envelope channel. The
// channel closes when ctx is canceled or the reader fails.
func (c *KafkaConsumer) Subscribe(ctx context.Context) (<-chan *dto.ChangeEnvelope, error) {
	changeCh := make(chan *dto.ChangeEnvelope, c.bufferSize)

	go c.startBatchCommitter(ctx)

	go func() {
		defer close(changeCh)

		for {
			msg, err := c.reader.FetchMessage(ctx)
			if err != nil {
				if ctx.Err() == nil {
					c.log.Error("fetching change message failed", "error", err)
				}
				return
			}

			var env dto.ChangeEnvelope
			if err := json.Unmarshal(msg.Value, &env); err != nil {
				c.log.Warn("dropping malformed change envelope", "error", err)
				// Commit bad messages to avoid getting stuck on them.
				_ = c.reader.CommitMessages(ctx, msg)
				continue
			}
			if env.ID == "" {
				env.ID = fmt.Sprintf("%s-%d-%d", env.Table, msg.Partition, msg.Offset)
			}

			c.pendingMu.Lock()
			c.pendingMsgs[env.ID] = msg
			pending := len(c.pendingMsgs)
			c.pendingMu.Unlock()

			if pending > c.batchSize*10 {
				c.log.Warn("large number of uncommitted change messages", "pending", pending, "batch_size", c.batchSize)
			}

			select {
			case <-ctx.Done():
				return
			case changeCh <- &env:
			}
		}
	}()

	return changeCh, nil
}

func (c *KafkaConsumer) startBatchCommitter(ctx context.Context) {
	ticker := time.NewTicker(c.batchTimeout)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			// Final commit with a fresh context; the original is canceled.
			c.commitAllPending(context.Background())
			return
		case <-ticker.C:
			c.commitAllPending(ctx)
		}
	}
}

func (c *KafkaConsumer) commitAllPending(ctx context.Context) {
	c.pendingMu.Lock()
	defer c.pendingMu.Unlock()

	if len(c.pendingMsgs) == 0 {
		return
	}

	msgs := make([]kafka.Message, 0, len(c.pendingMsgs))
	for _, msg := range c.pendingMsgs {
		msgs = append(msgs, msg)
	}
	if err := c.reader.CommitMessages(ctx, msgs...); err != nil {
		c.log.Error("committing change messages failed", "count", len(msgs), "error", err)
		return
	}
	c.pendingMsgs = make(map[string]kafka.Message)
}

func (c *KafkaConsumer) Close() error {
	return c.reader.Close()
}

var (
	_ ChangeProducer = (*KafkaProducer)(nil)
	_ ChangeConsumer = (*KafkaConsumer)(nil)
)
