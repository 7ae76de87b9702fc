// Package kafka implements the broker contract on Kafka with franz-go.
//
// Mapping: an exchange is a topic, a queue is a consumer group reading that
// topic. Acks are offset commits; auto-commit is disabled so a message is
// only committed once its handler settled it. A subscription holds one
// unsettled record at a time. A nack tears the subscription down without
// committing, so the group resumes from the last committed offset.
package kafka

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"

	"overflow/pkg/platform/broker"
)

// Config holds connection and topic provisioning settings.
type Config struct {
	Brokers           []string
	Partitions        int32
	ReplicationFactor int16
	ClientID          string
}

// Broker is a franz-go backed broker.Broker.
type Broker struct {
	cfg      Config
	producer *kgo.Client
	admin    *kadm.Client
	logger   *slog.Logger

	mu       sync.Mutex
	bindings map[string]broker.Binding
}

var _ broker.Broker = (*Broker)(nil)

// New connects a producer client and verifies the cluster is reachable.
func New(ctx context.Context, cfg Config, logger *slog.Logger) (*Broker, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("kafka brokers are required")
	}
	if cfg.Partitions <= 0 {
		cfg.Partitions = 3
	}
	if cfg.ReplicationFactor <= 0 {
		cfg.ReplicationFactor = 1
	}

	opts := []kgo.Opt{
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.RequiredAcks(kgo.AllISRAcks()),
	}
	if cfg.ClientID != "" {
		opts = append(opts, kgo.ClientID(cfg.ClientID))
	}
	producer, err := kgo.NewClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}
	if err := producer.Ping(ctx); err != nil {
		producer.Close()
		return nil, fmt.Errorf("kafka ping failed: %w", err)
	}

	return &Broker{
		cfg:      cfg,
		producer: producer,
		admin:    kadm.NewClient(producer),
		logger:   logger,
		bindings: make(map[string]broker.Binding),
	}, nil
}

// Declare provisions the exchange topic and remembers the binding for
// subscriptions on queue. Existing topics are left as they are.
func (b *Broker) Declare(ctx context.Context, queue string, binding broker.Binding) error {
	if binding.Exchange == "" {
		return broker.ErrEmptyExchange
	}
	resp, err := b.admin.CreateTopics(ctx, b.cfg.Partitions, b.cfg.ReplicationFactor, nil, binding.Exchange)
	if err != nil {
		return fmt.Errorf("create topic %s: %w", binding.Exchange, err)
	}
	for topic, r := range resp {
		if r.Err != nil && !errors.Is(r.Err, kerr.TopicAlreadyExists) {
			return fmt.Errorf("create topic %s: %w", topic, r.Err)
		}
	}

	b.mu.Lock()
	b.bindings[queue] = binding
	b.mu.Unlock()

	b.logger.Info("declared queue", "queue", queue, "exchange", binding.Exchange, "kinds", binding.Kinds)
	return nil
}

// Publish produces synchronously so callers learn about delivery failures.
func (b *Broker) Publish(ctx context.Context, exchange string, msg broker.Message) error {
	if exchange == "" {
		return broker.ErrEmptyExchange
	}
	record := &kgo.Record{
		Topic: exchange,
		Key:   []byte(msg.Key),
		Value: msg.Body,
	}
	for k, v := range msg.Headers {
		record.Headers = append(record.Headers, kgo.RecordHeader{Key: k, Value: []byte(v)})
	}
	if err := b.producer.ProduceSync(ctx, record).FirstErr(); err != nil {
		return fmt.Errorf("produce to %s: %w", exchange, err)
	}
	return nil
}

func (b *Broker) Subscribe(ctx context.Context, queue string) (<-chan *broker.Delivery, error) {
	b.mu.Lock()
	binding, ok := b.bindings[queue]
	b.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", broker.ErrUnknownQueue, queue)
	}

	consumer, err := kgo.NewClient(
		kgo.SeedBrokers(b.cfg.Brokers...),
		kgo.ConsumerGroup(queue),
		kgo.ConsumeTopics(binding.Exchange),
		kgo.DisableAutoCommit(),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
	)
	if err != nil {
		return nil, fmt.Errorf("create consumer for %s: %w", queue, err)
	}

	out := make(chan *broker.Delivery)
	go b.consume(ctx, consumer, queue, binding, out)
	return out, nil
}

func (b *Broker) consume(ctx context.Context, cl *kgo.Client, queue string, binding broker.Binding, out chan<- *broker.Delivery) {
	defer close(out)
	defer cl.Close()

	for {
		fetches := cl.PollFetches(ctx)
		if fetches.IsClientClosed() || ctx.Err() != nil {
			return
		}
		for _, fe := range fetches.Errors() {
			b.logger.Warn("kafka fetch error",
				"queue", queue,
				"topic", fe.Topic,
				"partition", fe.Partition,
				"error", fe.Err,
			)
		}

		iter := fetches.RecordIter()
		for !iter.Done() {
			record := iter.Next()
			msg := fromRecord(record)

			if !binding.Matches(record.Topic, msg) {
				if err := cl.CommitRecords(ctx, record); err != nil {
					b.logger.Warn("commit skipped record failed", "queue", queue, "error", err)
				}
				continue
			}

			if !b.deliver(ctx, cl, queue, record, msg, out) {
				return
			}
		}
	}
}

// deliver hands one record to the subscriber and waits for settlement.
// It returns false when the subscription must stop.
func (b *Broker) deliver(ctx context.Context, cl *kgo.Client, queue string, record *kgo.Record, msg broker.Message, out chan<- *broker.Delivery) bool {
	settled := make(chan bool, 1)
	d := broker.NewDelivery(queue, msg,
		func(ackCtx context.Context) error {
			err := cl.CommitRecords(ackCtx, record)
			settled <- err == nil
			return err
		},
		func(context.Context) error {
			settled <- false
			return nil
		},
	)

	select {
	case out <- d:
	case <-ctx.Done():
		return false
	}

	select {
	case committed := <-settled:
		if !committed {
			b.logger.Info("record not committed, leaving group for redelivery",
				"queue", queue,
				"partition", record.Partition,
				"offset", record.Offset,
			)
		}
		return committed
	case <-ctx.Done():
		return false
	}
}

func (b *Broker) Close() error {
	b.producer.Close()
	return nil
}

func fromRecord(r *kgo.Record) broker.Message {
	headers := make(map[string]string, len(r.Headers))
	for _, h := range r.Headers {
		headers[h.Key] = string(h.Value)
	}
	return broker.Message{Key: string(r.Key), Body: r.Value, Headers: headers}
}
