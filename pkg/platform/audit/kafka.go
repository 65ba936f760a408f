package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"
)

// KafkaPublisher produces audit events to a single topic, keyed by event
// name so per-event ordering survives partitioning.
type KafkaPublisher struct {
	client *kgo.Client
	topic  string
}

// NewKafkaPublisher connects to the brokers and ensures the audit topic
// exists with a single partition.
func NewKafkaPublisher(ctx context.Context, brokers []string, topic string) (*KafkaPublisher, error) {
	client, err := kgo.NewClient(kgo.SeedBrokers(brokers...))
	if err != nil {
		return nil, fmt.Errorf("audit: connect kafka: %w", err)
	}

	admin := kadm.NewClient(client)
	_, err = admin.CreateTopic(ctx, 1, 1, nil, topic)
	if err := ensureTopicErr(err); err != nil {
		client.Close()
		return nil, fmt.Errorf("audit: create topic %q: %w", topic, err)
	}

	return &KafkaPublisher{client: client, topic: topic}, nil
}

// ensureTopicErr filters the create-topic result. kadm surfaces the broker's
// per-topic response error as the returned error, so a topic that already
// exists arrives here as kerr.TopicAlreadyExists and counts as success.
func ensureTopicErr(err error) error {
	if errors.Is(err, kerr.TopicAlreadyExists) {
		return nil
	}
	return err
}

func (p *KafkaPublisher) Publish(ctx context.Context, event Event) error {
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("audit: encode event: %w", err)
	}
	record := &kgo.Record{
		Topic: p.topic,
		Key:   []byte(event.Name),
		Value: value,
	}
	return p.client.ProduceSync(ctx, record).FirstErr()
}

func (p *KafkaPublisher) Close() {
	p.client.Close()
}
