package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/anhnq-lab/cic-ttb-erp--sub001/internal/domain"
)

// DefaultKafkaTopic receives exported events.
const DefaultKafkaTopic = "taskflow.task-events"

// KafkaSink exports every event to a Kafka topic, keyed by task id so that a
// task's events stay ordered within a partition.
type KafkaSink struct {
	client *kgo.Client
	topic  string
}

// NewKafkaSink connects a producer to the given brokers.
func NewKafkaSink(brokers []string, topic string) (*KafkaSink, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("kafka sink: no brokers configured")
	}
	if topic == "" {
		topic = DefaultKafkaTopic
	}

	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.DefaultProduceTopic(topic),
		kgo.AllowAutoTopicCreation(),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}
	return &KafkaSink{client: client, topic: topic}, nil
}

// Topic returns the destination topic.
func (k *KafkaSink) Topic() string {
	return k.topic
}

// Handle produces evt synchronously. It is registered as a bus handler.
func (k *KafkaSink) Handle(ctx context.Context, evt domain.DomainEvent) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	record := &kgo.Record{
		Key:   []byte(evt.Task.ID),
		Value: data,
		Headers: []kgo.RecordHeader{
			{Key: "kind", Value: []byte(evt.Kind)},
			{Key: "project_id", Value: []byte(evt.ProjectID)},
		},
	}
	if err := k.client.ProduceSync(ctx, record).FirstErr(); err != nil {
		return fmt.Errorf("produce event: %w", err)
	}
	return nil
}

// Close flushes and closes the producer.
func (k *KafkaSink) Close() {
	k.client.Close()
}
