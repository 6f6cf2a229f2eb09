package restore

import (
	"context"
	"fmt"

	"github.com/birdayz/kstreams/internal/checkpoint"
	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kgo"
)

// LogConsumer is the adapter between the changelog reader and the underlying
// changelog topic transport. It is satisfied by a franz-go manual-assignment
// client in production and by a fake in tests.
//
// Unlike a subscribed consumer group member, a LogConsumer owns no group
// membership: partitions are assigned and revoked explicitly by the reader as
// stores come in and out of scope.
type LogConsumer interface {
	// Assign adds partitions to the consumer at the given starting offsets,
	// replacing any existing offset for a partition already assigned.
	Assign(offsets map[string]map[int32]kgo.Offset)

	// Unassign removes partitions from the consumer. Fetches already in
	// flight for them are discarded.
	Unassign(tps []checkpoint.TopicPartition)

	// ListTopics refreshes cluster metadata for the given topics, returning
	// the partitions the cluster currently reports for each one. Used to
	// filter out partitions that don't exist yet before trusting their end
	// offset.
	ListTopics(ctx context.Context, topics []string) (map[string][]int32, error)

	// EndOffsets returns the current high watermark (exclusive) for every
	// partition of the given topics.
	EndOffsets(ctx context.Context, topics []string) (map[checkpoint.TopicPartition]int64, error)

	// PollFetches performs one bounded poll across all assigned partitions.
	// The context should carry a short deadline; a deadline expiring with no
	// records is not an error.
	PollFetches(ctx context.Context) kgo.Fetches

	// Close releases the underlying client.
	Close()
}

// kafkaLogConsumer is the franz-go backed LogConsumer used in production. It
// wraps a dedicated manual-assignment kgo.Client, separate from the main
// group-subscribed consumer used for record processing, exactly as Kafka
// Streams' StoreChangelogReader uses its own restore consumer.
type kafkaLogConsumer struct {
	client *kgo.Client
	admin  *kadm.Client
}

// NewKafkaLogConsumer creates a LogConsumer that reads changelog topics
// directly via manual partition assignment. Changelog topics are not
// transactional, so reads use the default (uncommitted) isolation level.
func NewKafkaLogConsumer(brokers []string) (LogConsumer, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.FetchIsolationLevel(kgo.ReadUncommitted()),
	)
	if err != nil {
		return nil, fmt.Errorf("create changelog consumer: %w", err)
	}

	return &kafkaLogConsumer{
		client: client,
		admin:  kadm.NewClient(client),
	}, nil
}

func (c *kafkaLogConsumer) Assign(offsets map[string]map[int32]kgo.Offset) {
	c.client.AddConsumePartitions(offsets)
}

func (c *kafkaLogConsumer) Unassign(tps []checkpoint.TopicPartition) {
	byTopic := make(map[string][]int32)
	for _, tp := range tps {
		byTopic[tp.Topic] = append(byTopic[tp.Topic], tp.Partition)
	}
	c.client.RemoveConsumePartitions(byTopic)
}

func (c *kafkaLogConsumer) ListTopics(ctx context.Context, topics []string) (map[string][]int32, error) {
	if len(topics) == 0 {
		return map[string][]int32{}, nil
	}

	meta, err := c.admin.Metadata(ctx, topics...)
	if err != nil {
		return nil, err
	}

	result := make(map[string][]int32, len(meta.Topics))
	var firstErr error
	for topic, detail := range meta.Topics {
		if detail.Err != nil {
			if firstErr == nil {
				firstErr = detail.Err
			}
			continue
		}
		partitions := make([]int32, 0, len(detail.Partitions))
		for partition, pd := range detail.Partitions {
			if pd.Err != nil {
				continue
			}
			partitions = append(partitions, partition)
		}
		result[topic] = partitions
	}
	if firstErr != nil && len(result) == 0 {
		return nil, firstErr
	}
	return result, nil
}

func (c *kafkaLogConsumer) EndOffsets(ctx context.Context, topics []string) (map[checkpoint.TopicPartition]int64, error) {
	if len(topics) == 0 {
		return map[checkpoint.TopicPartition]int64{}, nil
	}

	resp, err := c.admin.ListEndOffsets(ctx, topics...)
	if err != nil {
		return nil, err
	}

	offsets := make(map[checkpoint.TopicPartition]int64)
	var firstErr error
	resp.Each(func(o kadm.ListedOffset) {
		if o.Err != nil {
			if firstErr == nil {
				firstErr = o.Err
			}
			return
		}
		offsets[checkpoint.TopicPartition{Topic: o.Topic, Partition: o.Partition}] = o.Offset
	})
	if firstErr != nil && len(offsets) == 0 {
		return nil, firstErr
	}
	return offsets, nil
}

func (c *kafkaLogConsumer) PollFetches(ctx context.Context) kgo.Fetches {
	return c.client.PollFetches(ctx)
}

func (c *kafkaLogConsumer) Close() {
	c.client.Close()
}
