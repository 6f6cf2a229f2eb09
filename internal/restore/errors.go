package restore

import (
	"fmt"

	"github.com/birdayz/kstreams/internal/checkpoint"
)

// TimeoutError indicates a bounded poll returned without making progress on a
// partition. It is always safe to retry: the caller should simply invoke
// Restore again on its next scheduling turn.
type TimeoutError struct {
	TopicPartition checkpoint.TopicPartition
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("restore: poll timed out for %s-%d", e.TopicPartition.Topic, e.TopicPartition.Partition)
}

// MetadataUnavailableError indicates the end offset for a changelog partition
// could not be fetched this round (broker unreachable, topic metadata not yet
// propagated, leader election in progress). The partition is left in
// needsInitializing and retried on the next Restore call.
type MetadataUnavailableError struct {
	TopicPartition checkpoint.TopicPartition
	Err            error
}

func (e *MetadataUnavailableError) Error() string {
	return fmt.Sprintf("restore: end offset unavailable for %s-%d: %v", e.TopicPartition.Topic, e.TopicPartition.Partition, e.Err)
}

func (e *MetadataUnavailableError) Unwrap() error { return e.Err }

// InvariantViolationError is fatal: the reader observed a restored offset
// past the end offset it had cached for a partition, which should be
// impossible under normal log-truncation-free operation. Matches Kafka
// Streams' defensive check in StoreChangelogReader.restorePartition, which
// throws IllegalStateException rather than silently continuing.
type InvariantViolationError struct {
	TopicPartition checkpoint.TopicPartition
	RestoredOffset int64
	EndOffset      int64
}

func (e *InvariantViolationError) Error() string {
	return fmt.Sprintf("restore: invariant violated for %s-%d: restored offset %d exceeds cached end offset %d",
		e.TopicPartition.Topic, e.TopicPartition.Partition, e.RestoredOffset, e.EndOffset)
}

// SinkError wraps a failure returned by a store's restore callback while
// applying a batch. Restore returns it to its caller as a fatal error; no
// code marks the store corrupted in response.
type SinkError struct {
	TopicPartition checkpoint.TopicPartition
	StoreName      string
	Err            error
}

func (e *SinkError) Error() string {
	return fmt.Sprintf("restore: sink failed for store %s (%s-%d): %v", e.StoreName, e.TopicPartition.Topic, e.TopicPartition.Partition, e.Err)
}

func (e *SinkError) Unwrap() error { return e.Err }

// ClientError is fatal: the underlying log consumer reported that it closed
// or hit an unrecoverable fetch error. The reader cannot make progress on any
// partition until the consumer is replaced.
type ClientError struct {
	Err error
}

func (e *ClientError) Error() string {
	return fmt.Sprintf("restore: log consumer failed: %v", e.Err)
}

func (e *ClientError) Unwrap() error { return e.Err }
