package restore

import "github.com/birdayz/kstreams/internal/checkpoint"

// TaskHook lets the changelog reader reach back into the owning task when a
// partition needs to be wiped and rebuilt from the beginning of its
// changelog, rather than resumed from a checkpoint. This mirrors the split
// in Kafka Streams between StoreChangelogReader (offset bookkeeping and
// polling) and ProcessorStateManager (store lifecycle).
type TaskHook interface {
	// ExactlyOnceEnabled reports whether the owning task runs under
	// exactly-once semantics. EOS tasks whose state directory has no
	// checkpoint are assumed corrupted and must be wiped before restoring.
	ExactlyOnceEnabled() bool

	// ReinitializeStateStore wipes the store backing tp and prepares it to
	// receive a full changelog replay from offset 0. Called once per
	// partition, immediately before the reader seeks its consumer to the
	// beginning of the changelog.
	ReinitializeStateStore(tp checkpoint.TopicPartition) error
}
