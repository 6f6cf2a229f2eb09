package restore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/birdayz/kstreams/internal/checkpoint"
	"github.com/birdayz/kstreams/kstate"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"
)

// PollInterval bounds a single call to Restore: the reader never blocks
// longer than this waiting for new changelog records, so callers can weave
// restoration into a larger scheduling loop without starving other work.
const PollInterval = 10 * time.Millisecond

type partitionState int

const (
	stateNeedsInitializing partitionState = iota
	stateNeedsRestoring
	stateCompleted
)

// partition tracks everything the reader knows about one changelog
// partition backing one state store of one task.
type partition struct {
	tp        checkpoint.TopicPartition
	taskID    string
	storeName string
	sink      kstate.StateRestoreCallback
	hook      TaskHook

	state partitionState

	persistent bool // whether the backing store survives a restart; in-memory stores are excluded from RestoredOffsets

	checkpointOffset *int64 // offset loaded from the task's checkpoint file, nil if absent
	startOffset      int64  // offset restoration began from, for listener callbacks
	endOffset        int64  // cached exclusive high watermark
	offsetLimit      *int64 // external cap, nil = uncapped

	restoredOffset int64 // next offset to fetch; exclusive, advances as batches are applied
	restoredCount  int64 // records applied so far this registration
}

func (p *partition) limit() int64 {
	if p.offsetLimit != nil && *p.offsetLimit < p.endOffset {
		return *p.offsetLimit
	}
	return p.endOffset
}

func (p *partition) isComplete() bool {
	return p.restoredOffset >= p.limit()
}

// ChangelogReader drives cooperative, non-blocking restoration of every
// registered changelog partition over a single shared LogConsumer. A single
// call to Restore performs one bounded poll and applies whatever records
// came back; callers are expected to invoke it repeatedly (e.g. once per
// iteration of a worker's run loop) until Completed covers every partition
// they care about.
//
// This is the Go analogue of Kafka Streams'
// org.apache.kafka.streams.processor.internals.StoreChangelogReader: the
// same register/initialize/restore/completed life cycle, collapsed onto a
// single goroutine instead of the stream thread's run loop.
type ChangelogReader struct {
	mu       sync.Mutex
	log      *slog.Logger
	consumer LogConsumer
	listener kstate.StateRestoreListener

	partitions map[checkpoint.TopicPartition]*partition
	assigned   map[checkpoint.TopicPartition]struct{} // partitions currently assigned on the consumer

	// knownPartitions caches the last topic metadata refresh, keyed by topic,
	// so initializePartitions can filter out partitions the cluster doesn't
	// actually have before asking for their end offsets.
	knownPartitions map[string]map[int32]struct{}
}

// NewChangelogReader constructs a reader over the given consumer. listener
// may be nil, in which case restoration progress is not reported.
func NewChangelogReader(consumer LogConsumer, listener kstate.StateRestoreListener, log *slog.Logger) *ChangelogReader {
	if listener == nil {
		listener = &kstate.NoOpRestoreListener{}
	}
	if log == nil {
		log = slog.Default()
	}
	return &ChangelogReader{
		log:             log.With("component", "changelog_reader"),
		consumer:        consumer,
		listener:        listener,
		partitions:      make(map[checkpoint.TopicPartition]*partition),
		assigned:        make(map[checkpoint.TopicPartition]struct{}),
		knownPartitions: make(map[string]map[int32]struct{}),
	}
}

// Register adds a partition to the reader, or, if already registered for the
// same task, forces it back to needsInitializing. Matches Kafka Streams'
// StoreChangelogReader.register(), which unconditionally re-adds the
// partition to needsInitializing on every call so a redundant register()
// across rebalances can't leave a partition stuck in a stale state.
func (r *ChangelogReader) Register(taskID string, tp checkpoint.TopicPartition, storeName string, sink kstate.StateRestoreCallback, checkpointOffset *int64, hook TaskHook, persistent bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.partitions[tp]; ok && existing.taskID == taskID {
		existing.storeName = storeName
		existing.sink = sink
		existing.hook = hook
		existing.checkpointOffset = checkpointOffset
		existing.persistent = persistent
		existing.state = stateNeedsInitializing
		return
	}

	r.partitions[tp] = &partition{
		tp:               tp,
		taskID:           taskID,
		storeName:        storeName,
		sink:             sink,
		hook:             hook,
		state:            stateNeedsInitializing,
		checkpointOffset: checkpointOffset,
		persistent:       persistent,
	}
}

// Unregister removes partitions, for example when their task is revoked.
// Any consumer assignment held for them is released.
func (r *ChangelogReader) Unregister(tps ...checkpoint.TopicPartition) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var toUnassign []checkpoint.TopicPartition
	for _, tp := range tps {
		if _, ok := r.assigned[tp]; ok {
			toUnassign = append(toUnassign, tp)
			delete(r.assigned, tp)
		}
		delete(r.partitions, tp)
	}
	if len(toUnassign) > 0 {
		r.consumer.Unassign(toUnassign)
	}
}

// SetOffsetLimit caps how far a partition is restored, even if its
// changelog extends further. Used to bound a global store to a specific
// point-in-time snapshot.
func (r *ChangelogReader) SetOffsetLimit(tp checkpoint.TopicPartition, limit int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.partitions[tp]; ok {
		p.offsetLimit = &limit
	}
}

// Reinitialize moves partitions back to needsInitializing, forcing their end
// offset and checkpoint to be re-evaluated on the next Restore call. Nothing
// in this module calls it.
func (r *ChangelogReader) Reinitialize(tps ...checkpoint.TopicPartition) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, tp := range tps {
		p, ok := r.partitions[tp]
		if !ok {
			continue
		}
		if _, assigned := r.assigned[tp]; assigned {
			r.consumer.Unassign([]checkpoint.TopicPartition{tp})
			delete(r.assigned, tp)
		}
		p.state = stateNeedsInitializing
		p.restoredOffset = 0
		p.restoredCount = 0
	}
}

// Reset unconditionally clears every partition the reader knows about,
// along with its consumer assignments and cached metadata. Matches Kafka
// Streams' StoreChangelogReader.clear(), called when a stream thread loses
// all of its assigned tasks and the reader must start clean for whatever it
// picks up next.
func (r *ChangelogReader) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.assigned) > 0 {
		tps := make([]checkpoint.TopicPartition, 0, len(r.assigned))
		for tp := range r.assigned {
			tps = append(tps, tp)
		}
		r.consumer.Unassign(tps)
	}
	r.partitions = make(map[checkpoint.TopicPartition]*partition)
	r.assigned = make(map[checkpoint.TopicPartition]struct{})
	r.knownPartitions = make(map[string]map[int32]struct{})
}

// Completed returns the set of partitions that have caught up to their end
// offset (or offset limit, if lower).
func (r *ChangelogReader) Completed() []checkpoint.TopicPartition {
	r.mu.Lock()
	defer r.mu.Unlock()
	var done []checkpoint.TopicPartition
	for tp, p := range r.partitions {
		if p.state == stateCompleted {
			done = append(done, tp)
		}
	}
	return done
}

// AllCompleted reports whether every partition currently registered for
// taskID has finished restoring. A task with no registered partitions is
// vacuously complete.
func (r *ChangelogReader) AllCompleted(taskID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.partitions {
		if p.taskID == taskID && p.state != stateCompleted {
			return false
		}
	}
	return true
}

// RestoredOffsets returns, for every completed partition backed by a
// persistent store, the offset of the
// last record applied to its store. Callers use this to write a fresh
// checkpoint once restoration finishes.
func (r *ChangelogReader) RestoredOffsets() map[checkpoint.TopicPartition]int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	offsets := make(map[checkpoint.TopicPartition]int64)
	for tp, p := range r.partitions {
		if p.state == stateCompleted && p.restoredOffset > 0 && p.persistent {
			offsets[tp] = p.restoredOffset - 1
		}
	}
	return offsets
}

// Restore performs one non-blocking restoration pass: it initializes any
// newly registered partitions, polls the shared consumer for at most
// PollInterval, and applies whatever records came back. It never blocks
// waiting for a partition that has nothing left to offer.
func (r *ChangelogReader) Restore(ctx context.Context) error {
	if err := r.initializePartitions(ctx); err != nil {
		return err
	}

	r.mu.Lock()
	anyActive := false
	for _, p := range r.partitions {
		if p.state == stateNeedsRestoring {
			anyActive = true
			break
		}
	}
	r.mu.Unlock()

	if !anyActive {
		return nil
	}

	pollCtx, cancel := context.WithTimeout(ctx, PollInterval)
	defer cancel()

	fetches := r.consumer.PollFetches(pollCtx)
	if fetches.IsClientClosed() {
		return &ClientError{Err: fmt.Errorf("changelog consumer closed")}
	}

	var fatal error
	fetches.EachPartition(func(fp kgo.FetchTopicPartition) {
		if fatal != nil || len(fp.Records) == 0 {
			return
		}
		tp := checkpoint.TopicPartition{Topic: fp.Topic, Partition: fp.Partition}
		if err := r.applyBatch(tp, fp.Records); err != nil {
			fatal = err
		}
	})
	return fatal
}

// initializePartitions moves every partition still in needsInitializing
// through checkpoint and reinit handling and, once its end offset is known,
// into needsRestoring with its consumer assignment seeked appropriately.
// Matches Kafka Streams' StoreChangelogReader.initialize().
//
// Before trusting any end offset, it refreshes topic metadata via the
// consumer's ListTopics and filters pending partitions down to ones the
// cluster actually reports, mirroring StoreChangelogReader's use of
// Admin.listTopics()/partitionInfo to guard against registering a partition
// that doesn't exist yet (e.g. right after app startup, before topic
// creation propagates). A fatal error from either call — authorization
// failures above all — is returned unchanged instead of retried forever;
// everything else is logged and left for the next Restore call.
func (r *ChangelogReader) initializePartitions(ctx context.Context) error {
	r.mu.Lock()
	var pending []*partition
	for _, p := range r.partitions {
		if p.state == stateNeedsInitializing {
			pending = append(pending, p)
		}
	}
	r.mu.Unlock()

	if len(pending) == 0 {
		return nil
	}

	topics := make(map[string]struct{})
	for _, p := range pending {
		topics[p.tp.Topic] = struct{}{}
	}
	topicList := make([]string, 0, len(topics))
	for t := range topics {
		topicList = append(topicList, t)
	}

	known, err := r.consumer.ListTopics(ctx, topicList)
	if err != nil {
		if isFatalLogError(err) {
			return err
		}
		r.log.Warn("failed to refresh topic metadata, will retry",
			"error", &MetadataUnavailableError{TopicPartition: pending[0].tp, Err: err})
		return nil
	}

	knownPartitions := make(map[string]map[int32]struct{}, len(known))
	for topic, partitions := range known {
		set := make(map[int32]struct{}, len(partitions))
		for _, partition := range partitions {
			set[partition] = struct{}{}
		}
		knownPartitions[topic] = set
	}
	r.mu.Lock()
	r.knownPartitions = knownPartitions
	r.mu.Unlock()

	ready := pending[:0:0]
	for _, p := range pending {
		if set, ok := knownPartitions[p.tp.Topic]; ok {
			if _, exists := set[p.tp.Partition]; exists {
				ready = append(ready, p)
				continue
			}
		}
		r.log.Debug("partition not yet known to cluster, will retry", "partition", p.tp)
	}
	if len(ready) == 0 {
		return nil
	}
	pending = ready

	endOffsets, err := r.consumer.EndOffsets(ctx, topicList)
	if err != nil {
		if isFatalLogError(err) {
			return err
		}
		r.log.Warn("failed to fetch end offsets, will retry",
			"error", &MetadataUnavailableError{TopicPartition: pending[0].tp, Err: err})
		return nil
	}

	offsetsToAssign := make(map[string]map[int32]kgo.Offset)

	r.mu.Lock()
	for _, p := range pending {
		endOffset, ok := endOffsets[p.tp]
		if !ok {
			r.log.Debug("end offset missing for partition, will retry", "partition", p.tp)
			continue
		}
		p.endOffset = endOffset

		needsReinit := p.checkpointOffset == nil && p.hook != nil && p.hook.ExactlyOnceEnabled()
		switch {
		case needsReinit:
			if err := p.hook.ReinitializeStateStore(p.tp); err != nil {
				r.log.Error("failed to reinitialize state store, will retry", "partition", p.tp, "error", err)
				continue
			}
			p.startOffset = 0
		case p.checkpointOffset != nil:
			p.startOffset = *p.checkpointOffset + 1
		default:
			p.startOffset = 0
		}

		p.restoredOffset = p.startOffset
		p.restoredCount = 0

		if p.startOffset >= p.limit() {
			// Empty changelog, or the checkpoint already covers everything.
			r.listener.OnRestoreStart(p.tp, p.storeName, p.startOffset, p.endOffset)
			p.state = stateCompleted
			r.listener.OnRestoreEnd(p.tp, p.storeName, 0)
			continue
		}

		p.state = stateNeedsRestoring
		r.listener.OnRestoreStart(p.tp, p.storeName, p.startOffset, p.endOffset)

		if offsetsToAssign[p.tp.Topic] == nil {
			offsetsToAssign[p.tp.Topic] = make(map[int32]kgo.Offset)
		}
		offsetsToAssign[p.tp.Topic][p.tp.Partition] = kgo.NewOffset().At(p.startOffset)
		r.assigned[p.tp] = struct{}{}
	}
	r.mu.Unlock()

	if len(offsetsToAssign) > 0 {
		r.consumer.Assign(offsetsToAssign)
	}

	return nil
}

// isFatalLogError reports whether err from the log consumer is a permanent
// rejection (authorization failures above all) rather than a transient
// condition like a leader election in progress or a metadata-propagation
// lag, which clears up on its own and is safe to retry indefinitely.
func isFatalLogError(err error) bool {
	var ke *kerr.Error
	if !errors.As(err, &ke) {
		return false
	}
	return !kerr.IsRetriable(err)
}

// applyBatch restores one fetched batch to its store and advances the
// partition's offset bookkeeping, detecting both sink failures and the
// impossible case of restoring past a cached end offset.
func (r *ChangelogReader) applyBatch(tp checkpoint.TopicPartition, records []*kgo.Record) error {
	r.mu.Lock()
	p, ok := r.partitions[tp]
	if !ok || p.state != stateNeedsRestoring {
		r.mu.Unlock()
		return nil // partition was revoked or already completed mid-fetch
	}
	sink := p.sink
	storeName := p.storeName
	endOffset := p.endOffset
	limit := p.limit()
	r.mu.Unlock()

	// A single record of drift past the cached end offset is tolerated: the
	// log can advance by exactly one record between caching endOffset and
	// fetching it. Only an actual overshoot past endOffset+1 is impossible
	// under normal operation. Matches the Java original's
	// `if (pos > endOffset + 1) throw`.
	lastFetchedOffset := records[len(records)-1].Offset
	if lastFetchedOffset > endOffset {
		return &InvariantViolationError{TopicPartition: tp, RestoredOffset: lastFetchedOffset + 1, EndOffset: endOffset}
	}

	// A poll has no way to stop fetching exactly at offsetLimit, so truncate
	// here: only records strictly below the limit count toward restoration.
	applied := records
	for i, rec := range records {
		if rec.Offset >= limit {
			applied = records[:i]
			break
		}
	}

	// Null-key records are control/marker records (e.g. transaction
	// markers): skip them silently, but their offsets still advance
	// restoredOffset since the changelog itself doesn't skip them.
	toRestore := make([]*kgo.Record, 0, len(applied))
	for _, rec := range applied {
		if rec.Key != nil {
			toRestore = append(toRestore, rec)
		}
	}

	if len(toRestore) > 0 {
		if err := sink.RestoreBatch(toRestore); err != nil {
			return &SinkError{TopicPartition: tp, StoreName: storeName, Err: err}
		}
	}

	r.mu.Lock()
	if len(applied) > 0 {
		p.restoredOffset = applied[len(applied)-1].Offset + 1
	}
	p.restoredCount += int64(len(toRestore))
	restoredOffset := p.restoredOffset
	restoredCount := p.restoredCount
	complete := p.isComplete()
	r.mu.Unlock()

	r.listener.OnBatchRestored(tp, storeName, restoredOffset-1, int64(len(toRestore)))

	if complete {
		r.mu.Lock()
		p.state = stateCompleted
		delete(r.assigned, tp)
		r.mu.Unlock()
		r.consumer.Unassign([]checkpoint.TopicPartition{tp})
		r.listener.OnRestoreEnd(tp, storeName, restoredCount)
	}

	return nil
}
