package statemgr

import "github.com/birdayz/kstreams/internal/checkpoint"

// RestorableStore describes one logged store as the changelog reader needs
// to see it: where its changelog lives, what callback applies records to
// it, and what offset (if any) its checkpoint already covers.
type RestorableStore struct {
	Name               string
	ChangelogPartition checkpoint.TopicPartition
	CheckpointOffset   *int64 // nil: no checkpoint, restore from the beginning
	RestoreCallback    StateRestoreCallback
	Persistent         bool // whether the store survives a restart; in-memory stores never report a restored offset
}

// RestorableStores returns every logged, non-corrupted store registered
// with this manager. Callers hand these to a shared changelog reader
// instead of driving restoration themselves.
func (sm *StateManager) RestorableStores() []RestorableStore {
	var out []RestorableStore
	for name, metadata := range sm.stores {
		if metadata.ChangelogPartition == nil || metadata.Corrupted {
			continue
		}
		out = append(out, RestorableStore{
			Name:               name,
			ChangelogPartition: *metadata.ChangelogPartition,
			CheckpointOffset:   metadata.Offset,
			RestoreCallback:    metadata.RestoreCallback,
			Persistent:         metadata.Store.Persistent(),
		})
	}
	return out
}

// MarkStoreCorrupted flags a single store as corrupted, e.g. after its
// restore callback rejects a batch mid-restoration. Corrupted stores are
// skipped by Checkpoint and Flush until the task is rebuilt.
func (sm *StateManager) MarkStoreCorrupted(storeName string) {
	if metadata, ok := sm.stores[storeName]; ok {
		metadata.Corrupted = true
	}
}
