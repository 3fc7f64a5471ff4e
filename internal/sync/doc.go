// Package sync implements bidirectional synchronization between local
// academic entities and a remote Google-style calendar.
//
// Overview
//
// Three pieces cooperate. The mapping store (internal/db) persists the link
// between one local entity and one remote event, along with the last-seen
// update stamps for both sides and the checkpoint of the last successful
// reconciliation. The change detector classifies each inbound remote event
// against that mapping. The conflict resolver applies one-sided updates,
// merges, or records a conflict for the user to settle.
//
// Architecture
//
// Each sync run for a user flows one direction at a time:
//
//	Remote calendar (poll / webhook)
//	     │  events updated since cursor
//	     ▼
//	Change detector ──── classify against mapping checkpoints
//	     │
//	     ├── no mapping            → create local entity + mapping
//	     ├── only remote changed   → apply remote fields locally
//	     ├── only local changed    → bookkeeping; push deferred to export
//	     ├── both changed          → open a conflict record
//	     └── neither               → no-op
//	     │
//	     ▼
//	Export pass ──── push deferred local changes to the remote API
//
// Change detection compares three timestamps: the remote event's updated
// stamp, the local entity's updated_at, and the mapping's last_synced_at
// checkpoint. A side counts as changed when its stamp is strictly newer
// than the checkpoint. When both sides changed, the engine never picks a
// winner by recency; it snapshots both states into a conflict record and
// waits for the user. This is last-writer-information, not last-writer-wins.
//
// Concurrency
//
// All work for one user is serialized behind a per-user lock. Two
// concurrent runs for the same user would read the same checkpoints and
// race each other's writes, so classify and resolve never overlap for one
// mapping. Distinct users proceed independently. Batch runs check the
// context between items, so cancellation lands on an item boundary with
// every completed item already committed.
//
// Usage
//
// Basic usage:
//
//	store, err := db.Open("aqsync.db")
//	if err != nil {
//	    return err
//	}
//	if err := store.InitSchema(); err != nil {
//	    return err
//	}
//	client, err := gcal.NewClient(gcal.DefaultConfig())
//	if err != nil {
//	    return err
//	}
//	engine := sync.New(store, client, nil)
//	run, err := engine.SyncUser(ctx, "user-1")
package sync
