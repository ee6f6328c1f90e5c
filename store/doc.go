// Package store provides the single-table DynamoDB data layer for lattice.
//
// Every persisted record lives in one table keyed by a partition key (pk)
// and a sort key (sk), carries an entity_type tag and created_at/updated_at
// timestamps, and is soft-deleted by stamping a deleted_at tombstone rather
// than being physically removed. Records are immutable-by-replacement:
// updates replace the whole record.
//
// # Consistency contract
//
// All operations are at-least-once and not atomic across keys. The
// [Store.Transaction] helper applies its steps strictly in order and stops
// at the first failure; earlier steps are NOT undone. Any invariant that
// spans multiple keys (a primary record and its secondary index record) is
// maintained by convention, and readers must tolerate the two being
// momentarily inconsistent.
//
// Queries return every record in the partition, tombstoned or not; callers
// filter with [Item.Deleted] or [FilterActive]. This keeps tombstones
// visible to reconciliation and cleanup paths that need them.
//
// # Errors
//
//   - [ErrNotFound] - record missing or tombstoned
//   - [ErrTransactionStep] - a transaction step failed (earlier steps stand)
package store
