// Package queue persists remux tasks in SQLite and exposes the conditional
// status transitions that drive their lifecycle.
//
// The Store manages database connections, schema initialization, stats
// queries, and the compare-and-swap transitions shared by the dispatcher,
// the webhook receiver, and the reconciler. Every transition is a single
// conditional UPDATE keyed on the task's current status, so concurrent
// callers racing on the same row resolve to exactly one winner; the loser
// observes rowsAffected == 0 and treats the transition as already applied
// or no longer valid.
//
// Treat this package as the single source of truth for task lifecycle
// semantics; when you add new statuses or fields, update schema.sql and
// bump schemaVersion.
package queue
