// Package webhook applies worker status callbacks to the task store.
// Callbacks are treated as at-least-once delivery over an unreliable
// channel: duplicates are no-ops, progress for non-processing tasks is
// dropped, and terminal reports for tasks the reconciler already
// requeued are rejected as stale.
package webhook
