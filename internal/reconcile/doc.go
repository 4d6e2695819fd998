// Package reconcile supervises the task store against a worker that can
// vanish mid-task: stale in-flight tasks go back to pending, worker
// lifecycle signals trigger immediate requeues, and terminal records are
// pruned after a retention window.
package reconcile
