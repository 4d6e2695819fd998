// Package dispatch selects pending tasks and hands them to the remux
// worker. The queue row is claimed with a conditional update before the
// network call, so concurrent actors cannot double-send a task, and a
// failed handoff returns the row to pending through the shared failure
// path.
package dispatch
