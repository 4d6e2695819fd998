// Package workerclient wraps the remux worker's HTTP API: dispatching
// tasks, cancelling them, and polling health. The coordinator never
// shares state with the worker beyond these calls and the status
// callbacks the worker sends back.
package workerclient
