// Package api exposes the coordinator's HTTP surface: the status webhook
// the worker posts back to, the operator admin endpoints remuxctl talks
// to, and Prometheus metrics.
package api
