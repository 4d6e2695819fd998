// Package notifications delivers task lifecycle events via ntfy.
//
// The service publishes to the topic configured in config.toml and
// degrades to a no-op when no topic is set. Workflow code depends only
// on the Service interface, so alternative transports slot in without
// touching the callers.
package notifications
