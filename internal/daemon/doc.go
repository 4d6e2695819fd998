// Package daemon assembles the coordinator runtime: dispatcher and
// reconciler loops, cron-scheduled scanning and cleanup, the HTTP API,
// and single-instance locking.
package daemon
