// Package preflight verifies the environment before the daemon starts
// dispatching: share and library access, free space, worker reachability.
package preflight
