// Command remuxctl is the operator CLI for the remuxd coordinator. It
// talks to the daemon's HTTP API.
package main
