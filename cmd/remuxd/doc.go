// Command remuxd runs the coordination daemon: it watches the share for
// finished BluRay rips, dispatches them to the remux worker, tracks task
// state in SQLite, and serves the webhook and admin HTTP API.
package main
