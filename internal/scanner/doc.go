// Package scanner discovers finished BluRay rips on the share and feeds
// them into the task queue.
package scanner
