// Package organizer places remuxed MKV artifacts into the output
// library. Relocation happens on the coordinator side after the worker
// reports completion; a relocation failure downgrades the completion to
// a task failure so the retry budget applies.
package organizer
