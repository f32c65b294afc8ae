// Package listener names the fx value groups execution listeners are collected from.
// Listener implementations live in the sub-packages.
package listener

const (
	JobListenerGroup   = `group:"job_listeners"`
	StepListenerGroup  = `group:"step_listeners"`
	ChunkListenerGroup = `group:"chunk_listeners"`
	SkipListenerGroup  = `group:"skip_listeners"`
)
