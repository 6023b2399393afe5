// Package metrics defines the observations the pipeline makes and a
// Prometheus implementation of them.
package metrics

import "time"

// Recorder receives pipeline observations. Implementations must be safe for
// concurrent use.
type Recorder interface {
	// RuleApplied records one business rule evaluation.
	RuleApplied(rule string, ok bool, d time.Duration)
	// ValidationFindings records the number of findings for a column.
	ValidationFindings(column string, n int)
	// RunCompleted records the end of a pipeline run. status is "ok" or the
	// name of the stage that failed.
	RunCompleted(status string, records int, d time.Duration)
}

// Nop discards every observation.
type Nop struct{}

func (Nop) RuleApplied(string, bool, time.Duration) {}
func (Nop) ValidationFindings(string, int)          {}
func (Nop) RunCompleted(string, int, time.Duration) {}
