/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package runner distributes evaluation tasks across a bounded worker pool,
// checkpoints every completed task to an append-only JSONL log, and resumes
// interrupted runs from a run manifest.
package runner

import (
	"errors"

	"chainguard.dev/evalpipe/dataset"
	"chainguard.dev/evalpipe/judge"
)

// Record is one task's evaluation outcome as persisted to the checkpoint
// log: either a scored result carrying the task fields, or an error marker
// with a diagnostic trace. Records are written once and never mutated.
type Record struct {
	*dataset.Task

	ModelOutput string        `json:"model_output,omitempty"`
	DomainScore *judge.Scores `json:"domain_score,omitempty"`
	Score       *int          `json:"score,omitempty"`
	Detail      *judge.Detail `json:"detailed_judgement,omitempty"`

	// Error and Traceback are set instead of the fields above when the task
	// failed. Error records carry no task id, so failed tasks are re-run on
	// resume.
	Error     string `json:"error,omitempty"`
	Traceback string `json:"traceback,omitempty"`
}

// errTrace renders an error's unwrap chain, one cause per line, as the
// persisted diagnostic trace.
func errTrace(err error) string {
	trace := err.Error()
	for {
		unwrapped := errors.Unwrap(err)
		if unwrapped == nil {
			return trace
		}
		trace += "\ncaused by: " + unwrapped.Error()
		err = unwrapped
	}
}
