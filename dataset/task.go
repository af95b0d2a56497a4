/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package dataset loads evaluation task sets from JSON files and validates
// them against the required schema before a run starts.
package dataset

// Task is one evaluation task: a prompt for the candidate model, the original
// source text, a reference checkpoint list for the checkpoint judge, and two
// domain classification labels. Tasks are immutable once loaded and are
// shared read-only across all workers.
type Task struct {
	// PromptID uniquely identifies the task within its set; it is the resume
	// key recorded in checkpoint lines.
	PromptID int `json:"prompt_id"`

	// Prompt is the instruction given to the candidate model.
	Prompt string `json:"prompt"`

	// ReferenceList enumerates the checkpoints the response is verified
	// against by the checkpoint judge.
	ReferenceList string `json:"reference_list"`

	// OriText is the original source text the response is judged against.
	OriText string `json:"ori_text"`

	// Domain classification labels. Serialized under the canonical capitalized
	// keys; the lowercase aliases are accepted on load.
	PrimaryDomain   string `json:"Primary_Domain"`
	SecondaryDomain string `json:"Secondary_Domain"`
}
