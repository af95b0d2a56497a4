/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package judge implements the multi-stage judgment pipeline: an
// instruction-following gate, four dimension judges, a self-critique pass,
// four final judges, and the deterministic score calculator.
package judge

import (
	"encoding/json"
	"maps"
)

// Severity and result vocabulary the score calculator recognizes. The
// vocabulary is open: judges occasionally invent values, and those fall back
// to documented defaults rather than being dropped.
const (
	SeverityNone    = "none"
	SeverityMinor   = "minor"
	SeverityMajor   = "major"
	SeveritySevere  = "severe"
	SeverityExtreme = "extremely severe"

	SeverityNoIssue  = "no issue"
	SeverityHasIssue = "has issue"

	ResultCorrect   = "correct"
	ResultIncorrect = "incorrect"
)

// Issue is one finding reported by a judge. Judge output is loosely typed at
// the boundary; the severity and result keys are projected out and everything
// else (explanations, quoted spans) is preserved in Fields.
type Issue struct {
	// Severity is the issue's severity token ("severity" key), empty when the
	// judge did not provide one as a string.
	Severity string

	// Result is the checkpoint verdict ("result" key), used by the
	// checkpoint-coverage judge.
	Result string

	// Fields holds all other keys the judge attached to the finding.
	Fields map[string]any
}

func (i Issue) asMap() map[string]any {
	m := make(map[string]any, len(i.Fields)+2)
	maps.Copy(m, i.Fields)
	if i.Severity != "" {
		m["severity"] = i.Severity
	}
	if i.Result != "" {
		m["result"] = i.Result
	}
	return m
}

// MarshalJSON writes the issue back in its wire shape.
func (i Issue) MarshalJSON() ([]byte, error) {
	return json.Marshal(i.asMap())
}

// MarshalYAML renders the same shape as MarshalJSON; the self-critique prompt
// binds judgments as YAML.
func (i Issue) MarshalYAML() (any, error) {
	return i.asMap(), nil
}

// UnmarshalJSON projects a loosely-typed judge finding into an Issue. A
// severity or result value of an unexpected type stays in Fields, leaving the
// typed field empty so scoring applies its unknown-value default.
func (i *Issue) UnmarshalJSON(data []byte) error {
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	if s, ok := m["severity"].(string); ok {
		i.Severity = s
		delete(m, "severity")
	}
	if s, ok := m["result"].(string); ok {
		i.Result = s
		delete(m, "result")
	}
	if len(m) > 0 {
		i.Fields = m
	}
	return nil
}

// Scores holds the three clamped dimension scores. Checkpoint penalties are
// folded into Accuracy.
type Scores struct {
	Accuracy        int `json:"accuracy"`
	Fluency         int `json:"fluency"`
	Appropriateness int `json:"appropriateness"`
}

// Total is the task's final score, at most 100.
func (s Scores) Total() int {
	return s.Accuracy + s.Fluency + s.Appropriateness
}

// InitialJudgments collects the four pre-critique dimension judgments.
type InitialJudgments struct {
	Accuracy        []Issue `json:"accuracy"`
	Checkpoints     []Issue `json:"checkpoints"`
	Fluency         []Issue `json:"fluency"`
	Appropriateness []Issue `json:"appropriateness"`
}

// Detail is the audit record of every pipeline stage. When the gate
// short-circuits, only InstructionFollowing is populated.
type Detail struct {
	InstructionFollowing string            `json:"instruction_following"`
	Initial              *InitialJudgments `json:"initial_judgement,omitempty"`
	SelfCritique         string            `json:"self_critique"`
	Accuracy             []Issue           `json:"accuracy"`
	Checkpoints          []Issue           `json:"checkpoints"`
	Fluency              []Issue           `json:"fluency"`
	Appropriateness      []Issue           `json:"appropriateness"`
}

// MarshalJSON writes the gate-only shape after a short-circuit, and
// otherwise emits every stage key with nil finding lists rendered as empty
// arrays, so a clean response produces the same record shape as a flagged
// one.
func (d *Detail) MarshalJSON() ([]byte, error) {
	if d.Initial == nil {
		return json.Marshal(struct {
			InstructionFollowing string `json:"instruction_following"`
		}{d.InstructionFollowing})
	}
	type detail Detail
	clone := detail(*d)
	clone.Initial = &InitialJudgments{
		Accuracy:        orEmpty(d.Initial.Accuracy),
		Checkpoints:     orEmpty(d.Initial.Checkpoints),
		Fluency:         orEmpty(d.Initial.Fluency),
		Appropriateness: orEmpty(d.Initial.Appropriateness),
	}
	clone.Accuracy = orEmpty(d.Accuracy)
	clone.Checkpoints = orEmpty(d.Checkpoints)
	clone.Fluency = orEmpty(d.Fluency)
	clone.Appropriateness = orEmpty(d.Appropriateness)
	return json.Marshal(clone)
}

func orEmpty(issues []Issue) []Issue {
	if issues == nil {
		return []Issue{}
	}
	return issues
}

// Outcome is the result of evaluating one task.
type Outcome struct {
	Scores Scores
	Total  int
	Detail *Detail
}
