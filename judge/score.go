/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package judge

import (
	"context"

	"github.com/chainguard-dev/clog"
)

// Score bases and penalty tables. These are fixed: changing them silently
// breaks score comparability across runs, so they are deliberately not
// configurable.
const (
	accuracyBase        = 60
	fluencyBase         = 20
	appropriatenessBase = 20

	// Penalty applied when an accuracy issue carries a severity outside the
	// known vocabulary.
	unknownSeverityPenalty = -5
)

var accuracyPenalties = map[string]int{
	SeverityNone:    0,
	SeverityMinor:   -5,
	SeverityMajor:   -5,
	SeveritySevere:  -10,
	SeverityExtreme: -50,
}

var checkpointPenalties = map[string]int{
	ResultCorrect:   0,
	ResultIncorrect: -5,
}

var fluencyPenalties = map[string]int{
	SeverityNone:     0,
	SeverityNoIssue:  0,
	SeverityHasIssue: -2,
}

var appropriatenessPenalties = map[string]int{
	SeverityNone:     0,
	SeverityNoIssue:  0,
	SeverityHasIssue: -5,
}

// Calculate turns the four final judgment lists into dimension scores.
// Accuracy starts at 60 and absorbs both accuracy-severity and checkpoint
// penalties; fluency and appropriateness start at 20. Every score is clamped
// at zero, so the total falls in [0, 100]. Unknown vocabulary values apply a
// documented default and are logged, never dropped.
func Calculate(ctx context.Context, accuracy, checkpoints, fluency, appropriateness []Issue) Scores {
	log := clog.FromContext(ctx)

	acc := accuracyBase
	for _, issue := range accuracy {
		penalty, ok := accuracyPenalties[issue.Severity]
		if !ok {
			log.With("severity", issue.Severity).
				Warn("Unknown severity level, defaulting to -5 points")
			penalty = unknownSeverityPenalty
		}
		acc += penalty
	}
	for _, issue := range checkpoints {
		penalty, ok := checkpointPenalties[issue.Result]
		if !ok {
			log.With("result", issue.Result).
				Warn("Unknown checkpoint result, counting it as correct")
			continue
		}
		acc += penalty
	}
	acc = max(acc, 0)

	flu := fluencyBase
	for _, issue := range fluency {
		penalty, ok := fluencyPenalties[issue.Severity]
		if !ok {
			log.With("severity", issue.Severity).
				Warn("Unknown fluency severity, applying no penalty")
			continue
		}
		flu += penalty
	}
	flu = max(flu, 0)

	appr := appropriatenessBase
	for _, issue := range appropriateness {
		penalty, ok := appropriatenessPenalties[issue.Severity]
		if !ok {
			log.With("severity", issue.Severity).
				Warn("Unknown appropriateness severity, applying no penalty")
			continue
		}
		appr += penalty
	}
	appr = max(appr, 0)

	return Scores{Accuracy: acc, Fluency: flu, Appropriateness: appr}
}
