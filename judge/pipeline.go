/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package judge

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/chainguard-dev/clog"

	"chainguard.dev/evalpipe/dataset"
	"chainguard.dev/evalpipe/extract"
	"chainguard.dev/evalpipe/invoker"
	"chainguard.dev/evalpipe/promptbuilder"
	"chainguard.dev/evalpipe/retry"
)

// gateMarker matches the fixed marker line the gate judge ends with.
var gateMarker = regexp.MustCompile(`(?i)problem exists:\s*(yes|no)`)

// Pipeline evaluates one task at a time through the staged judgment flow:
// gate, four dimension judges, self-critique, four final judges, score
// aggregation. A Pipeline is stateless and safe for concurrent use.
type Pipeline struct {
	invoker    invoker.Interface
	judgeModel string
	policy     retry.Policy
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithRetryPolicy overrides the structured-call retry policy.
func WithRetryPolicy(p retry.Policy) Option {
	return func(pl *Pipeline) {
		pl.policy = p
	}
}

// NewPipeline constructs a pipeline that judges with the given model.
func NewPipeline(inv invoker.Interface, judgeModel string, opts ...Option) *Pipeline {
	p := &Pipeline{
		invoker:    inv,
		judgeModel: judgeModel,
		policy:     retry.DefaultPolicy(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Evaluate runs the full judgment flow for one task/response pair. Judge
// failures degrade to empty findings rather than failing the task, so
// Evaluate always produces an Outcome.
func (p *Pipeline) Evaluate(ctx context.Context, task *dataset.Task, response string) *Outcome {
	log := clog.FromContext(ctx)
	detail := &Detail{}

	// Stage 1: instruction-following gate. A confirmed violation zeroes the
	// score without spending the eight remaining judge calls.
	gateText, err := p.gate(ctx, task, response)
	if err != nil {
		log.With("error", err.Error()).Warn("Gate judge failed, continuing without gate")
	} else {
		detail.InstructionFollowing = gateText
		if gateFlagged(gateText) {
			log.Info("Gate flagged an instruction violation, short-circuiting")
			return &Outcome{Detail: detail}
		}
	}

	// Stage 2: the four dimension judges. Independent of each other; run in
	// gate order for reproducible logs.
	accuracy := p.structuredJudge(ctx, "judge_accuracy", accuracySystem, func() (*promptbuilder.Prompt, error) {
		return bindDimension(task, response)
	})
	checkpoints := p.structuredJudge(ctx, "judge_checkpoints", checkpointSystem, func() (*promptbuilder.Prompt, error) {
		return bindCheckpoint(task, response)
	})
	fluency := p.structuredJudge(ctx, "judge_fluency", fluencySystem, func() (*promptbuilder.Prompt, error) {
		return bindDimension(task, response)
	})
	style := p.structuredJudge(ctx, "judge_style", styleSystem, func() (*promptbuilder.Prompt, error) {
		return bindDimension(task, response)
	})
	detail.Initial = &InitialJudgments{
		Accuracy:        accuracy,
		Checkpoints:     checkpoints,
		Fluency:         fluency,
		Appropriateness: style,
	}

	// Stage 3: self-critique, single attempt. Its output is opaque context
	// for the final judges; a failure here degrades to an empty adjustment.
	critique, err := retry.DoErr(ctx, "self_critique", func(ctx context.Context) (string, error) {
		prompt, err := bindCritique(accuracy, checkpoints, fluency, style)
		if err != nil {
			return "", err
		}
		text, err := p.judgeCall(ctx, critiqueSystem, prompt)
		if err != nil {
			return "", err
		}
		return extract.JSON(text), nil
	})
	if err != nil {
		critique = ""
	}
	detail.SelfCritique = critique
	log.With("adjustment", critique).Info("Self-critique complete")

	// Stage 4: final judges, one per dimension, each seeing its initial
	// judgment plus the adjustment.
	detail.Accuracy = p.structuredJudge(ctx, "final_accuracy", accuracyFinalSystem, func() (*promptbuilder.Prompt, error) {
		return bindFinal(finalPrompt, accuracy, critique)
	})
	detail.Checkpoints = p.structuredJudge(ctx, "final_checkpoints", checkpointFinalSystem, func() (*promptbuilder.Prompt, error) {
		return bindFinal(checkpointFinalPrompt, checkpoints, critique)
	})
	detail.Fluency = p.structuredJudge(ctx, "final_fluency", fluencyFinalSystem, func() (*promptbuilder.Prompt, error) {
		return bindFinal(finalPrompt, fluency, critique)
	})
	detail.Appropriateness = p.structuredJudge(ctx, "final_style", styleFinalSystem, func() (*promptbuilder.Prompt, error) {
		return bindFinal(finalPrompt, style, critique)
	})

	// Stage 5: deterministic aggregation.
	scores := Calculate(ctx, detail.Accuracy, detail.Checkpoints, detail.Fluency, detail.Appropriateness)
	return &Outcome{Scores: scores, Total: scores.Total(), Detail: detail}
}

// gateFlagged reports whether the gate text flags a violation. The marker is
// instructed onto the last line, and judges sometimes restate the question
// mid-explanation, so only the last occurrence counts.
func gateFlagged(text string) bool {
	matches := gateMarker.FindAllStringSubmatch(text, -1)
	return len(matches) > 0 && strings.EqualFold(matches[len(matches)-1][1], "yes")
}

// gate issues the instruction-following check and returns the raw judge text.
func (p *Pipeline) gate(ctx context.Context, task *dataset.Task, response string) (string, error) {
	prompt, err := bindGate(task, response)
	if err != nil {
		return "", err
	}
	return p.judgeCall(ctx, gateSystem, prompt)
}

// structuredJudge issues one judge call whose output must contain a JSON
// issue list, retrying the whole call under the pipeline's policy and
// degrading to no findings on exhaustion.
func (p *Pipeline) structuredJudge(ctx context.Context, operation, system string, bind func() (*promptbuilder.Prompt, error)) []Issue {
	return retry.Do(ctx, p.policy, operation, []Issue(nil), func(ctx context.Context) ([]Issue, error) {
		prompt, err := bind()
		if err != nil {
			return nil, err
		}
		text, err := p.judgeCall(ctx, system, prompt)
		if err != nil {
			return nil, err
		}
		issues, err := extract.Parse[[]Issue](text)
		if err != nil {
			return nil, fmt.Errorf("parsing judge output: %w (raw output: %q)", err, text)
		}
		return issues, nil
	})
}

// judgeCall renders the user prompt and issues one judging-mode completion.
func (p *Pipeline) judgeCall(ctx context.Context, system string, prompt *promptbuilder.Prompt) (string, error) {
	user, err := prompt.Build()
	if err != nil {
		return "", fmt.Errorf("building judge prompt: %w", err)
	}
	return p.invoker.Generate(ctx, invoker.Request{
		Messages: []invoker.Message{
			{Role: invoker.RoleSystem, Content: system},
			{Role: invoker.RoleUser, Content: user},
		},
		Model:       p.judgeModel,
		JudgingMode: true,
	})
}
