/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package main implements the evalpipe command: it loads a task file, runs
// each task against a candidate model, judges every answer through the
// multi-stage pipeline, and writes scored results. Interrupted runs resume
// from their checkpoint on the next invocation.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/chainguard-dev/clog"
	"github.com/spf13/cobra"

	"chainguard.dev/evalpipe/dataset"
	"chainguard.dev/evalpipe/invoker"
	"chainguard.dev/evalpipe/judge"
	"chainguard.dev/evalpipe/runner"
)

type flags struct {
	filename    string
	model       string
	judgeModel  string
	concurrency int
	outputDir   string
	callTimeout time.Duration
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	var f flags
	cmd := &cobra.Command{
		Use:   "evalpipe",
		Short: "Evaluate a candidate model against a judged task set",
		Long: `evalpipe runs every task in a task file against a candidate model,
judges each answer across accuracy, checkpoint coverage, fluency, and
appropriateness, and writes per-task scores plus an aggregate.

Completed tasks are checkpointed as they finish; interrupting a run and
starting it again picks up where it left off.

Endpoints and credentials come from the environment:
  CANDIDATE_API_BASE, CANDIDATE_API_KEY, JUDGE_API_BASE, JUDGE_API_KEY`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), f)
		},
	}

	cmd.Flags().StringVar(&f.filename, "filename", "", "task file to evaluate (JSON)")
	cmd.Flags().StringVar(&f.model, "model", "", "candidate model identifier")
	cmd.Flags().StringVar(&f.judgeModel, "judgemodel", "", "judge model identifier")
	cmd.Flags().IntVar(&f.concurrency, "num-concurrency", 32, "maximum tasks in flight")
	cmd.Flags().StringVar(&f.outputDir, "output-dir", "results", "directory for checkpoint and result files")
	cmd.Flags().DurationVar(&f.callTimeout, "call-timeout", 0, "per-call deadline for model requests (0 disables)")
	for _, name := range []string{"filename", "model", "judgemodel"} {
		if err := cmd.MarkFlagRequired(name); err != nil {
			clog.FatalContextf(ctx, "marking flag required: %v", err)
		}
	}

	if err := cmd.ExecuteContext(ctx); err != nil {
		clog.FatalContextf(ctx, "%v", err)
	}
}

func run(ctx context.Context, f flags) error {
	tasks, err := dataset.Load(f.filename)
	if err != nil {
		return fmt.Errorf("loading tasks: %w", err)
	}
	taskSet := dataset.SetName(f.filename)
	clog.InfoContextf(ctx, "Loaded %d tasks from %s", len(tasks), f.filename)

	client, err := invoker.NewClient(ctx)
	if err != nil {
		return fmt.Errorf("configuring model clients: %w", err)
	}

	pipeline := judge.NewPipeline(invoker.WithTimeout(client, f.callTimeout), f.judgeModel)
	r := runner.New(client, pipeline, f.model, runner.Options{
		Concurrency: f.concurrency,
		OutputDir:   f.outputDir,
		CallTimeout: f.callTimeout,
	})

	if _, err := r.Run(ctx, taskSet, tasks); err != nil {
		return fmt.Errorf("running evaluation: %w", err)
	}
	return nil
}
