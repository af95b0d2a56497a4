/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package runner

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/chainguard-dev/clog"
	"golang.org/x/sync/errgroup"

	"chainguard.dev/evalpipe/dataset"
	"chainguard.dev/evalpipe/invoker"
	"chainguard.dev/evalpipe/judge"
)

// candidateMaxTokens caps the candidate model's answer length.
const candidateMaxTokens = 20000

// Options configures a run.
type Options struct {
	// Concurrency bounds the worker pool (default 32).
	Concurrency int

	// OutputDir holds the manifest, checkpoint, and result files
	// (default "results").
	OutputDir string

	// CallTimeout bounds every model call; zero disables the deadline.
	CallTimeout time.Duration
}

// Result is the consolidated run output written to the result file. Seeded
// records from a resumed run are carried through verbatim, so DetailedResults
// holds raw lines rather than re-serialized Records.
type Result struct {
	AverageAccuracy float64           `json:"average_accuracy"`
	Model           string            `json:"model"`
	DetailedResults []json.RawMessage `json:"detailed_results"`
}

// Runner evaluates a task set against a candidate model, persisting progress
// after every task so an interrupted run resumes where it stopped.
type Runner struct {
	invoker  invoker.Interface
	pipeline *judge.Pipeline
	model    string
	opts     Options
}

// New constructs a Runner. The invoker is used for candidate answers only;
// judge traffic flows through the pipeline's own invoker.
func New(inv invoker.Interface, pipeline *judge.Pipeline, model string, opts Options) *Runner {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 32
	}
	if opts.OutputDir == "" {
		opts.OutputDir = "results"
	}
	return &Runner{
		invoker:  invoker.WithTimeout(inv, opts.CallTimeout),
		pipeline: pipeline,
		model:    model,
		opts:     opts,
	}
}

// Run evaluates tasks, resuming from the most recent matching run when one
// exists, and writes the consolidated result file. On shutdown the
// checkpoint log keeps the completed subset and the incomplete tasks are
// left for the next run.
func (r *Runner) Run(ctx context.Context, taskSet string, tasks []dataset.Task) (*Result, error) {
	log := clog.FromContext(ctx).With("model", r.model).With("task_set", taskSet)
	ctx = clog.WithLogger(ctx, log)

	if err := os.MkdirAll(r.opts.OutputDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating output dir: %w", err)
	}
	manifest, err := LoadManifest(r.opts.OutputDir)
	if err != nil {
		return nil, err
	}

	var seeded []json.RawMessage
	remaining := tasks

	entry := manifest.Latest(r.model, taskSet)
	if entry != nil {
		lines, done, err := ReadLog(entry.CheckpointPath)
		if err != nil {
			return nil, err
		}
		remaining = filterDone(tasks, done)
		if len(remaining) == 0 {
			// A fully completed prior run is not reused; start over.
			log.With("total", len(tasks)).
				Info("All tasks completed in the previous run, starting a new run")
			remaining = tasks
			entry = nil
		} else {
			seeded = lines
			log.With("completed", len(lines)).
				With("remaining", len(remaining)).
				Info("Resuming previous run")
		}
	} else {
		log.With("total", len(tasks)).Info("No previous run for this model, starting fresh")
	}

	if entry == nil {
		stamp := time.Now().Format("2006-01-02 15-04-05")
		prefix := fmt.Sprintf("%s-%s-%s", stamp, sanitizeModelName(r.model), taskSet)
		e := NewEntry(r.model, taskSet,
			filepath.Join(r.opts.OutputDir, prefix+"partial.jsonl"),
			filepath.Join(r.opts.OutputDir, prefix+"result.json"))
		if err := manifest.Append(e); err != nil {
			return nil, err
		}
		entry = &e
	}

	ckpt, err := OpenLog(entry.CheckpointPath)
	if err != nil {
		return nil, err
	}
	defer ckpt.Close()

	var (
		mu        sync.Mutex
		results   = seeded
		completed int
	)
	total := len(remaining)

	log.Info("Start running")
	eg, egctx := errgroup.WithContext(ctx)
	eg.SetLimit(r.opts.Concurrency)
	for i := range remaining {
		task := &remaining[i]
		eg.Go(func() error {
			if egctx.Err() != nil {
				return nil // shutting down; leave the task as a resumable gap
			}
			rec := r.runTask(egctx, task)
			if rec == nil {
				return nil // canceled mid-flight
			}
			line, err := json.Marshal(rec)
			if err != nil {
				// A record that cannot be serialized still must not vanish.
				line, _ = json.Marshal(&Record{
					Error:     fmt.Sprintf("marshaling record for task %d: %v", task.PromptID, err),
					Traceback: errTrace(err),
				})
			}
			if err := ckpt.Append(line); err != nil {
				return err
			}
			mu.Lock()
			results = append(results, line)
			completed++
			n := completed
			mu.Unlock()
			log.With("completed", n).With("total", total).Info("Task finished")
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		log.Warn("Run interrupted; completed tasks are checkpointed for resume")
		return nil, err
	}

	result := &Result{
		AverageAccuracy: averageAccuracy(results),
		Model:           r.model,
		DetailedResults: results,
	}
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshaling result: %w", err)
	}
	if err := os.WriteFile(entry.ResultPath, data, 0o644); err != nil {
		return nil, fmt.Errorf("writing result file: %w", err)
	}
	log.With("average_accuracy", fmt.Sprintf("%.2f%%", result.AverageAccuracy*100)).
		With("path", entry.ResultPath).
		Info("Results saved")
	return result, nil
}

// runTask produces one Record: candidate answer, full judgment pipeline,
// assembled result. A nil return means the task was interrupted by shutdown
// and should stay absent from the checkpoint. Panics and errors become error
// records so no task is ever silently lost.
func (r *Runner) runTask(ctx context.Context, task *dataset.Task) (rec *Record) {
	log := clog.FromContext(ctx).With("prompt_id", task.PromptID)
	defer func() {
		if p := recover(); p != nil {
			log.With("panic", fmt.Sprint(p)).Error("Task panicked")
			rec = &Record{
				Error:     fmt.Sprintf("task %d panicked: %v", task.PromptID, p),
				Traceback: string(debug.Stack()),
			}
		}
	}()

	output, err := r.invoker.Generate(ctx, invoker.Request{
		Messages:  []invoker.Message{{Role: invoker.RoleUser, Content: task.Prompt}},
		Model:     r.model,
		MaxTokens: candidateMaxTokens,
	})
	if err != nil {
		if ctx.Err() != nil {
			log.Warn("Shutdown during candidate call, leaving task for the next run")
			return nil
		}
		log.With("error", err.Error()).Error("Candidate model call failed")
		return &Record{Error: err.Error(), Traceback: errTrace(err)}
	}

	outcome := r.pipeline.Evaluate(ctx, task, output)
	if ctx.Err() != nil {
		// Judge calls degrade to empty findings when canceled; a judgment
		// assembled during shutdown would score as if nothing was wrong.
		log.Warn("Shutdown during judging, leaving task for the next run")
		return nil
	}

	score := outcome.Total
	return &Record{
		Task:        task,
		ModelOutput: output,
		DomainScore: &outcome.Scores,
		Score:       &score,
		Detail:      outcome.Detail,
	}
}

// averageAccuracy is sum(score) / (scored count × 100); error records are
// excluded, and an empty result set reports 0.0.
func averageAccuracy(results []json.RawMessage) float64 {
	sum, count := 0, 0
	for _, line := range results {
		var probe struct {
			Score *int `json:"score"`
		}
		if err := json.Unmarshal(line, &probe); err != nil || probe.Score == nil {
			continue
		}
		sum += *probe.Score
		count++
	}
	if count == 0 {
		return 0.0
	}
	return float64(sum) / (float64(count) * 100)
}

func filterDone(tasks []dataset.Task, done map[int]bool) []dataset.Task {
	remaining := make([]dataset.Task, 0, len(tasks))
	for _, t := range tasks {
		if !done[t.PromptID] {
			remaining = append(remaining, t)
		}
	}
	return remaining
}

// sanitizeModelName makes a model identifier safe for file names.
func sanitizeModelName(model string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|':
			return '-'
		}
		return r
	}, model)
}
