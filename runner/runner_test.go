/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package runner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chainguard.dev/evalpipe/dataset"
	"chainguard.dev/evalpipe/invoker"
	"chainguard.dev/evalpipe/judge"
)

// stubInvoker answers candidate calls with a canned response and every judge
// call with a passing gate plus an empty finding list, so each completed task
// scores a full 100.
type stubInvoker struct {
	mu             sync.Mutex
	candidateCalls []string
	failPrompts    map[string]bool
}

func (s *stubInvoker) Generate(_ context.Context, req invoker.Request) (string, error) {
	if req.JudgingMode {
		return "Problem exists: no\n```json\n[]\n```", nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	prompt := req.Messages[len(req.Messages)-1].Content
	s.candidateCalls = append(s.candidateCalls, prompt)
	if s.failPrompts[prompt] {
		return "", errors.New("candidate backend unavailable")
	}
	return "answer to " + prompt, nil
}

func (s *stubInvoker) candidateCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.candidateCalls)
}

func makeTasks(n int) []dataset.Task {
	tasks := make([]dataset.Task, n)
	for i := range tasks {
		tasks[i] = dataset.Task{
			PromptID:      i + 1,
			Prompt:        fmt.Sprintf("prompt %d", i+1),
			ReferenceList: "reference",
			OriText:       "source text",
		}
	}
	return tasks
}

func newTestRunner(t *testing.T, inv invoker.Interface, concurrency int) *Runner {
	t.Helper()
	pipeline := judge.NewPipeline(inv, "judge-model")
	return New(inv, pipeline, "candidate-model", Options{
		Concurrency: concurrency,
		OutputDir:   t.TempDir(),
	})
}

func TestRunFresh(t *testing.T) {
	inv := &stubInvoker{}
	r := newTestRunner(t, inv, 4)

	result, err := r.Run(context.Background(), "sample", makeTasks(3))
	require.NoError(t, err)

	assert.Equal(t, "candidate-model", result.Model)
	assert.Len(t, result.DetailedResults, 3)
	assert.Equal(t, 1.0, result.AverageAccuracy)
	assert.Equal(t, 3, inv.candidateCount())

	// The run is on disk: a manifest entry, a checkpoint line per task, and
	// the consolidated result file.
	m, err := LoadManifest(r.opts.OutputDir)
	require.NoError(t, err)
	require.Len(t, m.Entries, 1)
	entry := m.Entries[0]
	assert.Equal(t, "candidate-model", entry.Model)
	assert.Equal(t, "sample", entry.TaskSet)

	lines, done, err := ReadLog(entry.CheckpointPath)
	require.NoError(t, err)
	assert.Len(t, lines, 3)
	assert.Equal(t, map[int]bool{1: true, 2: true, 3: true}, done)

	data, err := os.ReadFile(entry.ResultPath)
	require.NoError(t, err)
	var onDisk Result
	require.NoError(t, json.Unmarshal(data, &onDisk))
	assert.Equal(t, result.AverageAccuracy, onDisk.AverageAccuracy)
	assert.Len(t, onDisk.DetailedResults, 3)
}

func TestRunResumeSubmitsOnlyRemaining(t *testing.T) {
	tasks := makeTasks(5)

	// First run completes tasks 1 and 2, then is interrupted.
	firstInv := &stubInvoker{failPrompts: map[string]bool{}}
	r := newTestRunner(t, firstInv, 1)
	_, err := r.Run(context.Background(), "sample", tasks[:2])
	require.NoError(t, err)

	// Resume with the full set through a fresh invoker so submissions are
	// attributable to the second run.
	secondInv := &stubInvoker{}
	resumed := New(secondInv, judge.NewPipeline(secondInv, "judge-model"),
		"candidate-model", r.opts)

	result, err := resumed.Run(context.Background(), "sample", tasks)
	require.NoError(t, err)

	assert.Equal(t, 3, secondInv.candidateCount(), "only the remaining tasks run")
	assert.Len(t, result.DetailedResults, 5)

	// No duplicates, no loss.
	seen := map[int]bool{}
	for _, line := range result.DetailedResults {
		var probe struct {
			PromptID int `json:"prompt_id"`
		}
		require.NoError(t, json.Unmarshal(line, &probe))
		assert.False(t, seen[probe.PromptID], "duplicate record for task %d", probe.PromptID)
		seen[probe.PromptID] = true
	}
	assert.Len(t, seen, 5)

	// Resuming reuses the original run entry rather than minting a new one.
	m, err := LoadManifest(r.opts.OutputDir)
	require.NoError(t, err)
	assert.Len(t, m.Entries, 1)
}

func TestRunStartsFreshWhenAllTasksDone(t *testing.T) {
	tasks := makeTasks(2)
	inv := &stubInvoker{}
	r := newTestRunner(t, inv, 2)

	_, err := r.Run(context.Background(), "sample", tasks)
	require.NoError(t, err)
	require.Equal(t, 2, inv.candidateCount())

	// A second invocation finds every task completed and re-runs them all
	// under a new manifest entry.
	result, err := r.Run(context.Background(), "sample", tasks)
	require.NoError(t, err)
	assert.Equal(t, 4, inv.candidateCount())
	assert.Len(t, result.DetailedResults, 2)

	m, err := LoadManifest(r.opts.OutputDir)
	require.NoError(t, err)
	assert.Len(t, m.Entries, 2)
}

func TestRunRecordsCandidateFailure(t *testing.T) {
	inv := &stubInvoker{failPrompts: map[string]bool{"prompt 2": true}}
	r := newTestRunner(t, inv, 2)

	result, err := r.Run(context.Background(), "sample", makeTasks(3))
	require.NoError(t, err)
	require.Len(t, result.DetailedResults, 3)

	var failures int
	for _, line := range result.DetailedResults {
		var probe struct {
			PromptID *int   `json:"prompt_id"`
			Error    string `json:"error"`
		}
		require.NoError(t, json.Unmarshal(line, &probe))
		if probe.Error != "" {
			failures++
			assert.Nil(t, probe.PromptID, "error records carry no task id")
		}
	}
	assert.Equal(t, 1, failures)

	// Failed tasks do not count toward the average.
	assert.Equal(t, 1.0, result.AverageAccuracy)

	// The failed task is not marked done, so a resume re-submits it.
	m, err := LoadManifest(r.opts.OutputDir)
	require.NoError(t, err)
	_, done, err := ReadLog(m.Entries[0].CheckpointPath)
	require.NoError(t, err)
	assert.Equal(t, map[int]bool{1: true, 3: true}, done)
}

// cancelOnJudge triggers a shutdown the first time a judge call carries the
// target response text, mimicking an interrupt arriving while that task is
// mid-judgment.
type cancelOnJudge struct {
	stubInvoker
	cancel  context.CancelFunc
	trigger string
	once    sync.Once
}

func (c *cancelOnJudge) Generate(ctx context.Context, req invoker.Request) (string, error) {
	if req.JudgingMode && strings.Contains(req.Messages[len(req.Messages)-1].Content, c.trigger) {
		c.once.Do(c.cancel)
	}
	return c.stubInvoker.Generate(ctx, req)
}

func TestRunShutdownMidRunLeavesResumableGap(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	inv := &cancelOnJudge{cancel: cancel, trigger: "answer to prompt 2"}
	r := newTestRunner(t, inv, 1)

	result, err := r.Run(ctx, "sample", makeTasks(3))
	assert.Nil(t, result)
	assert.ErrorIs(t, err, context.Canceled)

	// Task 1 finished before the shutdown. Task 2 was mid-judgment and task
	// 3 never started; neither reaches the checkpoint, and no result file is
	// written.
	m, err := LoadManifest(r.opts.OutputDir)
	require.NoError(t, err)
	require.Len(t, m.Entries, 1)
	_, done, err := ReadLog(m.Entries[0].CheckpointPath)
	require.NoError(t, err)
	assert.Equal(t, map[int]bool{1: true}, done)
	_, serr := os.Stat(m.Entries[0].ResultPath)
	assert.True(t, errors.Is(serr, os.ErrNotExist))

	// The next run closes the gap: only tasks 2 and 3 are re-submitted.
	secondInv := &stubInvoker{}
	resumed := New(secondInv, judge.NewPipeline(secondInv, "judge-model"),
		"candidate-model", r.opts)
	res, err := resumed.Run(context.Background(), "sample", makeTasks(3))
	require.NoError(t, err)
	assert.Equal(t, 2, secondInv.candidateCount())
	assert.Len(t, res.DetailedResults, 3)
}

func TestRunCanceledBeforeStart(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	inv := &stubInvoker{}
	r := newTestRunner(t, inv, 2)
	result, err := r.Run(ctx, "sample", makeTasks(3))
	assert.Nil(t, result)
	assert.ErrorIs(t, err, context.Canceled)

	// No result file is written for an interrupted run.
	m, lerr := LoadManifest(r.opts.OutputDir)
	require.NoError(t, lerr)
	require.Len(t, m.Entries, 1)
	_, serr := os.Stat(m.Entries[0].ResultPath)
	assert.True(t, errors.Is(serr, os.ErrNotExist))
}

func TestAverageAccuracy(t *testing.T) {
	line := func(score int) json.RawMessage {
		return json.RawMessage(fmt.Sprintf(`{"prompt_id":1,"score":%d}`, score))
	}
	errLine := json.RawMessage(`{"error":"boom","traceback":"boom"}`)

	tests := []struct {
		name    string
		results []json.RawMessage
		want    float64
	}{
		{name: "empty", results: nil, want: 0.0},
		{name: "errors only", results: []json.RawMessage{errLine}, want: 0.0},
		{name: "perfect", results: []json.RawMessage{line(100), line(100)}, want: 1.0},
		{name: "mixed", results: []json.RawMessage{line(100), line(50)}, want: 0.75},
		{name: "errors excluded", results: []json.RawMessage{line(80), errLine}, want: 0.8},
		{name: "zero score counts", results: []json.RawMessage{line(0), line(100)}, want: 0.5},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, averageAccuracy(tc.results))
		})
	}
}

func TestSanitizeModelName(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"gpt-4o", "gpt-4o"},
		{"org/model:latest", "org-model-latest"},
		{`a\b?c*d`, "a-b-c-d"},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, sanitizeModelName(tc.in))
	}
}

func TestErrTrace(t *testing.T) {
	inner := errors.New("connection refused")
	wrapped := fmt.Errorf("calling model: %w", inner)
	assert.Equal(t, "calling model: connection refused\ncaused by: connection refused", errTrace(wrapped))
	assert.Equal(t, "connection refused", errTrace(inner))
}
