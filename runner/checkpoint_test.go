/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package runner

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogConcurrentAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.jsonl")
	l, err := OpenLog(path)
	require.NoError(t, err)

	const n = 50
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			line := json.RawMessage(fmt.Sprintf(`{"prompt_id":%d,"score":100}`, id))
			assert.NoError(t, l.Append(line))
		}(i)
	}
	wg.Wait()
	require.NoError(t, l.Close())

	// Every line survives intact; none interleave.
	lines, done, err := ReadLog(path)
	require.NoError(t, err)
	assert.Len(t, lines, n)
	assert.Len(t, done, n)
}

func TestReadLogSkipsErrorRecords(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.jsonl")
	l, err := OpenLog(path)
	require.NoError(t, err)
	require.NoError(t, l.Append(json.RawMessage(`{"prompt_id":7,"score":90}`)))
	require.NoError(t, l.Append(json.RawMessage(`{"error":"boom","traceback":"boom"}`)))
	require.NoError(t, l.Close())

	lines, done, err := ReadLog(path)
	require.NoError(t, err)
	assert.Len(t, lines, 2, "error lines are kept in the record stream")
	assert.Equal(t, map[int]bool{7: true}, done, "error lines do not mark tasks done")
}

func TestManifestLatest(t *testing.T) {
	dir := t.TempDir()
	m, err := LoadManifest(dir)
	require.NoError(t, err)
	assert.Nil(t, m.Latest("m", "s"))

	older := NewEntry("m", "s", "a.jsonl", "a.json")
	older.CreatedAt = older.CreatedAt.Add(-time.Hour)
	newer := NewEntry("m", "s", "b.jsonl", "b.json")
	other := NewEntry("m2", "s", "c.jsonl", "c.json")
	require.NoError(t, m.Append(older))
	require.NoError(t, m.Append(newer))
	require.NoError(t, m.Append(other))

	// Selection survives a reload; latest is by creation time, not file
	// order, and never crosses model or task-set boundaries.
	m, err = LoadManifest(dir)
	require.NoError(t, err)
	got := m.Latest("m", "s")
	require.NotNil(t, got)
	assert.Equal(t, newer.ID, got.ID)
	assert.Nil(t, m.Latest("m", "other-set"))
}
