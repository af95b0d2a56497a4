/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package runner

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// manifestName is the run registry kept alongside the result files.
const manifestName = "manifest.json"

// Entry records one run: which model was evaluated against which task set,
// when it started, and where its checkpoint and result files live. The
// manifest is the resume contract; file timestamps play no part in it.
type Entry struct {
	ID             string    `json:"id"`
	Model          string    `json:"model"`
	TaskSet        string    `json:"task_set"`
	CreatedAt      time.Time `json:"created_at"`
	CheckpointPath string    `json:"checkpoint_path"`
	ResultPath     string    `json:"result_path"`
}

// Manifest is the ordered list of runs recorded in an output directory.
type Manifest struct {
	path    string
	Entries []Entry `json:"runs"`
}

// LoadManifest reads the manifest in dir, returning an empty manifest when
// none exists yet.
func LoadManifest(dir string) (*Manifest, error) {
	m := &Manifest{path: filepath.Join(dir, manifestName)}
	data, err := os.ReadFile(m.path)
	if errors.Is(err, fs.ErrNotExist) {
		return m, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading run manifest: %w", err)
	}
	if err := json.Unmarshal(data, m); err != nil {
		return nil, fmt.Errorf("parsing run manifest: %w", err)
	}
	return m, nil
}

// Latest returns the most recently created entry for the model/task-set
// pair, or nil when none exists.
func (m *Manifest) Latest(model, taskSet string) *Entry {
	var latest *Entry
	for i := range m.Entries {
		e := &m.Entries[i]
		if e.Model != model || e.TaskSet != taskSet {
			continue
		}
		if latest == nil || e.CreatedAt.After(latest.CreatedAt) {
			latest = e
		}
	}
	return latest
}

// Append records a new run and rewrites the manifest file.
func (m *Manifest) Append(e Entry) error {
	m.Entries = append(m.Entries, e)
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling run manifest: %w", err)
	}
	if err := os.WriteFile(m.path, data, 0o644); err != nil {
		return fmt.Errorf("writing run manifest: %w", err)
	}
	return nil
}

// NewEntry constructs a manifest entry for a fresh run.
func NewEntry(model, taskSet, checkpointPath, resultPath string) Entry {
	return Entry{
		ID:             uuid.NewString(),
		Model:          model,
		TaskSet:        taskSet,
		CreatedAt:      time.Now().UTC(),
		CheckpointPath: checkpointPath,
		ResultPath:     resultPath,
	}
}
