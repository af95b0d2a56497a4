/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package runner

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"sync"
)

// maxLineSize bounds a single checkpoint line; detailed judgments for long
// tasks can run to megabytes.
const maxLineSize = 64 * 1024 * 1024

// Log is the append-only JSONL checkpoint file. Appends are serialized and
// written as a single line-terminated write, so concurrent workers can never
// interleave partial lines.
type Log struct {
	mu sync.Mutex
	f  *os.File
}

// OpenLog opens (or creates) the checkpoint file for appending.
func OpenLog(path string) (*Log, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening checkpoint log: %w", err)
	}
	return &Log{f: f}, nil
}

// Append writes one record as a single durable line.
func (l *Log) Append(line json.RawMessage) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	buf := make([]byte, 0, len(line)+1)
	buf = append(buf, line...)
	buf = append(buf, '\n')
	if _, err := l.f.Write(buf); err != nil {
		return fmt.Errorf("appending checkpoint line: %w", err)
	}
	return nil
}

// Close flushes and closes the underlying file.
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.f.Close()
}

// ReadLog reads a checkpoint file back as raw lines plus the set of task
// identifiers already completed. Error records carry no prompt_id and do not
// contribute to the completed set.
func ReadLog(path string) ([]json.RawMessage, map[int]bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("opening checkpoint log: %w", err)
	}
	defer f.Close()

	var (
		lines []json.RawMessage
		done  = make(map[int]bool)
	)
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	for scanner.Scan() {
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}
		var probe struct {
			PromptID *int `json:"prompt_id"`
		}
		if err := json.Unmarshal(raw, &probe); err != nil {
			return nil, nil, fmt.Errorf("malformed checkpoint line: %w", err)
		}
		line := make(json.RawMessage, len(raw))
		copy(line, raw)
		lines = append(lines, line)
		if probe.PromptID != nil {
			done[*probe.PromptID] = true
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, nil, fmt.Errorf("reading checkpoint log: %w", err)
	}
	return lines, done, nil
}
