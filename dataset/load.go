/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package dataset

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// taskRecord is the load-time shape of a task. Pointer fields distinguish
// missing keys from zero values so that required-field validation matches the
// source schema (an explicit 0 or "" is present, an absent key is not).
// encoding/json matches keys case-insensitively, which is what accepts both
// the canonical Primary_Domain and the aliased primary_domain spellings.
type taskRecord struct {
	PromptID        *int    `json:"prompt_id" validate:"required"`
	Prompt          *string `json:"prompt" validate:"required"`
	ReferenceList   *string `json:"reference_list" validate:"required"`
	OriText         *string `json:"ori_text" validate:"required"`
	PrimaryDomain   *string `json:"Primary_Domain" validate:"required"`
	SecondaryDomain *string `json:"Secondary_Domain" validate:"required"`
}

// Load reads a task set from a JSON file. The file must carry a .json
// extension and contain an array of task objects; any object missing a
// required field or carrying a mistyped value fails the whole load.
func Load(filename string) ([]Task, error) {
	if !strings.HasSuffix(filename, ".json") {
		return nil, fmt.Errorf("task file %q must have a .json extension", filename)
	}

	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("reading task file: %w", err)
	}

	var records []taskRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("parsing task file %q: %w", filename, err)
	}

	tasks := make([]Task, 0, len(records))
	for i, rec := range records {
		if err := validate.Struct(rec); err != nil {
			return nil, fmt.Errorf("task %d in %q: %w", i, filename, err)
		}
		tasks = append(tasks, Task{
			PromptID:        *rec.PromptID,
			Prompt:          *rec.Prompt,
			ReferenceList:   *rec.ReferenceList,
			OriText:         *rec.OriText,
			PrimaryDomain:   *rec.PrimaryDomain,
			SecondaryDomain: *rec.SecondaryDomain,
		})
	}
	return tasks, nil
}

// SetName derives the task-set label used in checkpoint file names and
// manifest entries from the task file name, e.g. "dataset/DISCOX-filtered.json"
// becomes "DISCOX-filtered".
func SetName(filename string) string {
	base := filepath.Base(filename)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
