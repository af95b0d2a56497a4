/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package extract pulls JSON out of free-text model responses. Judge models
// are asked to answer with a bare JSON document but routinely wrap it in a
// markdown code fence; both forms are accepted.
package extract

import (
	"encoding/json"
	"regexp"
	"strings"
)

// fence matches the first ```json ... ``` (or bare ``` ... ```) block,
// non-greedily, so trailing prose after the fence is ignored.
var fence = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)\\s*```")

// JSON returns the content of the first fenced code block in text, or the
// trimmed text itself when no fence is present.
func JSON(text string) string {
	if m := fence.FindStringSubmatch(text); m != nil {
		return m[1]
	}
	return strings.TrimSpace(text)
}

// Parse extracts the JSON content of text and unmarshals it into T.
func Parse[T any](text string) (T, error) {
	var result T
	if err := json.Unmarshal([]byte(JSON(text)), &result); err != nil {
		return result, err
	}
	return result, nil
}
