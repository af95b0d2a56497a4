/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package promptbuilder

import (
	"encoding/json"
	"encoding/xml"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// binding is a value substituted into the template at Build time.
type binding interface {
	value() (string, error)
}

// unboundBinding is the parse-time state before a value is bound.
type unboundBinding struct {
	name string
}

func (u *unboundBinding) value() (string, error) {
	return "", fmt.Errorf("unbound placeholder: %s", u.name)
}

type literalBinding struct {
	val string
}

func (l *literalBinding) value() (string, error) {
	return l.val, nil
}

// textBinding wraps user text in an XML-escaped element.
type textBinding struct {
	tag string
	val string
}

func (t *textBinding) value() (string, error) {
	var sb strings.Builder
	if err := xml.EscapeText(&sb, []byte(t.val)); err != nil {
		return "", fmt.Errorf("escaping text for %q: %w", t.tag, err)
	}
	return fmt.Sprintf("<%s>\n%s\n</%s>", t.tag, sb.String(), t.tag), nil
}

type jsonBinding struct {
	data any
}

func (j *jsonBinding) value() (string, error) {
	b, err := json.MarshalIndent(j.data, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal JSON: %w", err)
	}
	return string(b), nil
}

type yamlBinding struct {
	data any
}

func (y *yamlBinding) value() (string, error) {
	b, err := yaml.Marshal(y.data)
	if err != nil {
		return "", fmt.Errorf("failed to marshal YAML: %w", err)
	}
	return strings.TrimRight(string(b), "\n"), nil
}
