/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package promptbuilder provides immutable prompt templates with named
// {{placeholder}} bindings. Judge prompts are declared once as package
// variables and bound per call with task-specific values.
package promptbuilder

import (
	"errors"
	"fmt"
	"maps"
	"strings"
	"unicode"
)

// stringLiteral only accepts untyped string constants, so literal bindings
// cannot carry user input.
type stringLiteral string

// Prompt is a template with bindable placeholders. All Bind methods return a
// new Prompt; a Prompt is never mutated and is safe to share across workers.
type Prompt struct {
	template string
	bindings map[string]binding
}

// NewPrompt parses a template literal and records its placeholders.
func NewPrompt(template stringLiteral) (*Prompt, error) {
	bindings := make(map[string]binding)
	tmpl, err := walkTemplate(string(template), func(name string) (string, error) {
		if _, exists := bindings[name]; !exists {
			bindings[name] = &unboundBinding{name: name}
		}
		return fmt.Sprintf("{{%s}}", name), nil
	})
	if err != nil {
		return nil, err
	}
	return &Prompt{template: tmpl, bindings: bindings}, nil
}

// MustNewPrompt is NewPrompt for package-level variables; it panics on error.
func MustNewPrompt(template stringLiteral) *Prompt {
	p, err := NewPrompt(template)
	if err != nil {
		panic(err)
	}
	return p
}

// Placeholders returns the set of placeholder names found in the template.
func (p *Prompt) Placeholders() map[string]struct{} {
	names := make(map[string]struct{}, len(p.bindings))
	for name := range p.bindings {
		names[name] = struct{}{}
	}
	return names
}

func (p *Prompt) with(name string, b binding) (*Prompt, error) {
	existing, exists := p.bindings[name]
	if !exists {
		return nil, fmt.Errorf("binding %q not found in template", name)
	}
	if _, unbound := existing.(*unboundBinding); !unbound {
		return nil, fmt.Errorf("binding %q already bound", name)
	}
	next := &Prompt{template: p.template, bindings: maps.Clone(p.bindings)}
	next.bindings[name] = b
	return next, nil
}

// BindStringLiteral binds a developer-provided literal string.
func (p *Prompt) BindStringLiteral(name string, value stringLiteral) (*Prompt, error) {
	return p.with(name, &literalBinding{val: string(value)})
}

// BindText binds user-controlled text as an XML-escaped element named after
// the placeholder, e.g. <source_text>...</source_text>. Judge prompts use
// this for the original text and the candidate response so that model output
// cannot break the prompt structure.
func (p *Prompt) BindText(name, value string) (*Prompt, error) {
	return p.with(name, &textBinding{tag: name, val: value})
}

// BindJSON binds structured data marshaled as indented JSON.
func (p *Prompt) BindJSON(name string, data any) (*Prompt, error) {
	return p.with(name, &jsonBinding{data: data})
}

// BindYAML binds structured data marshaled as YAML.
func (p *Prompt) BindYAML(name string, data any) (*Prompt, error) {
	return p.with(name, &yamlBinding{data: data})
}

// Build renders the prompt, failing if any placeholder remains unbound.
func (p *Prompt) Build() (string, error) {
	values := make(map[string]string, len(p.bindings))
	for name, b := range p.bindings {
		val, err := b.value()
		if err != nil {
			return "", err
		}
		values[name] = val
	}
	return walkTemplate(p.template, func(name string) (string, error) {
		if val, exists := values[name]; exists {
			return val, nil
		}
		return "", fmt.Errorf("internal error: binding %q not found", name)
	})
}

// resolveFunc provides a replacement for a placeholder name.
type resolveFunc func(name string) (string, error)

func walkTemplate(template string, resolve resolveFunc) (string, error) {
	var result strings.Builder
	for len(template) > 0 {
		start := strings.Index(template, "{{")
		if start == -1 {
			result.WriteString(template)
			break
		}
		result.WriteString(template[:start])

		end := strings.Index(template[start:], "}}")
		if end == -1 {
			return "", errors.New("unclosed binding: missing '}}'")
		}
		end += start + 2

		name := strings.TrimSpace(template[start+2 : end-2])
		if !isValidIdentifier(name) {
			return "", fmt.Errorf("invalid binding identifier %q", name)
		}
		replacement, err := resolve(name)
		if err != nil {
			return "", err
		}
		result.WriteString(replacement)

		template = template[end:]
	}
	return result.String(), nil
}

// isValidIdentifier reports whether s starts with a letter and contains only
// letters, digits, and underscores.
func isValidIdentifier(s string) bool {
	runes := []rune(s)
	if len(runes) == 0 || !unicode.IsLetter(runes[0]) {
		return false
	}
	for _, r := range runes[1:] {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_' {
			return false
		}
	}
	return true
}
