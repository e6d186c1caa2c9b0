/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package promptbuilder assembles agent instructions from developer-owned
// templates. Placeholders are written {{name}}; values that come from the
// outside world are only ever bound through an encoder (YAML or JSON), so a
// PR title or branch name cannot smuggle new instructions into the template.
// Substitution is single-pass: bound values are never re-scanned.
package promptbuilder

import (
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"strings"
	"unicode"

	"gopkg.in/yaml.v3"
)

// literal only accepts untyped string constants, which keeps templates and
// literal bindings in the hands of the developer.
type literal string

// Prompt is an immutable template plus its bindings. Every Bind method
// returns a new Prompt.
type Prompt struct {
	template string
	bindings map[string]binding
}

type binding struct {
	bound  bool
	render func() (string, error)
}

// NewPrompt parses the template and records its placeholders.
func NewPrompt(template literal) (*Prompt, error) {
	bindings := map[string]binding{}
	if _, err := substitute(string(template), func(name string) (string, error) {
		bindings[name] = binding{}
		return "", nil
	}); err != nil {
		return nil, err
	}
	return &Prompt{template: string(template), bindings: bindings}, nil
}

// MustNewPrompt is NewPrompt for package-level templates; it panics on error.
func MustNewPrompt(template literal) *Prompt {
	p, err := NewPrompt(template)
	if err != nil {
		panic(err)
	}
	return p
}

// Placeholders returns the set of placeholder names in the template.
func (p *Prompt) Placeholders() map[string]struct{} {
	names := make(map[string]struct{}, len(p.bindings))
	for name := range p.bindings {
		names[name] = struct{}{}
	}
	return names
}

// BindLiteral binds a developer-supplied constant.
func (p *Prompt) BindLiteral(name string, value literal) (*Prompt, error) {
	return p.bind(name, func() (string, error) {
		return string(value), nil
	})
}

// BindYAML binds data rendered as YAML.
func (p *Prompt) BindYAML(name string, data any) (*Prompt, error) {
	return p.bind(name, func() (string, error) {
		b, err := yaml.Marshal(data)
		if err != nil {
			return "", fmt.Errorf("marshaling %s as YAML: %w", name, err)
		}
		return strings.TrimRight(string(b), "\n"), nil
	})
}

// BindJSON binds data rendered as indented JSON.
func (p *Prompt) BindJSON(name string, data any) (*Prompt, error) {
	return p.bind(name, func() (string, error) {
		b, err := json.MarshalIndent(data, "", "  ")
		if err != nil {
			return "", fmt.Errorf("marshaling %s as JSON: %w", name, err)
		}
		return string(b), nil
	})
}

func (p *Prompt) bind(name string, render func() (string, error)) (*Prompt, error) {
	current, ok := p.bindings[name]
	if !ok {
		return nil, fmt.Errorf("binding %q not found in template", name)
	}
	if current.bound {
		return nil, fmt.Errorf("binding %q already bound", name)
	}
	next := &Prompt{template: p.template, bindings: maps.Clone(p.bindings)}
	next.bindings[name] = binding{bound: true, render: render}
	return next, nil
}

// Build renders the template. Every placeholder must be bound.
func (p *Prompt) Build() (string, error) {
	values := make(map[string]string, len(p.bindings))
	for name, b := range p.bindings {
		if !b.bound {
			return "", fmt.Errorf("unbound placeholder: %s", name)
		}
		v, err := b.render()
		if err != nil {
			return "", err
		}
		values[name] = v
	}
	return substitute(p.template, func(name string) (string, error) {
		return values[name], nil
	})
}

// substitute walks template once, replacing each {{name}} with resolve(name).
func substitute(template string, resolve func(string) (string, error)) (string, error) {
	var sb strings.Builder
	rest := template
	for {
		before, after, found := strings.Cut(rest, "{{")
		sb.WriteString(before)
		if !found {
			return sb.String(), nil
		}
		inner, tail, closed := strings.Cut(after, "}}")
		if !closed {
			return "", errors.New("unclosed binding: missing '}}'")
		}
		name := strings.TrimSpace(inner)
		if !isIdentifier(name) {
			return "", fmt.Errorf("invalid binding identifier %q", name)
		}
		v, err := resolve(name)
		if err != nil {
			return "", err
		}
		sb.WriteString(v)
		rest = tail
	}
}

// isIdentifier reports whether s starts with a letter and continues with
// letters, digits or underscores.
func isIdentifier(s string) bool {
	for i, r := range s {
		switch {
		case unicode.IsLetter(r):
		case i > 0 && (unicode.IsDigit(r) || r == '_'):
		default:
			return false
		}
	}
	return s != ""
}
