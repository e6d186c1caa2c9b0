/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package session

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"strings"

	"gopkg.in/yaml.v3"
)

// Guidelines are operator-supplied review rules loaded from YAML:
//
//	rules:
//	  - Flag any new exported function without a doc comment.
//	ignore_paths:
//	  - vendor/**
//	  - "*.pb.go"
type Guidelines struct {
	Rules       []string `yaml:"rules"`
	IgnorePaths []string `yaml:"ignore_paths"`
}

// LoadGuidelines reads and validates a guidelines file.
func LoadGuidelines(filename string) (*Guidelines, error) {
	b, err := os.ReadFile(filename)
	if err != nil {
		return nil, &ConfigurationError{Fields: []string{"REVIEW_GUIDELINES_FILE"}, Err: err}
	}
	g, err := ParseGuidelines(b)
	if err != nil {
		return nil, &ConfigurationError{Fields: []string{"REVIEW_GUIDELINES_FILE"}, Err: err}
	}
	return g, nil
}

// ParseGuidelines decodes guidelines YAML. Unknown keys are rejected.
func ParseGuidelines(b []byte) (*Guidelines, error) {
	var g Guidelines
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(&g); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parsing guidelines: %w", err)
	}
	for i, rule := range g.Rules {
		if strings.TrimSpace(rule) == "" {
			return nil, fmt.Errorf("rule %d is empty", i)
		}
	}
	for _, pattern := range g.IgnorePaths {
		if _, err := path.Match(strings.ReplaceAll(pattern, "**", "*"), ""); err != nil {
			return nil, fmt.Errorf("invalid ignore pattern %q: %w", pattern, err)
		}
	}
	return &g, nil
}

// Ignored reports whether filename matches one of the ignore patterns.
// A "dir/**" pattern matches everything below dir; other patterns are
// matched against both the full path and the base name.
func (g *Guidelines) Ignored(filename string) bool {
	if g == nil {
		return false
	}
	for _, pattern := range g.IgnorePaths {
		if prefix, ok := strings.CutSuffix(pattern, "/**"); ok {
			if strings.HasPrefix(filename, prefix+"/") {
				return true
			}
			continue
		}
		if ok, _ := path.Match(pattern, filename); ok {
			return true
		}
		if ok, _ := path.Match(pattern, path.Base(filename)); ok {
			return true
		}
	}
	return false
}
