/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package session

import (
	"errors"
	"fmt"
	"strings"
)

// ConfigurationError reports missing or invalid session inputs. It is
// fatal: no session may be started once it has been returned.
type ConfigurationError struct {
	// Fields names the offending inputs, in the order they were checked.
	Fields []string
	// Reason is set when the failure is not tied to a single field.
	Reason string
	Err    error
}

func (e *ConfigurationError) Error() string {
	var sb strings.Builder
	sb.WriteString("invalid session configuration")
	if len(e.Fields) > 0 {
		fmt.Fprintf(&sb, ": missing or invalid %s", strings.Join(e.Fields, ", "))
	}
	if e.Reason != "" {
		fmt.Fprintf(&sb, ": %s", e.Reason)
	}
	if e.Err != nil {
		fmt.Fprintf(&sb, ": %v", e.Err)
	}
	return sb.String()
}

func (e *ConfigurationError) Unwrap() error {
	return e.Err
}

// merge folds err into e so that one error carries every failure.
func (e *ConfigurationError) merge(err error) {
	var ce *ConfigurationError
	if !errors.As(err, &ce) {
		e.Err = errors.Join(e.Err, err)
		return
	}
	e.Fields = append(e.Fields, ce.Fields...)
	switch {
	case ce.Reason == "":
	case e.Reason == "":
		e.Reason = ce.Reason
	default:
		e.Reason += "; " + ce.Reason
	}
	e.Err = errors.Join(e.Err, ce.Err)
}
