/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package schema_test

import (
	"testing"

	"chainguard.dev/reviewagent/schema"
	"github.com/google/go-cmp/cmp"
)

func TestReflect(t *testing.T) {
	type nested struct {
		Value string `json:"value" jsonschema:"description=Nested value"`
	}
	type sample struct {
		Name   string  `json:"name" jsonschema:"description=Name,required"`
		Count  int     `json:"count,omitempty"`
		Nested *nested `json:"nested,omitempty"`
	}

	s := schema.Reflect(&sample{})
	if s == nil {
		t.Fatal("expected schema")
	}

	if len(s.Required) != 1 || s.Required[0] != "name" {
		t.Fatalf("unexpected required: %#v", s.Required)
	}

	name, ok := s.Properties.Get("name")
	if !ok {
		t.Fatal("missing name property")
	}
	if name.Description != "Name" {
		t.Fatalf("unexpected description: %q", name.Description)
	}

	nestedSchema, ok := s.Properties.Get("nested")
	if !ok {
		t.Fatal("missing nested property")
	}
	valueSchema, ok := nestedSchema.Properties.Get("value")
	if !ok {
		t.Fatal("missing nested value property")
	}
	if valueSchema.Description != "Nested value" {
		t.Fatalf("unexpected nested description: %q", valueSchema.Description)
	}
}

type comment struct {
	Path string `json:"path" jsonschema:"required,description=File path"`
	Line int    `json:"line" jsonschema:"required"`
}

type submission struct {
	Event    string    `json:"event" jsonschema:"required,enum=APPROVE,enum=COMMENT"`
	Body     string    `json:"body,omitempty"`
	Comments []comment `json:"comments,omitempty"`
}

func TestObjectFor(t *testing.T) {
	o, err := schema.ObjectFor[submission]()
	if err != nil {
		t.Fatalf("ObjectFor() error = %v", err)
	}

	if diff := cmp.Diff([]string{"event"}, o.Required); diff != "" {
		t.Errorf("Required mismatch (-want +got):\n%s", diff)
	}

	event, ok := o.Properties["event"].(map[string]any)
	if !ok {
		t.Fatalf("event property = %#v", o.Properties["event"])
	}
	if diff := cmp.Diff([]any{"APPROVE", "COMMENT"}, event["enum"]); diff != "" {
		t.Errorf("event enum mismatch (-want +got):\n%s", diff)
	}

	comments, ok := o.Properties["comments"].(map[string]any)
	if !ok || comments["type"] != "array" {
		t.Fatalf("comments property = %#v", o.Properties["comments"])
	}
	items, ok := comments["items"].(map[string]any)
	if !ok {
		t.Fatalf("comments items = %#v", comments["items"])
	}
	if diff := cmp.Diff([]any{"path", "line"}, items["required"]); diff != "" {
		t.Errorf("item required mismatch (-want +got):\n%s", diff)
	}
}

func TestObjectForRejectsNonObjects(t *testing.T) {
	if _, err := schema.ObjectFor[[]string](); err == nil {
		t.Error("ObjectFor[[]string]() should fail")
	}
}

func TestMustObjectForEmptyStruct(t *testing.T) {
	o := schema.MustObjectFor[struct{}]()
	if len(o.Properties) != 0 || len(o.Required) != 0 {
		t.Errorf("MustObjectFor[struct{}]() = %#v, want empty", o)
	}
}
