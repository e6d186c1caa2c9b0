/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package schema derives JSON schemas for tool inputs from Go types.
package schema

import (
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"
)

// Generator wraps jsonschema.Reflector with the defaults tool inputs need.
type Generator struct {
	reflector jsonschema.Reflector
}

// NewGenerator constructs a generator for tool input schemas.
func NewGenerator() *Generator {
	return &Generator{
		reflector: jsonschema.Reflector{
			RequiredFromJSONSchemaTags: true,
			ExpandedStruct:             true,
			AllowAdditionalProperties:  true,
			DoNotReference:             true,
		},
	}
}

// Reflect returns the JSON schema for the provided value.
func (g *Generator) Reflect(v any) *jsonschema.Schema {
	return g.reflector.Reflect(v)
}

// Reflect derives the JSON schema for v using a default generator.
func Reflect(v any) *jsonschema.Schema {
	return NewGenerator().Reflect(v)
}

// ReflectType allocates a zero value of T and reflects it to a schema.
func ReflectType[T any]() *jsonschema.Schema {
	var zero T
	return Reflect(&zero)
}

// Object is the top level of an object schema split into the two parts
// tool definitions carry separately.
type Object struct {
	Properties map[string]any
	Required   []string
}

// ObjectFor reflects T, which must be a struct, into its properties and
// required fields. The properties are plain JSON values so any tool
// definition type can embed them.
func ObjectFor[T any]() (Object, error) {
	s := ReflectType[T]()
	if s.Type != "object" {
		return Object{}, fmt.Errorf("schema for %T is %q, not an object", *new(T), s.Type)
	}

	props := map[string]any{}
	if s.Properties != nil {
		b, err := json.Marshal(s.Properties)
		if err != nil {
			return Object{}, fmt.Errorf("marshaling properties: %w", err)
		}
		if err := json.Unmarshal(b, &props); err != nil {
			return Object{}, fmt.Errorf("unmarshaling properties: %w", err)
		}
	}
	return Object{Properties: props, Required: s.Required}, nil
}

// MustObjectFor is ObjectFor for package-level tool definitions.
func MustObjectFor[T any]() Object {
	o, err := ObjectFor[T]()
	if err != nil {
		panic(err)
	}
	return o
}
