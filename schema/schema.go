/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package schema derives JSON schemas from Go types. Judge prompts embed the
// schema of the structure they expect back, which measurably improves how
// often models answer with parseable JSON.
package schema

import "github.com/invopop/jsonschema"

// reflector is tuned for prompt embedding: inlined definitions (no $ref
// indirection for the model to follow), required fields driven by jsonschema
// struct tags, and open objects so judges may attach auxiliary fields.
var reflector = jsonschema.Reflector{
	RequiredFromJSONSchemaTags: true,
	ExpandedStruct:             true,
	AllowAdditionalProperties:  true,
	DoNotReference:             true,
}

// Reflect derives the JSON schema for the provided value.
func Reflect(v any) *jsonschema.Schema {
	return reflector.Reflect(v)
}

// ReflectType allocates a zero value of T and reflects it to a schema.
func ReflectType[T any]() *jsonschema.Schema {
	var zero T
	return Reflect(&zero)
}
