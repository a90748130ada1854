// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package gwschema

import (
	"fmt"

	"github.com/VouchlyAI/Pincer-MCP/lib/pincererr"
)

// AllowAllValidator accepts every call without inspecting arguments.
// This is the core's default — the core does not enumerate per-tool
// schemas; an embedding application supplies a real Validator when it
// wants argument enforcement.
type AllowAllValidator struct{}

// Validate always returns nil.
func (AllowAllValidator) Validate(tool string, arguments map[string]any) error {
	return nil
}

// FieldRule describes one required argument field for FieldValidator.
type FieldRule struct {
	// Name is the argument key.
	Name string

	// Kind restricts the Go type the value must have. Supported
	// values: "string", "number", "bool". Empty means any type is
	// accepted as long as the key is present.
	Kind string
}

// FieldValidator is a minimal, JSON-Schema-shaped validator: a
// per-tool list of required fields and their expected kind. It exists
// to give the bundled adapters (gemini, slack, gpg) something to
// validate against in tests without pulling in a full schema engine;
// it is not meant to replace one for production tool surfaces with
// many fields or nested shapes.
type FieldValidator struct {
	rules map[string][]FieldRule
}

// NewFieldValidator builds a FieldValidator from a tool-name to
// required-fields map.
func NewFieldValidator(rules map[string][]FieldRule) *FieldValidator {
	return &FieldValidator{rules: rules}
}

// Validate checks that every required field for tool is present in
// arguments and, when Kind is set, has the expected Go type. Tools
// with no registered rules are accepted unconditionally.
func (v *FieldValidator) Validate(tool string, arguments map[string]any) error {
	rules, ok := v.rules[tool]
	if !ok {
		return nil
	}

	for _, rule := range rules {
		value, present := arguments[rule.Name]
		if !present {
			return fmt.Errorf("%w: %s: missing required field %q", pincererr.ErrValidationFailure, tool, rule.Name)
		}
		if rule.Kind == "" {
			continue
		}
		if !matchesKind(value, rule.Kind) {
			return fmt.Errorf("%w: %s: field %q must be %s", pincererr.ErrValidationFailure, tool, rule.Name, rule.Kind)
		}
	}
	return nil
}

func matchesKind(value any, kind string) bool {
	switch kind {
	case "string":
		_, ok := value.(string)
		return ok
	case "number":
		switch value.(type) {
		case float64, float32, int, int32, int64:
			return true
		default:
			return false
		}
	case "bool":
		_, ok := value.(bool)
		return ok
	default:
		return true
	}
}
