// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package gwschema defines the gateway's external request/response
// envelope and the pluggable argument-validation interface. It is the
// one place both the orchestrator and the HTTP transport agree on
// what a tool call looks like, generalized from a single-command CLI
// envelope (one service name, a positional argument list) to a
// named-arguments tool-call envelope (one tool name, a map of typed
// arguments, an optional metadata block).
package gwschema

// ToolRequest is the inbound shape for a single tool invocation.
type ToolRequest struct {
	Params ToolParams `json:"params"`
}

// ToolParams carries the tool name, its arguments, and an optional
// metadata block the gatekeeper consults for an in-band proxy token.
type ToolParams struct {
	// Name identifies the tool to invoke, e.g. "gemini_generate".
	Name string `json:"name"`

	// Arguments are the tool's named arguments. May be nil or empty.
	// The gatekeeper removes the "__pincer_auth__" key from this map
	// in place when it extracts a token from that source, so whatever
	// the orchestrator passes downstream never carries it.
	Arguments map[string]any `json:"arguments,omitempty"`

	// Meta carries out-of-band fields that are not tool arguments,
	// notably "pincer_token".
	Meta map[string]any `json:"_meta,omitempty"`
}

// ToolResponse is the outbound shape of a completed tool call. It is
// composed verbatim from a caller's output; the orchestrator never
// lets a credential appear in it.
type ToolResponse struct {
	Content []ContentBlock `json:"content"`
}

// ContentBlock is one piece of a tool response. Only the "text" type
// is produced by the bundled adapters; the type tag is kept open for
// future adapters that return structured content.
type ContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// TextResponse builds a ToolResponse with a single text content block,
// the shape every bundled adapter returns.
func TextResponse(text string) ToolResponse {
	return ToolResponse{Content: []ContentBlock{{Type: "text", Text: text}}}
}

// Validator checks whether a tool call's arguments satisfy that tool's
// schema. Schema content is an adapter concern, not the core's — the
// core only consults this interface and propagates
// pincererr.ErrValidationFailure-wrapped errors it returns.
type Validator interface {
	Validate(tool string, arguments map[string]any) error
}
