// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package gemini is a thin outbound adapter for Google's Gemini
// generateContent REST API. It shapes one request, attaches the
// just-in-time API key the injector decrypted, and parses one
// response — nothing more. Retry/backoff and auth-error
// classification live one layer up in lib/caller.BaseCaller, as they
// do for every bundled adapter.
package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/VouchlyAI/Pincer-MCP/lib/gwschema"
	"github.com/VouchlyAI/Pincer-MCP/lib/injector"
	"github.com/VouchlyAI/Pincer-MCP/lib/pincererr"
)

// defaultEndpoint is the upstream generateContent endpoint, matching
// the documented v1beta REST surface.
const defaultEndpoint = "https://generativelanguage.googleapis.com/v1beta/models/gemini-1.5-flash:generateContent"

// Caller calls the Gemini generateContent API. It expects the
// enriched request's Arguments to carry a "prompt" string field.
type Caller struct {
	// Endpoint overrides the upstream URL, for tests.
	Endpoint string

	client *http.Client
}

// New returns a Gemini Caller using client, or http.DefaultClient if
// client is nil.
func New(client *http.Client) *Caller {
	if client == nil {
		client = http.DefaultClient
	}
	return &Caller{client: client}
}

type generateRequest struct {
	Contents []content `json:"contents"`
}

type content struct {
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text"`
}

type generateResponse struct {
	Candidates []candidate `json:"candidates"`
}

type candidate struct {
	Content content `json:"content"`
}

// Execute sends enriched's "prompt" argument to the Gemini API with
// the injected credential as the API key query parameter (the
// documented authentication mechanism for this endpoint), and returns
// the first candidate's text as a single text content block.
func (c *Caller) Execute(ctx context.Context, enriched *injector.EnrichedRequest) (gwschema.ToolResponse, error) {
	prompt, _ := enriched.Arguments["prompt"].(string)
	if prompt == "" {
		return gwschema.ToolResponse{}, fmt.Errorf("%w: gemini_generate: missing required field %q", pincererr.ErrValidationFailure, "prompt")
	}

	endpoint := c.Endpoint
	if endpoint == "" {
		endpoint = defaultEndpoint
	}

	body, err := json.Marshal(generateRequest{Contents: []content{{Parts: []part{{Text: prompt}}}}})
	if err != nil {
		return gwschema.ToolResponse{}, fmt.Errorf("gemini: encoding request: %w", err)
	}

	requestURL := endpoint + "?key=" + url.QueryEscape(enriched.Credentials.ApiKey())

	httpRequest, err := http.NewRequestWithContext(ctx, http.MethodPost, requestURL, bytes.NewReader(body))
	if err != nil {
		return gwschema.ToolResponse{}, fmt.Errorf("gemini: building request: %w", err)
	}
	httpRequest.Header.Set("Content-Type", "application/json")

	httpResponse, err := c.client.Do(httpRequest)
	if err != nil {
		return gwschema.ToolResponse{}, fmt.Errorf("%w: gemini: %v", pincererr.ErrUpstreamError, err)
	}
	defer httpResponse.Body.Close()

	responseBody, err := io.ReadAll(httpResponse.Body)
	if err != nil {
		return gwschema.ToolResponse{}, fmt.Errorf("gemini: reading response: %w", err)
	}

	if httpResponse.StatusCode < 200 || httpResponse.StatusCode >= 300 {
		return gwschema.ToolResponse{}, fmt.Errorf("%w: gemini: %d %s", pincererr.ErrUpstreamError, httpResponse.StatusCode, responseBody)
	}

	var parsed generateResponse
	if err := json.Unmarshal(responseBody, &parsed); err != nil {
		return gwschema.ToolResponse{}, fmt.Errorf("gemini: parsing response: %w", err)
	}
	if len(parsed.Candidates) == 0 || len(parsed.Candidates[0].Content.Parts) == 0 {
		return gwschema.ToolResponse{}, fmt.Errorf("%w: gemini: response had no candidates", pincererr.ErrUpstreamError)
	}

	return gwschema.TextResponse(parsed.Candidates[0].Content.Parts[0].Text), nil
}
