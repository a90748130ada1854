// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package slack is a thin outbound adapter for Slack's chat.postMessage
// Web API. Like lib/callers/gemini, it shapes one request, attaches the
// just-in-time credential the injector decrypted, and parses one
// response — retry/backoff and auth-error classification live one
// layer up in lib/caller.BaseCaller.
package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/VouchlyAI/Pincer-MCP/lib/gwschema"
	"github.com/VouchlyAI/Pincer-MCP/lib/injector"
	"github.com/VouchlyAI/Pincer-MCP/lib/pincererr"
)

// defaultEndpoint is the documented chat.postMessage REST endpoint.
const defaultEndpoint = "https://slack.com/api/chat.postMessage"

// Caller calls the Slack chat.postMessage API. It expects the enriched
// request's Arguments to carry "channel" and "text" string fields.
type Caller struct {
	// Endpoint overrides the upstream URL, for tests.
	Endpoint string

	client *http.Client
}

// New returns a Slack Caller using client, or http.DefaultClient if
// client is nil.
func New(client *http.Client) *Caller {
	if client == nil {
		client = http.DefaultClient
	}
	return &Caller{client: client}
}

type postMessageRequest struct {
	Channel string `json:"channel"`
	Text    string `json:"text"`
}

type postMessageResponse struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
	TS    string `json:"ts,omitempty"`
}

// Execute posts enriched's "channel"/"text" arguments to Slack with the
// injected bot token as a Bearer Authorization header (the documented
// authentication mechanism for Slack's Web API), and returns the
// message timestamp as a single text content block.
func (c *Caller) Execute(ctx context.Context, enriched *injector.EnrichedRequest) (gwschema.ToolResponse, error) {
	channel, _ := enriched.Arguments["channel"].(string)
	if channel == "" {
		return gwschema.ToolResponse{}, fmt.Errorf("%w: slack_send_message: missing required field %q", pincererr.ErrValidationFailure, "channel")
	}
	text, _ := enriched.Arguments["text"].(string)
	if text == "" {
		return gwschema.ToolResponse{}, fmt.Errorf("%w: slack_send_message: missing required field %q", pincererr.ErrValidationFailure, "text")
	}

	endpoint := c.Endpoint
	if endpoint == "" {
		endpoint = defaultEndpoint
	}

	body, err := json.Marshal(postMessageRequest{Channel: channel, Text: text})
	if err != nil {
		return gwschema.ToolResponse{}, fmt.Errorf("slack: encoding request: %w", err)
	}

	httpRequest, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return gwschema.ToolResponse{}, fmt.Errorf("slack: building request: %w", err)
	}
	httpRequest.Header.Set("Content-Type", "application/json; charset=utf-8")
	httpRequest.Header.Set("Authorization", "Bearer "+enriched.Credentials.ApiKey())

	httpResponse, err := c.client.Do(httpRequest)
	if err != nil {
		return gwschema.ToolResponse{}, fmt.Errorf("%w: slack: %v", pincererr.ErrUpstreamError, err)
	}
	defer httpResponse.Body.Close()

	responseBody, err := io.ReadAll(httpResponse.Body)
	if err != nil {
		return gwschema.ToolResponse{}, fmt.Errorf("slack: reading response: %w", err)
	}

	if httpResponse.StatusCode < 200 || httpResponse.StatusCode >= 300 {
		return gwschema.ToolResponse{}, fmt.Errorf("%w: slack: %d %s", pincererr.ErrUpstreamError, httpResponse.StatusCode, responseBody)
	}

	var parsed postMessageResponse
	if err := json.Unmarshal(responseBody, &parsed); err != nil {
		return gwschema.ToolResponse{}, fmt.Errorf("slack: parsing response: %w", err)
	}
	// Slack's Web API returns HTTP 200 even on failure, signaling the
	// real outcome through the ok/error fields — a structured error
	// this adapter must classify before it reaches the base caller's
	// substring heuristic.
	if !parsed.OK {
		if parsed.Error == "invalid_auth" || parsed.Error == "not_authed" || parsed.Error == "account_inactive" {
			return gwschema.ToolResponse{}, fmt.Errorf("%w: slack: unauthorized: %s", pincererr.ErrUpstreamError, parsed.Error)
		}
		return gwschema.ToolResponse{}, fmt.Errorf("%w: slack: %s", pincererr.ErrUpstreamError, parsed.Error)
	}

	return gwschema.TextResponse(fmt.Sprintf("sent to %s at %s", channel, parsed.TS)), nil
}
