// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package gatekeeper implements the gateway's authentication and
// authorization step: extracting a proxy token from an inbound
// request, validating its format, resolving it to an agent identity,
// and checking that the agent is authorized for the requested tool.
package gatekeeper

import (
	"context"
	"fmt"
	"os"
	"regexp"

	"github.com/VouchlyAI/Pincer-MCP/lib/gwschema"
	"github.com/VouchlyAI/Pincer-MCP/lib/pincererr"
)

// metaTokenField is the _meta key the gatekeeper reads first.
const metaTokenField = "pincer_token"

// argsTokenField is the arguments-map key the gatekeeper reads second.
// It is removed from the arguments map once read so it never reaches
// a downstream caller.
const argsTokenField = "__pincer_auth__"

// EnvToken is the environment variable the gatekeeper reads last.
const EnvToken = "PINCER_PROXY_TOKEN"

// tokenPattern matches the literal prefix pxr_ followed by 21 or more
// URL-safe characters.
var tokenPattern = regexp.MustCompile(`^pxr_[A-Za-z0-9_-]{21,}$`)

// VaultResolver is the subset of the Vault Store the gatekeeper needs.
// Declared here (rather than depending on the concrete vault.Vault
// type) so tests can substitute a fake without standing up SQLite.
type VaultResolver interface {
	GetAgentByToken(ctx context.Context, token string) (agentID string, found bool, err error)
	IsAuthorized(ctx context.Context, agentID, tool string) (bool, error)
}

// Gatekeeper authenticates and authorizes inbound tool calls.
type Gatekeeper struct {
	vault VaultResolver
}

// New returns a Gatekeeper backed by vault.
func New(vault VaultResolver) *Gatekeeper {
	return &Gatekeeper{vault: vault}
}

// Result is the outcome of a successful Authenticate call.
type Result struct {
	AgentID    string
	ProxyToken string
}

// Authenticate extracts a proxy token from request, checks its
// format, resolves it to an agent, and verifies that agent is
// authorized for tool. On success, returns the resolved agent id and
// the token used. Performs no caching; every call re-reads the vault.
func (g *Gatekeeper) Authenticate(ctx context.Context, request *gwschema.ToolRequest, tool string) (Result, error) {
	token, err := extractToken(request)
	if err != nil {
		return Result{}, err
	}

	if !tokenPattern.MatchString(token) {
		return Result{}, fmt.Errorf("%w: %q", pincererr.ErrBadTokenFormat, token)
	}

	agentID, found, err := g.vault.GetAgentByToken(ctx, token)
	if err != nil {
		return Result{}, fmt.Errorf("gatekeeper: resolving token: %w", err)
	}
	if !found {
		return Result{}, pincererr.ErrUnknownToken
	}

	authorized, err := g.vault.IsAuthorized(ctx, agentID, tool)
	if err != nil {
		return Result{}, fmt.Errorf("gatekeeper: checking authorization: %w", err)
	}
	if !authorized {
		return Result{}, fmt.Errorf("%w: agent %q is not authorized for tool %q", pincererr.ErrForbidden, agentID, tool)
	}

	return Result{AgentID: agentID, ProxyToken: token}, nil
}

// extractToken walks the three token sources in priority order:
// _meta.pincer_token, then arguments.__pincer_auth__, then the
// PINCER_PROXY_TOKEN environment variable. The arguments-map field is
// always removed in place, even when a higher-priority source wins,
// so a stray auth key never reaches a downstream caller.
func extractToken(request *gwschema.ToolRequest) (string, error) {
	var argsToken string
	if request.Params.Arguments != nil {
		if value, ok := request.Params.Arguments[argsTokenField]; ok {
			delete(request.Params.Arguments, argsTokenField)
			if token, ok := value.(string); ok {
				argsToken = token
			}
		}
	}

	if request.Params.Meta != nil {
		if value, ok := request.Params.Meta[metaTokenField]; ok {
			if token, ok := value.(string); ok && token != "" {
				return token, nil
			}
		}
	}

	if argsToken != "" {
		return argsToken, nil
	}

	if token := os.Getenv(EnvToken); token != "" {
		return token, nil
	}

	return "", fmt.Errorf("%w: searched _meta.%s, arguments.%s, and environment variable %s",
		pincererr.ErrMissingToken, metaTokenField, argsTokenField, EnvToken)
}
