// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package orchestrator ties the gatekeeper, injector, caller registry,
// and audit log together into the per-call pipeline: authenticate,
// validate, dispatch, inject, execute, scrub, log, return. It is
// grounded on proxy.Handler.HandleProxy's stage sequencing
// (validate → look up → execute → respond), re-ordered and extended to
// the nine-step state machine this project's spec describes.
package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/VouchlyAI/Pincer-MCP/lib/audit"
	"github.com/VouchlyAI/Pincer-MCP/lib/caller"
	"github.com/VouchlyAI/Pincer-MCP/lib/clock"
	"github.com/VouchlyAI/Pincer-MCP/lib/gatekeeper"
	"github.com/VouchlyAI/Pincer-MCP/lib/gwschema"
	"github.com/VouchlyAI/Pincer-MCP/lib/injector"
	"github.com/VouchlyAI/Pincer-MCP/lib/pincererr"
)

// unknownAgent is the agent id logged for an audit entry produced
// before authentication resolved any real agent identity (spec §4.H
// step 2, S2).
const unknownAgent = "unknown"

// Authenticator is the subset of lib/gatekeeper the orchestrator needs.
type Authenticator interface {
	Authenticate(ctx context.Context, request *gwschema.ToolRequest, tool string) (gatekeeper.Result, error)
}

// CredentialInjector is the subset of lib/injector the orchestrator
// needs, including the Close it calls during shutdown to scrub any
// outstanding enriched request.
type CredentialInjector interface {
	Inject(ctx context.Context, agentID, tool string, arguments map[string]any) (*injector.EnrichedRequest, error)
	Scrub(enriched *injector.EnrichedRequest)
	Close()
}

// ToolSchema describes one tool for the discovery endpoint (ListTools).
// Content beyond Name/Description is the schema validator's concern.
type ToolSchema struct {
	Name        string
	Description string
}

// Registry maps tool names to the caller that executes them and the
// schema discovery advertises for them. Callers are dispatched by a
// plain map lookup rather than a type-switch enum — the set of
// registered tools is assembled at startup from config
// (lib/gwconfig), not fixed at compile time, so a closed enum would not
// fit.
type Registry struct {
	callers map[string]caller.Caller
	schemas []ToolSchema
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{callers: make(map[string]caller.Caller)}
}

// Register binds tool to c and adds schema to the discovery list.
func (r *Registry) Register(tool string, c caller.Caller, schema ToolSchema) {
	r.callers[tool] = c
	r.schemas = append(r.schemas, schema)
}

// Lookup returns the caller bound to tool, or
// pincererr.ErrUnknownTool if none is registered.
func (r *Registry) Lookup(tool string) (caller.Caller, error) {
	c, ok := r.callers[tool]
	if !ok {
		return nil, fmt.Errorf("%w: %q", pincererr.ErrUnknownTool, tool)
	}
	return c, nil
}

// Schemas returns the full discovery list, in registration order.
func (r *Registry) Schemas() []ToolSchema {
	return r.schemas
}

// VaultCloser is the subset of lib/vault.Vault the orchestrator needs
// for shutdown. Gatekeeper and Injector consult the vault through
// narrower interfaces (gatekeeper.VaultResolver, injector.SecretReader)
// that do not expose Close; the orchestrator holds this wider view of
// the same underlying handle so Close can reach it.
type VaultCloser interface {
	Close() error
}

// AuditLogger is the subset of lib/audit.Log the orchestrator needs.
// Declared here (rather than depending on the concrete *audit.Log
// type) so tests can substitute a fake that observes call order
// against the injector without writing to a real file.
type AuditLogger interface {
	Log(event audit.Event) error
	Close() error
}

// Config holds the parameters for constructing an Orchestrator.
type Config struct {
	Gatekeeper Authenticator
	Injector   CredentialInjector
	Registry   *Registry
	Validator  gwschema.Validator
	Audit      AuditLogger
	Vault      VaultCloser
	Clock      clock.Clock
}

// Orchestrator runs the per-call pipeline described in spec §4.H:
// Received → Authenticated → Validated → Dispatched → Injected →
// Executing → Scrubbed → Logged → Returned, with any failed transition
// branching immediately to Scrubbed (if an enriched request exists)
// then Logged before propagating.
type Orchestrator struct {
	gatekeeper Authenticator
	injector   CredentialInjector
	registry   *Registry
	validator  gwschema.Validator
	auditLog   AuditLogger
	vault      VaultCloser
	clock      clock.Clock
}

// New constructs an Orchestrator from cfg. Validator defaults to
// gwschema.AllowAllValidator{} if nil; Clock defaults to the real wall
// clock if nil.
func New(cfg Config) *Orchestrator {
	validator := cfg.Validator
	if validator == nil {
		validator = gwschema.AllowAllValidator{}
	}
	clockImpl := cfg.Clock
	if clockImpl == nil {
		clockImpl = clock.Real()
	}
	return &Orchestrator{
		gatekeeper: cfg.Gatekeeper,
		injector:   cfg.Injector,
		registry:   cfg.Registry,
		validator:  validator,
		auditLog:   cfg.Audit,
		vault:      cfg.Vault,
		clock:      clockImpl,
	}
}

// CallTool runs one tool invocation through the full pipeline. Every
// exit path — success, any pipeline-stage failure, or an error
// returned by the caller itself — scrubs any enriched request the
// injector produced, then appends exactly one audit entry, in that
// order (spec §4.H: "...→ Scrubbed → Logged → Returned"; the error
// branch "immediately branches to Scrubbed ... then Logged"). The
// deferred Scrub below is only the cancellation backstop for a path
// that exits without reaching one of the explicit scrub points (Scrub
// is idempotent, so it is a no-op once the explicit scrub has already
// run).
func (o *Orchestrator) CallTool(ctx context.Context, request *gwschema.ToolRequest) (gwschema.ToolResponse, error) {
	start := o.clock.Now()
	tool := request.Params.Name
	agentID := unknownAgent

	var enriched *injector.EnrichedRequest
	defer func() {
		if enriched != nil {
			o.injector.Scrub(enriched)
		}
	}()

	result, err := o.gatekeeper.Authenticate(ctx, request, tool)
	if err != nil {
		o.logOutcome(agentID, tool, start, err)
		return gwschema.ToolResponse{}, err
	}
	agentID = result.AgentID

	if err := o.validator.Validate(tool, request.Params.Arguments); err != nil {
		o.logOutcome(agentID, tool, start, err)
		return gwschema.ToolResponse{}, err
	}

	toolCaller, err := o.registry.Lookup(tool)
	if err != nil {
		o.logOutcome(agentID, tool, start, err)
		return gwschema.ToolResponse{}, err
	}

	enriched, err = o.injector.Inject(ctx, agentID, tool, request.Params.Arguments)
	if err != nil {
		o.logOutcome(agentID, tool, start, err)
		return gwschema.ToolResponse{}, err
	}

	response, err := toolCaller.Execute(ctx, enriched)
	o.injector.Scrub(enriched)
	if err != nil {
		o.logOutcome(agentID, tool, start, err)
		return gwschema.ToolResponse{}, err
	}

	o.logOutcome(agentID, tool, start, nil)
	return response, nil
}

// ListTools returns the static tool schema list from the registry.
// Discovery requires no authentication.
func (o *Orchestrator) ListTools() []ToolSchema {
	return o.registry.Schemas()
}

// logOutcome appends one audit entry summarizing a completed call
// attempt. callErr's textual form, never the underlying secret or a
// stack trace, is what the entry's Error field records (spec §4.F).
func (o *Orchestrator) logOutcome(agentID, tool string, start time.Time, callErr error) {
	if o.auditLog == nil {
		return
	}

	event := audit.Event{
		AgentID:    agentID,
		Tool:       tool,
		DurationMS: o.clock.Now().Sub(start).Milliseconds(),
		Status:     audit.StatusSuccess,
	}
	if callErr != nil {
		event.Status = audit.StatusError
		event.Error = callErr.Error()
	}

	// A logging failure here does not change the outcome the entry
	// describes; there is no corrective action the pipeline can take
	// beyond surfacing it through the returned error, which it cannot
	// do after the fact. Swallow it rather than masking the real
	// call outcome with a secondary, logging-specific error.
	_ = o.auditLog.Log(event)
}

// Close closes the injector (scrubbing any outstanding enriched
// request), the shared vault handle (zeroing the cached master key),
// and the audit log. Called during orchestrator shutdown (spec §4.H
// "close").
func (o *Orchestrator) Close() error {
	o.injector.Close()

	var err error
	if o.vault != nil {
		err = o.vault.Close()
	}
	if auditErr := o.auditLog.Close(); auditErr != nil && err == nil {
		err = auditErr
	}
	return err
}
