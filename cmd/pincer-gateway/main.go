// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Pincer-gateway is the credential-isolation gateway daemon. It
// listens on a Unix socket (and, if configured, a TCP address) and
// serves tool calls on behalf of an untrusted agent, injecting real
// credentials only for the duration of each outbound call.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/VouchlyAI/Pincer-MCP/lib/audit"
	"github.com/VouchlyAI/Pincer-MCP/lib/caller"
	"github.com/VouchlyAI/Pincer-MCP/lib/callers/gemini"
	"github.com/VouchlyAI/Pincer-MCP/lib/callers/gpg"
	"github.com/VouchlyAI/Pincer-MCP/lib/callers/slack"
	"github.com/VouchlyAI/Pincer-MCP/lib/gatekeeper"
	"github.com/VouchlyAI/Pincer-MCP/lib/gwconfig"
	"github.com/VouchlyAI/Pincer-MCP/lib/gwschema"
	"github.com/VouchlyAI/Pincer-MCP/lib/injector"
	"github.com/VouchlyAI/Pincer-MCP/lib/keychain"
	"github.com/VouchlyAI/Pincer-MCP/lib/orchestrator"
	"github.com/VouchlyAI/Pincer-MCP/lib/pincererr"
	"github.com/VouchlyAI/Pincer-MCP/lib/vault"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var configPath string
	flag.StringVar(&configPath, "config", "", "path to gateway config file (required)")
	flag.Parse()

	if configPath == "" {
		return fmt.Errorf("-config is required")
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	config, err := gwconfig.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := config.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	logger.Info("loaded configuration",
		"socket_path", config.SocketPath,
		"tools", len(config.Tools),
	)

	v, err := vault.Open(vault.Config{
		Path:     config.VaultPath,
		Keychain: keychain.New(),
		Logger:   logger,
	})
	if err != nil {
		return fmt.Errorf("failed to open vault: %w", err)
	}

	auditLog, err := audit.Open(audit.Config{
		Path:   config.AuditPath,
		Logger: logger,
	})
	if err != nil {
		v.Close()
		return fmt.Errorf("failed to open audit log: %w", err)
	}

	registry := orchestrator.NewRegistry()
	for tool, toolConfig := range config.Tools {
		toolCaller, err := buildCaller(toolConfig)
		if err != nil {
			auditLog.Close()
			v.Close()
			return fmt.Errorf("tool %q: %w", tool, err)
		}
		registry.Register(tool, toolCaller, orchestrator.ToolSchema{
			Name:        tool,
			Description: toolConfig.Description,
		})
		logger.Info("registered tool", "name", tool, "adapter", toolConfig.Adapter)
	}

	orch := orchestrator.New(orchestrator.Config{
		Gatekeeper: gatekeeper.New(v),
		Injector:   injector.New(v),
		Registry:   registry,
		Audit:      auditLog,
		Vault:      v,
	})

	mux := http.NewServeMux()
	mux.HandleFunc("/v1/call", callHandler(orch, logger))
	mux.HandleFunc("/v1/tools", toolsHandler(orch))

	listeners, err := listen(config, logger)
	if err != nil {
		orch.Close()
		return fmt.Errorf("failed to listen: %w", err)
	}

	server := &http.Server{Handler: mux}
	serveErrors := make(chan error, len(listeners))
	for _, l := range listeners {
		go func(l net.Listener) {
			serveErrors <- server.Serve(l)
		}(l)
	}

	logger.Info("pincer-gateway listening", "socket_path", config.SocketPath, "listen_address", config.ListenAddress)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	select {
	case <-ctx.Done():
		logger.Info("received shutdown signal")
	case err := <-serveErrors:
		if err != nil && err != http.ErrServerClosed {
			logger.Error("listener failed", "error", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown error", "error", err)
	}

	if err := orch.Close(); err != nil {
		return fmt.Errorf("shutdown error: %w", err)
	}

	logger.Info("shutdown complete")
	return nil
}

// listen opens the Unix socket listener required by config.SocketPath,
// plus an optional TCP listener if config.ListenAddress is set —
// mirroring proxy.Server's dual-listener pattern.
func listen(config *gwconfig.Config, logger *slog.Logger) ([]net.Listener, error) {
	if err := os.RemoveAll(config.SocketPath); err != nil {
		return nil, fmt.Errorf("removing stale socket: %w", err)
	}
	unixListener, err := net.Listen("unix", config.SocketPath)
	if err != nil {
		return nil, fmt.Errorf("listening on %s: %w", config.SocketPath, err)
	}
	if err := os.Chmod(config.SocketPath, 0o600); err != nil {
		unixListener.Close()
		return nil, fmt.Errorf("restricting socket permissions: %w", err)
	}

	listeners := []net.Listener{unixListener}

	if config.ListenAddress != "" {
		tcpListener, err := net.Listen("tcp", config.ListenAddress)
		if err != nil {
			unixListener.Close()
			return nil, fmt.Errorf("listening on %s: %w", config.ListenAddress, err)
		}
		listeners = append(listeners, tcpListener)
		logger.Info("also listening on tcp", "address", config.ListenAddress)
	}

	return listeners, nil
}

// buildCaller constructs the concrete caller.Caller for one tool
// config entry, wrapped in caller.BaseCaller for retry/backoff, with
// the tool's configured (or default) retry count.
func buildCaller(toolConfig gwconfig.ToolConfig) (caller.Caller, error) {
	var inner caller.Caller
	maxRetries := toolConfig.RetriesOrDefault()

	switch toolConfig.Adapter {
	case "gemini":
		adapter := gemini.New(nil)
		if toolConfig.Endpoint != "" {
			adapter.Endpoint = toolConfig.Endpoint
		}
		inner = adapter
	case "slack":
		adapter := slack.New(nil)
		if toolConfig.Endpoint != "" {
			adapter.Endpoint = toolConfig.Endpoint
		}
		inner = adapter
	case "gpg":
		inner = gpg.New()
		maxRetries = gpg.MaxRetries
	default:
		return nil, fmt.Errorf("unknown adapter %q", toolConfig.Adapter)
	}

	return &caller.BaseCaller{Inner: inner, MaxRetries: maxRetries}, nil
}

// callHandler handles POST /v1/call: decode a ToolRequest, run it
// through the orchestrator, encode the ToolResponse (or error).
func callHandler(orch *orchestrator.Orchestrator, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		var request gwschema.ToolRequest
		if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
			http.Error(w, fmt.Sprintf("decoding request: %v", err), http.StatusBadRequest)
			return
		}

		response, err := orch.CallTool(r.Context(), &request)
		if err != nil {
			logger.Warn("tool call failed", "tool", request.Params.Name, "error", err)
			writeError(w, err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(response)
	}
}

// toolsHandler handles GET /v1/tools: the unauthenticated discovery
// endpoint.
func toolsHandler(orch *orchestrator.Orchestrator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(orch.ListTools())
	}
}

// writeError maps a pipeline error to an HTTP status code. The
// response body is the error's text form; it never carries a
// credential, since nothing the orchestrator returns on an error path
// does either.
func writeError(w http.ResponseWriter, err error) {
	status := statusForError(err)
	http.Error(w, err.Error(), status)
}

// statusForError maps a pincererr sentinel to the HTTP status that
// best describes it. An inner caller's upstream failure or exhausted
// retries maps to 502; anything unrecognized maps to 500.
func statusForError(err error) int {
	switch {
	case errors.Is(err, pincererr.ErrMissingToken), errors.Is(err, pincererr.ErrBadTokenFormat), errors.Is(err, pincererr.ErrUnknownToken):
		return http.StatusUnauthorized
	case errors.Is(err, pincererr.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, pincererr.ErrUnknownTool):
		return http.StatusNotFound
	case errors.Is(err, pincererr.ErrValidationFailure):
		return http.StatusBadRequest
	case errors.Is(err, pincererr.ErrUpstreamError), errors.Is(err, pincererr.ErrRetryExhausted):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
