// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package gpg is a thin outbound adapter over the local gpg(1) binary:
// it imports the injected signing key into a scratch keyring, produces
// a detached ASCII-armored signature for one payload, and tears the
// scratch keyring down. Unlike the HTTP adapters in lib/callers, there
// is no upstream network call — the "upstream" is a local subprocess,
// so retries buy nothing (see MaxRetries below).
package gpg

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/VouchlyAI/Pincer-MCP/lib/gwschema"
	"github.com/VouchlyAI/Pincer-MCP/lib/injector"
	"github.com/VouchlyAI/Pincer-MCP/lib/pincererr"
)

// MaxRetries is the retry override this adapter's registration should
// pass to lib/caller.BaseCaller: a purely local signing operation that
// fails once will fail identically on every retry, so retrying buys
// nothing (spec §4.G).
const MaxRetries = 1

// Binary is the gpg executable name resolved against PATH. Overridable
// in tests.
var Binary = "gpg"

// Caller signs enriched's "data" argument with the injected private
// key, returning the detached ASCII-armored signature as a single
// text content block.
type Caller struct {
	// Binary overrides the executable path, for tests.
	Binary string
}

// New returns a gpg Caller.
func New() *Caller {
	return &Caller{}
}

// Execute imports the injected key into a scratch GNUPGHOME, signs
// enriched's "data" argument, and removes the scratch directory on
// every exit path — the imported private key material never survives
// past one call.
func (c *Caller) Execute(ctx context.Context, enriched *injector.EnrichedRequest) (gwschema.ToolResponse, error) {
	data, _ := enriched.Arguments["data"].(string)
	if data == "" {
		return gwschema.ToolResponse{}, fmt.Errorf("%w: gpg_sign: missing required field %q", pincererr.ErrValidationFailure, "data")
	}

	binary := c.Binary
	if binary == "" {
		binary = Binary
	}

	homeDir, err := os.MkdirTemp("", "pincer-gpg-*")
	if err != nil {
		return gwschema.ToolResponse{}, fmt.Errorf("gpg: creating scratch keyring: %w", err)
	}
	defer os.RemoveAll(homeDir)
	if err := os.Chmod(homeDir, 0o700); err != nil {
		return gwschema.ToolResponse{}, fmt.Errorf("gpg: restricting scratch keyring permissions: %w", err)
	}

	env := sanitizedEnvironment(homeDir)

	importCmd := exec.CommandContext(ctx, binary, "--homedir", homeDir, "--batch", "--quiet", "--import")
	importCmd.Env = env
	importCmd.Stdin = strings.NewReader(enriched.Credentials.ApiKey())
	var importStderr bytes.Buffer
	importCmd.Stderr = &importStderr
	if err := importCmd.Run(); err != nil {
		return gwschema.ToolResponse{}, fmt.Errorf("%w: gpg: importing signing key: %v: %s", pincererr.ErrUpstreamError, err, importStderr.String())
	}

	signCmd := exec.CommandContext(ctx, binary, "--homedir", homeDir, "--batch", "--yes", "--pinentry-mode", "loopback", "--detach-sign", "--armor", "--output", "-")
	signCmd.Env = env
	signCmd.Stdin = strings.NewReader(data)
	var stdout, stderr bytes.Buffer
	signCmd.Stdout = &stdout
	signCmd.Stderr = &stderr
	if err := signCmd.Run(); err != nil {
		if isAuthFailure(stderr.String()) {
			return gwschema.ToolResponse{}, fmt.Errorf("%w: gpg: unauthorized: %s", pincererr.ErrUpstreamError, stderr.String())
		}
		return gwschema.ToolResponse{}, fmt.Errorf("%w: gpg: signing: %v: %s", pincererr.ErrUpstreamError, err, stderr.String())
	}

	return gwschema.TextResponse(stdout.String()), nil
}

// isAuthFailure reports whether gpg's stderr indicates a bad
// passphrase or unusable secret key, which lib/caller's generic
// substring classifier would otherwise miss since gpg never says
// "unauthorized".
func isAuthFailure(stderr string) bool {
	lower := strings.ToLower(stderr)
	return strings.Contains(lower, "bad passphrase") || strings.Contains(lower, "no secret key") || strings.Contains(lower, "decryption failed")
}

// sanitizedEnvironment returns a minimal environment pointed at the
// scratch GNUPGHOME, preventing the process's own environment (and any
// real gpg keyring it might reference) from leaking into the
// subprocess.
func sanitizedEnvironment(homeDir string) []string {
	env := []string{"GNUPGHOME=" + homeDir}
	for _, name := range []string{"PATH", "LANG", "LC_ALL"} {
		if value := os.Getenv(name); value != "" {
			env = append(env, name+"="+value)
		}
	}
	return env
}
