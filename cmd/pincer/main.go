// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Pincer is the gateway's administrative CLI: a thin flag-based
// subcommand dispatcher over lib/controlplane, not an interactive
// shell. Every subcommand opens the vault, performs one operation,
// and exits — grounded on cmd/bureau-credentials's dispatch pattern.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/VouchlyAI/Pincer-MCP/lib/controlplane"
	"github.com/VouchlyAI/Pincer-MCP/lib/keychain"
	"github.com/VouchlyAI/Pincer-MCP/lib/vault"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	if len(os.Args) < 2 {
		printUsage()
		return fmt.Errorf("subcommand required")
	}

	subcommand := os.Args[1]
	args := os.Args[2:]

	switch subcommand {
	case "init":
		return runInit(args)
	case "set":
		return runSet(args)
	case "list":
		return runList(args)
	case "agent":
		return runAgent(args)
	case "reset":
		return runReset(args)
	case "clear":
		return runClear(args)
	case "destroy":
		return runDestroy(args)
	case "-h", "--help", "help":
		printUsage()
		return nil
	default:
		printUsage()
		return fmt.Errorf("unknown subcommand: %q", subcommand)
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `Usage: pincer <subcommand> [flags]

Subcommands:
  init                            Create the vault master key
  set <tool> <value>              Store a secret for tool (--label L)
  list                            List stored tools and labels
  agent add <id>                  Register an agent (--token T)
  agent authorize <id> <tool>     Authorize an agent for a tool (--key L)
  agent list                      List agents and their authorizations
  agent revoke <id> <tool>        Revoke an agent's authorization
  agent remove <id>               Remove an agent entirely
  reset                           Delete the master key only
  clear [--yes]                   Delete all secrets, agents, mappings
  destroy [--yes]                 Delete everything, including the master key

Run 'pincer <subcommand> -h' for subcommand flags.
`)
}

// vaultPath resolves the vault database path from VAULT_DB_PATH,
// matching spec §1's documented environment variable, defaulting to
// ~/.pincer/vault.db.
func vaultPath() string {
	if path := os.Getenv("VAULT_DB_PATH"); path != "" {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".pincer/vault.db"
	}
	return home + "/.pincer/vault.db"
}

// openControlPlane opens the vault at its configured path and wraps it
// in a ControlPlane. The caller must Close the returned vault.
func openControlPlane() (*controlplane.ControlPlane, *vault.Vault, error) {
	keychainAdapter := keychain.New()
	v, err := vault.Open(vault.Config{
		Path:     vaultPath(),
		Keychain: keychainAdapter,
		Logger:   slog.Default(),
	})
	if err != nil {
		return nil, nil, fmt.Errorf("opening vault: %w", err)
	}
	return controlplane.New(v, keychainAdapter), v, nil
}

func runInit(args []string) error {
	flags := flag.NewFlagSet("init", flag.ExitOnError)
	flags.Parse(args)

	cp, v, err := openControlPlane()
	if err != nil {
		return err
	}
	defer v.Close()

	if err := cp.Init(); err != nil {
		return err
	}
	fmt.Println("vault initialized")
	return nil
}

func runSet(args []string) error {
	flags := flag.NewFlagSet("set", flag.ExitOnError)
	var label string
	flags.StringVar(&label, "label", "", "key label (defaults to \"default\")")
	flags.Parse(args)

	rest := flags.Args()
	if len(rest) != 2 {
		flags.Usage()
		return fmt.Errorf("usage: pincer set <tool> <value> [--label L]")
	}
	tool, value := rest[0], rest[1]

	cp, v, err := openControlPlane()
	if err != nil {
		return err
	}
	defer v.Close()

	if err := cp.SetSecret(context.Background(), tool, label, value); err != nil {
		return err
	}
	fmt.Printf("secret stored for %s\n", tool)
	return nil
}

func runList(args []string) error {
	flags := flag.NewFlagSet("list", flag.ExitOnError)
	flags.Parse(args)

	cp, v, err := openControlPlane()
	if err != nil {
		return err
	}
	defer v.Close()

	summaries, err := cp.ListSecrets(context.Background())
	if err != nil {
		return err
	}
	if len(summaries) == 0 {
		fmt.Println("(no secrets stored)")
		return nil
	}
	for _, summary := range summaries {
		fmt.Printf("%s:\n", summary.Tool)
		for _, label := range summary.Labels {
			fmt.Printf("  %s\n", label)
		}
	}
	return nil
}

func runAgent(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: pincer agent <add|authorize|list|revoke|remove> ...")
	}

	switch args[0] {
	case "add":
		return runAgentAdd(args[1:])
	case "authorize":
		return runAgentAuthorize(args[1:])
	case "list":
		return runAgentList(args[1:])
	case "revoke":
		return runAgentRevoke(args[1:])
	case "remove":
		return runAgentRemove(args[1:])
	default:
		return fmt.Errorf("unknown agent subcommand: %q", args[0])
	}
}

func runAgentAdd(args []string) error {
	flags := flag.NewFlagSet("agent add", flag.ExitOnError)
	var token string
	flags.StringVar(&token, "token", "", "custom proxy token (generated if omitted)")
	flags.Parse(args)

	rest := flags.Args()
	if len(rest) != 1 {
		flags.Usage()
		return fmt.Errorf("usage: pincer agent add <id> [--token T]")
	}

	cp, v, err := openControlPlane()
	if err != nil {
		return err
	}
	defer v.Close()

	proxyToken, err := cp.AddAgent(context.Background(), rest[0], token)
	if err != nil {
		return err
	}
	fmt.Printf("agent %s registered, token: %s\n", rest[0], proxyToken)
	return nil
}

func runAgentAuthorize(args []string) error {
	flags := flag.NewFlagSet("agent authorize", flag.ExitOnError)
	var label string
	flags.StringVar(&label, "key", "", "key label to authorize (defaults to \"default\")")
	flags.Parse(args)

	rest := flags.Args()
	if len(rest) != 2 {
		flags.Usage()
		return fmt.Errorf("usage: pincer agent authorize <id> <tool> [--key L]")
	}

	cp, v, err := openControlPlane()
	if err != nil {
		return err
	}
	defer v.Close()

	if err := cp.Authorize(context.Background(), rest[0], rest[1], label); err != nil {
		return err
	}
	fmt.Printf("%s authorized for %s\n", rest[0], rest[1])
	return nil
}

func runAgentList(args []string) error {
	flags := flag.NewFlagSet("agent list", flag.ExitOnError)
	flags.Parse(args)

	cp, v, err := openControlPlane()
	if err != nil {
		return err
	}
	defer v.Close()

	agents, err := cp.ListAgents(context.Background())
	if err != nil {
		return err
	}
	if len(agents) == 0 {
		fmt.Println("(no agents registered)")
		return nil
	}
	for _, agent := range agents {
		fmt.Printf("%s (token: %s)\n", agent.AgentID, agent.ProxyToken)
		for _, mapping := range agent.Authorizations {
			fmt.Printf("  %s -> %s\n", mapping.Tool, mapping.Label)
		}
	}
	return nil
}

func runAgentRevoke(args []string) error {
	flags := flag.NewFlagSet("agent revoke", flag.ExitOnError)
	flags.Parse(args)

	rest := flags.Args()
	if len(rest) != 2 {
		flags.Usage()
		return fmt.Errorf("usage: pincer agent revoke <id> <tool>")
	}

	cp, v, err := openControlPlane()
	if err != nil {
		return err
	}
	defer v.Close()

	if err := cp.Revoke(context.Background(), rest[0], rest[1]); err != nil {
		return err
	}
	fmt.Printf("%s revoked for %s\n", rest[0], rest[1])
	return nil
}

func runAgentRemove(args []string) error {
	flags := flag.NewFlagSet("agent remove", flag.ExitOnError)
	flags.Parse(args)

	rest := flags.Args()
	if len(rest) != 1 {
		flags.Usage()
		return fmt.Errorf("usage: pincer agent remove <id>")
	}

	cp, v, err := openControlPlane()
	if err != nil {
		return err
	}
	defer v.Close()

	if err := cp.RemoveAgent(context.Background(), rest[0]); err != nil {
		return err
	}
	fmt.Printf("agent %s removed\n", rest[0])
	return nil
}

func runReset(args []string) error {
	flags := flag.NewFlagSet("reset", flag.ExitOnError)
	flags.Parse(args)

	cp, v, err := openControlPlane()
	if err != nil {
		return err
	}
	defer v.Close()

	existed, err := cp.Reset()
	if err != nil {
		return err
	}
	if existed {
		fmt.Println("master key deleted")
	} else {
		fmt.Println("no master key was present")
	}
	return nil
}

func runClear(args []string) error {
	flags := flag.NewFlagSet("clear", flag.ExitOnError)
	var confirmed bool
	flags.BoolVar(&confirmed, "yes", false, "confirm destructive operation")
	flags.Parse(args)

	if !confirmed {
		return fmt.Errorf("clear deletes every secret, agent, and mapping; pass --yes to confirm")
	}

	cp, v, err := openControlPlane()
	if err != nil {
		return err
	}
	defer v.Close()

	if err := cp.ClearAll(context.Background()); err != nil {
		return err
	}
	fmt.Println("all secrets, agents, and mappings cleared")
	return nil
}

func runDestroy(args []string) error {
	flags := flag.NewFlagSet("destroy", flag.ExitOnError)
	var confirmed bool
	flags.BoolVar(&confirmed, "yes", false, "confirm destructive operation")
	flags.Parse(args)

	if !confirmed {
		return fmt.Errorf("destroy deletes the master key and the vault database; pass --yes to confirm")
	}

	cp, _, err := openControlPlane()
	if err != nil {
		return err
	}
	// Destroy closes the underlying vault itself (it must remove the
	// database file after the handle is released), so there is no
	// separate Close to defer here.

	if err := cp.Destroy(); err != nil {
		return err
	}
	fmt.Println("vault destroyed")
	return nil
}
