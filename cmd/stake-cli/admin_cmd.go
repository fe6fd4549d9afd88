package main

import (
	"flag"
	"fmt"
	"io"
	"strings"
)

func runAdminCommand(client *apiClient, args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprintln(stderr, adminUsage())
		return 1
	}
	switch args[0] {
	case "pause":
		return runAdminToggle(client, "/v1/admin/pause", args[1:], stdout, stderr)
	case "unpause":
		return runAdminToggle(client, "/v1/admin/unpause", args[1:], stdout, stderr)
	case "set-rate":
		return runAdminSetRate(client, args[1:], stdout, stderr)
	case "set-delay":
		return runAdminSeconds(client, "admin set-delay", "/v1/admin/claim-delay", args[1:], stdout, stderr)
	case "set-unbonding":
		return runAdminSeconds(client, "admin set-unbonding", "/v1/admin/unbonding-period", args[1:], stdout, stderr)
	case "upgrade":
		return runAdminUpgrade(client, args[1:], stdout, stderr)
	default:
		fmt.Fprintf(stderr, "Unknown admin subcommand: %s\n", args[0])
		fmt.Fprintln(stderr, adminUsage())
		return 1
	}
}

func runAdminToggle(client *apiClient, path string, args []string, stdout, stderr io.Writer) int {
	if len(args) > 0 {
		fmt.Fprintln(stderr, "Error: unexpected arguments")
		return 1
	}
	result, err := client.post(path, nil)
	if err != nil {
		return handleCallError(stderr, err)
	}
	writeResult(stdout, result)
	return 0
}

func runAdminSetRate(client *apiClient, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("admin set-rate", flag.ContinueOnError)
	fs.SetOutput(stderr)
	value := fs.Uint64("value", 0, "reward units per token per second")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if !flagSet(fs, "value") {
		fmt.Fprintln(stderr, "Error: --value is required")
		return 1
	}
	result, err := client.post("/v1/admin/reward-rate", map[string]any{"value": *value})
	if err != nil {
		return handleCallError(stderr, err)
	}
	writeResult(stdout, result)
	return 0
}

func runAdminSeconds(client *apiClient, name, path string, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	seconds := fs.Int64("seconds", 0, "duration in seconds")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if !flagSet(fs, "seconds") {
		fmt.Fprintln(stderr, "Error: --seconds is required")
		return 1
	}
	if *seconds < 0 {
		fmt.Fprintln(stderr, "Error: --seconds must not be negative")
		return 1
	}
	result, err := client.post(path, map[string]any{"seconds": *seconds})
	if err != nil {
		return handleCallError(stderr, err)
	}
	writeResult(stdout, result)
	return 0
}

func runAdminUpgrade(client *apiClient, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("admin upgrade", flag.ContinueOnError)
	fs.SetOutput(stderr)
	version := fs.Uint("version", 0, "target operation set version")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if *version == 0 {
		fmt.Fprintln(stderr, "Error: --version is required")
		return 1
	}
	result, err := client.post("/v1/admin/upgrade", map[string]any{"version": *version})
	if err != nil {
		return handleCallError(stderr, err)
	}
	writeResult(stdout, result)
	return 0
}

func flagSet(fs *flag.FlagSet, name string) bool {
	found := false
	fs.Visit(func(f *flag.Flag) {
		if f.Name == name {
			found = true
		}
	})
	return found
}

func adminUsage() string {
	return strings.TrimSpace(`Usage:
  stake-cli admin <command> [flags]

Commands:
  pause                      Engage the custody pause
  unpause                    Lift the custody pause
  set-rate --value N         Set the reward rate
  set-delay --seconds N      Set the claim delay
  set-unbonding --seconds N  Set the unbonding period
  upgrade --version N        Raise the operation set version
`)
}
