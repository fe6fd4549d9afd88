package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"net/url"
	"strconv"
	"strings"

	"nftstake/crypto"
)

func runTokenCommand(client *apiClient, name, path string, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	id := fs.String("id", "", "token id")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if fs.NArg() > 0 {
		fmt.Fprintln(stderr, "Error: unexpected positional arguments")
		return 1
	}
	tokenID, err := parseTokenID(*id)
	if err != nil {
		fmt.Fprintln(stderr, "Error:", err)
		return 1
	}
	result, err := client.post(path, map[string]any{"tokenId": tokenID})
	if err != nil {
		return handleCallError(stderr, err)
	}
	writeResult(stdout, result)
	return 0
}

func runBatchCommand(client *apiClient, name, path string, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	ids := fs.String("ids", "", "comma separated token ids")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if fs.NArg() > 0 {
		fmt.Fprintln(stderr, "Error: unexpected positional arguments")
		return 1
	}
	tokenIDs, err := parseTokenIDs(*ids)
	if err != nil {
		fmt.Fprintln(stderr, "Error:", err)
		return 1
	}
	result, err := client.post(path, map[string]any{"tokenIds": tokenIDs})
	if err != nil {
		return handleCallError(stderr, err)
	}
	writeResult(stdout, result)
	return 0
}

func runClaim(client *apiClient, args []string, stdout, stderr io.Writer) int {
	if len(args) > 0 {
		fmt.Fprintln(stderr, "Error: claim takes no arguments")
		return 1
	}
	result, err := client.post("/v1/claim", nil)
	if err != nil {
		return handleCallError(stderr, err)
	}
	writeResult(stdout, result)
	return 0
}

func runApprove(client *apiClient, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("approve", flag.ContinueOnError)
	fs.SetOutput(stderr)
	revoke := fs.Bool("revoke", false, "revoke the custodian approval instead")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	result, err := client.post("/v1/registry/approve", map[string]any{"approved": !*revoke})
	if err != nil {
		return handleCallError(stderr, err)
	}
	writeResult(stdout, result)
	return 0
}

func runHolderQuery(client *apiClient, name, suffix string, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	addr := fs.String("addr", "", "holder address (bech32 or 0x hex)")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	trimmed := strings.TrimSpace(*addr)
	if trimmed == "" {
		fmt.Fprintln(stderr, "Error: --addr is required")
		return 1
	}
	if _, err := crypto.ParseAddress(trimmed); err != nil {
		fmt.Fprintln(stderr, "Error:", err)
		return 1
	}
	result, err := client.get("/v1/holders/" + url.PathEscape(trimmed) + suffix)
	if err != nil {
		return handleCallError(stderr, err)
	}
	writeResult(stdout, result)
	return 0
}

func runRecord(client *apiClient, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("record", flag.ContinueOnError)
	fs.SetOutput(stderr)
	id := fs.String("id", "", "token id")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	tokenID, err := parseTokenID(*id)
	if err != nil {
		fmt.Fprintln(stderr, "Error:", err)
		return 1
	}
	result, err := client.get("/v1/records/" + strconv.FormatUint(tokenID, 10))
	if err != nil {
		return handleCallError(stderr, err)
	}
	writeResult(stdout, result)
	return 0
}

func runParams(client *apiClient, args []string, stdout, stderr io.Writer) int {
	if len(args) > 0 {
		fmt.Fprintln(stderr, "Error: params takes no arguments")
		return 1
	}
	result, err := client.get("/v1/params")
	if err != nil {
		return handleCallError(stderr, err)
	}
	writeResult(stdout, result)
	return 0
}

func runEvents(client *apiClient, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("events", flag.ContinueOnError)
	fs.SetOutput(stderr)
	after := fs.Int64("after", 0, "return entries after this sequence number")
	limit := fs.Int("limit", 0, "maximum entries to return")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if *after < 0 || *limit < 0 {
		fmt.Fprintln(stderr, "Error: --after and --limit must not be negative")
		return 1
	}
	query := url.Values{}
	query.Set("after", strconv.FormatInt(*after, 10))
	if *limit > 0 {
		query.Set("limit", strconv.Itoa(*limit))
	}
	result, err := client.get("/v1/events?" + query.Encode())
	if err != nil {
		return handleCallError(stderr, err)
	}
	writeResult(stdout, result)
	return 0
}

func parseTokenID(raw string) (uint64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, errors.New("--id is required")
	}
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid token id %q", raw)
	}
	return id, nil
}

// parseTokenIDs splits a comma separated list. Size and duplicate checks are
// left to the ledger so the CLI reports the same errors as the API.
func parseTokenIDs(raw string) ([]uint64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, errors.New("--ids is required")
	}
	parts := strings.Split(raw, ",")
	out := make([]uint64, 0, len(parts))
	for _, part := range parts {
		id, err := strconv.ParseUint(strings.TrimSpace(part), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid token id %q", strings.TrimSpace(part))
		}
		out = append(out, id)
	}
	return out, nil
}
