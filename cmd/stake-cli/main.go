package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

const defaultAPIURL = "http://localhost:7090"

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// run dispatches a command line. Global flags precede the command.
func run(args []string, stdout, stderr io.Writer) int {
	client := newAPIClient(envOr("STAKE_API_URL", defaultAPIURL), os.Getenv("STAKE_TOKEN"))
	args, err := applyGlobalFlags(client, args)
	if err != nil {
		fmt.Fprintln(stderr, "Error:", err)
		return 1
	}
	if len(args) == 0 {
		fmt.Fprintln(stderr, usage())
		return 1
	}
	command, rest := args[0], args[1:]
	switch command {
	case "stake":
		return runTokenCommand(client, "stake", "/v1/stake", rest, stdout, stderr)
	case "unstake":
		return runTokenCommand(client, "unstake", "/v1/unstake", rest, stdout, stderr)
	case "withdraw":
		return runTokenCommand(client, "withdraw", "/v1/withdraw", rest, stdout, stderr)
	case "stake-batch":
		return runBatchCommand(client, "stake-batch", "/v1/stake/batch", rest, stdout, stderr)
	case "unstake-batch":
		return runBatchCommand(client, "unstake-batch", "/v1/unstake/batch", rest, stdout, stderr)
	case "claim":
		return runClaim(client, rest, stdout, stderr)
	case "approve":
		return runApprove(client, rest, stdout, stderr)
	case "pending":
		return runHolderQuery(client, "pending", "/pending", rest, stdout, stderr)
	case "position":
		return runHolderQuery(client, "position", "", rest, stdout, stderr)
	case "rewards":
		return runHolderQuery(client, "rewards", "/rewards", rest, stdout, stderr)
	case "record":
		return runRecord(client, rest, stdout, stderr)
	case "params":
		return runParams(client, rest, stdout, stderr)
	case "events":
		return runEvents(client, rest, stdout, stderr)
	case "admin":
		return runAdminCommand(client, rest, stdout, stderr)
	case "generate-key":
		return runGenerateKey(rest, stdout, stderr)
	case "token":
		return runIssueToken(rest, stdout, stderr)
	case "help", "-h", "--help":
		fmt.Fprintln(stdout, usage())
		return 0
	default:
		fmt.Fprintf(stderr, "Unknown command: %s\n", command)
		fmt.Fprintln(stderr, usage())
		return 1
	}
}

// applyGlobalFlags consumes --api and --token (in either "--flag value" or
// "--flag=value" form) that precede the command.
func applyGlobalFlags(client *apiClient, args []string) ([]string, error) {
	for len(args) > 0 && strings.HasPrefix(args[0], "--") {
		name, value, inline := strings.Cut(strings.TrimPrefix(args[0], "--"), "=")
		if name != "api" && name != "token" {
			break
		}
		if !inline {
			if len(args) < 2 {
				return nil, fmt.Errorf("--%s requires a value", name)
			}
			value = args[1]
			args = args[1:]
		}
		args = args[1:]
		value = strings.TrimSpace(value)
		switch name {
		case "api":
			if value == "" {
				return nil, errors.New("--api cannot be empty")
			}
			client.base = strings.TrimRight(value, "/")
		case "token":
			client.token = value
		}
	}
	return args, nil
}

func envOr(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return fallback
}

func usage() string {
	return strings.TrimSpace(`Usage:
  stake-cli [--api URL] [--token JWT] <command> [flags]

Holder commands:
  stake --id N               Lock one token with the custodian
  stake-batch --ids 1,2,3    Lock up to 10 tokens atomically
  unstake --id N             Start the unbonding clock for a token
  unstake-batch --ids 1,2    Start unbonding for up to 10 tokens atomically
  withdraw --id N            Return an unbonded token to its holder
  claim                      Settle accrued rewards
  approve [--revoke]         Approve (or revoke) the custodian in the registry

Queries:
  pending --addr A           Preview claimable rewards
  position --addr A          List live stake records
  rewards --addr A           Show reward balance and claim history
  record --id N              Show one stake record
  params                     Show ledger parameters
  events [--after N]         Page through the event journal

Administration:
  admin pause|unpause
  admin set-rate --value N
  admin set-delay --seconds N
  admin set-unbonding --seconds N
  admin upgrade --version N

Keys and tokens:
  generate-key --out PATH    Create an encrypted keystore (STAKE_KEYSTORE_PASSPHRASE)
  token --subject A          Mint a bearer token (STAKINGD_JWT_SECRET)

Environment:
  STAKE_API_URL, STAKE_TOKEN override the defaults for --api and --token.
`)
}
