package main

import (
	"flag"
	"fmt"
	"io"
	"strings"
	"time"

	"nftstake/cmd/internal/passphrase"
	"nftstake/crypto"
	"nftstake/gateway/middleware"
)

const (
	keystorePassEnv = "STAKE_KEYSTORE_PASSPHRASE"
	jwtSecretEnv    = "STAKINGD_JWT_SECRET"
)

func runGenerateKey(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("generate-key", flag.ContinueOnError)
	fs.SetOutput(stderr)
	out := fs.String("out", "stake.keystore", "keystore file to write")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	pass, err := passphrase.NewSource(keystorePassEnv, "keystore passphrase").Get()
	if err != nil {
		fmt.Fprintln(stderr, "Error:", err)
		return 1
	}
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		fmt.Fprintln(stderr, "Error: generate key:", err)
		return 1
	}
	if err := crypto.SaveToKeystore(*out, key, pass); err != nil {
		fmt.Fprintln(stderr, "Error: save keystore:", err)
		return 1
	}
	fmt.Fprintf(stdout, "Generated new key and saved to %s\n", *out)
	fmt.Fprintf(stdout, "Address: %s\n", key.PubKey().Address().String())
	return 0
}

// runIssueToken mints a bearer token for local development and operators who
// hold the daemon's HMAC secret. The subject is taken from --subject or from
// the address of --keystore.
func runIssueToken(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("token", flag.ContinueOnError)
	fs.SetOutput(stderr)
	subject := fs.String("subject", "", "caller address (bech32 or 0x hex)")
	keystorePath := fs.String("keystore", "", "derive the subject from this keystore")
	issuer := fs.String("issuer", "stakingd", "token issuer")
	audience := fs.String("audience", "", "token audience")
	scopes := fs.String("scopes", "", "space separated scopes")
	ttl := fs.Duration("ttl", time.Hour, "token lifetime")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	sub := strings.TrimSpace(*subject)
	if path := strings.TrimSpace(*keystorePath); path != "" {
		if sub != "" {
			fmt.Fprintln(stderr, "Error: --subject and --keystore are mutually exclusive")
			return 1
		}
		pass, err := passphrase.NewSource(keystorePassEnv, "keystore passphrase").Get()
		if err != nil {
			fmt.Fprintln(stderr, "Error:", err)
			return 1
		}
		key, err := crypto.LoadFromKeystore(path, pass)
		if err != nil {
			fmt.Fprintln(stderr, "Error:", err)
			return 1
		}
		sub = key.PubKey().Address().String()
	}
	if sub == "" {
		fmt.Fprintln(stderr, "Error: --subject or --keystore is required")
		return 1
	}
	raw, err := crypto.ParseAddress(sub)
	if err != nil {
		fmt.Fprintln(stderr, "Error:", err)
		return 1
	}
	secret, err := passphrase.NewSource(jwtSecretEnv, "stakingd JWT secret").Get()
	if err != nil {
		fmt.Fprintln(stderr, "Error:", err)
		return 1
	}
	token, err := middleware.IssueToken(middleware.TokenRequest{
		Secret:   secret,
		Issuer:   strings.TrimSpace(*issuer),
		Audience: strings.TrimSpace(*audience),
		Subject:  crypto.FromRaw(raw).String(),
		Scopes:   strings.Fields(*scopes),
		TTL:      *ttl,
	})
	if err != nil {
		fmt.Fprintln(stderr, "Error:", err)
		return 1
	}
	fmt.Fprintln(stdout, token)
	return 0
}
