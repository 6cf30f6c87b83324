package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"

	"royalty-exchange/go-backend/internal/config"
	"royalty-exchange/go-backend/internal/identity"
)

type keystoreSummary struct {
	Path     string            `json:"path"`
	Accounts map[string]string `json:"accounts"`
}

func main() {
	var (
		out      = flag.String("out", "", "keystore output path")
		accounts = flag.String("accounts", "seller,beneficiary,buyer", "comma-separated account names")
		password = flag.String("password", os.Getenv(config.EnvPrefix+"ACCOUNTS_PASSWORD"), "keystore password")
		force    = flag.Bool("force", false, "overwrite an existing keystore")
	)
	flag.Parse()

	if strings.TrimSpace(*out) == "" {
		fail("out is required")
	}
	if strings.TrimSpace(*password) == "" {
		fail("password is required (flag or " + config.EnvPrefix + "ACCOUNTS_PASSWORD)")
	}
	names := splitCSV(*accounts)
	if len(names) == 0 {
		fail("accounts is required")
	}
	if _, err := os.Stat(*out); err == nil && !*force {
		failf("%s exists; pass -force to overwrite", *out)
	} else if err != nil && !errors.Is(err, os.ErrNotExist) {
		failf("stat %s: %v", *out, err)
	}

	mnemonics := make(map[string]string, len(names))
	summary := keystoreSummary{Path: *out, Accounts: make(map[string]string, len(names))}
	for _, name := range names {
		id, mnemonic, err := identity.Generate()
		if err != nil {
			failf("generate %s: %v", name, err)
		}
		mnemonics[name] = mnemonic
		summary.Accounts[name] = id.Address().String()
	}
	if err := identity.SaveKeystore(*out, *password, mnemonics); err != nil {
		failf("write keystore %s: %v", *out, err)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(summary); err != nil {
		os.Exit(1)
	}
}

func splitCSV(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	seen := make(map[string]struct{}, len(parts))
	for _, p := range parts {
		v := strings.TrimSpace(p)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

func fail(msg string) {
	if _, err := fmt.Fprintln(os.Stderr, msg); err != nil {
		os.Exit(1)
	}
	os.Exit(1)
}

func failf(format string, args ...any) {
	if _, err := fmt.Fprintf(os.Stderr, format+"\n", args...); err != nil {
		os.Exit(1)
	}
	os.Exit(1)
}
