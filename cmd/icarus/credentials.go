package main

import (
	"fmt"
	"os"
	"strings"
	"syscall"

	"golang.org/x/term"

	"github.com/allaspectsdev/icarus/internal/vault"
)

func cmdCredentials(args []string) {
	if len(args) == 0 {
		fmt.Println("Usage: icarus credentials <list|set|delete> [account] [--file path]")
		os.Exit(1)
	}

	v := vault.New()

	switch args[0] {
	case "list":
		accounts, err := v.List()
		if err != nil {
			fmt.Fprintf(os.Stderr, "error listing credentials: %v\n", err)
			os.Exit(1)
		}
		if len(accounts) == 0 {
			fmt.Println("No credentials stored")
			return
		}
		for _, a := range accounts {
			fmt.Printf("  %s: keyring://icarus/%s\n", a, a)
		}

	case "set":
		if len(args) < 2 {
			fmt.Println("Usage: icarus credentials set <account> [--file path]")
			os.Exit(1)
		}
		account := strings.ToLower(args[1])

		var payload []byte
		var err error
		if len(args) >= 4 && args[2] == "--file" {
			payload, err = os.ReadFile(args[3])
		} else {
			fmt.Printf("Paste service-account JSON for %s: ", account)
			payload, err = term.ReadPassword(int(syscall.Stdin))
			fmt.Println()
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "error reading credentials: %v\n", err)
			os.Exit(1)
		}
		if err := v.Set(account, strings.TrimSpace(string(payload))); err != nil {
			fmt.Fprintf(os.Stderr, "error storing credentials: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Credentials for %s stored; reference them as keyring://icarus/%s\n", account, account)

	case "delete":
		if len(args) < 2 {
			fmt.Println("Usage: icarus credentials delete <account>")
			os.Exit(1)
		}
		account := strings.ToLower(args[1])
		if err := v.Delete(account); err != nil {
			fmt.Fprintf(os.Stderr, "error deleting credentials: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Credentials for %s deleted\n", account)

	default:
		fmt.Fprintf(os.Stderr, "unknown credentials command: %s\n", args[0])
		os.Exit(1)
	}
}
