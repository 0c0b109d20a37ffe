// Package vault stores Google Cloud service-account credentials in the OS
// keychain and resolves credential references from config into client
// options for the BigQuery and Cloud Storage clients.
package vault

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/zalando/go-keyring"
	"google.golang.org/api/option"
)

const serviceName = "icarus"

// knownAccounts is the list of account names checked by List().
var knownAccounts = []string{"default", "bigquery", "storage"}

// Vault keeps service-account JSON in the OS keychain, with fallback to
// environment variables.
type Vault struct{}

// New creates a new Vault instance.
func New() *Vault {
	return &Vault{}
}

// Set stores credentials JSON for the named account. The payload must be a
// JSON object.
func (v *Vault) Set(account, credentialsJSON string) error {
	if err := validateJSON(credentialsJSON); err != nil {
		return err
	}
	return keyring.Set(serviceName, account, credentialsJSON)
}

// Get retrieves credentials for the named account. It first checks the OS
// keychain, then the environment variable ICARUS_CREDENTIALS_{UPPER(account)}.
func (v *Vault) Get(account string) (string, error) {
	secret, err := keyring.Get(serviceName, account)
	if err == nil && secret != "" {
		return secret, nil
	}

	envKey := envName(account)
	if val := os.Getenv(envKey); val != "" {
		return val, nil
	}

	return "", fmt.Errorf("no credentials for account %q: not in keychain and %s not set", account, envKey)
}

// Delete removes the named account from the OS keychain.
func (v *Vault) Delete(account string) error {
	return keyring.Delete(serviceName, account)
}

// List returns the known account names that currently have credentials.
func (v *Vault) List() ([]string, error) {
	var accounts []string
	for _, account := range knownAccounts {
		if secret, err := keyring.Get(serviceName, account); err == nil && secret != "" {
			accounts = append(accounts, account)
			continue
		}
		if os.Getenv(envName(account)) != "" {
			accounts = append(accounts, account)
		}
	}
	return accounts, nil
}

// ResolveRef parses a credentials reference and returns the credentials JSON.
// Supported formats:
//   - "keyring://icarus/<account>"
//   - "env:VARIABLE_NAME" (variable holds the JSON)
//   - "file:///path/to/service-account.json"
func (v *Vault) ResolveRef(ref string) (string, error) {
	switch {
	case strings.HasPrefix(ref, "keyring://"):
		parts := strings.SplitN(strings.TrimPrefix(ref, "keyring://"), "/", 2)
		if len(parts) != 2 || parts[0] != serviceName || parts[1] == "" {
			return "", fmt.Errorf("invalid credentials reference %q (expected \"keyring://icarus/<account>\")", ref)
		}
		return v.Get(parts[1])

	case strings.HasPrefix(ref, "env:"):
		envVar := strings.TrimPrefix(ref, "env:")
		val := os.Getenv(envVar)
		if val == "" {
			return "", fmt.Errorf("environment variable %q is not set", envVar)
		}
		return val, validateJSON(val)

	case strings.HasPrefix(ref, "file://"):
		filePath := strings.TrimPrefix(ref, "file://")
		data, err := os.ReadFile(filePath)
		if err != nil {
			return "", fmt.Errorf("reading credentials file %q: %w", filePath, err)
		}
		creds := strings.TrimSpace(string(data))
		if creds == "" {
			return "", fmt.Errorf("credentials file %q is empty", filePath)
		}
		return creds, validateJSON(creds)
	}

	return "", fmt.Errorf("invalid credentials reference %q (expected \"keyring://icarus/<account>\", \"env:VARIABLE_NAME\", or \"file:///path\")", ref)
}

// ClientOptions resolves ref into Google API client options. An empty ref
// yields no options, leaving the clients on Application Default Credentials.
func (v *Vault) ClientOptions(ref string) ([]option.ClientOption, error) {
	if ref == "" {
		return nil, nil
	}
	creds, err := v.ResolveRef(ref)
	if err != nil {
		return nil, err
	}
	return []option.ClientOption{option.WithCredentialsJSON([]byte(creds))}, nil
}

func envName(account string) string {
	return "ICARUS_CREDENTIALS_" + strings.ToUpper(strings.ReplaceAll(account, "-", "_"))
}

func validateJSON(s string) error {
	var obj map[string]any
	if err := json.Unmarshal([]byte(s), &obj); err != nil {
		return fmt.Errorf("credentials are not a JSON object: %w", err)
	}
	return nil
}
