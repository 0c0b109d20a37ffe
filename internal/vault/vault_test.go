package vault

import (
	"os"
	"path/filepath"
	"testing"
)

const sampleCreds = `{"type":"service_account","project_id":"acme-analytics"}`

func TestResolveRef_EnvFormat(t *testing.T) {
	v := New()

	const envVar = "TEST_ICARUS_VAULT_CREDS"
	t.Setenv(envVar, sampleCreds)

	got, err := v.ResolveRef("env:" + envVar)
	if err != nil {
		t.Fatalf("ResolveRef(env:): %v", err)
	}
	if got != sampleCreds {
		t.Errorf("got %q, want %q", got, sampleCreds)
	}
}

func TestResolveRef_EnvFormat_Unset(t *testing.T) {
	v := New()
	os.Unsetenv("NONEXISTENT_CREDS_VAR")

	if _, err := v.ResolveRef("env:NONEXISTENT_CREDS_VAR"); err == nil {
		t.Fatal("expected error for unset env var")
	}
}

func TestResolveRef_EnvFormat_NotJSON(t *testing.T) {
	v := New()
	t.Setenv("TEST_ICARUS_BAD_CREDS", "not-json")

	if _, err := v.ResolveRef("env:TEST_ICARUS_BAD_CREDS"); err == nil {
		t.Fatal("expected error for non-JSON credentials")
	}
}

func TestResolveRef_InvalidFormat(t *testing.T) {
	v := New()
	if _, err := v.ResolveRef("plaintext:secret"); err == nil {
		t.Fatal("expected error for invalid ref format")
	}
}

func TestResolveRef_KeyringBadFormat(t *testing.T) {
	v := New()
	for _, ref := range []string{"keyring://badformat", "keyring://other-service/default", "keyring://icarus/"} {
		if _, err := v.ResolveRef(ref); err == nil {
			t.Errorf("ResolveRef(%q): expected error", ref)
		}
	}
}

func TestGet_EnvFallback(t *testing.T) {
	v := New()
	t.Setenv("ICARUS_CREDENTIALS_TEST_ACCOUNT", sampleCreds)

	got, err := v.Get("test-account")
	if err != nil {
		t.Fatalf("Get with env fallback: %v", err)
	}
	if got != sampleCreds {
		t.Errorf("got %q", got)
	}
}

func TestResolveRef_FileFormat(t *testing.T) {
	v := New()

	keyFile := filepath.Join(t.TempDir(), "sa.json")
	if err := os.WriteFile(keyFile, []byte(sampleCreds+"\n"), 0o600); err != nil {
		t.Fatalf("writing credentials file: %v", err)
	}

	got, err := v.ResolveRef("file://" + keyFile)
	if err != nil {
		t.Fatalf("ResolveRef(file://): %v", err)
	}
	if got != sampleCreds {
		t.Errorf("got %q", got)
	}
}

func TestResolveRef_FileFormat_MissingOrEmpty(t *testing.T) {
	v := New()

	if _, err := v.ResolveRef("file:///nonexistent/path/sa.json"); err == nil {
		t.Error("expected error for missing file")
	}

	empty := filepath.Join(t.TempDir(), "empty.json")
	if err := os.WriteFile(empty, []byte("  \n"), 0o600); err != nil {
		t.Fatalf("writing file: %v", err)
	}
	if _, err := v.ResolveRef("file://" + empty); err == nil {
		t.Error("expected error for empty file")
	}
}

func TestClientOptions(t *testing.T) {
	v := New()

	opts, err := v.ClientOptions("")
	if err != nil || opts != nil {
		t.Errorf("empty ref: got %v, %v", opts, err)
	}

	t.Setenv("TEST_ICARUS_OPT_CREDS", sampleCreds)
	opts, err = v.ClientOptions("env:TEST_ICARUS_OPT_CREDS")
	if err != nil {
		t.Fatalf("ClientOptions: %v", err)
	}
	if len(opts) != 1 {
		t.Errorf("expected 1 option, got %d", len(opts))
	}

	if _, err := v.ClientOptions("env:NONEXISTENT_CREDS_VAR"); err == nil {
		t.Error("expected error for unresolvable ref")
	}
}

func TestSet_RejectsNonJSON(t *testing.T) {
	if err := New().Set("default", "plain"); err == nil {
		t.Fatal("expected error for non-JSON payload")
	}
}
