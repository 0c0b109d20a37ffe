package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestWatch_EmptyPath(t *testing.T) {
	if _, err := Watch(""); err == nil {
		t.Fatal("expected error for empty path")
	}
}

func TestWatch_ReloadInvokesCallback(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "icarus.toml")
	write := func(level string) {
		body := "[server]\nlog_level = \"" + level + "\"\ndata_dir = \"" + dir + "\"\n"
		if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
			t.Fatalf("WriteFile: %v", err)
		}
	}
	write("info")
	if _, err := Load(path); err != nil {
		t.Fatalf("Load: %v", err)
	}
	t.Cleanup(func() { set(DefaultConfig()) })

	w, err := Watch(path)
	if err != nil {
		t.Fatalf("Watch: %v", err)
	}
	defer w.Close()

	got := make(chan string, 4)
	w.OnChange(func(old, new *Config) {
		select {
		case got <- new.Server.LogLevel:
		default:
		}
	})

	write("debug")

	select {
	case level := <-got:
		if level != "debug" {
			t.Errorf("reloaded log level: got %q, want debug", level)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for reload")
	}
	if Get().Server.LogLevel != "debug" {
		t.Errorf("global config not updated: %q", Get().Server.LogLevel)
	}
}

func TestChangedSections(t *testing.T) {
	a := DefaultConfig()
	b := DefaultConfig()
	if got := changedSections(a, b); len(got) != 0 {
		t.Errorf("identical configs: got %v", got)
	}

	b.Server.LogLevel = "debug"
	b.Cache.QueryTTLSeconds = 5
	got := changedSections(a, b)
	if len(got) != 2 || got[0] != "server" || got[1] != "cache" {
		t.Errorf("got %v, want [server cache]", got)
	}

	if got := changedSections(nil, b); len(got) != 6 {
		t.Errorf("nil old: got %v", got)
	}
}
