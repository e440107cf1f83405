package main

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"
)

func runCommand(t *testing.T, args ...string) string {
	t.Helper()
	dir := t.TempDir()
	base := []string{
		"--api-base-url", "http://127.0.0.1:1",
		"--database-path", filepath.Join(dir, "weighsync.db"),
		"--env-file", filepath.Join(dir, "missing.env"),
		"--log-level", "error",
	}

	var out bytes.Buffer
	rootCmd := newRootCommand()
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(append(args, base...))
	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("command %v failed: %v\n%s", args, err, out.String())
	}
	return out.String()
}

func TestStatusCommandOnEmptyDatabase(t *testing.T) {
	output := runCommand(t, "status")
	if !strings.Contains(output, "pending: 0") {
		t.Fatalf("expected empty queue summary, got %q", output)
	}
	if !strings.Contains(output, "credential valid: false") {
		t.Fatalf("expected missing credential to be reported, got %q", output)
	}
}

func TestDraftsCommandPrintsHeader(t *testing.T) {
	output := runCommand(t, "drafts")
	if !strings.Contains(output, "LOCAL ID") || !strings.Contains(output, "VESSEL") {
		t.Fatalf("expected table header, got %q", output)
	}
}

func TestSyncCommandRequiresCredential(t *testing.T) {
	dir := t.TempDir()
	rootCmd := newRootCommand()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs([]string{
		"sync",
		"--api-base-url", "http://127.0.0.1:1",
		"--database-path", filepath.Join(dir, "weighsync.db"),
		"--env-file", filepath.Join(dir, "missing.env"),
		"--log-level", "error",
	})
	if err := rootCmd.Execute(); err == nil || !strings.Contains(err.Error(), "credential") {
		t.Fatalf("expected credential error, got %v", err)
	}
}
