package common

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadEnvFileMissingIsNoOp(t *testing.T) {
	if err := LoadEnvFile(filepath.Join(t.TempDir(), "does-not-exist.env")); err != nil {
		t.Fatalf("missing file must be a no-op, got %v", err)
	}
}

func TestLoadEnvFileParsesPairs(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	content := `
# comment line
ENVTEST_PLAIN=value1
ENVTEST_QUOTED="quoted value"
ENVTEST_SINGLE='single value'
not a pair
=no-key
ENVTEST_SPACED =  padded
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}
	for _, key := range []string{"ENVTEST_PLAIN", "ENVTEST_QUOTED", "ENVTEST_SINGLE", "ENVTEST_SPACED"} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}

	if err := LoadEnvFile(path); err != nil {
		t.Fatalf("load env file: %v", err)
	}
	if got := os.Getenv("ENVTEST_PLAIN"); got != "value1" {
		t.Fatalf("ENVTEST_PLAIN=%q", got)
	}
	if got := os.Getenv("ENVTEST_QUOTED"); got != "quoted value" {
		t.Fatalf("ENVTEST_QUOTED=%q", got)
	}
	if got := os.Getenv("ENVTEST_SINGLE"); got != "single value" {
		t.Fatalf("ENVTEST_SINGLE=%q", got)
	}
	if got := os.Getenv("ENVTEST_SPACED"); got != "padded" {
		t.Fatalf("ENVTEST_SPACED=%q", got)
	}
}

func TestLoadEnvFileDoesNotOverrideExisting(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(path, []byte("ENVTEST_KEEP=from-file\n"), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}
	t.Setenv("ENVTEST_KEEP", "from-process")

	if err := LoadEnvFile(path); err != nil {
		t.Fatalf("load env file: %v", err)
	}
	if got := os.Getenv("ENVTEST_KEEP"); got != "from-process" {
		t.Fatalf("existing value must win, got %q", got)
	}
}
