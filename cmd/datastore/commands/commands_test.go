package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/llevacuentas/datastore/pkg/database"
	"github.com/llevacuentas/datastore/pkg/stores"
)

// run executes the CLI with args against a store directory and returns stdout.
func run(t *testing.T, dir string, args ...string) (string, error) {
	t.Helper()

	root := newRootCommand("test", "none", "today")
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&bytes.Buffer{})
	root.SetArgs(append([]string{"--data-dir", dir, "--platform", "android"}, args...))

	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func mustRun(t *testing.T, dir string, args ...string) string {
	t.Helper()

	out, err := run(t, dir, args...)
	if err != nil {
		t.Fatalf("%v failed: %v", args, err)
	}
	return out
}

func TestCLI_SetGetRemove(t *testing.T) {
	dir := t.TempDir()

	mustRun(t, dir, "set", "session", "abc123")
	mustRun(t, dir, "set", "theme", "dark")

	if got := mustRun(t, dir, "get", "session"); got != "abc123\n" {
		t.Errorf("expected abc123, got %q", got)
	}
	if got := mustRun(t, dir, "iskey", "theme"); got != "true\n" {
		t.Errorf("expected true, got %q", got)
	}
	if got := mustRun(t, dir, "keys"); got != "session\ntheme\n" {
		t.Errorf("unexpected keys %q", got)
	}
	if got := mustRun(t, dir, "keysvalues"); got != "session=abc123\ntheme=dark\n" {
		t.Errorf("unexpected keysvalues %q", got)
	}

	mustRun(t, dir, "remove", "session")
	if got := mustRun(t, dir, "iskey", "session"); got != "false\n" {
		t.Errorf("expected false, got %q", got)
	}
	if got := mustRun(t, dir, "get", "session"); got != "\n" {
		t.Errorf("expected empty value, got %q", got)
	}
}

func TestCLI_GuardMessages(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		args []string
		want string
	}{
		{[]string{"get", ""}, "getItem: Must give a key"},
		{[]string{"set", "", "v"}, "setItem: Must give a key"},
		{[]string{"istable", ""}, "isTable: Must give a table"},
		{[]string{"delete-table", ""}, "deleteTable: Must give a table"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			_, err := run(t, dir, tt.args...)
			if err == nil || err.Error() != tt.want {
				t.Errorf("expected %q, got %v", tt.want, err)
			}
			if !database.IsGuardError(err) {
				t.Error("expected a guard error")
			}
		})
	}
}

func TestCLI_Tables(t *testing.T) {
	dir := t.TempDir()

	mustRun(t, dir, "--table", "gastos", "set", "enero", "120")
	mustRun(t, dir, "set", "k", "v")

	if got := mustRun(t, dir, "tables"); got != "gastos\nstorage_table\n" {
		t.Errorf("unexpected tables %q", got)
	}
	if got := mustRun(t, dir, "istable", "gastos"); got != "true\n" {
		t.Errorf("expected true, got %q", got)
	}

	mustRun(t, dir, "delete-table", "gastos")
	if got := mustRun(t, dir, "istable", "gastos"); got != "false\n" {
		t.Errorf("expected false, got %q", got)
	}

	_, err := run(t, dir, "delete-table", "storage_table")
	if err == nil || !strings.Contains(err.Error(), stores.ErrTableInUse.Error()) {
		t.Errorf("expected table in use error, got %v", err)
	}
}

func TestCLI_FilterAndJSONOutput(t *testing.T) {
	dir := t.TempDir()

	mustRun(t, dir, "set", "user.name", "ana")
	mustRun(t, dir, "set", "user.city", "quito")
	mustRun(t, dir, "set", "app.user", "admin")

	if got := mustRun(t, dir, "filter", "user.%"); got != "ana\nquito\n" {
		t.Errorf("unexpected prefix filter %q", got)
	}

	out := mustRun(t, dir, "--json", "filter", "%user")
	var values []string
	if err := json.Unmarshal([]byte(out), &values); err != nil {
		t.Fatalf("invalid JSON output %q: %v", out, err)
	}
	if len(values) != 1 || values[0] != "admin" {
		t.Errorf("unexpected suffix filter %v", values)
	}
}

func TestCLI_ClearRequiresForce(t *testing.T) {
	dir := t.TempDir()
	mustRun(t, dir, "set", "k", "v")

	if _, err := run(t, dir, "clear"); err == nil {
		t.Fatal("expected clear without --force to fail")
	}
	mustRun(t, dir, "clear", "--force")
	if got := mustRun(t, dir, "keys"); got != "" {
		t.Errorf("expected no keys, got %q", got)
	}
}

func TestCLI_ExportImportValidate(t *testing.T) {
	dir := t.TempDir()
	mustRun(t, dir, "set", "a", "1")
	mustRun(t, dir, "set", "b", "2")

	exportFile := filepath.Join(t.TempDir(), "dump.json")
	mustRun(t, dir, "export", "--out", exportFile)

	if got := mustRun(t, dir, "validate", exportFile); got != "true\n" {
		t.Errorf("expected export to validate, got %q", got)
	}

	data, err := os.ReadFile(exportFile)
	if err != nil {
		t.Fatal(err)
	}
	var dump stores.StoreDump
	if err := json.Unmarshal(data, &dump); err != nil {
		t.Fatalf("invalid export: %v", err)
	}
	if dump.Database != "storage" || len(dump.Tables) != 1 || len(dump.Tables[0].Values) != 2 {
		t.Errorf("unexpected dump %+v", dump)
	}

	other := t.TempDir()
	if got := mustRun(t, other, "import", exportFile); got != "2\n" {
		t.Errorf("expected 2 changes, got %q", got)
	}
	if got := mustRun(t, other, "get", "b"); got != "2\n" {
		t.Errorf("expected imported value, got %q", got)
	}

	bad := filepath.Join(t.TempDir(), "bad.json")
	if err := os.WriteFile(bad, []byte(`{"tables": 3}`), 0o644); err != nil {
		t.Fatal(err)
	}
	if got := mustRun(t, dir, "validate", bad); got != "false\n" {
		t.Errorf("expected invalid document, got %q", got)
	}
}

func TestCLI_StoreLifecycle(t *testing.T) {
	dir := t.TempDir()
	mustRun(t, dir, "--database", "cuentas", "set", "k", "v")

	if got := mustRun(t, dir, "exists", "cuentas"); got != "true\n" {
		t.Errorf("expected cuentas to exist, got %q", got)
	}

	mustRun(t, dir, "delete-store", "cuentas")
	if got := mustRun(t, dir, "exists", "cuentas"); got != "false\n" {
		t.Errorf("expected cuentas to be deleted, got %q", got)
	}

	if got := mustRun(t, dir, "echo", "hola"); got != "hola\n" {
		t.Errorf("expected hola, got %q", got)
	}
}

func TestCLI_StoreCommandsDoNotCreateDefaultStore(t *testing.T) {
	dir := t.TempDir()

	if got := mustRun(t, dir, "exists", "storage"); got != "false\n" {
		t.Errorf("expected storage not to exist, got %q", got)
	}
	if _, err := run(t, dir, "delete-store"); !errors.Is(err, stores.ErrStoreNotFound) {
		t.Errorf("expected ErrStoreNotFound, got %v", err)
	}
	if _, err := run(t, dir, "exists", "../storage"); !errors.Is(err, stores.ErrInvalidName) {
		t.Errorf("expected ErrInvalidName, got %v", err)
	}

	mustRun(t, dir, "set", "k", "v")
	if got := mustRun(t, dir, "exists", "storage"); got != "true\n" {
		t.Errorf("expected storage to exist after set, got %q", got)
	}
}

func TestCLI_InvalidFlags(t *testing.T) {
	dir := t.TempDir()

	if _, err := run(t, dir, "--engine", "postgres", "keys"); err == nil {
		t.Error("expected invalid engine to fail")
	}
	if _, err := run(t, dir, "--platform", "desktop", "keys"); err == nil {
		t.Error("expected invalid platform to fail")
	}
}
