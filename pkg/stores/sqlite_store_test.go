package stores

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

// setupTestDriver creates a SQLite driver in a temporary directory.
func setupTestDriver(t *testing.T, secret, newSecret string) *SQLiteDriver {
	t.Helper()

	d, err := NewSQLiteDriver(SQLiteConfig{
		Dir:       t.TempDir(),
		Secret:    secret,
		NewSecret: newSecret,
	})
	if err != nil {
		t.Fatalf("failed to create driver: %v", err)
	}
	return d
}

func openTestDatabase(t *testing.T, d *SQLiteDriver, opts OpenOptions) *sqliteDatabase {
	t.Helper()

	db, err := d.Open(context.Background(), "storage", opts)
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	return db.(*sqliteDatabase)
}

func rawValue(t *testing.T, db *sqliteDatabase, table, key string) string {
	t.Helper()

	var value string
	err := db.db.QueryRow(`SELECT value FROM `+quoteIdent(table)+` WHERE name = ?`, key).Scan(&value)
	if err != nil {
		t.Fatalf("failed to read raw value: %v", err)
	}
	return value
}

func TestSQLiteDriver_RequiresDir(t *testing.T) {
	if _, err := NewSQLiteDriver(SQLiteConfig{}); err == nil {
		t.Fatal("expected error for missing directory")
	}
}

func TestSQLiteDriver_Migrations(t *testing.T) {
	d := setupTestDriver(t, "", "")
	db := openTestDatabase(t, d, OpenOptions{})
	defer db.Close()

	ctx := context.Background()
	value, err := db.meta(ctx, metaEncrypted)
	if err != nil {
		t.Fatalf("failed to read meta: %v", err)
	}
	if value != "0" {
		t.Errorf("expected encrypted=0, got %q", value)
	}

	tables, err := db.Tables(ctx)
	if err != nil {
		t.Fatalf("failed to list tables: %v", err)
	}
	if len(tables) != 0 {
		t.Errorf("internal tables must not be listed, got %v", tables)
	}

	if _, err := os.Stat(filepath.Join(d.cfg.Dir, "storageSQLite.db")); err != nil {
		t.Errorf("expected database file: %v", err)
	}
}

func TestSQLiteDriver_ReservedTables(t *testing.T) {
	d := setupTestDriver(t, "", "")
	db := openTestDatabase(t, d, OpenOptions{})
	defer db.Close()

	ctx := context.Background()
	for _, name := range []string{metaTable, migrationsTable, "sqlite_sequence"} {
		if err := db.CreateTable(ctx, name); !errors.Is(err, ErrInvalidName) {
			t.Errorf("%s: expected ErrInvalidName, got %v", name, err)
		}
	}
}

func TestSQLiteDriver_QuotedTableNames(t *testing.T) {
	d := setupTestDriver(t, "", "")
	db := openTestDatabase(t, d, OpenOptions{})
	defer db.Close()

	ctx := context.Background()
	name := `odd "table"; DROP TABLE store_meta`
	if err := db.CreateTable(ctx, name); err != nil {
		t.Fatalf("failed to create table: %v", err)
	}
	if err := db.Put(ctx, name, "k", "v"); err != nil {
		t.Fatalf("failed to put: %v", err)
	}
	if ok, _ := db.HasTable(ctx, metaTable); ok {
		t.Error("reserved table must not be reported")
	}
	if _, err := db.meta(ctx, metaEncrypted); err != nil {
		t.Errorf("store_meta should survive: %v", err)
	}
}

func TestSQLiteDriver_SecretMode(t *testing.T) {
	d := setupTestDriver(t, "correct horse", "")
	ctx := context.Background()

	db := openTestDatabase(t, d, OpenOptions{Encrypted: true, Mode: ModeSecret})
	if err := db.CreateTable(ctx, "t"); err != nil {
		t.Fatalf("failed to create table: %v", err)
	}
	if err := db.Put(ctx, "t", "pin", "1234"); err != nil {
		t.Fatalf("failed to put: %v", err)
	}
	if raw := rawValue(t, db, "t", "pin"); raw == "1234" {
		t.Error("value stored in plaintext")
	}
	value, ok, err := db.Get(ctx, "t", "pin")
	if err != nil || !ok || value != "1234" {
		t.Errorf("expected 1234, got %q %v %v", value, ok, err)
	}
	if !db.Encrypted() {
		t.Error("expected database to report encryption")
	}
	_ = db.Close()

	// Plain open of an encrypted store fails.
	if _, err := d.Open(ctx, "storage", OpenOptions{}); !errors.Is(err, ErrBadSecret) {
		t.Errorf("expected ErrBadSecret, got %v", err)
	}

	// Wrong secret fails.
	wrong := &SQLiteDriver{cfg: d.cfg}
	wrong.cfg.Secret = "battery staple"
	if _, err := wrong.Open(ctx, "storage", OpenOptions{Encrypted: true, Mode: ModeSecret}); !errors.Is(err, ErrBadSecret) {
		t.Errorf("expected ErrBadSecret for wrong secret, got %v", err)
	}
}

func TestSQLiteDriver_SecretModeRefusesPlainData(t *testing.T) {
	d := setupTestDriver(t, "s3cret", "")
	ctx := context.Background()

	db := openTestDatabase(t, d, OpenOptions{})
	_ = db.CreateTable(ctx, "t")
	_ = db.Put(ctx, "t", "k", "v")
	_ = db.Close()

	if _, err := d.Open(ctx, "storage", OpenOptions{Encrypted: true, Mode: ModeSecret}); !errors.Is(err, ErrBadSecret) {
		t.Errorf("expected ErrBadSecret, got %v", err)
	}
}

func TestSQLiteDriver_EncryptionModeEncryptsExistingValues(t *testing.T) {
	d := setupTestDriver(t, "s3cret", "")
	ctx := context.Background()

	db := openTestDatabase(t, d, OpenOptions{})
	_ = db.CreateTable(ctx, "t")
	_ = db.Put(ctx, "t", "k", "plain value")
	_ = db.Close()

	db = openTestDatabase(t, d, OpenOptions{Encrypted: true, Mode: ModeEncryption})
	defer db.Close()

	if raw := rawValue(t, db, "t", "k"); raw == "plain value" {
		t.Error("existing value was not encrypted")
	}
	entries, err := db.Entries(ctx, "t")
	if err != nil {
		t.Fatalf("failed to list entries: %v", err)
	}
	if len(entries) != 1 || entries[0].Value != "plain value" {
		t.Errorf("unexpected entries: %+v", entries)
	}
}

func TestSQLiteDriver_NewSecretMode(t *testing.T) {
	d := setupTestDriver(t, "old", "new")
	ctx := context.Background()

	db := openTestDatabase(t, d, OpenOptions{Encrypted: true, Mode: ModeSecret})
	_ = db.CreateTable(ctx, "t")
	_ = db.Put(ctx, "t", "k", "v")
	_ = db.Close()

	db = openTestDatabase(t, d, OpenOptions{Encrypted: true, Mode: ModeNewSecret})
	_ = db.Close()

	if _, err := d.Open(ctx, "storage", OpenOptions{Encrypted: true, Mode: ModeSecret}); !errors.Is(err, ErrBadSecret) {
		t.Errorf("old secret should no longer work, got %v", err)
	}

	rekeyed := &SQLiteDriver{cfg: d.cfg}
	rekeyed.cfg.Secret = "new"
	db2, err := rekeyed.Open(ctx, "storage", OpenOptions{Encrypted: true, Mode: ModeSecret})
	if err != nil {
		t.Fatalf("failed to open with new secret: %v", err)
	}
	defer db2.Close()

	value, ok, err := db2.Get(ctx, "t", "k")
	if err != nil || !ok || value != "v" {
		t.Errorf("expected v, got %q %v %v", value, ok, err)
	}
}

func TestSQLiteDriver_Remove(t *testing.T) {
	d := setupTestDriver(t, "", "")
	ctx := context.Background()

	db := openTestDatabase(t, d, OpenOptions{})
	_ = db.Close()

	if err := d.Remove(ctx, "storage"); err != nil {
		t.Fatalf("failed to remove: %v", err)
	}
	ok, err := d.Exists(ctx, "storage")
	if err != nil {
		t.Fatalf("failed to check existence: %v", err)
	}
	if ok {
		t.Error("expected database to be removed")
	}
}

func TestEngine_EncryptedExport(t *testing.T) {
	d := setupTestDriver(t, "s3cret", "")
	e := NewEngine(d)
	defer e.Close()
	ctx := context.Background()

	if err := e.OpenStore(ctx, OpenOptions{Database: "vault", Table: "t", Encrypted: true, Mode: ModeSecret}); err != nil {
		t.Fatalf("failed to open encrypted store: %v", err)
	}
	_ = e.Set(ctx, "k", "v")

	dump, err := e.ExportJSON(ctx)
	if err != nil {
		t.Fatalf("failed to export: %v", err)
	}
	if !dump.Encrypted {
		t.Error("expected export to be flagged encrypted")
	}
	if dump.Tables[0].Values[0].Value != "v" {
		t.Errorf("expected decrypted value in export, got %+v", dump.Tables[0].Values)
	}
}

func TestEngine_ReopenAppliesEncryptionMode(t *testing.T) {
	ctx := context.Background()

	t.Run("encryption mode on an open plain store", func(t *testing.T) {
		e := NewEngine(setupTestDriver(t, "s3cret", ""))
		defer e.Close()

		if err := e.OpenStore(ctx, OpenOptions{Database: "storage", Table: "t"}); err != nil {
			t.Fatalf("failed to open store: %v", err)
		}
		_ = e.Set(ctx, "before", "plain value")

		err := e.OpenStore(ctx, OpenOptions{Database: "storage", Table: "t", Encrypted: true, Mode: ModeEncryption})
		if err != nil {
			t.Fatalf("failed to reopen in encryption mode: %v", err)
		}
		_ = e.Set(ctx, "after", "new value")

		db := e.open["storage"].(*sqliteDatabase)
		if !db.Encrypted() {
			t.Fatal("expected the open store to be encrypted")
		}
		for key, want := range map[string]string{"before": "plain value", "after": "new value"} {
			if raw := rawValue(t, db, "t", key); raw == want {
				t.Errorf("%s stored in plaintext", key)
			}
			if got, _ := e.Get(ctx, key); got != want {
				t.Errorf("expected %q for %s, got %q", want, key, got)
			}
		}
	})

	t.Run("plain reopen of an encrypted store", func(t *testing.T) {
		e := NewEngine(setupTestDriver(t, "s3cret", ""))
		defer e.Close()

		if err := e.OpenStore(ctx, OpenOptions{Database: "storage", Table: "t", Encrypted: true, Mode: ModeSecret}); err != nil {
			t.Fatalf("failed to open encrypted store: %v", err)
		}
		err := e.OpenStore(ctx, OpenOptions{Database: "storage", Table: "t"})
		if !errors.Is(err, ErrBadSecret) {
			t.Errorf("expected ErrBadSecret, got %v", err)
		}
	})

	t.Run("encrypted import into an open plain store", func(t *testing.T) {
		e := NewEngine(setupTestDriver(t, "s3cret", ""))
		defer e.Close()

		if err := e.OpenStore(ctx, OpenOptions{Database: "storage", Table: "t"}); err != nil {
			t.Fatalf("failed to open store: %v", err)
		}
		_ = e.Set(ctx, "k", "v")

		doc := []byte(`{"database": "storage", "encrypted": true, "tables": [{"name": "t", "values": [{"key": "x", "value": "y"}]}]}`)
		if _, err := e.ImportJSON(ctx, doc); !errors.Is(err, ErrBadSecret) {
			t.Errorf("expected ErrBadSecret, got %v", err)
		}
		if ok, _ := e.IsKey(ctx, "x"); ok {
			t.Error("import wrote into a store it could not encrypt")
		}
	})

	t.Run("encrypted reopen on a driver without encryption", func(t *testing.T) {
		e := NewEngine(NewMemoryDriver())
		defer e.Close()

		if err := e.OpenStore(ctx, OpenOptions{Database: "storage", Table: "t"}); err != nil {
			t.Fatalf("failed to open store: %v", err)
		}
		err := e.OpenStore(ctx, OpenOptions{Database: "storage", Table: "t", Encrypted: true, Mode: ModeSecret})
		if !errors.Is(err, ErrEncryptionUnsupported) {
			t.Errorf("expected ErrEncryptionUnsupported, got %v", err)
		}
	})
}
