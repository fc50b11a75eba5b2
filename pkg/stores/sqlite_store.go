package stores

import (
	"context"
	"database/sql"
	"embed"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	// SQLite driver
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const (
	metaTable       = "store_meta"
	migrationsTable = "schema_migrations"

	metaEncrypted = "encrypted"
	metaSalt      = "salt"
	metaCheck     = "check"
)

// SQLiteConfig holds SQLite driver configuration.
type SQLiteConfig struct {
	// Dir is the directory holding one <name>SQLite.db file per database.
	Dir string

	// Secret unlocks encrypted stores; NewSecret replaces it in newsecret mode.
	Secret    string
	NewSecret string

	BusyTimeout     time.Duration
	ConnMaxLifetime time.Duration
}

// SQLiteDriver implements Driver with one SQLite file per database.
type SQLiteDriver struct {
	cfg SQLiteConfig
}

// NewSQLiteDriver creates a new SQLite driver.
func NewSQLiteDriver(cfg SQLiteConfig) (*SQLiteDriver, error) {
	if cfg.Dir == "" {
		return nil, fmt.Errorf("database directory is required")
	}

	// Set defaults
	if cfg.BusyTimeout == 0 {
		cfg.BusyTimeout = 5 * time.Second
	}
	if cfg.ConnMaxLifetime == 0 {
		cfg.ConnMaxLifetime = 5 * time.Minute
	}

	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	return &SQLiteDriver{cfg: cfg}, nil
}

// Name implements Driver.
func (d *SQLiteDriver) Name() string { return "sqlite" }

func (d *SQLiteDriver) path(name string) (string, error) {
	if err := CheckStoreName(name); err != nil {
		return "", err
	}
	return filepath.Join(d.cfg.Dir, name+"SQLite.db"), nil
}

// Open opens the database file, runs migrations and applies the encryption mode.
func (d *SQLiteDriver) Open(ctx context.Context, name string, opts OpenOptions) (Database, error) {
	path, err := d.path(name)
	if err != nil {
		return nil, err
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(%d)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)",
		path, d.cfg.BusyTimeout.Milliseconds())

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// A single connection serialises writers and keeps PRAGMAs consistent.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(d.cfg.ConnMaxLifetime)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := migrateDB(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	sdb := &sqliteDatabase{db: db, cfg: d.cfg}
	if err := sdb.ApplyMode(ctx, opts); err != nil {
		_ = db.Close()
		return nil, err
	}
	return sdb, nil
}

// Exists implements Driver.
func (d *SQLiteDriver) Exists(_ context.Context, name string) (bool, error) {
	path, err := d.path(name)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(path)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return false, err
}

// Remove deletes the database file and its WAL side files.
func (d *SQLiteDriver) Remove(_ context.Context, name string) error {
	path, err := d.path(name)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil {
		return err
	}
	for _, suffix := range []string{"-wal", "-shm"} {
		if err := os.Remove(path + suffix); err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}
	}
	return nil
}

// migrateDB runs the embedded migrations.
func migrateDB(db *sql.DB) error {
	// Create migration source from embedded FS
	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	// Create database driver
	driver, err := sqlite.WithInstance(db, &sqlite.Config{MigrationsTable: migrationsTable})
	if err != nil {
		return fmt.Errorf("failed to create database driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("failed to create migration instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

type sqliteDatabase struct {
	db     *sql.DB
	cfg    SQLiteConfig
	sealer *sealer
}

// Encrypted reports whether values are sealed.
func (s *sqliteDatabase) Encrypted() bool {
	return s.sealer != nil
}

// ApplyMode unlocks, encrypts or re-keys the database as opts.Mode asks. It
// runs on every open, including re-opens of an already open database.
func (s *sqliteDatabase) ApplyMode(ctx context.Context, opts OpenOptions) error {
	cfg := s.cfg
	encrypted, err := s.meta(ctx, metaEncrypted)
	if err != nil {
		return err
	}
	isEncrypted := encrypted == "1"

	mode := opts.Mode
	if !opts.Encrypted {
		mode = ModeNoEncryption
	}

	switch mode {
	case ModeNoEncryption, "":
		if isEncrypted {
			return fmt.Errorf("%w: store is encrypted", ErrBadSecret)
		}
		return nil

	case ModeSecret:
		if isEncrypted {
			return s.unlock(ctx, cfg.Secret)
		}
		tables, err := s.Tables(ctx)
		if err != nil {
			return err
		}
		if len(tables) > 0 {
			return fmt.Errorf("%w: store is not encrypted, open it in %q mode", ErrBadSecret, ModeEncryption)
		}
		return s.rekey(ctx, cfg.Secret)

	case ModeEncryption:
		if isEncrypted {
			return s.unlock(ctx, cfg.Secret)
		}
		return s.rekey(ctx, cfg.Secret)

	case ModeNewSecret:
		if !isEncrypted {
			return fmt.Errorf("%w: store is not encrypted", ErrBadSecret)
		}
		if err := s.unlock(ctx, cfg.Secret); err != nil {
			return err
		}
		return s.rekey(ctx, cfg.NewSecret)

	default:
		return fmt.Errorf("unknown encryption mode: %s", opts.Mode)
	}
}

// unlock derives the key for secret and checks it against the stored token.
func (s *sqliteDatabase) unlock(ctx context.Context, secret string) error {
	saltHex, err := s.meta(ctx, metaSalt)
	if err != nil {
		return err
	}
	salt, err := hex.DecodeString(saltHex)
	if err != nil {
		return fmt.Errorf("failed to decode salt: %w", err)
	}
	check, err := s.meta(ctx, metaCheck)
	if err != nil {
		return err
	}

	sl, err := newSealer(secret, salt)
	if err != nil {
		return err
	}
	if !sl.verify(check) {
		return ErrBadSecret
	}
	s.sealer = sl
	return nil
}

// rekey seals every stored value under a fresh key derived from secret.
func (s *sqliteDatabase) rekey(ctx context.Context, secret string) error {
	salt, err := newSalt()
	if err != nil {
		return err
	}
	next, err := newSealer(secret, salt)
	if err != nil {
		return err
	}
	check, err := next.seal(checkToken)
	if err != nil {
		return err
	}

	tables, err := s.Tables(ctx)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, table := range tables {
		if err := s.resealTable(ctx, tx, table, next); err != nil {
			return err
		}
	}

	for key, value := range map[string]string{
		metaEncrypted: "1",
		metaSalt:      hex.EncodeToString(salt),
		metaCheck:     check,
	} {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO store_meta (key, value) VALUES (?, ?)
			 ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value); err != nil {
			return fmt.Errorf("failed to update store metadata: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit rekey: %w", err)
	}
	s.sealer = next
	return nil
}

func (s *sqliteDatabase) resealTable(ctx context.Context, tx *sql.Tx, table string, next *sealer) error {
	rows, err := tx.QueryContext(ctx, fmt.Sprintf(`SELECT id, value FROM %s`, quoteIdent(table)))
	if err != nil {
		return fmt.Errorf("failed to read table %s: %w", table, err)
	}

	type row struct {
		id    int64
		value string
	}
	var pending []row
	for rows.Next() {
		var r row
		if err := rows.Scan(&r.id, &r.value); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan row: %w", err)
		}
		pending = append(pending, r)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return fmt.Errorf("error iterating table %s: %w", table, err)
	}
	rows.Close()

	update := fmt.Sprintf(`UPDATE %s SET value = ? WHERE id = ?`, quoteIdent(table))
	for _, r := range pending {
		plain, err := s.decode(r.value)
		if err != nil {
			return err
		}
		sealed, err := next.seal(plain)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, update, sealed, r.id); err != nil {
			return fmt.Errorf("failed to reseal row: %w", err)
		}
	}
	return nil
}

func (s *sqliteDatabase) meta(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM store_meta WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read store metadata: %w", err)
	}
	return value, nil
}

func (s *sqliteDatabase) encode(value string) (string, error) {
	if s.sealer == nil {
		return value, nil
	}
	return s.sealer.seal(value)
}

func (s *sqliteDatabase) decode(value string) (string, error) {
	if s.sealer == nil {
		return value, nil
	}
	return s.sealer.open(value)
}

// CreateTable creates a key/value table if it does not exist.
func (s *sqliteDatabase) CreateTable(ctx context.Context, table string) error {
	if isReserved(table) {
		return fmt.Errorf("%w: %s is reserved", ErrInvalidName, table)
	}
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id    INTEGER PRIMARY KEY AUTOINCREMENT,
			name  TEXT NOT NULL UNIQUE,
			value TEXT
		)
	`, quoteIdent(table))

	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to create table: %w", err)
	}
	return nil
}

// HasTable reports whether a user table exists.
func (s *sqliteDatabase) HasTable(ctx context.Context, table string) (bool, error) {
	if isReserved(table) {
		return false, nil
	}
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?`, table,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check table: %w", err)
	}
	return count > 0, nil
}

// Tables lists user tables by name.
func (s *sqliteDatabase) Tables(ctx context.Context) ([]string, error) {
	query := `
		SELECT name FROM sqlite_master
		WHERE type = 'table' AND name NOT LIKE 'sqlite_%' AND name NOT IN (?, ?)
		ORDER BY name
	`

	rows, err := s.db.QueryContext(ctx, query, metaTable, migrationsTable)
	if err != nil {
		return nil, fmt.Errorf("failed to list tables: %w", err)
	}
	defer rows.Close()

	tables := []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan table: %w", err)
		}
		tables = append(tables, name)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tables: %w", err)
	}
	return tables, nil
}

// DropTable drops a user table.
func (s *sqliteDatabase) DropTable(ctx context.Context, table string) error {
	if isReserved(table) {
		return fmt.Errorf("%w: %s is reserved", ErrInvalidName, table)
	}
	if _, err := s.db.ExecContext(ctx, fmt.Sprintf(`DROP TABLE IF EXISTS %s`, quoteIdent(table))); err != nil {
		return fmt.Errorf("failed to drop table: %w", err)
	}
	return nil
}

// Put inserts or replaces a key.
func (s *sqliteDatabase) Put(ctx context.Context, table, key, value string) error {
	stored, err := s.encode(value)
	if err != nil {
		return err
	}
	query := fmt.Sprintf(`
		INSERT INTO %s (name, value) VALUES (?, ?)
		ON CONFLICT(name) DO UPDATE SET value = excluded.value
	`, quoteIdent(table))

	if _, err := s.db.ExecContext(ctx, query, key, stored); err != nil {
		return fmt.Errorf("failed to set key: %w", err)
	}
	return nil
}

// Get retrieves a key.
func (s *sqliteDatabase) Get(ctx context.Context, table, key string) (string, bool, error) {
	query := fmt.Sprintf(`SELECT value FROM %s WHERE name = ?`, quoteIdent(table))

	var stored sql.NullString
	err := s.db.QueryRowContext(ctx, query, key).Scan(&stored)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to get key: %w", err)
	}

	value, err := s.decode(stored.String)
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

// Delete removes a key.
func (s *sqliteDatabase) Delete(ctx context.Context, table, key string) error {
	query := fmt.Sprintf(`DELETE FROM %s WHERE name = ?`, quoteIdent(table))
	if _, err := s.db.ExecContext(ctx, query, key); err != nil {
		return fmt.Errorf("failed to remove key: %w", err)
	}
	return nil
}

// Truncate removes every key of a table.
func (s *sqliteDatabase) Truncate(ctx context.Context, table string) error {
	if _, err := s.db.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s`, quoteIdent(table))); err != nil {
		return fmt.Errorf("failed to clear table: %w", err)
	}
	return nil
}

// Entries lists a table in insertion order.
func (s *sqliteDatabase) Entries(ctx context.Context, table string) ([]KeyValue, error) {
	query := fmt.Sprintf(`SELECT name, value FROM %s ORDER BY id`, quoteIdent(table))

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list keys: %w", err)
	}
	defer rows.Close()

	entries := []KeyValue{}
	for rows.Next() {
		var (
			key    string
			stored sql.NullString
		)
		if err := rows.Scan(&key, &stored); err != nil {
			return nil, fmt.Errorf("failed to scan key: %w", err)
		}
		value, err := s.decode(stored.String)
		if err != nil {
			return nil, err
		}
		entries = append(entries, KeyValue{Key: key, Value: value})
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating keys: %w", err)
	}
	return entries, nil
}

// Close closes the database connection.
func (s *sqliteDatabase) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func isReserved(name string) bool {
	return name == metaTable || name == migrationsTable || strings.HasPrefix(strings.ToLower(name), "sqlite_")
}
