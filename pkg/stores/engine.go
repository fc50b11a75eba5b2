package stores

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// Engine implements Plugin on top of a Driver. It keeps every opened
// database and the current database/table pair that key operations use.
type Engine struct {
	driver Driver

	mu      sync.Mutex
	open    map[string]Database
	current string
	table   string
}

// NewEngine creates an engine backed by driver.
func NewEngine(driver Driver) *Engine {
	return &Engine{
		driver: driver,
		open:   make(map[string]Database),
	}
}

// Driver returns the driver backing the engine.
func (e *Engine) Driver() Driver {
	return e.driver
}

// Current returns the current database and table, empty when no store is open.
func (e *Engine) Current() (database, table string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.current, e.table
}

// Echo returns value unchanged.
func (e *Engine) Echo(ctx context.Context, value string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return value, nil
}

// OpenStore opens (or reuses) the database, creates the table if needed and
// makes the pair current.
func (e *Engine) OpenStore(ctx context.Context, opts OpenOptions) error {
	if err := CheckStoreName(opts.Database); err != nil {
		return err
	}
	if err := checkName("table", opts.Table); err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	db, err := e.openLocked(ctx, opts)
	if err != nil {
		return err
	}
	if err := db.CreateTable(ctx, opts.Table); err != nil {
		return fmt.Errorf("failed to create table %s: %w", opts.Table, err)
	}

	e.current = opts.Database
	e.table = opts.Table
	return nil
}

// modeApplier is implemented by databases that can change encryption mode
// while open.
type modeApplier interface {
	ApplyMode(ctx context.Context, opts OpenOptions) error
}

func (e *Engine) openLocked(ctx context.Context, opts OpenOptions) (Database, error) {
	if db, ok := e.open[opts.Database]; ok {
		if err := reapplyMode(ctx, db, opts); err != nil {
			return nil, fmt.Errorf("failed to reopen store %s: %w", opts.Database, err)
		}
		return db, nil
	}
	db, err := e.driver.Open(ctx, opts.Database, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open store %s: %w", opts.Database, err)
	}
	e.open[opts.Database] = db
	return db, nil
}

// reapplyMode applies the encryption options of a repeated open to a cached
// database.
func reapplyMode(ctx context.Context, db Database, opts OpenOptions) error {
	if m, ok := db.(modeApplier); ok {
		return m.ApplyMode(ctx, opts)
	}
	if opts.Encrypted {
		return ErrEncryptionUnsupported
	}
	return nil
}

// CloseStore closes an open database.
func (e *Engine) CloseStore(_ context.Context, database string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	db, ok := e.open[database]
	if !ok {
		return fmt.Errorf("%w: %s", ErrStoreNotOpen, database)
	}
	return e.closeLocked(database, db)
}

func (e *Engine) closeLocked(name string, db Database) error {
	delete(e.open, name)
	if e.current == name {
		e.current = ""
		e.table = ""
	}
	if err := db.Close(); err != nil {
		return fmt.Errorf("failed to close store %s: %w", name, err)
	}
	return nil
}

// IsStoreOpen reports whether database is open.
func (e *Engine) IsStoreOpen(_ context.Context, database string) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	_, ok := e.open[database]
	return ok, nil
}

// IsStoreExists reports whether database exists in the driver.
func (e *Engine) IsStoreExists(ctx context.Context, database string) (bool, error) {
	if err := CheckStoreName(database); err != nil {
		return false, err
	}
	return e.driver.Exists(ctx, database)
}

// DeleteStore closes database if open and removes it.
func (e *Engine) DeleteStore(ctx context.Context, database string) error {
	if err := CheckStoreName(database); err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if db, ok := e.open[database]; ok {
		if err := e.closeLocked(database, db); err != nil {
			return err
		}
	}

	exists, err := e.driver.Exists(ctx, database)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("%w: %s", ErrStoreNotFound, database)
	}
	if err := e.driver.Remove(ctx, database); err != nil {
		return fmt.Errorf("failed to delete store %s: %w", database, err)
	}
	return nil
}

// SetTable creates table in the current database if needed and makes it current.
func (e *Engine) SetTable(ctx context.Context, table string) error {
	if err := checkName("table", table); err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	db, err := e.databaseLocked()
	if err != nil {
		return err
	}
	if err := db.CreateTable(ctx, table); err != nil {
		return fmt.Errorf("failed to create table %s: %w", table, err)
	}
	e.table = table
	return nil
}

// IsTable reports whether table exists in the current database.
func (e *Engine) IsTable(ctx context.Context, table string) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	db, err := e.databaseLocked()
	if err != nil {
		return false, err
	}
	return db.HasTable(ctx, table)
}

// Tables lists the tables of the current database.
func (e *Engine) Tables(ctx context.Context) ([]string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	db, err := e.databaseLocked()
	if err != nil {
		return nil, err
	}
	return db.Tables(ctx)
}

// DeleteTable drops a table of the current database other than the current table.
func (e *Engine) DeleteTable(ctx context.Context, table string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	db, err := e.databaseLocked()
	if err != nil {
		return err
	}
	if table == e.table {
		return fmt.Errorf("%w: %s", ErrTableInUse, table)
	}
	ok, err := db.HasTable(ctx, table)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrTableNotFound, table)
	}
	return db.DropTable(ctx, table)
}

// Set stores value under key in the current table.
func (e *Engine) Set(ctx context.Context, key, value string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	db, err := e.tableLocked()
	if err != nil {
		return err
	}
	return db.Put(ctx, e.table, key, value)
}

// Get returns the value stored under key, or "" when the key is absent.
func (e *Engine) Get(ctx context.Context, key string) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	db, err := e.tableLocked()
	if err != nil {
		return "", err
	}
	value, _, err := db.Get(ctx, e.table, key)
	return value, err
}

// Remove deletes key from the current table.
func (e *Engine) Remove(ctx context.Context, key string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	db, err := e.tableLocked()
	if err != nil {
		return err
	}
	return db.Delete(ctx, e.table, key)
}

// Clear removes every key of the current table.
func (e *Engine) Clear(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	db, err := e.tableLocked()
	if err != nil {
		return err
	}
	return db.Truncate(ctx, e.table)
}

// IsKey reports whether key exists in the current table.
func (e *Engine) IsKey(ctx context.Context, key string) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	db, err := e.tableLocked()
	if err != nil {
		return false, err
	}
	_, ok, err := db.Get(ctx, e.table, key)
	return ok, err
}

// Keys lists the keys of the current table.
func (e *Engine) Keys(ctx context.Context) ([]string, error) {
	entries, err := e.entries(ctx, "")
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(entries))
	for _, kv := range entries {
		keys = append(keys, kv.Key)
	}
	return keys, nil
}

// Values lists the values of the current table.
func (e *Engine) Values(ctx context.Context) ([]string, error) {
	return e.FilterValues(ctx, "")
}

// FilterValues lists the values whose keys match filter (see MatchFilter).
func (e *Engine) FilterValues(ctx context.Context, filter string) ([]string, error) {
	entries, err := e.entries(ctx, filter)
	if err != nil {
		return nil, err
	}
	values := make([]string, 0, len(entries))
	for _, kv := range entries {
		values = append(values, kv.Value)
	}
	return values, nil
}

// KeysValues lists every entry of the current table.
func (e *Engine) KeysValues(ctx context.Context) ([]KeyValue, error) {
	return e.entries(ctx, "")
}

func (e *Engine) entries(ctx context.Context, filter string) ([]KeyValue, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	db, err := e.tableLocked()
	if err != nil {
		return nil, err
	}
	all, err := db.Entries(ctx, e.table)
	if err != nil {
		return nil, err
	}
	if filter == "" {
		return all, nil
	}
	matched := make([]KeyValue, 0, len(all))
	for _, kv := range all {
		if MatchFilter(filter, kv.Key) {
			matched = append(matched, kv)
		}
	}
	return matched, nil
}

// IsJSONValid reports whether data is a valid store document.
func (e *Engine) IsJSONValid(_ context.Context, data []byte) (bool, error) {
	if _, err := ParseStoreDump(data); err != nil {
		if errors.Is(err, ErrInvalidJSON) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// ImportJSON writes every table of a store document and returns the number
// of entries written. A database that was not open before is closed again,
// also when the import fails part way.
func (e *Engine) ImportJSON(ctx context.Context, data []byte) (changes int, err error) {
	dump, err := ParseStoreDump(data)
	if err != nil {
		return 0, err
	}
	if err := CheckStoreName(dump.Database); err != nil {
		return 0, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	opts := OpenOptions{Database: dump.Database, Mode: ModeNoEncryption}
	if dump.Encrypted {
		opts.Encrypted = true
		opts.Mode = ModeSecret
	}

	_, wasOpen := e.open[dump.Database]
	db, err := e.openLocked(ctx, opts)
	if err != nil {
		return 0, err
	}
	if !wasOpen {
		defer func() {
			if cerr := e.closeLocked(dump.Database, db); cerr != nil {
				err = errors.Join(err, cerr)
			}
		}()
	}

	for _, table := range dump.Tables {
		if err := db.CreateTable(ctx, table.Name); err != nil {
			return changes, fmt.Errorf("failed to create table %s: %w", table.Name, err)
		}
		for _, kv := range table.Values {
			if err := db.Put(ctx, table.Name, kv.Key, kv.Value); err != nil {
				return changes, fmt.Errorf("failed to import key %s into %s: %w", kv.Key, table.Name, err)
			}
			changes++
		}
	}
	return changes, nil
}

// ExportJSON dumps every table of the current database.
func (e *Engine) ExportJSON(ctx context.Context) (*StoreDump, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	db, err := e.databaseLocked()
	if err != nil {
		return nil, err
	}
	tables, err := db.Tables(ctx)
	if err != nil {
		return nil, err
	}
	sort.Strings(tables)

	dump := &StoreDump{Database: e.current, Tables: make([]TableDump, 0, len(tables))}
	if enc, ok := db.(interface{ Encrypted() bool }); ok {
		dump.Encrypted = enc.Encrypted()
	}
	for _, table := range tables {
		entries, err := db.Entries(ctx, table)
		if err != nil {
			return nil, fmt.Errorf("failed to export table %s: %w", table, err)
		}
		dump.Tables = append(dump.Tables, TableDump{Name: table, Values: entries})
	}
	return dump, nil
}

// Close closes every open database.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	var errs []error
	for name, db := range e.open {
		if err := e.closeLocked(name, db); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (e *Engine) databaseLocked() (Database, error) {
	db, ok := e.open[e.current]
	if e.current == "" || !ok {
		return nil, ErrNoStore
	}
	return db, nil
}

func (e *Engine) tableLocked() (Database, error) {
	db, err := e.databaseLocked()
	if err != nil {
		return nil, err
	}
	if e.table == "" {
		return nil, ErrNoStore
	}
	return db, nil
}

// MatchFilter reports whether key matches filter. A leading "%" matches keys
// ending with the rest, a trailing "%" matches keys starting with the rest,
// anything else matches keys containing filter.
func MatchFilter(filter, key string) bool {
	switch {
	case filter == "" || filter == "%":
		return true
	case strings.HasPrefix(filter, "%"):
		return strings.HasSuffix(key, filter[1:])
	case strings.HasSuffix(filter, "%"):
		return strings.HasPrefix(key, filter[:len(filter)-1])
	default:
		return strings.Contains(key, filter)
	}
}

func checkName(kind, name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("%w: %s name is required", ErrInvalidName, kind)
	}
	return nil
}

// CheckStoreName rejects database names that are blank or could leave the
// driver's directory or alter a connection string once used as a file name.
func CheckStoreName(name string) error {
	if err := checkName("database", name); err != nil {
		return err
	}
	if strings.Contains(name, "..") || strings.ContainsAny(name, "/\\?#:\x00") || filepath.Base(name) != name {
		return fmt.Errorf("%w: database name %q", ErrInvalidName, name)
	}
	return nil
}

// MarshalDump renders dump as indented JSON.
func MarshalDump(dump *StoreDump) ([]byte, error) {
	return json.MarshalIndent(dump, "", "  ")
}
