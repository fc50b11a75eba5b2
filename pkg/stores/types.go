package stores

import (
	"context"
	"errors"
)

// Encryption modes accepted by OpenStore.
const (
	ModeNoEncryption = "no-encryption"
	ModeEncryption   = "encryption"
	ModeSecret       = "secret"
	ModeNewSecret    = "newsecret"
)

var (
	// ErrNoStore is returned by key and table operations when no store is current.
	ErrNoStore = errors.New("must open a store first")

	// ErrStoreNotOpen is returned when closing a database that is not open.
	ErrStoreNotOpen = errors.New("store is not open")

	// ErrStoreNotFound is returned when deleting a database that does not exist.
	ErrStoreNotFound = errors.New("store does not exist")

	// ErrTableNotFound is returned when deleting a table that does not exist.
	ErrTableNotFound = errors.New("table does not exist")

	// ErrTableInUse is returned when deleting the current table.
	ErrTableInUse = errors.New("table is in use")

	// ErrInvalidName is returned for empty, reserved or unsafe database and table names.
	ErrInvalidName = errors.New("invalid name")

	// ErrEncryptionUnsupported is returned by drivers without encryption support.
	ErrEncryptionUnsupported = errors.New("encryption not supported by this driver")

	// ErrBadSecret is returned when an encrypted store cannot be opened with the configured secret.
	ErrBadSecret = errors.New("wrong or missing secret")

	// ErrInvalidJSON is returned when an import document fails validation.
	ErrInvalidJSON = errors.New("invalid store JSON")
)

// OpenOptions selects the database and table made current by OpenStore.
type OpenOptions struct {
	Database  string `json:"database"`
	Table     string `json:"table"`
	Encrypted bool   `json:"encrypted"`
	Mode      string `json:"mode"`
}

// KeyValue is one entry of a table.
type KeyValue struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// TableDump holds every entry of one table.
type TableDump struct {
	Name   string     `json:"name"`
	Values []KeyValue `json:"values"`
}

// StoreDump is the JSON import/export document of a database.
type StoreDump struct {
	Database  string      `json:"database"`
	Encrypted bool        `json:"encrypted,omitempty"`
	Tables    []TableDump `json:"tables"`
}

// Plugin is the storage plugin API: store lifecycle, tables, keys and JSON transfer.
type Plugin interface {
	Echo(ctx context.Context, value string) (string, error)

	// Store lifecycle
	OpenStore(ctx context.Context, opts OpenOptions) error
	CloseStore(ctx context.Context, database string) error
	IsStoreOpen(ctx context.Context, database string) (bool, error)
	IsStoreExists(ctx context.Context, database string) (bool, error)
	DeleteStore(ctx context.Context, database string) error

	// Tables of the current store
	SetTable(ctx context.Context, table string) error
	IsTable(ctx context.Context, table string) (bool, error)
	Tables(ctx context.Context) ([]string, error)
	DeleteTable(ctx context.Context, table string) error

	// Keys of the current table
	Set(ctx context.Context, key, value string) error
	Get(ctx context.Context, key string) (string, error)
	Remove(ctx context.Context, key string) error
	Clear(ctx context.Context) error
	IsKey(ctx context.Context, key string) (bool, error)
	Keys(ctx context.Context) ([]string, error)
	Values(ctx context.Context) ([]string, error)
	FilterValues(ctx context.Context, filter string) ([]string, error)
	KeysValues(ctx context.Context) ([]KeyValue, error)

	// JSON transfer
	ImportJSON(ctx context.Context, data []byte) (int, error)
	ExportJSON(ctx context.Context) (*StoreDump, error)
	IsJSONValid(ctx context.Context, data []byte) (bool, error)

	Close() error
}

// Driver opens, checks for and removes the databases of one storage backend.
type Driver interface {
	// Name identifies the driver ("sqlite", "bolt", "memory").
	Name() string
	Open(ctx context.Context, name string, opts OpenOptions) (Database, error)
	Exists(ctx context.Context, name string) (bool, error)
	Remove(ctx context.Context, name string) error
}

// Database is one open database of a Driver.
type Database interface {
	CreateTable(ctx context.Context, table string) error
	HasTable(ctx context.Context, table string) (bool, error)
	Tables(ctx context.Context) ([]string, error)
	DropTable(ctx context.Context, table string) error

	Put(ctx context.Context, table, key, value string) error
	// Get reports whether key exists alongside its value.
	Get(ctx context.Context, table, key string) (string, bool, error)
	Delete(ctx context.Context, table, key string) error
	Truncate(ctx context.Context, table string) error
	// Entries returns every entry of table in the driver's enumeration order.
	Entries(ctx context.Context, table string) ([]KeyValue, error)

	Close() error
}
