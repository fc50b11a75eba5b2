package database

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/llevacuentas/datastore/pkg/stores"
	"github.com/llevacuentas/datastore/pkg/telemetry"
)

// Defaults applied by OpenStore and DeleteStore.
const (
	DefaultDatabase = "storage"
	DefaultTable    = "storage_table"
)

// Loader obtains the storage plugin during Init.
type Loader func(ctx context.Context) (stores.Plugin, error)

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the service logger.
func WithLogger(logger *telemetry.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetrics records guard rejections in metrics.
func WithMetrics(metrics *telemetry.Metrics) Option {
	return func(s *Service) {
		s.metrics = metrics
	}
}

// Service forwards calls to the storage plugin once it has been initialized.
// Every method checks the initialization flag (and non-empty key or table
// arguments where it takes one) and otherwise returns the plugin's result
// and error unchanged.
type Service struct {
	loader   Loader
	platform string
	logger   *telemetry.Logger
	metrics  *telemetry.Metrics

	mu        sync.RWMutex
	store     stores.Plugin
	isService bool
}

// New creates an uninitialized service for platform.
func New(platform string, loader Loader, opts ...Option) *Service {
	s := &Service{
		loader:   loader,
		platform: platform,
		logger:   telemetry.NopLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.NewComponentLogger("database")
	return s
}

// Init obtains the plugin and marks the service initialized. Calling Init on
// an initialized service keeps the current plugin.
func (s *Service) Init(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isService && s.store != nil {
		return nil
	}
	if s.loader == nil {
		return errors.New("init: no plugin loader configured")
	}

	store, err := s.loader(ctx)
	if err != nil {
		return fmt.Errorf("init: %w", err)
	}
	if store == nil {
		return errors.New("init: loader returned no plugin")
	}

	s.store = store
	s.isService = true
	s.logger.WithField("platform", s.platform).Debug("Storage plugin initialized")
	return nil
}

// Platform returns the platform the service was created for.
func (s *Service) Platform() string {
	return s.platform
}

// IsInitialized reports whether Init succeeded.
func (s *Service) IsInitialized() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isService && s.store != nil
}

// Close closes the plugin and clears the initialization flag.
func (s *Service) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	store := s.store
	s.store = nil
	s.isService = false
	if store == nil {
		return nil
	}
	return store.Close()
}

func (s *Service) plugin(method string) (stores.Plugin, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.isService || s.store == nil {
		return nil, s.reject(notOpened(method))
	}
	return s.store, nil
}

func (s *Service) reject(err error) error {
	var ge *GuardError
	if errors.As(err, &ge) {
		s.metrics.RecordGuardRejection(ge.Method, ge.Err.Error())
		s.logger.WithField("method", ge.Method).Debug(ge.Err.Error())
	}
	return err
}

// Echo returns value as echoed by the plugin.
func (s *Service) Echo(ctx context.Context, value string) (string, error) {
	p, err := s.plugin("echo")
	if err != nil {
		return "", err
	}
	return p.Echo(ctx, value)
}

// OpenStore opens a store, defaulting empty options to the "storage"
// database, the "storage_table" table and no encryption.
func (s *Service) OpenStore(ctx context.Context, opts stores.OpenOptions) error {
	p, err := s.plugin("openStore")
	if err != nil {
		return err
	}
	if opts.Database == "" {
		opts.Database = DefaultDatabase
	}
	if opts.Table == "" {
		opts.Table = DefaultTable
	}
	if opts.Mode == "" {
		opts.Mode = stores.ModeNoEncryption
	}

	s.logger.WithStore(opts.Database).WithTable(opts.Table).Debug("Opening store")
	return p.OpenStore(ctx, opts)
}

// CloseStore closes the named store.
func (s *Service) CloseStore(ctx context.Context, database string) error {
	p, err := s.plugin("closeStore")
	if err != nil {
		return err
	}
	return p.CloseStore(ctx, database)
}

// IsStoreOpen reports whether the named store is open.
func (s *Service) IsStoreOpen(ctx context.Context, database string) (bool, error) {
	p, err := s.plugin("isStoreOpen")
	if err != nil {
		return false, err
	}
	return p.IsStoreOpen(ctx, database)
}

// IsStoreExists reports whether the named store exists.
func (s *Service) IsStoreExists(ctx context.Context, database string) (bool, error) {
	p, err := s.plugin("isStoreExists")
	if err != nil {
		return false, err
	}
	return p.IsStoreExists(ctx, database)
}

// SetTable creates or selects a table of the open store.
func (s *Service) SetTable(ctx context.Context, table string) error {
	p, err := s.plugin("setTable")
	if err != nil {
		return err
	}
	if len(table) == 0 {
		return s.reject(missingTable("setTable"))
	}
	return p.SetTable(ctx, table)
}

// SetItem stores value under key.
func (s *Service) SetItem(ctx context.Context, key, value string) error {
	p, err := s.plugin("setItem")
	if err != nil {
		return err
	}
	if len(key) == 0 {
		return s.reject(missingKey("setItem"))
	}
	return p.Set(ctx, key, value)
}

// GetItem returns the value stored under key.
func (s *Service) GetItem(ctx context.Context, key string) (string, error) {
	p, err := s.plugin("getItem")
	if err != nil {
		return "", err
	}
	if len(key) == 0 {
		return "", s.reject(missingKey("getItem"))
	}
	value, err := p.Get(ctx, key)
	if err != nil {
		s.logger.WithField("key", key).WithError(err).Warn("getItem failed")
		return "", err
	}
	return value, nil
}

// IsKey reports whether key exists.
func (s *Service) IsKey(ctx context.Context, key string) (bool, error) {
	p, err := s.plugin("isKey")
	if err != nil {
		return false, err
	}
	if len(key) == 0 {
		return false, s.reject(missingKey("isKey"))
	}
	return p.IsKey(ctx, key)
}

// GetAllKeys lists every key of the current table.
func (s *Service) GetAllKeys(ctx context.Context) ([]string, error) {
	p, err := s.plugin("getAllKeys")
	if err != nil {
		return nil, err
	}
	return p.Keys(ctx)
}

// GetAllValues lists every value of the current table.
func (s *Service) GetAllValues(ctx context.Context) ([]string, error) {
	p, err := s.plugin("getAllValues")
	if err != nil {
		return nil, err
	}
	return p.Values(ctx)
}

// GetFilterValues lists the values whose keys match filter.
func (s *Service) GetFilterValues(ctx context.Context, filter string) ([]string, error) {
	p, err := s.plugin("getFilterValues")
	if err != nil {
		return nil, err
	}
	return p.FilterValues(ctx, filter)
}

// GetAllKeysValues lists every entry of the current table.
func (s *Service) GetAllKeysValues(ctx context.Context) ([]stores.KeyValue, error) {
	p, err := s.plugin("getAllKeysValues")
	if err != nil {
		return nil, err
	}
	return p.KeysValues(ctx)
}

// RemoveItem removes key.
func (s *Service) RemoveItem(ctx context.Context, key string) error {
	p, err := s.plugin("removeItem")
	if err != nil {
		return err
	}
	if len(key) == 0 {
		return s.reject(missingKey("removeItem"))
	}
	return p.Remove(ctx, key)
}

// Clear removes every key of the current table.
func (s *Service) Clear(ctx context.Context) error {
	p, err := s.plugin("clear")
	if err != nil {
		return err
	}
	return p.Clear(ctx)
}

// DeleteStore initializes the service if needed and deletes the named store,
// defaulting to "storage".
func (s *Service) DeleteStore(ctx context.Context, database string) error {
	if database == "" {
		database = DefaultDatabase
	}
	if err := s.Init(ctx); err != nil {
		s.logger.WithError(err).Warn("deleteStore: init failed")
	}

	p, err := s.plugin("deleteStore")
	if err != nil {
		return err
	}
	return p.DeleteStore(ctx, database)
}

// IsTable reports whether table exists in the open store.
func (s *Service) IsTable(ctx context.Context, table string) (bool, error) {
	p, err := s.plugin("isTable")
	if err != nil {
		return false, err
	}
	if len(table) == 0 {
		return false, s.reject(missingTable("isTable"))
	}
	return p.IsTable(ctx, table)
}

// GetAllTables lists the tables of the open store.
func (s *Service) GetAllTables(ctx context.Context) ([]string, error) {
	p, err := s.plugin("getAllTables")
	if err != nil {
		return nil, err
	}
	return p.Tables(ctx)
}

// DeleteTable drops table from the open store.
func (s *Service) DeleteTable(ctx context.Context, table string) error {
	p, err := s.plugin("deleteTable")
	if err != nil {
		return err
	}
	if len(table) == 0 {
		return s.reject(missingTable("deleteTable"))
	}
	return p.DeleteTable(ctx, table)
}

// ImportFromJSON imports a store document and returns the number of changes.
func (s *Service) ImportFromJSON(ctx context.Context, data []byte) (int, error) {
	p, err := s.plugin("importFromJson")
	if err != nil {
		return 0, err
	}
	return p.ImportJSON(ctx, data)
}

// IsJSONValid reports whether data is a valid store document.
func (s *Service) IsJSONValid(ctx context.Context, data []byte) (bool, error) {
	p, err := s.plugin("isJsonValid")
	if err != nil {
		return false, err
	}
	return p.IsJSONValid(ctx, data)
}

// ExportToJSON dumps the open store.
func (s *Service) ExportToJSON(ctx context.Context) (*stores.StoreDump, error) {
	p, err := s.plugin("exportToJson")
	if err != nil {
		return nil, err
	}
	return p.ExportJSON(ctx)
}
