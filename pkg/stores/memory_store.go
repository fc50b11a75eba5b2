package stores

import (
	"context"
	"sort"
	"sync"
)

// MemoryDriver keeps databases in process memory. Databases survive
// CloseStore and disappear with the driver, like browser storage does with
// the page.
type MemoryDriver struct {
	mu        sync.Mutex
	databases map[string]*memoryData
}

type memoryData struct {
	tables map[string]*memoryTable
}

// memoryTable preserves insertion order.
type memoryTable struct {
	keys   []string
	values map[string]string
}

// NewMemoryDriver creates an empty in-memory driver.
func NewMemoryDriver() *MemoryDriver {
	return &MemoryDriver{databases: make(map[string]*memoryData)}
}

// Name implements Driver.
func (d *MemoryDriver) Name() string { return "memory" }

// Open implements Driver.
func (d *MemoryDriver) Open(_ context.Context, name string, opts OpenOptions) (Database, error) {
	if opts.Encrypted {
		return nil, ErrEncryptionUnsupported
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	data, ok := d.databases[name]
	if !ok {
		data = &memoryData{tables: make(map[string]*memoryTable)}
		d.databases[name] = data
	}
	return &memoryDatabase{driver: d, data: data}, nil
}

// Exists implements Driver.
func (d *MemoryDriver) Exists(_ context.Context, name string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	_, ok := d.databases[name]
	return ok, nil
}

// Remove implements Driver.
func (d *MemoryDriver) Remove(_ context.Context, name string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	delete(d.databases, name)
	return nil
}

type memoryDatabase struct {
	driver *MemoryDriver
	data   *memoryData
}

func (m *memoryDatabase) CreateTable(_ context.Context, table string) error {
	m.driver.mu.Lock()
	defer m.driver.mu.Unlock()

	if _, ok := m.data.tables[table]; !ok {
		m.data.tables[table] = &memoryTable{values: make(map[string]string)}
	}
	return nil
}

func (m *memoryDatabase) HasTable(_ context.Context, table string) (bool, error) {
	m.driver.mu.Lock()
	defer m.driver.mu.Unlock()

	_, ok := m.data.tables[table]
	return ok, nil
}

func (m *memoryDatabase) Tables(_ context.Context) ([]string, error) {
	m.driver.mu.Lock()
	defer m.driver.mu.Unlock()

	names := make([]string, 0, len(m.data.tables))
	for name := range m.data.tables {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (m *memoryDatabase) DropTable(_ context.Context, table string) error {
	m.driver.mu.Lock()
	defer m.driver.mu.Unlock()

	delete(m.data.tables, table)
	return nil
}

func (m *memoryDatabase) Put(_ context.Context, table, key, value string) error {
	m.driver.mu.Lock()
	defer m.driver.mu.Unlock()

	t, err := m.lookup(table)
	if err != nil {
		return err
	}
	if _, ok := t.values[key]; !ok {
		t.keys = append(t.keys, key)
	}
	t.values[key] = value
	return nil
}

func (m *memoryDatabase) Get(_ context.Context, table, key string) (string, bool, error) {
	m.driver.mu.Lock()
	defer m.driver.mu.Unlock()

	t, err := m.lookup(table)
	if err != nil {
		return "", false, err
	}
	value, ok := t.values[key]
	return value, ok, nil
}

func (m *memoryDatabase) Delete(_ context.Context, table, key string) error {
	m.driver.mu.Lock()
	defer m.driver.mu.Unlock()

	t, err := m.lookup(table)
	if err != nil {
		return err
	}
	if _, ok := t.values[key]; !ok {
		return nil
	}
	delete(t.values, key)
	for i, k := range t.keys {
		if k == key {
			t.keys = append(t.keys[:i], t.keys[i+1:]...)
			break
		}
	}
	return nil
}

func (m *memoryDatabase) Truncate(_ context.Context, table string) error {
	m.driver.mu.Lock()
	defer m.driver.mu.Unlock()

	t, err := m.lookup(table)
	if err != nil {
		return err
	}
	t.keys = nil
	t.values = make(map[string]string)
	return nil
}

func (m *memoryDatabase) Entries(_ context.Context, table string) ([]KeyValue, error) {
	m.driver.mu.Lock()
	defer m.driver.mu.Unlock()

	t, err := m.lookup(table)
	if err != nil {
		return nil, err
	}
	entries := make([]KeyValue, 0, len(t.keys))
	for _, k := range t.keys {
		entries = append(entries, KeyValue{Key: k, Value: t.values[k]})
	}
	return entries, nil
}

func (m *memoryDatabase) Close() error { return nil }

func (m *memoryDatabase) lookup(table string) (*memoryTable, error) {
	t, ok := m.data.tables[table]
	if !ok {
		return nil, ErrTableNotFound
	}
	return t, nil
}
