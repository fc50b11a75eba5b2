package stores

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/llevacuentas/datastore/pkg/telemetry"
)

// Instrumented wraps a Plugin with spans, operation metrics, debug logs and
// change events. Results and errors of the wrapped plugin are returned
// unchanged.
type Instrumented struct {
	next Plugin
	tel  *telemetry.Telemetry
}

// currentReporter is implemented by plugins that expose their current
// database and table.
type currentReporter interface {
	Current() (database, table string)
}

// Instrument wraps p with tel. A nil tel returns p unchanged.
func Instrument(p Plugin, tel *telemetry.Telemetry) Plugin {
	if tel == nil {
		return p
	}
	return &Instrumented{next: p, tel: tel}
}

// Unwrap returns the wrapped plugin.
func (i *Instrumented) Unwrap() Plugin {
	return i.next
}

func (i *Instrumented) current() (string, string) {
	if r, ok := i.next.(currentReporter); ok {
		return r.Current()
	}
	return "", ""
}

func (i *Instrumented) run(ctx context.Context, operation string, fn func(ctx context.Context) error) error {
	database, table := i.current()
	return i.tel.RecordStoreOperation(ctx, telemetry.StoreOperation{Name: operation, Database: database, Table: table}, fn)
}

// Echo implements Plugin.
func (i *Instrumented) Echo(ctx context.Context, value string) (out string, err error) {
	err = i.run(ctx, "echo", func(ctx context.Context) error {
		out, err = i.next.Echo(ctx, value)
		return err
	})
	return out, err
}

// OpenStore implements Plugin.
func (i *Instrumented) OpenStore(ctx context.Context, opts OpenOptions) error {
	wasOpen, _ := i.next.IsStoreOpen(ctx, opts.Database)
	err := i.tel.RecordStoreOperation(ctx, telemetry.StoreOperation{
		Name:       "open_store",
		Database:   opts.Database,
		Table:      opts.Table,
		Attributes: []attribute.KeyValue{telemetry.AttrEncrypted.Bool(opts.Encrypted)},
	}, func(ctx context.Context) error {
		return i.next.OpenStore(ctx, opts)
	})
	if err != nil {
		return err
	}
	if !wasOpen {
		i.tel.Metrics.StoreOpened()
	}
	_ = i.tel.Events.PublishStoreOpened(opts.Database, opts.Table, opts.Encrypted)
	return nil
}

// CloseStore implements Plugin.
func (i *Instrumented) CloseStore(ctx context.Context, database string) error {
	err := i.tel.RecordStoreOperation(ctx, telemetry.StoreOperation{Name: "close_store", Database: database}, func(ctx context.Context) error {
		return i.next.CloseStore(ctx, database)
	})
	if err != nil {
		return err
	}
	i.tel.Metrics.StoreClosed()
	_ = i.tel.Events.PublishStoreClosed(database)
	return nil
}

// IsStoreOpen implements Plugin.
func (i *Instrumented) IsStoreOpen(ctx context.Context, database string) (ok bool, err error) {
	err = i.tel.RecordStoreOperation(ctx, telemetry.StoreOperation{Name: "is_store_open", Database: database}, func(ctx context.Context) error {
		ok, err = i.next.IsStoreOpen(ctx, database)
		return err
	})
	return ok, err
}

// IsStoreExists implements Plugin.
func (i *Instrumented) IsStoreExists(ctx context.Context, database string) (ok bool, err error) {
	err = i.tel.RecordStoreOperation(ctx, telemetry.StoreOperation{Name: "is_store_exists", Database: database}, func(ctx context.Context) error {
		ok, err = i.next.IsStoreExists(ctx, database)
		return err
	})
	return ok, err
}

// DeleteStore implements Plugin.
func (i *Instrumented) DeleteStore(ctx context.Context, database string) error {
	wasOpen, _ := i.next.IsStoreOpen(ctx, database)
	err := i.tel.RecordStoreOperation(ctx, telemetry.StoreOperation{Name: "delete_store", Database: database}, func(ctx context.Context) error {
		return i.next.DeleteStore(ctx, database)
	})
	if wasOpen {
		if open, _ := i.next.IsStoreOpen(ctx, database); !open {
			i.tel.Metrics.StoreClosed()
		}
	}
	if err != nil {
		return err
	}
	_ = i.tel.Events.PublishStoreDeleted(database)
	return nil
}

// SetTable implements Plugin.
func (i *Instrumented) SetTable(ctx context.Context, table string) error {
	database, _ := i.current()
	return i.tel.RecordStoreOperation(ctx, telemetry.StoreOperation{Name: "set_table", Database: database, Table: table}, func(ctx context.Context) error {
		return i.next.SetTable(ctx, table)
	})
}

// IsTable implements Plugin.
func (i *Instrumented) IsTable(ctx context.Context, table string) (ok bool, err error) {
	database, _ := i.current()
	err = i.tel.RecordStoreOperation(ctx, telemetry.StoreOperation{Name: "is_table", Database: database, Table: table}, func(ctx context.Context) error {
		ok, err = i.next.IsTable(ctx, table)
		return err
	})
	return ok, err
}

// Tables implements Plugin.
func (i *Instrumented) Tables(ctx context.Context) (tables []string, err error) {
	err = i.run(ctx, "tables", func(ctx context.Context) error {
		tables, err = i.next.Tables(ctx)
		return err
	})
	return tables, err
}

// DeleteTable implements Plugin.
func (i *Instrumented) DeleteTable(ctx context.Context, table string) error {
	database, _ := i.current()
	err := i.tel.RecordStoreOperation(ctx, telemetry.StoreOperation{Name: "delete_table", Database: database, Table: table}, func(ctx context.Context) error {
		return i.next.DeleteTable(ctx, table)
	})
	if err != nil {
		return err
	}
	_ = i.tel.Events.PublishTableDeleted(database, table)
	return nil
}

// Set implements Plugin.
func (i *Instrumented) Set(ctx context.Context, key, value string) error {
	database, table := i.current()
	err := i.tel.RecordStoreOperation(ctx, telemetry.StoreOperation{Name: "set", Database: database, Table: table}, func(ctx context.Context) error {
		return i.next.Set(ctx, key, value)
	})
	if err != nil {
		return err
	}
	_ = i.tel.Events.PublishItemSet(database, table, key)
	return nil
}

// Get implements Plugin.
func (i *Instrumented) Get(ctx context.Context, key string) (value string, err error) {
	err = i.run(ctx, "get", func(ctx context.Context) error {
		value, err = i.next.Get(ctx, key)
		return err
	})
	return value, err
}

// Remove implements Plugin.
func (i *Instrumented) Remove(ctx context.Context, key string) error {
	database, table := i.current()
	err := i.tel.RecordStoreOperation(ctx, telemetry.StoreOperation{Name: "remove", Database: database, Table: table}, func(ctx context.Context) error {
		return i.next.Remove(ctx, key)
	})
	if err != nil {
		return err
	}
	_ = i.tel.Events.PublishItemRemoved(database, table, key)
	return nil
}

// Clear implements Plugin.
func (i *Instrumented) Clear(ctx context.Context) error {
	database, table := i.current()
	err := i.tel.RecordStoreOperation(ctx, telemetry.StoreOperation{Name: "clear", Database: database, Table: table}, func(ctx context.Context) error {
		return i.next.Clear(ctx)
	})
	if err != nil {
		return err
	}
	_ = i.tel.Events.PublishStoreCleared(database, table)
	return nil
}

// IsKey implements Plugin.
func (i *Instrumented) IsKey(ctx context.Context, key string) (ok bool, err error) {
	err = i.run(ctx, "is_key", func(ctx context.Context) error {
		ok, err = i.next.IsKey(ctx, key)
		return err
	})
	return ok, err
}

// Keys implements Plugin.
func (i *Instrumented) Keys(ctx context.Context) (keys []string, err error) {
	err = i.run(ctx, "keys", func(ctx context.Context) error {
		keys, err = i.next.Keys(ctx)
		return err
	})
	return keys, err
}

// Values implements Plugin.
func (i *Instrumented) Values(ctx context.Context) (values []string, err error) {
	err = i.run(ctx, "values", func(ctx context.Context) error {
		values, err = i.next.Values(ctx)
		return err
	})
	return values, err
}

// FilterValues implements Plugin.
func (i *Instrumented) FilterValues(ctx context.Context, filter string) (values []string, err error) {
	err = i.run(ctx, "filter_values", func(ctx context.Context) error {
		values, err = i.next.FilterValues(ctx, filter)
		return err
	})
	return values, err
}

// KeysValues implements Plugin.
func (i *Instrumented) KeysValues(ctx context.Context) (kvs []KeyValue, err error) {
	err = i.run(ctx, "keys_values", func(ctx context.Context) error {
		kvs, err = i.next.KeysValues(ctx)
		return err
	})
	return kvs, err
}

// ImportJSON implements Plugin.
func (i *Instrumented) ImportJSON(ctx context.Context, data []byte) (changes int, err error) {
	database := ""
	if dump, perr := ParseStoreDump(data); perr == nil {
		database = dump.Database
	}
	err = i.tel.RecordStoreOperation(ctx, telemetry.StoreOperation{Name: "import_json", Database: database}, func(ctx context.Context) error {
		changes, err = i.next.ImportJSON(ctx, data)
		trace.SpanFromContext(ctx).SetAttributes(telemetry.AttrCount.Int(changes))
		return err
	})
	if err != nil {
		return changes, err
	}
	i.tel.Metrics.RecordImport(database, changes)
	_ = i.tel.Events.PublishJSONImported(database, changes)
	return changes, nil
}

// ExportJSON implements Plugin.
func (i *Instrumented) ExportJSON(ctx context.Context) (dump *StoreDump, err error) {
	err = i.run(ctx, "export_json", func(ctx context.Context) error {
		dump, err = i.next.ExportJSON(ctx)
		return err
	})
	return dump, err
}

// IsJSONValid implements Plugin.
func (i *Instrumented) IsJSONValid(ctx context.Context, data []byte) (ok bool, err error) {
	err = i.run(ctx, "is_json_valid", func(ctx context.Context) error {
		ok, err = i.next.IsJSONValid(ctx, data)
		return err
	})
	return ok, err
}

// Close implements Plugin.
func (i *Instrumented) Close() error {
	err := i.next.Close()
	i.tel.Metrics.SetOpenStores(0)
	return err
}
