package telemetry_test

import (
	"context"
	"errors"
	"fmt"

	"github.com/llevacuentas/datastore/pkg/telemetry"
)

// Example_basicSetup demonstrates basic telemetry setup.
func Example_basicSetup() {
	cfg := telemetry.DefaultConfig()
	cfg.ServiceVersion = "1.0.0"
	cfg.Metrics.Enabled = false

	tel, err := telemetry.NewTelemetry(cfg)
	if err != nil {
		panic(err)
	}
	defer tel.Shutdown(context.Background())

	tel.Logger.NewComponentLogger("database").Info("Application started")
}

// Example_structuredLogging demonstrates store-aware logging fields.
func Example_structuredLogging() {
	cfg := telemetry.DefaultConfig()
	cfg.Logging.Level = "debug"
	cfg.Metrics.Enabled = false

	tel, _ := telemetry.NewTelemetry(cfg)
	defer tel.Shutdown(context.Background())

	logger := tel.Logger.NewComponentLogger("database").
		WithStore("storage").
		WithTable("storage_table")

	logger.Debug("Opening store")
	logger.WithField("key", "session").Info("Item stored")
	logger.WithError(errors.New("database is locked")).Warn("getItem failed")
}

// Example_storeOperation demonstrates recording a failed store operation.
func Example_storeOperation() {
	cfg := telemetry.DefaultConfig()
	cfg.Metrics.Enabled = false

	tel, _ := telemetry.NewTelemetry(cfg)
	defer tel.Shutdown(context.Background())

	tel.Events.Subscribe(func(event telemetry.Event) {
		fmt.Println(event.Type, event.Store, event.Data["operation"])
	}, nil)

	op := telemetry.StoreOperation{Name: "set", Database: "storage", Table: "storage_table"}
	err := tel.RecordStoreOperation(context.Background(), op, func(ctx context.Context) error {
		return errors.New("database is locked")
	})
	fmt.Println(err)
	// Output:
	// error storage set
	// database is locked
}

// Example_eventFiltering demonstrates subscribing to one kind of event.
func Example_eventFiltering() {
	events, _ := telemetry.NewEventPublisher(telemetry.EventsConfig{Enabled: true})
	defer events.Shutdown(context.Background())

	events.Subscribe(func(event telemetry.Event) {
		fmt.Println(event.Type, event.Store)
	}, telemetry.FilterByLevel(telemetry.EventLevelWarning))

	_ = events.PublishItemSet("storage", "storage_table", "session")
	_ = events.PublishStoreDeleted("storage")
	// Output:
	// store.deleted storage
}
