// Package telemetry carries the datastore's structured logs (zerolog), store
// spans (OpenTelemetry), Prometheus metrics and store change events.
//
// A Telemetry value is built once at startup from Config and handed to the
// storage plugin decorator and the database service:
//
//	tel, err := telemetry.NewTelemetry(cfg)
//	if err != nil {
//	    return err
//	}
//	defer tel.Shutdown(context.Background())
//
// Every plugin call goes through RecordStoreOperation, which starts a
// "store.<operation>" span, records operations_total and
// operation_duration_seconds, and publishes an error event when the call
// fails:
//
//	err := tel.RecordStoreOperation(ctx, telemetry.StoreOperation{
//	    Name:     "set",
//	    Database: "storage",
//	    Table:    "storage_table",
//	}, func(ctx context.Context) error {
//	    return db.Set(ctx, key, value)
//	})
//
// Span exporters are "otlp" (gRPC), "stdout" (written to stderr) and "none".
//
// Metrics live on a private registry served by StartMetricsServer:
//
//   - datastore_operations_total{operation,status}
//   - datastore_operation_duration_seconds{operation}
//   - datastore_guard_rejections_total{method,reason}
//   - datastore_open_stores
//   - datastore_imported_items_total{store}
//
// A nil *Metrics, *Tracer or *EventPublisher is valid and does nothing.
//
// Events are delivered synchronously to subscribers. EventsConfig.MinLevel
// drops events below a severity and EventsConfig.Log writes the rest to the
// "events" component logger.
//
// Never log item values or secrets. Keys are logged at debug level only.
package telemetry
