// Package config loads the datastore application configuration.
//
// Configuration is layered: Default values, then an optional YAML file, then
// DATASTORE_* environment variables. The result is checked with struct tags
// (go-playground/validator).
//
//	cfg, err := config.Load("datastore.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
// Example file:
//
//	platform: android
//	data_dir: /var/lib/datastore
//	database: storage
//	table: storage_table
//	logging:
//	  level: debug
//	metrics:
//	  enabled: true
//	  listen_address: ":9090"
//
// Environment variables use the YAML names upper-cased, with nested sections
// joined by their prefix: DATASTORE_PLATFORM, DATASTORE_LOG_LEVEL,
// DATASTORE_SQLITE_BUSY_TIMEOUT, DATASTORE_TRACING_EXPORTER.
//
// When Engine is empty the web platform uses the memory engine and every
// other platform uses sqlite.
//
// A Watcher reloads the file on change (debounced) and hands the new
// configuration to a callback.
package config
