// Package stores provides the key/value storage plugin used by the database
// service. An Engine tracks open databases and the current database/table
// pair, and delegates persistence to a Driver: SQLite files with optional
// value encryption, BoltDB files, or process memory for the web platform.
package stores
