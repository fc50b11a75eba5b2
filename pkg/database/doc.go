// Package database is the application's access point to key/value storage.
//
// Service holds a single storage plugin reference and an initialization
// flag. Its methods forward to the plugin after two checks: the service is
// initialized, and key or table arguments are non-empty. Failed checks return
// a *GuardError whose message names the method:
//
//	setItem: Store not opened
//	getItem: Must give a key
//	isTable: Must give a table
//
// Errors from the plugin itself are returned unchanged, so callers can match
// them with errors.Is against the stores package sentinels.
package database
