// Package repository defines the data access interfaces for epinet.
//
// A run is everything that happened between two resets of the simulation:
// its disease parameters, transit options and a snapshot per recorded tick.
// The actual implementation is in the sqlite subpackage.
//
// # SQLite Implementation
//
// The sqlite implementation stores every snapshot twice:
//
// - as a JSON document, so the latest state can be restored as a whole
// - as one row per city, so per-city time series are cheap to query
//
// Both writes happen in one transaction.
//
// # Testing
//
// The sqlite repository is tested with in-memory databases.
package repository
