// Package store persists cloud snapshots and imported network exports
// in SQLite.
//
// The cloud is the source of truth for networks and devices; the store
// keeps last-known rows so the REST API can serve listings while the
// cloud is unreachable. The poller refreshes snapshot rows, the import
// flow writes export records, and nothing in the bridge ever edits a
// snapshot by hand.
//
// # Repositories
//
//   - NetworkRepository: one row per cloud network with device and
//     group counts
//   - DeviceRepository: last-known device rows including serialised
//     state, replaced wholesale per network on each discovery sweep
//   - ExportRepository: imported mesh export documents with their
//     validation warning counts
//
// Timestamps are stored as RFC 3339 UTC strings. All repositories are
// safe for concurrent use; SQLite serialises writers behind the single
// open connection the database layer configures.
package store
