// Package trustledger implements the append-only, hash-chained event log that
// backs the certification ledger.
//
// The chain begins with a well-known genesis entry whose Hash equals GenesisHash
// (64 hex zeros). Every subsequent entry stores its JSON payload, the SHA-256 of
// that payload, and the hash of its predecessor, so any tampering with content
// or order is detectable via Verify. Replaying the entries in index order
// reconstructs the current record state.
//
// Three implementations of the Ledger interface are provided:
//   - MemoryLedger: in-process, for testing and development.
//   - SQLiteLedger: single-file durable log for one-node deployments.
//   - PostgresLedger: durable, for production use.
package trustledger
