// Package composer implements the chat-record transfer engine: exporting
// composer records from one store, re-keying them to avoid identifier
// collisions, and merging them into another store under backup-guarded,
// verify-bracketed semantics.
//
// # Data Model
//
//   - Metadata: one composer index entry; uninterpreted fields are
//     preserved verbatim
//   - BubbleEntry: one message bubble (storage key, payload, bubble ID)
//   - Index: the authoritative per-store record list under the
//     composer.composerData key
//   - Snapshot: a portable in-memory bundle of records + payloads +
//     bubbles, the unit of transfer and of remapping
//
// # Operations
//
//   - BuildSnapshot: extract selected records with diagnostics
//   - Remap: clone a snapshot under fresh random IDs, rewriting every
//     cross-reference
//   - Merge: conflict-free, idempotent insertion into live target stores
//   - RemoveRecords: detach records from an index (payloads untouched)
//   - LocalTransfer: copy / cut / ref orchestration over two indexes
//     sharing one payload store
//   - SaveSnapshot / LoadSnapshot: the interchange file format
//
// # Atomicity
//
// The index store and payload store are physically separate SQLite files
// and cannot share a transaction. Merge substitutes ordered commits
// (payloads strictly before index) plus backups and integrity checks for
// true two-phase atomicity, and exposes its intermediate states through
// MergeState so a caller can reason about exactly what partial result a
// crash can leave behind.
package composer
