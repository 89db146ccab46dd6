// Package audit defines the append-only decision trail of the gate.
//
// Every verification produces exactly one Record, and the Ledger keeps three
// running counters next to the records:
//
//   - TOTAL: incremented on every Record call
//   - PASS: incremented when the decision is SUCCESS
//   - BLOCK: incremented when the decision is BLOCKED
//
// Appending the record and bumping the counters is one atomic unit, so at
// any time TOTAL == PASS + BLOCK == number of records. Ledger.Verify checks
// exactly that, and the scheduler subpackage runs it periodically.
//
// Records are never updated or deleted.
//
// Implementations live in pkg/storage.
package audit
