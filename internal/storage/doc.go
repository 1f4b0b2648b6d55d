// Package storage provides the persistence backends for the completion ledger.
//
// It currently supports:
//   - Completed item ids (load + atomic replace)
//   - Dispatch audit appends (best-effort history of sent items)
package storage
