// Package registry implements the symbol registry engine: a deterministic
// state machine where parties stake value to bind a symbol to an asset,
// conflicts are settled by total support after a challenge window, and
// staked value is custodied per depositor in drawers with warm-up gated
// withdrawals and moves.
//
// The engine never touches storage directly. Each trigger is executed
// against a read-only Reader through a write overlay; the resulting
// changes are returned to the caller, which commits them atomically or,
// on bounce, discards them.
package registry
