// Package engine implements the deterministic action/event protocol that
// couples a test script to the peripheral models.
//
// ARCHITECTURE:
//
// An Engine is the simulation context handed to every peripheral Step
// call. It owns the only shared mutable state of a run:
//   - the script cursor
//   - the pending-action queue, keyed by peripheral name
//   - the event sink (the append-only log)
//
// Everything runs on the driver's goroutine. No locking is done; callers
// must not share an Engine across goroutines.
//
// Protocol:
//
//  1. New pre-fetches: every contiguous run of actions at the cursor is
//     queued for its peripheral and the cursor moves past it. Pre-fetch
//     stops at the first wait.
//  2. Peripherals drain their queue with PendingActions before stepping.
//  3. Emit appends the event to the sink first, then advances the cursor
//     if it sits on a wait whose (peripheral, event, payload) triple
//     equals the event, and pre-fetches again.
//  4. Close reports how many commands were never reached.
//
// A non-matching event is not an error: it is logged and the cursor
// stays put.
package engine
