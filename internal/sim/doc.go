// Package sim runs the cycle-stepped co-simulation loop.
//
// A Driver owns the timestamp and the clock port. Each tick has two
// halves, clock low then clock high. In each half the driver
//
//  1. steps every peripheral in registration order,
//  2. drives the clock level,
//  3. steps the circuit evaluator,
//  4. advances the timestamp by one.
//
// Peripherals therefore observe the circuit outputs computed in the
// previous half, and the circuit observes peripheral outputs from the
// current one.
//
// The script can stop the run with an action on the "sim" peripheral:
//
//	{"type": "action", "peripheral": "sim", "event": "exit", "payload": null}
package sim
