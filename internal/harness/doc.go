// Package harness runs co-simulation scenarios: a board configuration, a
// script, and assertions over the resulting event trace, flash reads, and
// script progress. Traces can be compared against golden snapshots.
package harness
