// Package ledger holds the append-only event log of a simulation run.
//
// Every peripheral-observable event becomes an Entry and is handed to a
// Sink as soon as it is emitted. The file Writer produces a JSON document
//
//	{
//	"events": [
//	{ "timestamp": 1042, "peripheral": "uart", "event": "tx", "payload": 88 },
//	...
//	]
//	}
//
// written one entry per Write call with no buffering, so a crashed run
// still leaves a readable prefix. Read accepts both complete and
// truncated documents.
package ledger
