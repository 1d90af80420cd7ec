// Package payload provides the structured value type carried by script
// commands and event log entries.
//
// Payloads are compared structurally: a waiting script command matches an
// emitted event when both payloads are deep-equal. Values have a single
// canonical JSON form (RFC 8785 key order, NFC strings, no HTML escaping)
// so the event log is byte-for-byte reproducible across runs.
//
// Key constraints:
//   - No float types. Numbers are int64 so equality is exact.
//   - Null is a real value (Null{}), never a nil interface inside
//     arrays or objects.
//
// payload imports nothing internal.
package payload
