// Package board provides the in-tree circuit used for demos and tests, and
// assembles it with the peripheral models into a runnable system.
//
// The Loopback circuit has two independent parts:
//   - an echo wire that feeds the UART receive line back into the UART
//     transmit line, one evaluator step late
//   - a QSPI host that bit-bangs a fixed list of flash transactions, one
//     SPI half period per rising system clock edge, and records the bytes
//     it reads back
package board
