// Package pcissd simulates the transaction pipeline of a PCIe-attached SSD:
// a serialized host-facing transport layer, an optional device-facing
// transport layer, a single-threaded cooperative event scheduler, and a
// pluggable backing NAND/memory-subsystem collaborator.
//
// A System is the entry point. Construct one with New, register host
// completion callbacks with RegisterCompletion, submit I/O with
// AddTransaction, and drive simulated time forward by calling Update once
// per external (host) clock tick. An optional scatter/gather DMA
// side-channel can be enabled through Config.EnableDMA and wired up with
// RegisterDMA.
package pcissd
