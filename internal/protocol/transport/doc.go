// Package transport owns raw byte I/O with the approval panel peripheral.
//
// Ownership boundary:
// - dialing the fixed peer (RFCOMM on Linux, TCP for serial bridges)
// - send with write timeout
// - receive with read timeout that never blocks indefinitely
// - idempotent close
//
// Transport does not interpret bytes. Decoding belongs to ackwire and
// lifecycle belongs to link.
package transport
