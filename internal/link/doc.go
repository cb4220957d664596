// Package link owns the panel connection lifecycle and byte decoding.
//
// Ownership boundary:
// - LinkState transitions (Disconnected -> Connecting -> Connected -> Closing)
// - the single transport handle
// - the receive loop and its listener handle
// - reconnect with settle delay and backoff
//
// One Link is owned by one long-lived component. The receive loop is the
// only reader of the transport and is bound to one connection generation.
// Every transition out of Connected closes the handle and notifies the
// registered Sink exactly once.
package link
