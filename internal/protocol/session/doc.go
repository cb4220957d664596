// Package session owns link reliability policy.
//
// Ownership boundary:
// - connect/read/write timeouts
// - approval timeout (zero waits for ack or link loss)
// - reconnect settle delay, attempt limit and backoff
package session
