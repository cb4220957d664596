// Package approval serializes panel approval requests.
//
// Ownership boundary:
// - at most one PendingRequest; a second request is rejected, never queued
// - starting (or reusing) the single link listener
// - resolving the pending request on ack, link loss or optional timeout
// - fan-out of outcome events to subscribers without blocking the caller
package approval
