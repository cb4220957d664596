// Package panel owns the approval panel runtime.
//
// Ownership boundary:
// - the single Link and its approval Coordinator
// - boot connect and shutdown teardown
// - admin HTTP control surface (link lifecycle, approvals, event stream)
//
// Callers reach the peripheral only through Service; there is no global link.
package panel
