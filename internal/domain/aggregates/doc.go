// Package aggregates defines domain-facing aggregate contracts.
//
// Contracts describe write boundaries where attribution invariants must hold
// atomically; persistence details live in internal/data/aggregates.
package aggregates
