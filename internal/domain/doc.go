// Package domain defines the core types and interfaces shared by the hub,
// the tracker and the adapters.
//
// Files are grouped by concept (connection.go, envelope.go, fleet.go, position.go).
// No infrastructure code lives here, only contracts. Interfaces sit on the
// consumer side to prevent circular imports.
package domain
