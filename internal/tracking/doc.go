// Package tracking keeps the latest reported position of every bus.
//
// The Tracker observes messages published through the hub and picks out
// BUS_LOCATION_UPDATE payloads. Position history is not kept: each bus has
// a single entry that expires after a TTL.
package tracking
