// Package registry tracks which live connections belong to which groups.
//
// Membership is guarded per group and per connection; there is no registry-wide lock.
// Group member lists are copy-on-write, so a Snapshot is a point-in-time view that later
// joins and leaves never change. Unknown groups behave as empty groups.
package registry
