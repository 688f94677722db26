package domain

import "github.com/google/uuid"

// DefaultGroup is the group every bus-tracking client joins.
const DefaultGroup GroupID = "buses"

// ConnectionID uniquely identifies one live duplex channel.
type ConnectionID = uuid.UUID

// GroupID names a set of connections that receive each other's messages.
type GroupID string

func (g GroupID) String() string {
	return string(g)
}

// NewConnectionID returns a random connection identifier.
func NewConnectionID() ConnectionID {
	return uuid.New()
}
