// Package broadcast implements the group broadcast hub.
//
// Every accepted connection gets a bounded outbox and one delivery goroutine
// that drains it to the transport. Publish snapshots the target group and
// enqueues the payload on each member without waiting for delivery, so a
// slow or dead client never holds up the publisher or its peers. A full
// outbox discards its oldest message to make room for the newest.
package broadcast
