// Package websocket attaches gorilla WebSocket connections to the broadcast
// hub: upgrade and origin checks, the read pump, keepalive pings, and the idle
// timeout.
package websocket
