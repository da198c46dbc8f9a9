// Package stream implements the push channels a presence.Registry talks to:
// Server-Sent Events and WebSocket. Both queue events in a bounded outbox and
// write them from the owning handler goroutine, so a slow client never stalls
// a broadcast pass.
package stream
