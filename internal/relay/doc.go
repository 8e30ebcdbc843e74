// Package relay implements the connection registry, heartbeat eviction,
// and broadcast fan-out using the actor pattern.
//
// One Hub per listener group. Uses single goroutine + command channel (no
// mutexes): the run loop owns the registry, so a heartbeat sweep or a
// fan-out completes as one atomic pass relative to every other event.
// Per-connection write goroutines handle slow clients gracefully.
package relay
