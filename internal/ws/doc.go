// Package ws implements the real-time delivery core: WebSocket connection
// handling, concurrency-safe connection bookkeeping, and event fan-out.
//
// The package is split along the lifecycle of an event:
//
//   - Handler upgrades inbound HTTP requests, authenticates them, and owns
//     each connection's read loop.
//   - Registry tracks which connections listen on which routing keys and
//     pushes payloads to them.
//   - Dispatcher is the single entry point business logic calls to raise an
//     event; it persists one notification per recipient before any live
//     delivery is attempted.
//
// Live delivery is best effort. The notification store is the system of
// record, so a client that misses a push sees the notification on its next
// query.
package ws
