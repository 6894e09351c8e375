// Package client provides the `relay chat` command-line client.
//
// The commands talk to the relay HTTP API and are primarily intended for
// developers poking at a running server from a terminal.
//
// # Address configuration
//
// The HTTP base URL is discovered by the application that embeds the
// commands via a BaseURLFunc. The standalone binary reads RELAY_HTTP and
// defaults to http://127.0.0.1:8080.
//
// Usage
//
//	relay chat join --username alice
//	relay chat send --username alice --message 'hello'
//	relay chat messages --since 0
//	relay chat tail --since 0 --filter 'kind == "message"'
//	relay chat leave --username alice
//	relay chat clear --confirm
//
// Notes
//
//   - tail reads the /stream Server-Sent Events endpoint and prints one
//     line per frame until interrupted or --limit events were printed.
//     Keep-alive pings are hidden unless --pings is set.
//   - send posts to /send with an optional --action (default message).
package client
