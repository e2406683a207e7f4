// Package statusapi serves the sync status over HTTP.
//
//	GET  /status         current state, last sync, pending count and recent messages
//	GET  /pending        pending record count
//	POST /sync           run a commit cycle now (409 while one is in flight)
//	GET  /status/stream  WebSocket feed of status transitions
package statusapi
