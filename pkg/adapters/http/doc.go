// Package http exposes an espalier Service as a JSON HTTP API routed with chi.
//
//	GET  /health
//	GET  /info
//	GET  /specs
//	GET  /specs/{spec}
//	GET  /specs/{spec}/graph
//	GET  /entities/{type}?state=&limit=&offset=
//	GET  /entities/{type}/{id}
//	GET  /entities/{type}/{id}/history?limit=&offset=
//	GET  /entities/{type}/{id}/stream                (SSE of state diffs)
//	POST /entities/{type}/{id}/events/{event}        (execute)
//	GET  /entities/{type}/{id}/events/{event}        (dry run)
//
// Errors are reported as {"error": message, "kind": kind} with a status
// derived from domain.KindOf.
package http
