// Package handler implements the HTTP API of the epinet server.
//
// SimulationHandler exposes the running simulation: snapshots, manual steps,
// resets, pause and resume, per-city queries, movement fraction changes,
// recorded history and snapshot export. Register adds its routes to a
// ServeMux using method and path patterns.
//
// # Response Format
//
// Success responses return JSON. Error responses return JSON with an
// {error, details} structure and a status code derived from the error:
// unknown cities and links are 404, rejected input is 400, a finished run
// is 409 and history without persistence is 503.
//
// Middleware provides panic recovery, CORS and request logging.
package handler
