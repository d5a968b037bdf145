// Package service implements the application layer of epinet.
//
// SimulationService owns the one running simulation and coordinates it with
// the repository, the event bus and the auto-run loop. HTTP handlers, the
// scenario watcher and the loop all go through it, so the engine itself never
// needs to be safe for concurrent use.
//
// # Runs
//
// A run lasts from one reset to the next. Each run gets a fresh id; when
// persistence is enabled every snapshot of the run is recorded under it.
//
// # Event System
//
// Every step publishes an EventSnapshot carrying the new snapshot. Resets,
// pauses, finished runs and edge changes publish their own events. The
// EventBus never blocks: slow subscribers miss events.
package service
