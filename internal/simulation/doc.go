// Package simulation runs the network epidemic engine.
//
// System owns the cities, the transit network and the disease parameters of a
// run. Each call to Step advances simulated time by dt in a fixed order:
// in-flight batches age, batches that completed their journey are delivered,
// a movement cycle extracts new batches if the movement interval has elapsed,
// and finally every city is integrated with the SIRS model.
//
// Driver wraps a System, counts ticks and hands a deep-copied Snapshot to every
// registered Observer after each step.
//
// Nothing in this package is safe for concurrent use; callers that step from
// several goroutines must serialize access themselves.
package simulation
