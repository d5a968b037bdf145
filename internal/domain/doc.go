// Package domain defines the core types of the epinet network epidemic engine.
//
// This package contains the value objects and graph structures the simulation
// is built from. It has no knowledge of stepping, persistence or transport.
//
// # Core Types
//
// Compartments holds the susceptible, infected and recovered counts of one
// population and provides clamped arithmetic on them.
//
// DiseaseParameters carries the SIRS rate constants and implements the disease
// model itself: a forward Euler step over the SIRS equations with births and
// deaths, plus the basic and effective reproduction numbers.
//
// City is a population center identified by a CityID.
//
// # Network
//
// Network is a directed adjacency structure over city ids. Each Edge carries a
// distance, the fraction of the origin's population that leaves along it on
// every movement cycle, and the TransitFlow batches currently travelling on it.
// AdjacencyView returns deep copies so that readers can never mutate topology
// or in-flight batches.
//
// # Errors
//
// DuplicateIDError and NotFoundError report caller mistakes while building a
// network. Both match their sentinel values (ErrDuplicateID, ErrNotFound)
// through errors.Is.
package domain
