package storage

// Package storage is the persistence layer for the lifecycle engine.
//
// It exposes a single Store interface with two implementations:
//   - sqlite: the production backend (WAL, embedded migrations)
//   - memory: a transactional in-process backend for tests
