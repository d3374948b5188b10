// Package store provides SQLite-backed durable storage for test session and
// fixture run logs.
//
// The store is append-only and holds two kinds of records:
//   - Progress events: the lifecycle signals a test session sent to its
//     control bus, in arrival order
//   - Fixture runs: one row per run with its gas figures, plus one row per
//     failed fixture
//
// Fixtures themselves are never stored; they live only in the engine that
// owns them.
//
// # Ordering
//
// All ordering uses seq INTEGER (logical sequence), never timestamps. Queries
// order by seq ASC, id ASC so reads are deterministic.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout: 5 seconds unless set with WithBusyTimeout
//   - foreign_keys=ON: Enforce referential integrity
package store
