// Package repairmap tracks the per-sector classification of a damaged medium
// and persists it in SQLite.
//
// The Map is the single source of truth for sector state during a recovery
// run: every sector is unknown, good, suspect, or bad, transitions are
// monotone per stage, and an invalid transition is a defect in stage logic
// rather than a data condition. The Store persists the map as ordered
// (start, length, state) records under a session row so an interrupted run
// resumes exactly where it stopped.
//
// Treat this package as the single source of truth for classification
// semantics; schema changes bump the version in schema.go and invalidate old
// map databases.
package repairmap
