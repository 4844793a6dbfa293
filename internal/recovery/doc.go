// Package recovery implements the staged sector-recovery algorithm: a trial
// scan that partitions the medium into good and suspect runs, an isolation
// pass that narrows suspect runs to the exact bad sectors, and a bounded
// brute-force pass that retries bad sectors individually. The Orchestrator
// sequences the stages over a shared repair map and persists a snapshot after
// each stage so an interrupted run can resume.
package recovery
