// Package testsupport provides shared helpers for tests: canned
// configurations, a scripted in-memory sector medium, and store fixtures.
package testsupport
