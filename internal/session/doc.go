// Package session owns the mapping from caller identity to a live Executor.
//
// A Session is created lazily the first time an identity is seen and lives
// until it is released, evicted after a timeout or fault, reaped for being
// idle, or torn down at shutdown. The Registry guarantees that concurrent
// first requests for one identity construct exactly one Executor, and that
// an eviction aimed at a stale Session never removes its replacement.
//
// Sessions also serialize work: Acquire admits one holder at a time, and a
// discarded Session wakes everyone waiting on it so they can move to a fresh
// one.
package session
