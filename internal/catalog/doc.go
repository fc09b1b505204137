// Package catalog keeps a queryable record of live sessions for operators.
//
// The catalog is fed by the session registry through Observer and only ever
// holds metadata keyed by the SHA-256 digest of the caller identity. It never
// holds interpreter state, and nothing on the request path reads it back. Two
// backends exist: an in-process map and Redis, where each session is a JSON
// value with a TTL refreshed on every use.
package catalog
