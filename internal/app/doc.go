// Package app wires the codebox service together: configuration, logging,
// engine modules, the session registry, the dispatcher, and the HTTP and
// WebSocket front ends. It owns the process lifecycle, decoupled from any
// specific entrypoint like a CLI.
package app
