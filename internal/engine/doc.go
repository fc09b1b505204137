// Package engine defines the contract between codebox and the interpreters
// that actually run user code.
//
// An Executor is a stateful unit of execution: each session owns exactly one,
// and everything a snippet defines (variables, imports, working directory
// changes) is visible to the next snippet sent to the same Executor. The core
// packages (session, dispatcher) only ever see this interface; concrete
// interpreters live under modules/ and are registered by kind through the
// registry package.
package engine
