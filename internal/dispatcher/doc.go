// Package dispatcher runs execution requests against session Executors on a
// bounded pool of workers, each request bounded by a wall-clock timeout.
//
// Executors are not assumed to be interruptible. When a request's deadline
// passes while its Executor call is still running, the dispatcher returns a
// timeout result immediately, evicts the session so the next request gets a
// fresh Executor, and abandons the worker to finish (or be killed) on its
// own. A request that times out before a worker picked it up is simply
// dropped from the queue; its session is left alone.
//
// Cancelling the caller's context only stops the caller from waiting. A
// request already running keeps its session and completes, or times out, in
// the background.
//
// Any error from an Executor is a fault: the session's state can no longer be
// trusted, so it is evicted as well.
package dispatcher
