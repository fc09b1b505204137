// Package wsserver implements the duplex session protocol over WebSocket.
//
// Each connection is bound to the session of the X-API-Key it presented and
// moves through a small state machine:
//
//	CONNECTED -> BOUND -> AWAITING <-> DISPATCHING
//	                         \-> CLOSED
//
// Requests on one connection are handled strictly in order. A connection that
// goes away leaves its session in place for the next connection with the same
// key; only an explicit release or an evicting timeout discards it.
package wsserver
