// Package protocol defines the messages exchanged with codebox clients over
// HTTP and WebSocket, and the one place they are encoded and validated.
//
// WebSocket requests are tagged by their "type" field and decoded into one of
// the Request variants (Execute, Release); anything else is rejected at the
// boundary with ErrUnknownType or ErrMalformed so the connection handler
// never sees a half-valid message.
package protocol
