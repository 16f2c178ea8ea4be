package core

import "errors"

var (
	// ErrRelayFull is returned by Accept when the connection cap is reached.
	ErrRelayFull = errors.New("relay is at capacity")
	// ErrConnClosed is returned when an operation targets a connection that is no longer open.
	ErrConnClosed = errors.New("connection closed")
)
