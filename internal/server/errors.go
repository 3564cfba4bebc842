package server

import "errors"

var (
	// ErrConnectionClosed is returned by operations attempted on a
	// connection that has already been closed.
	ErrConnectionClosed = errors.New("connection closed")
)
