package client

import "errors"

var (
	// ErrAuthenticationFailed indicates the server rejected the bearer token.
	// Fatal for the session: callers must re-authenticate, never retry.
	ErrAuthenticationFailed = errors.New("client: authentication failed")
	// ErrTransport indicates a connection-level failure. Recovered
	// automatically by the reconnect loop; surfaced to the UI only as a
	// transient indicator.
	ErrTransport = errors.New("client: transport failure")
	// ErrPersistence indicates a failed save call. Surfaced once per attempt
	// and not retried; the next edit naturally reschedules.
	ErrPersistence = errors.New("client: persistence failed")
	// ErrPermissionDenied indicates an edit or share action the caller's
	// effective permission does not allow.
	ErrPermissionDenied = errors.New("client: permission denied")
	// ErrNotConnected indicates a send was attempted without an active
	// connection.
	ErrNotConnected = errors.New("client: not connected")
)
