package domain

import "errors"

// Call lifecycle errors. Callers classify with errors.Is.
var (
	// ErrMediaUnavailable indicates device permission was denied or no device exists.
	ErrMediaUnavailable = errors.New("media unavailable")

	// ErrNegotiation indicates a malformed or mismatched session description or candidate.
	ErrNegotiation = errors.New("negotiation failure")

	// ErrStoreWrite wraps transient write errors from the record store or signaling channel.
	ErrStoreWrite = errors.New("store write failed")

	// ErrStaleTransition indicates the record no longer holds the expected status.
	ErrStaleTransition = errors.New("stale status transition")

	ErrCallNotFound = errors.New("call not found")

	// ErrSessionActive indicates a call is already in progress locally.
	ErrSessionActive = errors.New("call already in progress")

	ErrNoIncomingCall = errors.New("no incoming call with this id")

	// ErrCallNotRinging indicates the call reached another status before it could be accepted.
	ErrCallNotRinging = errors.New("call is no longer ringing")

	// ErrGlareLost indicates the peer called us at the same time and their call takes precedence.
	ErrGlareLost = errors.New("peer is already calling")

	ErrInvalidArgument = errors.New("invalid argument")
)
