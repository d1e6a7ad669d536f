package router

import "errors"

var (
	// ErrUnknownHandle is returned by Invoke when the remote side does not
	// declare the function.
	ErrUnknownHandle = errors.New("remote does not declare this function")

	// ErrNoResponder is returned by Invoke when the function is declared but
	// nothing answers it.
	ErrNoResponder = errors.New("no responder for function")

	// ErrRemoteFailure is returned by Invoke when the remote responder failed.
	// The remote error text is not carried across the boundary.
	ErrRemoteFailure = errors.New("remote responder failed")

	// ErrMalformed is returned by Invoke when either side could not decode a
	// frame.
	ErrMalformed = errors.New("malformed frame")

	// ErrInvokeTimeout is returned by Invoke when the router's invoke timeout
	// elapses before a reply arrives.
	ErrInvokeTimeout = errors.New("invoke timed out")
)
