package sev

import (
	"errors"
	"fmt"
)

// Error kinds recorded in poll state. Auth failures are fatal until the
// configuration is corrected; network and parse failures are retried by
// the next scheduled poll.
const (
	KindAuth    = "auth"
	KindNetwork = "network"
	KindParse   = "parse"
)

type AuthError struct {
	Status int
	Err    error
}

func (e *AuthError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("authentication rejected: %v", e.Err)
	}
	return fmt.Sprintf("authentication rejected: status %d", e.Status)
}

func (e *AuthError) Unwrap() error { return e.Err }

type NetworkError struct {
	Endpoint string
	Err      error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("request to %s failed: %v", e.Endpoint, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

type ParseError struct {
	Endpoint string
	Err      error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("unexpected response from %s: %v", e.Endpoint, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Kind classifies err into one of the error kind constants,
// or "unknown" for anything outside the client's taxonomy.
func Kind(err error) string {
	var authErr *AuthError
	if errors.As(err, &authErr) {
		return KindAuth
	}
	var netErr *NetworkError
	if errors.As(err, &netErr) {
		return KindNetwork
	}
	var parseErr *ParseError
	if errors.As(err, &parseErr) {
		return KindParse
	}
	return "unknown"
}
