package pergamum

import (
	"errors"
	"fmt"
)

var ErrLoginFailed = errors.New("pergamum: login failed, check the login and password")

// ParseError is returned when an entry of the renewal listing cannot be read,
// the whole listing is rejected when this happens.
type ParseError struct {
	// Entry is the index of the offending li element among all the list's items.
	Entry int
	Field string
	Err   error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("pergamum: parse listing: entry %d: %s: %v", e.Entry, e.Field, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// StatusError is returned when the catalog answers with an HTTP error status.
type StatusError struct {
	Method string
	Url    string
	Status int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("pergamum: %s %s: unexpected status %d", e.Method, e.Url, e.Status)
}
