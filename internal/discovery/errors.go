package discovery

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// Kind classifies discovery failures for callers that branch on cause.
type Kind string

// Failure kinds.
const (
	KindNetwork Kind = "network"
	KindTimeout Kind = "timeout"
	KindParse   Kind = "parse"
)

// Error wraps a discovery failure with its kind and target site.
type Error struct {
	Kind Kind
	Site string
	Err  error
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("%s error for %s: %v", e.Kind, e.Site, e.Err)
}

// Unwrap exposes the underlying cause.
func (e *Error) Unwrap() error { return e.Err }

// classify wraps err with the most specific kind that fits.
func classify(site string, err error) error {
	kind := KindNetwork
	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		kind = KindTimeout
	case errors.As(err, &netErr) && netErr.Timeout():
		kind = KindTimeout
	}
	return &Error{Kind: kind, Site: site, Err: err}
}

func parseError(site string, err error) error {
	return &Error{Kind: KindParse, Site: site, Err: err}
}
