/*
   deacon: a native Go devcontainer orchestrator
   Copyright (C) 2026  The deacon authors

   This program is free software: you can redistribute it and/or modify
   it under the terms of the GNU General Public License as published by
   the Free Software Foundation, either version 3 of the License, or
   (at your option) any later version.

   This program is distributed in the hope that it will be useful,
   but WITHOUT ANY WARRANTY; without even the implied warranty of
   MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
   GNU General Public License for more details.
*/

package ociclient

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Kind enumerates the OCI/registry error taxonomy from spec §7.
type Kind int

const (
	KindOCI Kind = iota
	KindAuthentication
	KindUnauthorized
	KindForbidden
	KindNetwork
)

// Error is a typed OCI-layer error.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string { return e.Err.Error() }
func (e *Error) Unwrap() error { return e.Err }

// retriable reports whether err should be retried per spec §4.3: retry
// network-class and generic registry errors, retry once on 401, never on
// 403/parsing/validation/extraction/IO-decoding errors.
func retriable(err error) bool {
	var ociErr *Error
	if errors.As(err, &ociErr) {
		switch ociErr.Kind {
		case KindForbidden:
			return false
		case KindUnauthorized, KindAuthentication, KindOCI, KindNetwork:
			return true
		}
	}
	return errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) == false && isTransient(err)
}

func isTransient(err error) bool {
	// A conservative default: unknown errors that aren't explicitly tagged
	// are treated as non-retriable (fail fast) except for net-level
	// failures, which the http.Client surfaces as *url.Error wrapping a
	// transient net.Error.
	var netErr interface{ Timeout() bool }
	return errors.As(err, &netErr)
}

// WithRetry wraps op with exponential backoff capped at maxAttempts and a
// single-digit-second ceiling per request, per spec §4.3. A 401 is allowed
// exactly one retry regardless of maxAttempts, to let the caller's bearer
// token get refreshed between the two calls.
func WithRetry(ctx context.Context, maxAttempts int, op func(ctx context.Context) error) error {
	b := backoff.NewExponentialBackOff()
	b.MaxInterval = 8 * time.Second
	b.MaxElapsedTime = 0
	bctx := backoff.WithContext(b, ctx)

	attempts := 0
	unauthorizedRetried := false
	return backoff.Retry(func() error {
		attempts++
		err := op(ctx)
		if err == nil {
			return nil
		}
		var ociErr *Error
		if errors.As(err, &ociErr) && ociErr.Kind == KindUnauthorized {
			if unauthorizedRetried {
				return backoff.Permanent(err)
			}
			unauthorizedRetried = true
			return err
		}
		if attempts >= maxAttempts || !retriable(err) {
			return backoff.Permanent(err)
		}
		return err
	}, bctx)
}

// DefaultRequestTimeout is the default per-request timeout for manifest/tag
// operations (spec §4.3).
const DefaultRequestTimeout = 10 * time.Second

// classifyHTTPStatus maps an HTTP status code to the registry error kind.
func classifyHTTPStatus(status int) Kind {
	switch {
	case status == http.StatusUnauthorized:
		return KindUnauthorized
	case status == http.StatusForbidden:
		return KindForbidden
	default:
		return KindOCI
	}
}
