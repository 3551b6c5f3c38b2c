// Package completion talks to the external text completion service.
package completion

import (
	"context"
	"errors"
)

var (
	ErrRateLimited   = errors.New("completion service rate limited")
	ErrUnavailable   = errors.New("completion service unavailable")
	ErrEmptyResponse = errors.New("completion service returned no content")
)

// Request is one system instruction plus one user payload.
type Request struct {
	System string
	User   string
	// Op labels the call for metrics and logs (e.g. "questions", "transition").
	Op string
}

// Completer returns a single text reply for a request.
type Completer interface {
	Complete(ctx context.Context, req Request) (string, error)
}

// CompleterFunc adapts a function to the Completer interface.
type CompleterFunc func(ctx context.Context, req Request) (string, error)

// Complete implements Completer.
func (f CompleterFunc) Complete(ctx context.Context, req Request) (string, error) {
	return f(ctx, req)
}
