// Package middleware provides query interceptors for the Kuzzle client.
//
// A middleware wraps the send path of the client: it can observe, retry,
// throttle or amend a request before the protocol transmits it. Chain
// composes them in the onion model:
//
//	Chain(A, B, C)(send) → A(B(C(send)))
//	Execution order: A.before → B.before → C.before → send → C.after → B.after → A.after
package middleware

import (
	"context"

	"github.com/xbill82/kuzzle-sdk-go/types"
)

// HandlerFunc is the send path a middleware wraps. The innermost handler is
// the protocol's Send.
type HandlerFunc func(ctx context.Context, req *types.KuzzleRequest, opts types.QueryOptions) (*types.KuzzleResponse, error)

// Middleware decorates a handler with one concern.
type Middleware func(next HandlerFunc) HandlerFunc

// Chain combines middlewares into one, applied in the order given.
func Chain(middlewares ...Middleware) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		for i := len(middlewares) - 1; i >= 0; i-- {
			next = middlewares[i](next)
		}
		return next
	}
}
