package middleware

import (
	"context"
	"time"

	"github.com/xbill82/kuzzle-sdk-go/types"
)

// DefaultTimeout gives every query without its own deadline the given one.
// The protocol layer enforces it; a query that already set opts.Timeout is
// left alone.
func DefaultTimeout(d time.Duration) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *types.KuzzleRequest, opts types.QueryOptions) (*types.KuzzleResponse, error) {
			if opts.Timeout == 0 {
				opts = opts.SetTimeout(d)
			}
			return next(ctx, req, opts)
		}
	}
}
