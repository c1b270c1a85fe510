package middleware

import (
	"context"

	"golang.org/x/time/rate"

	"github.com/xbill82/kuzzle-sdk-go/types"
)

// RateLimit throttles outgoing queries with a token bucket of r tokens per
// second and the given burst. Callers over the budget wait for a token
// instead of failing; cancelling ctx aborts the wait.
func RateLimit(r float64, burst int) Middleware {
	limiter := rate.NewLimiter(rate.Limit(r), burst)
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *types.KuzzleRequest, opts types.QueryOptions) (*types.KuzzleResponse, error) {
			if err := limiter.Wait(ctx); err != nil {
				return nil, err
			}
			return next(ctx, req, opts)
		}
	}
}
