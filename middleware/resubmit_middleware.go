package middleware

import (
	"context"
	"errors"
	"time"

	"github.com/xbill82/kuzzle-sdk-go/types"
)

// Resubmit retries queries that failed on a connection problem, with
// exponential backoff (baseDelay, 2·baseDelay, 4·baseDelay, ...). Only
// ErrNotConnected and ErrConnectionLost are retried: timeouts and backend
// errors mean the request may have been processed, resubmitting those is the
// caller's call.
func Resubmit(maxAttempts int, baseDelay time.Duration) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *types.KuzzleRequest, opts types.QueryOptions) (*types.KuzzleResponse, error) {
			res, err := next(ctx, req, opts)
			for attempt := 0; attempt < maxAttempts; attempt++ {
				if err == nil || !resubmittable(err) {
					return res, err
				}
				select {
				case <-time.After(baseDelay * time.Duration(1<<attempt)):
				case <-ctx.Done():
					return nil, ctx.Err()
				}
				res, err = next(ctx, req, opts)
			}
			return res, err
		}
	}
}

func resubmittable(err error) bool {
	return errors.Is(err, types.ErrNotConnected) || errors.Is(err, types.ErrConnectionLost)
}
