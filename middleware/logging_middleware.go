package middleware

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/xbill82/kuzzle-sdk-go/types"
)

// Logging logs every query with its action, duration and outcome.
func Logging(log *logrus.Logger) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *types.KuzzleRequest, opts types.QueryOptions) (*types.KuzzleResponse, error) {
			start := time.Now()
			res, err := next(ctx, req, opts)

			fields := logrus.Fields{
				"action":   req.Controller + "." + req.Action,
				"duration": time.Since(start).String(),
			}
			switch {
			case err != nil:
				log.WithFields(fields).WithError(err).Warn("query failed")
			case res.Error != nil:
				log.WithFields(fields).WithField("status", res.Status).Warn("query rejected by backend")
			default:
				log.WithFields(fields).Debug("query resolved")
			}
			return res, err
		}
	}
}
