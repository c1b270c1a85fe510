package kuzzle

import (
	"context"
	"strconv"

	"github.com/xbill82/kuzzle-sdk-go/types"
)

// Server groups the server controller actions.
type Server struct {
	k *Kuzzle
}

// AdminExists checks that an administrator account exists.
func (c *Server) AdminExists(ctx context.Context) (bool, error) {
	req := types.NewRequest("server", "adminExists")
	res, err := c.k.Query(ctx, req, types.NewQueryOptions())
	if err != nil {
		return false, err
	}
	var result struct {
		Exists bool `json:"exists"`
	}
	if err := decodeResult(res, &result); err != nil {
		return false, err
	}
	return result.Exists, nil
}

// GetAllStats returns all stored statistics snapshots.
func (c *Server) GetAllStats(ctx context.Context) (map[string]any, error) {
	res, err := c.k.Query(ctx, types.NewRequest("server", "getAllStats"), types.NewQueryOptions())
	if err != nil {
		return nil, err
	}
	return mapResult(res)
}

// GetConfig returns the current Kuzzle configuration. Administrators only:
// the payload may contain sensitive backend information.
func (c *Server) GetConfig(ctx context.Context) (map[string]any, error) {
	res, err := c.k.Query(ctx, types.NewRequest("server", "getConfig"), types.NewQueryOptions())
	if err != nil {
		return nil, err
	}
	return mapResult(res)
}

// GetLastStats returns the most recent statistics snapshot.
func (c *Server) GetLastStats(ctx context.Context) (map[string]any, error) {
	res, err := c.k.Query(ctx, types.NewRequest("server", "getLastStats"), types.NewQueryOptions())
	if err != nil {
		return nil, err
	}
	return mapResult(res)
}

// GetStats returns the statistics snapshots recorded between two Epoch-millis
// timestamps.
func (c *Server) GetStats(ctx context.Context, from, to int64) (map[string]any, error) {
	if len(strconv.FormatInt(from, 10)) != 13 || len(strconv.FormatInt(to, 10)) != 13 {
		return nil, types.NewSdkError("server.getStats",
			"`form` and `to` arguments need to be millis Epoch timestamps (13 digits).")
	}
	req := types.NewRequest("server", "getStats").
		AddToQueryStrings("startTime", from).
		AddToQueryStrings("stopTime", to)
	res, err := c.k.Query(ctx, req, types.NewQueryOptions())
	if err != nil {
		return nil, err
	}
	return mapResult(res)
}

// Info returns the server information: available API, plugins, external
// services.
func (c *Server) Info(ctx context.Context) (map[string]any, error) {
	res, err := c.k.Query(ctx, types.NewRequest("server", "info"), types.NewQueryOptions())
	if err != nil {
		return nil, err
	}
	return mapResult(res)
}

// Now returns the current server timestamp, Epoch-millis.
func (c *Server) Now(ctx context.Context) (int64, error) {
	res, err := c.k.Query(ctx, types.NewRequest("server", "now"), types.NewQueryOptions())
	if err != nil {
		return 0, err
	}
	var result struct {
		Now int64 `json:"now"`
	}
	if err := decodeResult(res, &result); err != nil {
		return 0, err
	}
	return result.Now, nil
}
