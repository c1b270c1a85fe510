package kuzzle

import (
	"context"
	"encoding/json"

	"github.com/xbill82/kuzzle-sdk-go/types"
)

// Security groups the security controller actions.
type Security struct {
	k *Kuzzle
}

// CreateCredentials registers credentials of the given strategy for an
// existing user.
func (c *Security) CreateCredentials(ctx context.Context, strategy, id string, credentials map[string]any) (json.RawMessage, error) {
	if strategy == "" {
		return nil, types.NewSdkError("security.createCredentials", "strategy argument must not be empty.")
	}
	if id == "" {
		return nil, types.NewSdkError("security.createCredentials", "id argument must not be empty.")
	}
	req := types.NewRequest("security", "createCredentials").
		SetBody(credentials).
		AddToQueryStrings("strategy", strategy).
		AddToQueryStrings("_id", id)
	res, err := c.k.Query(ctx, req, types.NewQueryOptions())
	if err != nil {
		return nil, err
	}
	return res.Result, nil
}
