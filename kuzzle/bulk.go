package kuzzle

import (
	"context"
	"encoding/json"

	"github.com/xbill82/kuzzle-sdk-go/types"
)

// Bulk groups the bulk controller actions.
type Bulk struct {
	k *Kuzzle
}

// Import writes a batch of documents in a single round trip. bulkData follows
// the Elasticsearch bulk format: alternating action and source lines.
func (c *Bulk) Import(ctx context.Context, index, collection string, bulkData []map[string]any) (json.RawMessage, error) {
	if index == "" {
		return nil, types.NewSdkError("bulk.import", "index argument must not be empty.")
	}
	if collection == "" {
		return nil, types.NewSdkError("bulk.import", "collection argument must not be empty.")
	}
	req := types.NewRequest("bulk", "import").
		SetIndex(index).
		SetCollection(collection).
		AddToBody("bulkData", bulkData)
	res, err := c.k.Query(ctx, req, types.NewQueryOptions())
	if err != nil {
		return nil, err
	}
	return res.Result, nil
}
