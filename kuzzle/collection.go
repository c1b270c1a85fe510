package kuzzle

import (
	"context"

	"github.com/xbill82/kuzzle-sdk-go/types"
)

// Collection groups the collection controller actions.
type Collection struct {
	k *Kuzzle
}

// CollectionInfo is one entry of a collection listing.
type CollectionInfo struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// Create creates a collection in the given index, optionally with an
// Elasticsearch mapping. A nil mapping creates an empty collection.
func (c *Collection) Create(ctx context.Context, index, collection string, mapping map[string]any) error {
	if index == "" {
		return types.NewSdkError("collection.create", "index argument must not be empty.")
	}
	if collection == "" {
		return types.NewSdkError("collection.create", "collection argument must not be empty.")
	}
	req := types.NewRequest("collection", "create").
		SetIndex(index).
		SetCollection(collection).
		SetBody(mapping)
	_, err := c.k.Query(ctx, req, types.NewQueryOptions())
	return err
}

// Exists checks whether the collection exists in the given index.
func (c *Collection) Exists(ctx context.Context, index, collection string) (bool, error) {
	if index == "" {
		return false, types.NewSdkError("collection.exists", "index argument must not be empty.")
	}
	if collection == "" {
		return false, types.NewSdkError("collection.exists", "collection argument must not be empty.")
	}
	req := types.NewRequest("collection", "exists").
		SetIndex(index).
		SetCollection(collection)
	res, err := c.k.Query(ctx, req, types.NewQueryOptions())
	if err != nil {
		return false, err
	}
	var exists bool
	if err := decodeResult(res, &exists); err != nil {
		return false, err
	}
	return exists, nil
}

// List returns the collections of the given index, stored and realtime alike.
func (c *Collection) List(ctx context.Context, index string) ([]CollectionInfo, error) {
	if index == "" {
		return nil, types.NewSdkError("collection.list", "index argument must not be empty.")
	}
	req := types.NewRequest("collection", "list").SetIndex(index)
	res, err := c.k.Query(ctx, req, types.NewQueryOptions())
	if err != nil {
		return nil, err
	}
	var result struct {
		Collections []CollectionInfo `json:"collections"`
	}
	if err := decodeResult(res, &result); err != nil {
		return nil, err
	}
	return result.Collections, nil
}
