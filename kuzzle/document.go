package kuzzle

import (
	"context"
	"encoding/json"

	"github.com/xbill82/kuzzle-sdk-go/types"
)

// Document groups the document controller actions.
type Document struct {
	k *Kuzzle
}

// DocumentResult is the envelope wrapping a stored document.
type DocumentResult struct {
	ID      string          `json:"_id"`
	Version int             `json:"_version"`
	Source  json.RawMessage `json:"_source"`
}

// Create stores a new document. id may be empty: the backend then assigns
// one, returned in the result.
func (c *Document) Create(ctx context.Context, index, collection, id string, content map[string]any) (*DocumentResult, error) {
	if index == "" {
		return nil, types.NewSdkError("document.create", "index argument must not be empty.")
	}
	if collection == "" {
		return nil, types.NewSdkError("document.create", "collection argument must not be empty.")
	}
	req := types.NewRequest("document", "create").
		SetIndex(index).
		SetCollection(collection).
		SetBody(content)
	if id != "" {
		req.AddToQueryStrings("_id", id)
	}
	res, err := c.k.Query(ctx, req, types.NewQueryOptions())
	if err != nil {
		return nil, err
	}
	var doc DocumentResult
	if err := decodeResult(res, &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

// Get fetches a document by id.
func (c *Document) Get(ctx context.Context, index, collection, id string) (*DocumentResult, error) {
	if index == "" {
		return nil, types.NewSdkError("document.get", "index argument must not be empty.")
	}
	if collection == "" {
		return nil, types.NewSdkError("document.get", "collection argument must not be empty.")
	}
	if id == "" {
		return nil, types.NewSdkError("document.get", "id argument must not be empty.")
	}
	req := types.NewRequest("document", "get").
		SetIndex(index).
		SetCollection(collection).
		AddToQueryStrings("_id", id)
	res, err := c.k.Query(ctx, req, types.NewQueryOptions())
	if err != nil {
		return nil, err
	}
	var doc DocumentResult
	if err := decodeResult(res, &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

// Delete removes a document by id and returns the id actually deleted.
func (c *Document) Delete(ctx context.Context, index, collection, id string) (string, error) {
	if index == "" {
		return "", types.NewSdkError("document.delete", "index argument must not be empty.")
	}
	if collection == "" {
		return "", types.NewSdkError("document.delete", "collection argument must not be empty.")
	}
	if id == "" {
		return "", types.NewSdkError("document.delete", "id argument must not be empty.")
	}
	req := types.NewRequest("document", "delete").
		SetIndex(index).
		SetCollection(collection).
		AddToQueryStrings("_id", id)
	res, err := c.k.Query(ctx, req, types.NewQueryOptions())
	if err != nil {
		return "", err
	}
	var result struct {
		ID string `json:"_id"`
	}
	if err := decodeResult(res, &result); err != nil {
		return "", err
	}
	return result.ID, nil
}
