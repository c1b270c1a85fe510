package kuzzle

import (
	"context"

	"github.com/xbill82/kuzzle-sdk-go/types"
)

// Index groups the index controller actions.
type Index struct {
	k *Kuzzle
}

// Create creates a new data index.
func (c *Index) Create(ctx context.Context, index string) error {
	if index == "" {
		return types.NewSdkError("index.create", "index argument must not be empty.")
	}
	req := types.NewRequest("index", "create").SetIndex(index)
	_, err := c.k.Query(ctx, req, types.NewQueryOptions())
	return err
}

// Delete deletes an entire data index.
func (c *Index) Delete(ctx context.Context, index string) error {
	if index == "" {
		return types.NewSdkError("index.delete", "index argument must not be empty.")
	}
	req := types.NewRequest("index", "delete").SetIndex(index)
	_, err := c.k.Query(ctx, req, types.NewQueryOptions())
	return err
}

// Exists checks whether the index exists.
func (c *Index) Exists(ctx context.Context, index string) (bool, error) {
	if index == "" {
		return false, types.NewSdkError("index.exists", "index argument must not be empty.")
	}
	req := types.NewRequest("index", "exists").SetIndex(index)
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

// GetAutoRefresh returns the index's autoRefresh flag. When set, every write
// triggers an immediate Elasticsearch refresh.
func (c *Index) GetAutoRefresh(ctx context.Context, index string) (bool, error) {
	if index == "" {
		return false, types.NewSdkError("index.getAutoRefresh", "index argument must not be empty.")
	}
	req := types.NewRequest("index", "getAutoRefresh").SetIndex(index)
	res, err := c.k.Query(ctx, req, types.NewQueryOptions())
	if err != nil {
		return false, err
	}
	var autoRefresh bool
	if err := decodeResult(res, &autoRefresh); err != nil {
		return false, err
	}
	return autoRefresh, nil
}

// List returns the names of every data index.
func (c *Index) List(ctx context.Context) ([]string, error) {
	req := types.NewRequest("index", "list")
	res, err := c.k.Query(ctx, req, types.NewQueryOptions())
	if err != nil {
		return nil, err
	}
	var result struct {
		Indexes []string `json:"indexes"`
	}
	if err := decodeResult(res, &result); err != nil {
		return nil, err
	}
	return result.Indexes, nil
}

// MDelete deletes several indexes at once and returns the names actually
// deleted.
func (c *Index) MDelete(ctx context.Context, indexes []string) ([]string, error) {
	if len(indexes) == 0 {
		return nil, types.NewSdkError("index.mDelete", "indexes argument must not be empty.")
	}
	req := types.NewRequest("index", "mDelete").AddToBody("indexes", indexes)
	res, err := c.k.Query(ctx, req, types.NewQueryOptions())
	if err != nil {
		return nil, err
	}
	var result struct {
		Deleted []string `json:"deleted"`
	}
	if err := decodeResult(res, &result); err != nil {
		return nil, err
	}
	return result.Deleted, nil
}

// Refresh forces an immediate reindexation of the index. Costly: documents
// written right before become searchable right away, at Elasticsearch's
// expense.
func (c *Index) Refresh(ctx context.Context, index string) error {
	if index == "" {
		return types.NewSdkError("index.refresh", "index argument must not be empty.")
	}
	req := types.NewRequest("index", "refresh").SetIndex(index)
	_, err := c.k.Query(ctx, req, types.NewQueryOptions())
	return err
}

// RefreshInternal forces an immediate reindexation of Kuzzle's internal
// storage (users, profiles, roles).
func (c *Index) RefreshInternal(ctx context.Context) error {
	req := types.NewRequest("index", "refreshInternal")
	_, err := c.k.Query(ctx, req, types.NewQueryOptions())
	return err
}

// SetAutoRefresh changes the index's autoRefresh flag.
func (c *Index) SetAutoRefresh(ctx context.Context, index string, autoRefresh bool) error {
	if index == "" {
		return types.NewSdkError("index.setAutoRefresh", "index argument must not be empty.")
	}
	req := types.NewRequest("index", "setAutoRefresh").
		SetIndex(index).
		AddToBody("autoRefresh", autoRefresh)
	_, err := c.k.Query(ctx, req, types.NewQueryOptions())
	return err
}
