package kuzzle

import (
	"context"

	"github.com/xbill82/kuzzle-sdk-go/types"
)

// MemoryStorage groups the ms controller actions, a thin facade over the
// backend's Redis instance.
type MemoryStorage struct {
	k *Kuzzle
}

// Get returns the value of the given key.
func (c *MemoryStorage) Get(ctx context.Context, key string) (string, error) {
	if key == "" {
		return "", types.NewSdkError("ms.get", "key argument must not be empty.")
	}
	req := types.NewRequest("ms", "get").AddToQueryStrings("_id", key)
	res, err := c.k.Query(ctx, req, types.NewQueryOptions())
	if err != nil {
		return "", err
	}
	var value string
	if err := decodeResult(res, &value); err != nil {
		return "", err
	}
	return value, nil
}

// Set stores a key/value pair.
func (c *MemoryStorage) Set(ctx context.Context, key string, value any) error {
	if key == "" {
		return types.NewSdkError("ms.set", "key argument must not be empty.")
	}
	req := types.NewRequest("ms", "set").
		AddToQueryStrings("_id", key).
		AddToBody("value", value)
	_, err := c.k.Query(ctx, req, types.NewQueryOptions())
	return err
}

// Del removes the given keys and returns how many actually existed.
func (c *MemoryStorage) Del(ctx context.Context, keys []string) (int64, error) {
	if len(keys) == 0 {
		return 0, types.NewSdkError("ms.del", "keys argument must not be empty.")
	}
	req := types.NewRequest("ms", "del").AddToBody("keys", keys)
	res, err := c.k.Query(ctx, req, types.NewQueryOptions())
	if err != nil {
		return 0, err
	}
	var count int64
	if err := decodeResult(res, &count); err != nil {
		return 0, err
	}
	return count, nil
}
