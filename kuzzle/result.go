package kuzzle

import (
	"encoding/json"
	"fmt"

	"github.com/xbill82/kuzzle-sdk-go/types"
)

// decodeResult unmarshals the raw result payload into a typed value. A
// payload that does not match what the action documents is a protocol
// error, not a backend one.
func decodeResult(res *types.KuzzleResponse, into any) error {
	if err := json.Unmarshal(res.Result, into); err != nil {
		return fmt.Errorf("%s.%s: unexpected result %q: %w",
			res.Controller, res.Action, res.Result, types.ErrProtocol)
	}
	return nil
}

// mapResult returns the result payload as a generic object, for actions
// whose result shape is deployment-defined (server stats, configuration).
func mapResult(res *types.KuzzleResponse) (map[string]any, error) {
	var m map[string]any
	if err := decodeResult(res, &m); err != nil {
		return nil, err
	}
	return m, nil
}
