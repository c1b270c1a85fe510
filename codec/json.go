package codec

import (
	"encoding/json"
	"fmt"

	"github.com/xbill82/kuzzle-sdk-go/types"
)

// envelope members owned by the SDK. Query-string arguments are flattened
// around them and can never override them.
var reservedKeys = map[string]struct{}{
	"requestId":  {},
	"controller": {},
	"action":     {},
	"index":      {},
	"collection": {},
	"body":       {},
	"volatile":   {},
	"jwt":        {},
	"status":     {},
	"error":      {},
	"result":     {},
	"room":       {},
	"channel":    {},
}

// JSON is the standard Kuzzle envelope codec.
type JSON struct{}

func (JSON) Name() string { return "json" }

// EncodeRequest flattens the request into a single JSON object: query-string
// arguments first, then the envelope members on top.
func (JSON) EncodeRequest(req *types.KuzzleRequest) ([]byte, error) {
	env := make(map[string]any, len(req.QueryStrings)+8)
	for k, v := range req.QueryStrings {
		if _, reserved := reservedKeys[k]; reserved {
			return nil, fmt.Errorf("encode request: query string %q collides with an envelope member", k)
		}
		env[k] = v
	}

	env["requestId"] = req.RequestID
	env["controller"] = req.Controller
	env["action"] = req.Action
	if req.Index != "" {
		env["index"] = req.Index
	}
	if req.Collection != "" {
		env["collection"] = req.Collection
	}
	if req.Body != nil {
		env["body"] = req.Body
	}
	if req.Volatile != nil {
		env["volatile"] = req.Volatile
	}
	if req.Jwt != "" {
		env["jwt"] = req.Jwt
	}

	return json.Marshal(env)
}

// DecodeRequest is the inverse of EncodeRequest: envelope members become the
// typed fields, every other top-level member lands in QueryStrings.
func (JSON) DecodeRequest(data []byte) (*types.KuzzleRequest, error) {
	var fixed struct {
		RequestID  string         `json:"requestId"`
		Controller string         `json:"controller"`
		Action     string         `json:"action"`
		Index      string         `json:"index"`
		Collection string         `json:"collection"`
		Body       map[string]any `json:"body"`
		Volatile   map[string]any `json:"volatile"`
		Jwt        string         `json:"jwt"`
	}
	if err := json.Unmarshal(data, &fixed); err != nil {
		return nil, fmt.Errorf("decode request: %w", err)
	}

	var flat map[string]any
	if err := json.Unmarshal(data, &flat); err != nil {
		return nil, fmt.Errorf("decode request: %w", err)
	}

	req := &types.KuzzleRequest{
		RequestID:  fixed.RequestID,
		Controller: fixed.Controller,
		Action:     fixed.Action,
		Index:      fixed.Index,
		Collection: fixed.Collection,
		Body:       fixed.Body,
		Volatile:   fixed.Volatile,
		Jwt:        fixed.Jwt,
	}
	for k, v := range flat {
		if _, reserved := reservedKeys[k]; reserved {
			continue
		}
		req.AddToQueryStrings(k, v)
	}
	return req, nil
}

func (JSON) EncodeResponse(res *types.KuzzleResponse) ([]byte, error) {
	data, err := json.Marshal(res)
	if err != nil {
		return nil, fmt.Errorf("encode response: %w", err)
	}
	return data, nil
}

func (JSON) DecodeResponse(data []byte) (*types.KuzzleResponse, error) {
	var res types.KuzzleResponse
	if err := json.Unmarshal(data, &res); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &res, nil
}
