// Package codec translates requests and responses to and from the envelopes
// that travel over a protocol connection.
//
// The Kuzzle API uses a flat JSON envelope: the fixed members (requestId,
// controller, action, ...) and the action's own arguments share the top
// level. The codec owns that flattening so the dispatcher and the transports
// only ever deal with typed values:
//
//	{"requestId":"..","controller":"document","action":"get",
//	 "index":"i","collection":"c","_id":"some-id","jwt":".."}
//
// Both directions of both message kinds are covered: the client encodes
// requests and decodes responses, a backend double (kuzzletest) does the
// opposite.
package codec

import "github.com/xbill82/kuzzle-sdk-go/types"

// Codec converts between typed messages and wire bytes. Implementations must
// be safe for concurrent use; JSON is stateless.
type Codec interface {
	EncodeRequest(req *types.KuzzleRequest) ([]byte, error)
	DecodeRequest(data []byte) (*types.KuzzleRequest, error)
	EncodeResponse(res *types.KuzzleResponse) ([]byte, error)
	DecodeResponse(data []byte) (*types.KuzzleResponse, error)

	// Name identifies the codec in logs.
	Name() string
}
