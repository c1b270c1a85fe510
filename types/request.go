// Package types defines the request/response envelope, the error model and
// the client options shared by every protocol and controller of the SDK.
package types

// KuzzleRequest describes one API call. Controller and action select the
// route; everything else is optional and depends on the action. Build one
// with NewRequest and the chainable setters:
//
//	req := types.NewRequest("document", "create").
//		SetIndex("nyc-open-data").
//		SetCollection("yellow-taxi").
//		AddToBody("licence", "B").
//		AddToQueryStrings("_id", "some-id")
//
// A request must be treated as immutable once handed to Query/Send: the
// dispatcher may still read it from other goroutines (offline queue replay,
// request history).
type KuzzleRequest struct {
	// RequestID is the correlation id linking the request to its response.
	// Leave it empty: the dispatcher assigns a UUID before transmitting.
	RequestID  string `json:"requestId,omitempty"`
	Controller string `json:"controller"`
	Action     string `json:"action"`
	Index      string `json:"index,omitempty"`
	Collection string `json:"collection,omitempty"`

	// Body is the action payload, sent as the "body" member of the envelope
	// (or as the HTTP request body).
	Body map[string]any `json:"body,omitempty"`

	// QueryStrings are the flat action arguments. Over HTTP they become URL
	// query parameters (or path placeholders such as :_id); over a realtime
	// connection the codec flattens them into the top level of the envelope.
	QueryStrings map[string]any `json:"-"`

	// Volatile is arbitrary caller metadata echoed back in responses and
	// forwarded to realtime notifications.
	Volatile map[string]any `json:"volatile,omitempty"`

	// Jwt is the authentication token. The client fills it in from its own
	// token when left empty.
	Jwt string `json:"jwt,omitempty"`
}

// NewRequest creates a request for the given controller action.
func NewRequest(controller, action string) *KuzzleRequest {
	return &KuzzleRequest{
		Controller: controller,
		Action:     action,
	}
}

// SetIndex sets the target index.
func (r *KuzzleRequest) SetIndex(index string) *KuzzleRequest {
	r.Index = index
	return r
}

// SetCollection sets the target collection.
func (r *KuzzleRequest) SetCollection(collection string) *KuzzleRequest {
	r.Collection = collection
	return r
}

// SetBody replaces the whole request body.
func (r *KuzzleRequest) SetBody(body map[string]any) *KuzzleRequest {
	r.Body = body
	return r
}

// AddToBody sets one body member.
func (r *KuzzleRequest) AddToBody(key string, value any) *KuzzleRequest {
	if r.Body == nil {
		r.Body = make(map[string]any)
	}
	r.Body[key] = value
	return r
}

// AddToQueryStrings sets one flat argument.
func (r *KuzzleRequest) AddToQueryStrings(key string, value any) *KuzzleRequest {
	if r.QueryStrings == nil {
		r.QueryStrings = make(map[string]any)
	}
	r.QueryStrings[key] = value
	return r
}

// SetVolatile replaces the volatile metadata.
func (r *KuzzleRequest) SetVolatile(volatile map[string]any) *KuzzleRequest {
	r.Volatile = volatile
	return r
}

// SetJwt sets the authentication token for this request only.
func (r *KuzzleRequest) SetJwt(jwt string) *KuzzleRequest {
	r.Jwt = jwt
	return r
}

// Clone returns a deep-enough copy: the maps are copied one level so the
// clone can be amended (fresh request id, injected jwt) without touching the
// original. Values inside the maps are shared.
func (r *KuzzleRequest) Clone() *KuzzleRequest {
	c := *r
	c.Body = copyMap(r.Body)
	c.QueryStrings = copyMap(r.QueryStrings)
	c.Volatile = copyMap(r.Volatile)
	return &c
}

func copyMap(src map[string]any) map[string]any {
	if src == nil {
		return nil
	}
	dst := make(map[string]any, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}
