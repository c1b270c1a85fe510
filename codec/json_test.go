package codec

import (
	"encoding/json"
	"testing"

	"github.com/xbill82/kuzzle-sdk-go/types"
)

func TestEncodeRequestFlattensQueryStrings(t *testing.T) {
	c := JSON{}

	req := types.NewRequest("server", "getStats").
		AddToQueryStrings("startTime", 1550439618398).
		AddToQueryStrings("stopTime", 1550436918273)
	req.RequestID = "req-1"
	req.Jwt = "token"

	data, err := c.EncodeRequest(req)
	if err != nil {
		t.Fatal(err)
	}

	var env map[string]any
	if err := json.Unmarshal(data, &env); err != nil {
		t.Fatal(err)
	}

	if env["requestId"] != "req-1" || env["controller"] != "server" || env["action"] != "getStats" {
		t.Fatalf("envelope members wrong: %v", env)
	}
	if env["jwt"] != "token" {
		t.Fatalf("jwt not carried: %v", env)
	}
	// Query strings live at the top level, not under a nested key.
	if _, ok := env["startTime"]; !ok {
		t.Fatalf("query strings not flattened: %v", env)
	}
	// Unset optional members are omitted entirely.
	if _, ok := env["index"]; ok {
		t.Fatalf("empty index should be omitted: %v", env)
	}
	if _, ok := env["body"]; ok {
		t.Fatalf("nil body should be omitted: %v", env)
	}
}

func TestEncodeRequestRejectsReservedCollision(t *testing.T) {
	c := JSON{}

	req := types.NewRequest("index", "create").
		AddToQueryStrings("controller", "evil")

	if _, err := c.EncodeRequest(req); err == nil {
		t.Fatal("expect error when a query string collides with an envelope member")
	}
}

func TestDecodeRequestRoundTrip(t *testing.T) {
	c := JSON{}

	orig := types.NewRequest("document", "get").
		SetIndex("nyc-open-data").
		SetCollection("yellow-taxi").
		AddToQueryStrings("_id", "some-id").
		AddToBody("nested", map[string]any{"k": "v"})
	orig.RequestID = "req-2"

	data, err := c.EncodeRequest(orig)
	if err != nil {
		t.Fatal(err)
	}
	back, err := c.DecodeRequest(data)
	if err != nil {
		t.Fatal(err)
	}

	if back.RequestID != "req-2" || back.Controller != "document" || back.Action != "get" {
		t.Fatalf("envelope members lost: %+v", back)
	}
	if back.Index != "nyc-open-data" || back.Collection != "yellow-taxi" {
		t.Fatalf("index/collection lost: %+v", back)
	}
	if back.QueryStrings["_id"] != "some-id" {
		t.Fatalf("query strings lost: %v", back.QueryStrings)
	}
	if back.Body == nil {
		t.Fatal("body lost")
	}
}

func TestDecodeResponse(t *testing.T) {
	c := JSON{}

	raw := []byte(`{
		"requestId": "da9040aa-9529-4fb9-b627-a38736321364",
		"status": 200,
		"error": null,
		"controller": "index",
		"action": "create",
		"index": "ferris_index",
		"result": {"acknowledged": true}
	}`)

	res, err := c.DecodeResponse(raw)
	if err != nil {
		t.Fatal(err)
	}
	if res.RequestID != "da9040aa-9529-4fb9-b627-a38736321364" {
		t.Fatalf("requestId lost: %s", res.RequestID)
	}
	if res.Status != 200 || res.Error != nil {
		t.Fatalf("status/error wrong: %d %v", res.Status, res.Error)
	}
	if string(res.Result) == "" {
		t.Fatal("result lost")
	}
}

func TestDecodeResponseWithError(t *testing.T) {
	c := JSON{}

	raw := []byte(`{
		"requestId": "r",
		"status": 400,
		"error": {"status": 400, "message": "already exists"}
	}`)

	res, err := c.DecodeResponse(raw)
	if err != nil {
		t.Fatal(err)
	}
	if res.Error == nil {
		t.Fatal("error payload lost")
	}
	if res.Error.Name() != "BadRequestError" {
		t.Fatalf("expect BadRequestError, got %s", res.Error.Name())
	}
}

func TestDecodeResponseMalformed(t *testing.T) {
	c := JSON{}
	if _, err := c.DecodeResponse([]byte("not json at all")); err == nil {
		t.Fatal("expect error for malformed frame")
	}
}

func TestDecodeResponseNotification(t *testing.T) {
	c := JSON{}

	raw := []byte(`{
		"status": 200,
		"controller": "realtime",
		"action": "publish",
		"room": "room-1",
		"channel": "channel-1",
		"result": {"_source": {"hello": "world"}}
	}`)

	res, err := c.DecodeResponse(raw)
	if err != nil {
		t.Fatal(err)
	}
	if res.RoomID != "room-1" || res.Channel != "channel-1" {
		t.Fatalf("room/channel lost: %+v", res)
	}
	if res.RequestID != "" {
		t.Fatalf("notification should have no requestId, got %q", res.RequestID)
	}
}
