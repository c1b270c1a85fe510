package http

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/xbill82/kuzzle-sdk-go/types"
)

// Route binds one controller action to its HTTP representation.
type Route struct {
	Verb string `json:"verb"`
	URL  string `json:"url"`
}

// Routes maps controller → action → route. The URL templates carry
// placeholder segments (:index, :collection, :_id, ...) expanded from the
// request before dispatch.
type Routes map[string]map[string]Route

// Get looks a route up.
func (r Routes) Get(controller, action string) (Route, bool) {
	actions, ok := r[controller]
	if !ok {
		return Route{}, false
	}
	route, ok := actions[action]
	return route, ok
}

// merge overlays other on top of r, controller action by controller action.
func (r Routes) merge(other Routes) {
	for controller, actions := range other {
		if r[controller] == nil {
			r[controller] = make(map[string]Route, len(actions))
		}
		for action, route := range actions {
			route.Verb = strings.ToUpper(route.Verb)
			r[controller][action] = route
		}
	}
}

// DefaultRoutes returns the route table of the Kuzzle HTTP API, covering
// every action the controllers expose. Realtime subscriptions have no HTTP
// route: they need a persistent connection.
func DefaultRoutes() Routes {
	return Routes{
		"auth": {
			"login":  {Verb: "POST", URL: "/_login/:strategy"},
			"logout": {Verb: "POST", URL: "/_logout"},
		},
		"bulk": {
			"import": {Verb: "POST", URL: "/:index/:collection/_bulk"},
		},
		"collection": {
			"create": {Verb: "PUT", URL: "/:index/:collection"},
			"exists": {Verb: "GET", URL: "/:index/:collection/_exists"},
			"list":   {Verb: "GET", URL: "/:index/_list"},
		},
		"document": {
			"create": {Verb: "POST", URL: "/:index/:collection/_create"},
			"delete": {Verb: "DELETE", URL: "/:index/:collection/:_id"},
			"get":    {Verb: "GET", URL: "/:index/:collection/:_id"},
		},
		"index": {
			"create":          {Verb: "POST", URL: "/:index/_create"},
			"delete":          {Verb: "DELETE", URL: "/:index"},
			"exists":          {Verb: "GET", URL: "/:index/_exists"},
			"getAutoRefresh":  {Verb: "GET", URL: "/:index/_autoRefresh"},
			"list":            {Verb: "GET", URL: "/_list"},
			"mDelete":         {Verb: "DELETE", URL: "/_mdelete"},
			"refresh":         {Verb: "POST", URL: "/:index/_refresh"},
			"refreshInternal": {Verb: "POST", URL: "/_refreshInternal"},
			"setAutoRefresh":  {Verb: "POST", URL: "/:index/_autoRefresh"},
		},
		"ms": {
			"del": {Verb: "DELETE", URL: "/ms/_del"},
			"get": {Verb: "GET", URL: "/ms/_get/:_id"},
			"set": {Verb: "POST", URL: "/ms/_set/:_id"},
		},
		"realtime": {
			"publish": {Verb: "POST", URL: "/:index/:collection/_publish"},
		},
		"security": {
			"createCredentials": {Verb: "POST", URL: "/credentials/:strategy/:_id/_create"},
		},
		"server": {
			"adminExists":  {Verb: "GET", URL: "/_adminExists"},
			"getAllStats":  {Verb: "GET", URL: "/_getAllStats"},
			"getConfig":    {Verb: "GET", URL: "/_getConfig"},
			"getLastStats": {Verb: "GET", URL: "/_getLastStats"},
			"getStats":     {Verb: "GET", URL: "/_getStats"},
			"info":         {Verb: "GET", URL: "/_serverInfo"},
			"now":          {Verb: "GET", URL: "/_now"},
		},
	}
}

// LoadRoutes returns the default table overlaid with the routes of a JSON
// file, so deployments exposing custom or plugin routes can describe them:
//
//	{"index": {"create": {"verb": "POST", "url": "/:index/_create"}}}
func LoadRoutes(path string) (Routes, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read routes file: %w", err)
	}
	var overrides Routes
	if err := json.Unmarshal(data, &overrides); err != nil {
		return nil, fmt.Errorf("parse routes file %s: %w", path, err)
	}

	routes := DefaultRoutes()
	routes.merge(overrides)
	return routes, nil
}

// expand substitutes the URL template's placeholder segments from the
// request. :index and :collection come from the envelope fields; any other
// placeholder is consumed from QueryStrings (r must be a private clone). The
// remaining query strings are the caller's URL parameters.
func (route Route) expand(r *types.KuzzleRequest) (string, error) {
	segments := strings.Split(route.URL, "/")
	for i, seg := range segments {
		if !strings.HasPrefix(seg, ":") {
			continue
		}
		name := seg[1:]

		var value string
		switch name {
		case "index":
			value = r.Index
		case "collection":
			value = r.Collection
		default:
			if v, ok := r.QueryStrings[name]; ok {
				value = fmt.Sprint(v)
				delete(r.QueryStrings, name)
			}
		}
		if value == "" {
			return "", fmt.Errorf("route %s %s: no value for %s", route.Verb, route.URL, seg)
		}
		segments[i] = value
	}
	return strings.Join(segments, "/"), nil
}
