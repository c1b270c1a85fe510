// Package kuzzletest provides an in-process Kuzzle double for tests.
//
// It answers both transports from one listener: websocket upgrades are served
// as full-duplex envelope streams, anything else is reverse-routed through the
// HTTP route table. Tests install handlers per controller action and inspect
// every request the double received.
//
// Request processing pipeline (websocket side):
//
//	Upgrade → readLoop (single goroutine reads frames)
//	  → for each frame: go serve (parallel processing, per-conn write lock)
//	    → Decode → handler lookup → Encode → write response
package kuzzletest

import (
	"encoding/json"
	"io"
	nethttp "net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	gws "github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/xbill82/kuzzle-sdk-go/codec"
	"github.com/xbill82/kuzzle-sdk-go/endpoints"
	kuzzlehttp "github.com/xbill82/kuzzle-sdk-go/protocol/http"
	"github.com/xbill82/kuzzle-sdk-go/types"
)

// Handler answers one request. Returning nil produces the default
// acknowledgment.
type Handler func(req *types.KuzzleRequest) *types.KuzzleResponse

// Server is the test double. Create one with NewServer, point a client at
// ClientOptions(), and Close it when done.
type Server struct {
	srv      *httptest.Server
	upgrader gws.Upgrader
	cdc      codec.Codec
	routes   []reverseRoute

	mu       sync.Mutex
	handlers map[string]Handler
	conns    map[*wsConn]struct{}
	received []*types.KuzzleRequest
}

// wsConn pairs one websocket connection with its write lock: frames from
// concurrent handlers must not interleave.
type wsConn struct {
	ws *gws.Conn
	mu sync.Mutex
}

func (c *wsConn) write(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ws.WriteMessage(gws.TextMessage, data)
}

// NewServer starts the double on a random local port.
func NewServer() *Server {
	s := &Server{
		upgrader: gws.Upgrader{CheckOrigin: func(*nethttp.Request) bool { return true }},
		cdc:      codec.JSON{},
		routes:   buildReverseRoutes(),
		handlers: make(map[string]Handler),
		conns:    make(map[*wsConn]struct{}),
	}
	s.srv = httptest.NewServer(nethttp.HandlerFunc(s.route))
	return s
}

// Handle installs the handler for one controller action.
func (s *Server) Handle(controller, action string, h Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[controller+"."+action] = h
}

// Received returns every request the double has seen, in arrival order.
func (s *Server) Received() []*types.KuzzleRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*types.KuzzleRequest(nil), s.received...)
}

// Endpoint returns the double's address as a cluster node.
func (s *Server) Endpoint() endpoints.Endpoint {
	host, portStr, _ := strings.Cut(s.srv.Listener.Addr().String(), ":")
	port, _ := strconv.Atoi(portStr)
	return endpoints.Endpoint{Host: host, Port: port}
}

// URL returns the double's base http:// URL.
func (s *Server) URL() string { return s.srv.URL }

// ClientOptions returns options pointing a client at this double, with quiet
// logging and test-friendly reconnection pacing.
func (s *Server) ClientOptions() *types.Options {
	node := s.Endpoint()
	log := logrus.New()
	log.SetOutput(io.Discard)
	return types.NewOptions(node.Host, node.Port).
		SetLogger(log).
		SetReconnectionDelay(10 * time.Millisecond).
		SetReplayInterval(time.Millisecond)
}

// Push delivers a notification on the given subscription channel to every
// live websocket connection.
func (s *Server) Push(channel string, res *types.KuzzleResponse) error {
	out := *res
	out.Channel = channel
	if out.Status == 0 {
		out.Status = 200
	}
	data, err := s.cdc.EncodeResponse(&out)
	if err != nil {
		return err
	}

	s.mu.Lock()
	conns := make([]*wsConn, 0, len(s.conns))
	for c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	for _, c := range conns {
		if err := c.write(data); err != nil {
			return err
		}
	}
	return nil
}

// DropConnections kills every live websocket connection without a close
// handshake, the way a crashed node would.
func (s *Server) DropConnections() {
	s.mu.Lock()
	conns := make([]*wsConn, 0, len(s.conns))
	for c := range s.conns {
		conns = append(conns, c)
	}
	s.conns = make(map[*wsConn]struct{})
	s.mu.Unlock()

	for _, c := range conns {
		c.ws.UnderlyingConn().Close()
	}
}

// Close shuts the double down, dropping live connections first.
func (s *Server) Close() {
	s.DropConnections()
	s.srv.Close()
}

func (s *Server) route(w nethttp.ResponseWriter, r *nethttp.Request) {
	if gws.IsWebSocketUpgrade(r) {
		s.serveWS(w, r)
		return
	}
	s.serveHTTP(w, r)
}

// serveWS upgrades and runs the read loop. Frames are served in parallel;
// the per-connection write lock keeps responses whole.
func (s *Server) serveWS(w nethttp.ResponseWriter, r *nethttp.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	conn := &wsConn{ws: ws}

	s.mu.Lock()
	s.conns[conn] = struct{}{}
	s.mu.Unlock()

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			break
		}
		req, err := s.cdc.DecodeRequest(data)
		if err != nil {
			continue
		}
		go s.serve(conn, req)
	}

	s.mu.Lock()
	delete(s.conns, conn)
	s.mu.Unlock()
	ws.Close()
}

func (s *Server) serve(conn *wsConn, req *types.KuzzleRequest) {
	res := s.dispatch(req)
	data, err := s.cdc.EncodeResponse(res)
	if err != nil {
		return
	}
	conn.write(data)
}

// dispatch records the request and runs the installed handler, falling back
// to the built-in defaults. The response envelope is completed with the
// request's correlation id and controller/action.
func (s *Server) dispatch(req *types.KuzzleRequest) *types.KuzzleResponse {
	s.mu.Lock()
	s.received = append(s.received, req)
	h := s.handlers[req.Controller+"."+req.Action]
	s.mu.Unlock()

	var res *types.KuzzleResponse
	if h != nil {
		res = h(req)
	}
	if res == nil {
		res = s.defaultResponse(req)
	}

	if res.RequestID == "" {
		res.RequestID = req.RequestID
	}
	if res.Controller == "" {
		res.Controller = req.Controller
	}
	if res.Action == "" {
		res.Action = req.Action
	}
	if res.Status == 0 {
		if res.Error != nil {
			res.Status = res.Error.Status
		} else {
			res.Status = 200
		}
	}
	if res.Volatile == nil {
		res.Volatile = req.Volatile
	}
	return res
}

func (s *Server) defaultResponse(req *types.KuzzleRequest) *types.KuzzleResponse {
	switch req.Controller + "." + req.Action {
	case "realtime.subscribe":
		roomID := uuid.NewString()
		result, _ := json.Marshal(map[string]string{
			"roomId":  roomID,
			"channel": roomID + "-" + uuid.NewString()[:8],
		})
		return &types.KuzzleResponse{Status: 200, RoomID: roomID, Result: result}
	case "realtime.unsubscribe":
		return &types.KuzzleResponse{Status: 200, Result: json.RawMessage(`{}`)}
	case "server.now":
		result, _ := json.Marshal(map[string]int64{"now": time.Now().UnixMilli()})
		return &types.KuzzleResponse{Status: 200, Result: result}
	default:
		return &types.KuzzleResponse{Status: 200, Result: json.RawMessage(`{"acknowledged":true}`)}
	}
}

// reverseRoute is one HTTP route flattened for matching.
type reverseRoute struct {
	controller string
	action     string
	verb       string
	segs       []string
}

func literalSegments(segs []string) int {
	n := 0
	for _, s := range segs {
		if !strings.HasPrefix(s, ":") {
			n++
		}
	}
	return n
}

// buildReverseRoutes flattens the client's route table and orders it so the
// most specific template wins: /:index/:collection/_exists must be tried
// before /:index/:collection/:_id.
func buildReverseRoutes() []reverseRoute {
	var routes []reverseRoute
	for controller, actions := range kuzzlehttp.DefaultRoutes() {
		for action, route := range actions {
			routes = append(routes, reverseRoute{
				controller: controller,
				action:     action,
				verb:       route.Verb,
				segs:       strings.Split(strings.Trim(route.URL, "/"), "/"),
			})
		}
	}
	sort.SliceStable(routes, func(i, j int) bool {
		return literalSegments(routes[i].segs) > literalSegments(routes[j].segs)
	})
	return routes
}

func (rt reverseRoute) match(method string, segs []string) (map[string]string, bool) {
	if rt.verb != method || len(rt.segs) != len(segs) {
		return nil, false
	}
	caps := make(map[string]string)
	for i, tmpl := range rt.segs {
		if strings.HasPrefix(tmpl, ":") {
			caps[tmpl[1:]] = segs[i]
			continue
		}
		if tmpl != segs[i] {
			return nil, false
		}
	}
	return caps, true
}

// serveHTTP reverse-routes the request: verb+path identify the controller
// action, captured placeholders and query parameters rebuild the envelope.
func (s *Server) serveHTTP(w nethttp.ResponseWriter, r *nethttp.Request) {
	segs := strings.Split(strings.Trim(r.URL.Path, "/"), "/")

	var req *types.KuzzleRequest
	for _, rt := range s.routes {
		caps, ok := rt.match(r.Method, segs)
		if !ok {
			continue
		}
		req = types.NewRequest(rt.controller, rt.action)
		for name, value := range caps {
			switch name {
			case "index":
				req.SetIndex(value)
			case "collection":
				req.SetCollection(value)
			default:
				req.AddToQueryStrings(name, value)
			}
		}
		break
	}
	if req == nil {
		w.WriteHeader(nethttp.StatusNotFound)
		json.NewEncoder(w).Encode(&types.KuzzleResponse{
			Status: 404,
			Error:  types.NewKuzzleError(404, "no route for "+r.Method+" "+r.URL.Path),
		})
		return
	}

	for key, values := range r.URL.Query() {
		req.AddToQueryStrings(key, values[0])
	}
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		req.SetJwt(strings.TrimPrefix(auth, "Bearer "))
	}
	if vol := r.Header.Get("X-Kuzzle-Volatile"); vol != "" {
		var volatile map[string]any
		if err := json.Unmarshal([]byte(vol), &volatile); err == nil {
			req.SetVolatile(volatile)
		}
	}
	if r.Body != nil {
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err == nil {
			req.SetBody(body)
		}
	}

	res := s.dispatch(req)
	w.Header().Set("Content-Type", "application/json")
	if res.Status != 0 {
		w.WriteHeader(res.Status)
	}
	json.NewEncoder(w).Encode(res)
}
