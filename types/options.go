package types

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/xbill82/kuzzle-sdk-go/endpoints"
)

// OfflineMode selects what happens to requests issued while the connection
// is down.
type OfflineMode int

const (
	// OfflineModeManual — nothing is queued unless StartQueuing was called.
	OfflineModeManual OfflineMode = iota
	// OfflineModeAuto — queuing starts by itself whenever the connection
	// drops (equivalent to AutoQueue).
	OfflineModeAuto
)

// Defaults applied by NewOptions.
const (
	DefaultHost              = "localhost"
	DefaultPort              = 7512
	DefaultQueueMaxSize      = 500
	DefaultQueueTTL          = 120 * time.Second
	DefaultReconnectionDelay = time.Second
	DefaultReplayInterval    = 10 * time.Millisecond
)

// Options configure a protocol instance and the client built on top of it.
// Create them with NewOptions and amend with the chainable setters:
//
//	opts := types.NewOptions("kuzzle.example.com", 7512).
//		SetSslConnection(true).
//		SetAutoQueue(true).
//		SetQueueTTL(time.Minute)
//
// Replaying the offline queue is never automatic: PlayQueue must be called
// explicitly, ReplayInterval only paces that drain.
type Options struct {
	// Host and Port locate the Kuzzle node to dial when Nodes is empty.
	Host string
	Port int
	// SslConnection switches to wss:// (or https:// for the HTTP protocol).
	SslConnection bool

	// Nodes lists the cluster nodes the transport rotates through on
	// (re)connection. Empty means the single Host:Port above.
	Nodes []endpoints.Endpoint
	// Picker selects the node dialed on each attempt. Nil defaults to
	// round-robin.
	Picker endpoints.Picker
	// DiscoveryEndpoints enables etcd-based node discovery when non-empty:
	// the transport watches DiscoveryPrefix and folds published nodes into
	// its rotation. DiscoveryPrefix empty means endpoints.DefaultDiscoveryPrefix.
	DiscoveryEndpoints []string
	DiscoveryPrefix    string

	// AutoQueue queues queuable requests while disconnected instead of
	// failing them.
	AutoQueue bool
	// AutoReconnect redials after a connection loss, every ReconnectionDelay.
	AutoReconnect bool
	// AutoResubscribe re-issues realtime subscriptions after a reconnection.
	AutoResubscribe bool
	OfflineMode     OfflineMode

	QueueMaxSize      int
	QueueTTL          time.Duration
	ReconnectionDelay time.Duration
	ReplayInterval    time.Duration

	// Logger receives the SDK's structured logs. NewOptions installs a
	// warn-level logger; set your own to change level or output.
	Logger *logrus.Logger
	// MetricsRegisterer, when non-nil, gets the SDK's prometheus collectors
	// registered on it. Nil means the collectors are updated but exposed
	// nowhere.
	MetricsRegisterer prometheus.Registerer

	// RateLimit/RateBurst throttle outgoing queries client-side
	// (requests per second; 0 disables).
	RateLimit float64
	RateBurst int
}

// NewOptions returns options for the given node with the standard defaults:
// auto-reconnect and auto-resubscribe on, queuing off, 500-entry queue with a
// 120s TTL.
func NewOptions(host string, port int) *Options {
	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)

	return &Options{
		Host:              host,
		Port:              port,
		AutoReconnect:     true,
		AutoResubscribe:   true,
		OfflineMode:       OfflineModeManual,
		QueueMaxSize:      DefaultQueueMaxSize,
		QueueTTL:          DefaultQueueTTL,
		ReconnectionDelay: DefaultReconnectionDelay,
		ReplayInterval:    DefaultReplayInterval,
		Logger:            logger,
	}
}

// DefaultOptions returns options for localhost:7512.
func DefaultOptions() *Options {
	return NewOptions(DefaultHost, DefaultPort)
}

// AllNodes returns the node rotation: the configured Nodes, or the single
// Host:Port when none were given.
func (o *Options) AllNodes() []endpoints.Endpoint {
	if len(o.Nodes) > 0 {
		return o.Nodes
	}
	return []endpoints.Endpoint{{Host: o.Host, Port: o.Port}}
}

func (o *Options) SetHost(host string) *Options {
	o.Host = host
	return o
}

func (o *Options) SetPort(port int) *Options {
	o.Port = port
	return o
}

func (o *Options) SetSslConnection(ssl bool) *Options {
	o.SslConnection = ssl
	return o
}

func (o *Options) SetNodes(nodes []endpoints.Endpoint) *Options {
	o.Nodes = nodes
	return o
}

func (o *Options) SetPicker(p endpoints.Picker) *Options {
	o.Picker = p
	return o
}

// SetDiscovery enables etcd node discovery from the given etcd endpoints.
func (o *Options) SetDiscovery(etcdEndpoints []string, prefix string) *Options {
	o.DiscoveryEndpoints = etcdEndpoints
	o.DiscoveryPrefix = prefix
	return o
}

func (o *Options) SetAutoQueue(autoQueue bool) *Options {
	o.AutoQueue = autoQueue
	return o
}

func (o *Options) SetAutoReconnect(autoReconnect bool) *Options {
	o.AutoReconnect = autoReconnect
	return o
}

func (o *Options) SetAutoResubscribe(autoResubscribe bool) *Options {
	o.AutoResubscribe = autoResubscribe
	return o
}

// SetOfflineMode switches the offline behavior. Auto implies AutoQueue and
// AutoReconnect.
func (o *Options) SetOfflineMode(mode OfflineMode) *Options {
	o.OfflineMode = mode
	if mode == OfflineModeAuto {
		o.AutoQueue = true
		o.AutoReconnect = true
	}
	return o
}

func (o *Options) SetQueueMaxSize(size int) *Options {
	o.QueueMaxSize = size
	return o
}

func (o *Options) SetQueueTTL(ttl time.Duration) *Options {
	o.QueueTTL = ttl
	return o
}

func (o *Options) SetReconnectionDelay(delay time.Duration) *Options {
	o.ReconnectionDelay = delay
	return o
}

func (o *Options) SetReplayInterval(interval time.Duration) *Options {
	o.ReplayInterval = interval
	return o
}

func (o *Options) SetLogger(logger *logrus.Logger) *Options {
	o.Logger = logger
	return o
}

func (o *Options) SetMetricsRegisterer(reg prometheus.Registerer) *Options {
	o.MetricsRegisterer = reg
	return o
}

func (o *Options) SetRateLimit(perSecond float64, burst int) *Options {
	o.RateLimit = perSecond
	o.RateBurst = burst
	return o
}

// QueryOptions tune a single request.
type QueryOptions struct {
	// Queuable marks the request as eligible for the offline queue. Defaults
	// to true in NewQueryOptions.
	Queuable bool
	// Timeout bounds the wait for this request's response. Zero means no
	// deadline beyond the caller's context. Exceeding it fails only this
	// request, never the connection.
	Timeout time.Duration
	// Volatile is merged into the request's volatile metadata.
	Volatile map[string]any
}

// NewQueryOptions returns the per-request defaults: queuable, no timeout.
func NewQueryOptions() QueryOptions {
	return QueryOptions{Queuable: true}
}

func (q QueryOptions) SetQueuable(queuable bool) QueryOptions {
	q.Queuable = queuable
	return q
}

func (q QueryOptions) SetTimeout(timeout time.Duration) QueryOptions {
	q.Timeout = timeout
	return q
}

func (q QueryOptions) SetVolatile(volatile map[string]any) QueryOptions {
	q.Volatile = volatile
	return q
}
