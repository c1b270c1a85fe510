package types

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/xbill82/kuzzle-sdk-go/endpoints"
)

// optionsFile mirrors Options for YAML parsing. Booleans are pointers so an
// absent key can be told apart from an explicit false and fall back to the
// default.
type optionsFile struct {
	Host          string               `yaml:"host"`
	Port          int                  `yaml:"port"`
	SslConnection *bool                `yaml:"sslConnection"`
	Nodes         []endpoints.Endpoint `yaml:"nodes"`

	AutoQueue       *bool  `yaml:"autoQueue"`
	AutoReconnect   *bool  `yaml:"autoReconnect"`
	AutoResubscribe *bool  `yaml:"autoResubscribe"`
	OfflineMode     string `yaml:"offlineMode"` // "manual" or "auto"

	QueueMaxSize      int           `yaml:"queueMaxSize"`
	QueueTTL          time.Duration `yaml:"queueTTL"`
	ReconnectionDelay time.Duration `yaml:"reconnectionDelay"`
	ReplayInterval    time.Duration `yaml:"replayInterval"`

	Discovery struct {
		Endpoints []string `yaml:"endpoints"`
		Prefix    string   `yaml:"prefix"`
	} `yaml:"discovery"`

	RateLimit float64 `yaml:"rateLimit"`
	RateBurst int     `yaml:"rateBurst"`
}

// OptionsFromFile loads options from a YAML file. Keys left out keep the
// NewOptions defaults, e.g.:
//
//	host: kuzzle.example.com
//	port: 7512
//	sslConnection: true
//	autoQueue: true
//	queueTTL: 2m
//	nodes:
//	  - host: node1.example.com
//	    port: 7512
//	    weight: 10
func OptionsFromFile(path string) (*Options, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read options file: %w", err)
	}

	var parsed optionsFile
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("parse options file %s: %w", path, err)
	}

	opts := DefaultOptions()
	mergeOptions(opts, &parsed)
	return opts, nil
}

func mergeOptions(dst *Options, src *optionsFile) {
	if src.Host != "" {
		dst.Host = src.Host
	}
	if src.Port != 0 {
		dst.Port = src.Port
	}
	if src.SslConnection != nil {
		dst.SslConnection = *src.SslConnection
	}
	if src.Nodes != nil {
		dst.Nodes = src.Nodes
	}
	if src.AutoQueue != nil {
		dst.AutoQueue = *src.AutoQueue
	}
	if src.AutoReconnect != nil {
		dst.AutoReconnect = *src.AutoReconnect
	}
	if src.AutoResubscribe != nil {
		dst.AutoResubscribe = *src.AutoResubscribe
	}
	switch src.OfflineMode {
	case "auto":
		dst.SetOfflineMode(OfflineModeAuto)
	case "manual", "":
	default:
		// Unknown value: keep manual rather than guessing.
	}
	if src.QueueMaxSize != 0 {
		dst.QueueMaxSize = src.QueueMaxSize
	}
	if src.QueueTTL != 0 {
		dst.QueueTTL = src.QueueTTL
	}
	if src.ReconnectionDelay != 0 {
		dst.ReconnectionDelay = src.ReconnectionDelay
	}
	if src.ReplayInterval != 0 {
		dst.ReplayInterval = src.ReplayInterval
	}
	if len(src.Discovery.Endpoints) > 0 {
		dst.DiscoveryEndpoints = src.Discovery.Endpoints
		dst.DiscoveryPrefix = src.Discovery.Prefix
	}
	if src.RateLimit != 0 {
		dst.RateLimit = src.RateLimit
	}
	if src.RateBurst != 0 {
		dst.RateBurst = src.RateBurst
	}
}
