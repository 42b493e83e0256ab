// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package provider fetches raw paygate configuration and reports changes.
//
// The source is a local file or a single key in Consul, etcd or ZooKeeper,
// which lets a fleet of merchants share one price list.
package provider

import (
	"context"
	"fmt"
	"time"
)

// Type names a config source.
type Type string

const (
	TypeFile      Type = "file"
	TypeConsul    Type = "consul"
	TypeEtcd      Type = "etcd"
	TypeZookeeper Type = "zookeeper"
)

// Default endpoints per remote store.
const (
	DefaultConsulEndpoint    = "localhost:8500"
	DefaultEtcdEndpoint      = "localhost:2379"
	DefaultZookeeperEndpoint = "localhost:2181"
)

const defaultDialTimeout = 5 * time.Second

// ParseType accepts the type names plus "zk"; empty means file.
func ParseType(s string) (Type, error) {
	switch s {
	case "", "file":
		return TypeFile, nil
	case "consul":
		return TypeConsul, nil
	case "etcd":
		return TypeEtcd, nil
	case "zookeeper", "zk":
		return TypeZookeeper, nil
	}
	return "", fmt.Errorf("unknown provider type: %s", s)
}

// Provider is a config source. Implementations are safe for concurrent use.
type Provider interface {
	Type() Type

	// Load returns the current raw document.
	Load(ctx context.Context) ([]byte, error)

	// Watch signals after each change until ctx is done. Bursts may be
	// coalesced into one signal. A nil channel means the source cannot be
	// watched.
	Watch(ctx context.Context) (<-chan struct{}, error)

	Close() error
}

// ProviderConfig selects and locates a source.
type ProviderConfig struct {
	Type Type

	// Path is a file path, or the key holding the document in a store.
	Path string

	// Endpoints of the store. Empty uses the store's default.
	Endpoints []string
}

// New opens the source described by opts.
func New(opts ProviderConfig) (Provider, error) {
	if opts.Path == "" {
		return nil, fmt.Errorf("config path is required")
	}

	endpoints := func(fallback string) []string {
		if len(opts.Endpoints) == 0 {
			return []string{fallback}
		}
		return opts.Endpoints
	}

	switch opts.Type {
	case TypeFile, "":
		return NewFileProvider(opts.Path)
	case TypeConsul:
		return NewConsulProvider(endpoints(DefaultConsulEndpoint)[0], opts.Path)
	case TypeEtcd:
		return NewEtcdProvider(endpoints(DefaultEtcdEndpoint), opts.Path)
	case TypeZookeeper:
		return NewZookeeperProvider(endpoints(DefaultZookeeperEndpoint), opts.Path)
	default:
		return nil, fmt.Errorf("unknown provider type: %s", opts.Type)
	}
}

// notify never blocks; a pending signal already covers the change.
func notify(ch chan<- struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}
