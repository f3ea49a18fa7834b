// Licensed to LinDB under one or more contributor
// license agreements. See the NOTICE file distributed with
// this work for additional information regarding copyright
// ownership. LinDB licenses this file to you under
// the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing,
// software distributed under the License is distributed on an
// "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY
// KIND, either express or implied.  See the License for the
// specific language governing permissions and limitations
// under the License.

package dnsresolver

import (
	"net"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// source identifies where a cache entry's data came from (spec.md §3).
type source int

const (
	sourceNetwork source = iota
	sourceFile
)

// cacheEntry is the DNS cache entry from spec.md §3.
type cacheEntry struct {
	name       string
	addrs      []net.IP
	receivedAt time.Time
	ttl        time.Duration
	source     source
}

func (e cacheEntry) expired(now time.Time) bool {
	return now.After(e.receivedAt.Add(e.ttl))
}

// cache is a bounded, TTL-aware cache. github.com/hashicorp/golang-lru/v2
// provides the bounded storage; TTL expiry is layered on top in
// application code, since the library itself has no notion of TTL
// (DESIGN.md).
type cache struct {
	lru *lru.Cache[string, cacheEntry]
}

func newCache(size int) (*cache, error) {
	if size < 1 {
		size = 1
	}
	l, err := lru.New[string, cacheEntry](size)
	if err != nil {
		return nil, err
	}
	return &cache{lru: l}, nil
}

func (c *cache) get(name string, now time.Time) (cacheEntry, bool) {
	e, ok := c.lru.Get(name)
	if !ok {
		return cacheEntry{}, false
	}
	if e.expired(now) {
		c.lru.Remove(name)
		return cacheEntry{}, false
	}
	return e, true
}

func (c *cache) put(e cacheEntry) {
	c.lru.Add(e.name, e)
}
