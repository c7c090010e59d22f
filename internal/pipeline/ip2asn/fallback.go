// Copyright 2025 Esteban Alvarez. All Rights Reserved.
//
// Created: October 2025
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

// FallbackClient wraps a primary Client with an optional local MaxMind
// ASN database and a goleveldb-backed result cache, used only when the
// upstream history service's MassQuery errors outright (not the
// "unknown routing yet" case, which is a legitimate answer handled by
// the enricher's retry path). This buys resilience against short
// upstream outages without inventing a second source of truth: the
// local database answers "which ASN announces this IP right now", not
// "which ASN announced it on day D", so its verdicts are a degraded
// approximation; they are returned like any other result, with nothing
// marking them as degraded.
package ip2asn

import (
	"context"
	"fmt"
	"net"

	"github.com/oschwald/geoip2-golang"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/vmihailenco/msgpack/v5"

	"bgpranking/pkg/bgpranking"
)

// FallbackClient composes a primary Client with local resilience
// layers. Either the MaxMind reader or the cache (or both) may be nil.
type FallbackClient struct {
	primary   Client
	asnReader *geoip2.Reader
	cache     *leveldb.DB
}

// NewFallbackClient builds a FallbackClient. mmdbPath is a path to a
// MaxMind ASN database (empty disables the MaxMind fallback); cacheDir
// is a goleveldb directory (empty disables the result cache).
func NewFallbackClient(primary Client, mmdbPath, cacheDir string) (*FallbackClient, error) {
	fc := &FallbackClient{primary: primary}
	if mmdbPath != "" {
		reader, err := geoip2.Open(mmdbPath)
		if err != nil {
			return nil, fmt.Errorf("ip2asn: open maxmind asn db: %w", err)
		}
		fc.asnReader = reader
	}
	if cacheDir != "" {
		db, err := leveldb.OpenFile(cacheDir, nil)
		if err != nil {
			return nil, fmt.Errorf("ip2asn: open fallback cache: %w", err)
		}
		fc.cache = db
	}
	return fc, nil
}

// Close releases the MaxMind reader and cache database, if open.
func (fc *FallbackClient) Close() error {
	var err error
	if fc.asnReader != nil {
		err = fc.asnReader.Close()
	}
	if fc.cache != nil {
		if cerr := fc.cache.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}

func (fc *FallbackClient) Meta(ctx context.Context) (Readiness, error) {
	return fc.primary.Meta(ctx)
}

func (fc *FallbackClient) MassCache(ctx context.Context, queries []Query) error {
	return fc.primary.MassCache(ctx, queries)
}

// cachedResult is the goleveldb/msgpack encoding of one Result.
type cachedResult struct {
	ASN    string
	Prefix string
}

func (fc *FallbackClient) MassQuery(ctx context.Context, queries []Query) ([]Result, error) {
	results, err := fc.primary.MassQuery(ctx, queries)
	if err == nil {
		fc.populateCache(queries, results)
		return results, nil
	}
	if fc.asnReader == nil && fc.cache == nil {
		return nil, err
	}

	degraded := make([]Result, len(queries))
	for i, q := range queries {
		if r, ok := fc.lookupCache(q); ok {
			degraded[i] = r
			continue
		}
		degraded[i] = fc.lookupMaxMind(q)
	}
	return degraded, nil
}

func (fc *FallbackClient) populateCache(queries []Query, results []Result) {
	if fc.cache == nil {
		return
	}
	for i, q := range queries {
		if !results[i].IsRouted() {
			continue
		}
		encoded, err := msgpack.Marshal(cachedResult{ASN: results[i].ASN, Prefix: results[i].Prefix})
		if err != nil {
			continue
		}
		_ = fc.cache.Put([]byte(routeKey(q.IP, q.Date)), encoded, nil)
	}
}

func (fc *FallbackClient) lookupCache(q Query) (Result, bool) {
	if fc.cache == nil {
		return Result{}, false
	}
	raw, err := fc.cache.Get([]byte(routeKey(q.IP, q.Date)), nil)
	if err != nil {
		return Result{}, false
	}
	var cached cachedResult
	if err := msgpack.Unmarshal(raw, &cached); err != nil {
		return Result{}, false
	}
	return Result{ASN: cached.ASN, Prefix: cached.Prefix}, true
}

func (fc *FallbackClient) lookupMaxMind(q Query) Result {
	if fc.asnReader == nil {
		return Result{Err: true}
	}
	ip := net.ParseIP(q.IP)
	if ip == nil {
		return Result{Err: true}
	}
	record, err := fc.asnReader.ASN(ip)
	if err != nil || record.AutonomousSystemNumber == 0 {
		return Result{Err: true}
	}
	// geoip2.ASN carries only the ASN and org name, not the announced
	// prefix; synthesize a host prefix rather than guess at the
	// enclosing network.
	bits := 32
	if ip.To4() == nil {
		bits = 128
	}
	return Result{
		ASN:    fmt.Sprintf("%d", record.AutonomousSystemNumber),
		Prefix: fmt.Sprintf("%s/%d", q.IP, bits),
	}
}

func (fc *FallbackClient) ASNMeta(ctx context.Context, asn string, family bgpranking.AddressFamily, date string) (ASNMeta, error) {
	return fc.primary.ASNMeta(ctx, asn, family, date)
}

var _ Client = (*FallbackClient)(nil)
