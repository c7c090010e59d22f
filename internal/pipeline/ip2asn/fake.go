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

package ip2asn

import (
	"context"
	"sync"

	"bgpranking/pkg/bgpranking"
)

// FakeClient is an in-memory Client for tests, modeled on
// storage.FakeFactStore: no network, fully deterministic, inspectable.
type FakeClient struct {
	mu sync.Mutex

	Readiness Readiness
	// Routes maps "ip|date" to a canned Result for MassQuery.
	Routes map[string]Result
	// ASNMetas maps "asn|family|date" to a canned ASNMeta.
	ASNMetas map[string]ASNMeta

	Cached       []Query
	MetaErr      error
	MassCacheErr error
	MassQueryErr error
}

// NewFakeClient returns a ready-to-use fake, always-ready by default.
func NewFakeClient() *FakeClient {
	return &FakeClient{
		Readiness: Readiness{PercentV4: 100, PercentV6: 100},
		Routes:    map[string]Result{},
		ASNMetas:  map[string]ASNMeta{},
	}
}

func routeKey(ip, date string) string { return ip + "|" + date }

func asnMetaKey(asn string, family bgpranking.AddressFamily, date string) string {
	return asn + "|" + familyString(family) + "|" + date
}

// SetRoute registers the canned result for an (ip, date) pair.
func (f *FakeClient) SetRoute(ip, date string, result Result) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Routes[routeKey(ip, date)] = result
}

// SetASNMeta registers the canned announced-count for (asn, family, date).
func (f *FakeClient) SetASNMeta(asn string, family bgpranking.AddressFamily, date string, meta ASNMeta) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ASNMetas[asnMetaKey(asn, family, date)] = meta
}

func (f *FakeClient) Meta(ctx context.Context) (Readiness, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Readiness, f.MetaErr
}

func (f *FakeClient) MassCache(ctx context.Context, queries []Query) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.MassCacheErr != nil {
		return f.MassCacheErr
	}
	f.Cached = append(f.Cached, queries...)
	return nil
}

func (f *FakeClient) MassQuery(ctx context.Context, queries []Query) ([]Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.MassQueryErr != nil {
		return nil, f.MassQueryErr
	}
	results := make([]Result, len(queries))
	for i, q := range queries {
		results[i] = f.Routes[routeKey(q.IP, q.Date)]
	}
	return results, nil
}

func (f *FakeClient) ASNMeta(ctx context.Context, asn string, family bgpranking.AddressFamily, date string) (ASNMeta, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ASNMetas[asnMetaKey(asn, family, date)], nil
}

var _ Client = (*FakeClient)(nil)
