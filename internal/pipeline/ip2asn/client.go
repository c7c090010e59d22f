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

// Package ip2asn is the client for the external IP-to-ASN history
// service: readiness (meta), cache priming (mass_cache), batched
// lookup (mass_query), and per-ASN announced-address counts
// (asn_meta). A narrow interface, an HTTP-backed implementation, and
// an in-memory fake for dependency-free tests.
package ip2asn

import (
	"context"
	"time"

	"bgpranking/pkg/bgpranking"
)

// Query is one lookup request: an IP observed on a given day.
type Query struct {
	IP            string
	AddressFamily bgpranking.AddressFamily
	Date          string // YYYY-MM-DD
}

// Result is the service's answer for one Query on one date.
type Result struct {
	ASN    string // "0" or empty means "no route known"
	Prefix string // "0.0.0.0/0" / "::/0" are the service's "no route" sentinels
	Err    bool   // true when the service reported an error for this entry
}

// Readiness reflects the service's meta() response: the percentage of
// CAIDA data cached per address family. The sanitizer and enricher
// both require at least 90% on both families before draining.
type Readiness struct {
	PercentV4 float64
	PercentV6 float64
}

// Ready reports whether both families clear the 90% threshold.
func (r Readiness) Ready() bool {
	return r.PercentV4 >= 90 && r.PercentV6 >= 90
}

// ASNMeta is the per-family announced-address count of one ASN on one
// day, as returned by asn_meta.
type ASNMeta struct {
	CountV4 int
	CountV6 int
}

// Client is the external IP-to-ASN history service boundary.
// Implementations must be safe for concurrent use.
type Client interface {
	// Meta reports cache readiness.
	Meta(ctx context.Context) (Readiness, error)
	// MassCache primes the service's cache for the given queries, each
	// with a three-day precision delta.
	MassCache(ctx context.Context, queries []Query) error
	// MassQuery resolves ASN/prefix for every query in one round-trip.
	// The returned slice has the same length and order as queries.
	MassQuery(ctx context.Context, queries []Query) ([]Result, error)
	// ASNMeta fetches the announced-address count of asn on date for
	// family.
	ASNMeta(ctx context.Context, asn string, family bgpranking.AddressFamily, date string) (ASNMeta, error)
}

// PrecisionDelta is the tolerance window the service is asked to use
// when resolving routing as of a given day.
const PrecisionDelta = 3 * 24 * time.Hour

// IsRouted reports whether res names a concrete, non-sentinel route —
// the "done" case.
func (res Result) IsRouted() bool {
	if res.Err {
		return false
	}
	if res.ASN == "" || res.ASN == "0" {
		return false
	}
	switch res.Prefix {
	case "", "0.0.0.0/0", "::/0":
		return false
	}
	return true
}

// IsUnknown reports whether the service simply has no routing info yet
// for this date — the "retry" case: no error, but no concrete route
// either.
func (res Result) IsUnknown() bool {
	return !res.Err && !res.IsRouted()
}
