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

// Package bgpranking holds the value types shared by every stage of the
// pipeline: feed descriptors, intake/sanitized records, and the address
// families the ranker scores separately.
package bgpranking

import (
	"fmt"
	"time"
)

// AddressFamily distinguishes the IPv4 and IPv6 ranking universes. The
// ranker keeps two independent key families for every day/source/ASN.
type AddressFamily string

const (
	IPv4 AddressFamily = "v4"
	IPv6 AddressFamily = "v6"
)

// FeedDescriptor is the immutable-during-a-run configuration for one feed,
// loaded from a descriptor document under config/modules/*.json.
//
// Identity: Source() = "{vendor}-{name}". Two descriptors sharing a
// source are a configuration error (feedregistry.Load rejects it).
type FeedDescriptor struct {
	Vendor string   `json:"vendor"`
	Name   string   `json:"name"`
	URL    string   `json:"url,omitempty"`
	Impact int      `json:"impact,omitempty"`
	Parser string   `json:"parser,omitempty"`
	Tags   []string `json:"tags,omitempty"`
}

// Source returns the "{vendor}-{name}" identity key used throughout the
// Redis schema.
func (d FeedDescriptor) Source() string {
	return fmt.Sprintf("%s-%s", d.Vendor, d.Name)
}

// EffectiveImpact returns d.Impact, defaulting to 1 when unset.
func (d FeedDescriptor) EffectiveImpact() int {
	if d.Impact <= 0 {
		return 1
	}
	return d.Impact
}

// HasURL reports whether the fetcher has anything to poll for this feed.
// A missing URL disables fetching but not parsing.
func (d FeedDescriptor) HasURL() bool {
	return d.URL != ""
}

// IntakeRecord is the record the parser writes to the intake queue: one
// raw observation of an IP on a source at a point in time.
type IntakeRecord struct {
	IP       string    `json:"ip"`
	Source   string    `json:"source"`
	Datetime time.Time `json:"datetime"`
}

// SanitizedRecord is the record the sanitizer writes to the to_insert
// queue after validating and normalising an IntakeRecord.
type SanitizedRecord struct {
	IP            string        `json:"ip"`
	Source        string        `json:"source"`
	AddressFamily AddressFamily `json:"address_family"`
	Date          string        `json:"date"` // YYYY-MM-DD, UTC calendar day of Datetime
	Datetime      time.Time     `json:"datetime"`
}

// RFC3339Day formats t as the UTC calendar day used as the "date" field
// and as the day component of every Redis key.
func RFC3339Day(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}
