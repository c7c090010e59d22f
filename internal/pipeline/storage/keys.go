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

// Package storage implements the Redis-compatible key schema: it is
// the single place both the pipeline and the (out of scope) query
// frontend must agree on. The schema is split across three logical
// Redis connections (cache/coordinator, intake+to_insert queues,
// durable storage+rankings); see RedisClients in redis.go.
package storage

import "fmt"

// Coordinator keys (cache store, db holding "running" and "shutdown").
const (
	RunningKey  = "running"
	ShutdownKey = "shutdown"
)

// Queue keys (queue store: ephemeral, short TTL, "fast instance").
const (
	IntakeQueue   = "intake"
	ToInsertQueue = "to_insert"
)

// SourcesKey returns "D|sources", the set of sources that produced at
// least one fact on day D.
func SourcesKey(day string) string { return fmt.Sprintf("%s|sources", day) }

// SourceASNsKey returns "D|S", the set of ASNs seen for source S on day D.
func SourceASNsKey(day, source string) string { return fmt.Sprintf("%s|%s", day, source) }

// ASNPrefixesKey returns "D|S|A", the set of prefixes seen for ASN A via
// source S on day D.
func ASNPrefixesKey(day, source, asn string) string {
	return fmt.Sprintf("%s|%s|%s", day, source, asn)
}

// PrefixEventsKey returns "D|S|A|P", the set of "{ip}|{timestamp}" events
// recorded for prefix P of ASN A via source S on day D.
func PrefixEventsKey(day, source, asn, prefix string) string {
	return fmt.Sprintf("%s|%s|%s|%s", day, source, asn, prefix)
}

// ASNDescriptionsKey returns "{A}|descriptions", written only by the
// out-of-scope ASN-description harvester. Read-only from this module.
func ASNDescriptionsKey(asn string) string { return fmt.Sprintf("%s|descriptions", asn) }

// ScalarRankKey returns "D|S|A|v", the scalar rank of ASN A for source S
// on day D for address family v.
func ScalarRankKey(day, source, asn string, family string) string {
	return fmt.Sprintf("%s|%s|%s|%s", day, source, asn, family)
}

// SourceASNRankingKey returns "D|S|asns|v", the sorted set {A -> rank}
// for source S on day D and address family v.
func SourceASNRankingKey(day, source string, family string) string {
	return fmt.Sprintf("%s|%s|asns|%s", day, source, family)
}

// GlobalASNRankingKey returns "D|asns|v", the sorted set {A -> sum over
// S of rank} for day D and address family v.
func GlobalASNRankingKey(day string, family string) string {
	return fmt.Sprintf("%s|asns|%s", day, family)
}

// SourceASNPrefixRankingKey returns "D|S|A|v|prefixes", the sorted set
// {P -> per-prefix rank} for source S, ASN A, day D, address family v.
func SourceASNPrefixRankingKey(day, source, asn string, family string) string {
	return fmt.Sprintf("%s|%s|%s|%s|prefixes", day, source, asn, family)
}

// ASNPrefixRankingKey returns "D|A|v", the sorted set {P -> sum over S
// of per-prefix rank * impact_S} for ASN A, day D, address family v.
func ASNPrefixRankingKey(day, asn string, family string) string {
	return fmt.Sprintf("%s|%s|%s", day, asn, family)
}
