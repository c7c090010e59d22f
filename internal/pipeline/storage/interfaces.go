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

package storage

import (
	"context"
	"time"
)

// CoordinatorStore is the shared running-state registry and shutdown
// sentinel. Workers fail safe: an unreachable store is treated as
// "stop" by ShutdownRequested.
type CoordinatorStore interface {
	SetRunning(ctx context.Context, name string) error
	UnsetRunning(ctx context.Context, name string) error
	ShutdownRequested(ctx context.Context) bool
}

// QueueStore is the ephemeral, short-TTL Redis instance holding the
// intake and to_insert sets plus the per-UUID hashes they reference.
// Shared across the sanitizer and enricher.
type QueueStore interface {
	// PopBatch atomically pops up to n members from queueKey (Redis SPOP
	// with a count). Returns an empty slice, not an error, when the
	// queue is empty.
	PopBatch(ctx context.Context, queueKey string, n int64) ([]string, error)

	// Push adds ids back onto queueKey (Redis SADD). Used both for
	// initial enqueue and for re-queuing on transient failure.
	Push(ctx context.Context, queueKey string, ids ...string) error

	// SetRecord stores fields under id (Redis HSET), overwriting any
	// previous value.
	SetRecord(ctx context.Context, id string, fields map[string]string) error

	// GetRecords reads the hash for every id in one round trip (Redis
	// pipelined HGETALL). The result slice has the same length and
	// order as ids; an id with no hash yields a nil map.
	GetRecords(ctx context.Context, ids []string) ([]map[string]string, error)

	// DeleteRecords removes the per-id hashes (Redis DEL). A no-op for
	// an empty ids slice.
	DeleteRecords(ctx context.Context, ids []string) error
}

// Fact is one enriched event, ready to be recorded as four set
// memberships.
type Fact struct {
	Day       string
	Source    string
	ASN       string
	Prefix    string
	IP        string
	Timestamp time.Time
}

// FactStore is the durable, persistent Redis instance holding the daily
// facts. It is shared, read and written, across the enricher, the
// ranker, and (out of scope) the query frontend.
type FactStore interface {
	// AddFacts idempotently records every fact's four set memberships
	// in a single batch (Redis pipelined SADD). Safe to call more than
	// once with the same facts, by set semantics.
	AddFacts(ctx context.Context, facts []Fact) error

	// SourcesForDay returns D|sources.
	SourcesForDay(ctx context.Context, day string) ([]string, error)
	// ASNsForSource returns D|S, excluding nothing — callers skip "0".
	ASNsForSource(ctx context.Context, day, source string) ([]string, error)
	// PrefixesForASN returns D|S|A.
	PrefixesForASN(ctx context.Context, day, source, asn string) ([]string, error)
	// EventsForPrefix returns D|S|A|P, each entry formatted "{ip}|{timestamp}".
	EventsForPrefix(ctx context.Context, day, source, asn, prefix string) ([]string, error)
}

// RankWriteKind selects which sorted-set/scalar operation a RankWrite
// performs.
type RankWriteKind int

const (
	RankScalarSet RankWriteKind = iota
	RankZAdd
	RankZIncrBy
)

// RankWrite is one mutation to apply as part of a day's ranking rewrite.
type RankWrite struct {
	Kind   RankWriteKind
	Key    string
	Member string  // unused for RankScalarSet
	Value  float64 // scalar value, ZADD score, or ZINCRBY delta
}

// RankStore is the durable instance holding the ranking key family.
// CommitDay performs the rewrite: delete the stale keys for the
// recomputed (day, family) pairs, then apply every write, as one
// batch.
type RankStore interface {
	CommitDay(ctx context.Context, toDelete []string, writes []RankWrite) error
}
