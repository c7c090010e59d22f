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

// Fake in-memory stores: a dependency-free stand-in so pipeline stages
// can be exercised in tests without a real Redis server.
package storage

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// FakeCoordinatorStore is an in-memory CoordinatorStore.
type FakeCoordinatorStore struct {
	mu        sync.Mutex
	running   map[string]int
	shutdown  bool
	Unreachable bool
}

func NewFakeCoordinatorStore() *FakeCoordinatorStore {
	return &FakeCoordinatorStore{running: map[string]int{}}
}

func (f *FakeCoordinatorStore) SetRunning(ctx context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.running[name]++
	return nil
}

func (f *FakeCoordinatorStore) UnsetRunning(ctx context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.running[name]--
	if f.running[name] <= 0 {
		delete(f.running, name)
	}
	return nil
}

func (f *FakeCoordinatorStore) ShutdownRequested(ctx context.Context) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Unreachable || f.shutdown
}

// RequestShutdown sets the shutdown sentinel, as an operator would by
// setting the `shutdown` key.
func (f *FakeCoordinatorStore) RequestShutdown() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.shutdown = true
}

// Running returns a snapshot of the running counters, for assertions.
func (f *FakeCoordinatorStore) Running() map[string]int {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]int, len(f.running))
	for k, v := range f.running {
		out[k] = v
	}
	return out
}

// FakeQueueStore is an in-memory QueueStore backed by plain Go maps.
type FakeQueueStore struct {
	mu      sync.Mutex
	sets    map[string]map[string]struct{}
	records map[string]map[string]string
}

func NewFakeQueueStore() *FakeQueueStore {
	return &FakeQueueStore{
		sets:    map[string]map[string]struct{}{},
		records: map[string]map[string]string{},
	}
}

func (f *FakeQueueStore) PopBatch(ctx context.Context, queueKey string, n int64) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	set := f.sets[queueKey]
	if len(set) == 0 {
		return nil, nil
	}
	ids := make([]string, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Strings(ids) // deterministic for tests; Redis SPOP has no such guarantee
	if int64(len(ids)) > n {
		ids = ids[:n]
	}
	for _, id := range ids {
		delete(set, id)
	}
	return ids, nil
}

func (f *FakeQueueStore) Push(ctx context.Context, queueKey string, ids ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	set, ok := f.sets[queueKey]
	if !ok {
		set = map[string]struct{}{}
		f.sets[queueKey] = set
	}
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return nil
}

func (f *FakeQueueStore) SetRecord(ctx context.Context, id string, fields map[string]string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := make(map[string]string, len(fields))
	for k, v := range fields {
		cp[k] = v
	}
	f.records[id] = cp
	return nil
}

func (f *FakeQueueStore) GetRecords(ctx context.Context, ids []string) ([]map[string]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]map[string]string, len(ids))
	for i, id := range ids {
		if rec, ok := f.records[id]; ok {
			cp := make(map[string]string, len(rec))
			for k, v := range rec {
				cp[k] = v
			}
			out[i] = cp
		}
	}
	return out, nil
}

func (f *FakeQueueStore) DeleteRecords(ctx context.Context, ids []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, id := range ids {
		delete(f.records, id)
	}
	return nil
}

// QueueLen exposes the size of a queue set, for assertions.
func (f *FakeQueueStore) QueueLen(queueKey string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sets[queueKey])
}

// FakeFactStore is an in-memory FactStore.
type FakeFactStore struct {
	mu   sync.Mutex
	sets map[string]map[string]struct{}
}

func NewFakeFactStore() *FakeFactStore {
	return &FakeFactStore{sets: map[string]map[string]struct{}{}}
}

func (f *FakeFactStore) add(key, member string) {
	set, ok := f.sets[key]
	if !ok {
		set = map[string]struct{}{}
		f.sets[key] = set
	}
	set[member] = struct{}{}
}

func (f *FakeFactStore) AddFacts(ctx context.Context, facts []Fact) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, fact := range facts {
		f.add(SourcesKey(fact.Day), fact.Source)
		f.add(SourceASNsKey(fact.Day, fact.Source), fact.ASN)
		f.add(ASNPrefixesKey(fact.Day, fact.Source, fact.ASN), fact.Prefix)
		f.add(PrefixEventsKey(fact.Day, fact.Source, fact.ASN, fact.Prefix),
			fmt.Sprintf("%s|%s", fact.IP, fact.Timestamp.UTC().Format("2006-01-02T15:04:05")))
	}
	return nil
}

func (f *FakeFactStore) members(key string) []string {
	set := f.sets[key]
	out := make([]string, 0, len(set))
	for m := range set {
		out = append(out, m)
	}
	sort.Strings(out)
	return out
}

func (f *FakeFactStore) SourcesForDay(ctx context.Context, day string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.members(SourcesKey(day)), nil
}

func (f *FakeFactStore) ASNsForSource(ctx context.Context, day, source string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.members(SourceASNsKey(day, source)), nil
}

func (f *FakeFactStore) PrefixesForASN(ctx context.Context, day, source, asn string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.members(ASNPrefixesKey(day, source, asn)), nil
}

func (f *FakeFactStore) EventsForPrefix(ctx context.Context, day, source, asn, prefix string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.members(PrefixEventsKey(day, source, asn, prefix)), nil
}

// Snapshot dumps every key/member pair, for exact byte-for-byte
// determinism assertions.
func (f *FakeFactStore) Snapshot() map[string][]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string][]string, len(f.sets))
	for k := range f.sets {
		out[k] = f.members(k)
	}
	return out
}

// FakeRankStore is an in-memory RankStore using sorted-set semantics
// backed by plain maps (score lookups are O(1); ordering is computed on
// read, same contract as Redis ZRANGE).
type FakeRankStore struct {
	mu      sync.Mutex
	scalars map[string]float64
	zsets   map[string]map[string]float64
}

func NewFakeRankStore() *FakeRankStore {
	return &FakeRankStore{
		scalars: map[string]float64{},
		zsets:   map[string]map[string]float64{},
	}
}

func (f *FakeRankStore) CommitDay(ctx context.Context, toDelete []string, writes []RankWrite) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, key := range toDelete {
		delete(f.scalars, key)
		delete(f.zsets, key)
	}
	for _, w := range writes {
		switch w.Kind {
		case RankScalarSet:
			f.scalars[w.Key] = w.Value
		case RankZAdd:
			zset, ok := f.zsets[w.Key]
			if !ok {
				zset = map[string]float64{}
				f.zsets[w.Key] = zset
			}
			zset[w.Member] = w.Value
		case RankZIncrBy:
			zset, ok := f.zsets[w.Key]
			if !ok {
				zset = map[string]float64{}
				f.zsets[w.Key] = zset
			}
			zset[w.Member] += w.Value
		default:
			return fmt.Errorf("unknown rank write kind %d for key %s", w.Kind, w.Key)
		}
	}
	return nil
}

// Scalar returns the value set via RankScalarSet for key, if any.
func (f *FakeRankStore) Scalar(key string) (float64, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.scalars[key]
	return v, ok
}

// ZScore returns a sorted set's score for member, if any.
func (f *FakeRankStore) ZScore(key, member string) (float64, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.zsets[key][member]
	return v, ok
}

// ZMembers returns every member of a sorted set, sorted by score
// descending then member ascending as a deterministic tie-break.
func (f *FakeRankStore) ZMembers(key string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	zset := f.zsets[key]
	members := make([]string, 0, len(zset))
	for m := range zset {
		members = append(members, m)
	}
	sort.Slice(members, func(i, j int) bool {
		if zset[members[i]] != zset[members[j]] {
			return zset[members[i]] > zset[members[j]]
		}
		return members[i] < members[j]
	})
	return members
}

// Dump formats the whole ranking store deterministically, for
// byte-for-byte comparisons across repeated runs.
func (f *FakeRankStore) Dump() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var b strings.Builder
	scalarKeys := make([]string, 0, len(f.scalars))
	for k := range f.scalars {
		scalarKeys = append(scalarKeys, k)
	}
	sort.Strings(scalarKeys)
	for _, k := range scalarKeys {
		fmt.Fprintf(&b, "SCALAR %s=%v\n", k, f.scalars[k])
	}
	zsetKeys := make([]string, 0, len(f.zsets))
	for k := range f.zsets {
		zsetKeys = append(zsetKeys, k)
	}
	sort.Strings(zsetKeys)
	for _, k := range zsetKeys {
		members := make([]string, 0, len(f.zsets[k]))
		for m := range f.zsets[k] {
			members = append(members, m)
		}
		sort.Strings(members)
		for _, m := range members {
			fmt.Fprintf(&b, "ZSET %s %s=%v\n", k, m, f.zsets[k][m])
		}
	}
	return b.String()
}
