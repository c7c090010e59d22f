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
	"testing"
	"time"
)

func TestKeySchema(t *testing.T) {
	day := "2026-07-31"
	if got, want := SourcesKey(day), "2026-07-31|sources"; got != want {
		t.Errorf("SourcesKey = %q, want %q", got, want)
	}
	if got, want := SourceASNsKey(day, "abuse-feed"), "2026-07-31|abuse-feed"; got != want {
		t.Errorf("SourceASNsKey = %q, want %q", got, want)
	}
	if got, want := ASNPrefixesKey(day, "abuse-feed", "64500"), "2026-07-31|abuse-feed|64500"; got != want {
		t.Errorf("ASNPrefixesKey = %q, want %q", got, want)
	}
	if got, want := PrefixEventsKey(day, "abuse-feed", "64500", "1.2.3.0/24"), "2026-07-31|abuse-feed|64500|1.2.3.0/24"; got != want {
		t.Errorf("PrefixEventsKey = %q, want %q", got, want)
	}
	if got, want := SourceASNPrefixRankingKey(day, "abuse-feed", "64500", "v4"), "2026-07-31|abuse-feed|64500|v4|prefixes"; got != want {
		t.Errorf("SourceASNPrefixRankingKey = %q, want %q", got, want)
	}
}

func TestFakeQueueStorePopBatchConservation(t *testing.T) {
	ctx := context.Background()
	q := NewFakeQueueStore()
	ids := []string{"a", "b", "c"}
	if err := q.Push(ctx, IntakeQueue, ids...); err != nil {
		t.Fatal(err)
	}
	popped, err := q.PopBatch(ctx, IntakeQueue, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(popped) != 2 {
		t.Fatalf("expected 2 popped, got %d", len(popped))
	}
	if q.QueueLen(IntakeQueue) != 1 {
		t.Fatalf("expected 1 remaining, got %d", q.QueueLen(IntakeQueue))
	}
	rest, err := q.PopBatch(ctx, IntakeQueue, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(rest) != 1 {
		t.Fatalf("expected 1 remaining popped, got %d", len(rest))
	}
	if empty, _ := q.PopBatch(ctx, IntakeQueue, 10); len(empty) != 0 {
		t.Fatalf("expected empty pop, got %v", empty)
	}
}

func TestFakeCoordinatorStoreRunningCounter(t *testing.T) {
	ctx := context.Background()
	c := NewFakeCoordinatorStore()
	if c.ShutdownRequested(ctx) {
		t.Fatal("should not request shutdown initially")
	}
	_ = c.SetRunning(ctx, "sanitizer")
	_ = c.SetRunning(ctx, "sanitizer")
	if n := c.Running()["sanitizer"]; n != 2 {
		t.Fatalf("expected 2 running sanitizer, got %d", n)
	}
	_ = c.UnsetRunning(ctx, "sanitizer")
	if n := c.Running()["sanitizer"]; n != 1 {
		t.Fatalf("expected 1 running sanitizer, got %d", n)
	}
	_ = c.UnsetRunning(ctx, "sanitizer")
	if _, ok := c.Running()["sanitizer"]; ok {
		t.Fatal("expected sanitizer field to be dropped at zero")
	}
	c.RequestShutdown()
	if !c.ShutdownRequested(ctx) {
		t.Fatal("expected shutdown requested after RequestShutdown")
	}
}

func TestFakeCoordinatorStoreFailSafeUnreachable(t *testing.T) {
	c := NewFakeCoordinatorStore()
	c.Unreachable = true
	if !c.ShutdownRequested(context.Background()) {
		t.Fatal("unreachable store must fail safe to shutdown-requested")
	}
}

func TestFakeFactStoreAggregationIdempotent(t *testing.T) {
	ctx := context.Background()
	store := NewFakeFactStore()
	fact := Fact{Day: "2026-07-31", Source: "abuse-feed", ASN: "64500", Prefix: "1.2.3.0/24", IP: "1.2.3.4", Timestamp: time.Date(2026, 7, 31, 0, 0, 0, 0, time.UTC)}
	if err := store.AddFacts(ctx, []Fact{fact}); err != nil {
		t.Fatal(err)
	}
	before := store.Snapshot()
	if err := store.AddFacts(ctx, []Fact{fact}); err != nil {
		t.Fatal(err)
	}
	after := store.Snapshot()
	if len(before) != len(after) {
		t.Fatalf("re-inserting the same fact changed key count: %d vs %d", len(before), len(after))
	}
	sources, _ := store.SourcesForDay(ctx, fact.Day)
	if len(sources) != 1 || sources[0] != "abuse-feed" {
		t.Fatalf("unexpected sources: %v", sources)
	}
}
