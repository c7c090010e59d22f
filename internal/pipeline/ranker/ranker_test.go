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

package ranker

import (
	"context"
	"math"
	"testing"
	"time"

	"bgpranking/internal/pipeline/ip2asn"
	"bgpranking/internal/pipeline/storage"
	"bgpranking/pkg/bgpranking"
)

func almostEqual(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func TestRankDayScalarArithmetic(t *testing.T) {
	facts := storage.NewFakeFactStore()
	rank := storage.NewFakeRankStore()
	client := ip2asn.NewFakeClient()
	client.SetASNMeta("64500", bgpranking.IPv4, "2026-07-30", ip2asn.ASNMeta{CountV4: 256})

	day := "2026-07-30"
	if err := facts.AddFacts(context.Background(), []storage.Fact{
		{Day: day, Source: "src-a", ASN: "64500", Prefix: "1.2.3.0/24", IP: "1.2.3.4", Timestamp: time.Now()},
	}); err != nil {
		t.Fatal(err)
	}

	impact := func(source string) int { return 3 }
	r := New(facts, rank, client, impact, nil)
	if err := r.RankDay(context.Background(), day); err != nil {
		t.Fatal(err)
	}

	scalarKey := storage.ScalarRankKey(day, "src-a", "64500", "v4")
	got, ok := rank.Scalar(scalarKey)
	if !ok {
		t.Fatalf("expected scalar rank at %s", scalarKey)
	}
	want := (1.0 * 3) / 256.0
	if !almostEqual(got, want) {
		t.Fatalf("expected %.11f, got %.11f", want, got)
	}

	prefixRankKey := storage.SourceASNPrefixRankingKey(day, "src-a", "64500", "v4")
	prefixRank, ok := rank.ZScore(prefixRankKey, "1.2.3.0/24")
	if !ok {
		t.Fatalf("expected prefix rank at %s", prefixRankKey)
	}
	if !almostEqual(prefixRank, 1.0/256.0) {
		t.Fatalf("expected prefix rank %.11f, got %.11f", 1.0/256.0, prefixRank)
	}

	globalKey := storage.GlobalASNRankingKey(day, "v4")
	globalRank, ok := rank.ZScore(globalKey, "64500")
	if !ok {
		t.Fatalf("expected global asn rank at %s", globalKey)
	}
	if !almostEqual(globalRank, want) {
		t.Fatalf("expected global rank %.11f, got %.11f", want, globalRank)
	}
}

func TestRankDayAggregationLaw(t *testing.T) {
	facts := storage.NewFakeFactStore()
	rank := storage.NewFakeRankStore()
	client := ip2asn.NewFakeClient()
	client.SetASNMeta("64500", bgpranking.IPv4, "2026-07-30", ip2asn.ASNMeta{CountV4: 100})

	day := "2026-07-30"
	if err := facts.AddFacts(context.Background(), []storage.Fact{
		{Day: day, Source: "src-a", ASN: "64500", Prefix: "1.2.3.0/24", IP: "1.2.3.4", Timestamp: time.Now()},
		{Day: day, Source: "src-b", ASN: "64500", Prefix: "1.2.3.0/24", IP: "1.2.3.5", Timestamp: time.Now()},
	}); err != nil {
		t.Fatal(err)
	}

	impact := func(source string) int { return 1 }
	r := New(facts, rank, client, impact, nil)
	if err := r.RankDay(context.Background(), day); err != nil {
		t.Fatal(err)
	}

	global, _ := rank.ZScore(storage.GlobalASNRankingKey(day, "v4"), "64500")
	sumOverSources := 0.0
	for _, source := range []string{"src-a", "src-b"} {
		v, _ := rank.ZScore(storage.SourceASNRankingKey(day, source, "v4"), "64500")
		sumOverSources += v
	}
	if !almostEqual(global, sumOverSources) {
		t.Fatalf("expected aggregation law global==sum(sources), global=%.11f sum=%.11f", global, sumOverSources)
	}
}

func TestRankDaySkipsZeroASN(t *testing.T) {
	facts := storage.NewFakeFactStore()
	rank := storage.NewFakeRankStore()
	client := ip2asn.NewFakeClient()

	day := "2026-07-30"
	if err := facts.AddFacts(context.Background(), []storage.Fact{
		{Day: day, Source: "src-a", ASN: "0", Prefix: "0.0.0.0/0", IP: "1.2.3.4", Timestamp: time.Now()},
	}); err != nil {
		t.Fatal(err)
	}

	r := New(facts, rank, client, func(string) int { return 1 }, nil)
	if err := r.RankDay(context.Background(), day); err != nil {
		t.Fatal(err)
	}
	if members := rank.ZMembers(storage.GlobalASNRankingKey(day, "v4")); len(members) != 0 {
		t.Fatalf("expected ASN 0 to be skipped, got %v", members)
	}
}

func TestRankDayIsDeterministic(t *testing.T) {
	build := func() (*storage.FakeFactStore, *ip2asn.FakeClient) {
		facts := storage.NewFakeFactStore()
		client := ip2asn.NewFakeClient()
		client.SetASNMeta("64500", bgpranking.IPv4, "2026-07-30", ip2asn.ASNMeta{CountV4: 256})
		_ = facts.AddFacts(context.Background(), []storage.Fact{
			{Day: "2026-07-30", Source: "src-a", ASN: "64500", Prefix: "1.2.3.0/24", IP: "1.2.3.4", Timestamp: time.Now()},
		})
		return facts, client
	}

	facts1, client1 := build()
	rank1 := storage.NewFakeRankStore()
	r1 := New(facts1, rank1, client1, func(string) int { return 3 }, nil)
	if err := r1.RankDay(context.Background(), "2026-07-30"); err != nil {
		t.Fatal(err)
	}

	facts2, client2 := build()
	rank2 := storage.NewFakeRankStore()
	r2 := New(facts2, rank2, client2, func(string) int { return 3 }, nil)
	if err := r2.RankDay(context.Background(), "2026-07-30"); err != nil {
		t.Fatal(err)
	}

	if rank1.Dump() != rank2.Dump() {
		t.Fatalf("expected byte-identical ranking, got:\n%s\nvs\n%s", rank1.Dump(), rank2.Dump())
	}
}
