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

// Package ranker implements the daily ranking aggregation: it reads a
// snapshot of the day's facts, computes per-source and aggregated
// rankings for both address families, and rewrites the whole ranking
// key family for that day atomically. asn_meta is read per day being
// ranked, not as "whatever is currently reported", so re-ranking a
// past day stays deterministic.
package ranker

import (
	"context"
	"log"
	"net"
	"net/netip"
	"sort"
	"strings"
	"time"

	"bgpranking/internal/pipeline/ip2asn"
	"bgpranking/internal/pipeline/storage"
	"bgpranking/pkg/bgpranking"
)

// ImpactLookup resolves a source identifier to its feed's impact
// weight.
type ImpactLookup func(source string) int

// Ranker recomputes one day's ranking key family.
type Ranker struct {
	Facts    storage.FactStore
	Rank     storage.RankStore
	IP2ASN   ip2asn.Client
	Impact   ImpactLookup
	Logger   *log.Logger
}

// New constructs a Ranker. A nil logger falls back to log.Default().
func New(facts storage.FactStore, rank storage.RankStore, client ip2asn.Client, impact ImpactLookup, logger *log.Logger) *Ranker {
	if logger == nil {
		logger = log.Default()
	}
	return &Ranker{Facts: facts, Rank: rank, IP2ASN: client, Impact: impact, Logger: logger}
}

// Tick runs the outer schedule: rank today, and if "now" is before
// noon local, also re-rank yesterday (to catch late-arriving events
// for feeds that publish once a day). It is gated on the same
// IP-to-ASN readiness check the sanitizer and enricher perform:
// ranking while the upstream history service is not ready would
// overwrite a previously-good day's ranking keys with near-empty
// asn_meta counts.
func (r *Ranker) Tick(ctx context.Context, now time.Time) error {
	ready, err := r.IP2ASN.Meta(ctx)
	if err != nil {
		r.Logger.Printf("ranker: readiness check failed: %v", err)
		return nil
	}
	if !ready.Ready() {
		return nil
	}

	today := bgpranking.RFC3339Day(now)
	if err := r.RankDay(ctx, today); err != nil {
		return err
	}
	if now.Local().Hour() < 12 {
		yesterday := bgpranking.RFC3339Day(now.AddDate(0, 0, -1))
		if err := r.RankDay(ctx, yesterday); err != nil {
			return err
		}
	}
	return nil
}

// RankDay recomputes the ranking for day. Readiness must be
// checked by the caller (the same IP-to-ASN readiness gate as the
// sanitizer/enricher); RankDay itself performs only the aggregation.
func (r *Ranker) RankDay(ctx context.Context, day string) error {
	sources, err := r.Facts.SourcesForDay(ctx, day)
	if err != nil {
		return err
	}

	var writes []storage.RankWrite
	toDelete := map[string]struct{}{
		storage.GlobalASNRankingKey(day, string(bgpranking.IPv4)): {},
		storage.GlobalASNRankingKey(day, string(bgpranking.IPv6)): {},
	}

	for _, source := range sources {
		impact := r.Impact(source)
		toDelete[storage.SourceASNRankingKey(day, source, string(bgpranking.IPv4))] = struct{}{}
		toDelete[storage.SourceASNRankingKey(day, source, string(bgpranking.IPv6))] = struct{}{}

		asns, err := r.Facts.ASNsForSource(ctx, day, source)
		if err != nil {
			return err
		}
		for _, asn := range asns {
			if asn == "0" {
				continue
			}

			prefixes, err := r.Facts.PrefixesForASN(ctx, day, source, asn)
			if err != nil {
				return err
			}

			var asnRankV4, asnRankV6 float64
			for _, prefix := range prefixes {
				if prefix == "None" {
					r.Logger.Printf("ranker: critical: literal \"None\" prefix for day=%s source=%s asn=%s, skipping", day, source, asn)
					continue
				}
				family, ok := prefixFamily(prefix)
				if !ok {
					r.Logger.Printf("ranker: critical: unparseable prefix %q for day=%s source=%s asn=%s, skipping", prefix, day, source, asn)
					continue
				}

				events, err := r.Facts.EventsForPrefix(ctx, day, source, asn, prefix)
				if err != nil {
					return err
				}
				distinctIPs := distinctIPsFromEvents(events)
				addresses := numAddresses(prefix)
				if addresses == 0 {
					continue
				}
				prefixRank := float64(distinctIPs) / float64(addresses)

				prefixRankingKey := storage.SourceASNPrefixRankingKey(day, source, asn, string(family))
				toDelete[prefixRankingKey] = struct{}{}
				writes = append(writes, storage.RankWrite{Kind: storage.RankZAdd, Key: prefixRankingKey, Member: prefix, Value: prefixRank})

				asnPrefixKey := storage.ASNPrefixRankingKey(day, asn, string(family))
				toDelete[asnPrefixKey] = struct{}{}
				writes = append(writes, storage.RankWrite{Kind: storage.RankZIncrBy, Key: asnPrefixKey, Member: prefix, Value: prefixRank * float64(impact)})

				contribution := float64(distinctIPs) * float64(impact)
				if family == bgpranking.IPv4 {
					asnRankV4 += contribution
				} else {
					asnRankV6 += contribution
				}
			}

			metaV4, err := r.IP2ASN.ASNMeta(ctx, asn, bgpranking.IPv4, day)
			if err != nil {
				return err
			}
			metaV6, err := r.IP2ASN.ASNMeta(ctx, asn, bgpranking.IPv6, day)
			if err != nil {
				return err
			}

			writes = append(writes, r.finalizeASNRank(day, source, asn, bgpranking.IPv4, asnRankV4, metaV4.CountV4, &toDelete)...)
			writes = append(writes, r.finalizeASNRank(day, source, asn, bgpranking.IPv6, asnRankV6, metaV6.CountV6, &toDelete)...)
		}
	}

	deleteKeys := make([]string, 0, len(toDelete))
	for k := range toDelete {
		deleteKeys = append(deleteKeys, k)
	}
	sort.Strings(deleteKeys)

	return r.Rank.CommitDay(ctx, deleteKeys, writes)
}

// finalizeASNRank divides the accumulated per-family rank by the
// announced-address count and, if non-zero, emits the scalar and both
// sorted-set increments. A missing or zero announced-IP count means
// the ASN contributes no scalar for that family on that day.
func (r *Ranker) finalizeASNRank(day, source, asn string, family bgpranking.AddressFamily, accumulated float64, announcedCount int, toDelete *map[string]struct{}) []storage.RankWrite {
	if announcedCount == 0 || accumulated == 0 {
		return nil
	}
	rank := accumulated / float64(announcedCount)

	scalarKey := storage.ScalarRankKey(day, source, asn, string(family))
	sourceZsetKey := storage.SourceASNRankingKey(day, source, string(family))
	globalZsetKey := storage.GlobalASNRankingKey(day, string(family))
	(*toDelete)[scalarKey] = struct{}{}

	return []storage.RankWrite{
		{Kind: storage.RankScalarSet, Key: scalarKey, Value: rank},
		{Kind: storage.RankZIncrBy, Key: sourceZsetKey, Member: asn, Value: rank},
		{Kind: storage.RankZIncrBy, Key: globalZsetKey, Member: asn, Value: rank},
	}
}

// prefixFamily classifies a CIDR prefix by address family.
func prefixFamily(prefix string) (bgpranking.AddressFamily, bool) {
	p, err := netip.ParsePrefix(prefix)
	if err != nil {
		return "", false
	}
	if p.Addr().Is4() {
		return bgpranking.IPv4, true
	}
	return bgpranking.IPv6, true
}

// numAddresses returns the number of addresses in a CIDR prefix.
func numAddresses(prefix string) uint64 {
	_, network, err := net.ParseCIDR(prefix)
	if err != nil {
		return 0
	}
	ones, bits := network.Mask.Size()
	if bits == 0 {
		return 0
	}
	return uint64(1) << uint(bits-ones)
}

// distinctIPsFromEvents counts the distinct IPs among "{ip}|{timestamp}"
// event strings, stripping the timestamp suffix before deduplicating.
func distinctIPsFromEvents(events []string) int {
	seen := map[string]struct{}{}
	for _, e := range events {
		ip := e
		if idx := strings.IndexByte(e, '|'); idx >= 0 {
			ip = e[:idx]
		}
		seen[ip] = struct{}{}
	}
	return len(seen)
}
