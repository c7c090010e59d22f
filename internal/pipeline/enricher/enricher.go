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

// Package enricher implements the enrichment stage: it mass-queries
// the external IP-to-ASN history service for a batch of
// sanitized records and writes the resulting facts to durable storage,
// partitioning each record into done, retry, or discarded.
package enricher

import (
	"context"
	"log"
	"time"

	"bgpranking/internal/pipeline/ip2asn"
	"bgpranking/internal/pipeline/metrics"
	"bgpranking/internal/pipeline/storage"
	"bgpranking/pkg/bgpranking"
)

const batchSize = 100

// Enricher drains the to_insert queue into durable facts.
type Enricher struct {
	Queue  storage.QueueStore
	Facts  storage.FactStore
	IP2ASN ip2asn.Client
	Logger *log.Logger
}

// New constructs an Enricher. A nil logger falls back to log.Default().
func New(queue storage.QueueStore, facts storage.FactStore, client ip2asn.Client, logger *log.Logger) *Enricher {
	if logger == nil {
		logger = log.Default()
	}
	return &Enricher{Queue: queue, Facts: facts, IP2ASN: client, Logger: logger}
}

// Tick runs one drain of the to_insert queue.
func (e *Enricher) Tick(ctx context.Context) error {
	ready, err := e.IP2ASN.Meta(ctx)
	if err != nil {
		e.Logger.Printf("enricher: readiness check failed: %v", err)
		return nil
	}
	if !ready.Ready() {
		e.Logger.Printf("enricher: ip-to-asn service not ready (v4=%.1f%% v6=%.1f%%), skipping tick", ready.PercentV4, ready.PercentV6)
		return nil
	}

	ids, err := e.Queue.PopBatch(ctx, storage.ToInsertQueue, batchSize)
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		return nil
	}
	metrics.ObserveBatch("enricher", len(ids))

	records, err := e.Queue.GetRecords(ctx, ids)
	if err != nil {
		return err
	}

	type candidate struct {
		id     string
		record bgpranking.SanitizedRecord
	}
	candidates := make([]candidate, 0, len(ids))
	queries := make([]ip2asn.Query, 0, len(ids))
	for i, id := range ids {
		fields := records[i]
		if fields == nil {
			metrics.ObserveDiscarded("enricher", "missing-record")
			continue
		}
		when, err := time.Parse(time.RFC3339, fields["datetime"])
		if err != nil {
			metrics.ObserveDiscarded("enricher", "invalid-datetime")
			continue
		}
		family := bgpranking.AddressFamily(fields["address_family"])
		rec := bgpranking.SanitizedRecord{
			IP: fields["ip"], Source: fields["source"],
			AddressFamily: family, Date: fields["date"], Datetime: when,
		}
		candidates = append(candidates, candidate{id: id, record: rec})
		queries = append(queries, ip2asn.Query{IP: rec.IP, AddressFamily: family, Date: rec.Date})
	}

	queryStart := time.Now()
	results, err := e.IP2ASN.MassQuery(ctx, queries)
	metrics.ObserveExternalCall("mass_query", time.Since(queryStart))
	if err != nil {
		e.Logger.Printf("enricher: mass-query failed, re-queuing batch: %v", err)
		return e.Queue.Push(ctx, storage.ToInsertQueue, ids...)
	}

	var (
		done, retry, discarded []string
		facts                  []storage.Fact
	)
	for i, c := range candidates {
		res := results[i]
		switch {
		case res.IsRouted():
			done = append(done, c.id)
			facts = append(facts, storage.Fact{
				Day: c.record.Date, Source: c.record.Source,
				ASN: res.ASN, Prefix: res.Prefix,
				IP: c.record.IP, Timestamp: c.record.Datetime,
			})
			metrics.ObserveEnriched(c.record.Source)
		case res.IsUnknown():
			retry = append(retry, c.id)
			metrics.ObserveRetried(c.record.Source)
		default:
			discarded = append(discarded, c.id)
			metrics.ObserveDiscarded("enricher", "routing-error")
		}
	}

	if len(facts) > 0 {
		if err := e.Facts.AddFacts(ctx, facts); err != nil {
			e.Logger.Printf("enricher: AddFacts failed, re-queuing whole batch: %v", err)
			return e.Queue.Push(ctx, storage.ToInsertQueue, ids...)
		}
	}

	toDelete := append(append([]string{}, done...), discarded...)
	if len(toDelete) > 0 {
		if err := e.Queue.DeleteRecords(ctx, toDelete); err != nil {
			return err
		}
	}
	if len(retry) > 0 {
		if err := e.Queue.Push(ctx, storage.ToInsertQueue, retry...); err != nil {
			return err
		}
	}
	return nil
}
