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

// Package sanitizer validates and normalises intake records before they
// become enrichment candidates: pop-then-read-then-write against the
// queue store, gated on ip-to-asn readiness, with mass-cache priming
// before the batch is committed to the to_insert queue.
package sanitizer

import (
	"context"
	"log"
	"net/netip"
	"time"

	"bgpranking/internal/pipeline/ip2asn"
	"bgpranking/internal/pipeline/metrics"
	"bgpranking/internal/pipeline/storage"
	"bgpranking/pkg/bgpranking"
)

const batchSize = 100

// Sanitizer drains the intake queue into the to_insert queue.
type Sanitizer struct {
	Queue  storage.QueueStore
	IP2ASN ip2asn.Client
	Logger *log.Logger
}

// New constructs a Sanitizer. A nil logger falls back to log.Default().
func New(queue storage.QueueStore, client ip2asn.Client, logger *log.Logger) *Sanitizer {
	if logger == nil {
		logger = log.Default()
	}
	return &Sanitizer{Queue: queue, IP2ASN: client, Logger: logger}
}

// Tick runs one drain of the intake queue. It returns nil
// both when there was nothing to do and after a successful drain;
// errors are reserved for conditions that should interrupt the worker's
// outer loop (mass-cache failures are handled internally via rollback,
// not returned).
func (s *Sanitizer) Tick(ctx context.Context) error {
	ready, err := s.IP2ASN.Meta(ctx)
	if err != nil {
		s.Logger.Printf("sanitizer: readiness check failed: %v", err)
		return nil
	}
	if !ready.Ready() {
		s.Logger.Printf("sanitizer: ip-to-asn service not ready (v4=%.1f%% v6=%.1f%%), skipping tick", ready.PercentV4, ready.PercentV6)
		return nil
	}

	ids, err := s.Queue.PopBatch(ctx, storage.IntakeQueue, batchSize)
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		return nil
	}
	metrics.ObserveBatch("sanitizer", len(ids))

	records, err := s.Queue.GetRecords(ctx, ids)
	if err != nil {
		return err
	}

	var (
		kept      []string
		dropped   []string
		cacheReqs []ip2asn.Query
	)
	for i, id := range ids {
		fields := records[i]
		if fields == nil {
			metrics.ObserveDiscarded("sanitizer", "missing-record")
			dropped = append(dropped, id)
			continue
		}
		sanitized, reason, ok := s.sanitizeOne(fields)
		if !ok {
			metrics.ObserveDiscarded("sanitizer", reason)
			dropped = append(dropped, id)
			continue
		}
		if err := s.Queue.SetRecord(ctx, id, map[string]string{
			"ip":             sanitized.IP,
			"source":         sanitized.Source,
			"address_family": string(sanitized.AddressFamily),
			"date":           sanitized.Date,
			"datetime":       sanitized.Datetime.Format(time.RFC3339),
		}); err != nil {
			return err
		}
		kept = append(kept, id)
		metrics.ObserveSanitized(sanitized.Source)
		cacheReqs = append(cacheReqs, ip2asn.Query{IP: sanitized.IP, AddressFamily: sanitized.AddressFamily, Date: sanitized.Date})
	}

	if len(kept) > 0 {
		if err := s.IP2ASN.MassCache(ctx, cacheReqs); err != nil {
			s.Logger.Printf("sanitizer: mass-cache priming failed, rolling back batch to intake: %v", err)
			if pushErr := s.Queue.Push(ctx, storage.IntakeQueue, ids...); pushErr != nil {
				return pushErr
			}
			return nil
		}
		if err := s.Queue.Push(ctx, storage.ToInsertQueue, kept...); err != nil {
			return err
		}
	}

	// Kept ids carry their sanitized hash on to the enricher; only the
	// discarded ones are deleted here.
	return s.Queue.DeleteRecords(ctx, dropped)
}

func (s *Sanitizer) sanitizeOne(fields map[string]string) (bgpranking.SanitizedRecord, string, bool) {
	rawIP, ok := fields["ip"]
	if !ok || rawIP == "" {
		return bgpranking.SanitizedRecord{}, "missing-ip", false
	}
	addr, err := netip.ParseAddr(rawIP)
	if err != nil {
		s.Logger.Printf("sanitizer: invalid IP address %q", rawIP)
		return bgpranking.SanitizedRecord{}, "invalid-ip", false
	}
	if !isGlobal(addr) {
		s.Logger.Printf("sanitizer: IP address %q is not global", rawIP)
		return bgpranking.SanitizedRecord{}, "non-global-ip", false
	}

	rawDatetime, ok := fields["datetime"]
	if !ok || rawDatetime == "" {
		return bgpranking.SanitizedRecord{}, "missing-datetime", false
	}
	when, err := time.Parse(time.RFC3339, rawDatetime)
	if err != nil {
		s.Logger.Printf("sanitizer: invalid datetime %q", rawDatetime)
		return bgpranking.SanitizedRecord{}, "invalid-datetime", false
	}
	when = when.UTC()

	family := bgpranking.IPv4
	if addr.Is6() && !addr.Is4In6() {
		family = bgpranking.IPv6
	}

	return bgpranking.SanitizedRecord{
		IP:            addr.String(),
		Source:        fields["source"],
		AddressFamily: family,
		Date:          bgpranking.RFC3339Day(when),
		Datetime:      when,
	}, "", true
}

// isGlobal reports whether addr is valid and not private, loopback,
// link-local, multicast or the unspecified address. Other
// special-purpose ranges (for example 100.64.0.0/10, 192.0.2.0/24,
// 240.0.0.0/4 or 2001:db8::/32) are not rejected.
func isGlobal(addr netip.Addr) bool {
	if !addr.IsValid() {
		return false
	}
	switch {
	case addr.IsUnspecified(),
		addr.IsLoopback(),
		addr.IsPrivate(),
		addr.IsLinkLocalUnicast(),
		addr.IsLinkLocalMulticast(),
		addr.IsInterfaceLocalMulticast(),
		addr.IsMulticast():
		return false
	}
	return true
}
