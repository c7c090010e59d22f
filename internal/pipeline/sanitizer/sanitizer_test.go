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

package sanitizer

import (
	"context"
	"testing"
	"time"

	"bgpranking/internal/pipeline/ip2asn"
	"bgpranking/internal/pipeline/storage"
)

func seedIntake(t *testing.T, q *storage.FakeQueueStore, ip, source string, when time.Time) string {
	t.Helper()
	id := ip + "-uuid"
	if err := q.SetRecord(context.Background(), id, map[string]string{
		"ip": ip, "source": source, "datetime": when.Format(time.RFC3339),
	}); err != nil {
		t.Fatal(err)
	}
	if err := q.Push(context.Background(), storage.IntakeQueue, id); err != nil {
		t.Fatal(err)
	}
	return id
}

func TestTickDiscardsNonGlobalAddresses(t *testing.T) {
	q := storage.NewFakeQueueStore()
	now := time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC)
	seedIntake(t, q, "10.0.0.1", "src-a", now)
	seedIntake(t, q, "8.8.8.8", "src-a", now)

	s := New(q, ip2asn.NewFakeClient(), nil)
	if err := s.Tick(context.Background()); err != nil {
		t.Fatal(err)
	}

	if q.QueueLen(storage.ToInsertQueue) != 1 {
		t.Fatalf("expected exactly one sanitized record, got %d", q.QueueLen(storage.ToInsertQueue))
	}
	if q.QueueLen(storage.IntakeQueue) != 0 {
		t.Fatalf("expected intake to be drained, got %d remaining", q.QueueLen(storage.IntakeQueue))
	}
}

func TestTickSkipsWhenServiceNotReady(t *testing.T) {
	q := storage.NewFakeQueueStore()
	now := time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC)
	seedIntake(t, q, "8.8.8.8", "src-a", now)

	fake := ip2asn.NewFakeClient()
	fake.Readiness = ip2asn.Readiness{PercentV4: 10, PercentV6: 10}

	s := New(q, fake, nil)
	if err := s.Tick(context.Background()); err != nil {
		t.Fatal(err)
	}
	if q.QueueLen(storage.IntakeQueue) != 1 {
		t.Fatalf("expected intake untouched when service not ready, got %d", q.QueueLen(storage.IntakeQueue))
	}
}

func TestTickRollsBackOnMassCacheFailure(t *testing.T) {
	q := storage.NewFakeQueueStore()
	now := time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC)
	seedIntake(t, q, "8.8.8.8", "src-a", now)

	fake := ip2asn.NewFakeClient()
	fake.MassCacheErr = context.DeadlineExceeded

	s := New(q, fake, nil)
	if err := s.Tick(context.Background()); err != nil {
		t.Fatal(err)
	}
	if q.QueueLen(storage.IntakeQueue) != 1 {
		t.Fatalf("expected rollback to intake on mass-cache failure, got %d", q.QueueLen(storage.IntakeQueue))
	}
	if q.QueueLen(storage.ToInsertQueue) != 0 {
		t.Fatalf("expected nothing committed to to_insert on rollback, got %d", q.QueueLen(storage.ToInsertQueue))
	}
}

func TestTickNormalisesTimezoneAwareDatetime(t *testing.T) {
	q := storage.NewFakeQueueStore()
	loc := time.FixedZone("UTC-5", -5*60*60)
	when := time.Date(2026, 7, 30, 23, 0, 0, 0, loc) // 2026-07-31T04:00:00Z
	id := seedIntake(t, q, "8.8.8.8", "src-a", when)

	s := New(q, ip2asn.NewFakeClient(), nil)
	if err := s.Tick(context.Background()); err != nil {
		t.Fatal(err)
	}

	records, err := q.GetRecords(context.Background(), []string{id})
	if err != nil {
		t.Fatal(err)
	}
	if records[0]["date"] != "2026-07-31" {
		t.Fatalf("expected UTC day 2026-07-31, got %q", records[0]["date"])
	}
}
