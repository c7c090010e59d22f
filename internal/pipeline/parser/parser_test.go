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

package parser

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"bgpranking/internal/pipeline/storage"
)

func writeRaw(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestTickArchivesParsedFileAndEnqueuesIntake(t *testing.T) {
	dir := t.TempDir()
	writeRaw(t, dir, "2026-07-30T00:00:00Z.txt", "1.2.3.4\nnot-an-ip\n5.6.7.8\n")

	q := storage.NewFakeQueueStore()
	p := New("vendor-feed", dir, nil, q, nil)
	if err := p.Tick(context.Background()); err != nil {
		t.Fatal(err)
	}

	if q.QueueLen(storage.IntakeQueue) != 2 {
		t.Fatalf("expected 2 intake records, got %d", q.QueueLen(storage.IntakeQueue))
	}
	if _, err := os.Stat(filepath.Join(dir, "archive", "2026-07-30T00:00:00Z.txt")); err != nil {
		t.Fatalf("expected file archived: %v", err)
	}
}

func TestTickMovesUnparsableFileOnStrategyError(t *testing.T) {
	dir := t.TempDir()
	writeRaw(t, dir, "broken.txt", "{not valid json")

	q := storage.NewFakeQueueStore()
	p := New("vendor-feed", dir, IOCValueJSONStrategy, q, nil)
	if err := p.Tick(context.Background()); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(filepath.Join(dir, "unparsable", "broken.txt")); err != nil {
		t.Fatalf("expected file moved to unparsable: %v", err)
	}
}

func TestDefaultStrategyPreservesLeadingZeros(t *testing.T) {
	items, err := DefaultStrategy([]byte("010.020.030.040"), time.Now())
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 1 || items[0].IP != "010.020.030.040" {
		t.Fatalf("expected leading zeros preserved, got %+v", items)
	}
}

func TestGeneratedAtLineStrategyHandlesNotGeneratedSentinel(t *testing.T) {
	items, err := GeneratedAtLineStrategy([]byte("This feed is not generated for this family\n"), time.Now())
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 0 {
		t.Fatalf("expected empty result for sentinel, got %+v", items)
	}
}

func TestIOCValueJSONStrategyExtractsIPFromPort(t *testing.T) {
	raw := []byte(`{"2026-07-30": [{"ioc_value": "1.2.3.4:4444"}]}`)
	items, err := IOCValueJSONStrategy(raw, time.Now())
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 1 || items[0].IP != "1.2.3.4" {
		t.Fatalf("expected ip without port, got %+v", items)
	}
}

func TestCSVStrategySupportsSrcIPColumn(t *testing.T) {
	raw := []byte("src_ip,timestamp\n1.2.3.4,2026-07-30T00:00:00Z\n")
	items, err := CSVStrategy(raw, time.Now())
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 1 || items[0].IP != "1.2.3.4" {
		t.Fatalf("expected one row parsed, got %+v", items)
	}
}

func TestLookupRejectsUnknownIdentifier(t *testing.T) {
	if _, err := Lookup("not-a-real-parser"); err == nil {
		t.Fatal("expected error for unknown parser identifier")
	}
}
