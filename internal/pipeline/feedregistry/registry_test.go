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

package feedregistry

import (
	"os"
	"path/filepath"
	"testing"
)

func writeDescriptor(t *testing.T, dir, filename, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, filename), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestLoadOrdersBySourceAndDefaultsImpact(t *testing.T) {
	dir := t.TempDir()
	writeDescriptor(t, dir, "b.json", `{"vendor":"bvendor","name":"feed"}`)
	writeDescriptor(t, dir, "a.json", `{"vendor":"avendor","name":"feed","impact":5,"url":"https://example.test/list.txt"}`)

	reg, err := Load(dir)
	if err != nil {
		t.Fatal(err)
	}
	snap := reg.Snapshot()
	if len(snap) != 2 {
		t.Fatalf("expected 2 descriptors, got %d", len(snap))
	}
	if snap[0].Source() != "avendor-feed" || snap[1].Source() != "bvendor-feed" {
		t.Fatalf("expected ordering by source, got %v, %v", snap[0].Source(), snap[1].Source())
	}
	if snap[1].EffectiveImpact() != 1 {
		t.Fatalf("expected default impact 1, got %d", snap[1].EffectiveImpact())
	}
	if snap[0].HasURL() != true || snap[1].HasURL() != false {
		t.Fatalf("unexpected HasURL: %v, %v", snap[0].HasURL(), snap[1].HasURL())
	}
}

func TestLoadRejectsDuplicateSource(t *testing.T) {
	dir := t.TempDir()
	writeDescriptor(t, dir, "a.json", `{"vendor":"v","name":"feed"}`)
	writeDescriptor(t, dir, "b.json", `{"vendor":"v","name":"feed"}`)

	if _, err := Load(dir); err == nil {
		t.Fatal("expected error for duplicate source")
	}
}

func TestRefreshPicksUpNewFilesOnly(t *testing.T) {
	dir := t.TempDir()
	writeDescriptor(t, dir, "a.json", `{"vendor":"v","name":"one"}`)

	reg, err := Load(dir)
	if err != nil {
		t.Fatal(err)
	}
	writeDescriptor(t, dir, "b.json", `{"vendor":"v","name":"two"}`)
	if err := reg.Refresh(); err != nil {
		t.Fatal(err)
	}
	if len(reg.Snapshot()) != 2 {
		t.Fatalf("expected 2 descriptors after refresh, got %d", len(reg.Snapshot()))
	}
}

func TestImpactUnknownSourceDefaultsToOne(t *testing.T) {
	reg := New(t.TempDir())
	if reg.Impact("nope") != 1 {
		t.Fatalf("expected default impact 1 for unknown source")
	}
}
