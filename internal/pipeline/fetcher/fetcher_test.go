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

package fetcher

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"bgpranking/pkg/bgpranking"
)

func newDescriptor(url string) bgpranking.FeedDescriptor {
	return bgpranking.FeedDescriptor{Vendor: "vendor", Name: "feed", URL: url, Impact: 3}
}

func TestTickNoURLIsNoop(t *testing.T) {
	f := New(bgpranking.FeedDescriptor{Vendor: "v", Name: "n"}, t.TempDir(), nil)
	if err := f.Tick(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestTickWritesNewFileOnFirstFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Last-Modified", time.Now().UTC().Format(http.TimeFormat))
		if r.Method == http.MethodGet {
			_, _ = w.Write([]byte("1.2.3.4\n"))
		}
	}))
	defer srv.Close()

	dir := t.TempDir()
	f := New(newDescriptor(srv.URL), dir, srv.Client())
	if err := f.Tick(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	entries, err := os.ReadDir(filepath.Join(dir, "vendor", "feed"))
	if err != nil {
		t.Fatal(err)
	}
	files := 0
	for _, e := range entries {
		if e.Type().IsRegular() {
			files++
		}
	}
	if files != 1 {
		t.Fatalf("expected 1 fetched file, got %d", files)
	}
}

func TestTickSkipsWhenLastModifiedUnchanged(t *testing.T) {
	fixed := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Last-Modified", fixed.Format(http.TimeFormat))
		if r.Method == http.MethodGet {
			calls++
			_, _ = w.Write([]byte("1.2.3.4\n"))
		}
	}))
	defer srv.Close()

	dir := t.TempDir()
	f := New(newDescriptor(srv.URL), dir, srv.Client())
	if err := f.Tick(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := f.Tick(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected exactly 1 GET, got %d", calls)
	}
}

func TestTickHeldLockIsNoop(t *testing.T) {
	dir := t.TempDir()
	f := New(newDescriptor("https://example.test/list.txt"), dir, nil)
	if err := os.MkdirAll(f.metaDir(), 0o755); err != nil {
		t.Fatal(err)
	}
	lockPath := filepath.Join(f.metaDir(), lockFileName)
	lock, err := os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatal(err)
	}
	defer lock.Close()

	if err := f.Tick(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
