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

// Package fetcher implements the per-descriptor feed poller:
// Last-Modified gating, content-hash deduplication, and a
// per-descriptor lock file so two fetcher instances never race one
// feed.
package fetcher

import (
	"context"
	"crypto/sha512"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"time"

	"bgpranking/pkg/bgpranking"
)

const (
	lastModifiedFileName = "lastmodified"
	lockFileName          = "fetch.lock"
)

// Fetcher polls one feed descriptor's URL.
type Fetcher struct {
	desc    bgpranking.FeedDescriptor
	dataDir string
	client  *http.Client
	now     func() time.Time
}

// New constructs a Fetcher for desc. dataDir is the root data
// directory; client's timeout bounds each HTTP request of a tick (the
// HEAD and the GET separately).
func New(desc bgpranking.FeedDescriptor, dataDir string, client *http.Client) *Fetcher {
	if client == nil {
		client = &http.Client{Timeout: 2 * time.Minute}
	}
	return &Fetcher{desc: desc, dataDir: dataDir, client: client, now: time.Now}
}

func (f *Fetcher) workingDir() string { return filepath.Join(f.dataDir, f.desc.Vendor, f.desc.Name) }
func (f *Fetcher) archiveDir() string { return filepath.Join(f.workingDir(), "archive") }
func (f *Fetcher) metaDir() string    { return filepath.Join(f.workingDir(), "meta") }

// Tick runs one poll of the descriptor's URL. It is silent (returns
// nil) when there is nothing to do: no URL bound,
// another instance holds the lock, or the content is unchanged.
func (f *Fetcher) Tick(ctx context.Context) error {
	if !f.desc.HasURL() {
		return nil
	}
	for _, dir := range []string{f.workingDir(), f.archiveDir(), f.metaDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("mkdir %s: %w", dir, err)
		}
	}

	unlock, locked, err := f.acquireLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !locked {
		// Another fetcher instance is already working this descriptor; normal, silent.
		return nil
	}
	defer unlock()

	shouldFetch, err := f.isNewer(ctx)
	if err != nil {
		return fmt.Errorf("check last-modified: %w", err)
	}
	if !shouldFetch {
		return nil
	}

	body, err := f.download(ctx)
	if err != nil {
		return fmt.Errorf("download %s: %w", f.desc.Source(), err)
	}

	if f.duplicateOfLatest(body) {
		return nil
	}

	path := filepath.Join(f.workingDir(), f.now().UTC().Format(time.RFC3339)+".txt")
	if err := os.WriteFile(path, body, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

// acquireLock attempts to create an exclusive lock file. locked is
// false (with a nil unlock and nil error) when another instance already
// holds it — that is the normal, silent case.
func (f *Fetcher) acquireLock() (unlock func(), locked bool, err error) {
	path := filepath.Join(f.metaDir(), lockFileName)
	file, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return nil, false, nil
		}
		return nil, false, err
	}
	_ = file.Close()
	return func() { _ = os.Remove(path) }, true, nil
}

// isNewer implements the Last-Modified gating state machine.
func (f *Fetcher) isNewer(ctx context.Context) (bool, error) {
	path := filepath.Join(f.metaDir(), lastModifiedFileName)
	prevRaw, err := os.ReadFile(path)
	firstTick := errors.Is(err, os.ErrNotExist)
	if err != nil && !firstTick {
		return false, err
	}

	lastModified, haveHeader, err := f.headLastModified(ctx)
	if err != nil {
		// Network errors are transient; log is the caller's job, retry next tick.
		return false, err
	}

	if !haveHeader {
		// Cannot gate without the header; always proceed.
		return true, nil
	}

	if firstTick {
		if err := os.WriteFile(path, []byte(lastModified.Format(time.RFC3339)), 0o644); err != nil {
			return false, err
		}
		return true, nil
	}

	prev, err := time.Parse(time.RFC3339, string(prevRaw))
	if err != nil {
		// Corrupt local state: treat like "no prior record" rather than failing the tick.
		if err := os.WriteFile(path, []byte(lastModified.Format(time.RFC3339)), 0o644); err != nil {
			return false, err
		}
		return true, nil
	}

	if lastModified.After(prev) {
		if err := os.WriteFile(path, []byte(lastModified.Format(time.RFC3339)), 0o644); err != nil {
			return false, err
		}
		return true, nil
	}
	return false, nil
}

func (f *Fetcher) headLastModified(ctx context.Context) (time.Time, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, f.desc.URL, nil)
	if err != nil {
		return time.Time{}, false, err
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return time.Time{}, false, err
	}
	defer resp.Body.Close()
	raw := resp.Header.Get("Last-Modified")
	if raw == "" {
		return time.Time{}, false, nil
	}
	t, err := http.ParseTime(raw)
	if err != nil {
		return time.Time{}, false, nil
	}
	return t, true, nil
}

func (f *Fetcher) download(ctx context.Context) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.desc.URL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("unexpected status %s", resp.Status)
	}
	return io.ReadAll(resp.Body)
}

// duplicateOfLatest compares the digest of body against the newest
// file in both the working and archive directories, discarding only if
// equal AND that file's name-embedded timestamp is today.
func (f *Fetcher) duplicateOfLatest(body []byte) bool {
	candidates := newestFileIn(f.workingDir())
	candidates = append(candidates, newestFileIn(f.archiveDir())...)
	if len(candidates) == 0 {
		return false
	}
	digest := sha512.Sum512(body)
	today := f.now().UTC().Format("2006-01-02")
	for _, path := range candidates {
		ts := fileTimestamp(filepath.Base(path))
		if len(ts) < 10 || ts[:10] != today {
			continue
		}
		existing, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		if sha512.Sum512(existing) == digest {
			return true
		}
	}
	return false
}

// newestFileIn returns the lexicographically-last (i.e. most recent,
// given ISO-8601 filenames) regular file directly under dir, or nil.
func newestFileIn(dir string) []string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.Type().IsRegular() {
			names = append(names, e.Name())
		}
	}
	if len(names) == 0 {
		return nil
	}
	sort.Strings(names)
	return []string{filepath.Join(dir, names[len(names)-1])}
}

func fileTimestamp(name string) string {
	ext := filepath.Ext(name)
	return name[:len(name)-len(ext)]
}
