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

// Package feedregistry loads and indexes feed descriptors from a
// directory of JSON documents. It is an in-memory index only;
// descriptors are immutable for the duration of a run except that
// Refresh may pick up files added after startup.
package feedregistry

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"bgpranking/pkg/bgpranking"
)

// Registry is a thread-safe, ordered snapshot of feed descriptors keyed
// by source ("{vendor}-{name}").
type Registry struct {
	dir string

	mu          sync.RWMutex
	bySource    map[string]bgpranking.FeedDescriptor
	loadedFiles map[string]struct{}
}

// New constructs an empty registry rooted at dir. Call Refresh (or Load)
// to populate it.
func New(dir string) *Registry {
	return &Registry{
		dir:         dir,
		bySource:    map[string]bgpranking.FeedDescriptor{},
		loadedFiles: map[string]struct{}{},
	}
}

// Load performs the initial, full scan of dir for *.json descriptors.
// Two descriptors sharing a source is a configuration error and aborts
// the load with no partial registry retained.
func Load(dir string) (*Registry, error) {
	r := New(dir)
	if err := r.Refresh(); err != nil {
		return nil, err
	}
	return r, nil
}

// Refresh re-scans dir for descriptor files not yet loaded and adds
// them to the registry, so new files are picked up on each outer loop.
// Descriptors already loaded are left untouched even if their file
// content changed on disk.
func (r *Registry) Refresh() error {
	matches, err := filepath.Glob(filepath.Join(r.dir, "*.json"))
	if err != nil {
		return fmt.Errorf("glob %s: %w", r.dir, err)
	}
	sort.Strings(matches)

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, path := range matches {
		if _, ok := r.loadedFiles[path]; ok {
			continue
		}
		desc, err := loadDescriptor(path)
		if err != nil {
			return fmt.Errorf("load descriptor %s: %w", path, err)
		}
		source := desc.Source()
		if existing, ok := r.bySource[source]; ok {
			return fmt.Errorf("duplicate feed source %q: %s and a previously loaded descriptor both claim it (%+v)", source, path, existing)
		}
		r.bySource[source] = desc
		r.loadedFiles[path] = struct{}{}
	}
	return nil
}

func loadDescriptor(path string) (bgpranking.FeedDescriptor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return bgpranking.FeedDescriptor{}, err
	}
	var desc bgpranking.FeedDescriptor
	if err := json.Unmarshal(data, &desc); err != nil {
		return bgpranking.FeedDescriptor{}, fmt.Errorf("malformed descriptor: %w", err)
	}
	if desc.Vendor == "" || desc.Name == "" {
		return bgpranking.FeedDescriptor{}, fmt.Errorf("descriptor is missing vendor or name")
	}
	return desc, nil
}

// Snapshot returns every known descriptor, ordered by source for
// deterministic iteration.
func (r *Registry) Snapshot() []bgpranking.FeedDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]bgpranking.FeedDescriptor, 0, len(r.bySource))
	for _, d := range r.bySource {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Source() < out[j].Source() })
	return out
}

// Get looks up a descriptor by source.
func (r *Registry) Get(source string) (bgpranking.FeedDescriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.bySource[source]
	return d, ok
}

// Impact returns the effective impact of source, or 1 if the source is
// unknown (never registered) — the ranker should not fail a whole day's
// computation over a feed that was retired mid-stream.
func (r *Registry) Impact(source string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if d, ok := r.bySource[source]; ok {
		return d.EffectiveImpact()
	}
	return 1
}
