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

// Package parser extracts IP/timestamp intake records from raw feed
// files. The default strategy is a permissive regex over dotted-quad
// literals; bespoke strategies are registered in Catalogue and bound
// to a descriptor by its Parser identifier.
package parser

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"time"

	"github.com/google/uuid"

	"bgpranking/internal/pipeline/metrics"
	"bgpranking/internal/pipeline/storage"
	"bgpranking/pkg/bgpranking"
)

// ipv4Pattern is deliberately permissive: it accepts invalid octets
// like "999.1.1.1" because the sanitizer, not the parser, is the
// validation boundary. Leading zeros are preserved.
var ipv4Pattern = regexp.MustCompile(`[0-9]+(?:\.[0-9]+){3}`)

// Item is one parsed observation: an IP, optionally paired with its own
// timestamp. When Datetime is zero, the caller substitutes the
// strategy's shared fallback timestamp.
type Item struct {
	IP       string
	Datetime time.Time
}

// Strategy turns raw file bytes into a sequence of items. A strategy
// that recognises the "feed not generated for this family" sentinel
// returns a nil slice with a nil error.
type Strategy func(raw []byte, fallback time.Time) ([]Item, error)

// DefaultStrategy extracts every dotted-quad IPv4 literal, assigning
// every item the shared fallback timestamp (Parser.Tick passes the
// start of the current UTC day).
func DefaultStrategy(raw []byte, fallback time.Time) ([]Item, error) {
	matches := ipv4Pattern.FindAll(raw, -1)
	items := make([]Item, len(matches))
	for i, m := range matches {
		items[i] = Item{IP: string(m), Datetime: fallback}
	}
	return items, nil
}

// Parser applies one descriptor's bound strategy over its directory of
// raw files.
type Parser struct {
	Source   string
	DataDir  string
	Strategy Strategy
	Queue    storage.QueueStore
	Logger   *log.Logger
	now      func() time.Time
}

// New constructs a Parser for one feed source. strategy nil defaults to
// DefaultStrategy.
func New(source, dataDir string, strategy Strategy, queue storage.QueueStore, logger *log.Logger) *Parser {
	if strategy == nil {
		strategy = DefaultStrategy
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Parser{Source: source, DataDir: dataDir, Strategy: strategy, Queue: queue, Logger: logger, now: time.Now}
}

func (p *Parser) workingDir() string    { return p.DataDir }
func (p *Parser) archiveDir() string    { return filepath.Join(p.workingDir(), "archive") }
func (p *Parser) unparsableDir() string { return filepath.Join(p.workingDir(), "unparsable") }

// Tick processes every file in the descriptor's working directory,
// newest first, archiving or quarantining each as it finishes.
func (p *Parser) Tick(ctx context.Context) error {
	for _, dir := range []string{p.archiveDir(), p.unparsableDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("mkdir %s: %w", dir, err)
		}
	}

	files, err := p.filesToParse()
	if err != nil {
		return err
	}

	fallback := p.now().Local().Truncate(24 * time.Hour)
	for _, path := range files {
		if err := p.parseOne(ctx, path, fallback); err != nil {
			p.Logger.Printf("parser: failed to parse %s: %v; moving to unparsable", path, err)
			if err := os.Rename(path, filepath.Join(p.unparsableDir(), filepath.Base(path))); err != nil {
				return fmt.Errorf("move %s to unparsable: %w", path, err)
			}
			continue
		}
		if err := os.Rename(path, filepath.Join(p.archiveDir(), filepath.Base(path))); err != nil {
			return fmt.Errorf("archive %s: %w", path, err)
		}
	}
	return nil
}

func (p *Parser) parseOne(ctx context.Context, path string, fallback time.Time) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	items, err := p.Strategy(raw, fallback)
	if err != nil {
		return err
	}
	for _, item := range items {
		when := item.Datetime
		if when.IsZero() {
			when = fallback
		}
		id := uuid.NewString()
		if err := p.Queue.SetRecord(ctx, id, map[string]string{
			"ip":       item.IP,
			"source":   p.Source,
			"datetime": when.Format(time.RFC3339),
		}); err != nil {
			return err
		}
		if err := p.Queue.Push(ctx, storage.IntakeQueue, id); err != nil {
			return err
		}
		metrics.ObserveIntake(p.Source)
	}
	metrics.ObserveBatch("parser", len(items))
	return nil
}

// filesToParse lists regular files directly under the working
// directory, newest (lexicographically last, given ISO-8601 names)
// first.
func (p *Parser) filesToParse() ([]string, error) {
	entries, err := os.ReadDir(p.workingDir())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if e.Type().IsRegular() {
			names = append(names, e.Name())
		}
	}
	sort.Sort(sort.Reverse(sort.StringSlice(names)))
	paths := make([]string, len(names))
	for i, n := range names {
		paths[i] = filepath.Join(p.workingDir(), n)
	}
	return paths, nil
}
