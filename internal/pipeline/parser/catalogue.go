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
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"
)

// Catalogue resolves a descriptor's Parser identifier to a concrete
// Strategy: a registry mapping string identifier to strategy value.
// Unknown identifiers are a startup error, not a runtime one.
var Catalogue = map[string]Strategy{
	"generated-at-line": GeneratedAtLineStrategy,
	"updated-line":      UpdatedLineStrategy,
	"csv-timestamp-ip":  CSVStrategy,
	"ioc-value-json":    IOCValueJSONStrategy,
}

// Lookup resolves id to a Strategy, or reports an error for an unknown
// identifier — a configuration error, surfaced at startup by the
// caller, not at the moment a file happens to need it.
func Lookup(id string) (Strategy, error) {
	if id == "" {
		return DefaultStrategy, nil
	}
	strategy, ok := Catalogue[id]
	if !ok {
		return nil, fmt.Errorf("parser: unknown parser identifier %q", id)
	}
	return strategy, nil
}

var notGeneratedSentinel = []byte("This feed is not generated for this family")

var generatedAtPattern = regexp.MustCompile(`(?m)^## Feed generated at: (.*)$`)

// GeneratedAtLineStrategy extracts a "## Feed generated at: <ts>"
// header line as the shared timestamp for every IP in the file.
// Recognises the "feed not generated for this family" sentinel as an
// explicit empty result.
func GeneratedAtLineStrategy(raw []byte, fallback time.Time) ([]Item, error) {
	if bytes.Contains(raw, notGeneratedSentinel) {
		return nil, nil
	}
	when := fallback
	if m := generatedAtPattern.FindSubmatch(raw); m != nil {
		if t, err := time.Parse(time.RFC1123, strings.TrimSpace(string(m[1]))); err == nil {
			when = t
		} else if t, err := time.Parse(time.RFC3339, strings.TrimSpace(string(m[1]))); err == nil {
			when = t
		}
	}
	return DefaultStrategy(raw, when)
}

var updatedLinePattern = regexp.MustCompile(`(?m)^# updated (.*)$`)

// UpdatedLineStrategy extracts a "# updated <ts>" header line as the
// shared timestamp. Leading zeros in octets are preserved, matching
// every other strategy in this package.
func UpdatedLineStrategy(raw []byte, fallback time.Time) ([]Item, error) {
	when := fallback
	if m := updatedLinePattern.FindSubmatch(raw); m != nil {
		if t, err := time.Parse(time.RFC1123, strings.TrimSpace(string(m[1]))); err == nil {
			when = t
		} else if t, err := time.Parse(time.RFC3339, strings.TrimSpace(string(m[1]))); err == nil {
			when = t
		}
	}
	return DefaultStrategy(raw, when)
}

// CSVStrategy reads a header-bearing CSV file where each row names an
// IP under the "ip" or "src_ip" column, and optionally a per-row
// timestamp under "timestamp" (falling back to the shared timestamp
// otherwise).
func CSVStrategy(raw []byte, fallback time.Time) ([]Item, error) {
	reader := csv.NewReader(bytes.NewReader(raw))
	reader.FieldsPerRecord = -1
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("csv parse: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	header := rows[0]
	colIndex := make(map[string]int, len(header))
	for i, name := range header {
		colIndex[strings.TrimSpace(name)] = i
	}

	ipCol, ok := colIndex["ip"]
	if !ok {
		ipCol, ok = colIndex["src_ip"]
	}
	if !ok {
		return nil, fmt.Errorf("csv has neither an ip nor src_ip column")
	}
	tsCol, hasTS := colIndex["timestamp"]

	items := make([]Item, 0, len(rows)-1)
	for _, row := range rows[1:] {
		if ipCol >= len(row) {
			continue
		}
		when := fallback
		if hasTS && tsCol < len(row) {
			if t, err := time.Parse(time.RFC3339, row[tsCol]); err == nil {
				when = t
			}
		}
		items = append(items, Item{IP: row[ipCol], Datetime: when})
	}
	return items, nil
}

// iocEntry is one ThreatFox-shaped JSON document value: a list of
// indicator objects, each carrying an "ioc_value" of "ip:port".
type iocEntry struct {
	IOCValue string `json:"ioc_value"`
}

// IOCValueJSONStrategy reads a JSON object mapping arbitrary keys to
// arrays of indicator objects whose "ioc_value" is "ip:port", taking
// only the IP half.
func IOCValueJSONStrategy(raw []byte, fallback time.Time) ([]Item, error) {
	var doc map[string][]iocEntry
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("json parse: %w", err)
	}
	var items []Item
	for _, entries := range doc {
		for _, entry := range entries {
			ip := entry.IOCValue
			if idx := strings.IndexByte(ip, ':'); idx >= 0 {
				ip = ip[:idx]
			}
			if ip == "" {
				continue
			}
			items = append(items, Item{IP: ip, Datetime: fallback})
		}
	}
	return items, nil
}
