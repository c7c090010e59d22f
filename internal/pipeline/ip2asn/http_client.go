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

package ip2asn

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"bgpranking/pkg/bgpranking"
)

// HTTPClient talks to the external IP-to-ASN history service over JSON
// HTTP. It carries no retry logic of its own: transient failures
// bubble up so the calling stage can re-queue and retry on its own
// schedule — no persistent backoff state inside a single call.
type HTTPClient struct {
	baseURL string
	http    *http.Client
}

// NewHTTPClient builds a client against baseURL (no trailing slash).
func NewHTTPClient(baseURL string, httpClient *http.Client) *HTTPClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &HTTPClient{baseURL: baseURL, http: httpClient}
}

type metaResponse struct {
	CachedDates struct {
		CAIDA struct {
			V4 struct {
				Percent float64 `json:"percent"`
			} `json:"v4"`
			V6 struct {
				Percent float64 `json:"percent"`
			} `json:"v6"`
		} `json:"caida"`
	} `json:"cached_dates"`
}

func (c *HTTPClient) Meta(ctx context.Context) (Readiness, error) {
	var body metaResponse
	if err := c.get(ctx, "/meta", &body); err != nil {
		return Readiness{}, err
	}
	return Readiness{
		PercentV4: body.CachedDates.CAIDA.V4.Percent,
		PercentV6: body.CachedDates.CAIDA.V6.Percent,
	}, nil
}

type cacheEntry struct {
	IP              string `json:"ip"`
	AddressFamily   string `json:"address_family"`
	Source          string `json:"source"`
	Date            string `json:"date"`
	PrecisionDelta  struct {
		Days int `json:"days"`
	} `json:"precision_delta"`
}

func (c *HTTPClient) MassCache(ctx context.Context, queries []Query) error {
	entries := make([]cacheEntry, len(queries))
	for i, q := range queries {
		entries[i] = cacheEntry{
			IP:            q.IP,
			AddressFamily: familyString(q.AddressFamily),
			Source:        "caida",
			Date:          q.Date,
		}
		entries[i].PrecisionDelta.Days = 3
	}
	return c.post(ctx, "/mass_cache", entries, nil)
}

type massQueryResponseEnvelope struct {
	Responses []struct {
		Response map[string]struct {
			ASN    string `json:"asn"`
			Prefix string `json:"prefix"`
			Error  string `json:"error"`
		} `json:"response"`
	} `json:"responses"`
}

func (c *HTTPClient) MassQuery(ctx context.Context, queries []Query) ([]Result, error) {
	entries := make([]cacheEntry, len(queries))
	for i, q := range queries {
		entries[i] = cacheEntry{
			IP:            q.IP,
			AddressFamily: familyString(q.AddressFamily),
			Source:        "caida",
			Date:          q.Date,
		}
		entries[i].PrecisionDelta.Days = 3
	}

	var envelope massQueryResponseEnvelope
	if err := c.post(ctx, "/mass_query", entries, &envelope); err != nil {
		return nil, err
	}
	if len(envelope.Responses) != len(queries) {
		return nil, fmt.Errorf("ip2asn: mass_query returned %d responses for %d queries", len(envelope.Responses), len(queries))
	}

	results := make([]Result, len(queries))
	for i, q := range queries {
		entry, ok := envelope.Responses[i].Response[q.Date]
		if !ok {
			results[i] = Result{Err: false}
			continue
		}
		if entry.Error != "" {
			results[i] = Result{Err: true}
			continue
		}
		results[i] = Result{ASN: entry.ASN, Prefix: entry.Prefix}
	}
	return results, nil
}

type asnMetaResponseEnvelope struct {
	Response map[string]map[string]struct {
		IPCount int `json:"ipcount"`
	} `json:"response"`
}

func (c *HTTPClient) ASNMeta(ctx context.Context, asn string, family bgpranking.AddressFamily, date string) (ASNMeta, error) {
	path := fmt.Sprintf("/asn_meta?asn=%s&source=caida&address_family=%s&date=%s", asn, familyString(family), date)
	var envelope asnMetaResponseEnvelope
	if err := c.get(ctx, path, &envelope); err != nil {
		return ASNMeta{}, err
	}
	byASN, ok := envelope.Response[date]
	if !ok {
		return ASNMeta{}, nil
	}
	count, ok := byASN[asn]
	if !ok {
		return ASNMeta{}, nil
	}
	var meta ASNMeta
	if family == bgpranking.IPv6 {
		meta.CountV6 = count.IPCount
	} else {
		meta.CountV4 = count.IPCount
	}
	return meta, nil
}

func familyString(f bgpranking.AddressFamily) string {
	if f == bgpranking.IPv6 {
		return "v6"
	}
	return "v4"
}

func (c *HTTPClient) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *HTTPClient) post(ctx context.Context, path string, payload, out any) error {
	buf, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(buf))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *HTTPClient) do(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("ip2asn: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("ip2asn: unexpected status %s", resp.Status)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

var _ Client = (*HTTPClient)(nil)
