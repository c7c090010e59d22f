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

// Package main runs one ranker coordinator instance: recomputes the
// current day's (and, before noon local, the previous day's) ranking
// key family.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	redis "github.com/redis/go-redis/v9"

	"bgpranking/internal/pipeline/coordinator"
	"bgpranking/internal/pipeline/feedregistry"
	"bgpranking/internal/pipeline/ip2asn"
	"bgpranking/internal/pipeline/metrics"
	"bgpranking/internal/pipeline/ranker"
	"bgpranking/internal/pipeline/storage"
)

func main() {
	cacheAddr := flag.String("cache_addr", "127.0.0.1:6379", "Redis address for the coordinator's cache store")
	factsAddr := flag.String("facts_addr", "127.0.0.1:6379", "Redis address for the durable fact/ranking store")
	factsDB := flag.Int("facts_db", 2, "Redis DB index for the fact/ranking store")
	moduleDir := flag.String("modules_dir", "config/modules", "Directory of feed descriptor *.json files")
	ip2asnAddr := flag.String("ip2asn_addr", "http://127.0.0.1:5165", "Base URL of the external IP-to-ASN history service")
	sleepInterval := flag.Duration("sleep_interval", time.Hour, "How often the ranker re-runs")
	metricsAddr := flag.String("metrics_addr", "", "If non-empty, expose Prometheus /metrics on this address")
	flag.Parse()

	if _, err := coordinator.WorkingDir("BGPRANKING_DATA_DIR", os.LookupEnv); err != nil {
		log.Fatalf("FATAL: %v", err)
	}

	if *metricsAddr != "" {
		metrics.Serve(*metricsAddr)
	}

	cache := redis.NewClient(&redis.Options{Addr: *cacheAddr})
	defer cache.Close()
	coordStore := storage.NewRedisCoordinatorStore(cache)

	facts := redis.NewClient(&redis.Options{Addr: *factsAddr, DB: *factsDB})
	defer facts.Close()
	factStore := storage.NewRedisFactStore(facts)
	rankStore := storage.NewRedisRankStore(facts)

	registry, err := feedregistry.Load(*moduleDir)
	if err != nil {
		log.Fatalf("FATAL: loading feed descriptors: %v", err)
	}

	client := ip2asn.NewHTTPClient(*ip2asnAddr, nil)
	r := ranker.New(factStore, rankStore, client, registry.Impact, nil)

	ctx, cancel := context.WithCancel(context.Background())
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-stop
		log.Printf("INFO: ranker: shutdown signal received")
		cancel()
	}()

	coordinator.Run(ctx, coordStore, "ranker", *sleepInterval, func(ctx context.Context) error {
		err := r.Tick(ctx, time.Now())
		if err == nil {
			metrics.ObserveRanked()
		}
		return err
	})
}
