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

// Package main runs one enricher coordinator instance: drains the
// to_insert queue, mass-queries the ip-to-asn history service, and
// writes durable facts.
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
	"bgpranking/internal/pipeline/enricher"
	"bgpranking/internal/pipeline/ip2asn"
	"bgpranking/internal/pipeline/metrics"
	"bgpranking/internal/pipeline/storage"
)

func main() {
	cacheAddr := flag.String("cache_addr", "127.0.0.1:6379", "Redis address for the coordinator's cache store")
	queueAddr := flag.String("queue_addr", "127.0.0.1:6379", "Redis address for the intake/to_insert queue store")
	queueDB := flag.Int("queue_db", 1, "Redis DB index for the queue store")
	factsAddr := flag.String("facts_addr", "127.0.0.1:6379", "Redis address for the durable fact/ranking store")
	factsDB := flag.Int("facts_db", 2, "Redis DB index for the fact/ranking store")
	ip2asnAddr := flag.String("ip2asn_addr", "http://127.0.0.1:5165", "Base URL of the external IP-to-ASN history service")
	maxmindDB := flag.String("maxmind_asn_db", "", "Optional path to a MaxMind ASN database used as a degraded fallback")
	fallbackCacheDir := flag.String("fallback_cache_dir", "", "Optional goleveldb directory backing the fallback result cache")
	sleepInterval := flag.Duration("sleep_interval", 30*time.Second, "How often the to_insert queue is drained")
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

	queue := redis.NewClient(&redis.Options{Addr: *queueAddr, DB: *queueDB})
	defer queue.Close()
	queueStore := storage.NewRedisQueueStore(queue)

	facts := redis.NewClient(&redis.Options{Addr: *factsAddr, DB: *factsDB})
	defer facts.Close()
	factStore := storage.NewRedisFactStore(facts)

	var client ip2asn.Client = ip2asn.NewHTTPClient(*ip2asnAddr, nil)
	if *maxmindDB != "" || *fallbackCacheDir != "" {
		fallback, err := ip2asn.NewFallbackClient(client, *maxmindDB, *fallbackCacheDir)
		if err != nil {
			log.Fatalf("FATAL: constructing ip2asn fallback client: %v", err)
		}
		defer fallback.Close()
		client = fallback
	}

	e := enricher.New(queueStore, factStore, client, nil)

	ctx, cancel := context.WithCancel(context.Background())
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-stop
		log.Printf("INFO: enricher: shutdown signal received")
		cancel()
	}()

	coordinator.Run(ctx, coordStore, "enricher", *sleepInterval, e.Tick)
}
