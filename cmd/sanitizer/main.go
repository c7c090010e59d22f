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

// Package main runs one sanitizer coordinator instance: drains the
// intake queue into the to_insert queue, gated on ip-to-asn readiness.
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
	"bgpranking/internal/pipeline/ip2asn"
	"bgpranking/internal/pipeline/metrics"
	"bgpranking/internal/pipeline/sanitizer"
	"bgpranking/internal/pipeline/storage"
)

func main() {
	cacheAddr := flag.String("cache_addr", "127.0.0.1:6379", "Redis address for the coordinator's cache store")
	queueAddr := flag.String("queue_addr", "127.0.0.1:6379", "Redis address for the intake/to_insert queue store")
	queueDB := flag.Int("queue_db", 1, "Redis DB index for the queue store")
	ip2asnAddr := flag.String("ip2asn_addr", "http://127.0.0.1:5165", "Base URL of the external IP-to-ASN history service")
	maxmindDB := flag.String("maxmind_asn_db", "", "Optional path to a MaxMind ASN database used as a degraded fallback")
	fallbackCacheDir := flag.String("fallback_cache_dir", "", "Optional goleveldb directory backing the fallback result cache")
	sleepInterval := flag.Duration("sleep_interval", 30*time.Second, "How often the intake queue is drained")
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

	var client ip2asn.Client = ip2asn.NewHTTPClient(*ip2asnAddr, nil)
	if *maxmindDB != "" || *fallbackCacheDir != "" {
		fallback, err := ip2asn.NewFallbackClient(client, *maxmindDB, *fallbackCacheDir)
		if err != nil {
			log.Fatalf("FATAL: constructing ip2asn fallback client: %v", err)
		}
		defer fallback.Close()
		client = fallback
	}

	s := sanitizer.New(queueStore, client, nil)

	ctx, cancel := context.WithCancel(context.Background())
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-stop
		log.Printf("INFO: sanitizer: shutdown signal received")
		cancel()
	}()

	coordinator.Run(ctx, coordStore, "sanitizer", *sleepInterval, s.Tick)
}
