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

// Package main runs the fetcher coordinator: each tick, every
// registered feed descriptor with a URL is polled, bounded by a shared
// concurrency limit and, optionally, a rate limit.
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
	"bgpranking/internal/pipeline/fetcher"
	"bgpranking/internal/pipeline/metrics"
	"bgpranking/internal/pipeline/netpool"
	"bgpranking/internal/pipeline/storage"
)

func main() {
	cacheAddr := flag.String("cache_addr", "127.0.0.1:6379", "Redis address for the coordinator's cache store")
	moduleDir := flag.String("modules_dir", "config/modules", "Directory of feed descriptor *.json files")
	sleepInterval := flag.Duration("sleep_interval", 10*time.Minute, "How often every feed is re-polled")
	concurrency := flag.Int("concurrency", 4, "Maximum number of feeds fetched simultaneously")
	rateLimit := flag.Float64("rate_limit", 0, "Outbound fetches/sec across all feeds; 0 disables pacing")
	metricsAddr := flag.String("metrics_addr", "", "If non-empty, expose Prometheus /metrics on this address")
	flag.Parse()

	dataDir, err := coordinator.WorkingDir("BGPRANKING_DATA_DIR", os.LookupEnv)
	if err != nil {
		log.Fatalf("FATAL: %v", err)
	}

	if *metricsAddr != "" {
		metrics.Serve(*metricsAddr)
	}

	cache := redis.NewClient(&redis.Options{Addr: *cacheAddr})
	defer cache.Close()
	coordStore := storage.NewRedisCoordinatorStore(cache)

	registry, err := feedregistry.Load(*moduleDir)
	if err != nil {
		log.Fatalf("FATAL: loading feed descriptors: %v", err)
	}

	dispatcher := netpool.New(netpool.Config{Workers: *concurrency, RateLimit: *rateLimit})

	ctx, cancel := context.WithCancel(context.Background())
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-stop
		log.Printf("INFO: fetcher: shutdown signal received")
		cancel()
	}()

	tick := func(ctx context.Context) error {
		if err := registry.Refresh(); err != nil {
			log.Printf("WARN: fetcher: refreshing feed descriptors: %v", err)
		}

		descriptors := registry.Snapshot()
		var tasks []netpool.Task
		var sources []string
		for _, desc := range descriptors {
			if !desc.HasURL() {
				continue
			}
			f := fetcher.New(desc, dataDir, nil)
			tasks = append(tasks, f.Tick)
			sources = append(sources, desc.Source())
		}

		metrics.ObserveBatch("fetcher", len(tasks))
		errs := dispatcher.Run(ctx, tasks)
		for i, err := range errs {
			if err != nil {
				log.Printf("ERROR: fetcher: %s: %v", sources[i], err)
			}
		}
		return nil
	}

	coordinator.Run(ctx, coordStore, "fetcher", *sleepInterval, tick)
}
