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

// Package main runs one parser coordinator instance: every registered
// feed descriptor's working directory is drained into intake records,
// using the descriptor's bound strategy.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	redis "github.com/redis/go-redis/v9"

	"bgpranking/internal/pipeline/coordinator"
	"bgpranking/internal/pipeline/feedregistry"
	"bgpranking/internal/pipeline/metrics"
	"bgpranking/internal/pipeline/parser"
	"bgpranking/internal/pipeline/storage"
)

func main() {
	cacheAddr := flag.String("cache_addr", "127.0.0.1:6379", "Redis address for the coordinator's cache store")
	queueAddr := flag.String("queue_addr", "127.0.0.1:6379", "Redis address for the intake/to_insert queue store")
	queueDB := flag.Int("queue_db", 1, "Redis DB index for the queue store")
	moduleDir := flag.String("modules_dir", "config/modules", "Directory of feed descriptor *.json files")
	sleepInterval := flag.Duration("sleep_interval", time.Minute, "How often each feed's working directory is re-scanned")
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

	queue := redis.NewClient(&redis.Options{Addr: *queueAddr, DB: *queueDB})
	defer queue.Close()
	queueStore := storage.NewRedisQueueStore(queue)

	registry, err := feedregistry.Load(*moduleDir)
	if err != nil {
		log.Fatalf("FATAL: loading feed descriptors: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-stop
		log.Printf("INFO: parser: shutdown signal received")
		cancel()
	}()

	var wg sync.WaitGroup
	for _, desc := range registry.Snapshot() {
		strategy, err := parser.Lookup(desc.Parser)
		if err != nil {
			log.Fatalf("FATAL: feed %s: %v", desc.Source(), err)
		}
		feedDir := filepath.Join(dataDir, desc.Vendor, desc.Name)
		p := parser.New(desc.Source(), feedDir, strategy, queueStore, nil)
		wg.Add(1)
		go func(source string) {
			defer wg.Done()
			coordinator.Run(ctx, coordStore, "parser-"+source, *sleepInterval, p.Tick)
		}(desc.Source())
	}
	wg.Wait()
}
