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

// Package netpool bounds the concurrency of outbound network I/O
// (the fetcher's feed fetches): tasks are dispatched from the
// worker's main loop with a bounded concurrency limit, with a
// completion barrier before the next batch. No retry/backoff lives
// here — transient failures are the caller's concern and are re-tried
// on the next scheduler tick, never inside one.
package netpool

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

// Dispatcher runs tasks with at most Workers concurrently in flight,
// optionally paced by a token-bucket rate limiter.
type Dispatcher struct {
	semaphore chan struct{}
	limiter   *rate.Limiter
}

// Config controls a Dispatcher's concurrency and pacing.
type Config struct {
	Workers   int     // max concurrent tasks; defaults to 1
	RateLimit float64 // requests/sec; 0 disables pacing
	Burst     int      // burst size for the rate limiter; defaults to Workers
}

// New builds a Dispatcher from cfg.
func New(cfg Config) *Dispatcher {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.Burst <= 0 {
		cfg.Burst = cfg.Workers
	}
	var limiter *rate.Limiter
	if cfg.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.Burst)
	}
	return &Dispatcher{
		semaphore: make(chan struct{}, cfg.Workers),
		limiter:   limiter,
	}
}

// Task is one unit of dispatched work.
type Task func(ctx context.Context) error

// Run dispatches every task concurrently, bounded by the Dispatcher's
// worker count, and blocks until all complete. Errors are returned in
// the same order as tasks.
func (d *Dispatcher) Run(ctx context.Context, tasks []Task) []error {
	errs := make([]error, len(tasks))
	var wg sync.WaitGroup
	for i, task := range tasks {
		wg.Add(1)
		go func(i int, task Task) {
			defer wg.Done()
			select {
			case d.semaphore <- struct{}{}:
				defer func() { <-d.semaphore }()
			case <-ctx.Done():
				errs[i] = ctx.Err()
				return
			}
			if d.limiter != nil {
				if err := d.limiter.Wait(ctx); err != nil {
					errs[i] = err
					return
				}
			}
			errs[i] = task(ctx)
		}(i, task)
	}
	wg.Wait()
	return errs
}
