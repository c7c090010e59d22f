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

// Package coordinator provides the shared run-forever loop every
// pipeline stage uses: set_running/unset_running bookkeeping, the
// shutdown-aware long sleep, and a catch-all around each tick so one
// stage's panic never takes down the process.
package coordinator

import (
	"context"
	"fmt"
	"log"
	"time"

	"bgpranking/internal/pipeline/storage"
)

// Runnable is one tick of work for a stage. It is invoked repeatedly by
// Run until shutdown is requested. Implementations should do a single
// drain-to-empty pass and return, not loop internally.
type Runnable func(ctx context.Context) error

// Run is the generic run-until-shutdown loop: while not shutdown,
// invoke tick inside a catch-all, sleep, repeat. name is the
// registered-running identity and also used in log lines.
func Run(ctx context.Context, store storage.CoordinatorStore, name string, sleepInterval time.Duration, tick Runnable) {
	log.Printf("INFO: launching %s", name)
	for {
		if store.ShutdownRequested(ctx) {
			break
		}
		runTickSafely(ctx, store, name, tick)
		if !LongSleep(ctx, store, sleepInterval, 10*time.Second) {
			break
		}
	}
	log.Printf("INFO: shutting down %s", name)
}

// runTickSafely brackets tick with set_running/unset_running and
// recovers a panic so one bad tick never takes the loop down: logged,
// and the loop keeps running. A fatal error is reserved for the
// coordinator store itself being unreachable, not stage panics.
func runTickSafely(ctx context.Context, store storage.CoordinatorStore, name string, tick Runnable) {
	if err := store.SetRunning(ctx, name); err != nil {
		log.Printf("WARN: %s: could not register as running: %v", name, err)
	}
	defer func() {
		if err := store.UnsetRunning(ctx, name); err != nil {
			log.Printf("WARN: %s: could not unregister as running: %v", name, err)
		}
	}()
	defer func() {
		if r := recover(); r != nil {
			log.Printf("ERROR: %s: panic recovered: %v", name, r)
		}
	}()
	if err := tick(ctx); err != nil {
		log.Printf("ERROR: %s: tick failed: %v", name, err)
	}
}

// LongSleep sleeps for total, checking for a shutdown request every
// checkEvery. It returns false as soon as shutdown is requested (or the
// context is cancelled), true once the full duration has elapsed.
func LongSleep(ctx context.Context, store storage.CoordinatorStore, total, checkEvery time.Duration) bool {
	if checkEvery <= 0 {
		checkEvery = total
	}
	deadline := time.Now().Add(total)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return true
		}
		wait := checkEvery
		if remaining < wait {
			wait = remaining
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(wait):
			if store.ShutdownRequested(ctx) {
				return false
			}
			if time.Now().After(deadline) || time.Now().Equal(deadline) {
				return true
			}
		}
	}
}

// ErrMissingWorkingDir is returned when the required working-directory
// environment variable is unset at startup: absent, the process
// refuses to start.
var ErrMissingWorkingDir = fmt.Errorf("working directory environment variable is not set")

// WorkingDir resolves the working directory from the named environment
// variable, failing fast rather than falling back to a default.
func WorkingDir(envVar string, lookup func(string) (string, bool)) (string, error) {
	v, ok := lookup(envVar)
	if !ok || v == "" {
		return "", fmt.Errorf("%s: %w", envVar, ErrMissingWorkingDir)
	}
	return v, nil
}
