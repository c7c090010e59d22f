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

package coordinator

import (
	"context"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"bgpranking/internal/pipeline/storage"
)

func TestLongSleepReturnsTrueWhenNoShutdown(t *testing.T) {
	store := storage.NewFakeCoordinatorStore()
	start := time.Now()
	ok := LongSleep(context.Background(), store, 30*time.Millisecond, 10*time.Millisecond)
	if !ok {
		t.Fatal("expected LongSleep to complete without interruption")
	}
	if time.Since(start) < 20*time.Millisecond {
		t.Fatal("LongSleep returned too early")
	}
}

func TestLongSleepInterruptedByShutdown(t *testing.T) {
	store := storage.NewFakeCoordinatorStore()
	go func() {
		time.Sleep(15 * time.Millisecond)
		store.RequestShutdown()
	}()
	ok := LongSleep(context.Background(), store, time.Second, 10*time.Millisecond)
	if ok {
		t.Fatal("expected LongSleep to be interrupted by shutdown")
	}
}

func TestRunRecoversPanicAndKeepsRunning(t *testing.T) {
	store := storage.NewFakeCoordinatorStore()
	var ticks int32
	done := make(chan struct{})
	go func() {
		Run(context.Background(), store, "test-stage", 5*time.Millisecond, func(ctx context.Context) error {
			n := atomic.AddInt32(&ticks, 1)
			if n == 1 {
				panic("boom")
			}
			if n >= 3 {
				store.RequestShutdown()
			}
			return nil
		})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop after shutdown request")
	}
	if atomic.LoadInt32(&ticks) < 3 {
		t.Fatalf("expected at least 3 ticks despite panic, got %d", ticks)
	}
	if running := store.Running(); len(running) != 0 {
		t.Fatalf("expected no dangling running entries, got %v", running)
	}
}

func TestWorkingDirMissing(t *testing.T) {
	_, err := WorkingDir("BGPRANKING_HOME_NOT_SET", os.LookupEnv)
	if err == nil {
		t.Fatal("expected error for unset working directory")
	}
}

func TestWorkingDirPresent(t *testing.T) {
	lookup := func(k string) (string, bool) {
		if k == "BGPRANKING_HOME" {
			return "/tmp/bgpranking", true
		}
		return "", false
	}
	dir, err := WorkingDir("BGPRANKING_HOME", lookup)
	if err != nil {
		t.Fatal(err)
	}
	if dir != "/tmp/bgpranking" {
		t.Fatalf("got %q", dir)
	}
}
