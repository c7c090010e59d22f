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

package storage

import (
	"context"
	"fmt"

	redis "github.com/redis/go-redis/v9"
)

// RedisClients bundles the three logical Redis connections the pipeline
// needs. They may point at the same server (different DB indexes) or at
// separate instances: a fast instance for queues, a persistent instance
// for facts/rankings, but nothing requires them to be physically
// distinct.
//
// This is the one "context" value constructed at startup: pools are
// created once, here, and passed down to every stage rather than
// re-created per call site.
type RedisClients struct {
	Cache *redis.Client // coordinator: running + shutdown
	Queue *redis.Client // intake + to_insert + per-uuid hashes
	Facts *redis.Client // daily facts + rankings
}

// Close tears down every pool. Safe to call once during shutdown.
func (c *RedisClients) Close() error {
	var firstErr error
	for _, cl := range []*redis.Client{c.Cache, c.Queue, c.Facts} {
		if cl == nil {
			continue
		}
		if err := cl.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// RedisCoordinatorStore implements CoordinatorStore against a real Redis
// server reachable through client.
type RedisCoordinatorStore struct {
	client *redis.Client
}

func NewRedisCoordinatorStore(client *redis.Client) *RedisCoordinatorStore {
	return &RedisCoordinatorStore{client: client}
}

// SetRunning increments the per-component counter in the running hash.
func (s *RedisCoordinatorStore) SetRunning(ctx context.Context, name string) error {
	return s.client.HIncrBy(ctx, RunningKey, name, 1).Err()
}

// UnsetRunning decrements the counter and drops the field once it
// reaches zero, so `running` only lists components with a live instance.
func (s *RedisCoordinatorStore) UnsetRunning(ctx context.Context, name string) error {
	n, err := s.client.HIncrBy(ctx, RunningKey, name, -1).Result()
	if err != nil {
		return err
	}
	if n <= 0 {
		return s.client.HDel(ctx, RunningKey, name).Err()
	}
	return nil
}

// ShutdownRequested reports true if the shutdown sentinel exists, or if
// the store itself is unreachable — fail safe.
func (s *RedisCoordinatorStore) ShutdownRequested(ctx context.Context) bool {
	n, err := s.client.Exists(ctx, ShutdownKey).Result()
	if err != nil {
		return true
	}
	return n > 0
}

// RedisQueueStore implements QueueStore against a real Redis server.
type RedisQueueStore struct {
	client *redis.Client
}

func NewRedisQueueStore(client *redis.Client) *RedisQueueStore {
	return &RedisQueueStore{client: client}
}

func (s *RedisQueueStore) PopBatch(ctx context.Context, queueKey string, n int64) ([]string, error) {
	ids, err := s.client.SPopN(ctx, queueKey, n).Result()
	if err != nil && err != redis.Nil {
		return nil, fmt.Errorf("spop %s: %w", queueKey, err)
	}
	return ids, nil
}

func (s *RedisQueueStore) Push(ctx context.Context, queueKey string, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	members := make([]interface{}, len(ids))
	for i, id := range ids {
		members[i] = id
	}
	return s.client.SAdd(ctx, queueKey, members...).Err()
}

func (s *RedisQueueStore) SetRecord(ctx context.Context, id string, fields map[string]string) error {
	return s.client.HSet(ctx, id, fields).Err()
}

func (s *RedisQueueStore) GetRecords(ctx context.Context, ids []string) ([]map[string]string, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	pipe := s.client.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(ids))
	for i, id := range ids {
		cmds[i] = pipe.HGetAll(ctx, id)
	}
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return nil, fmt.Errorf("pipelined hgetall: %w", err)
	}
	out := make([]map[string]string, len(ids))
	for i, cmd := range cmds {
		m, err := cmd.Result()
		if err != nil && err != redis.Nil {
			return nil, fmt.Errorf("hgetall %s: %w", ids[i], err)
		}
		if len(m) > 0 {
			out[i] = m
		}
	}
	return out, nil
}

func (s *RedisQueueStore) DeleteRecords(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	return s.client.Del(ctx, ids...).Err()
}

// RedisFactStore implements FactStore against a real Redis server.
type RedisFactStore struct {
	client *redis.Client
}

func NewRedisFactStore(client *redis.Client) *RedisFactStore {
	return &RedisFactStore{client: client}
}

func (s *RedisFactStore) AddFacts(ctx context.Context, facts []Fact) error {
	if len(facts) == 0 {
		return nil
	}
	pipe := s.client.Pipeline()
	for _, f := range facts {
		pipe.SAdd(ctx, SourcesKey(f.Day), f.Source)
		pipe.SAdd(ctx, SourceASNsKey(f.Day, f.Source), f.ASN)
		pipe.SAdd(ctx, ASNPrefixesKey(f.Day, f.Source, f.ASN), f.Prefix)
		pipe.SAdd(ctx, PrefixEventsKey(f.Day, f.Source, f.ASN, f.Prefix),
			fmt.Sprintf("%s|%s", f.IP, f.Timestamp.UTC().Format("2006-01-02T15:04:05")))
	}
	_, err := pipe.Exec(ctx)
	if err != nil {
		return fmt.Errorf("pipelined fact insert: %w", err)
	}
	return nil
}

func (s *RedisFactStore) SourcesForDay(ctx context.Context, day string) ([]string, error) {
	return s.members(ctx, SourcesKey(day))
}

func (s *RedisFactStore) ASNsForSource(ctx context.Context, day, source string) ([]string, error) {
	return s.members(ctx, SourceASNsKey(day, source))
}

func (s *RedisFactStore) PrefixesForASN(ctx context.Context, day, source, asn string) ([]string, error) {
	return s.members(ctx, ASNPrefixesKey(day, source, asn))
}

func (s *RedisFactStore) EventsForPrefix(ctx context.Context, day, source, asn, prefix string) ([]string, error) {
	return s.members(ctx, PrefixEventsKey(day, source, asn, prefix))
}

func (s *RedisFactStore) members(ctx context.Context, key string) ([]string, error) {
	members, err := s.client.SMembers(ctx, key).Result()
	if err != nil && err != redis.Nil {
		return nil, fmt.Errorf("smembers %s: %w", key, err)
	}
	return members, nil
}

// RedisRankStore implements RankStore against a real Redis server.
type RedisRankStore struct {
	client *redis.Client
}

func NewRedisRankStore(client *redis.Client) *RedisRankStore {
	return &RedisRankStore{client: client}
}

func (s *RedisRankStore) CommitDay(ctx context.Context, toDelete []string, writes []RankWrite) error {
	pipe := s.client.TxPipeline()
	if len(toDelete) > 0 {
		pipe.Del(ctx, toDelete...)
	}
	for _, w := range writes {
		switch w.Kind {
		case RankScalarSet:
			pipe.Set(ctx, w.Key, w.Value, 0)
		case RankZAdd:
			pipe.ZAdd(ctx, w.Key, redis.Z{Score: w.Value, Member: w.Member})
		case RankZIncrBy:
			pipe.ZIncrBy(ctx, w.Key, w.Value, w.Member)
		default:
			return fmt.Errorf("unknown rank write kind %d for key %s", w.Kind, w.Key)
		}
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("pipelined rank commit: %w", err)
	}
	return nil
}
