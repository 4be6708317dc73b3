package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/casescope/hub/internal/engine"
	"github.com/casescope/hub/internal/model"
)

// ThreadRecord binds an engine thread to the entitlement snapshot it was
// created under. A thread is never reused across two different
// snapshots.
type ThreadRecord struct {
	ThreadID    string            `json:"thread_id"`
	Entitlement model.Entitlement `json:"entitlement"`
}

// ThreadStore is the concurrent session→thread map. Injected so tests
// construct isolated instances and deployments can share one across
// replicas.
type ThreadStore interface {
	// Get returns the record for sessionID, or nil if absent.
	Get(ctx context.Context, sessionID string) (*ThreadRecord, error)
	// PutIfAbsent stores rec unless a record already exists, and returns
	// whichever record ends up stored. First writer wins.
	PutIfAbsent(ctx context.Context, sessionID string, rec ThreadRecord) (*ThreadRecord, error)
	// Delete removes the record, reporting whether one existed.
	Delete(ctx context.Context, sessionID string) (bool, error)
	// Count is the number of live records.
	Count(ctx context.Context) (int, error)
}

// MemoryThreadStore is the single-process ThreadStore.
type MemoryThreadStore struct {
	mu      sync.Mutex
	records map[string]ThreadRecord
}

func NewMemoryThreadStore() *MemoryThreadStore {
	return &MemoryThreadStore{records: make(map[string]ThreadRecord)}
}

func (s *MemoryThreadStore) Get(_ context.Context, sessionID string) (*ThreadRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[sessionID]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (s *MemoryThreadStore) PutIfAbsent(_ context.Context, sessionID string, rec ThreadRecord) (*ThreadRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.records[sessionID]; ok {
		return &existing, nil
	}
	s.records[sessionID] = rec
	return &rec, nil
}

func (s *MemoryThreadStore) Delete(_ context.Context, sessionID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.records[sessionID]
	delete(s.records, sessionID)
	return ok, nil
}

func (s *MemoryThreadStore) Count(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records), nil
}

// threadKeyPrefix namespaces thread records in Redis.
const threadKeyPrefix = "casescope:thread:"

// threadIdleTTL bounds how long an untouched thread record survives in
// Redis. The remote engine thread leaks if the record expires first;
// that is accepted, the engine reaps its own idle threads.
const threadIdleTTL = 12 * time.Hour

// RedisThreadStore shares the session→thread map across replicas.
type RedisThreadStore struct {
	client *redis.Client
}

func NewRedisThreadStore(client *redis.Client) *RedisThreadStore {
	return &RedisThreadStore{client: client}
}

func (s *RedisThreadStore) Get(ctx context.Context, sessionID string) (*ThreadRecord, error) {
	data, err := s.client.Get(ctx, threadKeyPrefix+sessionID).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: redis get: %v", model.ErrServiceUnavailable, err)
	}
	var rec ThreadRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decode thread record: %w", err)
	}
	// Sliding idle window.
	s.client.Expire(ctx, threadKeyPrefix+sessionID, threadIdleTTL)
	return &rec, nil
}

func (s *RedisThreadStore) PutIfAbsent(ctx context.Context, sessionID string, rec ThreadRecord) (*ThreadRecord, error) {
	data, err := json.Marshal(rec)
	if err != nil {
		return nil, err
	}
	ok, err := s.client.SetNX(ctx, threadKeyPrefix+sessionID, data, threadIdleTTL).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: redis setnx: %v", model.ErrServiceUnavailable, err)
	}
	if ok {
		return &rec, nil
	}
	// Lost the race: return the winner.
	winner, err := s.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if winner == nil {
		// Winner expired between SetNX and Get; take over.
		return s.PutIfAbsent(ctx, sessionID, rec)
	}
	return winner, nil
}

func (s *RedisThreadStore) Delete(ctx context.Context, sessionID string) (bool, error) {
	n, err := s.client.Del(ctx, threadKeyPrefix+sessionID).Result()
	if err != nil {
		return false, fmt.Errorf("%w: redis del: %v", model.ErrServiceUnavailable, err)
	}
	return n > 0, nil
}

func (s *RedisThreadStore) Count(ctx context.Context) (int, error) {
	var count int
	iter := s.client.Scan(ctx, 0, threadKeyPrefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		count++
	}
	if err := iter.Err(); err != nil {
		return 0, fmt.Errorf("%w: redis scan: %v", model.ErrServiceUnavailable, err)
	}
	return count, nil
}

// ThreadManager owns the conversation threads, one per session id.
type ThreadManager struct {
	store ThreadStore
	gen   engine.Generator
}

func NewThreadManager(store ThreadStore, gen engine.Generator) *ThreadManager {
	return &ThreadManager{store: store, gen: gen}
}

// GetOrCreate returns the thread for sessionID, creating one if absent.
// An existing thread whose snapshot is not set-equal to ent is deleted
// and recreated: a long-lived session must not inherit new permissions
// into an already-seeded context, nor keep stale broader access after a
// downgrade.
func (m *ThreadManager) GetOrCreate(ctx context.Context, sessionID string, ent model.Entitlement) (string, error) {
	rec, err := m.store.Get(ctx, sessionID)
	if err != nil {
		return "", err
	}
	if rec != nil {
		if rec.Entitlement.Equal(ent) {
			return rec.ThreadID, nil
		}
		log.Printf("thread rebind session=%s: entitlement changed %s -> %s", sessionID, rec.Entitlement, ent)
		m.dropThread(ctx, sessionID, rec.ThreadID)
	}

	threadID, err := m.gen.CreateThread(ctx)
	if err != nil {
		return "", err
	}
	winner, err := m.store.PutIfAbsent(ctx, sessionID, ThreadRecord{
		ThreadID:    threadID,
		Entitlement: ent.Clone(),
	})
	if err != nil {
		return "", err
	}
	if winner.ThreadID != threadID {
		// Lost a per-session creation race; reuse the winner's thread.
		if delErr := m.gen.DeleteThread(ctx, threadID); delErr != nil {
			log.Printf("delete losing thread %s: %v", threadID, delErr)
		}
		return winner.ThreadID, nil
	}
	return threadID, nil
}

// Delete clears the session's thread, reporting whether one existed.
func (m *ThreadManager) Delete(ctx context.Context, sessionID string) (bool, error) {
	rec, err := m.store.Get(ctx, sessionID)
	if err != nil {
		return false, err
	}
	if rec == nil {
		return false, nil
	}
	m.dropThread(ctx, sessionID, rec.ThreadID)
	return true, nil
}

// ActiveThreads is the live record count, surfaced by /v1/health.
func (m *ThreadManager) ActiveThreads(ctx context.Context) int {
	n, err := m.store.Count(ctx)
	if err != nil {
		log.Printf("thread count: %v", err)
		return 0
	}
	return n
}

// dropThread removes the local mapping and best-effort deletes the
// remote thread. A failed remote delete leaks an engine thread but never
// blocks progress.
func (m *ThreadManager) dropThread(ctx context.Context, sessionID, threadID string) {
	if err := m.gen.DeleteThread(ctx, threadID); err != nil {
		log.Printf("delete engine thread %s: %v (mapping dropped anyway)", threadID, err)
	}
	if _, err := m.store.Delete(ctx, sessionID); err != nil {
		log.Printf("delete thread record session=%s: %v", sessionID, err)
	}
}
