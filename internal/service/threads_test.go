package service

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/casescope/hub/internal/model"
)

func TestGetOrCreateReusesThreadOnEqualEntitlement(t *testing.T) {
	gen := &stubGenerator{}
	m := NewThreadManager(NewMemoryThreadStore(), gen)
	ent := model.NewEntitlement("10100", "10200")

	first, err := m.GetOrCreate(context.Background(), "sess-1", ent)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	// Same set, different construction order.
	again, err := m.GetOrCreate(context.Background(), "sess-1", model.NewEntitlement("10200", "10100"))
	if err != nil {
		t.Fatalf("reuse: %v", err)
	}
	if first != again {
		t.Fatalf("thread not reused: %s vs %s", first, again)
	}
	if gen.created != 1 {
		t.Fatalf("expected 1 engine thread, got %d", gen.created)
	}
}

func TestGetOrCreateRebindsOnEntitlementChange(t *testing.T) {
	gen := &stubGenerator{}
	m := NewThreadManager(NewMemoryThreadStore(), gen)

	first, err := m.GetOrCreate(context.Background(), "sess-1", model.NewEntitlement("10100"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	second, err := m.GetOrCreate(context.Background(), "sess-1", model.NewEntitlement("10100", "10200"))
	if err != nil {
		t.Fatalf("rebind: %v", err)
	}
	if first == second {
		t.Fatal("thread must be recreated when the entitlement changes")
	}
	if len(gen.deleted) != 1 || gen.deleted[0] != first {
		t.Fatalf("old thread not deleted, deleted=%v", gen.deleted)
	}

	// Downgrade rebinds too.
	third, err := m.GetOrCreate(context.Background(), "sess-1", model.NewEntitlement("10100"))
	if err != nil {
		t.Fatalf("downgrade rebind: %v", err)
	}
	if third == second {
		t.Fatal("downgrade must also recreate the thread")
	}
}

func TestGetOrCreateRebindSurvivesEngineDeleteFailure(t *testing.T) {
	gen := &stubGenerator{deleteErr: model.ErrServiceUnavailable}
	m := NewThreadManager(NewMemoryThreadStore(), gen)

	if _, err := m.GetOrCreate(context.Background(), "sess-1", model.NewEntitlement("10100")); err != nil {
		t.Fatalf("create: %v", err)
	}
	// Remote delete fails; the rebind must still produce a fresh thread.
	id, err := m.GetOrCreate(context.Background(), "sess-1", model.NewEntitlement("10200"))
	if err != nil {
		t.Fatalf("rebind despite delete failure: %v", err)
	}
	if id != "thread-2" {
		t.Fatalf("expected fresh thread, got %s", id)
	}
}

func TestPutIfAbsentFirstWriterWins(t *testing.T) {
	st := NewMemoryThreadStore()
	ent := model.NewEntitlement("10100")

	winner, err := st.PutIfAbsent(context.Background(), "sess-1", ThreadRecord{ThreadID: "a", Entitlement: ent})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if winner.ThreadID != "a" {
		t.Fatalf("first write should win, got %s", winner.ThreadID)
	}
	loser, err := st.PutIfAbsent(context.Background(), "sess-1", ThreadRecord{ThreadID: "b", Entitlement: ent})
	if err != nil {
		t.Fatalf("second put: %v", err)
	}
	if loser.ThreadID != "a" {
		t.Fatalf("second writer must receive the stored record, got %s", loser.ThreadID)
	}
}

func TestDeleteReportsExistence(t *testing.T) {
	gen := &stubGenerator{}
	m := NewThreadManager(NewMemoryThreadStore(), gen)

	if ok, _ := m.Delete(context.Background(), "sess-1"); ok {
		t.Fatal("delete of absent session must report false")
	}
	if _, err := m.GetOrCreate(context.Background(), "sess-1", model.NewEntitlement("10100")); err != nil {
		t.Fatalf("create: %v", err)
	}
	if ok, _ := m.Delete(context.Background(), "sess-1"); !ok {
		t.Fatal("delete of live session must report true")
	}
	if n := m.ActiveThreads(context.Background()); n != 0 {
		t.Fatalf("expected 0 active threads, got %d", n)
	}
}

func redisStore(t *testing.T) (*miniredis.Miniredis, *RedisThreadStore) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return mr, NewRedisThreadStore(client)
}

func TestRedisThreadStoreRoundTrip(t *testing.T) {
	_, st := redisStore(t)
	ctx := context.Background()
	ent := model.NewEntitlement("10100", "10200")

	if rec, err := st.Get(ctx, "sess-1"); err != nil || rec != nil {
		t.Fatalf("expected miss, got rec=%v err=%v", rec, err)
	}

	winner, err := st.PutIfAbsent(ctx, "sess-1", ThreadRecord{ThreadID: "a", Entitlement: ent})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if winner.ThreadID != "a" {
		t.Fatalf("unexpected winner %s", winner.ThreadID)
	}

	rec, err := st.Get(ctx, "sess-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if rec == nil || rec.ThreadID != "a" {
		t.Fatalf("record did not round-trip: %+v", rec)
	}
	if !rec.Entitlement.Equal(ent) {
		t.Fatalf("entitlement did not round-trip: %s", rec.Entitlement)
	}

	if n, err := st.Count(ctx); err != nil || n != 1 {
		t.Fatalf("count: n=%d err=%v", n, err)
	}
	if ok, err := st.Delete(ctx, "sess-1"); err != nil || !ok {
		t.Fatalf("delete: ok=%v err=%v", ok, err)
	}
	if ok, _ := st.Delete(ctx, "sess-1"); ok {
		t.Fatal("second delete must report false")
	}
}

func TestRedisThreadStoreFirstWriterWins(t *testing.T) {
	_, st := redisStore(t)
	ctx := context.Background()

	if _, err := st.PutIfAbsent(ctx, "sess-1", ThreadRecord{ThreadID: "a"}); err != nil {
		t.Fatalf("first put: %v", err)
	}
	loser, err := st.PutIfAbsent(ctx, "sess-1", ThreadRecord{ThreadID: "b"})
	if err != nil {
		t.Fatalf("second put: %v", err)
	}
	if loser.ThreadID != "a" {
		t.Fatalf("expected stored record a, got %s", loser.ThreadID)
	}
}

func TestRedisThreadStoreIdleExpiry(t *testing.T) {
	mr, st := redisStore(t)
	ctx := context.Background()

	if _, err := st.PutIfAbsent(ctx, "sess-1", ThreadRecord{ThreadID: "a"}); err != nil {
		t.Fatalf("put: %v", err)
	}
	mr.FastForward(threadIdleTTL + time.Minute)
	if rec, err := st.Get(ctx, "sess-1"); err != nil || rec != nil {
		t.Fatalf("expected expiry, got rec=%v err=%v", rec, err)
	}
}
