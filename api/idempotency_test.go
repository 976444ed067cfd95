package api

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestDeduper(t *testing.T, ttl time.Duration) (*RedisDeduper, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisDeduper(client, ttl), mr
}

func TestRedisDeduperAddIsFirstWriterWins(t *testing.T) {
	d, _ := newTestDeduper(t, time.Hour)
	ctx := context.Background()

	fresh, err := d.Add(ctx, "user-1", "key-1")
	if err != nil || !fresh {
		t.Fatalf("first add fresh=%v err=%v", fresh, err)
	}
	fresh, err = d.Add(ctx, "user-1", "key-1")
	if err != nil || fresh {
		t.Fatalf("second add fresh=%v err=%v, want false", fresh, err)
	}

	// Same key under another user is independent.
	fresh, err = d.Add(ctx, "user-2", "key-1")
	if err != nil || !fresh {
		t.Fatalf("other user fresh=%v err=%v", fresh, err)
	}
}

func TestRedisDeduperRemoveAllowsRetry(t *testing.T) {
	d, _ := newTestDeduper(t, time.Hour)
	ctx := context.Background()

	if _, err := d.Add(ctx, "user-1", "key-1"); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := d.Remove(ctx, "user-1", "key-1"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	fresh, err := d.Add(ctx, "user-1", "key-1")
	if err != nil || !fresh {
		t.Fatalf("re-add fresh=%v err=%v, want true", fresh, err)
	}
}

func TestRedisDeduperKeysExpire(t *testing.T) {
	d, mr := newTestDeduper(t, time.Minute)
	ctx := context.Background()

	if _, err := d.Add(ctx, "user-1", "key-1"); err != nil {
		t.Fatalf("add: %v", err)
	}
	mr.FastForward(2 * time.Minute)
	fresh, err := d.Add(ctx, "user-1", "key-1")
	if err != nil || !fresh {
		t.Fatalf("post-expiry add fresh=%v err=%v, want true", fresh, err)
	}
}

func TestRejectedMutationReleasesKey(t *testing.T) {
	d, _ := newTestDeduper(t, time.Hour)
	env := newTestEnv(t, d)
	headers := map[string]string{"Idempotency-Key": "retry-1"}

	missing := "/api/tasks/aaaaaaaa-0000-0000-0000-000000000099"
	rec := env.do(http.MethodDelete, missing, "", headers)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("first send: status %d, want 404", rec.Code)
	}

	// A 404 must not burn the key: the retry gets the same answer instead of
	// a duplicate response.
	rec = env.do(http.MethodDelete, missing, "", headers)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("retry: status %d, want 404", rec.Code)
	}
}

func TestDuplicateMutationIsSuppressed(t *testing.T) {
	d, _ := newTestDeduper(t, time.Hour)
	env := newTestEnv(t, d)
	headers := map[string]string{"Idempotency-Key": "replay-1"}

	rec := env.do(http.MethodPost, "/api/tasks", `{"title":"once"}`, headers)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("first send: status %d: %s", rec.Code, rec.Body.String())
	}

	rec = env.do(http.MethodPost, "/api/tasks", `{"title":"once"}`, headers)
	if rec.Code != http.StatusOK {
		t.Fatalf("replay: status %d, want 200", rec.Code)
	}
	env.wait()

	env.remote.mu.Lock()
	defer env.remote.mu.Unlock()
	if len(env.remote.tasks) != 1 {
		t.Fatalf("remote holds %d tasks after replay, want 1", len(env.remote.tasks))
	}
}
