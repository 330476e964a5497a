package session

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	backend "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	coreconfig "github.com/m3rciful/scenariobot/core/config"
	"github.com/m3rciful/scenariobot/core/scenario"
)

func sampleRecord() Record {
	return Record{
		ScenarioID: 7,
		Session: scenario.Session{
			CurrentState: "help",
			History:      []string{"user: помощь", "assistant: чем помочь?"},
		},
	}
}

// runStoreContract checks behaviour every Store must share.
func runStoreContract(t *testing.T, store Store) {
	t.Helper()
	ctx := context.Background()

	_, err := store.Load(ctx, "tg:1")
	require.ErrorIs(t, err, ErrNotFound)

	rec := sampleRecord()
	require.NoError(t, store.Save(ctx, "tg:1", rec))

	got, err := store.Load(ctx, "tg:1")
	require.NoError(t, err)
	assert.Equal(t, rec.ScenarioID, got.ScenarioID)
	assert.Equal(t, rec.Session, got.Session)
	assert.False(t, got.UpdatedAt.IsZero())

	_, err = store.Load(ctx, "tg:2")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, store.Delete(ctx, "tg:1"))
	_, err = store.Load(ctx, "tg:1")
	assert.ErrorIs(t, err, ErrNotFound)
	require.NoError(t, store.Delete(ctx, "tg:1"))
}

func TestMemoryStoreContract(t *testing.T) {
	runStoreContract(t, NewMemoryStore(0))
}

func TestMemoryStoreCopiesHistory(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(0)
	rec := sampleRecord()
	require.NoError(t, store.Save(ctx, "k", rec))
	rec.Session.History[0] = "mutated"

	got, err := store.Load(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "user: помощь", got.Session.History[0])
}

func TestMemoryStoreTTL(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(time.Minute).(*memoryStore)
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }

	require.NoError(t, store.Save(ctx, "k", sampleRecord()))
	now = now.Add(30 * time.Second)
	_, err := store.Load(ctx, "k")
	require.NoError(t, err)

	now = now.Add(2 * time.Minute)
	_, err = store.Load(ctx, "k")
	assert.ErrorIs(t, err, ErrNotFound)
}

func newMiniredis(t *testing.T) (*miniredis.Miniredis, *backend.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := backend.NewClient(&backend.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestRedisStoreContract(t *testing.T) {
	_, client := newMiniredis(t)
	runStoreContract(t, NewRedisStore(client))
}

func TestRedisStoreTTLAndPrefix(t *testing.T) {
	mr, client := newMiniredis(t)
	store := NewRedisStore(client, WithPrefix("test:"), WithTTL(time.Minute))
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, "api:s1", sampleRecord()))
	assert.True(t, mr.Exists("test:api:s1"))
	assert.Equal(t, time.Minute, mr.TTL("test:api:s1"))

	mr.FastForward(2 * time.Minute)
	_, err := store.Load(ctx, "api:s1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRedisStoreCorruptRecord(t *testing.T) {
	mr, client := newMiniredis(t)
	require.NoError(t, mr.Set(defaultRedisPrefix+"bad", "{not json"))
	_, err := NewRedisStore(client).Load(context.Background(), "bad")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)
}

func TestLockerSerializesAndCleansUp(t *testing.T) {
	locker := NewLocker(nil)
	ctx := context.Background()

	var inside, maxInside atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = locker.WithLock(ctx, "tg:1", func(context.Context) error {
				n := inside.Add(1)
				for {
					m := maxInside.Load()
					if n <= m || maxInside.CompareAndSwap(m, n) {
						break
					}
				}
				time.Sleep(time.Millisecond)
				inside.Add(-1)
				return nil
			})
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), maxInside.Load())
	assert.Zero(t, locker.active())
}

func TestRedisLockerExcludes(t *testing.T) {
	mr, client := newMiniredis(t)
	rl := NewRedisLocker(client, "test:")
	ctx := context.Background()

	unlock, err := rl.Lock(ctx, "tg:1", time.Minute)
	require.NoError(t, err)
	assert.True(t, mr.Exists("test:lock:tg:1"))

	short, cancel := context.WithTimeout(ctx, 120*time.Millisecond)
	defer cancel()
	_, err = rl.Lock(short, "tg:1", time.Minute)
	assert.ErrorIs(t, err, ErrLockAcquire)

	require.NoError(t, unlock(ctx))
	assert.False(t, mr.Exists("test:lock:tg:1"))

	unlock2, err := rl.Lock(ctx, "tg:1", time.Minute)
	require.NoError(t, err)
	require.NoError(t, unlock2(ctx))
}

func TestFromConfig(t *testing.T) {
	ctx := context.Background()
	b, err := FromConfig(ctx, coreconfig.SessionConfig{Backend: coreconfig.SessionMemory})
	require.NoError(t, err)
	assert.NoError(t, b.Close())

	mr := miniredis.RunT(t)
	b, err = FromConfig(ctx, coreconfig.SessionConfig{Backend: coreconfig.SessionRedis, RedisAddr: mr.Addr(), TTLSeconds: 60})
	require.NoError(t, err)
	runStoreContract(t, b.Store)
	require.NoError(t, b.Locker.WithLock(ctx, "k", func(context.Context) error { return nil }))
	assert.NoError(t, b.Close())
}

func TestKeys(t *testing.T) {
	assert.Equal(t, "tg:-100", TelegramKey(-100))
	assert.Equal(t, "api:abc", APIKey("abc"))
	assert.NoError(t, ValidateAPISessionID("user-42.web"))
	assert.Error(t, ValidateAPISessionID(""))
	assert.Error(t, ValidateAPISessionID("has space"))
}
