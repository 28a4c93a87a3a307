package hub

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/behide-game/Behide/internal/room"
)

// CodeStore reserves room codes so that two hubs sharing a store never hand
// out the same code.
type CodeStore interface {
	// Reserve claims id and reports false if it is already taken.
	Reserve(ctx context.Context, id room.ID) (bool, error)
	Release(ctx context.Context, id room.ID) error
	// Refresh extends the reservation of a code that is still in use.
	Refresh(ctx context.Context, id room.ID) error
}

type MemoryCodeStore struct {
	mu    sync.Mutex
	codes map[room.ID]struct{}
}

func NewMemoryCodeStore() *MemoryCodeStore {
	return &MemoryCodeStore{codes: make(map[room.ID]struct{})}
}

func (s *MemoryCodeStore) Reserve(_ context.Context, id room.ID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, taken := s.codes[id]; taken {
		return false, nil
	}
	s.codes[id] = struct{}{}
	return true, nil
}

func (s *MemoryCodeStore) Release(_ context.Context, id room.ID) error {
	s.mu.Lock()
	delete(s.codes, id)
	s.mu.Unlock()
	return nil
}

// Refresh is a no-op: memory reservations never expire.
func (s *MemoryCodeStore) Refresh(context.Context, room.ID) error {
	return nil
}

// RedisCodeStore keeps codes under "code:<ID>" keys with a TTL so that codes
// from a crashed hub eventually free up. The hub refreshes the TTL of live
// rooms, see WithCodeRefresh.
type RedisCodeStore struct {
	rdb *redis.Client
	ttl time.Duration
}

// ConnectRedis opens a client and checks the server answers.
func ConnectRedis(ctx context.Context, addr, password string) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", addr, err)
	}
	return rdb, nil
}

func NewRedisCodeStore(rdb *redis.Client, ttl time.Duration) *RedisCodeStore {
	return &RedisCodeStore{rdb: rdb, ttl: ttl}
}

func codeKey(id room.ID) string {
	return "code:" + id.String()
}

func (s *RedisCodeStore) Reserve(ctx context.Context, id room.ID) (bool, error) {
	return s.rdb.SetNX(ctx, codeKey(id), time.Now().Unix(), s.ttl).Result()
}

func (s *RedisCodeStore) Release(ctx context.Context, id room.ID) error {
	return s.rdb.Del(ctx, codeKey(id)).Err()
}

// Refresh resets the TTL. A key that already expired is claimed again.
func (s *RedisCodeStore) Refresh(ctx context.Context, id room.ID) error {
	ok, err := s.rdb.Expire(ctx, codeKey(id), s.ttl).Result()
	if err != nil || ok {
		return err
	}
	claimed, err := s.Reserve(ctx, id)
	if err != nil {
		return err
	}
	if !claimed {
		return fmt.Errorf("room code %s was taken after it expired", id)
	}
	return nil
}

// RefreshInterval is how often the hub should call Refresh.
func (s *RedisCodeStore) RefreshInterval() time.Duration {
	return s.ttl / 3
}
