package nipsa

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultSetKey = "nipsa:users"

// RedisStore keeps the shadow-banned user ids in a single Redis set.
type RedisStore struct {
	client *redis.Client
	key    string
}

func NewRedisStore(redisURL string) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return NewRedisStoreWithClient(client), nil
}

func NewRedisStoreWithClient(client *redis.Client) *RedisStore {
	return &RedisStore{client: client, key: defaultSetKey}
}

// IsFlagged reports whether userID is shadow-banned. Lookups are by full
// user id only.
func (s *RedisStore) IsFlagged(ctx context.Context, userID string) (bool, error) {
	flagged, err := s.client.SIsMember(ctx, s.key, userID).Result()
	if err != nil {
		return false, fmt.Errorf("check nipsa: %w", err)
	}
	return flagged, nil
}

// FlaggedAmong checks several user ids in one round trip.
func (s *RedisStore) FlaggedAmong(ctx context.Context, userIDs []string) (map[string]bool, error) {
	out := make(map[string]bool, len(userIDs))
	if len(userIDs) == 0 {
		return out, nil
	}
	members := make([]any, len(userIDs))
	for i, id := range userIDs {
		members[i] = id
	}
	flags, err := s.client.SMIsMember(ctx, s.key, members...).Result()
	if err != nil {
		return nil, fmt.Errorf("check nipsa: %w", err)
	}
	for i, id := range userIDs {
		out[id] = flags[i]
	}
	return out, nil
}

func (s *RedisStore) Add(ctx context.Context, userID string) error {
	if _, _, err := SplitUser(userID); err != nil {
		return err
	}
	if err := s.client.SAdd(ctx, s.key, userID).Err(); err != nil {
		return fmt.Errorf("add nipsa: %w", err)
	}
	return nil
}

// Remove un-flags userID. Removing a user who is not flagged is a no-op.
func (s *RedisStore) Remove(ctx context.Context, userID string) error {
	if _, _, err := SplitUser(userID); err != nil {
		return err
	}
	if err := s.client.SRem(ctx, s.key, userID).Err(); err != nil {
		return fmt.Errorf("remove nipsa: %w", err)
	}
	return nil
}

// List returns every flagged user id, sorted.
func (s *RedisStore) List(ctx context.Context) ([]string, error) {
	users, err := s.client.SMembers(ctx, s.key).Result()
	if err != nil {
		return nil, fmt.Errorf("list nipsa: %w", err)
	}
	sort.Strings(users)
	return users, nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
