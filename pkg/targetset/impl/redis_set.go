package impl

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/castsync/go-castsync/internal/castsync"
	"github.com/castsync/go-castsync/pkg/targetset"
	"github.com/redis/go-redis/v9"
)

// NewRedisClient creates a redis client with the timeouts used by the indexer.
func NewRedisClient(addr, password string, db int) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		DialTimeout:  time.Second * 3,
		ReadTimeout:  time.Second * 2,
		WriteTimeout: time.Second * 2,
		PoolSize:     20,
	})
}

// RedisSet is a targetset.Set backed by a redis set.
type RedisSet struct {
	client *redis.Client
	key    string
}

var _ targetset.Set = (*RedisSet)(nil)

// NewRedisSet creates a new redis-backed set stored under key.
func NewRedisSet(client *redis.Client, key string) *RedisSet {
	return &RedisSet{client: client, key: key}
}

// Add adds fid to the set.
func (s *RedisSet) Add(ctx context.Context, fid castsync.FID) error {
	if err := s.client.SAdd(ctx, s.key, member(fid)).Err(); err != nil {
		return fmt.Errorf("adding member to %s: %s", s.key, err)
	}
	return nil
}

// Remove removes fid from the set.
func (s *RedisSet) Remove(ctx context.Context, fid castsync.FID) error {
	if err := s.client.SRem(ctx, s.key, member(fid)).Err(); err != nil {
		return fmt.Errorf("removing member from %s: %s", s.key, err)
	}
	return nil
}

// Contains reports whether fid is in the set.
func (s *RedisSet) Contains(ctx context.Context, fid castsync.FID) (bool, error) {
	ok, err := s.client.SIsMember(ctx, s.key, member(fid)).Result()
	if err != nil {
		return false, fmt.Errorf("checking membership in %s: %s", s.key, err)
	}
	return ok, nil
}

// Size returns the cardinality of the set.
func (s *RedisSet) Size(ctx context.Context) (int64, error) {
	size, err := s.client.SCard(ctx, s.key).Result()
	if err != nil {
		return 0, fmt.Errorf("getting cardinality of %s: %s", s.key, err)
	}
	return size, nil
}

// Members returns every fid in the set.
func (s *RedisSet) Members(ctx context.Context) ([]castsync.FID, error) {
	members, err := s.client.SMembers(ctx, s.key).Result()
	if err != nil {
		return nil, fmt.Errorf("getting members of %s: %s", s.key, err)
	}

	fids := make([]castsync.FID, 0, len(members))
	for _, m := range members {
		fid, err := strconv.ParseUint(m, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parsing member %q of %s: %s", m, s.key, err)
		}
		fids = append(fids, castsync.FID(fid))
	}
	return fids, nil
}

// Replace swaps the whole set content in a single pipeline.
func (s *RedisSet) Replace(ctx context.Context, fids []castsync.FID) error {
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, s.key)
	if len(fids) > 0 {
		members := make([]interface{}, len(fids))
		for i, fid := range fids {
			members[i] = member(fid)
		}
		pipe.SAdd(ctx, s.key, members...)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("replacing content of %s: %s", s.key, err)
	}
	return nil
}

func member(fid castsync.FID) string {
	return strconv.FormatUint(uint64(fid), 10)
}
