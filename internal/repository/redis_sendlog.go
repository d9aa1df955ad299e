package repository

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisSendLog keeps per-delegation send timestamps in a sorted set so
// multiple gateway instances share the same guardrail counters. Scores
// and members are unix nanos; members get a sequence-free uniqueness
// from nanosecond resolution.
type RedisSendLog struct {
	client *RedisClient
	prefix string
}

func NewRedisSendLog(client *RedisClient) *RedisSendLog {
	return &RedisSendLog{client: client, prefix: "sendlog"}
}

func (r *RedisSendLog) Record(ctx context.Context, delegationID uint64, at time.Time) error {
	key := r.makeKey(delegationID)
	nanos := at.UnixNano()

	pipe := r.client.Client.Pipeline()
	pipe.ZAdd(ctx, key, redis.Z{Score: float64(nanos), Member: strconv.FormatInt(nanos, 10)})
	pipe.ZRemRangeByScore(ctx, key, "0", strconv.FormatInt(at.Add(-24*time.Hour).UnixNano(), 10))
	pipe.Expire(ctx, key, 48*time.Hour)
	_, err := pipe.Exec(ctx)
	return err
}

func (r *RedisSendLog) Recent(ctx context.Context, delegationID uint64, since time.Time) ([]time.Time, error) {
	key := r.makeKey(delegationID)
	members, err := r.client.Client.ZRangeByScore(ctx, key, &redis.ZRangeBy{
		Min: "(" + strconv.FormatInt(since.UnixNano(), 10),
		Max: "+inf",
	}).Result()
	if err != nil && err != redis.Nil {
		return nil, err
	}

	out := make([]time.Time, 0, len(members))
	for _, m := range members {
		nanos, err := strconv.ParseInt(m, 10, 64)
		if err != nil {
			continue
		}
		out = append(out, time.Unix(0, nanos).UTC())
	}
	return out, nil
}

func (r *RedisSendLog) makeKey(delegationID uint64) string {
	return fmt.Sprintf("%s:%d", r.prefix, delegationID)
}
