package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dubwise/dubwise-backend/internal/platform/logger"
)

const dequeuePoll = time.Second

// RedisBroker is a list-backed queue with a sorted-set sidecar for delayed
// tasks. Enqueue LPUSHes; Dequeue promotes due delayed tasks and BRPOPs, so
// ready tasks are FIFO and delayed tasks become visible at their due time.
type RedisBroker struct {
	client     *redis.Client
	queueKey   string
	delayedKey string
	log        *logger.Logger
}

func NewRedisBroker(redisURL, queue string, baseLog *logger.Logger) (*RedisBroker, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return newRedisBroker(client, queue, baseLog), nil
}

// NewRedisBrokerWithClient wires an existing client, used by tests running
// against miniredis.
func NewRedisBrokerWithClient(client *redis.Client, queue string, baseLog *logger.Logger) *RedisBroker {
	return newRedisBroker(client, queue, baseLog)
}

func newRedisBroker(client *redis.Client, queue string, baseLog *logger.Logger) *RedisBroker {
	return &RedisBroker{
		client:     client,
		queueKey:   "queue:" + queue,
		delayedKey: "queue:" + queue + ":delayed",
		log:        baseLog.With("service", "RedisBroker", "queue", queue),
	}
}

func (b *RedisBroker) Enqueue(ctx context.Context, task *Task) error {
	payload, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("marshal task: %w", err)
	}
	if err := b.client.LPush(ctx, b.queueKey, payload).Err(); err != nil {
		return fmt.Errorf("lpush task: %w", err)
	}
	return nil
}

func (b *RedisBroker) EnqueueIn(ctx context.Context, task *Task, delay time.Duration) error {
	if delay <= 0 {
		return b.Enqueue(ctx, task)
	}
	payload, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("marshal task: %w", err)
	}
	due := float64(time.Now().Add(delay).UnixMilli())
	err = b.client.ZAdd(ctx, b.delayedKey, redis.Z{Score: due, Member: payload}).Err()
	if err != nil {
		return fmt.Errorf("zadd delayed task: %w", err)
	}
	return nil
}

func (b *RedisBroker) Dequeue(ctx context.Context) (*Task, error) {
	if err := b.promoteDue(ctx); err != nil {
		return nil, err
	}
	res, err := b.client.BRPop(ctx, dequeuePoll, b.queueKey).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("brpop: %w", err)
	}
	// BRPop returns [key, value].
	if len(res) != 2 {
		return nil, nil
	}
	var task Task
	if err := json.Unmarshal([]byte(res[1]), &task); err != nil {
		b.log.Error("Dropping undecodable task", "error", err)
		return nil, nil
	}
	return &task, nil
}

// promoteDue moves every delayed task whose due time has passed onto the
// ready list. ZRem guards against double promotion by concurrent workers.
func (b *RedisBroker) promoteDue(ctx context.Context) error {
	now := strconv.FormatInt(time.Now().UnixMilli(), 10)
	members, err := b.client.ZRangeByScore(ctx, b.delayedKey, &redis.ZRangeBy{
		Min: "-inf",
		Max: now,
	}).Result()
	if err != nil && err != redis.Nil {
		return fmt.Errorf("zrangebyscore delayed: %w", err)
	}
	for _, member := range members {
		removed, err := b.client.ZRem(ctx, b.delayedKey, member).Result()
		if err != nil {
			return fmt.Errorf("zrem delayed: %w", err)
		}
		if removed == 0 {
			continue
		}
		if err := b.client.LPush(ctx, b.queueKey, member).Err(); err != nil {
			return fmt.Errorf("lpush promoted: %w", err)
		}
	}
	return nil
}

func (b *RedisBroker) Close() error {
	return b.client.Close()
}
