package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"transcription-service/internal/entity"
)

var (
	// ErrNoMessage is returned by Receive when nothing arrived within the timeout.
	ErrNoMessage = errors.New("queue: no message")
	ErrQueueFull = errors.New("queue: full")
)

// Queue carries dispatch messages from admission to workers. Delivery is
// at-most-once: a received message is gone from the queue and nothing is
// acknowledged back to the sender.
type Queue interface {
	Enqueue(ctx context.Context, msg entity.DispatchMessage) error
	Receive(ctx context.Context, timeout time.Duration) (entity.DispatchMessage, error)
}

// redisQueue is a Redis list: LPUSH on enqueue, BRPOP on receive.
type redisQueue struct {
	rdb *redis.Client
	key string
}

func NewRedisQueue(rdb *redis.Client, key string) Queue {
	return &redisQueue{rdb: rdb, key: key}
}

func (q *redisQueue) Enqueue(ctx context.Context, msg entity.DispatchMessage) error {
	b, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return q.rdb.LPush(ctx, q.key, b).Err()
}

func (q *redisQueue) Receive(ctx context.Context, timeout time.Duration) (entity.DispatchMessage, error) {
	var msg entity.DispatchMessage

	res, err := q.rdb.BRPop(ctx, timeout, q.key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return msg, ErrNoMessage
		}
		return msg, err
	}
	// res = [key, value]
	if len(res) != 2 {
		return msg, fmt.Errorf("queue: unexpected BRPOP reply %v", res)
	}
	if err := json.Unmarshal([]byte(res[1]), &msg); err != nil {
		return msg, fmt.Errorf("queue: decode message: %w", err)
	}
	return msg, nil
}

// channelQueue keeps messages in process. Enqueue never blocks: when the
// buffer is full the message is refused with ErrQueueFull.
type channelQueue struct {
	ch chan entity.DispatchMessage
}

func NewChannelQueue(buffer int) Queue {
	if buffer <= 0 {
		buffer = 64
	}
	return &channelQueue{ch: make(chan entity.DispatchMessage, buffer)}
}

func (q *channelQueue) Enqueue(ctx context.Context, msg entity.DispatchMessage) error {
	select {
	case q.ch <- msg:
		return nil
	default:
		return ErrQueueFull
	}
}

func (q *channelQueue) Receive(ctx context.Context, timeout time.Duration) (entity.DispatchMessage, error) {
	t := time.NewTimer(timeout)
	defer t.Stop()

	select {
	case msg := <-q.ch:
		return msg, nil
	case <-ctx.Done():
		return entity.DispatchMessage{}, ctx.Err()
	case <-t.C:
		return entity.DispatchMessage{}, ErrNoMessage
	}
}
