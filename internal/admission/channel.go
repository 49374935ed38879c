package admission

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/go-redis/redis/v8"
)

var ErrEmptyChannel = errors.New("admission: channel is empty")

// Channel is an unbounded multi-producer, single-consumer queue of Messages.
type Channel interface {
	Push(ctx context.Context, msg Message) error
	// Pop returns ErrEmptyChannel when nothing is queued.
	Pop(ctx context.Context) (Message, error)
	Len(ctx context.Context) (int, error)
}

// MemoryChannel is the in-process Channel.
type MemoryChannel struct {
	mu   sync.Mutex
	msgs []Message
}

func NewMemoryChannel() *MemoryChannel {
	return &MemoryChannel{}
}

func (c *MemoryChannel) Push(_ context.Context, msg Message) error {
	c.mu.Lock()
	c.msgs = append(c.msgs, msg.clone())
	c.mu.Unlock()
	return nil
}

func (c *MemoryChannel) Pop(_ context.Context) (Message, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.msgs) == 0 {
		return Message{}, ErrEmptyChannel
	}
	msg := c.msgs[0]
	c.msgs[0] = Message{}
	c.msgs = c.msgs[1:]
	return msg.clone(), nil
}

func (c *MemoryChannel) Len(_ context.Context) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.msgs), nil
}

// RedisChannel keeps Messages in a redis list so that producers in other
// processes (a chat gateway, for example) can enqueue admissions.
type RedisChannel struct {
	client *redis.Client
	key    string
}

func NewRedisChannel(client *redis.Client, key string) *RedisChannel {
	return &RedisChannel{client: client, key: key}
}

func (c *RedisChannel) Push(ctx context.Context, msg Message) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("admission: encode message: %w", err)
	}
	if err := c.client.RPush(ctx, c.key, payload).Err(); err != nil {
		return fmt.Errorf("admission: push: %w", err)
	}
	return nil
}

func (c *RedisChannel) Pop(ctx context.Context) (Message, error) {
	raw, err := c.client.LPop(ctx, c.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return Message{}, ErrEmptyChannel
	}
	if err != nil {
		return Message{}, fmt.Errorf("admission: pop: %w", err)
	}
	var msg Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		return Message{}, fmt.Errorf("admission: decode message: %w", err)
	}
	return msg, nil
}

func (c *RedisChannel) Len(ctx context.Context) (int, error) {
	n, err := c.client.LLen(ctx, c.key).Result()
	if err != nil {
		return 0, fmt.Errorf("admission: len: %w", err)
	}
	return int(n), nil
}
