package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisBus carries room traffic over Redis pub/sub so rooms can be shared by
// several server processes.
type RedisBus struct {
	client *redis.Client
}

func NewRedisBus(client *redis.Client) *RedisBus {
	return &RedisBus{client: client}
}

func (b *RedisBus) Publish(ctx context.Context, topic string, payload []byte) error {
	return b.client.Publish(ctx, topic, payload).Err()
}

// Subscribe returns once Redis has confirmed the subscription, so messages
// published afterwards are not missed.
func (b *RedisBus) Subscribe(ctx context.Context, topic string) (Subscription, error) {
	ps := b.client.Subscribe(ctx, topic)
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, err
	}

	s := &redisSub{
		ps:   ps,
		ch:   make(chan []byte, 64),
		done: make(chan struct{}),
	}
	go s.forward()

	return s, nil
}

type redisSub struct {
	ps   *redis.PubSub
	ch   chan []byte
	done chan struct{}
	once sync.Once
}

func (s *redisSub) forward() {
	in := s.ps.Channel()
	for {
		select {
		case msg, ok := <-in:
			if !ok {
				return
			}
			select {
			case s.ch <- []byte(msg.Payload):
			case <-s.done:
				return
			}
		case <-s.done:
			return
		}
	}
}

func (s *redisSub) Messages() <-chan []byte { return s.ch }

func (s *redisSub) Close() error {
	var err error
	s.once.Do(func() {
		close(s.done)
		err = s.ps.Close()
	})

	return err
}

// Directory records which process owns each room.
type Directory interface {
	// Claim registers node as owner of a new room. It reports false if the
	// room id is already taken.
	Claim(ctx context.Context, roomID, node string) (bool, error)
	Owner(ctx context.Context, roomID string) (string, bool, error)
	Refresh(ctx context.Context, roomID string) error
	Release(ctx context.Context, roomID string) error
}

type LocalDirectory struct {
	mu     sync.Mutex
	owners map[string]string
}

func NewLocalDirectory() *LocalDirectory {
	return &LocalDirectory{owners: make(map[string]string)}
}

func (d *LocalDirectory) Claim(_ context.Context, roomID, node string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, taken := d.owners[roomID]; taken {
		return false, nil
	}
	d.owners[roomID] = node

	return true, nil
}

func (d *LocalDirectory) Owner(_ context.Context, roomID string) (string, bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	node, ok := d.owners[roomID]

	return node, ok, nil
}

func (d *LocalDirectory) Refresh(context.Context, string) error { return nil }

func (d *LocalDirectory) Release(_ context.Context, roomID string) error {
	d.mu.Lock()
	delete(d.owners, roomID)
	d.mu.Unlock()

	return nil
}

// RedisDirectory stores room owners as keys with a TTL. Owners refresh the
// TTL while the room lives, so rooms of a crashed process expire.
type RedisDirectory struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisDirectory(client *redis.Client, ttl time.Duration) *RedisDirectory {
	return &RedisDirectory{client: client, ttl: ttl}
}

func roomKey(roomID string) string { return "storyteller:room:" + roomID }

func (d *RedisDirectory) Claim(ctx context.Context, roomID, node string) (bool, error) {
	return d.client.SetNX(ctx, roomKey(roomID), node, d.ttl).Result()
}

func (d *RedisDirectory) Owner(ctx context.Context, roomID string) (string, bool, error) {
	node, err := d.client.Get(ctx, roomKey(roomID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}

	return node, true, nil
}

func (d *RedisDirectory) Refresh(ctx context.Context, roomID string) error {
	if d.ttl <= 0 {
		return nil
	}
	return d.client.Expire(ctx, roomKey(roomID), d.ttl).Err()
}

func (d *RedisDirectory) Release(ctx context.Context, roomID string) error {
	return d.client.Del(ctx, roomKey(roomID)).Err()
}
