package session

import (
	"context"
	"encoding/json"
	"sync"
)

// Bus carries room traffic between processes. Each room has an events topic
// written only by its owner, and an actions topic read only by its owner.
type Bus interface {
	Publish(ctx context.Context, topic string, payload []byte) error
	Subscribe(ctx context.Context, topic string) (Subscription, error)
}

type Subscription interface {
	Messages() <-chan []byte
	Close() error
}

func eventsTopic(roomID string) string  { return "storyteller:" + roomID + ":events" }
func actionsTopic(roomID string) string { return "storyteller:" + roomID + ":actions" }

// Envelope kinds.
const (
	// events: owner -> every process
	kindUpdate = "update"
	kindReject = "reject"
	kindClosed = "closed"

	// actions: any process -> owner
	kindJoin    = "join"
	kindLeave   = "leave"
	kindCommand = "command"
	kindRename  = "rename"
)

type PlayerInfo struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Avatar string `json:"avi,omitempty"`
}

type Envelope struct {
	Kind    string                     `json:"kind"`
	Room    string                     `json:"room"`
	Player  *PlayerInfo                `json:"player,omitempty"`
	Joined  string                     `json:"joined,omitempty"`
	Command *Command                   `json:"command,omitempty"`
	Views   map[string]json.RawMessage `json:"views,omitempty"`
}

func publishEnvelope(ctx context.Context, bus Bus, topic string, env Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}

	return bus.Publish(ctx, topic, data)
}

// LocalBus delivers within a single process. Publish blocks until every
// subscriber has taken the message or gone away.
type LocalBus struct {
	mu     sync.RWMutex
	subs   map[string]map[*localSub]struct{}
	buffer int
}

func NewLocalBus() *LocalBus {
	return &LocalBus{
		subs:   make(map[string]map[*localSub]struct{}),
		buffer: 64,
	}
}

func (b *LocalBus) Publish(ctx context.Context, topic string, payload []byte) error {
	b.mu.RLock()
	targets := make([]*localSub, 0, len(b.subs[topic]))
	for s := range b.subs[topic] {
		targets = append(targets, s)
	}
	b.mu.RUnlock()

	for _, s := range targets {
		select {
		case s.ch <- payload:
		case <-s.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	return nil
}

func (b *LocalBus) Subscribe(_ context.Context, topic string) (Subscription, error) {
	s := &localSub{
		bus:   b,
		topic: topic,
		ch:    make(chan []byte, b.buffer),
		done:  make(chan struct{}),
	}

	b.mu.Lock()
	if b.subs[topic] == nil {
		b.subs[topic] = make(map[*localSub]struct{})
	}
	b.subs[topic][s] = struct{}{}
	b.mu.Unlock()

	return s, nil
}

// Subscribers reports how many subscriptions a topic has.
func (b *LocalBus) Subscribers(topic string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return len(b.subs[topic])
}

type localSub struct {
	bus   *LocalBus
	topic string
	ch    chan []byte
	done  chan struct{}
	once  sync.Once
}

func (s *localSub) Messages() <-chan []byte { return s.ch }

// Close stops delivery. The message channel is left open and simply goes
// quiet; readers select on their own shutdown signal.
func (s *localSub) Close() error {
	s.once.Do(func() {
		close(s.done)

		s.bus.mu.Lock()
		delete(s.bus.subs[s.topic], s)
		if len(s.bus.subs[s.topic]) == 0 {
			delete(s.bus.subs, s.topic)
		}
		s.bus.mu.Unlock()
	})

	return nil
}
