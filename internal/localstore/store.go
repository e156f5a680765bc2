package localstore

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/go-redis/redis/v8"
)

const (
	VisitorIDKey   = "guest_chat_visitor_id"
	GuestBufferKey = "guest_chat_history_v1"

	DefaultProfile = "default"
)

// Store is persistent key/value storage scoped to one client profile.
type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
	// Take reads and deletes key in one step.
	Take(ctx context.Context, key string) (string, bool, error)
}

type RedisStore struct {
	client  *redis.Client
	profile string
}

func NewRedisStore(client *redis.Client, profile string) *RedisStore {
	if profile == "" {
		profile = DefaultProfile
	}
	return &RedisStore{client: client, profile: profile}
}

func (s *RedisStore) key(key string) string {
	return fmt.Sprintf("localstore:%s:%s", s.profile, key)
}

func (s *RedisStore) Get(ctx context.Context, key string) (string, bool, error) {
	val, err := s.client.Get(ctx, s.key(key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("localstore get %s: %w", key, err)
	}
	return val, true, nil
}

func (s *RedisStore) Set(ctx context.Context, key, value string) error {
	if err := s.client.Set(ctx, s.key(key), value, 0).Err(); err != nil {
		return fmt.Errorf("localstore set %s: %w", key, err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.key(key)).Err(); err != nil {
		return fmt.Errorf("localstore delete %s: %w", key, err)
	}
	return nil
}

func (s *RedisStore) Take(ctx context.Context, key string) (string, bool, error) {
	val, err := s.client.GetDel(ctx, s.key(key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("localstore take %s: %w", key, err)
	}
	return val, true, nil
}

// SetNX stores value only when key is absent and reports whether it did.
func (s *RedisStore) SetNX(ctx context.Context, key, value string) (bool, error) {
	ok, err := s.client.SetNX(ctx, s.key(key), value, 0).Result()
	if err != nil {
		return false, fmt.Errorf("localstore setnx %s: %w", key, err)
	}
	return ok, nil
}

type MemoryStore struct {
	mu    sync.Mutex
	items map[string]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{items: make(map[string]string)}
}

func (s *MemoryStore) Get(_ context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	val, ok := s.items[key]
	return val, ok, nil
}

func (s *MemoryStore) Set(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[key] = value
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.items, key)
	return nil
}

func (s *MemoryStore) Take(_ context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	val, ok := s.items[key]
	delete(s.items, key)
	return val, ok, nil
}

func (s *MemoryStore) SetNX(_ context.Context, key, value string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[key]; ok {
		return false, nil
	}
	s.items[key] = value
	return true, nil
}

// Profiles hands out the Store for a client profile.
type Profiles interface {
	Profile(name string) Store
}

type RedisProfiles struct {
	client *redis.Client
}

func NewRedisProfiles(client *redis.Client) *RedisProfiles {
	return &RedisProfiles{client: client}
}

func (p *RedisProfiles) Profile(name string) Store {
	return NewRedisStore(p.client, name)
}

type MemoryProfiles struct {
	mu     sync.Mutex
	stores map[string]*MemoryStore
}

func NewMemoryProfiles() *MemoryProfiles {
	return &MemoryProfiles{stores: make(map[string]*MemoryStore)}
}

func (p *MemoryProfiles) Profile(name string) Store {
	if name == "" {
		name = DefaultProfile
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	store, ok := p.stores[name]
	if !ok {
		store = NewMemoryStore()
		p.stores[name] = store
	}
	return store
}
