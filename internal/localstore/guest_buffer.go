package localstore

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"ecolisting-chat-backend/internal/model"
)

type GuestEntry struct {
	Role      model.MessageRole `json:"role"`
	Content   string            `json:"content"`
	CreatedAt time.Time         `json:"ts"`
}

// GuestBuffer holds messages written before any server conversation exists.
type GuestBuffer struct {
	store Store
	mu    sync.Mutex
}

func NewGuestBuffer(store Store) *GuestBuffer {
	return &GuestBuffer{store: store}
}

// Read treats a missing or corrupt buffer as empty.
func (b *GuestBuffer) Read(ctx context.Context) []GuestEntry {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.read(ctx)
}

func (b *GuestBuffer) read(ctx context.Context) []GuestEntry {
	raw, ok, err := b.store.Get(ctx, GuestBufferKey)
	if err != nil || !ok {
		return []GuestEntry{}
	}
	return decodeEntries(raw)
}

func decodeEntries(raw string) []GuestEntry {
	if raw == "" {
		return []GuestEntry{}
	}
	var entries []GuestEntry
	if err := json.Unmarshal([]byte(raw), &entries); err != nil {
		return []GuestEntry{}
	}
	out := entries[:0]
	for _, e := range entries {
		if e.Role == model.RoleCustomer || e.Role == model.RoleAutomated {
			out = append(out, e)
		}
	}
	return out
}

func (b *GuestBuffer) Append(ctx context.Context, role model.MessageRole, content string, ts time.Time) (GuestEntry, error) {
	if role != model.RoleCustomer && role != model.RoleAutomated {
		return GuestEntry{}, fmt.Errorf("guest buffer: unsupported role %q", role)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	entry := GuestEntry{Role: role, Content: content, CreatedAt: ts}
	entries := append(b.read(ctx), entry)

	raw, err := json.Marshal(entries)
	if err != nil {
		return GuestEntry{}, fmt.Errorf("guest buffer: encode: %w", err)
	}
	if err := b.store.Set(ctx, GuestBufferKey, string(raw)); err != nil {
		return GuestEntry{}, err
	}
	return entry, nil
}

// Take returns the buffered entries and clears the buffer in one store
// operation, so an entry appended concurrently is either taken or kept.
func (b *GuestBuffer) Take(ctx context.Context) ([]GuestEntry, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	raw, ok, err := b.store.Take(ctx, GuestBufferKey)
	if err != nil {
		return nil, err
	}
	if !ok {
		return []GuestEntry{}, nil
	}
	return decodeEntries(raw), nil
}
