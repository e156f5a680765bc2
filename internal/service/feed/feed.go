package feed

import (
	"sort"
	"sync"
)

// Feed is the visible, ordered and de-duplicated list of messages for one
// conversation view.
type Feed struct {
	mu    sync.Mutex
	items []Message
	seen  map[string]struct{}
}

func NewFeed(snapshot []Message) *Feed {
	f := &Feed{seen: make(map[string]struct{}, len(snapshot))}
	for _, m := range snapshot {
		f.insert(m)
	}
	return f
}

// Insert places m by creation time and id. It reports false for a message
// id already present.
func (f *Feed) Insert(m Message) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.insert(m)
}

func (f *Feed) insert(m Message) bool {
	if m.ID != "" {
		if _, ok := f.seen[m.ID]; ok {
			return false
		}
		f.seen[m.ID] = struct{}{}
	}
	i := sort.Search(len(f.items), func(i int) bool {
		return less(m, f.items[i])
	})
	f.items = append(f.items, Message{})
	copy(f.items[i+1:], f.items[i:])
	f.items[i] = m
	return true
}

func (f *Feed) Messages() []Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Message(nil), f.items...)
}

func (f *Feed) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.items)
}
