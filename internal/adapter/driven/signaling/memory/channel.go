package memory

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/Wyydra/yacall/internal/adapter/driven/feed"
	"github.com/Wyydra/yacall/internal/core/domain"
	"github.com/Wyydra/yacall/internal/core/port"
)

type watcher struct {
	path string
	feed *feed.Feed[domain.Snapshot]
}

// Channel implements port.SignalingChannel in process memory. Both peers of a
// test or a single-host deployment share one instance.
type Channel struct {
	mu          sync.Mutex
	slots       map[string][]byte
	collections map[string][]domain.Entry
	watchers    map[*watcher]struct{}
}

func NewChannel() *Channel {
	return &Channel{
		slots:       make(map[string][]byte),
		collections: make(map[string][]domain.Entry),
		watchers:    make(map[*watcher]struct{}),
	}
}

func (c *Channel) Write(ctx context.Context, path string, value []byte) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrStoreWrite, err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	c.slots[path] = slices.Clone(value)
	c.notify(path)
	return nil
}

func (c *Channel) Append(ctx context.Context, path string, value []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrStoreWrite, err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	key := domain.NewInsertionKey()
	c.collections[path] = append(c.collections[path], domain.Entry{Key: key, Value: slices.Clone(value)})
	c.notify(path + "/" + key)
	return key, nil
}

func (c *Channel) ReadOnce(ctx context.Context, path string) ([]byte, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	v, ok := c.slots[path]
	if !ok {
		return nil, false, nil
	}
	return slices.Clone(v), true, nil
}

func (c *Channel) Take(ctx context.Context, path string) ([]byte, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, fmt.Errorf("%w: %v", domain.ErrStoreWrite, err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	v, ok := c.slots[path]
	if !ok {
		return nil, false, nil
	}
	delete(c.slots, path)
	c.notify(path)
	return v, true, nil
}

func (c *Channel) Subscribe(ctx context.Context, path string) (port.Subscription[domain.Snapshot], error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	w := &watcher{path: path}
	w.feed = feed.New[domain.Snapshot](func() {
		c.mu.Lock()
		delete(c.watchers, w)
		c.mu.Unlock()
	})
	w.feed.Push(c.snapshot(path))
	c.watchers[w] = struct{}{}
	return w.feed, nil
}

func (c *Channel) Remove(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrStoreWrite, err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	for p := range c.slots {
		if within(p, path) {
			delete(c.slots, p)
		}
	}
	for p := range c.collections {
		if within(p, path) {
			delete(c.collections, p)
		}
	}
	c.notify(path)
	return nil
}

// Len reports how many values live under path. Used by tests.
func (c *Channel) Len(path string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := 0
	for p := range c.slots {
		if within(p, path) {
			n++
		}
	}
	for p, entries := range c.collections {
		if within(p, path) {
			n += len(entries)
		}
	}
	return n
}

// must hold c.mu
func (c *Channel) snapshot(path string) domain.Snapshot {
	s := domain.Snapshot{Path: path}
	if v, ok := c.slots[path]; ok {
		s.Value = slices.Clone(v)
	}
	for _, e := range c.collections[path] {
		s.Children = append(s.Children, domain.Entry{Key: e.Key, Value: slices.Clone(e.Value)})
	}
	return s
}

// must hold c.mu
func (c *Channel) notify(changed string) {
	for w := range c.watchers {
		if related(changed, w.path) {
			w.feed.Push(c.snapshot(w.path))
		}
	}
}

func within(p, root string) bool {
	return p == root || strings.HasPrefix(p, root+"/")
}

func related(a, b string) bool {
	return within(a, b) || within(b, a)
}
