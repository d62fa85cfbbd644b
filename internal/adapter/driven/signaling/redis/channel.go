package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Wyydra/yacall/internal/adapter/driven/feed"
	"github.com/Wyydra/yacall/internal/core/domain"
	"github.com/Wyydra/yacall/internal/core/port"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const (
	keyPrefix     = "sig:"
	changesPrefix = "sig:changes"
	valueField    = "v"
	// entryTTL bounds how long an abandoned slot or collection survives a crash.
	entryTTL = 10 * time.Minute
)

// Channel implements port.SignalingChannel on Redis. Slots are string keys,
// collections are streams whose entry ids serve as insertion keys, and every
// write publishes the changed path on the channel of its partition, so a
// subscriber only hears about its own user's signaling.
type Channel struct {
	rdb *redis.Client
}

func NewChannel(rdb *redis.Client) *Channel {
	return &Channel{rdb: rdb}
}

func (c *Channel) Write(ctx context.Context, path string, value []byte) error {
	_, err := c.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Set(ctx, key(path), value, entryTTL)
		p.Publish(ctx, changesChannel(path), path)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: write %s: %v", domain.ErrStoreWrite, path, err)
	}
	return nil
}

func (c *Channel) Append(ctx context.Context, path string, value []byte) (string, error) {
	var add *redis.StringCmd
	_, err := c.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		add = p.XAdd(ctx, &redis.XAddArgs{
			Stream: key(path),
			Values: map[string]any{valueField: value},
		})
		p.Expire(ctx, key(path), entryTTL)
		p.Publish(ctx, changesChannel(path), path)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("%w: append %s: %v", domain.ErrStoreWrite, path, err)
	}
	return add.Val(), nil
}

func (c *Channel) ReadOnce(ctx context.Context, path string) ([]byte, bool, error) {
	v, err := c.rdb.Get(ctx, key(path)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return v, true, nil
}

// Take consumes a slot with GETDEL, so two readers never both get it.
func (c *Channel) Take(ctx context.Context, path string) ([]byte, bool, error) {
	var get *redis.StringCmd
	_, err := c.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		get = p.GetDel(ctx, key(path))
		p.Publish(ctx, changesChannel(path), path)
		return nil
	})
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, false, fmt.Errorf("%w: take %s: %v", domain.ErrStoreWrite, path, err)
	}
	v, err := get.Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return v, true, nil
}

func (c *Channel) Subscribe(ctx context.Context, path string) (port.Subscription[domain.Snapshot], error) {
	var (
		ps   *redis.PubSub
		acks int
	)
	if partitioned(path) {
		ps = c.rdb.Subscribe(ctx, changesChannel(path), changesPrefix)
		acks = 2
	} else {
		ps = c.rdb.PSubscribe(ctx, escapeGlob(changesPrefix)+"*")
		acks = 1
	}
	// Wait for the confirmations so no change slips in before the first snapshot.
	for acks > 0 {
		msg, err := ps.Receive(ctx)
		if err != nil {
			_ = ps.Close()
			return nil, fmt.Errorf("subscribe %s: %w", path, err)
		}
		if _, ok := msg.(*redis.Subscription); ok {
			acks--
		}
	}
	snap, err := c.snapshot(ctx, path)
	if err != nil {
		_ = ps.Close()
		return nil, err
	}

	listenCtx, cancel := context.WithCancel(context.Background())
	f := feed.New[domain.Snapshot](cancel)
	f.Push(snap)

	go func() {
		defer ps.Close()
		msgs := ps.Channel()
		for {
			select {
			case <-listenCtx.Done():
				return
			case m, ok := <-msgs:
				if !ok {
					return
				}
				if !related(m.Payload, path) {
					continue
				}
				snap, err := c.snapshot(listenCtx, path)
				if err != nil {
					if listenCtx.Err() == nil {
						log.Warn().Err(err).Str("path", path).Msg("Failed to read signaling snapshot")
					}
					continue
				}
				f.Push(snap)
			}
		}
	}()
	return f, nil
}

// Remove deletes path and everything below it.
func (c *Channel) Remove(ctx context.Context, path string) error {
	keys := []string{key(path)}
	iter := c.rdb.Scan(ctx, 0, escapeGlob(key(path))+"/*", 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("%w: scan %s: %v", domain.ErrStoreWrite, path, err)
	}

	_, err := c.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Del(ctx, keys...)
		p.Publish(ctx, changesChannel(path), path)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: remove %s: %v", domain.ErrStoreWrite, path, err)
	}
	return nil
}

func (c *Channel) snapshot(ctx context.Context, path string) (domain.Snapshot, error) {
	s := domain.Snapshot{Path: path}
	typ, err := c.rdb.Type(ctx, key(path)).Result()
	if err != nil {
		return s, err
	}
	switch typ {
	case "string":
		v, err := c.rdb.Get(ctx, key(path)).Bytes()
		if errors.Is(err, redis.Nil) {
			return s, nil
		}
		if err != nil {
			return s, err
		}
		s.Value = v
	case "stream":
		msgs, err := c.rdb.XRange(ctx, key(path), "-", "+").Result()
		if err != nil {
			return s, err
		}
		s.Children = entries(msgs)
	}
	return s, nil
}

func entries(msgs []redis.XMessage) []domain.Entry {
	out := make([]domain.Entry, 0, len(msgs))
	for _, m := range msgs {
		raw, ok := m.Values[valueField].(string)
		if !ok {
			continue
		}
		out = append(out, domain.Entry{Key: m.ID, Value: []byte(raw)})
	}
	return out
}

// changesChannel names the pub/sub channel for path. Paths with at least two
// segments (signaling/{uid}/...) share one channel per prefix; shallower
// paths go to changesPrefix, which every subscriber also hears.
func changesChannel(path string) string {
	parts := strings.SplitN(path, "/", 3)
	if len(parts) < 2 {
		return changesPrefix
	}
	return changesPrefix + ":" + parts[0] + "/" + parts[1]
}

func partitioned(path string) bool {
	return len(strings.SplitN(path, "/", 3)) >= 2
}

func key(path string) string {
	return keyPrefix + path
}

func within(p, root string) bool {
	return p == root || strings.HasPrefix(p, root+"/")
}

func related(a, b string) bool {
	return within(a, b) || within(b, a)
}

func escapeGlob(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `*`, `\*`, `?`, `\?`, `[`, `\[`, `]`, `\]`)
	return r.Replace(s)
}
