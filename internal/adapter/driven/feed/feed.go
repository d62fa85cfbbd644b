// Package feed provides the subscription plumbing shared by the driven adapters:
// an unbounded, ordered, cancellable event queue so a writer never blocks on a
// slow subscriber.
package feed

import "sync"

type Feed[T any] struct {
	mu     sync.Mutex
	queue  []T
	notify chan struct{}
	done   chan struct{}
	out    chan T

	once     sync.Once
	onCancel func()
}

// New starts the delivery goroutine. onCancel, if non-nil, runs once when the
// feed is cancelled (typically to detach it from its source).
func New[T any](onCancel func()) *Feed[T] {
	f := &Feed[T]{
		notify:   make(chan struct{}, 1),
		done:     make(chan struct{}),
		out:      make(chan T),
		onCancel: onCancel,
	}
	go f.run()
	return f
}

// Push enqueues v. Returns false once the feed is cancelled.
func (f *Feed[T]) Push(v T) bool {
	select {
	case <-f.done:
		return false
	default:
	}
	f.mu.Lock()
	f.queue = append(f.queue, v)
	f.mu.Unlock()
	select {
	case f.notify <- struct{}{}:
	default:
	}
	return true
}

func (f *Feed[T]) Events() <-chan T {
	return f.out
}

func (f *Feed[T]) Done() <-chan struct{} {
	return f.done
}

func (f *Feed[T]) Cancel() {
	f.once.Do(func() {
		close(f.done)
		if f.onCancel != nil {
			f.onCancel()
		}
	})
}

func (f *Feed[T]) run() {
	defer close(f.out)
	for {
		select {
		case <-f.done:
			return
		case <-f.notify:
		}

		f.mu.Lock()
		batch := f.queue
		f.queue = nil
		f.mu.Unlock()

		for _, v := range batch {
			select {
			case f.out <- v:
			case <-f.done:
				return
			}
		}
	}
}
