package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/Wyydra/yacall/internal/adapter/driven/feed"
	"github.com/Wyydra/yacall/internal/core/domain"
	"github.com/Wyydra/yacall/internal/core/port"
)

type subscriber struct {
	tracker *domain.ChangeTracker
	feed    *feed.Feed[domain.RecordChange]
}

// CallRepository implements port.CallRecordStore in process memory.
type CallRepository struct {
	mu      sync.Mutex
	records map[domain.CallID]domain.CallRecord
	order   []domain.CallID
	subs    map[*subscriber]struct{}
}

func NewCallRepository() *CallRepository {
	return &CallRepository{
		records: make(map[domain.CallID]domain.CallRecord),
		subs:    make(map[*subscriber]struct{}),
	}
}

func (r *CallRepository) Create(ctx context.Context, rec domain.CallRecord) (domain.CallID, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrStoreWrite, err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if rec.ID == "" {
		rec.ID = domain.NewCallID()
	}
	if _, dup := r.records[rec.ID]; dup {
		return "", fmt.Errorf("%w: call %s already exists", domain.ErrStoreWrite, rec.ID)
	}
	r.records[rec.ID] = rec
	r.order = append(r.order, rec.ID)
	r.publish(rec)
	return rec.ID, nil
}

func (r *CallRepository) Update(ctx context.Context, id domain.CallID, upd domain.RecordUpdate) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrStoreWrite, err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records[id]
	if !ok {
		return domain.ErrCallNotFound
	}
	if !upd.Allows(rec.Status) {
		return fmt.Errorf("%w: %s is %s", domain.ErrStaleTransition, id, rec.Status)
	}
	upd.Apply(&rec)
	r.records[id] = rec
	r.publish(rec)
	return nil
}

func (r *CallRepository) Get(ctx context.Context, id domain.CallID) (domain.CallRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records[id]
	if !ok {
		return domain.CallRecord{}, domain.ErrCallNotFound
	}
	return rec, nil
}

func (r *CallRepository) List(ctx context.Context, filter domain.RecordFilter) ([]domain.CallRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []domain.CallRecord
	for _, id := range r.order {
		if rec := r.records[id]; filter.Matches(rec) {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (r *CallRepository) Subscribe(ctx context.Context, filter domain.RecordFilter) (port.Subscription[domain.RecordChange], error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	sub := &subscriber{tracker: domain.NewChangeTracker(filter)}
	sub.feed = feed.New[domain.RecordChange](func() {
		r.mu.Lock()
		delete(r.subs, sub)
		r.mu.Unlock()
	})
	for _, id := range r.order {
		if ch, ok := sub.tracker.Observe(r.records[id]); ok {
			sub.feed.Push(ch)
		}
	}
	r.subs[sub] = struct{}{}
	return sub.feed, nil
}

// Records returns every record in creation order.
func (r *CallRepository) Records() []domain.CallRecord {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]domain.CallRecord, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.records[id])
	}
	return out
}

// must hold r.mu
func (r *CallRepository) publish(rec domain.CallRecord) {
	for sub := range r.subs {
		if ch, ok := sub.tracker.Observe(rec); ok {
			sub.feed.Push(ch)
		}
	}
}
