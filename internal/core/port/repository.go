package port

import (
	"context"

	"github.com/Wyydra/yacall/internal/core/domain"
)

// CallRecordStore is shared by both participants; the core never assumes
// exclusive write access.
type CallRecordStore interface {
	// Create stores rec under rec.ID, or under a fresh id when rec.ID is empty.
	Create(ctx context.Context, rec domain.CallRecord) (domain.CallID, error)
	// Update applies upd only if the record's status is in upd.From, else
	// returns domain.ErrStaleTransition.
	Update(ctx context.Context, id domain.CallID, upd domain.RecordUpdate) error
	Get(ctx context.Context, id domain.CallID) (domain.CallRecord, error)
	// List returns the records matching filter, oldest first.
	List(ctx context.Context, filter domain.RecordFilter) ([]domain.CallRecord, error)
	// Subscribe first emits an added event per matching record, then follows changes.
	Subscribe(ctx context.Context, filter domain.RecordFilter) (Subscription[domain.RecordChange], error)
}
