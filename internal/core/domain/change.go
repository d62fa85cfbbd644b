package domain

type ChangeKind string

const (
	ChangeAdded    ChangeKind = "added"
	ChangeModified ChangeKind = "modified"
	ChangeRemoved  ChangeKind = "removed"
)

// RecordChange is one entry of a store change feed, relative to a filter:
// added when a record starts matching, modified while it keeps matching,
// removed when it stops.
type RecordChange struct {
	Kind   ChangeKind
	Record CallRecord
}

// RecordFilter selects records by equality. Zero fields match anything.
type RecordFilter struct {
	ID         CallID
	CallerID   UserID
	ReceiverID UserID
	Status     CallStatus
}

func ByID(id CallID) RecordFilter {
	return RecordFilter{ID: id}
}

func RingingFor(receiver UserID) RecordFilter {
	return RecordFilter{ReceiverID: receiver, Status: CallStatusRinging}
}

// RingingBetween selects the calls caller is ringing receiver with.
func RingingBetween(caller, receiver UserID) RecordFilter {
	return RecordFilter{CallerID: caller, ReceiverID: receiver, Status: CallStatusRinging}
}

func (f RecordFilter) Matches(r CallRecord) bool {
	if f.ID != "" && f.ID != r.ID {
		return false
	}
	if f.CallerID != "" && f.CallerID != r.CallerID {
		return false
	}
	if f.ReceiverID != "" && f.ReceiverID != r.ReceiverID {
		return false
	}
	if f.Status != "" && f.Status != r.Status {
		return false
	}
	return true
}

// Classify turns a before/after match pair into a change kind. ok is false
// when the record is irrelevant to the filter on both sides.
func Classify(wasMatching, nowMatching bool) (kind ChangeKind, ok bool) {
	switch {
	case !wasMatching && nowMatching:
		return ChangeAdded, true
	case wasMatching && nowMatching:
		return ChangeModified, true
	case wasMatching && !nowMatching:
		return ChangeRemoved, true
	default:
		return "", false
	}
}

// ChangeTracker remembers which records currently match a filter so a raw
// write stream can be turned into added/modified/removed events.
type ChangeTracker struct {
	filter   RecordFilter
	matching map[CallID]struct{}
}

func NewChangeTracker(f RecordFilter) *ChangeTracker {
	return &ChangeTracker{filter: f, matching: make(map[CallID]struct{})}
}

func (t *ChangeTracker) Observe(r CallRecord) (RecordChange, bool) {
	_, was := t.matching[r.ID]
	now := t.filter.Matches(r)
	kind, ok := Classify(was, now)
	if !ok {
		return RecordChange{}, false
	}
	if now {
		t.matching[r.ID] = struct{}{}
	} else {
		delete(t.matching, r.ID)
	}
	return RecordChange{Kind: kind, Record: r}, true
}
