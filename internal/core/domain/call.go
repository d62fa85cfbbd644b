package domain

import (
	"slices"
	"time"
)

type CallType string

const (
	CallTypeVoice CallType = "voice"
	CallTypeVideo CallType = "video"
)

func (t CallType) Valid() bool {
	return t == CallTypeVoice || t == CallTypeVideo
}

type CallStatus string

const (
	CallStatusRinging  CallStatus = "ringing"
	CallStatusActive   CallStatus = "active"
	CallStatusEnded    CallStatus = "ended"
	CallStatusDeclined CallStatus = "declined"
	CallStatusMissed   CallStatus = "missed"
)

// Terminal reports whether no further transition may leave s.
func (s CallStatus) Terminal() bool {
	switch s {
	case CallStatusEnded, CallStatusDeclined, CallStatusMissed:
		return true
	default:
		return false
	}
}

// Open statuses are the ones a participant pair may hold at most one of.
var OpenStatuses = []CallStatus{CallStatusRinging, CallStatusActive}

// CallRecord is the durable document both participants observe.
// Identity fields and Type never change after creation.
type CallRecord struct {
	ID           CallID     `json:"id"`
	CallerID     UserID     `json:"caller_id"`
	CallerName   string     `json:"caller_name"`
	ReceiverID   UserID     `json:"receiver_id"`
	ReceiverName string     `json:"receiver_name"`
	Type         CallType   `json:"type"`
	Status       CallStatus `json:"status"`
	StartTime    time.Time  `json:"start_time"`
	EndTime      *time.Time `json:"end_time,omitempty"`
	// DurationSeconds is whole seconds between StartTime and EndTime.
	DurationSeconds *int64 `json:"duration,omitempty"`
}

// Peer returns the other participant from self's point of view.
func (r CallRecord) Peer(self UserID) UserID {
	if r.CallerID == self {
		return r.ReceiverID
	}
	return r.CallerID
}

func (r CallRecord) Involves(a, b UserID) bool {
	return (r.CallerID == a && r.ReceiverID == b) || (r.CallerID == b && r.ReceiverID == a)
}

// RecordUpdate is a partial write guarded by the statuses the record must
// currently hold. An empty From means unconditional.
type RecordUpdate struct {
	From            []CallStatus
	Status          CallStatus
	StartTime       *time.Time
	EndTime         *time.Time
	DurationSeconds *int64
}

// Apply mutates r in place. It does not check the guard.
func (u RecordUpdate) Apply(r *CallRecord) {
	if u.Status != "" {
		r.Status = u.Status
	}
	if u.StartTime != nil {
		r.StartTime = *u.StartTime
	}
	if u.EndTime != nil {
		t := *u.EndTime
		r.EndTime = &t
	}
	if u.DurationSeconds != nil {
		d := *u.DurationSeconds
		r.DurationSeconds = &d
	}
}

func (u RecordUpdate) Allows(current CallStatus) bool {
	return len(u.From) == 0 || slices.Contains(u.From, current)
}

func Accepted(now time.Time) RecordUpdate {
	return RecordUpdate{
		From:      []CallStatus{CallStatusRinging},
		Status:    CallStatusActive,
		StartTime: &now,
	}
}

func Declined(now time.Time) RecordUpdate {
	return RecordUpdate{
		From:    []CallStatus{CallStatusRinging},
		Status:  CallStatusDeclined,
		EndTime: &now,
	}
}

func Missed(now time.Time) RecordUpdate {
	zero := int64(0)
	return RecordUpdate{
		From:            []CallStatus{CallStatusRinging},
		Status:          CallStatusMissed,
		EndTime:         &now,
		DurationSeconds: &zero,
	}
}

// Ended computes the duration from rec, which should be read from the store
// just before. A call that never left ringing lasted zero seconds.
func Ended(rec CallRecord, now time.Time) RecordUpdate {
	var secs int64
	if rec.Status == CallStatusActive && !rec.StartTime.IsZero() {
		secs = int64(now.Sub(rec.StartTime) / time.Second)
		if secs < 0 {
			secs = 0
		}
	}
	return RecordUpdate{
		From:            OpenStatuses,
		Status:          CallStatusEnded,
		EndTime:         &now,
		DurationSeconds: &secs,
	}
}
