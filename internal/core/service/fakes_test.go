package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Wyydra/yacall/internal/adapter/driven/feed"
	"github.com/Wyydra/yacall/internal/core/domain"
	"github.com/Wyydra/yacall/internal/core/port"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fakeStream struct {
	id      string
	mu      sync.Mutex
	muted   bool
	videoOn bool
	stopped bool
}

func (s *fakeStream) ID() string { return s.id }

func (s *fakeStream) ToggleAudio() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.muted = !s.muted
	return s.muted
}

func (s *fakeStream) ToggleVideo() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.videoOn = !s.videoOn
	return !s.videoOn
}

func (s *fakeStream) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
}

func (s *fakeStream) Stopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}

type fakeRemote struct{ id string }

func (r fakeRemote) ID() string { return r.id }

// fakePC emits two local candidates after SetLocalDescription and a remote
// stream once both descriptions are set. Every callback fires on its own
// goroutine, as pion does.
type fakePC struct {
	name string

	mu          sync.Mutex
	local       []port.LocalStream
	localDesc   *domain.SessionDescription
	remoteDesc  *domain.SessionDescription
	applied     []string
	early       int
	closed      bool
	streamFired bool

	onCandidate func(domain.Candidate)
	onStream    func(port.RemoteStream)
	onState     func(port.ConnectionState)
}

func (p *fakePC) AddLocalStream(s port.LocalStream) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.local = append(p.local, s)
	return nil
}

func (p *fakePC) CreateOffer(context.Context) (domain.SessionDescription, error) {
	return domain.SessionDescription{Type: domain.SDPTypeOffer, SDP: "offer-" + p.name}, nil
}

func (p *fakePC) CreateAnswer(context.Context) (domain.SessionDescription, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.remoteDesc == nil {
		return domain.SessionDescription{}, errors.New("answer without offer")
	}
	return domain.SessionDescription{Type: domain.SDPTypeAnswer, SDP: "answer-" + p.name}, nil
}

func (p *fakePC) SetLocalDescription(d domain.SessionDescription) error {
	p.mu.Lock()
	p.localDesc = &d
	onCandidate := p.onCandidate
	p.mu.Unlock()

	if onCandidate != nil {
		go func() {
			for i := 0; i < 2; i++ {
				onCandidate(domain.Candidate{Candidate: fmt.Sprintf("candidate:%s-%d", p.name, i)})
			}
		}()
	}
	p.maybeFireStream()
	return nil
}

func (p *fakePC) SetRemoteDescription(d domain.SessionDescription) error {
	p.mu.Lock()
	if p.remoteDesc != nil {
		p.mu.Unlock()
		return errors.New("remote description already set")
	}
	p.remoteDesc = &d
	p.mu.Unlock()
	p.maybeFireStream()
	return nil
}

func (p *fakePC) maybeFireStream() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.streamFired || p.closed || p.localDesc == nil || p.remoteDesc == nil || p.onStream == nil {
		return
	}
	p.streamFired = true
	fn := p.onStream
	go fn(fakeRemote{id: "remote-of-" + p.name})
}

func (p *fakePC) AddICECandidate(c domain.Candidate) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.remoteDesc == nil {
		p.early++
		return errors.New("candidate before remote description")
	}
	p.applied = append(p.applied, c.Candidate)
	return nil
}

func (p *fakePC) OnICECandidate(fn func(domain.Candidate)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onCandidate = fn
}

func (p *fakePC) OnRemoteStream(fn func(port.RemoteStream)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onStream = fn
}

func (p *fakePC) OnConnectionStateChange(fn func(port.ConnectionState)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onState = fn
}

func (p *fakePC) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

func (p *fakePC) fireState(s port.ConnectionState) {
	p.mu.Lock()
	fn := p.onState
	p.mu.Unlock()
	if fn != nil {
		go fn(s)
	}
}

func (p *fakePC) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

func (p *fakePC) Applied() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.applied...)
}

func (p *fakePC) Early() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.early
}

type fakeMedia struct {
	name string

	mu          sync.Mutex
	failAcquire bool
	streams     []*fakeStream
	pcs         []*fakePC
}

func (m *fakeMedia) Acquire(ctx context.Context, t domain.CallType) (port.LocalStream, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failAcquire {
		return nil, fmt.Errorf("%w: permission denied", domain.ErrMediaUnavailable)
	}
	s := &fakeStream{id: fmt.Sprintf("%s-stream-%d", m.name, len(m.streams)), videoOn: t == domain.CallTypeVideo}
	m.streams = append(m.streams, s)
	return s, nil
}

func (m *fakeMedia) NewPeerConnection() (port.PeerConnection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	pc := &fakePC{name: fmt.Sprintf("%s-%d", m.name, len(m.pcs))}
	m.pcs = append(m.pcs, pc)
	return pc, nil
}

func (m *fakeMedia) PCs() []*fakePC {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*fakePC(nil), m.pcs...)
}

func (m *fakeMedia) Streams() []*fakeStream {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*fakeStream(nil), m.streams...)
}

// countingStore counts writes that reach the underlying store and can be
// told to fail them.
type countingStore struct {
	port.CallRecordStore
	creates atomic.Int64
	updates atomic.Int64

	failCreates atomic.Bool
	failUpdates atomic.Bool
}

func (s *countingStore) Create(ctx context.Context, rec domain.CallRecord) (domain.CallID, error) {
	if s.failCreates.Load() {
		return "", fmt.Errorf("%w: connection reset", domain.ErrStoreWrite)
	}
	s.creates.Add(1)
	return s.CallRecordStore.Create(ctx, rec)
}

func (s *countingStore) Update(ctx context.Context, id domain.CallID, upd domain.RecordUpdate) error {
	if s.failUpdates.Load() {
		return fmt.Errorf("%w: connection reset", domain.ErrStoreWrite)
	}
	s.updates.Add(1)
	return s.CallRecordStore.Update(ctx, id, upd)
}

func (s *countingStore) writes() int64 {
	return s.creates.Load() + s.updates.Load()
}

// laggingStore delivers the events of per-call watches late, the way a
// remote store's change feed trails its writes. Other watches are untouched.
type laggingStore struct {
	port.CallRecordStore
	delay time.Duration
}

func (s laggingStore) Subscribe(ctx context.Context, filter domain.RecordFilter) (port.Subscription[domain.RecordChange], error) {
	inner, err := s.CallRecordStore.Subscribe(ctx, filter)
	if err != nil || filter.ID == "" {
		return inner, err
	}
	f := feed.New[domain.RecordChange](inner.Cancel)
	go func() {
		for ev := range inner.Events() {
			select {
			case <-time.After(s.delay):
			case <-f.Done():
				return
			}
			if !f.Push(ev) {
				return
			}
		}
	}()
	return f, nil
}
