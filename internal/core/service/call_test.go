package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	repo "github.com/Wyydra/yacall/internal/adapter/driven/persistence/memory"
	sigmem "github.com/Wyydra/yacall/internal/adapter/driven/signaling/memory"
	"github.com/Wyydra/yacall/internal/core/domain"
	"github.com/Wyydra/yacall/internal/core/port"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	waitFor = 2 * time.Second
	tick    = 5 * time.Millisecond
)

type party struct {
	svc   *CallService
	media *fakeMedia
}

type harness struct {
	t       *testing.T
	repo    *repo.CallRepository
	store   *countingStore
	channel *sigmem.Channel
	clock   *fakeClock
	alice   party
	bob     party
}

var (
	aliceUser = domain.User{ID: "alice", Name: "Alice"}
	bobUser   = domain.User{ID: "bob", Name: "Bob"}
)

// newHarness returns alice and bob, both listening for calls.
func newHarness(t *testing.T, opts ...Option) *harness {
	t.Helper()
	h := newBareHarness(t)
	h.alice = h.newParty(aliceUser, h.store, opts...)
	h.bob = h.newParty(bobUser, h.store, opts...)
	h.start(h.alice)
	h.start(h.bob)
	return h
}

// newBareHarness returns the shared store and channel without any party.
func newBareHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		t:       t,
		repo:    repo.NewCallRepository(),
		channel: sigmem.NewChannel(),
		clock:   newFakeClock(),
	}
	h.store = &countingStore{CallRecordStore: h.repo}
	return h
}

func (h *harness) newParty(u domain.User, store port.CallRecordStore, opts ...Option) party {
	media := &fakeMedia{name: u.ID.String()}
	all := append([]Option{WithClock(h.clock.Now)}, opts...)
	svc := NewCallService(u, store, h.channel, media, all...)
	h.t.Cleanup(func() { svc.Close(context.Background()) })
	return party{svc: svc, media: media}
}

func (h *harness) start(p party) {
	h.t.Helper()
	require.NoError(h.t, p.svc.Start(context.Background()))
}

func (h *harness) record(id domain.CallID) domain.CallRecord {
	h.t.Helper()
	rec, err := h.repo.Get(context.Background(), id)
	require.NoError(h.t, err)
	return rec
}

func (h *harness) waitIncoming(p party, id domain.CallID) {
	h.t.Helper()
	require.Eventually(h.t, func() bool {
		inc := p.svc.State().IncomingCall
		return inc != nil && inc.ID == id
	}, waitFor, tick)
}

func (h *harness) waitStatus(id domain.CallID, want domain.CallStatus) {
	h.t.Helper()
	require.Eventually(h.t, func() bool {
		rec, err := h.repo.Get(context.Background(), id)
		return err == nil && rec.Status == want
	}, waitFor, tick)
}

func (h *harness) waitIdle(p party) {
	h.t.Helper()
	require.Eventually(h.t, func() bool {
		st := p.svc.State()
		return st.ActiveCall == nil && st.LocalStream == nil && st.RemoteStream == nil
	}, waitFor, tick)
}

func (h *harness) connect(t domain.CallType) domain.CallID {
	h.t.Helper()
	ctx := context.Background()
	id, err := h.alice.svc.InitiateCall(ctx, "bob", "Bob", t)
	require.NoError(h.t, err)
	h.waitIncoming(h.bob, id)
	require.NoError(h.t, h.bob.svc.AcceptCall(ctx, id))
	h.waitStatus(id, domain.CallStatusActive)
	return id
}

func connected(st port.CallState) bool {
	return st.ActiveCall != nil &&
		st.ActiveCall.Status == domain.CallStatusActive &&
		st.LocalStream != nil &&
		st.RemoteStream != nil
}

func TestInitiateCall_OneRingingRecordAndOffer(t *testing.T) {
	h := newHarness(t)

	id, err := h.alice.svc.InitiateCall(context.Background(), "bob", "Bob", domain.CallTypeVoice)
	require.NoError(t, err)

	recs := h.repo.Records()
	require.Len(t, recs, 1)
	assert.Equal(t, id, recs[0].ID)
	assert.Equal(t, domain.CallStatusRinging, recs[0].Status)
	assert.Equal(t, domain.UserID("alice"), recs[0].CallerID)
	assert.Equal(t, "Alice", recs[0].CallerName)
	assert.Equal(t, "Bob", recs[0].ReceiverName)
	assert.Equal(t, 1, h.channel.Len("signaling/bob/offer"))

	st := h.alice.svc.State()
	require.NotNil(t, st.ActiveCall)
	assert.Equal(t, id, st.ActiveCall.ID)
	assert.NotNil(t, st.LocalStream)
	assert.Nil(t, st.RemoteStream)

	h.waitIncoming(h.bob, id)
}

func TestInitiateCall_RejectsBadArguments(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.alice.svc.InitiateCall(ctx, "", "", domain.CallTypeVoice)
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
	_, err = h.alice.svc.InitiateCall(ctx, "alice", "", domain.CallTypeVoice)
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
	_, err = h.alice.svc.InitiateCall(ctx, "bob", "", domain.CallType("hologram"))
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
	assert.Empty(t, h.repo.Records())
}

func TestInitiateCall_SessionActive(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.alice.svc.InitiateCall(ctx, "bob", "Bob", domain.CallTypeVoice)
	require.NoError(t, err)
	_, err = h.alice.svc.InitiateCall(ctx, "bob", "Bob", domain.CallTypeVoice)
	assert.ErrorIs(t, err, domain.ErrSessionActive)
	assert.Len(t, h.repo.Records(), 1)
	assert.Len(t, h.alice.media.PCs(), 1)
}

func TestInitiateCall_MediaUnavailableLeavesNoTrace(t *testing.T) {
	h := newHarness(t)
	h.alice.media.failAcquire = true

	_, err := h.alice.svc.InitiateCall(context.Background(), "bob", "Bob", domain.CallTypeVideo)
	require.ErrorIs(t, err, domain.ErrMediaUnavailable)

	assert.Empty(t, h.repo.Records())
	assert.Zero(t, h.channel.Len("signaling/bob"))
	assert.Empty(t, h.alice.media.PCs())
	assert.Nil(t, h.alice.svc.State().ActiveCall)
}

func TestRoundTrip_Video(t *testing.T) {
	h := newHarness(t)
	id := h.connect(domain.CallTypeVideo)

	require.Eventually(t, func() bool { return connected(h.alice.svc.State()) }, waitFor, tick)
	require.Eventually(t, func() bool { return connected(h.bob.svc.State()) }, waitFor, tick)
	assert.Nil(t, h.bob.svc.State().IncomingCall)

	rec := h.record(id)
	assert.Equal(t, domain.CallStatusActive, rec.Status)
	assert.Equal(t, domain.CallTypeVideo, rec.Type)

	// Each side applies both of the other's candidates once, in order, and
	// never before its remote description.
	alicePC := h.alice.media.PCs()[0]
	bobPC := h.bob.media.PCs()[0]
	require.Eventually(t, func() bool { return len(alicePC.Applied()) == 2 && len(bobPC.Applied()) == 2 }, waitFor, tick)
	assert.Equal(t, []string{"candidate:bob-0-0", "candidate:bob-0-1"}, alicePC.Applied())
	assert.Equal(t, []string{"candidate:alice-0-0", "candidate:alice-0-1"}, bobPC.Applied())
	assert.Zero(t, alicePC.Early())
	assert.Zero(t, bobPC.Early())

	// The consumed offer and answer slots are gone.
	require.Eventually(t, func() bool { return h.channel.Len("signaling/alice/answer") == 0 }, waitFor, tick)
	assert.Zero(t, h.channel.Len("signaling/bob/offer"))
}

func TestEndCall_WhileRinging(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	id, err := h.alice.svc.InitiateCall(ctx, "bob", "Bob", domain.CallTypeVoice)
	require.NoError(t, err)
	h.waitIncoming(h.bob, id)

	h.clock.Advance(5 * time.Second)
	require.NoError(t, h.alice.svc.EndCall(ctx, id))

	rec := h.record(id)
	assert.Equal(t, domain.CallStatusEnded, rec.Status)
	require.NotNil(t, rec.DurationSeconds)
	assert.Zero(t, *rec.DurationSeconds)
	require.NotNil(t, rec.EndTime)

	assert.True(t, h.alice.media.PCs()[0].Closed())
	assert.True(t, h.alice.media.Streams()[0].Stopped())
	h.waitIdle(h.alice)

	require.Eventually(t, func() bool { return h.bob.svc.State().IncomingCall == nil }, waitFor, tick)
	assert.ErrorIs(t, h.bob.svc.AcceptCall(ctx, id), domain.ErrCallNotRinging)
	assert.Empty(t, h.bob.media.PCs())
}

func TestDeclineCall(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	id, err := h.alice.svc.InitiateCall(ctx, "bob", "Bob", domain.CallTypeVideo)
	require.NoError(t, err)
	h.waitIncoming(h.bob, id)

	require.NoError(t, h.bob.svc.DeclineCall(ctx, id))
	assert.Equal(t, domain.CallStatusDeclined, h.record(id).Status)
	assert.Nil(t, h.bob.svc.State().IncomingCall)
	assert.Empty(t, h.bob.media.Streams())
	assert.Empty(t, h.bob.media.PCs())

	h.waitIdle(h.alice)
	assert.True(t, h.alice.media.PCs()[0].Closed())
	assert.True(t, h.alice.media.Streams()[0].Stopped())
}

func TestEndCall_DurationAndTeardown(t *testing.T) {
	h := newHarness(t)
	id := h.connect(domain.CallTypeVideo)
	require.Eventually(t, func() bool { return connected(h.alice.svc.State()) }, waitFor, tick)

	h.clock.Advance(7 * time.Second)
	require.NoError(t, h.alice.svc.EndCall(context.Background(), id))

	rec := h.record(id)
	assert.Equal(t, domain.CallStatusEnded, rec.Status)
	require.NotNil(t, rec.DurationSeconds)
	assert.Equal(t, int64(7), *rec.DurationSeconds)

	h.waitIdle(h.alice)
	h.waitIdle(h.bob)
	for _, p := range []party{h.alice, h.bob} {
		for _, pc := range p.media.PCs() {
			assert.True(t, pc.Closed(), pc.name)
		}
		for _, s := range p.media.Streams() {
			assert.True(t, s.Stopped(), s.id)
		}
	}
	require.Eventually(t, func() bool { return h.channel.Len("signaling/alice") == 0 }, waitFor, tick)
	require.Eventually(t, func() bool { return h.channel.Len("signaling/bob") == 0 }, waitFor, tick)
}

func TestEndCall_Idempotent(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	id := h.connect(domain.CallTypeVoice)

	require.NoError(t, h.bob.svc.EndCall(ctx, id))
	writes := h.store.writes()

	require.NoError(t, h.bob.svc.EndCall(ctx, id))
	require.NoError(t, h.bob.svc.EndCall(ctx, "unknown"))
	assert.Equal(t, writes, h.store.writes())
	assert.Len(t, h.bob.media.PCs(), 1)
}

func TestDeclineCall_Idempotent(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	id, err := h.alice.svc.InitiateCall(ctx, "bob", "Bob", domain.CallTypeVoice)
	require.NoError(t, err)
	h.waitIncoming(h.bob, id)

	require.NoError(t, h.bob.svc.DeclineCall(ctx, id))
	writes := h.store.writes()
	require.NoError(t, h.bob.svc.DeclineCall(ctx, id))
	assert.Equal(t, writes, h.store.writes())

	assert.ErrorIs(t, h.bob.svc.DeclineCall(ctx, "unknown"), domain.ErrNoIncomingCall)
}

func TestAcceptCall_Duplicate(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	id, err := h.alice.svc.InitiateCall(ctx, "bob", "Bob", domain.CallTypeVideo)
	require.NoError(t, err)
	h.waitIncoming(h.bob, id)

	require.NoError(t, h.bob.svc.AcceptCall(ctx, id))
	require.NoError(t, h.bob.svc.AcceptCall(ctx, id))
	assert.Len(t, h.bob.media.PCs(), 1)
	assert.Len(t, h.bob.media.Streams(), 1)
}

func TestAcceptCall_Unknown(t *testing.T) {
	h := newHarness(t)
	assert.ErrorIs(t, h.bob.svc.AcceptCall(context.Background(), "nope"), domain.ErrNoIncomingCall)
}

func TestAcceptCall_MediaUnavailableEndsCall(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.bob.media.failAcquire = true

	id, err := h.alice.svc.InitiateCall(ctx, "bob", "Bob", domain.CallTypeVideo)
	require.NoError(t, err)
	h.waitIncoming(h.bob, id)

	require.ErrorIs(t, h.bob.svc.AcceptCall(ctx, id), domain.ErrMediaUnavailable)
	assert.Equal(t, domain.CallStatusEnded, h.record(id).Status)
	assert.True(t, h.bob.media.PCs()[0].Closed())
	assert.Nil(t, h.bob.svc.State().ActiveCall)
	h.waitIdle(h.alice)
}

func TestRemoteEnd_TearsDownCaller(t *testing.T) {
	h := newHarness(t)
	id := h.connect(domain.CallTypeVoice)
	require.Eventually(t, func() bool { return connected(h.alice.svc.State()) }, waitFor, tick)

	require.NoError(t, h.bob.svc.EndCall(context.Background(), id))

	h.waitIdle(h.alice)
	assert.True(t, h.alice.media.PCs()[0].Closed())
	assert.True(t, h.alice.media.Streams()[0].Stopped())
	require.Eventually(t, func() bool { return h.channel.Len("signaling/alice") == 0 }, waitFor, tick)
}

func TestRingTimeout_MarksMissed(t *testing.T) {
	h := newHarness(t, WithRingTimeout(50*time.Millisecond))

	id, err := h.alice.svc.InitiateCall(context.Background(), "bob", "Bob", domain.CallTypeVoice)
	require.NoError(t, err)

	h.waitStatus(id, domain.CallStatusMissed)
	rec := h.record(id)
	require.NotNil(t, rec.DurationSeconds)
	assert.Zero(t, *rec.DurationSeconds)

	h.waitIdle(h.alice)
	require.Eventually(t, func() bool { return h.bob.svc.State().IncomingCall == nil }, waitFor, tick)
}

func TestRingTimeout_StopsOnAnswer(t *testing.T) {
	h := newHarness(t, WithRingTimeout(200*time.Millisecond))
	id := h.connect(domain.CallTypeVoice)
	require.Eventually(t, func() bool { return connected(h.alice.svc.State()) }, waitFor, tick)

	time.Sleep(300 * time.Millisecond)
	assert.Equal(t, domain.CallStatusActive, h.record(id).Status)
}

func TestIncoming_IgnoresStaleRecords(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	old := domain.CallRecord{
		CallerID:   "carol",
		ReceiverID: "bob",
		Type:       domain.CallTypeVoice,
		Status:     domain.CallStatusRinging,
		StartTime:  h.clock.Now().Add(-time.Hour),
	}
	_, err := h.repo.Create(ctx, old)
	require.NoError(t, err)

	time.Sleep(50 * time.Millisecond)
	assert.Nil(t, h.bob.svc.State().IncomingCall)
}

func TestGlare_LoserGetsError(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	id, err := h.alice.svc.InitiateCall(ctx, "bob", "Bob", domain.CallTypeVoice)
	require.NoError(t, err)
	h.waitIncoming(h.bob, id)

	_, err = h.bob.svc.InitiateCall(ctx, "alice", "Alice", domain.CallTypeVoice)
	assert.ErrorIs(t, err, domain.ErrGlareLost)
	assert.Len(t, h.repo.Records(), 1)
	assert.NotNil(t, h.bob.svc.State().IncomingCall)
}

func TestGlare_WinnerDeclinesCrossingCall(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	bobCall, err := h.bob.svc.InitiateCall(ctx, "alice", "Alice", domain.CallTypeVoice)
	require.NoError(t, err)
	h.waitIncoming(h.alice, bobCall)

	aliceCall, err := h.alice.svc.InitiateCall(ctx, "bob", "Bob", domain.CallTypeVoice)
	require.NoError(t, err)

	assert.Equal(t, domain.CallStatusDeclined, h.record(bobCall).Status)
	assert.Nil(t, h.alice.svc.State().IncomingCall)
	h.waitIdle(h.bob)
	h.waitIncoming(h.bob, aliceCall)
}

func TestConnectionFailure_EndsCall(t *testing.T) {
	h := newHarness(t)
	id := h.connect(domain.CallTypeVoice)
	require.Eventually(t, func() bool { return connected(h.alice.svc.State()) }, waitFor, tick)

	h.alice.media.PCs()[0].fireState(port.ConnectionStateFailed)

	h.waitStatus(id, domain.CallStatusEnded)
	h.waitIdle(h.alice)
	h.waitIdle(h.bob)
}

func TestToggle(t *testing.T) {
	h := newHarness(t)
	assert.False(t, h.alice.svc.ToggleMute())
	assert.False(t, h.alice.svc.ToggleVideo())

	h.connect(domain.CallTypeVideo)
	assert.True(t, h.alice.svc.ToggleMute())
	assert.False(t, h.alice.svc.ToggleMute())
	assert.True(t, h.alice.svc.ToggleVideo())
}

func TestOnStateChange(t *testing.T) {
	h := newHarness(t)
	seen := make(chan port.CallState, 64)
	h.bob.svc.OnStateChange(func(st port.CallState) {
		select {
		case seen <- st:
		default:
		}
	})

	id, err := h.alice.svc.InitiateCall(context.Background(), "bob", "Bob", domain.CallTypeVoice)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		for {
			select {
			case st := <-seen:
				if st.IncomingCall != nil && st.IncomingCall.ID == id {
					return true
				}
			default:
				return false
			}
		}
	}, waitFor, tick)
}

func TestClose_EndsActiveCall(t *testing.T) {
	h := newHarness(t)
	id := h.connect(domain.CallTypeVoice)

	h.alice.svc.Close(context.Background())
	h.waitStatus(id, domain.CallStatusEnded)
	h.waitIdle(h.bob)
}

func TestGlare_CrossingInitiates(t *testing.T) {
	h := newBareHarness(t)
	h.alice = h.newParty(aliceUser, h.store)
	h.bob = h.newParty(bobUser, h.store)
	h.start(h.alice)
	ctx := context.Background()

	aliceCall, err := h.alice.svc.InitiateCall(ctx, "bob", "Bob", domain.CallTypeVideo)
	require.NoError(t, err)

	// Bob dials before his incoming feed has delivered alice's call.
	_, err = h.bob.svc.InitiateCall(ctx, "alice", "Alice", domain.CallTypeVoice)
	require.ErrorIs(t, err, domain.ErrGlareLost)
	assert.Equal(t, 1, h.channel.Len("signaling/bob/offer"))
	assert.Len(t, h.repo.Records(), 1)
	assert.Empty(t, h.bob.media.PCs())

	h.start(h.bob)
	h.waitIncoming(h.bob, aliceCall)
	require.NoError(t, h.bob.svc.AcceptCall(ctx, aliceCall))
	h.waitStatus(aliceCall, domain.CallStatusActive)
	require.Eventually(t, func() bool { return connected(h.alice.svc.State()) }, waitFor, tick)
	require.Eventually(t, func() bool { return connected(h.bob.svc.State()) }, waitFor, tick)
}

func TestGlare_WinnerDialsBeforeFeedDelivers(t *testing.T) {
	h := newBareHarness(t)
	h.alice = h.newParty(aliceUser, h.store)
	h.bob = h.newParty(bobUser, h.store)
	h.start(h.bob)
	ctx := context.Background()

	bobCall, err := h.bob.svc.InitiateCall(ctx, "alice", "Alice", domain.CallTypeVoice)
	require.NoError(t, err)

	aliceCall, err := h.alice.svc.InitiateCall(ctx, "bob", "Bob", domain.CallTypeVoice)
	require.NoError(t, err)
	assert.Equal(t, domain.CallStatusDeclined, h.record(bobCall).Status)

	// Bob's withdrawn session must leave alice's offer for him to accept.
	h.waitIncoming(h.bob, aliceCall)
	require.NoError(t, h.bob.svc.AcceptCall(ctx, aliceCall))
	h.waitStatus(aliceCall, domain.CallStatusActive)
	require.Eventually(t, func() bool { return connected(h.bob.svc.State()) }, waitFor, tick)
}

func TestEndCall_DurationWhileRecordWatchLags(t *testing.T) {
	h := newBareHarness(t)
	h.alice = h.newParty(aliceUser, laggingStore{CallRecordStore: h.store, delay: 300 * time.Millisecond})
	h.bob = h.newParty(bobUser, h.store)
	h.start(h.alice)
	h.start(h.bob)
	ctx := context.Background()

	id, err := h.alice.svc.InitiateCall(ctx, "bob", "Bob", domain.CallTypeVideo)
	require.NoError(t, err)
	h.waitIncoming(h.bob, id)

	h.clock.Advance(10 * time.Second)
	require.NoError(t, h.bob.svc.AcceptCall(ctx, id))
	require.Eventually(t, func() bool { return h.alice.svc.State().RemoteStream != nil }, waitFor, tick)

	h.clock.Advance(7 * time.Second)
	require.NoError(t, h.alice.svc.EndCall(ctx, id))

	rec := h.record(id)
	assert.Equal(t, domain.CallStatusEnded, rec.Status)
	require.NotNil(t, rec.DurationSeconds)
	assert.Equal(t, int64(7), *rec.DurationSeconds)
}

func TestEndCall_StoreFailureKeepsSession(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	id := h.connect(domain.CallTypeVoice)
	require.Eventually(t, func() bool { return connected(h.alice.svc.State()) }, waitFor, tick)

	h.store.failUpdates.Store(true)
	require.ErrorIs(t, h.alice.svc.EndCall(ctx, id), domain.ErrStoreWrite)

	st := h.alice.svc.State()
	require.NotNil(t, st.ActiveCall)
	assert.Equal(t, id, st.ActiveCall.ID)
	assert.False(t, h.alice.media.PCs()[0].Closed())
	assert.False(t, h.alice.media.Streams()[0].Stopped())
	assert.Equal(t, domain.CallStatusActive, h.record(id).Status)

	h.store.failUpdates.Store(false)
	require.NoError(t, h.alice.svc.EndCall(ctx, id))
	assert.Equal(t, domain.CallStatusEnded, h.record(id).Status)
	h.waitIdle(h.alice)
	h.waitIdle(h.bob)
}

func TestInitiateCall_CreateFailureWithdrawsOffer(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.store.failCreates.Store(true)
	_, err := h.alice.svc.InitiateCall(ctx, "bob", "Bob", domain.CallTypeVideo)
	require.ErrorIs(t, err, domain.ErrStoreWrite)

	assert.Empty(t, h.repo.Records())
	assert.Zero(t, h.channel.Len("signaling/bob/offer"))
	require.Len(t, h.alice.media.PCs(), 1)
	assert.True(t, h.alice.media.PCs()[0].Closed())
	assert.True(t, h.alice.media.Streams()[0].Stopped())
	assert.Nil(t, h.alice.svc.State().ActiveCall)

	h.store.failCreates.Store(false)
	id, err := h.alice.svc.InitiateCall(ctx, "bob", "Bob", domain.CallTypeVideo)
	require.NoError(t, err)
	h.waitIncoming(h.bob, id)
}

func TestAcceptCall_LosesToCallerEnd(t *testing.T) {
	h := newBareHarness(t)
	h.alice = h.newParty(aliceUser, h.store)
	// Bob's watch on the pending call trails the store, so he still shows
	// the call after alice has ended it.
	h.bob = h.newParty(bobUser, laggingStore{CallRecordStore: h.store, delay: 300 * time.Millisecond})
	h.start(h.alice)
	h.start(h.bob)
	ctx := context.Background()

	id, err := h.alice.svc.InitiateCall(ctx, "bob", "Bob", domain.CallTypeVoice)
	require.NoError(t, err)
	h.waitIncoming(h.bob, id)

	require.NoError(t, h.alice.svc.EndCall(ctx, id))
	require.NotNil(t, h.bob.svc.State().IncomingCall)

	require.ErrorIs(t, h.bob.svc.AcceptCall(ctx, id), domain.ErrCallNotRinging)
	assert.Empty(t, h.bob.media.PCs())
	assert.Empty(t, h.bob.media.Streams())
	assert.Nil(t, h.bob.svc.State().IncomingCall)
	assert.Nil(t, h.bob.svc.State().ActiveCall)
	assert.Equal(t, domain.CallStatusEnded, h.record(id).Status)
}

func TestEndCall_ClearsOwnSignalingSubtree(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	id := h.connect(domain.CallTypeVoice)
	require.Eventually(t, func() bool { return connected(h.bob.svc.State()) }, waitFor, tick)

	// A leftover offer from a caller that never created its record.
	stale, err := json.Marshal(domain.DescriptionSignal{
		Description: domain.SessionDescription{Type: domain.SDPTypeOffer, SDP: "old"},
		From:        "carol",
	})
	require.NoError(t, err)
	require.NoError(t, h.channel.Write(ctx, "signaling/bob/offer", stale))

	require.NoError(t, h.bob.svc.EndCall(ctx, id))
	assert.Zero(t, h.channel.Len("signaling/bob"))
}
