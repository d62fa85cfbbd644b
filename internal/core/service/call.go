package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Wyydra/yacall/internal/core/domain"
	"github.com/Wyydra/yacall/internal/core/port"
	"github.com/rs/zerolog/log"
)

const (
	DefaultRingTimeout = 30 * time.Second

	// asyncWriteTimeout bounds store writes issued from subscription callbacks and timers.
	asyncWriteTimeout = 10 * time.Second
)

type Option func(*CallService)

// WithClock replaces time.Now, for deterministic durations in tests.
func WithClock(clock func() time.Time) Option {
	return func(s *CallService) { s.clock = clock }
}

// WithRingTimeout sets how long an unanswered call rings before it is marked
// missed. Zero disables the timeout.
func WithRingTimeout(d time.Duration) Option {
	return func(s *CallService) { s.ringTimeout = d }
}

func WithGateway(g port.RealTimeGateway) Option {
	return func(s *CallService) { s.state.gateway = g }
}

type incomingCall struct {
	record domain.CallRecord
	watch  port.Subscription[domain.RecordChange]
}

// CallService drives the call lifecycle for one local user. Lifecycle
// operations are serialised by mu; callbacks re-check session identity after
// taking it and drop anything that belongs to a session that is gone.
type CallService struct {
	self        domain.User
	store       port.CallRecordStore
	sig         signaler
	media       port.MediaEngine
	clock       func() time.Time
	ringTimeout time.Duration

	state stateHub

	mu       sync.Mutex
	ctx      context.Context
	stop     context.CancelFunc
	session  *peerSession
	incoming *incomingCall
	seen     map[domain.CallID]struct{}
	finished map[domain.CallID]struct{}
	feed     port.Subscription[domain.RecordChange]
}

func NewCallService(self domain.User, store port.CallRecordStore, channel port.SignalingChannel, media port.MediaEngine, opts ...Option) *CallService {
	s := &CallService{
		self:        self,
		store:       store,
		sig:         signaler{ch: channel},
		media:       media,
		clock:       time.Now,
		ringTimeout: DefaultRingTimeout,
		seen:        make(map[domain.CallID]struct{}),
		finished:    make(map[domain.CallID]struct{}),
	}
	for _, o := range opts {
		o(s)
	}
	s.ctx, s.stop = context.WithCancel(context.Background())
	return s
}

// Start subscribes to calls addressed to the local user.
func (s *CallService) Start(ctx context.Context) error {
	sub, err := s.store.Subscribe(ctx, domain.RingingFor(s.self.ID))
	if err != nil {
		return fmt.Errorf("subscribe incoming calls: %w", err)
	}
	s.mu.Lock()
	s.feed = sub
	s.mu.Unlock()

	consume(sub, s.onIncomingChange)
	log.Info().Str("user_id", s.self.ID.String()).Msg("Listening for incoming calls")
	return nil
}

// Close ends any call in progress and stops listening.
func (s *CallService) Close(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.feed != nil {
		s.feed.Cancel()
		s.feed = nil
	}
	s.clearIncomingLocked()
	if sess := s.session; sess != nil {
		if err := s.endLocked(ctx, sess); err != nil {
			log.Warn().Err(err).Msg("Failed to end call on shutdown")
			s.releaseLocked(ctx, sess)
		}
	}
	s.stop()
}

func (s *CallService) State() port.CallState {
	return s.state.get()
}

// OnStateChange registers fn for every state change. fn must not block.
func (s *CallService) OnStateChange(fn func(port.CallState)) {
	s.state.subscribe(fn)
}

// InitiateCall rings receiverID and returns the new call's id.
func (s *CallService) InitiateCall(ctx context.Context, receiverID domain.UserID, receiverName string, t domain.CallType) (domain.CallID, error) {
	if receiverID == "" || receiverID == s.self.ID || !t.Valid() {
		return "", domain.ErrInvalidArgument
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.session != nil {
		return "", domain.ErrSessionActive
	}
	// Settle glare before any slot is touched: the loser must not clear the
	// offer it is about to accept.
	if err := s.resolveGlareLocked(ctx, receiverID); err != nil {
		return "", err
	}

	local, err := s.media.Acquire(ctx, t)
	if err != nil {
		return "", err
	}
	pc, err := s.media.NewPeerConnection()
	if err != nil {
		local.Stop()
		return "", fmt.Errorf("create peer connection: %w", err)
	}

	sess := newPeerSession(s.self.ID, receiverID, roleCaller, pc)
	sess.setLocal(local)
	s.wire(sess)

	if err := pc.AddLocalStream(local); err != nil {
		sess.teardown()
		return "", fmt.Errorf("%w: attach local stream: %v", domain.ErrNegotiation, err)
	}
	// Stale slots from a previous call would otherwise be consumed by this one.
	if err := s.sig.clear(ctx, receiverID); err != nil {
		sess.teardown()
		return "", err
	}
	if err := s.sig.clearOwn(ctx, s.self.ID, s.offerPending(ctx)); err != nil {
		sess.teardown()
		return "", err
	}

	offer, err := pc.CreateOffer(ctx)
	if err == nil {
		err = pc.SetLocalDescription(offer)
	}
	if err != nil {
		sess.teardown()
		return "", fmt.Errorf("%w: %v", domain.ErrNegotiation, err)
	}
	// The offer goes out before the record so an Accept never finds an empty
	// slot. It names the call id the record will be created under.
	id := domain.NewCallID()
	if err := s.sig.publishOffer(ctx, receiverID, s.self.ID, id, offer); err != nil {
		sess.teardown()
		return "", err
	}

	rec := domain.CallRecord{
		ID:           id,
		CallerID:     s.self.ID,
		CallerName:   s.self.Name,
		ReceiverID:   receiverID,
		ReceiverName: receiverName,
		Type:         t,
		Status:       domain.CallStatusRinging,
		StartTime:    s.clock(),
	}
	if _, err := s.store.Create(ctx, rec); err != nil {
		sess.teardown()
		if cerr := s.sig.withdrawOffer(ctx, receiverID); cerr != nil {
			log.Warn().Err(cerr).Msg("Failed to withdraw offer")
		}
		return "", err
	}
	sess.bind(rec)

	answers, err := s.sig.watchAnswer(ctx, s.self.ID)
	if err != nil {
		return "", s.abortLocked(ctx, sess, err)
	}
	sess.track(answers)
	consume(answers, func(snap domain.Snapshot) { s.onAnswer(sess, snap) })

	if err := s.watchSession(ctx, sess); err != nil {
		return "", s.abortLocked(ctx, sess, err)
	}
	sess.armRingTimer(s.ringTimeout, func() { s.onRingTimeout(sess) })

	s.session = sess
	s.publishSession(sess)
	sess.log().Info().Str("type", string(t)).Msg("Call initiated")
	return id, nil
}

// AcceptCall answers the pending incoming call id. Accepting the call that
// is already live is a no-op.
func (s *CallService) AcceptCall(ctx context.Context, id domain.CallID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.session != nil && s.session.id() == id {
		return nil
	}
	if _, done := s.finished[id]; done {
		return domain.ErrCallNotRinging
	}
	inc := s.incoming
	if inc == nil || inc.record.ID != id {
		return domain.ErrNoIncomingCall
	}

	if prev := s.session; prev != nil {
		prev.log().Info().Msg("Superseded by accepted call")
		if err := s.endLocked(ctx, prev); err != nil {
			prev.log().Warn().Err(err).Msg("Failed to end superseded call")
			s.releaseLocked(ctx, prev)
		}
	}

	now := s.clock()
	if err := s.store.Update(ctx, id, domain.Accepted(now)); err != nil {
		if errors.Is(err, domain.ErrStaleTransition) || errors.Is(err, domain.ErrCallNotFound) {
			s.clearIncomingLocked()
			s.finished[id] = struct{}{}
			return fmt.Errorf("%w: %v", domain.ErrCallNotRinging, err)
		}
		return err
	}
	rec := inc.record
	domain.Accepted(now).Apply(&rec)
	s.clearIncomingLocked()

	pc, err := s.media.NewPeerConnection()
	if err != nil {
		s.finishRecordLocked(ctx, rec)
		return fmt.Errorf("create peer connection: %w", err)
	}
	sess := newPeerSession(s.self.ID, rec.CallerID, roleReceiver, pc)
	sess.bind(rec)
	s.wire(sess)

	if err := s.watchSession(ctx, sess); err != nil {
		return s.abortLocked(ctx, sess, err)
	}

	offer, ok, err := s.sig.takeOffer(ctx, s.self.ID)
	if err != nil {
		return s.abortLocked(ctx, sess, err)
	}
	if !ok {
		return s.abortLocked(ctx, sess, fmt.Errorf("%w: no offer published", domain.ErrNegotiation))
	}
	if offer.From != rec.CallerID || (offer.CallID != "" && offer.CallID != rec.ID) {
		return s.abortLocked(ctx, sess, fmt.Errorf("%w: offer for %s from %s, expected %s from %s",
			domain.ErrNegotiation, offer.CallID, offer.From, rec.ID, rec.CallerID))
	}
	if _, err := sess.setRemoteDescription(offer.Description); err != nil {
		return s.abortLocked(ctx, sess, fmt.Errorf("%w: %v", domain.ErrNegotiation, err))
	}

	local, err := s.media.Acquire(ctx, rec.Type)
	if err != nil {
		return s.abortLocked(ctx, sess, err)
	}
	sess.setLocal(local)
	if err := pc.AddLocalStream(local); err != nil {
		return s.abortLocked(ctx, sess, fmt.Errorf("%w: attach local stream: %v", domain.ErrNegotiation, err))
	}

	answer, err := pc.CreateAnswer(ctx)
	if err == nil {
		err = pc.SetLocalDescription(answer)
	}
	if err != nil {
		return s.abortLocked(ctx, sess, fmt.Errorf("%w: %v", domain.ErrNegotiation, err))
	}
	if err := s.sig.publishAnswer(ctx, rec.CallerID, s.self.ID, answer); err != nil {
		return s.abortLocked(ctx, sess, err)
	}

	s.session = sess
	s.publishSession(sess)
	sess.log().Info().Msg("Call accepted")
	return nil
}

// DeclineCall rejects the pending incoming call id. Declining twice is a no-op.
func (s *CallService) DeclineCall(ctx context.Context, id domain.CallID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.declineLocked(ctx, id)
}

// EndCall hangs up the live call id, or cancels it while it still rings.
// Without a live session for id it does nothing.
func (s *CallService) EndCall(ctx context.Context, id domain.CallID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess := s.session
	if sess == nil || sess.id() != id {
		return nil
	}
	return s.endLocked(ctx, sess)
}

// ToggleMute flips the local audio track. Returns true when muted.
func (s *CallService) ToggleMute() bool {
	ls := s.state.get().LocalStream
	if ls == nil {
		return false
	}
	muted := ls.ToggleAudio()
	log.Debug().Bool("muted", muted).Msg("Toggled audio")
	return muted
}

// ToggleVideo flips the local video track. Returns true when video is off.
func (s *CallService) ToggleVideo() bool {
	ls := s.state.get().LocalStream
	if ls == nil {
		return false
	}
	off := ls.ToggleVideo()
	log.Debug().Bool("video_off", off).Msg("Toggled video")
	return off
}

// wire registers peer connection callbacks. They only touch sess and the
// state hub, never s.mu, so they are safe on any pion goroutine.
func (s *CallService) wire(sess *peerSession) {
	sess.pc.OnICECandidate(func(c domain.Candidate) {
		if err := s.sig.publishCandidate(sess.ctx, sess.peer, sess.self, c); err != nil && sess.ctx.Err() == nil {
			sess.log().Warn().Err(err).Msg("Failed to publish ICE candidate")
		}
	})
	sess.pc.OnRemoteStream(func(rs port.RemoteStream) {
		if !sess.setRemote(rs) {
			return
		}
		sess.log().Info().Str("stream_id", rs.ID()).Msg("Remote stream received")
		s.state.update(func(st *port.CallState) {
			if st.ActiveCall != nil && st.ActiveCall.ID == sess.id() {
				st.RemoteStream = rs
			}
		})
	})
	sess.pc.OnConnectionStateChange(func(cs port.ConnectionState) {
		sess.log().Debug().Str("state", string(cs)).Msg("Connection state changed")
		if cs == port.ConnectionStateFailed {
			go s.onConnectionFailed(sess)
		}
	})
}

// watchSession follows the call record and the candidates addressed to us.
func (s *CallService) watchSession(ctx context.Context, sess *peerSession) error {
	candidates, err := s.sig.watchCandidates(ctx, s.self.ID)
	if err != nil {
		return err
	}
	sess.track(candidates)
	consume(candidates, func(snap domain.Snapshot) {
		for _, e := range snap.Children {
			sess.addRemoteCandidate(e.Key, e.Value)
		}
	})

	records, err := s.store.Subscribe(ctx, domain.ByID(sess.id()))
	if err != nil {
		return fmt.Errorf("watch call record: %w", err)
	}
	sess.track(records)
	consume(records, func(ch domain.RecordChange) { s.onRecordChange(sess, ch) })
	return nil
}

func (s *CallService) onAnswer(sess *peerSession, snap domain.Snapshot) {
	if snap.Value == nil || sess.isClosed() {
		return
	}
	l := sess.log()
	sig, err := domain.DecodeDescription(snap.Value, domain.SDPTypeAnswer)
	if err != nil {
		l.Warn().Err(err).Msg("Discarding malformed answer")
		return
	}
	if sig.From != sess.peer {
		l.Debug().Str("from", sig.From.String()).Msg("Ignoring answer from stale sender")
		return
	}
	applied, err := sess.setRemoteDescription(sig.Description)
	if err != nil {
		l.Error().Err(err).Msg("Failed to apply answer")
		go s.onConnectionFailed(sess)
		return
	}
	if !applied {
		return
	}
	l.Info().Msg("Answer applied")

	ctx, cancel := context.WithTimeout(s.ctx, asyncWriteTimeout)
	defer cancel()
	if err := s.sig.clearAnswer(ctx, s.self.ID); err != nil {
		l.Warn().Err(err).Msg("Failed to clear consumed answer")
	}
}

func (s *CallService) onRecordChange(sess *peerSession, ch domain.RecordChange) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session != sess {
		return
	}

	rec := ch.Record
	if ch.Kind == domain.ChangeRemoved || rec.Status.Terminal() {
		sess.log().Info().Str("status", string(rec.Status)).Msg("Call ended by peer")
		ctx, cancel := context.WithTimeout(s.ctx, asyncWriteTimeout)
		defer cancel()
		s.releaseLocked(ctx, sess)
		return
	}

	sess.setRecord(rec)
	s.state.update(func(st *port.CallState) {
		if st.ActiveCall != nil && st.ActiveCall.ID == rec.ID {
			st.ActiveCall = recordPtr(rec)
		}
	})
}

func (s *CallService) onRingTimeout(sess *peerSession) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session != sess || sess.answered() || sess.snapshot().Status != domain.CallStatusRinging {
		return
	}

	ctx, cancel := context.WithTimeout(s.ctx, asyncWriteTimeout)
	defer cancel()
	err := s.store.Update(ctx, sess.id(), domain.Missed(s.clock()))
	switch {
	case errors.Is(err, domain.ErrStaleTransition):
		// The receiver got there first; the record watch takes it from here.
		return
	case err != nil:
		sess.log().Error().Err(err).Msg("Failed to mark call missed")
		return
	}
	sess.log().Info().Msg("Call missed")
	s.releaseLocked(ctx, sess)
}

func (s *CallService) onConnectionFailed(sess *peerSession) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session != sess {
		return
	}
	sess.log().Warn().Msg("Peer connection failed, ending call")

	ctx, cancel := context.WithTimeout(s.ctx, asyncWriteTimeout)
	defer cancel()
	if err := s.endLocked(ctx, sess); err != nil {
		sess.log().Error().Err(err).Msg("Failed to end failed call")
	}
}

func (s *CallService) onIncomingChange(ch domain.RecordChange) {
	if ch.Kind != domain.ChangeAdded {
		return
	}
	rec := ch.Record

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, dup := s.seen[rec.ID]; dup {
		return
	}
	s.seen[rec.ID] = struct{}{}
	if _, done := s.finished[rec.ID]; done {
		return
	}
	l := log.With().Str("call_id", rec.ID.String()).Str("peer_id", rec.CallerID.String()).Logger()
	if s.staleRinging(rec) {
		l.Debug().Msg("Ignoring stale ringing call")
		return
	}

	ctx, cancel := context.WithTimeout(s.ctx, asyncWriteTimeout)
	defer cancel()

	if sess := s.session; sess != nil && sess.role == roleCaller && sess.peer == rec.CallerID && sess.snapshot().Status == domain.CallStatusRinging {
		if s.winsGlare(rec.CallerID) {
			l.Info().Msg("Glare: declining crossing call")
			if err := s.store.Update(ctx, rec.ID, domain.Declined(s.clock())); err != nil {
				l.Warn().Err(err).Msg("Glare: failed to decline crossing call")
			}
			s.finished[rec.ID] = struct{}{}
			return
		}
		l.Info().Msg("Glare: withdrawing our call")
		if err := s.endLocked(ctx, sess); err != nil {
			l.Warn().Err(err).Msg("Glare: failed to withdraw our call")
			s.releaseLocked(ctx, sess)
		}
	}

	s.clearIncomingLocked()
	watch, err := s.store.Subscribe(ctx, domain.ByID(rec.ID))
	if err != nil {
		l.Error().Err(err).Msg("Failed to watch incoming call")
		return
	}
	inc := &incomingCall{record: rec, watch: watch}
	s.incoming = inc
	consume(watch, func(ch domain.RecordChange) { s.onIncomingRecord(inc, ch) })

	s.state.update(func(st *port.CallState) { st.IncomingCall = recordPtr(rec) })
	l.Info().Str("type", string(rec.Type)).Msg("Incoming call")
}

// onIncomingRecord clears the notification once the caller gives up.
func (s *CallService) onIncomingRecord(inc *incomingCall, ch domain.RecordChange) {
	if ch.Kind != domain.ChangeRemoved && !ch.Record.Status.Terminal() {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.incoming != inc {
		return
	}
	log.Info().Str("call_id", inc.record.ID.String()).Str("status", string(ch.Record.Status)).Msg("Incoming call withdrawn")
	s.finished[inc.record.ID] = struct{}{}
	s.clearIncomingLocked()
}

func (s *CallService) declineLocked(ctx context.Context, id domain.CallID) error {
	if _, done := s.finished[id]; done {
		return nil
	}
	inc := s.incoming
	if inc == nil || inc.record.ID != id {
		return domain.ErrNoIncomingCall
	}
	err := s.store.Update(ctx, id, domain.Declined(s.clock()))
	if err != nil && !errors.Is(err, domain.ErrStaleTransition) {
		return err
	}
	s.finished[id] = struct{}{}
	s.clearIncomingLocked()
	log.Info().Str("call_id", id.String()).Msg("Call declined")
	return nil
}

// endLocked writes the terminal record and releases the session. A write
// failure leaves the session in place so the caller may retry.
func (s *CallService) endLocked(ctx context.Context, sess *peerSession) error {
	rec := s.currentRecord(ctx, sess)
	err := s.store.Update(ctx, rec.ID, domain.Ended(rec, s.clock()))
	if err != nil && !errors.Is(err, domain.ErrStaleTransition) {
		return err
	}
	s.releaseLocked(ctx, sess)
	sess.log().Info().Msg("Call ended")
	return nil
}

// releaseLocked tears the session down without touching the record.
func (s *CallService) releaseLocked(ctx context.Context, sess *peerSession) {
	if !sess.teardown() {
		return
	}
	if id := sess.id(); id != "" {
		s.finished[id] = struct{}{}
	}
	if err := s.sig.clearOwn(ctx, s.self.ID, s.offerPending(ctx)); err != nil {
		sess.log().Warn().Err(err).Msg("Failed to clear signaling state")
	}
	if s.session == sess {
		s.session = nil
		s.state.update(func(st *port.CallState) {
			st.ActiveCall = nil
			st.LocalStream = nil
			st.RemoteStream = nil
		})
	}
}

// currentRecord reads the session's record back from the store. The copy the
// session holds trails the record watch, so it may still say ringing after
// the peer accepted.
func (s *CallService) currentRecord(ctx context.Context, sess *peerSession) domain.CallRecord {
	rec := sess.snapshot()
	fresh, err := s.store.Get(ctx, rec.ID)
	if err != nil {
		sess.log().Warn().Err(err).Msg("Failed to re-read call record")
		return rec
	}
	sess.setRecord(fresh)
	return fresh
}

// resolveGlareLocked settles calls peer is already ringing us with. It asks
// the store directly since the incoming feed may not have delivered them yet.
// The loser gets ErrGlareLost; the winner declines the crossing calls.
func (s *CallService) resolveGlareLocked(ctx context.Context, peer domain.UserID) error {
	crossing, err := s.store.List(ctx, domain.RingingBetween(peer, s.self.ID))
	if err != nil {
		return fmt.Errorf("look up crossing calls: %w", err)
	}
	for _, rec := range crossing {
		if s.staleRinging(rec) {
			continue
		}
		if !s.winsGlare(peer) {
			return domain.ErrGlareLost
		}
		log.Info().Str("call_id", rec.ID.String()).Msg("Glare: declining crossing call")
		err := s.store.Update(ctx, rec.ID, domain.Declined(s.clock()))
		if err != nil && !errors.Is(err, domain.ErrStaleTransition) {
			log.Warn().Err(err).Msg("Glare: failed to decline crossing call")
		}
		s.finished[rec.ID] = struct{}{}
		if inc := s.incoming; inc != nil && inc.record.ID == rec.ID {
			s.clearIncomingLocked()
		}
	}
	return nil
}

// offerPending reports whether an offer in our slot may still be accepted:
// its call rings us, or its record has not been written yet. Must hold s.mu.
func (s *CallService) offerPending(ctx context.Context) func(domain.DescriptionSignal) bool {
	return func(offer domain.DescriptionSignal) bool {
		if offer.CallID == "" {
			return false
		}
		if _, done := s.finished[offer.CallID]; done {
			return false
		}
		rec, err := s.store.Get(ctx, offer.CallID)
		if errors.Is(err, domain.ErrCallNotFound) {
			return true
		}
		if err != nil {
			log.Warn().Err(err).Str("call_id", offer.CallID.String()).Msg("Failed to look up offered call")
			return true
		}
		return rec.Status == domain.CallStatusRinging && rec.ReceiverID == s.self.ID && !s.staleRinging(rec)
	}
}

// staleRinging reports a ringing record older than the ring timeout.
func (s *CallService) staleRinging(rec domain.CallRecord) bool {
	return s.ringTimeout > 0 && s.clock().Sub(rec.StartTime) > s.ringTimeout
}

// abortLocked undoes a half-built session and returns cause.
func (s *CallService) abortLocked(ctx context.Context, sess *peerSession, cause error) error {
	sess.log().Error().Err(cause).Msg("Call setup failed")
	if sess.id() != "" {
		s.finishRecordLocked(ctx, sess.snapshot())
	}
	s.releaseLocked(ctx, sess)
	return cause
}

// finishRecordLocked ends a record we cannot carry on with. Best effort.
func (s *CallService) finishRecordLocked(ctx context.Context, rec domain.CallRecord) {
	s.finished[rec.ID] = struct{}{}
	err := s.store.Update(ctx, rec.ID, domain.Ended(rec, s.clock()))
	if err != nil && !errors.Is(err, domain.ErrStaleTransition) {
		log.Warn().Err(err).Str("call_id", rec.ID.String()).Msg("Failed to end aborted call")
	}
}

func (s *CallService) clearIncomingLocked() {
	if s.incoming == nil {
		return
	}
	s.incoming.watch.Cancel()
	s.incoming = nil
	s.state.update(func(st *port.CallState) { st.IncomingCall = nil })
}

// publishSession exposes sess as the active call. Streams are read under the
// hub lock so a remote stream that lands concurrently is never lost.
func (s *CallService) publishSession(sess *peerSession) {
	s.state.update(func(st *port.CallState) {
		st.ActiveCall = recordPtr(sess.snapshot())
		st.LocalStream, st.RemoteStream = sess.streams()
	})
}

// winsGlare: when both sides ring each other, the lower user id keeps its call.
func (s *CallService) winsGlare(peer domain.UserID) bool {
	return s.self.ID < peer
}

func consume[T any](sub port.Subscription[T], fn func(T)) {
	go func() {
		for ev := range sub.Events() {
			fn(ev)
		}
	}()
}
