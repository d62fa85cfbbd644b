package service

import (
	"context"
	"sync"
	"time"

	"github.com/Wyydra/yacall/internal/core/domain"
	"github.com/Wyydra/yacall/internal/core/port"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type role string

const (
	roleCaller   role = "caller"
	roleReceiver role = "receiver"
)

type canceler interface {
	Cancel()
}

// peerSession is the exclusive owner of one peer connection and one local
// stream for a single call. Everything that can be touched from a callback
// is guarded by mu.
type peerSession struct {
	self domain.UserID
	peer domain.UserID
	role role

	// ctx scopes outbound publishes; cancelled on teardown.
	ctx    context.Context
	cancel context.CancelFunc
	logger zerolog.Logger

	mu        sync.Mutex
	callID    domain.CallID
	record    domain.CallRecord
	pc        port.PeerConnection
	local     port.LocalStream
	remote    port.RemoteStream
	queue     candidateQueue
	remoteSet bool
	seen      map[string]struct{}
	subs      []canceler
	ringTimer *time.Timer
	closed    bool
}

func newPeerSession(self, peer domain.UserID, r role, pc port.PeerConnection) *peerSession {
	ctx, cancel := context.WithCancel(context.Background())
	return &peerSession{
		self:   self,
		peer:   peer,
		role:   r,
		ctx:    ctx,
		cancel: cancel,
		logger: log.With().Str("peer_id", peer.String()).Str("role", string(r)).Logger(),
		pc:     pc,
		seen:   make(map[string]struct{}),
	}
}

func (s *peerSession) bind(rec domain.CallRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.callID = rec.ID
	s.record = rec
	s.logger = s.logger.With().Str("call_id", rec.ID.String()).Logger()
}

func (s *peerSession) log() *zerolog.Logger {
	s.mu.Lock()
	defer s.mu.Unlock()
	l := s.logger
	return &l
}

func (s *peerSession) id() domain.CallID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.callID
}

func (s *peerSession) snapshot() domain.CallRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.record
}

func (s *peerSession) setRecord(rec domain.CallRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record = rec
}

func (s *peerSession) setLocal(ls port.LocalStream) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.local = ls
}

func (s *peerSession) streams() (port.LocalStream, port.RemoteStream) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.local, s.remote
}

// setRemote records the remote stream. Returns false once torn down.
func (s *peerSession) setRemote(rs port.RemoteStream) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.remote = rs
	return true
}

// track adopts a subscription so teardown cancels it. A subscription adopted
// after teardown is cancelled on the spot.
func (s *peerSession) track(sub canceler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		sub.Cancel()
		return
	}
	s.subs = append(s.subs, sub)
}

func (s *peerSession) armRingTimer(d time.Duration, fn func()) {
	if d <= 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.ringTimer = time.AfterFunc(d, fn)
}

func (s *peerSession) answered() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.remoteSet
}

func (s *peerSession) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// setRemoteDescription applies d at most once per session and then replays
// every queued candidate in arrival order. applied is false when a remote
// description already exists or the session is gone.
func (s *peerSession) setRemoteDescription(d domain.SessionDescription) (applied bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.remoteSet {
		return false, nil
	}
	if err := s.pc.SetRemoteDescription(d); err != nil {
		return false, err
	}
	s.remoteSet = true
	if s.ringTimer != nil {
		s.ringTimer.Stop()
	}

	queued := s.queue.flush()
	for _, c := range queued {
		s.applyCandidate(c)
	}
	if len(queued) > 0 {
		s.logger.Debug().Int("count", len(queued)).Msg("Flushed queued candidates")
	}
	return true, nil
}

// addRemoteCandidate handles one entry of the candidates collection. Entries
// are keyed, so re-delivered snapshots are no-ops.
func (s *peerSession) addRemoteCandidate(key string, raw []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	if _, dup := s.seen[key]; dup {
		return
	}
	s.seen[key] = struct{}{}

	sig, err := domain.DecodeCandidate(raw)
	if err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("Discarding malformed candidate")
		return
	}
	if sig.From != s.peer {
		s.logger.Debug().Str("from", sig.From.String()).Msg("Ignoring candidate from stale sender")
		return
	}
	if !s.remoteSet && s.queue.hold(sig.Candidate) {
		return
	}
	s.applyCandidate(sig.Candidate)
}

// must hold s.mu
func (s *peerSession) applyCandidate(c domain.Candidate) {
	if err := s.pc.AddICECandidate(c); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to add ICE candidate")
	}
}

// teardown releases everything the session owns. Only the first call does
// work; it reports whether this call was it.
func (s *peerSession) teardown() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.closed = true

	if s.ringTimer != nil {
		s.ringTimer.Stop()
	}
	for _, sub := range s.subs {
		sub.Cancel()
	}
	s.subs = nil
	s.cancel()

	if s.local != nil {
		s.local.Stop()
	}
	if s.pc != nil {
		if err := s.pc.Close(); err != nil {
			s.logger.Warn().Err(err).Msg("Error closing peer connection")
		}
	}
	s.remote = nil
	s.queue = candidateQueue{flushed: true}
	return true
}
