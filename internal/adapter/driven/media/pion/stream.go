package pion

import (
	"sync"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

// mediaTrack is one captured track and, once attached, the sender carrying it.
type mediaTrack struct {
	track   webrtc.TrackLocal
	sender  *webrtc.RTPSender
	enabled bool
}

// localStream implements port.LocalStream. Toggling swaps the sender's track
// for nil and back, so the transceiver and its m-line survive a mute.
type localStream struct {
	id    string
	mu    sync.Mutex
	audio *mediaTrack
	video *mediaTrack
	// release closes the capture devices.
	release func()
	stopped bool
}

func newLocalStream(tracks []webrtc.TrackLocal, release func()) *localStream {
	s := &localStream{id: uuid.NewString(), release: release}
	for _, t := range tracks {
		mt := &mediaTrack{track: t, enabled: true}
		switch t.Kind() {
		case webrtc.RTPCodecTypeAudio:
			s.audio = mt
		case webrtc.RTPCodecTypeVideo:
			s.video = mt
		}
	}
	return s
}

func (s *localStream) ID() string { return s.id }

func (s *localStream) tracks() []*mediaTrack {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*mediaTrack
	if s.audio != nil {
		out = append(out, s.audio)
	}
	if s.video != nil {
		out = append(out, s.video)
	}
	return out
}

func (s *localStream) attach(mt *mediaTrack, sender *webrtc.RTPSender) {
	s.mu.Lock()
	defer s.mu.Unlock()
	mt.sender = sender
	if !mt.enabled {
		s.replace(mt)
	}
}

func (s *localStream) ToggleAudio() bool {
	return !s.toggle(s.audio)
}

func (s *localStream) ToggleVideo() bool {
	return !s.toggle(s.video)
}

// toggle flips mt and reports whether it is now enabled. A missing track
// reports enabled so callers never show a phantom mute.
func (s *localStream) toggle(mt *mediaTrack) bool {
	if mt == nil {
		return true
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return mt.enabled
	}
	mt.enabled = !mt.enabled
	s.replace(mt)
	return mt.enabled
}

// must hold s.mu
func (s *localStream) replace(mt *mediaTrack) {
	if mt.sender == nil {
		return
	}
	var next webrtc.TrackLocal
	if mt.enabled {
		next = mt.track
	}
	if err := mt.sender.ReplaceTrack(next); err != nil {
		log.Warn().Err(err).Str("stream_id", s.id).Str("kind", mt.track.Kind().String()).Msg("Failed to replace track")
	}
}

func (s *localStream) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	s.stopped = true
	if s.release != nil {
		s.release()
	}
	log.Debug().Str("stream_id", s.id).Msg("Local media released")
}
