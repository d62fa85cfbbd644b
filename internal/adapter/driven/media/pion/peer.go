package pion

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/Wyydra/yacall/internal/core/domain"
	"github.com/Wyydra/yacall/internal/core/port"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

// peer implements port.PeerConnection over one pion PeerConnection.
type peer struct {
	pc   *webrtc.PeerConnection
	done chan struct{}

	mu       sync.Mutex
	onStream func(port.RemoteStream)
	remotes  map[string]*remoteStream
	closed   bool
}

func newPeer(pc *webrtc.PeerConnection) *peer {
	p := &peer{
		pc:      pc,
		done:    make(chan struct{}),
		remotes: make(map[string]*remoteStream),
	}
	pc.OnTrack(p.handleTrack)
	return p
}

func (p *peer) AddLocalStream(s port.LocalStream) error {
	ls, ok := s.(*localStream)
	if !ok {
		return fmt.Errorf("unsupported local stream %T", s)
	}
	for _, mt := range ls.tracks() {
		sender, err := p.pc.AddTrack(mt.track)
		if err != nil {
			return fmt.Errorf("add %s track: %w", mt.track.Kind(), err)
		}
		ls.attach(mt, sender)
		go readRTCP(sender)
	}
	return nil
}

// readRTCP consumes incoming RTCP so NACK and REMB reach the interceptors.
func readRTCP(sender *webrtc.RTPSender) {
	buf := make([]byte, 1500)
	for {
		if _, _, err := sender.Read(buf); err != nil {
			return
		}
	}
}

func (p *peer) CreateOffer(ctx context.Context) (domain.SessionDescription, error) {
	if err := ctx.Err(); err != nil {
		return domain.SessionDescription{}, err
	}
	offer, err := p.pc.CreateOffer(nil)
	if err != nil {
		return domain.SessionDescription{}, err
	}
	return fromPion(offer), nil
}

func (p *peer) CreateAnswer(ctx context.Context) (domain.SessionDescription, error) {
	if err := ctx.Err(); err != nil {
		return domain.SessionDescription{}, err
	}
	answer, err := p.pc.CreateAnswer(nil)
	if err != nil {
		return domain.SessionDescription{}, err
	}
	return fromPion(answer), nil
}

func (p *peer) SetLocalDescription(d domain.SessionDescription) error {
	return p.pc.SetLocalDescription(toPion(d))
}

func (p *peer) SetRemoteDescription(d domain.SessionDescription) error {
	return p.pc.SetRemoteDescription(toPion(d))
}

func (p *peer) AddICECandidate(c domain.Candidate) error {
	return p.pc.AddICECandidate(webrtc.ICECandidateInit{
		Candidate:        c.Candidate,
		SDPMid:           c.SDPMid,
		SDPMLineIndex:    c.SDPMLineIndex,
		UsernameFragment: c.UsernameFragment,
	})
}

func (p *peer) OnICECandidate(fn func(domain.Candidate)) {
	p.pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		// nil marks the end of gathering.
		if c == nil {
			return
		}
		init := c.ToJSON()
		fn(domain.Candidate{
			Candidate:        init.Candidate,
			SDPMid:           init.SDPMid,
			SDPMLineIndex:    init.SDPMLineIndex,
			UsernameFragment: init.UsernameFragment,
		})
	})
}

func (p *peer) OnRemoteStream(fn func(port.RemoteStream)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onStream = fn
}

func (p *peer) OnConnectionStateChange(fn func(port.ConnectionState)) {
	p.pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		fn(port.ConnectionState(s.String()))
	})
}

func (p *peer) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.done)
	p.mu.Unlock()

	if err := p.pc.Close(); err != nil && !errors.Is(err, webrtc.ErrConnectionClosed) {
		return err
	}
	return nil
}

func (p *peer) handleTrack(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
	kind := track.Kind().String()
	log.Debug().Str("kind", kind).Str("stream_id", track.StreamID()).Msg("Received remote track")

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	rs, seen := p.remotes[track.StreamID()]
	if !seen {
		rs = &remoteStream{id: track.StreamID()}
		p.remotes[rs.id] = rs
	}
	rs.addKind(kind)
	fn := p.onStream
	p.mu.Unlock()

	if track.Kind() == webrtc.RTPCodecTypeVideo {
		go requestKeyframes(p.pc, track.SSRC(), p.done)
	}
	if !seen && fn != nil {
		fn(rs)
	}
	rs.drain(track)
}

func toPion(d domain.SessionDescription) webrtc.SessionDescription {
	return webrtc.SessionDescription{Type: webrtc.NewSDPType(string(d.Type)), SDP: d.SDP}
}

func fromPion(d webrtc.SessionDescription) domain.SessionDescription {
	return domain.SessionDescription{Type: domain.SDPType(d.Type.String()), SDP: d.SDP}
}
