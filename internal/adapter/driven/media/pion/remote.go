package pion

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/pion/rtcp"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

const pliInterval = 3 * time.Second

// remoteStream implements port.RemoteStream for the tracks a peer sends
// under one stream id.
type remoteStream struct {
	id      string
	mu      sync.Mutex
	kinds   []string
	packets atomic.Uint64
}

func (r *remoteStream) ID() string { return r.id }

func (r *remoteStream) Kinds() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.kinds...)
}

// Packets counts RTP packets received across all tracks.
func (r *remoteStream) Packets() uint64 {
	return r.packets.Load()
}

func (r *remoteStream) addKind(k string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.kinds = append(r.kinds, k)
}

// drain reads track until it ends so the interceptors keep running.
func (r *remoteStream) drain(track *webrtc.TrackRemote) {
	buf := make([]byte, 1500)
	for {
		if _, _, err := track.Read(buf); err != nil {
			return
		}
		r.packets.Add(1)
	}
}

// requestKeyframes sends a PLI at once and then periodically until done closes.
func requestKeyframes(pc *webrtc.PeerConnection, ssrc webrtc.SSRC, done <-chan struct{}) {
	send := func() {
		if err := pc.WriteRTCP([]rtcp.Packet{
			&rtcp.PictureLossIndication{MediaSSRC: uint32(ssrc)},
		}); err != nil {
			log.Trace().Err(err).Msg("PLI not sent")
		}
	}
	send()

	ticker := time.NewTicker(pliInterval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			send()
		}
	}
}
