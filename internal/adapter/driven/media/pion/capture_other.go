//go:build !linux || !cgo

package pion

import (
	"github.com/Wyydra/yacall/internal/core/domain"
	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

// placeholderCapturer negotiates real m-lines without any device behind
// them. Capture drivers need V4L2 and cgo.
type placeholderCapturer struct{}

func newCapturer() capturer {
	return placeholderCapturer{}
}

func (placeholderCapturer) register(m *webrtc.MediaEngine) error {
	return m.RegisterDefaultCodecs()
}

func (placeholderCapturer) open(t domain.CallType) (*localStream, error) {
	return openPlaceholder(t)
}

func openPlaceholder(t domain.CallType) (*localStream, error) {
	streamID := uuid.NewString()
	audio, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus}, "audio", streamID)
	if err != nil {
		return nil, err
	}
	tracks := []webrtc.TrackLocal{audio}
	if t == domain.CallTypeVideo {
		video, err := webrtc.NewTrackLocalStaticSample(
			webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8}, "video", streamID)
		if err != nil {
			return nil, err
		}
		tracks = append(tracks, video)
	}
	log.Warn().Str("type", string(t)).Msg("No capture drivers on this platform, sending silent tracks")
	return newLocalStream(tracks, nil), nil
}
