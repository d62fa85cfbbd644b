//go:build linux && cgo

package pion

import (
	"github.com/Wyydra/yacall/internal/core/domain"
	"github.com/pion/mediadevices"
	"github.com/pion/mediadevices/pkg/codec/opus"
	"github.com/pion/mediadevices/pkg/codec/vpx"
	_ "github.com/pion/mediadevices/pkg/driver/camera"
	_ "github.com/pion/mediadevices/pkg/driver/microphone"
	"github.com/pion/mediadevices/pkg/frame"
	"github.com/pion/mediadevices/pkg/prop"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

// deviceCapturer captures camera and microphone through V4L2 and malgo.
type deviceCapturer struct {
	selector *mediadevices.CodecSelector
}

func newCapturer() capturer {
	return &deviceCapturer{}
}

func (c *deviceCapturer) register(m *webrtc.MediaEngine) error {
	vp8, err := vpx.NewVP8Params()
	if err != nil {
		return err
	}
	vp8.BitRate = 1_500_000

	op, err := opus.NewParams()
	if err != nil {
		return err
	}

	c.selector = mediadevices.NewCodecSelector(
		mediadevices.WithVideoEncoders(&vp8),
		mediadevices.WithAudioEncoders(&op),
	)
	c.selector.Populate(m)
	return nil
}

func (c *deviceCapturer) open(t domain.CallType) (*localStream, error) {
	constraints := mediadevices.MediaStreamConstraints{
		Codec: c.selector,
		Audio: func(_ *mediadevices.MediaTrackConstraints) {},
	}
	if t == domain.CallTypeVideo {
		constraints.Video = func(mc *mediadevices.MediaTrackConstraints) {
			// MJPEG nodes on some webcams produce frames the VP8 encoder rejects.
			mc.FrameFormat = prop.FrameFormatOneOf{
				frame.FormatYUYV,
				frame.FormatI420,
				frame.FormatI444,
				frame.FormatRGBA,
			}
			mc.Width = prop.IntRanged{Max: 640}
			mc.Height = prop.IntRanged{Max: 480}
		}
	}

	stream, err := mediadevices.GetUserMedia(constraints)
	if err != nil {
		return nil, err
	}

	captured := stream.GetTracks()
	tracks := make([]webrtc.TrackLocal, 0, len(captured))
	for _, tr := range captured {
		tr.OnEnded(func(err error) {
			if err != nil {
				log.Warn().Err(err).Str("track_id", tr.ID()).Msg("Local track ended")
			}
		})
		tracks = append(tracks, tr)
	}
	release := func() {
		for _, tr := range captured {
			if err := tr.Close(); err != nil {
				log.Warn().Err(err).Str("track_id", tr.ID()).Msg("Failed to close local track")
			}
		}
	}
	return newLocalStream(tracks, release), nil
}
