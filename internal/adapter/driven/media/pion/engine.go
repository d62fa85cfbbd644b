package pion

import (
	"context"
	"fmt"
	"time"

	"github.com/Wyydra/yacall/internal/core/domain"
	"github.com/Wyydra/yacall/internal/core/port"
	"github.com/pion/interceptor"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type Config struct {
	STUNURLs []string
	// DisconnectedTimeout and FailedTimeout tune how long ICE tolerates a
	// silent path before reporting disconnected and then failed.
	DisconnectedTimeout time.Duration
	FailedTimeout       time.Duration
	LogLevel            zerolog.Level
}

// capturer opens local devices. Implementations are platform specific.
type capturer interface {
	register(m *webrtc.MediaEngine) error
	open(t domain.CallType) (*localStream, error)
}

// Engine implements port.MediaEngine on top of pion.
type Engine struct {
	api        *webrtc.API
	iceServers []webrtc.ICEServer
	capture    capturer
}

func NewEngine(cfg Config) (*Engine, error) {
	return newEngine(cfg, newCapturer())
}

func newEngine(cfg Config, c capturer) (*Engine, error) {
	m := &webrtc.MediaEngine{}
	if err := c.register(m); err != nil {
		return nil, fmt.Errorf("register codecs: %w", err)
	}

	registry := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(m, registry); err != nil {
		return nil, fmt.Errorf("register interceptors: %w", err)
	}

	se := webrtc.SettingEngine{LoggerFactory: newLoggerFactory(cfg.LogLevel)}
	if cfg.DisconnectedTimeout > 0 && cfg.FailedTimeout > 0 {
		se.SetICETimeouts(cfg.DisconnectedTimeout, cfg.FailedTimeout, 2*time.Second)
	}

	api := webrtc.NewAPI(
		webrtc.WithMediaEngine(m),
		webrtc.WithInterceptorRegistry(registry),
		webrtc.WithSettingEngine(se),
	)

	var servers []webrtc.ICEServer
	if len(cfg.STUNURLs) > 0 {
		servers = []webrtc.ICEServer{{URLs: cfg.STUNURLs}}
	}
	return &Engine{api: api, iceServers: servers, capture: c}, nil
}

func (e *Engine) Acquire(ctx context.Context, t domain.CallType) (port.LocalStream, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrMediaUnavailable, err)
	}
	ls, err := e.capture.open(t)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrMediaUnavailable, err)
	}
	log.Debug().Str("stream_id", ls.ID()).Str("type", string(t)).Msg("Local media acquired")
	return ls, nil
}

func (e *Engine) NewPeerConnection() (port.PeerConnection, error) {
	pc, err := e.api.NewPeerConnection(webrtc.Configuration{ICEServers: e.iceServers})
	if err != nil {
		return nil, err
	}
	return newPeer(pc), nil
}
