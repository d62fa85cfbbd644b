package port

import (
	"context"

	"github.com/Wyydra/yacall/internal/core/domain"
)

type MediaEngine interface {
	// Acquire captures local devices for t. Fails with domain.ErrMediaUnavailable.
	Acquire(ctx context.Context, t domain.CallType) (LocalStream, error)
	NewPeerConnection() (PeerConnection, error)
}

type LocalStream interface {
	ID() string
	// ToggleAudio flips the audio track. Returns true when now muted.
	ToggleAudio() bool
	// ToggleVideo flips the video track. Returns true when now disabled.
	ToggleVideo() bool
	// Stop releases every track. Idempotent.
	Stop()
}

type RemoteStream interface {
	ID() string
}

type ConnectionState string

const (
	ConnectionStateNew          ConnectionState = "new"
	ConnectionStateConnecting   ConnectionState = "connecting"
	ConnectionStateConnected    ConnectionState = "connected"
	ConnectionStateDisconnected ConnectionState = "disconnected"
	ConnectionStateFailed       ConnectionState = "failed"
	ConnectionStateClosed       ConnectionState = "closed"
)

// PeerConnection is owned by exactly one session. Callbacks may fire on any
// goroutine and must be registered before negotiation starts.
type PeerConnection interface {
	AddLocalStream(s LocalStream) error
	CreateOffer(ctx context.Context) (domain.SessionDescription, error)
	CreateAnswer(ctx context.Context) (domain.SessionDescription, error)
	SetLocalDescription(d domain.SessionDescription) error
	SetRemoteDescription(d domain.SessionDescription) error
	AddICECandidate(c domain.Candidate) error

	OnICECandidate(fn func(domain.Candidate))
	OnRemoteStream(fn func(RemoteStream))
	OnConnectionStateChange(fn func(ConnectionState))

	Close() error
}
