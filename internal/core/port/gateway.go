package port

import (
	"context"

	"github.com/Wyydra/yacall/internal/core/domain"
)

// CallState is what presentation collaborators render.
type CallState struct {
	ActiveCall   *domain.CallRecord
	IncomingCall *domain.CallRecord
	LocalStream  LocalStream
	RemoteStream RemoteStream
}

// RealTimeGateway pushes state changes to connected UI clients.
type RealTimeGateway interface {
	PublishState(ctx context.Context, state CallState) error
}
