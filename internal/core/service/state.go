package service

import (
	"context"
	"sync"

	"github.com/Wyydra/yacall/internal/core/domain"
	"github.com/Wyydra/yacall/internal/core/port"
	"github.com/rs/zerolog/log"
)

// stateHub holds the observable call state and fans it out to listeners in
// version order. It never blocks on lifecycle operations.
type stateHub struct {
	mu        sync.Mutex
	state     port.CallState
	version   uint64
	listeners []func(port.CallState)

	notifyMu  sync.Mutex
	delivered uint64

	gateway port.RealTimeGateway
}

func (h *stateHub) get() port.CallState {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

func (h *stateHub) subscribe(fn func(port.CallState)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.listeners = append(h.listeners, fn)
}

// update applies fn to a copy of the state. fn runs under the hub lock.
func (h *stateHub) update(fn func(*port.CallState)) {
	h.mu.Lock()
	next := h.state
	fn(&next)
	h.state = next
	h.version++
	v := h.version
	listeners := make([]func(port.CallState), len(h.listeners))
	copy(listeners, h.listeners)
	h.mu.Unlock()

	h.notifyMu.Lock()
	defer h.notifyMu.Unlock()
	if v <= h.delivered {
		return
	}
	h.delivered = v
	// Always deliver the newest state, even if a later update raced ahead of us.
	current := h.get()
	for _, l := range listeners {
		l(current)
	}
	if h.gateway != nil {
		if err := h.gateway.PublishState(context.Background(), current); err != nil {
			log.Warn().Err(err).Msg("Failed to publish call state")
		}
	}
}

func recordPtr(r domain.CallRecord) *domain.CallRecord {
	return &r
}
