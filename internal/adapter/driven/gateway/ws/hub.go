package ws

import (
	"context"
	"sync"

	"github.com/Wyydra/yacall/internal/core/domain"
	"github.com/Wyydra/yacall/internal/core/port"
	"github.com/rs/zerolog/log"
)

// StateDTO is the wire shape of port.CallState pushed to UI clients.
type StateDTO struct {
	Event          string             `json:"event"`
	ActiveCall     *domain.CallRecord `json:"active_call"`
	IncomingCall   *domain.CallRecord `json:"incoming_call"`
	LocalStreamID  string             `json:"local_stream_id,omitempty"`
	RemoteStreamID string             `json:"remote_stream_id,omitempty"`
}

func NewStateDTO(s port.CallState) StateDTO {
	dto := StateDTO{
		Event:        "call_state",
		ActiveCall:   s.ActiveCall,
		IncomingCall: s.IncomingCall,
	}
	if s.LocalStream != nil {
		dto.LocalStreamID = s.LocalStream.ID()
	}
	if s.RemoteStream != nil {
		dto.RemoteStreamID = s.RemoteStream.ID()
	}
	return dto
}

// implements port.RealTimeGateway
type Hub struct {
	mu         sync.Mutex
	last       StateDTO
	clients    map[Client]bool
	broadcast  chan StateDTO
	register   chan Client
	unregister chan Client
	quit       chan struct{}
}

func NewHub() *Hub {
	return &Hub{
		last:       StateDTO{Event: "call_state"},
		clients:    make(map[Client]bool),
		broadcast:  make(chan StateDTO, 16),
		register:   make(chan Client),
		unregister: make(chan Client),
		quit:       make(chan struct{}),
	}
}

func (h *Hub) PublishState(ctx context.Context, state port.CallState) error {
	dto := NewStateDTO(state)
	h.mu.Lock()
	h.last = dto
	h.mu.Unlock()

	select {
	case h.broadcast <- dto:
	case <-ctx.Done():
		return ctx.Err()
	default:
		// Late joiners and the next change still get h.last.
		log.Warn().Msg("Broadcast channel full, dropping state")
	}
	return nil
}

func (h *Hub) Last() StateDTO {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.last
}

func (h *Hub) Run() {
	for {
		select {
		case <-h.quit:
			for client := range h.clients {
				client.Close()
				delete(h.clients, client)
			}
			return

		case client := <-h.register:
			h.clients[client] = true
			log.Info().Str("client_id", client.ID()).Msg("Client registered")
			if err := client.SendState(h.Last()); err != nil {
				log.Error().Err(err).Str("client_id", client.ID()).Msg("Error sending initial state")
				client.Close()
				delete(h.clients, client)
			}

		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				client.Close()
				log.Info().Str("client_id", client.ID()).Msg("Client unregistered")
			}

		case state := <-h.broadcast:
			for client := range h.clients {
				if err := client.SendState(state); err != nil {
					log.Error().Err(err).Str("client_id", client.ID()).Msg("Error sending state")
					client.Close()
					delete(h.clients, client)
				}
			}
		}
	}
}

func (h *Hub) Register(c Client) {
	select {
	case h.register <- c:
	case <-h.quit:
	}
}

func (h *Hub) Unregister(c Client) {
	select {
	case h.unregister <- c:
	case <-h.quit:
	}
}

func (h *Hub) Stop() {
	close(h.quit)
}
