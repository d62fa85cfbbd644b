package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/Wyydra/yacall/internal/adapter/driven/gateway/ws"
	"github.com/Wyydra/yacall/internal/core/domain"
	"github.com/Wyydra/yacall/internal/core/port"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"
)

// CallService is the UI-facing surface the router drives.
type CallService interface {
	InitiateCall(ctx context.Context, receiverID domain.UserID, receiverName string, t domain.CallType) (domain.CallID, error)
	AcceptCall(ctx context.Context, id domain.CallID) error
	DeclineCall(ctx context.Context, id domain.CallID) error
	EndCall(ctx context.Context, id domain.CallID) error
	ToggleMute() bool
	ToggleVideo() bool
	State() port.CallState
}

type Handler struct {
	CallService CallService
	Hub         *ws.Hub
}

func NewHandler(callService CallService, hub *ws.Hub) *Handler {
	return &Handler{
		CallService: callService,
		Hub:         hub,
	}
}

func (h *Handler) NewRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Route("/api", func(r chi.Router) {
		r.Get("/call", h.GetState)
		r.Post("/call/mute", h.ToggleMute)
		r.Post("/call/video", h.ToggleVideo)

		r.Post("/calls", h.InitiateCall)
		r.Route("/calls/{callID}", func(r chi.Router) {
			r.Post("/accept", h.AcceptCall)
			r.Post("/decline", h.DeclineCall)
			r.Post("/end", h.EndCall)
		})
	})

	r.Get("/ws", h.ServeWS)

	fs := http.FileServer(http.Dir("./static"))
	r.Handle("/*", fs)

	return r
}

type initiateRequest struct {
	ReceiverID   string `json:"receiver_id"`
	ReceiverName string `json:"receiver_name"`
	Type         string `json:"type"`
}

type initiateResponse struct {
	CallID string `json:"call_id"`
}

type toggleResponse struct {
	Muted    *bool `json:"muted,omitempty"`
	VideoOff *bool `json:"video_off,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (h *Handler) GetState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, ws.NewStateDTO(h.CallService.State()))
}

func (h *Handler) InitiateCall(w http.ResponseWriter, r *http.Request) {
	var req initiateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, domain.ErrInvalidArgument)
		return
	}
	id, err := h.CallService.InitiateCall(r.Context(), domain.UserID(req.ReceiverID), req.ReceiverName, domain.CallType(req.Type))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, initiateResponse{CallID: id.String()})
}

func (h *Handler) AcceptCall(w http.ResponseWriter, r *http.Request) {
	h.callAction(w, r, h.CallService.AcceptCall)
}

func (h *Handler) DeclineCall(w http.ResponseWriter, r *http.Request) {
	h.callAction(w, r, h.CallService.DeclineCall)
}

func (h *Handler) EndCall(w http.ResponseWriter, r *http.Request) {
	h.callAction(w, r, h.CallService.EndCall)
}

func (h *Handler) ToggleMute(w http.ResponseWriter, r *http.Request) {
	muted := h.CallService.ToggleMute()
	writeJSON(w, http.StatusOK, toggleResponse{Muted: &muted})
}

func (h *Handler) ToggleVideo(w http.ResponseWriter, r *http.Request) {
	off := h.CallService.ToggleVideo()
	writeJSON(w, http.StatusOK, toggleResponse{VideoOff: &off})
}

func (h *Handler) callAction(w http.ResponseWriter, r *http.Request, fn func(context.Context, domain.CallID) error) {
	id := domain.CallID(chi.URLParam(r, "callID"))
	if err := fn(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrCallNotFound), errors.Is(err, domain.ErrNoIncomingCall):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrSessionActive),
		errors.Is(err, domain.ErrCallNotRinging),
		errors.Is(err, domain.ErrStaleTransition),
		errors.Is(err, domain.ErrGlareLost):
		return http.StatusConflict
	case errors.Is(err, domain.ErrMediaUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, domain.ErrStoreWrite), errors.Is(err, domain.ErrNegotiation):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		log.Error().Err(err).Str("path", r.URL.Path).Msg("Request failed")
	} else {
		log.Debug().Err(err).Str("path", r.URL.Path).Msg("Request rejected")
	}
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("Failed to encode response")
	}
}
