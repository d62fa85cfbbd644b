package service

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Wyydra/yacall/internal/core/domain"
	"github.com/Wyydra/yacall/internal/core/port"
)

const signalingRoot = "signaling"

func signalingPath(uid domain.UserID) string {
	return signalingRoot + "/" + uid.String()
}

func offerPath(uid domain.UserID) string {
	return signalingPath(uid) + "/offer"
}

func answerPath(uid domain.UserID) string {
	return signalingPath(uid) + "/answer"
}

func candidatesPath(uid domain.UserID) string {
	return signalingPath(uid) + "/candidates"
}

// signaler maps typed offer/answer/candidate envelopes onto the
// path-addressed channel. Everything is addressed by the receiving user.
type signaler struct {
	ch port.SignalingChannel
}

func (s signaler) publishOffer(ctx context.Context, to, from domain.UserID, id domain.CallID, d domain.SessionDescription) error {
	return s.write(ctx, offerPath(to), domain.DescriptionSignal{Description: d, From: from, CallID: id})
}

func (s signaler) publishAnswer(ctx context.Context, to, from domain.UserID, d domain.SessionDescription) error {
	return s.write(ctx, answerPath(to), domain.DescriptionSignal{Description: d, From: from})
}

func (s signaler) publishCandidate(ctx context.Context, to, from domain.UserID, c domain.Candidate) error {
	raw, err := json.Marshal(domain.CandidateSignal{Candidate: c, From: from})
	if err != nil {
		return err
	}
	_, err = s.ch.Append(ctx, candidatesPath(to), raw)
	return err
}

// takeOffer consumes the offer addressed to self, so it can never be used
// twice. A malformed offer is consumed as well.
func (s signaler) takeOffer(ctx context.Context, self domain.UserID) (domain.DescriptionSignal, bool, error) {
	raw, ok, err := s.ch.Take(ctx, offerPath(self))
	if err != nil {
		return domain.DescriptionSignal{}, false, fmt.Errorf("consume offer: %w", err)
	}
	if !ok {
		return domain.DescriptionSignal{}, false, nil
	}
	sig, err := domain.DecodeDescription(raw, domain.SDPTypeOffer)
	if err != nil {
		return domain.DescriptionSignal{}, false, err
	}
	return sig, true, nil
}

func (s signaler) watchAnswer(ctx context.Context, self domain.UserID) (port.Subscription[domain.Snapshot], error) {
	return s.ch.Subscribe(ctx, answerPath(self))
}

func (s signaler) watchCandidates(ctx context.Context, self domain.UserID) (port.Subscription[domain.Snapshot], error) {
	return s.ch.Subscribe(ctx, candidatesPath(self))
}

func (s signaler) withdrawOffer(ctx context.Context, to domain.UserID) error {
	return s.ch.Remove(ctx, offerPath(to))
}

func (s signaler) clearAnswer(ctx context.Context, self domain.UserID) error {
	return s.ch.Remove(ctx, answerPath(self))
}

// clearOwn drops everything addressed to self. An offer that pending reports
// as belonging to a call still ringing us is left in its slot.
func (s signaler) clearOwn(ctx context.Context, self domain.UserID, pending func(domain.DescriptionSignal) bool) error {
	raw, ok, err := s.ch.ReadOnce(ctx, offerPath(self))
	if err != nil {
		return err
	}
	if ok {
		if offer, err := domain.DecodeDescription(raw, domain.SDPTypeOffer); err == nil && pending(offer) {
			if err := s.ch.Remove(ctx, answerPath(self)); err != nil {
				return err
			}
			return s.ch.Remove(ctx, candidatesPath(self))
		}
	}
	return s.clear(ctx, self)
}

// clear drops every pending offer, answer and candidate addressed to uid.
func (s signaler) clear(ctx context.Context, uid domain.UserID) error {
	return s.ch.Remove(ctx, signalingPath(uid))
}

func (s signaler) write(ctx context.Context, path string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.ch.Write(ctx, path, raw)
}
