package domain

import (
	"encoding/json"
	"fmt"
)

type SDPType string

const (
	SDPTypeOffer  SDPType = "offer"
	SDPTypeAnswer SDPType = "answer"
)

// SessionDescription mirrors the browser RTCSessionDescriptionInit JSON shape.
type SessionDescription struct {
	Type SDPType `json:"type"`
	SDP  string  `json:"sdp"`
}

func (d SessionDescription) Validate(want SDPType) error {
	if d.Type != want {
		return fmt.Errorf("%w: expected %s, got %q", ErrNegotiation, want, d.Type)
	}
	if d.SDP == "" {
		return fmt.Errorf("%w: empty %s sdp", ErrNegotiation, want)
	}
	return nil
}

// Candidate mirrors RTCIceCandidateInit.
type Candidate struct {
	Candidate        string  `json:"candidate"`
	SDPMid           *string `json:"sdpMid,omitempty"`
	SDPMLineIndex    *uint16 `json:"sdpMLineIndex,omitempty"`
	UsernameFragment *string `json:"usernameFragment,omitempty"`
}

// DescriptionSignal is the value held by an offer or answer slot. Offers
// carry the id of the call they open.
type DescriptionSignal struct {
	Description SessionDescription `json:"description"`
	From        UserID             `json:"from"`
	CallID      CallID             `json:"callId,omitempty"`
}

// CandidateSignal is one entry of a candidates collection.
type CandidateSignal struct {
	Candidate Candidate `json:"candidate"`
	From      UserID    `json:"from"`
}

func DecodeDescription(raw []byte, want SDPType) (DescriptionSignal, error) {
	var s DescriptionSignal
	if err := json.Unmarshal(raw, &s); err != nil {
		return DescriptionSignal{}, fmt.Errorf("%w: %v", ErrNegotiation, err)
	}
	if err := s.Description.Validate(want); err != nil {
		return DescriptionSignal{}, err
	}
	return s, nil
}

func DecodeCandidate(raw []byte) (CandidateSignal, error) {
	var s CandidateSignal
	if err := json.Unmarshal(raw, &s); err != nil {
		return CandidateSignal{}, fmt.Errorf("%w: %v", ErrNegotiation, err)
	}
	if s.Candidate.Candidate == "" {
		return CandidateSignal{}, fmt.Errorf("%w: empty candidate", ErrNegotiation)
	}
	return s, nil
}

// Snapshot is the value of a signaling path at one instant. Slots carry Value;
// collections carry Children ordered by insertion key.
type Snapshot struct {
	Path     string
	Value    []byte
	Children []Entry
}

type Entry struct {
	Key   string
	Value []byte
}

func (s Snapshot) Exists() bool {
	return s.Value != nil || len(s.Children) > 0
}
