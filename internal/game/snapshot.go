package game

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// SnapshotVersion is the only export layout this package reads or writes.
const SnapshotVersion = 1

var ErrSnapshotVersion = errors.New("unsupported snapshot version")

// Snapshot is the version-1 export of a session. Card fields hold stable
// "rank_suit" identifiers; timestamps are ISO-8601 UTC.
type Snapshot struct {
	Version       int                    `json:"version"`
	Code          string                 `json:"code"`
	Host          string                 `json:"host"`
	Participants  []string               `json:"participants"`
	Deck          []string               `json:"deck"`
	Status        Status                 `json:"status"`
	TurnIndex     int                    `json:"turnIndex"`
	Direction     int                    `json:"direction"`
	History       []Event                `json:"history"`
	SavedCards    map[string][]SavedSnap `json:"savedCards"`
	VenganzaCards []VenganzaSnap         `json:"venganzaCards"`
	KingsCount    int                    `json:"kingsCount"`
	CupContent    []CupSnap              `json:"cupContent"`
	Rules         map[string]string      `json:"rules"`
	SavePolicy    SavePolicy             `json:"savePolicy"`
	EndReason     string                 `json:"endReason,omitempty"`
	CreatedAt     time.Time              `json:"createdAt"`
	StartedAt     *time.Time             `json:"startedAt,omitempty"`
	EndedAt       *time.Time             `json:"endedAt,omitempty"`
}

type SavedSnap struct {
	Card    string `json:"card"`
	DrawSeq int    `json:"drawSeq"`
}

type VenganzaSnap struct {
	Player string `json:"player"`
	Card   string `json:"card"`
}

type CupSnap struct {
	Player     string    `json:"player"`
	KingNumber int       `json:"kingNumber"`
	At         time.Time `json:"t"`
}

// Snapshot captures the full session state. The result shares no mutable
// state with the live session (history entries point at the same rule
// outcomes, which are never modified after append) and is safe to hand
// across goroutines.
func (s *Session) Snapshot() Snapshot {
	snap := Snapshot{
		Version:       SnapshotVersion,
		Code:          s.Code,
		Host:          s.Host,
		Participants:  append([]string(nil), s.Participants...),
		Deck:          make([]string, 0, s.Deck.Remaining()),
		Status:        s.Status,
		TurnIndex:     s.TurnIndex,
		Direction:     s.Direction,
		History:       make([]Event, len(s.History)),
		SavedCards:    make(map[string][]SavedSnap, len(s.SavedCards)),
		VenganzaCards: make([]VenganzaSnap, 0, len(s.Venganzas)),
		KingsCount:    s.KingsCount,
		CupContent:    make([]CupSnap, 0, len(s.CupContent)),
		Rules:         make(map[string]string, len(s.Rules)),
		SavePolicy:    s.SavePolicy,
		EndReason:     s.EndReason,
		CreatedAt:     s.CreatedAt.UTC(),
	}
	for _, c := range s.Deck.Cards() {
		snap.Deck = append(snap.Deck, c.ID())
	}
	copy(snap.History, s.History)
	for i := range snap.History {
		snap.History[i].At = snap.History[i].At.UTC()
	}
	for p, held := range s.SavedCards {
		out := make([]SavedSnap, 0, len(held))
		for _, sc := range held {
			out = append(out, SavedSnap{Card: sc.Card.ID(), DrawSeq: sc.DrawSeq})
		}
		snap.SavedCards[p] = out
	}
	for _, v := range s.Venganzas {
		snap.VenganzaCards = append(snap.VenganzaCards, VenganzaSnap{Player: v.Player, Card: v.Card.ID()})
	}
	for _, e := range s.CupContent {
		snap.CupContent = append(snap.CupContent, CupSnap{Player: e.Player, KingNumber: e.KingNumber, At: e.At.UTC()})
	}
	for rank, text := range s.Rules {
		snap.Rules[rank.String()] = text
	}
	if !s.StartedAt.IsZero() {
		t := s.StartedAt.UTC()
		snap.StartedAt = &t
	}
	if !s.EndedAt.IsZero() {
		t := s.EndedAt.UTC()
		snap.EndedAt = &t
	}
	return snap
}

// Export marshals the version-1 layout.
func (s *Session) Export() ([]byte, error) {
	return json.Marshal(s.Snapshot())
}

// Restore rebuilds a live session from a snapshot, re-checking the
// structural invariants a constructor would enforce.
func Restore(snap Snapshot) (*Session, error) {
	if snap.Version != SnapshotVersion {
		return nil, ErrSnapshotVersion
	}
	if len(snap.Participants) == 0 || len(snap.Participants) > MaxParticipants {
		return nil, fmt.Errorf("restore: %d participants out of range", len(snap.Participants))
	}
	seen := map[string]bool{}
	hostPresent := false
	for _, p := range snap.Participants {
		if seen[p] {
			return nil, fmt.Errorf("restore: duplicate participant %q", p)
		}
		seen[p] = true
		if p == snap.Host {
			hostPresent = true
		}
	}
	if !hostPresent {
		return nil, fmt.Errorf("restore: host %q not in participants", snap.Host)
	}
	if snap.Status == StatusPlaying && (snap.TurnIndex < 0 || snap.TurnIndex >= len(snap.Participants)) {
		return nil, fmt.Errorf("restore: turn index %d out of range", snap.TurnIndex)
	}
	if snap.KingsCount < 0 || snap.KingsCount > MaxKings || len(snap.CupContent) != snap.KingsCount {
		return nil, fmt.Errorf("restore: kings count %d inconsistent with cup", snap.KingsCount)
	}

	deckCards := make([]Card, 0, len(snap.Deck))
	for _, id := range snap.Deck {
		c, err := ParseCardID(id)
		if err != nil {
			return nil, fmt.Errorf("restore: deck: %w", err)
		}
		deckCards = append(deckCards, c)
	}

	s := &Session{
		Code:         snap.Code,
		Host:         snap.Host,
		Participants: append([]string(nil), snap.Participants...),
		Deck:         NewDeckFrom(deckCards),
		Status:       snap.Status,
		TurnIndex:    snap.TurnIndex,
		Direction:    snap.Direction,
		History:      make([]Event, len(snap.History)),
		SavedCards:   make(map[string][]SavedCard, len(snap.SavedCards)),
		KingsCount:   snap.KingsCount,
		Rules:        make(map[Rank]string, len(snap.Rules)),
		SavePolicy:   snap.SavePolicy,
		EndReason:    snap.EndReason,
		CreatedAt:    snap.CreatedAt,
	}
	if s.Direction == 0 {
		s.Direction = 1
	}
	copy(s.History, snap.History)
	for i := range s.History {
		c, err := ParseCardID(s.History[i].CardID)
		if err != nil {
			return nil, fmt.Errorf("restore: history: %w", err)
		}
		s.History[i].Card = c
	}
	for p, held := range snap.SavedCards {
		out := make([]SavedCard, 0, len(held))
		for _, sc := range held {
			c, err := ParseCardID(sc.Card)
			if err != nil {
				return nil, fmt.Errorf("restore: saved cards: %w", err)
			}
			out = append(out, SavedCard{Card: c, DrawSeq: sc.DrawSeq})
		}
		s.SavedCards[p] = out
	}
	for _, p := range s.Participants {
		if _, ok := s.SavedCards[p]; !ok {
			s.SavedCards[p] = []SavedCard{}
		}
	}
	for _, v := range snap.VenganzaCards {
		c, err := ParseCardID(v.Card)
		if err != nil {
			return nil, fmt.Errorf("restore: venganzas: %w", err)
		}
		s.Venganzas = append(s.Venganzas, Venganza{Player: v.Player, Card: c})
	}
	for _, e := range snap.CupContent {
		s.CupContent = append(s.CupContent, CupEntry{Player: e.Player, KingNumber: e.KingNumber, At: e.At})
	}
	for name, text := range snap.Rules {
		rank, ok := ParseRank(name)
		if !ok {
			return nil, fmt.Errorf("restore: rules: unknown rank %q", name)
		}
		s.Rules[rank] = text
	}
	for rank := Ace; rank <= King; rank++ {
		if _, ok := s.Rules[rank]; !ok {
			return nil, fmt.Errorf("restore: rules: missing rank %s", rank)
		}
	}
	if snap.StartedAt != nil {
		s.StartedAt = *snap.StartedAt
	}
	if snap.EndedAt != nil {
		s.EndedAt = *snap.EndedAt
	}
	return s, nil
}

// Import parses and restores a version-1 export.
func Import(data []byte) (*Session, error) {
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, err
	}
	return Restore(snap)
}
