package game

import (
	"sort"
	"time"
)

// Stats is the full set of projections over one session snapshot. Every
// field is derived; nothing here feeds back into the engine.
type Stats struct {
	Basic            BasicStats                  `json:"basic"`
	Participants     map[string]ParticipantStats `json:"participants"`
	ByRank           map[string]DrawnRemaining   `json:"byRank"`
	BySuit           map[string]DrawnRemaining   `json:"bySuit"`
	ByColor          map[string]DrawnRemaining   `json:"byColor"`
	Turns            TurnStats                   `json:"turns"`
	RuleApplications map[string]int              `json:"ruleApplications"`
	Timeline         []TimelineEntry             `json:"timeline"`
}

type BasicStats struct {
	ParticipantCount    int     `json:"participantCount"`
	CardsDrawn          int     `json:"cardsDrawn"`
	CardsRemaining      int     `json:"cardsRemaining"`
	ProgressPct         float64 `json:"progressPct"`
	DurationSeconds     float64 `json:"durationSeconds"`
	CurrentTurn         string  `json:"currentTurn,omitempty"`
	KingsCount          int     `json:"kingsCount"`
	VenganzasAvailable  int     `json:"venganzasAvailable"`
	Status              Status  `json:"status"`
	EndReason           string  `json:"endReason,omitempty"`
}

type ParticipantStats struct {
	CardsDrawn         int     `json:"cardsDrawn"`
	Activations        int     `json:"activations"`
	VenganzasEarned    int     `json:"venganzasEarned"`
	VenganzasRemaining int     `json:"venganzasRemaining"`
	SavedCardsHeld     int     `json:"savedCardsHeld"`
	KingsDrawn         int     `json:"kingsDrawn"`
	AvgCardValue       float64 `json:"avgCardValue"`
	TurnIndex          int     `json:"turnIndex"`
}

type DrawnRemaining struct {
	Drawn     int `json:"drawn"`
	Remaining int `json:"remaining"`
}

type TurnStats struct {
	Total         int            `json:"total"`
	PerParticipant map[string]int `json:"perParticipant"`
	Min           int            `json:"min"`
	Max           int            `json:"max"`
	Avg           float64        `json:"avg"`
	Variance      float64        `json:"variance"`
	LongestStreak int            `json:"longestStreak"`
	StreakHolder  string         `json:"streakHolder,omitempty"`
}

type TimelineEntry struct {
	Label string    `json:"label"`
	Actor string    `json:"actor,omitempty"`
	Card  string    `json:"card,omitempty"`
	Seq   int       `json:"seq"`
	At    time.Time `json:"t"`
}

// Summary is the end-of-game package returned by getFinalSummary.
type Summary struct {
	Code      string    `json:"code"`
	EndReason string    `json:"endReason"`
	EndedAt   time.Time `json:"endedAt"`
	Stats     Stats     `json:"stats"`
}

// ComputeStats runs every projection over snap. O(len(history)); snap is
// never mutated.
func ComputeStats(snap Snapshot, now time.Time) Stats {
	st := Stats{
		Participants:     make(map[string]ParticipantStats, len(snap.Participants)),
		ByRank:           make(map[string]DrawnRemaining, 13),
		BySuit:           make(map[string]DrawnRemaining, 4),
		ByColor:          make(map[string]DrawnRemaining, 2),
		RuleApplications: map[string]int{},
	}

	type acc struct {
		drawn, activations, earned, kings int
		valueSum                          int
	}
	perP := make(map[string]*acc, len(snap.Participants))
	for _, p := range snap.Participants {
		perP[p] = &acc{}
	}

	draws := 0
	for _, ev := range snap.History {
		a := perP[ev.Actor]
		if a == nil {
			// actor left after acting; still counts toward totals
			a = &acc{}
			perP[ev.Actor] = a
		}
		card, err := ParseCardID(ev.CardID)
		if err != nil {
			continue
		}
		switch ev.Kind {
		case EventDraw:
			draws++
			a.drawn++
			a.valueSum += card.Value()
			if card.Rank == Ace {
				a.earned++
			}
			if card.Rank == King {
				a.kings++
			}
			bumpDrawn(st.ByRank, card.Rank.String())
			bumpDrawn(st.BySuit, card.Suit.String())
			bumpDrawn(st.ByColor, string(card.Color()))
			if ev.Outcome != nil {
				st.RuleApplications[ev.Outcome.Message]++
			}
		case EventSavedActivate:
			a.activations++
		}
	}

	for _, id := range snap.Deck {
		card, err := ParseCardID(id)
		if err != nil {
			continue
		}
		bumpRemaining(st.ByRank, card.Rank.String())
		bumpRemaining(st.BySuit, card.Suit.String())
		bumpRemaining(st.ByColor, string(card.Color()))
	}

	venganzasLeft := map[string]int{}
	for _, v := range snap.VenganzaCards {
		venganzasLeft[v.Player]++
	}
	for idx, p := range snap.Participants {
		a := perP[p]
		ps := ParticipantStats{
			CardsDrawn:         a.drawn,
			Activations:        a.activations,
			VenganzasEarned:    a.earned,
			VenganzasRemaining: venganzasLeft[p],
			SavedCardsHeld:     len(snap.SavedCards[p]),
			KingsDrawn:         a.kings,
			TurnIndex:          idx,
		}
		if a.drawn > 0 {
			ps.AvgCardValue = float64(a.valueSum) / float64(a.drawn)
		}
		st.Participants[p] = ps
	}

	st.Basic = BasicStats{
		ParticipantCount:   len(snap.Participants),
		CardsDrawn:         draws,
		CardsRemaining:     len(snap.Deck),
		ProgressPct:        float64(draws) / float64(DeckSize) * 100,
		KingsCount:         snap.KingsCount,
		VenganzasAvailable: len(snap.VenganzaCards),
		Status:             snap.Status,
		EndReason:          snap.EndReason,
	}
	if snap.Status == StatusPlaying && snap.TurnIndex < len(snap.Participants) {
		st.Basic.CurrentTurn = snap.Participants[snap.TurnIndex]
	}
	if snap.StartedAt != nil {
		end := now
		if snap.EndedAt != nil {
			end = *snap.EndedAt
		}
		st.Basic.DurationSeconds = end.Sub(*snap.StartedAt).Seconds()
	}

	st.Turns = computeTurnStats(snap)
	st.Timeline = computeTimeline(snap)
	return st
}

// ComputeSummary packages the final projections for an ended session.
func ComputeSummary(snap Snapshot, now time.Time) Summary {
	sum := Summary{
		Code:      snap.Code,
		EndReason: snap.EndReason,
		Stats:     ComputeStats(snap, now),
	}
	if snap.EndedAt != nil {
		sum.EndedAt = *snap.EndedAt
	}
	return sum
}

func bumpDrawn(m map[string]DrawnRemaining, key string) {
	e := m[key]
	e.Drawn++
	m[key] = e
}

func bumpRemaining(m map[string]DrawnRemaining, key string) {
	e := m[key]
	e.Remaining++
	m[key] = e
}

func computeTurnStats(snap Snapshot) TurnStats {
	ts := TurnStats{PerParticipant: map[string]int{}}
	var streak, longest int
	var prev, holder string
	for _, ev := range snap.History {
		if ev.Kind != EventDraw {
			continue
		}
		ts.Total++
		ts.PerParticipant[ev.Actor]++
		if ev.Actor == prev {
			streak++
		} else {
			streak = 1
			prev = ev.Actor
		}
		if streak > longest {
			longest = streak
			holder = ev.Actor
		}
	}
	ts.LongestStreak = longest
	ts.StreakHolder = holder
	if len(ts.PerParticipant) == 0 {
		return ts
	}

	counts := make([]int, 0, len(ts.PerParticipant))
	// participants who never drew still weigh into the distribution
	for _, p := range snap.Participants {
		counts = append(counts, ts.PerParticipant[p])
	}
	sort.Ints(counts)
	ts.Min = counts[0]
	ts.Max = counts[len(counts)-1]
	sum := 0
	for _, c := range counts {
		sum += c
	}
	ts.Avg = float64(sum) / float64(len(counts))
	var variance float64
	for _, c := range counts {
		d := float64(c) - ts.Avg
		variance += d * d
	}
	ts.Variance = variance / float64(len(counts))
	return ts
}

func computeTimeline(snap Snapshot) []TimelineEntry {
	var out []TimelineEntry
	draws, kings := 0, 0
	for _, ev := range snap.History {
		switch ev.Kind {
		case EventDraw:
			draws++
			if draws == 1 {
				out = append(out, entry("first_draw", ev))
			}
			card, err := ParseCardID(ev.CardID)
			if err == nil && card.Rank == King {
				kings++
				if kings == 1 {
					out = append(out, entry("first_king", ev))
				}
				out = append(out, entry("king_drawn", ev))
			}
			if err == nil && card.Rank == Ace {
				out = append(out, entry("venganza_accrued", ev))
			}
			if draws == DeckSize/2 {
				out = append(out, entry("halfway", ev))
			}
			if draws == DeckSize {
				out = append(out, entry("deck_exhausted", ev))
			}
		case EventVenganzaConsume:
			out = append(out, entry("venganza_consumed", ev))
		}
	}
	if snap.Status == StatusEnded && snap.EndedAt != nil {
		out = append(out, TimelineEntry{Label: "game_ended", At: *snap.EndedAt})
	}
	return out
}

func entry(label string, ev Event) TimelineEntry {
	return TimelineEntry{Label: label, Actor: ev.Actor, Card: ev.CardID, Seq: ev.Seq, At: ev.At}
}
