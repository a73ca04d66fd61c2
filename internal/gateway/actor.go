package gateway

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"cultura-chupistica/internal/game"
)

// DefaultQueueSize is the bounded command queue depth per session.
const DefaultQueueSize = 64

// ArchiveFunc receives the snapshot and summary of a session that just
// ended. Called fire-and-forget on its own goroutine; the actor never waits
// on it.
type ArchiveFunc func(game.Snapshot, game.Summary)

type pending struct {
	cmd      Command
	deadline time.Time
	reply    chan Result
}

// Actor owns exactly one session. A single goroutine drains the bounded
// command queue, so every mutation of session state happens on that
// goroutine and the state itself needs no lock.
type Actor struct {
	code string
	sess *game.Session
	bus  *Bus

	cmds chan pending
	quit chan struct{}

	mu      sync.RWMutex
	stopped bool

	lastActive time.Time
	activeMu   sync.Mutex
	ended      atomic.Bool

	now     func() time.Time
	archive ArchiveFunc
	log     zerolog.Logger
}

func NewActor(sess *game.Session, queueSize int, now func() time.Time, archive ArchiveFunc) *Actor {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	if now == nil {
		now = time.Now
	}
	a := &Actor{
		code:       sess.Code,
		sess:       sess,
		bus:        NewBus(sess.Code),
		cmds:       make(chan pending, queueSize),
		quit:       make(chan struct{}),
		lastActive: now(),
		now:        now,
		archive:    archive,
		log:        log.With().Str("code", sess.Code).Logger(),
	}
	go a.run()
	return a
}

func (a *Actor) Code() string { return a.code }

func (a *Actor) Bus() *Bus { return a.bus }

// Subscribe attaches an observer and counts as session activity.
func (a *Actor) Subscribe(buffer int) *Subscriber {
	a.touch()
	return a.bus.Subscribe(buffer)
}

// Do enqueues cmd and blocks for its result. A full queue exerts
// backpressure on the caller; ctx bounds only the enqueue wait. A zero
// deadline means the command never expires in-queue.
func (a *Actor) Do(ctx context.Context, cmd Command, deadline time.Time) Result {
	a.mu.RLock()
	if a.stopped {
		a.mu.RUnlock()
		return Result{Err: Errf(KindGameNotFound, "session no longer exists")}
	}
	p := pending{cmd: cmd, deadline: deadline, reply: make(chan Result, 1)}
	select {
	case a.cmds <- p:
		a.mu.RUnlock()
	case <-ctx.Done():
		a.mu.RUnlock()
		return Result{Err: Errf(KindCancelled, "command abandoned before enqueue")}
	}
	return <-p.reply
}

// Stop terminates the actor. Queued commands are failed with cancelled and
// all subscribers are dropped.
func (a *Actor) Stop() {
	a.mu.Lock()
	if a.stopped {
		a.mu.Unlock()
		return
	}
	a.stopped = true
	a.mu.Unlock()
	close(a.quit)
}

// IdleFor reports how long the session has gone without an executed command
// or a live subscriber.
func (a *Actor) IdleFor(now time.Time) time.Duration {
	if a.bus.SubscriberCount() > 0 {
		return 0
	}
	a.activeMu.Lock()
	defer a.activeMu.Unlock()
	return now.Sub(a.lastActive)
}

// Ended reports whether the session reached its terminal state. Read by the
// janitor without going through the command queue; a stale false only delays
// a reap by one sweep.
func (a *Actor) Ended() bool { return a.ended.Load() }

func (a *Actor) touch() {
	a.activeMu.Lock()
	a.lastActive = a.now()
	a.activeMu.Unlock()
}

func (a *Actor) run() {
	for {
		select {
		case <-a.quit:
			a.drain()
			a.bus.Close()
			return
		case p := <-a.cmds:
			now := a.now()
			if !p.deadline.IsZero() && now.After(p.deadline) {
				p.reply <- Result{Err: Errf(KindCancelled, "deadline elapsed in queue")}
				continue
			}
			a.touch()
			p.reply <- a.execute(p.cmd, now)
		}
	}
}

func (a *Actor) drain() {
	for {
		select {
		case p := <-a.cmds:
			p.reply <- Result{Err: Errf(KindCancelled, "session shutting down")}
		default:
			return
		}
	}
}

func (a *Actor) execute(cmd Command, now time.Time) Result {
	switch c := cmd.(type) {
	case Join:
		if err := a.sess.Join(c.Player); err != nil {
			return Result{Err: err}
		}
		data := map[string]any{
			"player":       c.Player,
			"participants": append([]string(nil), a.sess.Participants...),
		}
		a.bus.Publish(EventPlayerJoined, data, now)
		return Result{Output: data}

	case Leave:
		if err := a.sess.Leave(c.Player, now); err != nil {
			return Result{Err: err}
		}
		data := map[string]any{
			"player":       c.Player,
			"participants": append([]string(nil), a.sess.Participants...),
			"host":         a.sess.Host,
		}
		a.bus.Publish(EventPlayerLeft, data, now)
		if a.sess.Status == game.StatusEnded {
			a.publishEnded(now)
		}
		return Result{Output: data}

	case Start:
		if err := a.sess.Start(c.Player, now); err != nil {
			return Result{Err: err}
		}
		data := map[string]any{
			"startedAt":     now.UTC(),
			"turnIndex":     a.sess.TurnIndex,
			"currentPlayer": a.sess.CurrentParticipant(),
		}
		a.bus.Publish(EventGameStarted, data, now)
		return Result{Output: data}

	case Draw:
		res, err := game.ApplyDraw(a.sess, c.Player, now)
		if err != nil {
			return Result{Err: err}
		}
		data := map[string]any{
			"player":    c.Player,
			"card":      res.Card.ID(),
			"outcome":   res.Outcome,
			"ended":     res.Ended,
			"remaining": a.sess.Deck.Remaining(),
		}
		a.bus.Publish(EventCardDrawn, data, now)
		if res.Card.Rank == game.King {
			a.bus.Publish(EventKingsCupProgressed, map[string]any{
				"player":    c.Player,
				"kingStage": res.Outcome.KingStage,
			}, now)
		}
		if res.Ended {
			a.publishEnded(now)
		} else {
			a.publishTurnChanged(now)
		}
		return Result{Output: data}

	case Activate:
		card, err := a.sess.ActivateSaved(c.Player, c.CardID, now)
		if err != nil {
			return Result{Err: err}
		}
		data := map[string]any{
			"player": c.Player,
			"card":   card.ID(),
			"held":   savedIDs(a.sess.SavedCards[c.Player]),
		}
		a.bus.Publish(EventCardActivated, data, now)
		return Result{Output: data}

	case ConsumeVenganza:
		card, err := a.sess.ConsumeVenganza(c.Player, c.Target, now)
		if err != nil {
			return Result{Err: err}
		}
		data := map[string]any{
			"player":    c.Player,
			"target":    c.Target,
			"card":      card.ID(),
			"remaining": a.sess.VenganzasFor(c.Player),
		}
		a.bus.Publish(EventVenganzaConsumed, data, now)
		return Result{Output: data}

	case End:
		if c.Player != a.sess.Host {
			return Result{Err: game.ErrNotHost}
		}
		if a.sess.Status == game.StatusEnded {
			return Result{Err: game.ErrWrongState}
		}
		reason := c.Reason
		if reason == "" {
			reason = "host_ended"
		}
		a.sess.End(reason, now)
		summary := a.publishEnded(now)
		return Result{Output: summary}

	case UpdateRules:
		if err := a.sess.UpdateRules(c.Player, c.Rules); err != nil {
			return Result{Err: err}
		}
		data := map[string]any{"rules": rulesView(a.sess.Rules)}
		a.bus.Publish(EventRulesUpdated, data, now)
		return Result{Output: data}

	case ResetRules:
		if err := a.sess.ResetRules(c.Player); err != nil {
			return Result{Err: err}
		}
		data := map[string]any{"rules": rulesView(a.sess.Rules)}
		a.bus.Publish(EventRulesUpdated, data, now)
		return Result{Output: data}

	case GetRules:
		return Result{Output: map[string]any{"rules": rulesView(a.sess.Rules)}}

	case GetState:
		return Result{Output: a.stateView()}

	case GetHistory:
		history := make([]game.Event, len(a.sess.History))
		copy(history, a.sess.History)
		return Result{Output: history}

	case GetStats:
		return Result{Output: game.ComputeStats(a.sess.Snapshot(), now)}

	case GetFinalSummary:
		if a.sess.Status != game.StatusEnded {
			return Result{Err: game.ErrWrongState}
		}
		return Result{Output: game.ComputeSummary(a.sess.Snapshot(), now)}

	case GetSnapshot:
		return Result{Output: a.sess.Snapshot()}

	default:
		a.log.Error().Str("command", cmd.commandName()).Msg("unhandled command type")
		return Result{Err: Errf(KindInternal, "unhandled command")}
	}
}

func (a *Actor) publishTurnChanged(now time.Time) {
	a.bus.Publish(EventTurnChanged, map[string]any{
		"turnIndex":     a.sess.TurnIndex,
		"currentPlayer": a.sess.CurrentParticipant(),
		"direction":     a.sess.Direction,
	}, now)
}

func (a *Actor) publishEnded(now time.Time) game.Summary {
	a.ended.Store(true)
	snap := a.sess.Snapshot()
	summary := game.ComputeSummary(snap, now)
	a.bus.Publish(EventGameEnded, map[string]any{
		"reason":  a.sess.EndReason,
		"summary": summary,
	}, now)
	if a.archive != nil {
		go a.archive(snap, summary)
	}
	return summary
}

// stateView is the public projection answered by getGameState.
type stateView struct {
	Code          string              `json:"code"`
	Status        game.Status         `json:"status"`
	Host          string              `json:"host"`
	Participants  []string            `json:"participants"`
	TurnIndex     int                 `json:"turnIndex"`
	CurrentPlayer string              `json:"currentPlayer,omitempty"`
	Direction     int                 `json:"direction"`
	CardsRemaining int                `json:"cardsRemaining"`
	KingsCount    int                 `json:"kingsCount"`
	SavedCards    map[string][]string `json:"savedCards"`
	Venganzas     map[string]int      `json:"venganzas"`
	EndReason     string              `json:"endReason,omitempty"`
	CreatedAt     time.Time           `json:"createdAt"`
	StartedAt     *time.Time          `json:"startedAt,omitempty"`
	EndedAt       *time.Time          `json:"endedAt,omitempty"`
}

func (a *Actor) stateView() stateView {
	s := a.sess
	sv := stateView{
		Code:           s.Code,
		Status:         s.Status,
		Host:           s.Host,
		Participants:   append([]string(nil), s.Participants...),
		TurnIndex:      s.TurnIndex,
		CurrentPlayer:  s.CurrentParticipant(),
		Direction:      s.Direction,
		CardsRemaining: s.Deck.Remaining(),
		KingsCount:     s.KingsCount,
		SavedCards:     map[string][]string{},
		Venganzas:      map[string]int{},
		EndReason:      s.EndReason,
		CreatedAt:      s.CreatedAt.UTC(),
	}
	for p, held := range s.SavedCards {
		sv.SavedCards[p] = savedIDs(held)
	}
	for _, v := range s.Venganzas {
		sv.Venganzas[v.Player]++
	}
	if !s.StartedAt.IsZero() {
		t := s.StartedAt.UTC()
		sv.StartedAt = &t
	}
	if !s.EndedAt.IsZero() {
		t := s.EndedAt.UTC()
		sv.EndedAt = &t
	}
	return sv
}

func savedIDs(held []game.SavedCard) []string {
	out := make([]string, 0, len(held))
	for _, sc := range held {
		out = append(out, sc.Card.ID())
	}
	return out
}

func rulesView(rules map[game.Rank]string) map[string]string {
	out := make(map[string]string, len(rules))
	for rank, text := range rules {
		out[rank.String()] = text
	}
	return out
}
