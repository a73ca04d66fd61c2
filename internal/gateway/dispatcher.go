package gateway

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"cultura-chupistica/internal/game"
)

// DefaultCommandTimeout bounds commands whose envelope carries no deadline.
const DefaultCommandTimeout = 5 * time.Second

// Dispatcher converts external command envelopes into actor commands. It
// performs only stateless validation — shape, formats, rank validity —
// and defers every stateful check to the target actor, which is the source
// of truth. A stateless failure never touches an actor.
type Dispatcher struct {
	reg *Registry
	now func() time.Time
}

func NewDispatcher(reg *Registry, now func() time.Time) *Dispatcher {
	if now == nil {
		now = time.Now
	}
	return &Dispatcher{reg: reg, now: now}
}

type playerPayload struct {
	PlayerID string `json:"playerId"`
}

type createPayload struct {
	PlayerID   string `json:"playerId"`
	CustomCode string `json:"customCode,omitempty"`
}

type activatePayload struct {
	PlayerID string `json:"playerId"`
	CardID   string `json:"cardId"`
	CardType string `json:"cardType,omitempty"`
}

type venganzaPayload struct {
	PlayerID string `json:"playerId"`
	TargetID string `json:"targetId"`
}

type endPayload struct {
	PlayerID string `json:"playerId"`
	Reason   string `json:"reason,omitempty"`
}

type rulesPayload struct {
	PlayerID string            `json:"playerId"`
	Rules    map[string]string `json:"rules"`
}

// Dispatch validates env, resolves the target session and runs the command
// to completion, honoring the envelope deadline.
func (d *Dispatcher) Dispatch(ctx context.Context, env CommandEnvelope) Response {
	deadline := d.now().Add(DefaultCommandTimeout)
	if env.DeadlineMs > 0 {
		deadline = d.now().Add(time.Duration(env.DeadlineMs) * time.Millisecond)
	}

	if env.Type == "createGame" {
		return d.createGame(env)
	}

	cmd, resp := d.buildCommand(env)
	if cmd == nil {
		return resp
	}
	code := NormalizeCode(env.Code)
	if !ValidCode(code) {
		return errResponse(env.Type, Errf(KindInvalidGameCode, "code must be 4-10 chars of A-Z0-9"))
	}
	actor, ok := d.reg.Lookup(code)
	if !ok {
		return errResponse(env.Type, Errf(KindGameNotFound, "no session with code "+code))
	}
	res := actor.Do(ctx, cmd, deadline)
	if res.Err != nil {
		return errResponse(env.Type, res.Err)
	}
	return okResponse(env.Type, res.Output)
}

func (d *Dispatcher) createGame(env CommandEnvelope) Response {
	var p createPayload
	if err := json.Unmarshal(payloadOrEmpty(env), &p); err != nil {
		return errResponse(env.Type, Errf(KindInvalidPlayerID, "malformed payload"))
	}
	if !game.ValidParticipantID(p.PlayerID) {
		return errResponse(env.Type, Errf(KindInvalidPlayerID, "playerId must be 1-50 chars after trim"))
	}
	actor, err := d.reg.Create(strings.TrimSpace(p.PlayerID), p.CustomCode)
	if err != nil {
		return errResponse(env.Type, err)
	}
	return okResponse(env.Type, map[string]any{
		"code": actor.Code(),
		"host": strings.TrimSpace(p.PlayerID),
	})
}

// buildCommand runs every stateless check for env and returns the actor
// command, or a ready error response when validation fails.
func (d *Dispatcher) buildCommand(env CommandEnvelope) (Command, Response) {
	raw := payloadOrEmpty(env)
	fail := func(err error) (Command, Response) { return nil, errResponse(env.Type, err) }

	switch env.Type {
	case "joinGame", "leaveGame", "startGame", "drawCard", "resetRules":
		var p playerPayload
		if err := json.Unmarshal(raw, &p); err != nil || !game.ValidParticipantID(p.PlayerID) {
			return fail(Errf(KindInvalidPlayerID, "playerId must be 1-50 chars after trim"))
		}
		id := strings.TrimSpace(p.PlayerID)
		switch env.Type {
		case "joinGame":
			return Join{Player: id}, Response{}
		case "leaveGame":
			return Leave{Player: id}, Response{}
		case "startGame":
			return Start{Player: id}, Response{}
		case "drawCard":
			return Draw{Player: id}, Response{}
		default:
			return ResetRules{Player: id}, Response{}
		}

	case "activateCard":
		var p activatePayload
		if err := json.Unmarshal(raw, &p); err != nil || !game.ValidParticipantID(p.PlayerID) {
			return fail(Errf(KindInvalidPlayerID, "playerId must be 1-50 chars after trim"))
		}
		card, err := game.ParseCardID(p.CardID)
		if err != nil {
			return fail(Errf(KindInvalidCard, "cardId must look like 5_hearts"))
		}
		if p.CardType != "" {
			rank, ok := game.ParseRank(p.CardType)
			if !ok || (rank != game.Five && rank != game.Nine) {
				return fail(Errf(KindInvalidCardType, "cardType must be 5 or 9"))
			}
			if rank != card.Rank {
				return fail(Errf(KindInvalidCardType, "cardType does not match cardId"))
			}
		}
		return Activate{Player: strings.TrimSpace(p.PlayerID), CardID: card.ID()}, Response{}

	case "useVenganza":
		var p venganzaPayload
		if err := json.Unmarshal(raw, &p); err != nil || !game.ValidParticipantID(p.PlayerID) {
			return fail(Errf(KindInvalidPlayerID, "playerId must be 1-50 chars after trim"))
		}
		if !game.ValidParticipantID(p.TargetID) {
			return fail(Errf(KindInvalidTargetPlayer, "targetId must be 1-50 chars after trim"))
		}
		return ConsumeVenganza{
			Player: strings.TrimSpace(p.PlayerID),
			Target: strings.TrimSpace(p.TargetID),
		}, Response{}

	case "endGame":
		var p endPayload
		if err := json.Unmarshal(raw, &p); err != nil || !game.ValidParticipantID(p.PlayerID) {
			return fail(Errf(KindInvalidPlayerID, "playerId must be 1-50 chars after trim"))
		}
		return End{Player: strings.TrimSpace(p.PlayerID), Reason: p.Reason}, Response{}

	case "updateRules":
		var p rulesPayload
		if err := json.Unmarshal(raw, &p); err != nil || !game.ValidParticipantID(p.PlayerID) {
			return fail(Errf(KindInvalidPlayerID, "playerId must be 1-50 chars after trim"))
		}
		if len(p.Rules) == 0 {
			return fail(Errf(KindInvalidRules, "rules must be a non-empty map of rank to text"))
		}
		for key, text := range p.Rules {
			if _, ok := game.ParseRank(key); !ok {
				return fail(Errf(KindInvalidRules, "unknown rank "+key))
			}
			if strings.TrimSpace(text) == "" {
				return fail(Errf(KindInvalidRules, "rule text for "+key+" is empty"))
			}
		}
		return UpdateRules{Player: strings.TrimSpace(p.PlayerID), Rules: p.Rules}, Response{}

	case "getRules":
		return GetRules{}, Response{}
	case "getGameState":
		return GetState{}, Response{}
	case "getHistory":
		return GetHistory{}, Response{}
	case "getStats":
		return GetStats{}, Response{}
	case "getFinalSummary":
		return GetFinalSummary{}, Response{}
	case "getSnapshot":
		return GetSnapshot{}, Response{}

	default:
		return fail(Errf(KindInvalidCommand, "unknown command type "+env.Type))
	}
}

func payloadOrEmpty(env CommandEnvelope) []byte {
	if len(env.Payload) == 0 {
		return []byte("{}")
	}
	return env.Payload
}
