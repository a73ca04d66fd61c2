package gateway

import (
	"context"
	"encoding/json"
	"math/rand"
	"testing"
	"time"
)

func newTestDispatcher(t *testing.T) (*Dispatcher, *Registry) {
	t.Helper()
	now := t0
	reg := NewRegistry(RegistryConfig{}, rand.New(rand.NewSource(1)), func() time.Time { return now }, nil)
	return NewDispatcher(reg, func() time.Time { return now }), reg
}

func envelope(t *testing.T, cmdType, code string, payload any) CommandEnvelope {
	t.Helper()
	raw, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return CommandEnvelope{Type: cmdType, Code: code, Payload: raw}
}

func dispatchOK(t *testing.T, d *Dispatcher, env CommandEnvelope) Response {
	t.Helper()
	resp := d.Dispatch(context.Background(), env)
	if !resp.OK {
		t.Fatalf("%s failed: %+v", env.Type, resp.Error)
	}
	return resp
}

func wantKind(t *testing.T, resp Response, kind Kind) {
	t.Helper()
	if resp.OK {
		t.Fatalf("expected %s, got success", kind)
	}
	if resp.Error.Kind != kind {
		t.Fatalf("kind = %s, want %s", resp.Error.Kind, kind)
	}
}

func TestDispatcherCreateJoinStartScenario(t *testing.T) {
	d, reg := newTestDispatcher(t)

	resp := dispatchOK(t, d, envelope(t, "createGame", "", map[string]any{
		"playerId": "h", "customCode": "ABC123",
	}))
	code := resp.Data.(map[string]any)["code"].(string)
	if code != "ABC123" {
		t.Fatalf("code = %s", code)
	}

	dispatchOK(t, d, envelope(t, "joinGame", "ABC123", map[string]any{"playerId": "p2"}))
	dispatchOK(t, d, envelope(t, "joinGame", "abc123", map[string]any{"playerId": "p3"}))
	dispatchOK(t, d, envelope(t, "startGame", "ABC123", map[string]any{"playerId": "h"}))

	actor, ok := reg.Lookup("ABC123")
	if !ok {
		t.Fatal("session vanished")
	}
	// gameCreated, two joins, gameStarted: seqs 1..4
	if actor.Bus().Seq() != 4 {
		t.Fatalf("bus seq = %d, want 4", actor.Bus().Seq())
	}
}

func TestDispatcherStatelessValidationNeverTouchesActor(t *testing.T) {
	d, reg := newTestDispatcher(t)

	wantKind(t, d.Dispatch(context.Background(),
		envelope(t, "joinGame", "ABC123", map[string]any{"playerId": "  "})),
		KindInvalidPlayerID)
	wantKind(t, d.Dispatch(context.Background(),
		envelope(t, "joinGame", "no!", map[string]any{"playerId": "p"})),
		KindInvalidGameCode)
	wantKind(t, d.Dispatch(context.Background(),
		envelope(t, "joinGame", "NOPE99", map[string]any{"playerId": "p"})),
		KindGameNotFound)
	if reg.Count() != 0 {
		t.Fatal("validation created sessions")
	}
}

func TestDispatcherPlayerIDTooLong(t *testing.T) {
	d, _ := newTestDispatcher(t)
	long := make([]byte, 51)
	for i := range long {
		long[i] = 'x'
	}
	wantKind(t, d.Dispatch(context.Background(),
		envelope(t, "createGame", "", map[string]any{"playerId": string(long)})),
		KindInvalidPlayerID)
}

func TestDispatcherActivatePayloadValidation(t *testing.T) {
	d, _ := newTestDispatcher(t)
	dispatchOK(t, d, envelope(t, "createGame", "", map[string]any{"playerId": "h", "customCode": "ABC123"}))

	wantKind(t, d.Dispatch(context.Background(),
		envelope(t, "activateCard", "ABC123", map[string]any{"playerId": "h", "cardId": "garbage"})),
		KindInvalidCard)
	wantKind(t, d.Dispatch(context.Background(),
		envelope(t, "activateCard", "ABC123", map[string]any{"playerId": "h", "cardId": "5_hearts", "cardType": "J"})),
		KindInvalidCardType)
	wantKind(t, d.Dispatch(context.Background(),
		envelope(t, "activateCard", "ABC123", map[string]any{"playerId": "h", "cardId": "5_hearts", "cardType": "9"})),
		KindInvalidCardType)
}

func TestDispatcherVenganzaNeedsTarget(t *testing.T) {
	d, _ := newTestDispatcher(t)
	dispatchOK(t, d, envelope(t, "createGame", "", map[string]any{"playerId": "h", "customCode": "ABC123"}))
	wantKind(t, d.Dispatch(context.Background(),
		envelope(t, "useVenganza", "ABC123", map[string]any{"playerId": "h"})),
		KindInvalidTargetPlayer)
}

func TestDispatcherRulesValidation(t *testing.T) {
	d, _ := newTestDispatcher(t)
	dispatchOK(t, d, envelope(t, "createGame", "", map[string]any{"playerId": "h", "customCode": "ABC123"}))

	wantKind(t, d.Dispatch(context.Background(),
		envelope(t, "updateRules", "ABC123", map[string]any{"playerId": "h", "rules": map[string]string{}})),
		KindInvalidRules)
	wantKind(t, d.Dispatch(context.Background(),
		envelope(t, "updateRules", "ABC123", map[string]any{"playerId": "h", "rules": map[string]string{"X": "texto"}})),
		KindInvalidRules)
	wantKind(t, d.Dispatch(context.Background(),
		envelope(t, "updateRules", "ABC123", map[string]any{"playerId": "h", "rules": map[string]string{"2": " "}})),
		KindInvalidRules)
	dispatchOK(t, d, envelope(t, "updateRules", "ABC123", map[string]any{
		"playerId": "h", "rules": map[string]string{"2": "doble para ti"},
	}))

	resp := dispatchOK(t, d, envelope(t, "getRules", "ABC123", nil))
	rules := resp.Data.(map[string]any)["rules"].(map[string]string)
	if rules["2"] != "doble para ti" {
		t.Fatalf("rules[2] = %q", rules["2"])
	}

	dispatchOK(t, d, envelope(t, "resetRules", "ABC123", map[string]any{"playerId": "h"}))
	resp = dispatchOK(t, d, envelope(t, "getRules", "ABC123", nil))
	rules = resp.Data.(map[string]any)["rules"].(map[string]string)
	if rules["2"] == "doble para ti" {
		t.Fatal("reset kept the custom rule")
	}
}

func TestDispatcherUnknownCommand(t *testing.T) {
	d, _ := newTestDispatcher(t)
	wantKind(t, d.Dispatch(context.Background(),
		envelope(t, "danceGame", "ABC123", nil)),
		KindInvalidCommand)
}

func TestDispatcherFullGameReadbacks(t *testing.T) {
	d, _ := newTestDispatcher(t)
	dispatchOK(t, d, envelope(t, "createGame", "", map[string]any{"playerId": "h", "customCode": "ABC123"}))
	dispatchOK(t, d, envelope(t, "joinGame", "ABC123", map[string]any{"playerId": "p2"}))
	dispatchOK(t, d, envelope(t, "startGame", "ABC123", map[string]any{"playerId": "h"}))

	resp := dispatchOK(t, d, envelope(t, "getGameState", "ABC123", nil))
	sv := resp.Data.(stateView)
	if sv.Status != "playing" || len(sv.Participants) != 2 {
		t.Fatalf("state = %+v", sv)
	}

	wantKind(t, d.Dispatch(context.Background(),
		envelope(t, "getFinalSummary", "ABC123", nil)),
		KindWrongState)

	dispatchOK(t, d, envelope(t, "endGame", "ABC123", map[string]any{"playerId": "h", "reason": "closing time"}))
	dispatchOK(t, d, envelope(t, "getFinalSummary", "ABC123", nil))
	dispatchOK(t, d, envelope(t, "getStats", "ABC123", nil))
	dispatchOK(t, d, envelope(t, "getHistory", "ABC123", nil))
}
