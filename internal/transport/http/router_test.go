package httptransport

import (
	"bytes"
	"encoding/json"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"cultura-chupistica/internal/gateway"
	"cultura-chupistica/internal/ws"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	reg := gateway.NewRegistry(gateway.RegistryConfig{}, rand.New(rand.NewSource(1)), time.Now, nil)
	d := gateway.NewDispatcher(reg, time.Now)
	srv := httptest.NewServer(NewRouter(d, ws.NewServer(reg, d, 32), nil))
	t.Cleanup(srv.Close)
	return srv
}

func postCommand(t *testing.T, srv *httptest.Server, cmdType, code string, payload any) (*http.Response, gateway.Response) {
	t.Helper()
	env := map[string]any{"type": cmdType, "payload": payload}
	if code != "" {
		env["code"] = code
	}
	body, _ := json.Marshal(env)
	resp, err := http.Post(srv.URL+"/api/command", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("POST /api/command: %v", err)
	}
	defer resp.Body.Close()
	var out gateway.Response
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return resp, out
}

func TestCommandEndpointHappyPath(t *testing.T) {
	srv := newTestServer(t)

	resp, out := postCommand(t, srv, "createGame", "", map[string]any{"playerId": "h", "customCode": "ABC123"})
	if resp.StatusCode != http.StatusOK || !out.OK {
		t.Fatalf("status = %d, body = %+v", resp.StatusCode, out)
	}
	data := out.Data.(map[string]any)
	if data["code"] != "ABC123" {
		t.Fatalf("code = %v", data["code"])
	}
}

func TestCommandEndpointErrorStatusMapping(t *testing.T) {
	srv := newTestServer(t)

	resp, out := postCommand(t, srv, "joinGame", "no!", map[string]any{"playerId": "p"})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("invalid code status = %d", resp.StatusCode)
	}
	if out.Error == nil || out.Error.Kind != gateway.KindInvalidGameCode {
		t.Fatalf("error = %+v", out.Error)
	}

	resp, out = postCommand(t, srv, "joinGame", "NOPE99", map[string]any{"playerId": "p"})
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("unknown game status = %d", resp.StatusCode)
	}
	if out.Error.Kind != gateway.KindGameNotFound {
		t.Fatalf("kind = %s", out.Error.Kind)
	}

	// a lone host cannot start; stateful failures surface as 409s
	postCommand(t, srv, "createGame", "", map[string]any{"playerId": "h", "customCode": "SOLO01"})
	resp, out = postCommand(t, srv, "startGame", "SOLO01", map[string]any{"playerId": "h"})
	if resp.StatusCode != http.StatusConflict || out.Error.Kind != gateway.KindWrongState {
		t.Fatalf("status = %d kind = %v", resp.StatusCode, out.Error)
	}
}

func TestMalformedEnvelope(t *testing.T) {
	srv := newTestServer(t)
	resp, err := http.Post(srv.URL+"/api/command", "application/json", strings.NewReader("{not json"))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}

func TestHealthz(t *testing.T) {
	srv := newTestServer(t)
	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var body map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body["status"] != "ok" {
		t.Fatalf("status = %q", body["status"])
	}
}

func TestWebSocketCommandAndEventStream(t *testing.T) {
	srv := newTestServer(t)

	postCommand(t, srv, "createGame", "", map[string]any{"playerId": "h", "customCode": "ABC123"})
	postCommand(t, srv, "joinGame", "ABC123", map[string]any{"playerId": "p2"})
	postCommand(t, srv, "startGame", "ABC123", map[string]any{"playerId": "h"})

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/games/ABC123/events"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	env, _ := json.Marshal(map[string]any{
		"type":    "drawCard",
		"payload": map[string]any{"playerId": "h"},
	})
	if err := conn.WriteMessage(websocket.TextMessage, env); err != nil {
		t.Fatalf("write: %v", err)
	}

	sawResponse := false
	sawCardDrawn := false
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for !sawResponse || !sawCardDrawn {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("read: %v (response=%v cardDrawn=%v)", err, sawResponse, sawCardDrawn)
		}
		var frame struct {
			Frame    string           `json:"frame"`
			Response gateway.Response `json:"response"`
			Event    gateway.Event    `json:"event"`
		}
		if err := json.Unmarshal(msg, &frame); err != nil {
			t.Fatalf("unmarshal frame: %v", err)
		}
		switch frame.Frame {
		case ws.FrameResponse:
			if !frame.Response.OK {
				t.Fatalf("command failed over ws: %+v", frame.Response.Error)
			}
			sawResponse = true
		case ws.FrameEvent:
			if frame.Event.Type == gateway.EventCardDrawn {
				if frame.Event.Seq == 0 {
					t.Fatal("event missing seq")
				}
				sawCardDrawn = true
			}
		}
	}
}

func TestWebSocketUnknownGame(t *testing.T) {
	srv := newTestServer(t)
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/games/NOPE99/events"
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err == nil {
		t.Fatal("dial succeeded for unknown game")
	}
	if resp == nil || resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %+v", resp)
	}
}
