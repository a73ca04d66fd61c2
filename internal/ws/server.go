package ws

import (
	"context"
	"encoding/json"
	"expvar"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"cultura-chupistica/internal/gateway"
)

var (
	wsConnections      = expvar.NewInt("ws_connections_total")
	wsDroppedSlow      = expvar.NewInt("ws_dropped_slow_total")
	wsCommandsReceived = expvar.NewInt("ws_commands_total")
)

// Server upgrades observers of one session onto a socket that both streams
// the session's ordered events and accepts command envelopes.
type Server struct {
	registry   *gateway.Registry
	dispatcher *gateway.Dispatcher
	upgrader   websocket.Upgrader
	buffer     int
}

func NewServer(reg *gateway.Registry, d *gateway.Dispatcher, subscriberBuffer int) *Server {
	return &Server{
		registry:   reg,
		dispatcher: d,
		upgrader:   websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }},
		buffer:     subscriberBuffer,
	}
}

func (s *Server) HandleWS(w http.ResponseWriter, r *http.Request) {
	code := gateway.NormalizeCode(chi.URLParam(r, "code"))
	if !gateway.ValidCode(code) {
		http.Error(w, "invalid game code", http.StatusBadRequest)
		return
	}
	actor, ok := s.registry.Lookup(code)
	if !ok {
		http.Error(w, "game not found", http.StatusNotFound)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	wsConnections.Add(1)

	sub := actor.Subscribe(s.buffer)
	responses := make(chan gateway.Response, 8)
	done := make(chan struct{})
	writerGone := make(chan struct{})

	go s.writeLoop(conn, code, sub, responses, done, writerGone)
	s.readLoop(conn, code, responses, done, writerGone)

	actor.Bus().Unsubscribe(sub)
	_ = conn.Close()
}

// readLoop dispatches inbound command envelopes serially, preserving the
// order the client sent them. Disconnection only removes the subscriber;
// commands already enqueued still run to completion.
func (s *Server) readLoop(conn *websocket.Conn, code string, responses chan<- gateway.Response, done, writerGone chan struct{}) {
	defer close(done)
	reply := func(resp gateway.Response) bool {
		select {
		case responses <- resp:
			return true
		case <-writerGone:
			return false
		}
	}
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var env gateway.CommandEnvelope
		if err := json.Unmarshal(msg, &env); err != nil {
			if !reply(gateway.Response{
				OK:    false,
				Error: gateway.Errf(gateway.KindInvalidCommand, "malformed command envelope"),
			}) {
				return
			}
			continue
		}
		env.Code = code
		wsCommandsReceived.Add(1)
		if !reply(s.dispatcher.Dispatch(context.Background(), env)) {
			return
		}
	}
}

func (s *Server) writeLoop(conn *websocket.Conn, code string, sub *gateway.Subscriber, responses <-chan gateway.Response, done, writerGone chan struct{}) {
	defer close(writerGone)
	for {
		select {
		case <-done:
			return
		case resp := <-responses:
			if err := writeFrame(conn, ResponseFrame{Frame: FrameResponse, Response: resp}); err != nil {
				return
			}
		case ev, ok := <-sub.Events():
			if !ok {
				// dropped as a slow consumer or the session died
				wsDroppedSlow.Add(1)
				log.Debug().Str("code", code).Msg("subscriber stream closed")
				_ = writeFrame(conn, GoodbyeFrame{Frame: FrameGoodbye, Reason: "slow_consumer"})
				_ = conn.Close()
				return
			}
			if err := writeFrame(conn, EventFrame{Frame: FrameEvent, Event: ev}); err != nil {
				return
			}
		}
	}
}

func writeFrame(conn *websocket.Conn, frame any) error {
	data, err := json.Marshal(frame)
	if err != nil {
		return err
	}
	return conn.WriteMessage(websocket.TextMessage, data)
}
