package http

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
	"github.com/sirupsen/logrus"
	"quicktrivia/internal/domain"
)

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type answerPayload struct {
	Choice int `json:"choice"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

type errorPayload struct {
	Message string `json:"message"`
}

// stream serializes writes to one websocket connection. Producers push into
// send; a single writer goroutine owns the connection.
type stream struct {
	conn         *websocket.Conn
	log          logrus.FieldLogger
	send         chan outboundMessage[any]
	closeSignals chan struct{}
	writerDone   chan struct{}
}

func newStream(conn *websocket.Conn, log logrus.FieldLogger) *stream {
	st := &stream{
		conn:         conn,
		log:          log,
		send:         make(chan outboundMessage[any], 16),
		closeSignals: make(chan struct{}),
		writerDone:   make(chan struct{}),
	}
	go func() {
		defer close(st.writerDone)
		for msg := range st.send {
			if err := conn.WriteJSON(msg); err != nil {
				log.WithError(err).Debug("ws write failed")
				return
			}
		}
	}()
	return st
}

func (st *stream) push(typ string, payload any) bool {
	select {
	case st.send <- outboundMessage[any]{Type: typ, Payload: payload}:
		return true
	case <-st.closeSignals:
		return false
	case <-st.writerDone:
		return false
	}
}

func (st *stream) fail(err error) {
	st.push("error", errorPayload{Message: err.Error()})
}

// forward copies updates, rendered by view, into the stream until either side closes.
func forward[T any](st *stream, typ string, updates <-chan T, view func(T) any) chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			select {
			case update, ok := <-updates:
				if !ok {
					return
				}
				if !st.push(typ, view(update)) {
					return
				}
			case <-st.closeSignals:
				return
			}
		}
	}()
	return done
}

// shutdown stops the forwarder, drains the writer and must run once.
func (st *stream) shutdown(forwarderDone chan struct{}) {
	close(st.closeSignals)
	<-forwarderDone
	close(st.send)
	<-st.writerDone
}

// serveSessionWS streams the player's session snapshots and accepts
// "answer" and "reset" messages.
func (s *Server) serveSessionWS(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	playerID, ok := s.identify(w, r)
	if !ok {
		return
	}
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.WithError(err).Warn("ws upgrade failed")
		return
	}
	defer conn.Close()

	log := s.log.WithField("player_id", playerID)
	updates, cancel, err := s.service.Subscribe(r.Context(), playerID)
	if err != nil {
		_ = conn.WriteJSON(outboundMessage[errorPayload]{Type: "error", Payload: errorPayload{Message: err.Error()}})
		return
	}
	// runs after cancel, once this stream no longer watches the session
	defer s.service.Release(playerID)
	defer cancel()

	st := newStream(conn, log)
	forwarderDone := forward(st, "state", updates, func(state domain.SessionState) any { return state })
	defer st.shutdown(forwarderDone)

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			return
		}
		switch inbound.Type {
		case "answer":
			var payload answerPayload
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
				st.push("error", errorPayload{Message: "invalid answer payload"})
				continue
			}
			// the new state reaches the client through the subscription
			if _, err := s.service.Answer(r.Context(), playerID, payload.Choice); err != nil {
				st.fail(err)
			}
		case "reset":
			if _, err := s.service.Reset(r.Context(), playerID); err != nil {
				st.fail(err)
			}
		default:
			st.push("error", errorPayload{Message: "unsupported message type"})
		}
	}
}

// serveRoomWS joins the room, streams room updates and accepts "settings"
// messages carrying a settings patch.
func (s *Server) serveRoomWS(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	playerID, ok := s.identify(w, r)
	if !ok {
		return
	}
	roomID := ps.ByName("id")
	if _, _, err := s.service.JoinRoom(r.Context(), playerID, roomID); err != nil {
		s.writeError(w, err)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.WithError(err).Warn("ws upgrade failed")
		return
	}
	defer conn.Close()

	log := s.log.WithFields(logrus.Fields{"player_id": playerID, "room_id": roomID})
	rooms, cancel, err := s.service.WatchRoom(r.Context(), playerID, roomID)
	if err != nil {
		_ = conn.WriteJSON(outboundMessage[errorPayload]{Type: "error", Payload: errorPayload{Message: err.Error()}})
		return
	}
	defer cancel()

	st := newStream(conn, log)
	forwarderDone := forward(st, "room", rooms, func(room domain.Room) any { return publicRoom(room) })
	defer st.shutdown(forwarderDone)

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			return
		}
		switch inbound.Type {
		case "settings":
			var patch domain.SettingsPatch
			if err := json.Unmarshal(inbound.Payload, &patch); err != nil {
				st.push("error", errorPayload{Message: "invalid settings payload"})
				continue
			}
			if _, err := s.service.UpdateSettings(r.Context(), playerID, patch); err != nil {
				st.fail(err)
			}
		default:
			st.push("error", errorPayload{Message: "unsupported message type"})
		}
	}
}

// publicRoom hides the question pool from clients. The pool is only for sessions.
func publicRoom(room domain.Room) domain.Room {
	room.Pool = nil
	room.PoolSettings = nil
	return room
}
