package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"live-quiz-service/internal/app"
	"live-quiz-service/internal/domain"
)

// WSHandler speaks the room command protocol over a websocket: a connection
// sends typed commands and receives the room's event stream.
type WSHandler struct {
	service  *app.RoomService
	gateway  *app.Gateway
	upgrader websocket.Upgrader
}

func NewWSHandler(service *app.RoomService, gateway *app.Gateway) *WSHandler {
	return &WSHandler{
		service: service,
		gateway: gateway,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type outboundMessage struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

type createRoomPayload struct {
	QuizID string `json:"quizId"`
	UserID string `json:"userId"`
}

type reconnectHostPayload struct {
	RoomID string `json:"roomId"`
	UserID string `json:"userId"`
}

type joinRoomPayload struct {
	RoomID   string `json:"roomId"`
	Username string `json:"username"`
}

type roomPayload struct {
	RoomID string `json:"roomId"`
}

type votePayload struct {
	RoomID   string `json:"roomId"`
	OptionID string `json:"optionId"`
}

// ServeWS upgrades the request and dispatches commands into the room service.
// Each connection gets a generated connection ID that doubles as its
// participant identity.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("ws upgrade failed")
		return
	}
	defer conn.Close()

	connID := uuid.NewString()

	send := make(chan outboundMessage, 32)
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for msg := range send {
			if err := conn.WriteJSON(msg); err != nil {
				log.Debug().Err(err).Str("conn_id", connID).Msg("ws write failed")
				return
			}
		}
	}()

	done := make(chan struct{})
	var pumps sync.WaitGroup
	var unsubscribe func()

	// subscribe pipes a room's event stream into this connection's writer.
	// A connection follows one room at a time; switching rooms drops the
	// previous subscription.
	subscribe := func(roomID string) {
		if unsubscribe != nil {
			unsubscribe()
		}
		events, cancel := h.gateway.Subscribe(roomID, connID)
		unsubscribe = cancel
		pumps.Add(1)
		go func() {
			defer pumps.Done()
			for {
				select {
				case ev, ok := <-events:
					if !ok {
						return
					}
					select {
					case send <- outboundMessage{Type: string(ev.Type), Payload: ev.Payload}:
					case <-done:
						return
					}
				case <-done:
					return
				}
			}
		}()
	}

	sendError := func(err error) {
		send <- outboundMessage{Type: string(app.EventError), Payload: app.ErrorPayload{
			Kind:    errKind(err),
			Message: err.Error(),
		}}
	}
	badPayload := func() {
		send <- outboundMessage{Type: string(app.EventError), Payload: app.ErrorPayload{
			Kind:    "badRequest",
			Message: "invalid command payload",
		}}
	}

	ctx := r.Context()
	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		switch inbound.Type {
		case "CREATE_ROOM":
			var p createRoomPayload
			if err := json.Unmarshal(inbound.Payload, &p); err != nil {
				badPayload()
				continue
			}
			roomID, err := h.service.CreateRoom(ctx, connID, p.QuizID, p.UserID)
			if err != nil {
				sendError(err)
				continue
			}
			subscribe(roomID)
			send <- outboundMessage{Type: "ROOM_CREATED", Payload: roomPayload{RoomID: roomID}}

		case "RECONNECT_HOST":
			var p reconnectHostPayload
			if err := json.Unmarshal(inbound.Payload, &p); err != nil {
				badPayload()
				continue
			}
			snapshot, err := h.service.ReconnectHost(ctx, connID, p.RoomID, p.UserID)
			if err != nil {
				sendError(err)
				continue
			}
			subscribe(app.NormalizeRoomID(p.RoomID))
			for _, ev := range snapshot {
				send <- outboundMessage{Type: string(ev.Type), Payload: ev.Payload}
			}

		case "JOIN_ROOM":
			var p joinRoomPayload
			if err := json.Unmarshal(inbound.Payload, &p); err != nil {
				badPayload()
				continue
			}
			roster, err := h.service.JoinRoom(ctx, connID, p.RoomID, p.Username)
			if err != nil {
				sendError(err)
				continue
			}
			subscribe(app.NormalizeRoomID(p.RoomID))
			send <- outboundMessage{Type: string(app.EventRoster), Payload: roster}

		case "START_QUESTION":
			var p roomPayload
			if err := json.Unmarshal(inbound.Payload, &p); err != nil {
				badPayload()
				continue
			}
			if err := h.service.StartQuestion(ctx, connID, p.RoomID); err != nil {
				sendError(err)
			}

		case "SUBMIT_VOTE":
			var p votePayload
			if err := json.Unmarshal(inbound.Payload, &p); err != nil {
				badPayload()
				continue
			}
			if err := h.service.SubmitVote(ctx, connID, p.RoomID, p.OptionID); err != nil {
				sendError(err)
			}

		case "TERMINATE_ROOM":
			var p roomPayload
			if err := json.Unmarshal(inbound.Payload, &p); err != nil {
				badPayload()
				continue
			}
			if err := h.service.TerminateRoom(ctx, connID, p.RoomID); err != nil {
				sendError(err)
			}

		default:
			send <- outboundMessage{Type: string(app.EventError), Payload: app.ErrorPayload{
				Kind:    "badRequest",
				Message: "unsupported command type",
			}}
		}
	}

	close(done)
	if unsubscribe != nil {
		unsubscribe()
	}
	pumps.Wait()
	close(send)
	<-writerDone
}

func errKind(err error) string {
	switch {
	case errors.Is(err, domain.ErrRoomNotFound):
		return "roomNotFound"
	case errors.Is(err, domain.ErrQuizNotFound):
		return "quizNotFound"
	case errors.Is(err, domain.ErrUnauthorized):
		return "unauthorized"
	default:
		return "internal"
	}
}
