package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"chatd/pkg/types"
)

// upgrader accepts any origin unless CORS is configured, in which case the
// Origin header must match one of the allowed origins.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     checkOrigin,
}

func checkOrigin(r *http.Request) bool {
	if !corsEnabled {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	for _, o := range corsAllowedOrigins {
		if o == "*" || strings.EqualFold(o, origin) || strings.EqualFold(o, u.Host) {
			return true
		}
	}
	return false
}

// handleWS serves the bidirectional message channel: the client sends
// requests as JSON frames and receives every controller event. A rejected
// request is answered on the same connection with an error event.
func (s *server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied.
		return
	}
	conn.SetReadLimit(maxBodyBytes)
	id := uuid.NewString()
	log := logger().With().Str("conn", id).Logger()
	log.Debug().Msg("websocket connected")

	events, unsubscribe := s.hub.Subscribe()
	ctx, cancel := streamContext(r)
	replies := make(chan types.Event, 8)
	writerDone := make(chan struct{})

	// The writer owns all writes to conn. Closing conn on exit unblocks the
	// reader below.
	go func() {
		defer close(writerDone)
		defer conn.Close()
		for {
			var ev types.Event
			select {
			case <-ctx.Done():
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, ""),
					time.Now().Add(time.Second))
				return
			case ev = <-events:
			case ev = <-replies:
			}
			_ = conn.SetWriteDeadline(time.Now().Add(eventWriteTimeout))
			if err := conn.WriteJSON(ev); err != nil {
				log.Debug().Err(err).Msg("websocket write failed")
				cancel()
				return
			}
		}
	}()

	defer func() {
		cancel()
		<-writerDone
		unsubscribe()
		log.Debug().Msg("websocket closed")
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
				log.Debug().Err(err).Msg("websocket read failed")
			}
			return
		}
		var req types.Request
		if jerr := json.Unmarshal(data, &req); jerr != nil {
			err = fmt.Errorf("%w: invalid JSON frame", types.ErrInvalidRequest)
		} else {
			err = s.svc.Send(req)
		}
		if err == nil {
			continue
		}
		if statusFor(err) == http.StatusTooManyRequests {
			IncrementBackpressure("inbox_full")
		}
		reply := types.Event{Status: types.StatusError, ModelID: req.ModelID, Error: err.Error()}
		select {
		case replies <- reply:
		case <-ctx.Done():
			return
		}
	}
}
