package wshandler

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jgivc/mediafetch/internal/service/broadcast"
)

type Broadcaster interface {
	Subscribe(o broadcast.Observer) string
	Unsubscribe(id string)
}

// connObserver serializes writes to one websocket connection.
type connObserver struct {
	mu           sync.Mutex
	conn         *websocket.Conn
	writeTimeout time.Duration
}

func (o *connObserver) Send(ctx context.Context, msg []byte) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	deadline := time.Now().Add(o.writeTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	if err := o.conn.SetWriteDeadline(deadline); err != nil {
		return err
	}

	return o.conn.WriteMessage(websocket.TextMessage, msg)
}

// NewWSHandler upgrades the request and streams every published event to the client.
// Client messages are read and dropped; the read loop only detects disconnects.
func NewWSHandler(b Broadcaster, writeTimeout time.Duration, log *slog.Logger) http.HandlerFunc {
	log = log.With(slog.String("handler", "WSHandler"))

	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool { return true },
	}

	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Warn("Cannot upgrade connection", slog.String("remote", r.RemoteAddr), slog.Any("error", err))

			return
		}
		defer conn.Close()

		id := b.Subscribe(&connObserver{conn: conn, writeTimeout: writeTimeout})
		defer b.Unsubscribe(id)

		log.Debug("Client connected", slog.String("observer", id), slog.String("remote", r.RemoteAddr))

		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				log.Debug("Client disconnected", slog.String("observer", id), slog.Any("error", err))

				return
			}
		}
	}
}
