package broadcast

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/jgivc/mediafetch/internal/entity"
)

// Observer is a live connection that receives every event as an encoded message.
type Observer interface {
	Send(ctx context.Context, msg []byte) error
}

type broadcaster struct {
	mu        sync.Mutex
	observers map[string]Observer
	log       *slog.Logger
}

func NewBroadcaster(log *slog.Logger) *broadcaster {
	return &broadcaster{
		observers: make(map[string]Observer),
		log:       log.With(slog.String("service", "Broadcaster")),
	}
}

func (b *broadcaster) Subscribe(o Observer) string {
	id := uuid.NewString()

	b.mu.Lock()
	b.observers[id] = o
	b.mu.Unlock()

	b.log.Debug("Observer subscribed", slog.String("observer", id))

	return id
}

func (b *broadcaster) Unsubscribe(id string) {
	b.mu.Lock()
	delete(b.observers, id)
	b.mu.Unlock()
}

// Publish delivers event to every observer once. Observers whose send fails are dropped.
func (b *broadcaster) Publish(ctx context.Context, event entity.Event) {
	msg, err := json.Marshal(event)
	if err != nil {
		b.log.Error("Cannot encode event", slog.Int64("id", event.ID), slog.Any("error", err))

		return
	}

	b.mu.Lock()
	targets := make(map[string]Observer, len(b.observers))
	for id, o := range b.observers {
		targets[id] = o
	}
	b.mu.Unlock()

	var failed []string
	for id, o := range targets {
		if err := o.Send(ctx, msg); err != nil {
			b.log.Debug("Drop observer", slog.String("observer", id), slog.Any("error", err))
			failed = append(failed, id)
		}
	}

	if len(failed) < 1 {
		return
	}

	b.mu.Lock()
	for _, id := range failed {
		delete(b.observers, id)
	}
	b.mu.Unlock()
}

func (b *broadcaster) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	return len(b.observers)
}
