package app

import (
	"context"
	"time"

	"github.com/yieldledger/yieldledger/internal/storage"
	"github.com/yieldledger/yieldledger/pkg/stream"
	"github.com/yieldledger/yieldledger/pkg/types"
	"go.uber.org/zap"
)

const recordTimeout = 5 * time.Second

// eventPump decouples event consumers from the ledger lock. Emit never
// blocks; a background worker persists events and fans them out to the
// websocket hub in emission order.
type eventPump struct {
	logger *zap.Logger
	store  storage.Storage
	hub    *stream.Hub
	ch     chan *types.Event
	done   chan struct{}
}

func newEventPump(logger *zap.Logger, store storage.Storage, hub *stream.Hub, buffer int) *eventPump {
	if buffer <= 0 {
		buffer = 256
	}
	return &eventPump{
		logger: logger,
		store:  store,
		hub:    hub,
		ch:     make(chan *types.Event, buffer),
		done:   make(chan struct{}),
	}
}

// Emit queues the event. When the buffer is full the event is dropped from
// the pump rather than stalling a ledger operation.
func (p *eventPump) Emit(ev *types.Event) {
	select {
	case p.ch <- ev:
	default:
		p.logger.Warn("event-pump-overflow",
			zap.String("event-id", ev.ID),
			zap.String("kind", string(ev.Kind)))
	}
}

// run drains the queue until Close.
func (p *eventPump) run() {
	defer close(p.done)

	for ev := range p.ch {
		ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
		err := p.store.RecordEvent(ctx, ev)
		cancel()
		if err != nil {
			p.logger.Error("event-record-failed",
				zap.String("event-id", ev.ID),
				zap.Error(err))
		}

		if p.hub != nil {
			p.hub.Emit(ev)
		}
	}
}

// Close stops intake and waits for the queue to drain.
func (p *eventPump) Close() {
	close(p.ch)
	<-p.done
}
