package ledger

import (
	"github.com/google/uuid"
	"github.com/yieldledger/yieldledger/pkg/types"
)

// emit stamps identity and time onto an event and hands it to the sink.
// Must be called with the ledger mutex held so event order matches commit
// order. A nil sink drops events.
func (l *Ledger) emit(ev *types.Event) {
	if l.sink == nil {
		return
	}
	ev.ID = uuid.New().String()
	ev.At = l.clock()
	l.sink.Emit(ev)
}
