// Package assets defines the boundary to the external custody collaborator
// that moves base and bonus tokens. The ledger never touches balances
// directly: it stages a batch of transfers and hands it to a Mover, which
// settles the whole batch atomically or not at all.
package assets

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

// Transfer is a single asset movement inside a settlement batch.
type Transfer struct {
	Token  common.Address
	From   common.Address
	To     common.Address
	Amount *big.Int
}

// Mover settles transfer batches. Settle is all-or-nothing: on error no
// transfer in the batch has been applied, and the triggering ledger
// operation must abort with no observable effect.
type Mover interface {
	Settle(ctx context.Context, transfers []Transfer) error
}

// LogMover is a Mover that records settlements to the log and always
// succeeds. Used by the serve command when no custody backend is attached.
type LogMover struct {
	logger *zap.Logger
}

// NewLogMover creates a log-only mover.
func NewLogMover(logger *zap.Logger) *LogMover {
	return &LogMover{logger: logger}
}

// Settle logs each transfer in the batch.
func (m *LogMover) Settle(_ context.Context, transfers []Transfer) error {
	for _, tr := range transfers {
		m.logger.Info("transfer-settled",
			zap.String("token", tr.Token.Hex()),
			zap.String("from", tr.From.Hex()),
			zap.String("to", tr.To.Hex()),
			zap.String("amount", tr.Amount.String()))
	}
	return nil
}
