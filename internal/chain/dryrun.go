package chain

import (
	"context"
	"log/slog"
	"math/big"

	"github.com/google/uuid"
)

// DryRun is a Submitter that never touches the chain. Every operation
// succeeds with a synthetic transaction id and a fixed gas charge.
type DryRun struct {
	gasUsed uint64
	logger  *slog.Logger
}

// NewDryRun creates a DryRun charging gasUsed per operation.
func NewDryRun(gasUsed uint64, logger *slog.Logger) *DryRun {
	if logger == nil {
		logger = slog.Default()
	}
	return &DryRun{gasUsed: gasUsed, logger: logger}
}

func (d *DryRun) Submit(ctx context.Context, op Op) (TxReceipt, error) {
	if err := ctx.Err(); err != nil {
		return TxReceipt{}, err
	}
	id := "dryrun-" + uuid.NewString()
	d.logger.Info("dry-run submit",
		"tx", id,
		"kind", op.Kind,
		"venue", op.Venue,
		"asset", op.Asset,
		"amount", op.Amount.String(),
	)
	return TxReceipt{ID: id, GasUsed: new(big.Int).SetUint64(d.gasUsed)}, nil
}

// Simulated is a Client with a fixed balance and gas price, used when no
// RPC endpoint is configured.
type Simulated struct {
	balance  *big.Int
	gasPrice *big.Int
	sub      Submitter
}

// NewSimulated creates a Simulated client submitting through sub.
func NewSimulated(balance, gasPrice *big.Int, sub Submitter) *Simulated {
	return &Simulated{balance: balance, gasPrice: gasPrice, sub: sub}
}

func (s *Simulated) Balance(context.Context) (*big.Int, error) {
	return new(big.Int).Set(s.balance), nil
}

func (s *Simulated) GasPrice(context.Context) (*big.Int, error) {
	return new(big.Int).Set(s.gasPrice), nil
}

func (s *Simulated) Deposit(ctx context.Context, venue, asset string, amount *big.Int) (TxReceipt, error) {
	return s.sub.Submit(ctx, Op{Kind: OpDeposit, Venue: venue, Asset: asset, Amount: amount})
}

func (s *Simulated) Withdraw(ctx context.Context, venue, asset string, amount *big.Int) (TxReceipt, error) {
	return s.sub.Submit(ctx, Op{Kind: OpWithdraw, Venue: venue, Asset: asset, Amount: amount})
}
