// Package chain is the blockchain collaborator used by the execution layer:
// balance and gas price reads over JSON-RPC, and deposit/withdraw
// submission through a pluggable Submitter.
package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
)

// ErrInvalidAccount is returned for account strings that are not hex
// addresses.
var ErrInvalidAccount = errors.New("invalid account address")

// TxReceipt identifies a submitted transaction and the gas it consumed.
type TxReceipt struct {
	ID      string   `json:"id"`
	GasUsed *big.Int `json:"gas_used"`
}

// Client is everything the execution layer needs from a chain.
type Client interface {
	Deposit(ctx context.Context, venue, asset string, amount *big.Int) (TxReceipt, error)
	Withdraw(ctx context.Context, venue, asset string, amount *big.Int) (TxReceipt, error)
	Balance(ctx context.Context) (*big.Int, error)
	GasPrice(ctx context.Context) (*big.Int, error)
}

// OpKind is the direction of a submitted operation.
type OpKind string

const (
	OpDeposit  OpKind = "deposit"
	OpWithdraw OpKind = "withdraw"
)

// Op is one deposit or withdraw handed to a Submitter.
type Op struct {
	Kind   OpKind
	Venue  string
	Asset  string
	Amount *big.Int
}

// Submitter signs and sends operations.
type Submitter interface {
	Submit(ctx context.Context, op Op) (TxReceipt, error)
}

// Reader is the read-only subset of ethclient.Client used here.
type Reader interface {
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
}

// RPC reads balances and gas prices from an Ethereum node and forwards
// deposits and withdrawals to its Submitter.
type RPC struct {
	reader    Reader
	account   common.Address
	submitter Submitter
	close     func()
}

// DialRPC connects to the JSON-RPC endpoint at url. account is the wallet
// whose native balance funds gas.
func DialRPC(ctx context.Context, url, account string, sub Submitter) (*RPC, error) {
	if !common.IsHexAddress(account) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAccount, account)
	}
	ec, err := ethclient.DialContext(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("dial rpc: %w", err)
	}
	r := NewRPC(ec, common.HexToAddress(account), sub)
	r.close = ec.Close
	return r, nil
}

// NewRPC wraps an existing reader.
func NewRPC(reader Reader, account common.Address, sub Submitter) *RPC {
	return &RPC{reader: reader, account: account, submitter: sub}
}

// Close releases the underlying connection, if any.
func (r *RPC) Close() {
	if r.close != nil {
		r.close()
	}
}

// Account returns the funding wallet address.
func (r *RPC) Account() common.Address { return r.account }

func (r *RPC) Balance(ctx context.Context) (*big.Int, error) {
	bal, err := r.reader.BalanceAt(ctx, r.account, nil)
	if err != nil {
		return nil, fmt.Errorf("balance of %s: %w", r.account.Hex(), err)
	}
	return bal, nil
}

func (r *RPC) GasPrice(ctx context.Context) (*big.Int, error) {
	price, err := r.reader.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("suggest gas price: %w", err)
	}
	return price, nil
}

func (r *RPC) Deposit(ctx context.Context, venue, asset string, amount *big.Int) (TxReceipt, error) {
	return r.submit(ctx, Op{Kind: OpDeposit, Venue: venue, Asset: asset, Amount: amount})
}

func (r *RPC) Withdraw(ctx context.Context, venue, asset string, amount *big.Int) (TxReceipt, error) {
	return r.submit(ctx, Op{Kind: OpWithdraw, Venue: venue, Asset: asset, Amount: amount})
}

func (r *RPC) submit(ctx context.Context, op Op) (TxReceipt, error) {
	if r.submitter == nil {
		return TxReceipt{}, fmt.Errorf("%s %s on %s: no submitter configured", op.Kind, op.Asset, op.Venue)
	}
	if op.Amount == nil || op.Amount.Sign() <= 0 {
		return TxReceipt{}, fmt.Errorf("%s %s on %s: amount must be positive", op.Kind, op.Asset, op.Venue)
	}
	rcpt, err := r.submitter.Submit(ctx, op)
	if err != nil {
		return TxReceipt{}, fmt.Errorf("%s %s on %s: %w", op.Kind, op.Asset, op.Venue, err)
	}
	return rcpt, nil
}
