// Package execution applies rebalance decisions against a chain client.
package execution

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/web3-frozen/yield-guardian/internal/chain"
	"github.com/web3-frozen/yield-guardian/internal/decision"
	"github.com/web3-frozen/yield-guardian/internal/metrics"
	"github.com/web3-frozen/yield-guardian/internal/risk"
)

// Policy decides how failed actions affect Result.Success.
type Policy string

const (
	// PolicyLenient reports success once validation passes, even if some
	// actions fail. Failures are still listed in Result.Failed.
	PolicyLenient Policy = "lenient"
	// PolicyStrict reports success only if every action succeeded.
	PolicyStrict Policy = "strict"
)

// ParsePolicy maps a config string to a Policy, defaulting to lenient.
func ParsePolicy(s string) Policy {
	if Policy(s) == PolicyStrict {
		return PolicyStrict
	}
	return PolicyLenient
}

// ActionFailure records one action that could not be applied.
type ActionFailure struct {
	Index  int             `json:"index"`
	Action decision.Action `json:"action"`
	Error  string          `json:"error"`
}

// Result is the outcome of applying one decision. TxIDs is shorter than the
// action list whenever an action failed or was a no-op.
type Result struct {
	Success   bool            `json:"success"`
	TxIDs     []string        `json:"tx_ids"`
	GasUsed   *big.Int        `json:"gas_used"`
	Error     string          `json:"error,omitempty"`
	Failed    []ActionFailure `json:"failed,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// Applier validates decisions and executes their actions in order.
type Applier struct {
	client  chain.Client
	maxRisk risk.Fraction
	policy  Policy
	logger  *slog.Logger
	now     func() time.Time
}

// NewApplier creates an Applier rejecting decisions whose post-trade risk
// exceeds maxRisk.
func NewApplier(client chain.Client, maxRisk risk.Fraction, policy Policy, logger *slog.Logger) *Applier {
	if logger == nil {
		logger = slog.Default()
	}
	if policy == "" {
		policy = PolicyLenient
	}
	return &Applier{client: client, maxRisk: maxRisk, policy: policy, logger: logger, now: time.Now}
}

// Apply executes d. Validation failures return an unsuccessful Result
// without submitting anything. Once validation passes every action is
// attempted; failures are logged and recorded, never rolled back.
func (a *Applier) Apply(ctx context.Context, d *decision.Decision) *Result {
	if err := a.validate(ctx, d); err != nil {
		a.logger.Warn("decision rejected", "error", err)
		return &Result{
			Success:   false,
			TxIDs:     []string{},
			GasUsed:   new(big.Int),
			Error:     err.Error(),
			Timestamp: a.now(),
		}
	}

	a.logger.Info("executing rebalance", "actions", len(d.Actions))

	res := &Result{TxIDs: []string{}, GasUsed: new(big.Int)}
	for i, act := range d.Actions {
		rcpt, executed, err := a.execute(ctx, act)
		if err != nil {
			metrics.ExecutionActionsTotal.WithLabelValues(string(act.Type), "error").Inc()
			a.logger.Error("action failed",
				"index", i,
				"type", act.Type,
				"venue", act.Venue,
				"asset", act.Asset,
				"error", err,
			)
			res.Failed = append(res.Failed, ActionFailure{Index: i, Action: act, Error: err.Error()})
			continue
		}
		if !executed {
			metrics.ExecutionActionsTotal.WithLabelValues(string(act.Type), "skipped").Inc()
			continue
		}
		metrics.ExecutionActionsTotal.WithLabelValues(string(act.Type), "success").Inc()
		res.TxIDs = append(res.TxIDs, rcpt.ID)
		if rcpt.GasUsed != nil {
			res.GasUsed.Add(res.GasUsed, rcpt.GasUsed)
		}
	}

	res.Success = a.policy == PolicyLenient || len(res.Failed) == 0
	if len(res.Failed) > 0 {
		res.Error = fmt.Sprintf("%d of %d actions failed", len(res.Failed), len(d.Actions))
	}
	res.Timestamp = a.now()

	a.logger.Info("rebalance executed",
		"transactions", len(res.TxIDs),
		"failed", len(res.Failed),
		"gas_used", res.GasUsed.String(),
	)
	return res
}

func (a *Applier) validate(ctx context.Context, d *decision.Decision) error {
	if d == nil || len(d.Actions) == 0 {
		metrics.ExecutionRejectedTotal.WithLabelValues("no_actions").Inc()
		return fmt.Errorf("no actions to execute")
	}
	if err := risk.CheckConstraints(d.RiskImpact.After, a.maxRisk); err != nil {
		metrics.ExecutionRejectedTotal.WithLabelValues("risk").Inc()
		return err
	}

	bal, err := a.client.Balance(ctx)
	if err != nil {
		metrics.ExecutionRejectedTotal.WithLabelValues("balance_error").Inc()
		return fmt.Errorf("read balance: %w", err)
	}
	need := d.GasEstimate
	if need == nil {
		need = new(big.Int)
	}
	if bal.Cmp(need) < 0 {
		metrics.ExecutionRejectedTotal.WithLabelValues("insufficient_gas").Inc()
		return fmt.Errorf("insufficient balance for gas: need %s, have %s", need, bal)
	}
	return nil
}

// execute applies one action. executed is false for no-op actions.
func (a *Applier) execute(ctx context.Context, act decision.Action) (rcpt chain.TxReceipt, executed bool, err error) {
	switch act.Type {
	case decision.ActionDeposit:
		rcpt, err = a.client.Deposit(ctx, act.Venue, act.Asset, act.Amount)
		return rcpt, err == nil, err
	case decision.ActionWithdraw:
		rcpt, err = a.client.Withdraw(ctx, act.Venue, act.Asset, act.Amount)
		return rcpt, err == nil, err
	case decision.ActionTransfer:
		a.logger.Debug("transfer action is a no-op", "venue", act.Venue, "asset", act.Asset)
		return chain.TxReceipt{}, false, nil
	default:
		a.logger.Warn("unknown action type", "type", act.Type)
		return chain.TxReceipt{}, false, nil
	}
}
