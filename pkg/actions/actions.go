// Package actions gates mutating on-chain actions behind precondition checks
// and serializes them against the active session.
package actions

import (
	"context"
	"math/big"
	"strings"
	"sync"

	"tokentrackr/pkg/chain"
	"tokentrackr/pkg/models"
	"tokentrackr/pkg/session"

	logging "github.com/ipfs/go-log/v2"
	"github.com/pkg/errors"
)

var log = logging.Logger("actions")

// ActionState tracks the lifecycle of a mutating action.
type ActionState int

const (
	Idle ActionState = iota
	Submitting
	Confirmed
	Failed
)

func (s ActionState) String() string {
	switch s {
	case Submitting:
		return "submitting"
	case Confirmed:
		return "confirmed"
	case Failed:
		return "failed"
	default:
		return "idle"
	}
}

// Outcome is the observable result of the most recent action.
type Outcome struct {
	State   ActionState
	Receipt *models.TransferReceipt
	Err     error
}

// Coordinator serializes approve/transfer actions. Only one action may be
// submitting at a time per coordinator; a second call fails immediately with
// ActionInProgress without invoking the network layer. Precondition reads
// always complete before the mutating call is issued. A failed action leaves
// the coordinator back in Idle; nothing is retried automatically.
type Coordinator struct {
	sessions *session.Manager

	mu      sync.Mutex
	state   ActionState
	outcome Outcome
}

func NewCoordinator(sessions *session.Manager) *Coordinator {
	return &Coordinator{sessions: sessions}
}

// State returns the current action state.
func (c *Coordinator) State() ActionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// LastOutcome returns the result of the most recent completed action.
func (c *Coordinator) LastOutcome() Outcome {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.outcome
}

// CheckAllowance reads how much the spender is approved to spend of the
// owner's tokens. Both addresses must be present and well-formed.
func (c *Coordinator) CheckAllowance(ctx context.Context, token, spender string) (models.AllowanceRecord, error) {
	token = strings.TrimSpace(token)
	spender = strings.TrimSpace(spender)
	if token == "" || spender == "" || !chain.ValidAddress(token) || !chain.ValidAddress(spender) {
		return models.AllowanceRecord{}, errors.Wrap(models.ErrMissingInput, "token and spender addresses are required")
	}
	sess := c.sessions.Current()
	if !sess.Connected() {
		return models.AllowanceRecord{}, models.ErrNoActiveSession
	}

	amount, err := sess.Client.Allowance(ctx, token, sess.Address, spender)
	if err != nil {
		return models.AllowanceRecord{}, err
	}
	return models.AllowanceRecord{
		Owner:   sess.Address,
		Spender: spender,
		Token:   models.TokenDescriptor{Address: token},
		Amount:  amount,
	}, nil
}

// Approve pre-authorizes the spender for amount of the token. The caller's
// token balance is checked before submission so a doomed on-chain call is
// never issued.
func (c *Coordinator) Approve(ctx context.Context, token, spender, amount string) (*models.TransferReceipt, error) {
	token = strings.TrimSpace(token)
	spender = strings.TrimSpace(spender)
	if token == "" || spender == "" || !chain.ValidAddress(token) || !chain.ValidAddress(spender) {
		return nil, errors.Wrap(models.ErrMissingInput, "token and spender addresses are required")
	}
	want, ok := parsePositiveDecimal(amount)
	if !ok {
		return nil, errors.Wrapf(models.ErrMissingInput, "amount %q is not a positive decimal", amount)
	}

	sess := c.sessions.Current()
	if !sess.Connected() {
		return nil, models.ErrNoActiveSession
	}
	if !sess.Mode.CanSign() {
		return nil, models.ErrReadOnlySession
	}

	if err := c.begin(); err != nil {
		return nil, err
	}

	// Precondition read completes before the mutating call is issued.
	balance, err := sess.Client.TokenBalance(ctx, token, sess.Address, nil)
	if err != nil {
		return nil, c.finish(nil, err)
	}
	have, _ := parsePositiveDecimal(balance)
	if have == nil || have.Cmp(want) < 0 {
		return nil, c.finish(nil, errors.Wrapf(models.ErrInsufficientBalance, "balance %s, need %s", balance, amount))
	}

	receipt, err := sess.Client.Approve(ctx, token, spender, amount)
	return receipt, c.finish(receipt, err)
}

// Transfer sends the native asset (empty token) or an ERC-20 amount to the
// recipient.
func (c *Coordinator) Transfer(ctx context.Context, token, to, amount string) (*models.TransferReceipt, error) {
	token = strings.TrimSpace(token)
	to = strings.TrimSpace(to)
	if to == "" || !chain.ValidAddress(to) {
		return nil, errors.Wrap(models.ErrMissingInput, "recipient address is required")
	}
	if token != "" && !chain.ValidAddress(token) {
		return nil, errors.Wrapf(models.ErrMissingInput, "token address %q", token)
	}
	if _, ok := parsePositiveDecimal(amount); !ok {
		return nil, errors.Wrapf(models.ErrMissingInput, "amount %q is not a positive decimal", amount)
	}

	sess := c.sessions.Current()
	if !sess.Connected() {
		return nil, models.ErrNoActiveSession
	}
	if !sess.Mode.CanSign() {
		return nil, models.ErrReadOnlySession
	}

	if err := c.begin(); err != nil {
		return nil, err
	}

	var receipt *models.TransferReceipt
	var err error
	if token == "" {
		receipt, err = sess.Client.SendNative(ctx, to, amount)
	} else {
		receipt, err = sess.Client.SendToken(ctx, token, to, amount)
	}
	return receipt, c.finish(receipt, err)
}

func (c *Coordinator) begin() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == Submitting {
		return models.ErrActionInProgress
	}
	c.state = Submitting
	return nil
}

// finish records the outcome and returns the coordinator to Idle so the user
// can retry explicitly.
func (c *Coordinator) finish(receipt *models.TransferReceipt, err error) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		c.outcome = Outcome{State: Failed, Err: err}
		log.Warnw("action failed", "kind", models.ErrorKind(err))
	} else {
		c.outcome = Outcome{State: Confirmed, Receipt: receipt}
		if receipt != nil {
			log.Infow("action confirmed", "hash", receipt.Hash, "block", receipt.BlockNumber)
		}
	}
	c.state = Idle
	return err
}

func parsePositiveDecimal(s string) (*big.Float, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, false
	}
	f, ok := new(big.Float).SetPrec(256).SetString(s)
	if !ok || f.Sign() <= 0 {
		return nil, false
	}
	return f, true
}
