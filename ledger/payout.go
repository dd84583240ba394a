package ledger

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/nspcc-dev/neo-go/pkg/core/state"
	"github.com/nspcc-dev/neo-go/pkg/encoding/address"
	"github.com/nspcc-dev/neo-go/pkg/rpcclient/actor"
	"github.com/nspcc-dev/neo-go/pkg/rpcclient/gas"
	"github.com/nspcc-dev/neo-go/pkg/rpcclient/waiter"
	"github.com/nspcc-dev/neo-go/pkg/util"
	"github.com/nspcc-dev/neo-go/pkg/vm/vmstate"
	"go.uber.org/zap"
)

// Payout delivers withdrawn funds to the administrator's external account.
// Pay is called by Ledger.Withdraw after the withdrawal is booked, non-nil
// error cancels the withdrawal unless it wraps ErrPayoutPending.
type Payout interface {
	Pay(ctx context.Context, to util.Uint160, amount *big.Int) error
}

// NopPayout only books withdrawals, funds are expected to be moved by other
// means.
type NopPayout struct{}

// Pay implements Payout.
func (NopPayout) Pay(context.Context, util.Uint160, *big.Int) error { return nil }

// Transferer sends NEP-17 tokens, it's implemented by nep17.Token.
type Transferer interface {
	Transfer(from, to util.Uint160, amount *big.Int, data any) (util.Uint256, uint32, error)
}

// Waiter waits for transaction acceptance, it's implemented by actor.Actor.
type Waiter interface {
	Wait(h util.Uint256, vub uint32, err error) (*state.AppExecResult, error)
}

// GASPayout pays withdrawals out in GAS from a custodial account. Ledger
// amounts are GAS fractions (8 decimals) in this case, so the ledger should
// be opened with a corresponding WithMinFee.
type GASPayout struct {
	log    *zap.Logger
	from   util.Uint160
	token  Transferer
	waiter Waiter
}

// NewGASPayout creates GASPayout sending GAS from the actor's account.
func NewGASPayout(act *actor.Actor, log *zap.Logger) *GASPayout {
	return newGASPayout(act.Sender(), gas.New(act), act, log)
}

func newGASPayout(from util.Uint160, token Transferer, w Waiter, log *zap.Logger) *GASPayout {
	if log == nil {
		log = zap.NewNop()
	}
	return &GASPayout{
		log:    log,
		from:   from,
		token:  token,
		waiter: w,
	}
}

// Pay implements Payout. It sends the transfer transaction and waits until it
// is persisted. Once the transaction is sent, waiting errors other than
// waiter.ErrTxNotAccepted are reported as ErrPayoutPending.
func (p *GASPayout) Pay(ctx context.Context, to util.Uint160, amount *big.Int) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	h, vub, err := p.token.Transfer(p.from, to, amount, nil)
	if err != nil {
		return fmt.Errorf("send GAS transfer: %w", err)
	}

	res, err := p.waiter.Wait(h, vub, nil)
	if err != nil {
		if errors.Is(err, waiter.ErrTxNotAccepted) {
			return fmt.Errorf("GAS transfer %s: %w", h.StringLE(), err)
		}

		p.log.Error("GAS transfer sent but not confirmed",
			zap.String("to", address.Uint160ToString(to)),
			zap.Stringer("amount", amount),
			zap.String("tx", h.StringLE()),
			zap.Error(err))

		return fmt.Errorf("%w: GAS transfer %s: %w", ErrPayoutPending, h.StringLE(), err)
	}

	if res.VMState != vmstate.Halt {
		return fmt.Errorf("GAS transfer %s failed: %s", res.Container.StringLE(), res.FaultException)
	}

	if len(res.Stack) != 1 {
		return fmt.Errorf("GAS transfer %s: unexpected stack size %d", res.Container.StringLE(), len(res.Stack))
	}
	if ok, err := res.Stack[0].TryBool(); err != nil || !ok {
		return fmt.Errorf("GAS transfer %s was rejected", res.Container.StringLE())
	}

	p.log.Info("GAS sent",
		zap.String("to", address.Uint160ToString(to)),
		zap.Stringer("amount", amount),
		zap.Stringer("tx", res.Container))

	return nil
}
