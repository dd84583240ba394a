package deploy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/alarmstore/alarmstorage-contract/contracts"
	"github.com/alarmstore/alarmstorage-contract/rpc/alarmstorage"
	"github.com/nspcc-dev/neo-go/pkg/core/state"
	"github.com/nspcc-dev/neo-go/pkg/neorpc"
	"github.com/nspcc-dev/neo-go/pkg/rpcclient/management"
	"github.com/nspcc-dev/neo-go/pkg/util"
	"github.com/nspcc-dev/neo-go/pkg/vm/vmstate"
	"go.uber.org/zap"
)

// Blockchain groups services provided by particular Neo blockchain network
// that are required for the contract deployment.
type Blockchain interface {
	// GetContractStateByHash returns network state of the smart contract by
	// its address. GetContractStateByHash returns error with 'Unknown contract'
	// substring if requested contract is missing.
	GetContractStateByHash(util.Uint160) (*state.Contract, error)
}

// Actor composes, signs and sends transactions on behalf of the deployer,
// it's implemented by actor.Actor.
type Actor interface {
	alarmstorage.Actor
	management.Actor

	Wait(h util.Uint256, vub uint32, err error) (*state.AppExecResult, error)
}

// Prm groups all parameters of the deployment procedure.
type Prm struct {
	// Writes progress into the log.
	Logger *zap.Logger

	Blockchain Blockchain

	// Deployer account, it pays for the deployment and, by default, becomes
	// the contract owner.
	Actor Actor

	Contract contracts.Contract

	// Initial contract owner. Zero means Actor sender.
	Owner util.Uint160

	// Address of the already deployed contract to be updated. Zero means the
	// address of the contract deployed by Actor.
	Address util.Uint160

	// Allows to update the contract if on-chain code differs from the
	// local one. Update requires owner's signature.
	AllowUpdate bool
}

var (
	// ErrUpdateNotAllowed is returned when the deployed contract differs
	// from the local one and Prm.AllowUpdate is not set.
	ErrUpdateNotAllowed = errors.New("contract differs from the local one, update is not allowed")
	// ErrContractNotFound is returned when Prm.Address is set but there is no
	// contract with this address.
	ErrContractNotFound = errors.New("contract not found")
)

// Deploy makes the contract from Prm available on the blockchain and returns
// its address. Nothing is done if the same contract is already deployed. The
// contract is updated if its code differs and Prm.AllowUpdate is set.
func Deploy(ctx context.Context, prm Prm) (util.Uint160, error) {
	log := prm.Logger
	if log == nil {
		log = zap.NewNop()
	}

	var (
		localNEF = prm.Contract.NEF
		name     = prm.Contract.Manifest.Name
		addr     = prm.Address
		explicit = !addr.Equals(util.Uint160{})
	)

	if !explicit {
		addr = state.CreateContractHash(prm.Actor.Sender(), localNEF.Checksum, name)
	}

	log = log.With(zap.String("contract", name), zap.String("address", addr.StringLE()))

	st, err := prm.Blockchain.GetContractStateByHash(addr)
	if err != nil {
		if !isErrContractNotFound(err) {
			return util.Uint160{}, fmt.Errorf("get contract state: %w", err)
		}
		if explicit {
			return util.Uint160{}, fmt.Errorf("%w: %s", ErrContractNotFound, addr.StringLE())
		}

		log.Info("contract is missing on the chain, deploying...")

		err = deployContract(ctx, prm)
		if err != nil {
			return util.Uint160{}, err
		}

		log.Info("contract successfully deployed")

		return addr, nil
	}

	if st.NEF.Checksum == localNEF.Checksum {
		log.Info("contract is already deployed and up-to-date")
		return addr, nil
	}

	if !prm.AllowUpdate {
		return util.Uint160{}, ErrUpdateNotAllowed
	}

	log.Info("contract differs from the local one, updating...",
		zap.Uint32("on-chain checksum", st.NEF.Checksum),
		zap.Uint32("local checksum", localNEF.Checksum))

	err = updateContract(ctx, prm, addr)
	if err != nil {
		return util.Uint160{}, err
	}

	log.Info("contract successfully updated")

	return addr, nil
}

func deployContract(ctx context.Context, prm Prm) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	var data any
	if !prm.Owner.Equals(util.Uint160{}) {
		data = []any{prm.Owner}
	}

	res, err := prm.Actor.Wait(management.New(prm.Actor).Deploy(&prm.Contract.NEF, &prm.Contract.Manifest, data))
	if err != nil {
		return fmt.Errorf("send deploy transaction: %w", err)
	}

	return checkResult(res, "deploy")
}

func updateContract(ctx context.Context, prm Prm, addr util.Uint160) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	bNEF, err := prm.Contract.NEF.Bytes()
	if err != nil {
		return fmt.Errorf("encode NEF: %w", err)
	}

	jManifest, err := json.Marshal(prm.Contract.Manifest)
	if err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}

	res, err := prm.Actor.Wait(alarmstorage.New(prm.Actor, addr).Update(bNEF, jManifest, nil))
	if err != nil {
		return fmt.Errorf("send update transaction: %w", err)
	}

	return checkResult(res, "update")
}

func checkResult(res *state.AppExecResult, op string) error {
	if res.VMState != vmstate.Halt {
		return fmt.Errorf("%s transaction %s failed: %s", op, res.Container.StringLE(), res.FaultException)
	}
	return nil
}

func isErrContractNotFound(err error) bool {
	return errors.Is(err, neorpc.ErrUnknownContract) || strings.Contains(err.Error(), "Unknown contract")
}
