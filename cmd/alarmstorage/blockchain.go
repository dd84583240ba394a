package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/alarmstore/alarmstorage-contract/rpc/alarmstorage"
	"github.com/nspcc-dev/neo-go/pkg/core/state"
	"github.com/nspcc-dev/neo-go/pkg/neorpc/result"
	"github.com/nspcc-dev/neo-go/pkg/rpcclient"
	"github.com/nspcc-dev/neo-go/pkg/rpcclient/actor"
	"github.com/nspcc-dev/neo-go/pkg/util"
	"github.com/nspcc-dev/neo-go/pkg/vm/vmstate"
	"github.com/nspcc-dev/neo-go/pkg/wallet"
)

// wrapper over rpcNeo providing AlarmStorage services needed for commands.
type remoteBlockchain struct {
	rpc   *rpcclient.Client
	actor *actor.Actor
}

// newRemoteBlockchain dials Neo RPC server and returns remoteBlockchain based
// on the opened connection. Transactions are signed by acc, random account is
// used when acc is nil so only reading is possible.
func newRemoteBlockchain(ctx context.Context, cfg RPCConfig, acc *wallet.Account) (*remoteBlockchain, error) {
	if acc == nil {
		var err error
		acc, err = wallet.NewAccount()
		if err != nil {
			return nil, fmt.Errorf("generate new Neo account: %w", err)
		}
	}

	c, err := rpcclient.New(ctx, cfg.Endpoint, rpcclient.Options{
		DialTimeout:    cfg.DialTimeout,
		RequestTimeout: cfg.RequestTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("RPC client dial: %w", err)
	}

	err = c.Init()
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("RPC client init: %w", err)
	}

	act, err := actor.NewSimple(c, acc)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("init actor: %w", err)
	}

	return &remoteBlockchain{
		rpc:   c,
		actor: act,
	}, nil
}

func (x *remoteBlockchain) close() {
	x.rpc.Close()
}

// openAccount reads and decrypts the configured wallet account.
func openAccount(cfg WalletConfig) (*wallet.Account, error) {
	if cfg.Path == "" {
		return nil, errors.New("wallet.path is not set")
	}

	w, err := wallet.NewWalletFromFile(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("open wallet: %w", err)
	}

	var acc *wallet.Account
	if cfg.Address == "" {
		acc = w.GetAccount(w.GetChangeAddress())
	} else {
		h, err := parseAccount(cfg.Address)
		if err != nil {
			return nil, fmt.Errorf("wallet.address: %w", err)
		}
		acc = w.GetAccount(h)
	}
	if acc == nil {
		return nil, fmt.Errorf("account %q is missing in the wallet", cfg.Address)
	}

	err = acc.Decrypt(cfg.Password, w.Scrypt)
	if err != nil {
		return nil, fmt.Errorf("decrypt account: %w", err)
	}

	return acc, nil
}

// contract returns the configured AlarmStorage contract and its address.
func (x *remoteBlockchain) contract(cfg ContractConfig) (*alarmstorage.Contract, util.Uint160, error) {
	h, err := parseAccount(cfg.Address)
	if err != nil {
		return nil, util.Uint160{}, fmt.Errorf("contract.address: %w", err)
	}
	return alarmstorage.New(x.actor, h), h, nil
}

// wait waits for the transaction and returns its log if it's successful.
func (x *remoteBlockchain) wait(h util.Uint256, vub uint32, err error) (*result.ApplicationLog, error) {
	res, err := x.actor.Wait(h, vub, err)
	if err != nil {
		return nil, err
	}

	if res.VMState != vmstate.Halt {
		return nil, fmt.Errorf("transaction %s failed: %s", res.Container.StringLE(), res.FaultException)
	}

	return &result.ApplicationLog{
		Container:  res.Container,
		Executions: []state.Execution{res.Execution},
	}, nil
}

// iterateContractStorage iterates over storage items of the Neo smart contract
// referenced by given address which keys start with prefix and passes them into
// f. iterateContractStorage breaks on any f's error and returns it.
func (x *remoteBlockchain) iterateContractStorage(contract util.Uint160, prefix []byte, f func(key, value []byte) error) error {
	nLatestBlock, err := x.rpc.GetBlockCount()
	if err != nil {
		return fmt.Errorf("get number of the latest block: %w", err)
	}

	stateRoot, err := x.rpc.GetStateRootByHeight(nLatestBlock - 1)
	if err != nil {
		return fmt.Errorf("get state root at penult block #%d: %w", nLatestBlock-1, err)
	}

	var start []byte

	for {
		res, err := x.rpc.FindStates(stateRoot.Root, contract, prefix, start, nil)
		if err != nil {
			return fmt.Errorf("get historical storage items of the requested contract at state root '%s': %w", stateRoot.Root, err)
		}

		for i := range res.Results {
			err = f(res.Results[i].Key, res.Results[i].Value)
			if err != nil {
				return err
			}
		}

		if !res.Truncated {
			return nil
		}

		start = res.Results[len(res.Results)-1].Key
	}
}
