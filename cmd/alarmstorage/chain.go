package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/alarmstore/alarmstorage-contract/contracts"
	"github.com/alarmstore/alarmstorage-contract/deploy"
	"github.com/alarmstore/alarmstorage-contract/rpc/alarmstorage"
	"github.com/nspcc-dev/neo-go/pkg/core/state"
	"github.com/nspcc-dev/neo-go/pkg/encoding/address"
	"github.com/nspcc-dev/neo-go/pkg/neorpc/result"
	"github.com/nspcc-dev/neo-go/pkg/util"
	"github.com/nspcc-dev/neo-go/pkg/vm/stackitem"
	"github.com/urfave/cli"
)

const recordPrefix = 'r'

type recordView struct {
	UDID        string `json:"udid"`
	Submitter   string `json:"submitter,omitempty"`
	ContentHash string `json:"contentHash"`
}

type eventView struct {
	Seq         *uint64 `json:"seq,omitempty"`
	Name        string  `json:"name"`
	Submitter   string  `json:"submitter,omitempty"`
	ContentHash string  `json:"contentHash,omitempty"`
	Owner       string  `json:"owner,omitempty"`
	NewOwner    string  `json:"newOwner,omitempty"`
	Amount      string  `json:"amount,omitempty"`
}

type txView struct {
	Tx     string      `json:"tx"`
	UDID   string      `json:"udid,omitempty"`
	Events []eventView `json:"events"`
}

func accountString(u util.Uint160) string {
	if u.Equals(util.Uint160{}) {
		return ""
	}
	return address.Uint160ToString(u)
}

func runDeploy(c *cli.Context) error {
	m := getMetadata(c)

	prm := deploy.Prm{
		Logger:      m.log,
		AllowUpdate: c.Bool("update"),
	}

	var err error
	if s := c.String("owner"); s != "" {
		prm.Owner, err = parseAccount(s)
		if err != nil {
			return fmt.Errorf("owner: %w", err)
		}
	}

	if prm.AllowUpdate {
		prm.Address, err = parseAccount(m.config.Contract.Address)
		if err != nil {
			return fmt.Errorf("contract.address: %w", err)
		}
	}

	prm.Contract, err = loadContract(m.config.Contract)
	if err != nil {
		return err
	}

	acc, err := openAccount(m.config.Wallet)
	if err != nil {
		return err
	}

	b, err := newRemoteBlockchain(m.ctx, m.config.RPC, acc)
	if err != nil {
		return err
	}
	defer b.close()

	prm.Blockchain = b.rpc
	prm.Actor = b.actor

	addr, err := deploy.Deploy(m.ctx, prm)
	if err != nil {
		return fmt.Errorf("deploy: %w", err)
	}

	return printJSON(m.w, map[string]string{
		"address": address.Uint160ToString(addr),
		"hash":    addr.StringLE(),
	})
}

func loadContract(cfg ContractConfig) (contracts.Contract, error) {
	if cfg.Artefacts != "" {
		ctr, err := contracts.Read(os.DirFS(cfg.Artefacts), ".")
		if err != nil {
			return ctr, fmt.Errorf("read contract artefacts: %w", err)
		}
		return ctr, nil
	}

	ctr, err := contracts.Compile(cfg.Sources)
	if err != nil {
		return ctr, fmt.Errorf("compile contract %s: %w", cfg.Sources, err)
	}

	return ctr, nil
}

func runCompile(c *cli.Context) error {
	m := getMetadata(c)

	out := c.String("out")
	if out == "" {
		return errors.New("missing output directory")
	}

	ctr, err := contracts.Compile(m.config.Contract.Sources)
	if err != nil {
		return fmt.Errorf("compile contract %s: %w", m.config.Contract.Sources, err)
	}

	err = os.MkdirAll(out, 0o755)
	if err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}

	err = contracts.Write(ctr, func(name string, data []byte) error {
		return os.WriteFile(filepath.Join(out, name), data, 0o644)
	})
	if err != nil {
		return err
	}

	if m.verbose {
		fmt.Fprintf(m.e, "contract artefacts written to %s\n", out)
	}

	return nil
}

// saveArgs returns UDID and content hash of the save commands.
func saveArgs(c *cli.Context) (string, string, error) {
	udid := c.String("udid")
	if udid == "" {
		udid = newUDID()
	}

	hash := c.String("hash")
	if hash == "" {
		return "", "", errors.New("missing content hash")
	}

	if !c.Bool("raw") {
		if err := checkContentHash(hash); err != nil {
			return "", "", fmt.Errorf("content hash: %w", err)
		}
	}

	return udid, hash, nil
}

func runSave(c *cli.Context) error {
	m := getMetadata(c)

	udid, hash, err := saveArgs(c)
	if err != nil {
		return err
	}

	acc, err := openAccount(m.config.Wallet)
	if err != nil {
		return err
	}

	b, err := newRemoteBlockchain(m.ctx, m.config.RPC, acc)
	if err != nil {
		return err
	}
	defer b.close()

	ctr, h, err := b.contract(m.config.Contract)
	if err != nil {
		return err
	}

	fee, err := ctr.MinimalFee()
	if err != nil {
		return fmt.Errorf("get minimal fee: %w", err)
	}

	if s := c.String("fee"); s != "" {
		fee, err = parseAmount(s, gasDecimals)
		if err != nil {
			return err
		}
	}

	if m.verbose {
		fmt.Fprintf(m.e, "udid: %s\n", udid)
		fmt.Fprintf(m.e, "fee: %s GAS\n", formatAmount(fee, gasDecimals))
	}

	log, err := b.wait(ctr.SaveHash(udid, hash, fee))
	if err != nil {
		return fmt.Errorf("save hash: %w", err)
	}

	return printTx(m, log, h, udid)
}

func runGet(c *cli.Context) error {
	m := getMetadata(c)

	udid := c.String("udid")
	if udid == "" {
		return errors.New("missing UDID")
	}

	b, err := newRemoteBlockchain(m.ctx, m.config.RPC, nil)
	if err != nil {
		return err
	}
	defer b.close()

	ctr, _, err := b.contract(m.config.Contract)
	if err != nil {
		return err
	}

	rec, err := ctr.GetHash(udid)
	if err != nil {
		return fmt.Errorf("get hash: %w", err)
	}

	return printJSON(m.w, recordView{
		UDID:        udid,
		Submitter:   accountString(rec.Submitter),
		ContentHash: rec.ContentHash,
	})
}

func runRecords(c *cli.Context) error {
	m := getMetadata(c)

	h, err := parseAccount(m.config.Contract.Address)
	if err != nil {
		return fmt.Errorf("contract.address: %w", err)
	}

	b, err := newRemoteBlockchain(m.ctx, m.config.RPC, nil)
	if err != nil {
		return err
	}
	defer b.close()

	res := []recordView{}

	err = b.iterateContractStorage(h, []byte{recordPrefix}, func(key, value []byte) error {
		view, err := decodeRecord(key, value)
		if err != nil {
			return err
		}
		res = append(res, view)
		return nil
	})
	if err != nil {
		return err
	}

	return printJSON(m.w, res)
}

// decodeRecord decodes contract storage item of the record.
func decodeRecord(key, value []byte) (recordView, error) {
	if len(key) < 2 || key[0] != recordPrefix {
		return recordView{}, fmt.Errorf("invalid record key %x", key)
	}

	item, err := stackitem.Deserialize(value)
	if err != nil {
		return recordView{}, fmt.Errorf("record %q: %w", key[1:], err)
	}

	var rec alarmstorage.AlarmstorageRecord

	err = rec.FromStackItem(item)
	if err != nil {
		return recordView{}, fmt.Errorf("record %q: %w", key[1:], err)
	}

	return recordView{
		UDID:        string(key[1:]),
		Submitter:   accountString(rec.Submitter),
		ContentHash: rec.ContentHash,
	}, nil
}

func runOwner(c *cli.Context) error {
	m := getMetadata(c)

	b, err := newRemoteBlockchain(m.ctx, m.config.RPC, nil)
	if err != nil {
		return err
	}
	defer b.close()

	ctr, _, err := b.contract(m.config.Contract)
	if err != nil {
		return err
	}

	owner, err := ctr.GetOwner()
	if err != nil {
		return fmt.Errorf("get owner: %w", err)
	}

	return printJSON(m.w, map[string]string{"owner": address.Uint160ToString(owner)})
}

func runBalance(c *cli.Context) error {
	m := getMetadata(c)

	b, err := newRemoteBlockchain(m.ctx, m.config.RPC, nil)
	if err != nil {
		return err
	}
	defer b.close()

	ctr, _, err := b.contract(m.config.Contract)
	if err != nil {
		return err
	}

	balance, err := ctr.Balance()
	if err != nil {
		return fmt.Errorf("get balance: %w", err)
	}

	return printJSON(m.w, map[string]string{"balance": formatAmount(balance, gasDecimals)})
}

func runTransferOwner(c *cli.Context) error {
	m := getMetadata(c)

	newOwner, err := parseAccount(c.String("new-owner"))
	if err != nil {
		return fmt.Errorf("new owner: %w", err)
	}

	acc, err := openAccount(m.config.Wallet)
	if err != nil {
		return err
	}

	b, err := newRemoteBlockchain(m.ctx, m.config.RPC, acc)
	if err != nil {
		return err
	}
	defer b.close()

	ctr, h, err := b.contract(m.config.Contract)
	if err != nil {
		return err
	}

	log, err := b.wait(ctr.TransferOwner(newOwner))
	if err != nil {
		return fmt.Errorf("transfer owner: %w", err)
	}

	return printTx(m, log, h, "")
}

func runWithdraw(c *cli.Context) error {
	m := getMetadata(c)

	amount, err := parseAmount(c.String("amount"), gasDecimals)
	if err != nil {
		return err
	}

	acc, err := openAccount(m.config.Wallet)
	if err != nil {
		return err
	}

	b, err := newRemoteBlockchain(m.ctx, m.config.RPC, acc)
	if err != nil {
		return err
	}
	defer b.close()

	ctr, h, err := b.contract(m.config.Contract)
	if err != nil {
		return err
	}

	log, err := b.wait(ctr.Withdraw(amount))
	if err != nil {
		return fmt.Errorf("withdraw: %w", err)
	}

	return printTx(m, log, h, "")
}

func runEvents(c *cli.Context) error {
	m := getMetadata(c)

	h, err := util.Uint256DecodeStringLE(strings.TrimPrefix(c.String("tx"), "0x"))
	if err != nil {
		return fmt.Errorf("invalid transaction hash: %w", err)
	}

	contract, err := parseAccount(m.config.Contract.Address)
	if err != nil {
		return fmt.Errorf("contract.address: %w", err)
	}

	b, err := newRemoteBlockchain(m.ctx, m.config.RPC, nil)
	if err != nil {
		return err
	}
	defer b.close()

	log, err := b.rpc.GetApplicationLog(h, nil)
	if err != nil {
		return fmt.Errorf("get application log: %w", err)
	}

	return printTx(m, log, contract, "")
}

func printTx(m *metadata, log *result.ApplicationLog, contract util.Uint160, udid string) error {
	evs, err := contractEvents(log, contract)
	if err != nil {
		return err
	}

	return printJSON(m.w, txView{
		Tx:     log.Container.StringLE(),
		UDID:   udid,
		Events: evs,
	})
}

// contractEvents decodes notifications of the contract in the order they were
// emitted.
func contractEvents(log *result.ApplicationLog, contract util.Uint160) ([]eventView, error) {
	res := []eventView{}

	for _, ex := range log.Executions {
		for _, e := range ex.Events {
			if !e.ScriptHash.Equals(contract) {
				continue
			}

			view, err := decodeNotification(e)
			if err != nil {
				return nil, err
			}
			if view != nil {
				res = append(res, *view)
			}
		}
	}

	return res, nil
}

func decodeNotification(e state.NotificationEvent) (*eventView, error) {
	// reuse log parsers on a single notification
	log := &result.ApplicationLog{Executions: []state.Execution{{Events: []state.NotificationEvent{e}}}}

	switch e.Name {
	case "SavedHash":
		evs, err := alarmstorage.SavedHashEventsFromApplicationLog(log)
		if err != nil {
			return nil, err
		}
		return &eventView{
			Name:        e.Name,
			Submitter:   address.Uint160ToString(evs[0].Submitter),
			ContentHash: evs[0].ContentHash,
		}, nil
	case "OwnerTransferred":
		evs, err := alarmstorage.OwnerTransferredEventsFromApplicationLog(log)
		if err != nil {
			return nil, err
		}
		return &eventView{
			Name:     e.Name,
			Owner:    address.Uint160ToString(evs[0].Owner),
			NewOwner: address.Uint160ToString(evs[0].NewOwner),
		}, nil
	case "Withdrawn":
		evs, err := alarmstorage.WithdrawnEventsFromApplicationLog(log)
		if err != nil {
			return nil, err
		}
		return &eventView{
			Name:   e.Name,
			Owner:  address.Uint160ToString(evs[0].Owner),
			Amount: formatAmount(evs[0].Amount, gasDecimals),
		}, nil
	default:
		return nil, nil
	}
}
