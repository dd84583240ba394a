package main

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/alarmstore/alarmstorage-contract/ledger"
	"github.com/nspcc-dev/neo-go/pkg/core/storage"
	"github.com/nspcc-dev/neo-go/pkg/encoding/address"
	"github.com/nspcc-dev/neo-go/pkg/util"
	"github.com/urfave/cli"
	"go.uber.org/zap"
)

// openLedger opens the configured local ledger. The returned function must be
// called to release the storage and the RPC connection used for payouts.
func openLedger(m *metadata) (*ledger.Ledger, func(), error) {
	cfg := m.config.Ledger

	if cfg.Administrator == "" {
		return nil, nil, errors.New("ledger.administrator is not set")
	}

	admin, err := parseAccount(cfg.Administrator)
	if err != nil {
		return nil, nil, fmt.Errorf("ledger.administrator: %w", err)
	}

	minFee, err := cfg.minFee()
	if err != nil {
		return nil, nil, fmt.Errorf("ledger.min_fee: %w", err)
	}

	opts := []ledger.Option{
		ledger.WithLogger(m.log.With(zap.String("component", "ledger"))),
		ledger.WithMinFee(minFee),
	}

	var remote *remoteBlockchain

	if cfg.Payout == payoutGAS {
		acc, err := openAccount(m.config.Wallet)
		if err != nil {
			return nil, nil, err
		}

		remote, err = newRemoteBlockchain(m.ctx, m.config.RPC, acc)
		if err != nil {
			return nil, nil, err
		}

		opts = append(opts, ledger.WithPayout(ledger.NewGASPayout(remote.actor, m.log)))
	}

	store, err := storage.NewStore(cfg.DB)
	if err != nil {
		if remote != nil {
			remote.close()
		}
		return nil, nil, fmt.Errorf("open ledger storage: %w", err)
	}

	closeAll := func() {
		if err := store.Close(); err != nil {
			m.log.Warn("failed to close ledger storage", zap.Error(err))
		}
		if remote != nil {
			remote.close()
		}
	}

	l, err := ledger.New(store, admin, opts...)
	if err != nil {
		closeAll()
		return nil, nil, fmt.Errorf("open ledger: %w", err)
	}

	return l, closeAll, nil
}

func fromAccount(c *cli.Context) (util.Uint160, error) {
	from, err := parseAccount(c.String("from"))
	if err != nil {
		return util.Uint160{}, fmt.Errorf("from: %w", err)
	}
	return from, nil
}

func runLocalSave(c *cli.Context) error {
	m := getMetadata(c)

	udid, hash, err := saveArgs(c)
	if err != nil {
		return err
	}

	from, err := fromAccount(c)
	if err != nil {
		return err
	}

	l, closeLedger, err := openLedger(m)
	if err != nil {
		return err
	}
	defer closeLedger()

	fee := l.MinFee()
	if s := c.String("fee"); s != "" {
		fee, err = parseAmount(s, m.config.Ledger.Decimals)
		if err != nil {
			return err
		}
	}

	ev, err := l.SaveHash(m.ctx, from, udid, hash, fee)
	if err != nil {
		return fmt.Errorf("save hash: %w", err)
	}

	return printJSON(m.w, recordView{
		UDID:        udid,
		Submitter:   accountString(ev.Submitter),
		ContentHash: ev.ContentHash,
	})
}

func runLocalGet(c *cli.Context) error {
	m := getMetadata(c)

	udid := c.String("udid")
	if udid == "" {
		return errors.New("missing UDID")
	}

	l, closeLedger, err := openLedger(m)
	if err != nil {
		return err
	}
	defer closeLedger()

	rec, err := l.GetHash(m.ctx, udid)
	if err != nil {
		return fmt.Errorf("get hash: %w", err)
	}

	return printJSON(m.w, recordView{
		UDID:        udid,
		Submitter:   accountString(rec.Submitter),
		ContentHash: rec.ContentHash,
	})
}

func runLocalOwner(c *cli.Context) error {
	m := getMetadata(c)

	l, closeLedger, err := openLedger(m)
	if err != nil {
		return err
	}
	defer closeLedger()

	owner, err := l.GetOwner(m.ctx)
	if err != nil {
		return fmt.Errorf("get owner: %w", err)
	}

	return printJSON(m.w, map[string]string{"owner": address.Uint160ToString(owner)})
}

func runLocalBalance(c *cli.Context) error {
	m := getMetadata(c)

	l, closeLedger, err := openLedger(m)
	if err != nil {
		return err
	}
	defer closeLedger()

	balance, err := l.Balance(m.ctx)
	if err != nil {
		return fmt.Errorf("get balance: %w", err)
	}

	return printJSON(m.w, map[string]string{"balance": formatAmount(balance, m.config.Ledger.Decimals)})
}

func runLocalTransferOwner(c *cli.Context) error {
	m := getMetadata(c)

	from, err := fromAccount(c)
	if err != nil {
		return err
	}

	newOwner, err := parseAccount(c.String("new-owner"))
	if err != nil {
		return fmt.Errorf("new owner: %w", err)
	}

	l, closeLedger, err := openLedger(m)
	if err != nil {
		return err
	}
	defer closeLedger()

	ev, err := l.TransferOwner(m.ctx, from, newOwner)
	if err != nil {
		return fmt.Errorf("transfer owner: %w", err)
	}

	return printJSON(m.w, localEventView(ev, m.config.Ledger.Decimals))
}

func runLocalWithdraw(c *cli.Context) error {
	m := getMetadata(c)

	from, err := fromAccount(c)
	if err != nil {
		return err
	}

	amount, err := parseAmount(c.String("amount"), m.config.Ledger.Decimals)
	if err != nil {
		return err
	}

	l, closeLedger, err := openLedger(m)
	if err != nil {
		return err
	}
	defer closeLedger()

	ev, err := l.Withdraw(m.ctx, from, amount)
	if errors.Is(err, ledger.ErrPayoutPending) {
		// withdrawal is booked, the transfer should be checked manually
		if pErr := printJSON(m.w, localEventView(ev, m.config.Ledger.Decimals)); pErr != nil {
			return pErr
		}
	}
	if err != nil {
		return fmt.Errorf("withdraw: %w", err)
	}

	return printJSON(m.w, localEventView(ev, m.config.Ledger.Decimals))
}

func runLocalEvents(c *cli.Context) error {
	m := getMetadata(c)

	l, closeLedger, err := openLedger(m)
	if err != nil {
		return err
	}
	defer closeLedger()

	evs, err := l.Events(m.ctx, c.Uint64("start"))
	if err != nil {
		return fmt.Errorf("read events: %w", err)
	}

	res := make([]eventView, 0, len(evs))
	for i := range evs {
		view := localEventView(evs[i].Payload, m.config.Ledger.Decimals)
		view.Seq = &evs[i].Seq
		res = append(res, view)
	}

	return printJSON(m.w, res)
}

func localEventView(p ledger.Payload, decimals int) eventView {
	view := eventView{Name: p.Kind().String()}

	switch ev := p.(type) {
	case ledger.SavedHash:
		view.Submitter = address.Uint160ToString(ev.Submitter)
		view.ContentHash = ev.ContentHash
	case ledger.OwnerTransferred:
		view.Owner = address.Uint160ToString(ev.Owner)
		view.NewOwner = address.Uint160ToString(ev.NewOwner)
	case ledger.Withdrawn:
		amount := ev.Amount
		if amount == nil {
			amount = new(big.Int)
		}
		view.Owner = address.Uint160ToString(ev.Owner)
		view.Amount = formatAmount(amount, decimals)
	}

	return view
}
