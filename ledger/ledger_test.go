package ledger

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"strings"
	"testing"
	"time"

	"github.com/nspcc-dev/neo-go/pkg/core/storage"
	"github.com/nspcc-dev/neo-go/pkg/crypto/keys"
	"github.com/nspcc-dev/neo-go/pkg/util"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

const (
	udid     = "7A6C22A6-6247-452F-9865-3F276B526485"
	ipfsHash = "QmSehVuH9vqgumD18v2XaN7FtRmW6RS15HrfsxkDQT6T4X"
)

// ether is 1.0 with 18 decimals, MinFee is 0.001 of it.
var ether = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)

type payoutFunc func(ctx context.Context, to util.Uint160, amount *big.Int) error

func (f payoutFunc) Pay(ctx context.Context, to util.Uint160, amount *big.Int) error {
	return f(ctx, to, amount)
}

// wallets is a Payout keeping external balances of the accounts.
type wallets map[util.Uint160]*big.Int

func (w wallets) Pay(_ context.Context, to util.Uint160, amount *big.Int) error {
	if w[to] == nil {
		w[to] = new(big.Int)
	}
	w[to].Add(w[to], amount)
	return nil
}

func newAccount(t testing.TB) util.Uint160 {
	k, err := keys.NewPrivateKey()
	require.NoError(t, err)
	return k.GetScriptHash()
}

func newLedger(t testing.TB, owner util.Uint160, opts ...Option) *Ledger {
	l, err := New(storage.NewMemoryStore(), owner,
		append([]Option{WithLogger(zaptest.NewLogger(t))}, opts...)...)
	require.NoError(t, err)
	return l
}

func amount(milli int64) *big.Int {
	n := new(big.Int).Mul(ether, big.NewInt(milli))
	return n.Div(n, big.NewInt(1000))
}

func requireAmount(t testing.TB, expected, actual *big.Int) {
	require.NotNil(t, actual)
	require.Zero(t, expected.Cmp(actual), "expected %s, got %s", expected, actual)
}

func requireBalance(t testing.TB, l *Ledger, expected *big.Int) {
	b, err := l.Balance(context.Background())
	require.NoError(t, err)
	requireAmount(t, expected, b)
}

func requireOwner(t testing.TB, l *Ledger, expected util.Uint160) {
	o, err := l.GetOwner(context.Background())
	require.NoError(t, err)
	require.Equal(t, expected, o)
}

func requireRecord(t testing.TB, l *Ledger, id string, expected Record) {
	r, err := l.GetHash(context.Background(), id)
	require.NoError(t, err)
	require.Equal(t, expected, r)
}

func requireEvent(t testing.TB, expected Payload, actual Event) {
	require.Equal(t, expected.Kind(), actual.Payload.Kind())

	if w, ok := expected.(Withdrawn); ok {
		aw := actual.Payload.(Withdrawn)
		require.Equal(t, w.Owner, aw.Owner)
		requireAmount(t, w.Amount, aw.Amount)
		return
	}

	require.Equal(t, expected, actual.Payload)
}

func requireEvents(t testing.TB, l *Ledger, expected ...Payload) {
	evs, err := l.Events(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, evs, len(expected))
	for i := range expected {
		require.EqualValues(t, i, evs[i].Seq)
		requireEvent(t, expected[i], evs[i])
	}
}

func TestErrorReasons(t *testing.T) {
	require.EqualError(t, ErrInsufficientPayment, "Not paid enough service fee")
	require.EqualError(t, ErrNotOwner, "not owner")
	require.EqualError(t, ErrNotAdministrator, "It is not owner")
}

func TestLedger(t *testing.T) {
	var (
		ctx    = context.Background()
		owner  = newAccount(t)
		ava    = newAccount(t)
		bob    = newAccount(t)
		ext    = make(wallets)
		l      = newLedger(t, owner, WithPayout(ext))
		events []Payload
	)

	requireOwner(t, l, owner)
	requireBalance(t, l, big.NewInt(0))
	requireAmount(t, big.NewInt(MinFee), l.MinFee())

	t.Run("save hash", func(t *testing.T) {
		ev, err := l.SaveHash(ctx, ava, udid, ipfsHash, amount(1))
		require.NoError(t, err)
		require.Equal(t, SavedHash{Submitter: ava, ContentHash: ipfsHash}, ev)
		events = append(events, ev)

		requireBalance(t, l, amount(1))
		requireRecord(t, l, udid, Record{Submitter: ava, ContentHash: ipfsHash})
		requireEvents(t, l, events...)
	})

	t.Run("not enough fee", func(t *testing.T) {
		payment := new(big.Int).Mul(big.NewInt(9), new(big.Int).Div(ether, big.NewInt(10000))) // 0.0009

		_, err := l.SaveHash(ctx, bob, udid, ipfsHash, payment)
		require.ErrorIs(t, err, ErrInsufficientPayment)
		require.EqualError(t, err, "Not paid enough service fee")

		requireBalance(t, l, amount(1))
		requireRecord(t, l, udid, Record{Submitter: ava, ContentHash: ipfsHash})
		requireEvents(t, l, events...)
	})

	t.Run("transfer owner", func(t *testing.T) {
		ev, err := l.TransferOwner(ctx, owner, ava)
		require.NoError(t, err)
		require.Equal(t, OwnerTransferred{Owner: owner, NewOwner: ava}, ev)
		events = append(events, ev)

		requireOwner(t, l, ava)
		requireEvents(t, l, events...)
	})

	t.Run("withdraw", func(t *testing.T) {
		ev, err := l.SaveHash(ctx, bob, udid, ipfsHash, amount(1000))
		require.NoError(t, err)
		events = append(events, ev)

		requireBalance(t, l, amount(1001))
		requireRecord(t, l, udid, Record{Submitter: bob, ContentHash: ipfsHash})

		w, err := l.Withdraw(ctx, ava, amount(1000))
		require.NoError(t, err)
		require.Equal(t, ava, w.Owner)
		requireAmount(t, amount(1000), w.Amount)
		events = append(events, w)

		requireBalance(t, l, amount(1))
		requireAmount(t, amount(1000), ext[ava])
		requireEvents(t, l, events...)
	})

	t.Run("withdraw by not owner", func(t *testing.T) {
		_, err := l.Withdraw(ctx, bob, amount(1))
		require.ErrorIs(t, err, ErrNotAdministrator)
		require.EqualError(t, err, "It is not owner")

		// previous administrator has no rights anymore
		_, err = l.Withdraw(ctx, owner, amount(1))
		require.ErrorIs(t, err, ErrNotAdministrator)

		requireBalance(t, l, amount(1))
		require.Nil(t, ext[bob])
		require.Nil(t, ext[owner])
		requireEvents(t, l, events...)
	})
}

func TestLedger_SaveHash(t *testing.T) {
	ctx := context.Background()

	t.Run("fee gate", func(t *testing.T) {
		acc := newAccount(t)
		l := newLedger(t, newAccount(t))

		for _, p := range []*big.Int{nil, big.NewInt(0), big.NewInt(-1), big.NewInt(MinFee - 1)} {
			_, err := l.SaveHash(ctx, acc, udid, ipfsHash, p)
			require.ErrorIs(t, err, ErrInsufficientPayment, p)
		}

		requireBalance(t, l, big.NewInt(0))
		requireRecord(t, l, udid, Record{})
		requireEvents(t, l)

		_, err := l.SaveHash(ctx, acc, udid, ipfsHash, big.NewInt(MinFee))
		require.NoError(t, err)
		requireBalance(t, l, big.NewInt(MinFee))
	})

	t.Run("empty arguments", func(t *testing.T) {
		l := newLedger(t, newAccount(t))

		_, err := l.SaveHash(ctx, newAccount(t), "", ipfsHash, amount(1))
		require.ErrorIs(t, err, ErrEmptyArgument)

		_, err = l.SaveHash(ctx, newAccount(t), udid, "", amount(1))
		require.ErrorIs(t, err, ErrEmptyArgument)

		_, err = l.SaveHash(ctx, newAccount(t), "", "", big.NewInt(MinFee-1))
		require.ErrorIs(t, err, ErrInsufficientPayment)

		_, err = l.SaveHash(ctx, newAccount(t), "", "", nil)
		require.ErrorIs(t, err, ErrInsufficientPayment)

		requireBalance(t, l, big.NewInt(0))
		requireEvents(t, l)
	})

	t.Run("too long content hash", func(t *testing.T) {
		var (
			acc = newAccount(t)
			l   = newLedger(t, newAccount(t))
		)

		saved, err := l.SaveHash(ctx, acc, udid, ipfsHash, amount(1))
		require.NoError(t, err)

		_, err = l.SaveHash(ctx, acc, udid, strings.Repeat("Q", MaxContentHashLen+1), amount(1))
		require.ErrorIs(t, err, ErrContentHashTooLong)
		_, err = l.SaveHash(ctx, acc, "other", strings.Repeat("Q", MaxContentHashLen+1), amount(1))
		require.ErrorIs(t, err, ErrContentHashTooLong)

		requireBalance(t, l, amount(1))
		requireRecord(t, l, udid, Record{Submitter: acc, ContentHash: ipfsHash})
		requireRecord(t, l, "other", Record{})
		requireEvents(t, l, saved)

		longest := strings.Repeat("Q", MaxContentHashLen)
		next, err := l.SaveHash(ctx, acc, "other", longest, amount(1))
		require.NoError(t, err)

		requireRecord(t, l, "other", Record{Submitter: acc, ContentHash: longest})
		requireEvents(t, l, saved, next)
	})

	t.Run("too large amount", func(t *testing.T) {
		var (
			acc = newAccount(t)
			l   = newLedger(t, newAccount(t))
			// the largest value encoded in 64 bytes
			limit = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 8*64-1), big.NewInt(1))
		)

		_, err := l.SaveHash(ctx, acc, udid, ipfsHash, new(big.Int).Add(limit, big.NewInt(1)))
		require.ErrorIs(t, err, ErrAmountTooLarge)

		requireBalance(t, l, big.NewInt(0))
		requireRecord(t, l, udid, Record{})
		requireEvents(t, l)

		saved, err := l.SaveHash(ctx, acc, udid, ipfsHash, limit)
		require.NoError(t, err)

		_, err = l.SaveHash(ctx, acc, "other", ipfsHash, amount(1))
		require.ErrorIs(t, err, ErrAmountTooLarge)

		requireBalance(t, l, limit)
		requireRecord(t, l, "other", Record{})
		requireEvents(t, l, saved)
	})

	t.Run("overwrite", func(t *testing.T) {
		const other = "QmT78zSuBmuS4z925WZfrqQ1qHaJ56DQaTfyMUF7F8ff5o"

		var (
			l = newLedger(t, newAccount(t))
			a = newAccount(t)
			b = newAccount(t)
		)

		evA, err := l.SaveHash(ctx, a, udid, ipfsHash, amount(1))
		require.NoError(t, err)
		evB, err := l.SaveHash(ctx, b, udid, other, amount(2))
		require.NoError(t, err)

		requireRecord(t, l, udid, Record{Submitter: b, ContentHash: other})
		requireBalance(t, l, amount(3))
		requireEvents(t, l, evA, evB)
	})

	t.Run("custom fee", func(t *testing.T) {
		l := newLedger(t, newAccount(t), WithMinFee(big.NewInt(1_0000_0)))

		_, err := l.SaveHash(ctx, newAccount(t), udid, ipfsHash, big.NewInt(9_9999))
		require.ErrorIs(t, err, ErrInsufficientPayment)

		_, err = l.SaveHash(ctx, newAccount(t), udid, ipfsHash, big.NewInt(1_0000_0))
		require.NoError(t, err)
	})

	t.Run("negative fee", func(t *testing.T) {
		_, err := New(storage.NewMemoryStore(), newAccount(t), WithMinFee(big.NewInt(-1)))
		require.Error(t, err)
	})
}

func TestLedger_GetHash(t *testing.T) {
	l := newLedger(t, newAccount(t))

	r, err := l.GetHash(context.Background(), "unknown")
	require.NoError(t, err)
	require.True(t, r.IsZero())
}

func TestLedger_TransferOwner(t *testing.T) {
	var (
		ctx   = context.Background()
		owner = newAccount(t)
		acc   = newAccount(t)
		l     = newLedger(t, owner)
	)

	_, err := l.TransferOwner(ctx, acc, acc)
	require.ErrorIs(t, err, ErrNotOwner)
	requireOwner(t, l, owner)
	requireEvents(t, l)

	ev, err := l.TransferOwner(ctx, owner, owner)
	require.NoError(t, err)
	require.Equal(t, OwnerTransferred{Owner: owner, NewOwner: owner}, ev)
	requireOwner(t, l, owner)

	_, err = l.TransferOwner(ctx, owner, acc)
	require.NoError(t, err)
	requireOwner(t, l, acc)

	_, err = l.TransferOwner(ctx, owner, owner)
	require.ErrorIs(t, err, ErrNotOwner)
	requireOwner(t, l, acc)

	requireEvents(t, l,
		OwnerTransferred{Owner: owner, NewOwner: owner},
		OwnerTransferred{Owner: owner, NewOwner: acc},
	)
}

func TestLedger_Withdraw(t *testing.T) {
	ctx := context.Background()

	t.Run("insufficient balance", func(t *testing.T) {
		var (
			owner = newAccount(t)
			ext   = make(wallets)
			l     = newLedger(t, owner, WithPayout(ext))
		)

		saved, err := l.SaveHash(ctx, newAccount(t), udid, ipfsHash, amount(1))
		require.NoError(t, err)

		_, err = l.Withdraw(ctx, owner, amount(2))
		require.ErrorIs(t, err, ErrInsufficientBalance)

		stranger := newAccount(t)
		for _, a := range []*big.Int{nil, big.NewInt(-1), amount(2), amount(1)} {
			_, err = l.Withdraw(ctx, stranger, a)
			require.ErrorIs(t, err, ErrNotAdministrator, a)
		}

		_, err = l.Withdraw(ctx, owner, big.NewInt(-1))
		require.ErrorIs(t, err, ErrNegativeAmount)

		_, err = l.Withdraw(ctx, owner, nil)
		require.ErrorIs(t, err, ErrNegativeAmount)

		requireBalance(t, l, amount(1))
		require.Empty(t, ext)
		requireEvents(t, l, saved)

		w, err := l.Withdraw(ctx, owner, amount(1))
		require.NoError(t, err)
		requireBalance(t, l, big.NewInt(0))
		requireAmount(t, amount(1), ext[owner])
		requireEvents(t, l, saved, w)
	})

	t.Run("payout failure", func(t *testing.T) {
		var (
			owner = newAccount(t)
			boom  = errors.New("no GAS")
			fail  = true
			paid  *big.Int
		)

		l := newLedger(t, owner, WithPayout(payoutFunc(func(_ context.Context, to util.Uint160, amount *big.Int) error {
			if fail {
				return boom
			}
			require.Equal(t, owner, to)
			paid = amount
			return nil
		})))

		saved, err := l.SaveHash(ctx, newAccount(t), udid, ipfsHash, amount(5))
		require.NoError(t, err)

		_, err = l.Withdraw(ctx, owner, amount(2))
		require.ErrorIs(t, err, ErrPayoutFailed)
		require.ErrorIs(t, err, boom)

		requireBalance(t, l, amount(5))
		requireEvents(t, l, saved)

		fail = false

		w, err := l.Withdraw(ctx, owner, amount(2))
		require.NoError(t, err)
		requireAmount(t, amount(2), paid)
		requireBalance(t, l, amount(3))
		requireEvents(t, l, saved, w)
	})

	t.Run("reentrancy", func(t *testing.T) {
		var (
			owner = newAccount(t)
			l     *Ledger
			errs  []error
		)

		l = newLedger(t, owner, WithPayout(payoutFunc(func(ctx context.Context, _ util.Uint160, amount *big.Int) error {
			_, err := l.Withdraw(ctx, owner, amount)
			errs = append(errs, err)
			_, err = l.Balance(ctx)
			errs = append(errs, err)
			_, err = l.SaveHash(ctx, owner, udid, ipfsHash, amount)
			errs = append(errs, err)

			// unrelated contexts must not wait for the lock held by Withdraw
			bg := context.Background()
			_, err = l.GetOwner(bg)
			errs = append(errs, err)
			_, err = l.GetHash(bg, udid)
			errs = append(errs, err)
			_, err = l.TransferOwner(bg, owner, owner)
			errs = append(errs, err)
			_, err = l.Events(bg, 0)
			errs = append(errs, err)

			done := make(chan error, 1)
			go func() {
				_, err := l.Balance(bg)
				done <- err
			}()
			select {
			case err = <-done:
			case <-time.After(5 * time.Second):
				err = errors.New("ledger call blocked by payout")
			}
			errs = append(errs, err)
			return nil
		})))

		saved, err := l.SaveHash(ctx, newAccount(t), udid, ipfsHash, amount(2))
		require.NoError(t, err)

		w, err := l.Withdraw(ctx, owner, amount(1))
		require.NoError(t, err)

		require.Len(t, errs, 8)
		for _, err := range errs {
			require.ErrorIs(t, err, ErrReentrantCall)
		}
		requireBalance(t, l, amount(1))
		requireOwner(t, l, owner)
		requireEvents(t, l, saved, w)
	})
}

func TestLedger_Reopen(t *testing.T) {
	var (
		ctx   = context.Background()
		store = storage.NewMemoryStore()
		owner = newAccount(t)
		acc   = newAccount(t)
	)

	l, err := New(store, owner)
	require.NoError(t, err)

	saved, err := l.SaveHash(ctx, acc, udid, ipfsHash, amount(3))
	require.NoError(t, err)
	transferred, err := l.TransferOwner(ctx, owner, acc)
	require.NoError(t, err)

	l, err = New(store, newAccount(t))
	require.NoError(t, err)

	requireOwner(t, l, acc)
	requireBalance(t, l, amount(3))
	requireRecord(t, l, udid, Record{Submitter: acc, ContentHash: ipfsHash})
	requireEvents(t, l, saved, transferred)

	w, err := l.Withdraw(ctx, acc, amount(3))
	require.NoError(t, err)
	requireEvents(t, l, saved, transferred, w)
}

func TestLedger_Events(t *testing.T) {
	var (
		ctx   = context.Background()
		owner = newAccount(t)
		l     = newLedger(t, owner)
	)

	ch, cancel := l.Subscribe(10)
	slow, _ := l.Subscribe(0)

	saved, err := l.SaveHash(ctx, owner, udid, ipfsHash, amount(1))
	require.NoError(t, err)
	w, err := l.Withdraw(ctx, owner, amount(1))
	require.NoError(t, err)

	// failed calls are not delivered
	_, err = l.Withdraw(ctx, owner, amount(1))
	require.ErrorIs(t, err, ErrInsufficientBalance)

	ev := <-ch
	require.EqualValues(t, 0, ev.Seq)
	requireEvent(t, saved, ev)

	ev = <-ch
	require.EqualValues(t, 1, ev.Seq)
	requireEvent(t, w, ev)

	_, ok := <-slow
	require.False(t, ok, "slow subscriber must be dropped")

	cancel()
	_, ok = <-ch
	require.False(t, ok)

	evs, err := l.Events(ctx, 1)
	require.NoError(t, err)
	require.Len(t, evs, 1)
	requireEvent(t, w, evs[0])

	evs, err = l.Events(ctx, 2)
	require.NoError(t, err)
	require.Empty(t, evs)
}

func TestLedger_Concurrent(t *testing.T) {
	const n = 50

	var (
		ctx   = context.Background()
		owner = newAccount(t)
		l     = newLedger(t, owner)
		wg    sync.WaitGroup
		errs  = make(chan error, 2*n)
		accs  = make([]util.Uint160, n)
	)

	for i := range accs {
		accs[i] = newAccount(t)
	}

	for i := 0; i < n; i++ {
		i := i
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, err := l.SaveHash(ctx, accs[i], fmt.Sprintf("udid-%d", i), ipfsHash, big.NewInt(MinFee))
			errs <- err
		}()
		go func() {
			defer wg.Done()
			_, err := l.GetHash(ctx, fmt.Sprintf("udid-%d", i))
			errs <- err
		}()
	}

	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}

	requireBalance(t, l, new(big.Int).Mul(big.NewInt(MinFee), big.NewInt(n)))

	evs, err := l.Events(ctx, 0)
	require.NoError(t, err)
	require.Len(t, evs, n)
	for i := range evs {
		require.EqualValues(t, i, evs[i].Seq)
	}
}
