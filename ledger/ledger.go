package ledger

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"sync/atomic"

	"github.com/nspcc-dev/neo-go/pkg/core/storage"
	"github.com/nspcc-dev/neo-go/pkg/encoding/address"
	"github.com/nspcc-dev/neo-go/pkg/encoding/bigint"
	"github.com/nspcc-dev/neo-go/pkg/io"
	"github.com/nspcc-dev/neo-go/pkg/util"
	"go.uber.org/zap"
)

// MinFee is the default service fee: 0.001 of a currency unit with 18
// decimals.
const MinFee = 1_000_000_000_000_000

const (
	ownerKey     = 0x01
	balanceKey   = 0x02
	seqKey       = 0x03
	recordPrefix = 0x10
	eventPrefix  = 0x20
)

// Ledger registers content hashes for UDIDs in exchange for a service fee and
// keeps collected fees until the administrator withdraws them.
//
// All state lives in the underlying storage.Store and every operation is
// applied as a single change set. Mutating operations are serialized, reads
// run concurrently with each other and never observe partially applied
// operations. Failed operations leave the state untouched.
type Ledger struct {
	log    *zap.Logger
	payout Payout
	minFee *big.Int

	mtx   sync.RWMutex
	store storage.Store

	// set while Withdraw waits for the payout
	paying atomic.Bool

	subs hub
}

// Option configures Ledger.
type Option func(*Ledger)

// WithLogger sets the logger, zap.NewNop is used by default.
func WithLogger(log *zap.Logger) Option {
	return func(l *Ledger) {
		l.log = log
	}
}

// WithPayout sets the way withdrawn funds reach the administrator. Funds are
// only booked (NopPayout) by default.
func WithPayout(p Payout) Option {
	return func(l *Ledger) {
		l.payout = p
	}
}

// WithMinFee overrides MinFee, it's useful for currencies with a different
// precision.
func WithMinFee(fee *big.Int) Option {
	return func(l *Ledger) {
		l.minFee = new(big.Int).Set(fee)
	}
}

// New opens Ledger stored in the given store. Empty store is initialized with
// creator as the administrator and zero balance, otherwise creator is ignored
// and the stored state is used.
func New(store storage.Store, creator util.Uint160, opts ...Option) (*Ledger, error) {
	l := &Ledger{
		log:    zap.NewNop(),
		payout: NopPayout{},
		minFee: big.NewInt(MinFee),
		store:  store,
	}

	for _, o := range opts {
		o(l)
	}

	if l.minFee.Sign() < 0 {
		return nil, fmt.Errorf("negative service fee %s", l.minFee)
	}

	owner, err := l.owner()
	switch {
	case err == nil:
		l.log.Info("ledger state loaded",
			zap.String("administrator", address.Uint160ToString(owner)))
		return l, nil
	case !errors.Is(err, storage.ErrKeyNotFound):
		return nil, fmt.Errorf("read administrator: %w", err)
	}

	err = store.PutChangeSet(map[string][]byte{
		string([]byte{ownerKey}):   creator.BytesBE(),
		string([]byte{balanceKey}): encodeAmount(big.NewInt(0)),
		string([]byte{seqKey}):     encodeSeq(0),
	}, nil)
	if err != nil {
		return nil, fmt.Errorf("initialize ledger: %w", err)
	}

	l.log.Info("ledger initialized",
		zap.String("administrator", address.Uint160ToString(creator)))

	return l, nil
}

// MinFee returns minimal payment accepted by SaveHash.
func (l *Ledger) MinFee() *big.Int {
	return new(big.Int).Set(l.minFee)
}

// SaveHash saves content hash for the UDID on behalf of the caller who
// attached payment to the call. Existing record is overwritten by anyone who
// pays. Payment is added to the ledger balance.
func (l *Ledger) SaveHash(ctx context.Context, caller util.Uint160, udid, contentHash string, payment *big.Int) (SavedHash, error) {
	if l.reentered() {
		return SavedHash{}, ErrReentrantCall
	}
	if payment == nil || payment.Cmp(l.minFee) < 0 {
		return SavedHash{}, ErrInsufficientPayment
	}
	if udid == "" || contentHash == "" {
		return SavedHash{}, ErrEmptyArgument
	}
	if len(contentHash) > MaxContentHashLen {
		return SavedHash{}, ErrContentHashTooLong
	}
	if len(bigint.ToBytes(payment)) > maxAmountLen {
		return SavedHash{}, ErrAmountTooLarge
	}

	l.mtx.Lock()
	defer l.mtx.Unlock()

	balance, err := l.balance()
	if err != nil {
		return SavedHash{}, err
	}

	newBalance := new(big.Int).Add(balance, payment)
	if len(bigint.ToBytes(newBalance)) > maxAmountLen {
		return SavedHash{}, ErrAmountTooLarge
	}

	seq, err := l.nextSeq()
	if err != nil {
		return SavedHash{}, err
	}

	rec := Record{Submitter: caller, ContentHash: contentHash}
	ev := SavedHash{Submitter: caller, ContentHash: contentHash}

	cs, err := newChangeSet(seq, ev)
	if err != nil {
		return SavedHash{}, err
	}

	w := io.NewBufBinWriter()
	rec.EncodeBinary(w.BinWriter)
	if w.Err != nil {
		return SavedHash{}, fmt.Errorf("encode record: %w", w.Err)
	}

	cs[string(recordKey(udid))] = w.Bytes()
	cs[string([]byte{balanceKey})] = encodeAmount(newBalance)

	if err := l.commit(cs); err != nil {
		return SavedHash{}, err
	}

	l.log.Debug("hash saved",
		zap.String("udid", udid),
		zap.String("submitter", address.Uint160ToString(caller)),
		zap.Stringer("payment", payment))

	l.publish(Event{Seq: seq, Payload: ev})

	return ev, nil
}

// GetHash returns record saved for the UDID. Zero Record is returned for
// unknown UDIDs.
func (l *Ledger) GetHash(ctx context.Context, udid string) (Record, error) {
	if l.reentered() {
		return Record{}, ErrReentrantCall
	}

	l.mtx.RLock()
	defer l.mtx.RUnlock()

	data, err := l.store.Get(recordKey(udid))
	if err != nil {
		if errors.Is(err, storage.ErrKeyNotFound) {
			return Record{}, nil
		}
		return Record{}, fmt.Errorf("read record: %w", err)
	}

	var rec Record

	r := io.NewBinReaderFromBuf(data)
	rec.DecodeBinary(r)
	if r.Err != nil {
		return Record{}, fmt.Errorf("decode record: %w", r.Err)
	}

	return rec, nil
}

// TransferOwner makes newOwner the administrator. Only the current
// administrator can do it.
func (l *Ledger) TransferOwner(ctx context.Context, caller, newOwner util.Uint160) (OwnerTransferred, error) {
	if l.reentered() {
		return OwnerTransferred{}, ErrReentrantCall
	}

	l.mtx.Lock()
	defer l.mtx.Unlock()

	owner, err := l.owner()
	if err != nil {
		return OwnerTransferred{}, fmt.Errorf("read administrator: %w", err)
	}

	if !caller.Equals(owner) {
		return OwnerTransferred{}, ErrNotOwner
	}

	seq, err := l.nextSeq()
	if err != nil {
		return OwnerTransferred{}, err
	}

	ev := OwnerTransferred{Owner: owner, NewOwner: newOwner}

	cs, err := newChangeSet(seq, ev)
	if err != nil {
		return OwnerTransferred{}, err
	}

	cs[string([]byte{ownerKey})] = newOwner.BytesBE()

	if err := l.commit(cs); err != nil {
		return OwnerTransferred{}, err
	}

	l.log.Info("administrator changed",
		zap.String("old", address.Uint160ToString(owner)),
		zap.String("new", address.Uint160ToString(newOwner)))

	l.publish(Event{Seq: seq, Payload: ev})

	return ev, nil
}

// GetOwner returns current administrator.
func (l *Ledger) GetOwner(ctx context.Context) (util.Uint160, error) {
	if l.reentered() {
		return util.Uint160{}, ErrReentrantCall
	}

	l.mtx.RLock()
	defer l.mtx.RUnlock()

	owner, err := l.owner()
	if err != nil {
		return util.Uint160{}, fmt.Errorf("read administrator: %w", err)
	}

	return owner, nil
}

// Balance returns collected fees available for withdrawal.
func (l *Ledger) Balance(ctx context.Context) (*big.Int, error) {
	if l.reentered() {
		return nil, ErrReentrantCall
	}

	l.mtx.RLock()
	defer l.mtx.RUnlock()

	return l.balance()
}

// Withdraw sends amount of collected fees to the administrator using
// configured Payout. Only the current administrator can do it.
//
// The balance is decreased and the event is stored before the payout is made.
// If the payout fails, the previous state is restored before any other call
// can observe the ledger, and the error wrapping ErrPayoutFailed is returned.
// If the payout reports ErrPayoutPending, the withdrawal stays booked and both
// the event and the error are returned.
//
// Any Ledger call made while the payout is running fails with
// ErrReentrantCall.
func (l *Ledger) Withdraw(ctx context.Context, caller util.Uint160, amount *big.Int) (Withdrawn, error) {
	if l.reentered() {
		return Withdrawn{}, ErrReentrantCall
	}

	l.mtx.Lock()
	defer l.mtx.Unlock()

	owner, err := l.owner()
	if err != nil {
		return Withdrawn{}, fmt.Errorf("read administrator: %w", err)
	}

	if !caller.Equals(owner) {
		return Withdrawn{}, ErrNotAdministrator
	}

	if amount == nil || amount.Sign() < 0 {
		return Withdrawn{}, ErrNegativeAmount
	}

	balance, err := l.balance()
	if err != nil {
		return Withdrawn{}, err
	}

	if balance.Cmp(amount) < 0 {
		return Withdrawn{}, ErrInsufficientBalance
	}

	seq, err := l.nextSeq()
	if err != nil {
		return Withdrawn{}, err
	}

	ev := Withdrawn{Owner: owner, Amount: new(big.Int).Set(amount)}

	cs, err := newChangeSet(seq, ev)
	if err != nil {
		return Withdrawn{}, err
	}

	cs[string([]byte{balanceKey})] = encodeAmount(new(big.Int).Sub(balance, amount))

	if err := l.commit(cs); err != nil {
		return Withdrawn{}, err
	}

	err = l.pay(ctx, owner, ev.Amount)
	if errors.Is(err, ErrPayoutPending) {
		l.log.Warn("payout outcome is unknown, withdrawal is kept",
			zap.String("administrator", address.Uint160ToString(owner)),
			zap.Stringer("amount", amount),
			zap.Uint64("event", seq),
			zap.Error(err))

		l.publish(Event{Seq: seq, Payload: ev})

		return ev, err
	}

	if err != nil {
		rollback := map[string][]byte{
			string([]byte{balanceKey}): encodeAmount(balance),
			string([]byte{seqKey}):     encodeSeq(seq),
			string(eventKey(seq)):      nil,
		}

		if rErr := l.commit(rollback); rErr != nil {
			l.log.Error("failed to restore ledger state after payout failure",
				zap.Uint64("event", seq),
				zap.Error(rErr))
			return Withdrawn{}, fmt.Errorf("%w: %w (restore state: %w)", ErrPayoutFailed, err, rErr)
		}

		l.log.Warn("payout failed",
			zap.String("administrator", address.Uint160ToString(owner)),
			zap.Stringer("amount", amount),
			zap.Error(err))

		return Withdrawn{}, fmt.Errorf("%w: %w", ErrPayoutFailed, err)
	}

	l.log.Info("fees withdrawn",
		zap.String("administrator", address.Uint160ToString(owner)),
		zap.Stringer("amount", amount))

	l.publish(Event{Seq: seq, Payload: ev})

	return ev, nil
}

// Events returns stored events starting from the given sequence number.
func (l *Ledger) Events(ctx context.Context, from uint64) ([]Event, error) {
	if l.reentered() {
		return nil, ErrReentrantCall
	}

	l.mtx.RLock()
	defer l.mtx.RUnlock()

	var (
		res []Event
		err error
	)

	l.store.Seek(storage.SeekRange{
		Prefix: []byte{eventPrefix},
		Start:  encodeSeq(from),
	}, func(k, v []byte) bool {
		if len(k) != 1+8 {
			err = fmt.Errorf("invalid event key length %d", len(k))
			return false
		}

		var ev Event

		ev, err = decodeEvent(binary.BigEndian.Uint64(k[1:]), v)
		if err != nil {
			return false
		}

		res = append(res, ev)
		return true
	})
	if err != nil {
		return nil, fmt.Errorf("read events: %w", err)
	}

	return res, nil
}

// Subscribe returns a channel receiving events of every successful operation
// after it is committed. The channel is closed by the returned function or
// when the subscriber does not read events fast enough to fit into buf; in
// the latter case missed events can be read with Events.
func (l *Ledger) Subscribe(buf int) (<-chan Event, func()) {
	id, ch := l.subs.subscribe(buf)
	return ch, func() { l.subs.unsubscribe(id) }
}

func (l *Ledger) reentered() bool {
	return l.paying.Load()
}

func (l *Ledger) pay(ctx context.Context, to util.Uint160, amount *big.Int) error {
	l.paying.Store(true)
	defer l.paying.Store(false)

	return l.payout.Pay(ctx, to, amount)
}

func (l *Ledger) publish(ev Event) {
	if dropped := l.subs.publish(ev); dropped > 0 {
		l.log.Warn("slow event subscribers dropped",
			zap.Int("count", dropped),
			zap.Uint64("event", ev.Seq))
	}
}

func (l *Ledger) commit(cs map[string][]byte) error {
	if err := l.store.PutChangeSet(cs, nil); err != nil {
		return fmt.Errorf("commit changes: %w", err)
	}
	return nil
}

func (l *Ledger) owner() (util.Uint160, error) {
	data, err := l.store.Get([]byte{ownerKey})
	if err != nil {
		return util.Uint160{}, err
	}
	return util.Uint160DecodeBytesBE(data)
}

func (l *Ledger) balance() (*big.Int, error) {
	data, err := l.store.Get([]byte{balanceKey})
	if err != nil {
		if errors.Is(err, storage.ErrKeyNotFound) {
			return big.NewInt(0), nil
		}
		return nil, fmt.Errorf("read balance: %w", err)
	}
	return bigint.FromBytes(data), nil
}

func (l *Ledger) nextSeq() (uint64, error) {
	data, err := l.store.Get([]byte{seqKey})
	if err != nil {
		if errors.Is(err, storage.ErrKeyNotFound) {
			return 0, nil
		}
		return 0, fmt.Errorf("read event sequence: %w", err)
	}
	if len(data) != 8 {
		return 0, fmt.Errorf("invalid event sequence length %d", len(data))
	}
	return binary.BigEndian.Uint64(data), nil
}

// newChangeSet returns change set storing the event and advancing event
// sequence.
func newChangeSet(seq uint64, p Payload) (map[string][]byte, error) {
	data, err := encodeEvent(p)
	if err != nil {
		return nil, fmt.Errorf("encode %s event: %w", p.Kind(), err)
	}

	return map[string][]byte{
		string(eventKey(seq)):  data,
		string([]byte{seqKey}): encodeSeq(seq + 1),
	}, nil
}

func recordKey(udid string) []byte {
	return append([]byte{recordPrefix}, udid...)
}

func eventKey(seq uint64) []byte {
	return append([]byte{eventPrefix}, encodeSeq(seq)...)
}

func encodeSeq(seq uint64) []byte {
	return binary.BigEndian.AppendUint64(nil, seq)
}

// encodeAmount never returns an empty slice since nil and empty values are
// treated as deletions by some stores.
func encodeAmount(n *big.Int) []byte {
	b := bigint.ToBytes(n)
	if len(b) == 0 {
		return []byte{0}
	}
	return b
}
