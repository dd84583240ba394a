package ledger

import (
	"fmt"
	"math/big"
	"sync"

	"github.com/nspcc-dev/neo-go/pkg/encoding/bigint"
	"github.com/nspcc-dev/neo-go/pkg/io"
	"github.com/nspcc-dev/neo-go/pkg/util"
)

// Kind is a type of the ledger event.
type Kind byte

const (
	_ Kind = iota
	// KindSavedHash is a kind of SavedHash event.
	KindSavedHash
	// KindOwnerTransferred is a kind of OwnerTransferred event.
	KindOwnerTransferred
	// KindWithdrawn is a kind of Withdrawn event.
	KindWithdrawn
)

// String returns event name, the same as the one used by AlarmStorage
// contract notifications.
func (k Kind) String() string {
	switch k {
	case KindSavedHash:
		return "SavedHash"
	case KindOwnerTransferred:
		return "OwnerTransferred"
	case KindWithdrawn:
		return "Withdrawn"
	default:
		return fmt.Sprintf("Kind(%d)", byte(k))
	}
}

// Payload is a kind-specific event body: one of SavedHash, OwnerTransferred
// or Withdrawn.
type Payload interface {
	Kind() Kind
	EncodeBinary(w *io.BinWriter)
}

const maxAmountLen = 64

// SavedHash is produced by successful SaveHash.
type SavedHash struct {
	Submitter   util.Uint160
	ContentHash string
}

// OwnerTransferred is produced by successful TransferOwner.
type OwnerTransferred struct {
	Owner    util.Uint160
	NewOwner util.Uint160
}

// Withdrawn is produced by successful Withdraw.
type Withdrawn struct {
	Owner  util.Uint160
	Amount *big.Int
}

// Event is an immutable fact appended to the ledger log. Seq numbers start
// from zero and have no gaps.
type Event struct {
	Seq     uint64
	Payload Payload
}

// Kind implements Payload.
func (SavedHash) Kind() Kind { return KindSavedHash }

// Kind implements Payload.
func (OwnerTransferred) Kind() Kind { return KindOwnerTransferred }

// Kind implements Payload.
func (Withdrawn) Kind() Kind { return KindWithdrawn }

// EncodeBinary implements Payload.
func (e SavedHash) EncodeBinary(w *io.BinWriter) {
	w.WriteBytes(e.Submitter[:])
	w.WriteString(e.ContentHash)
}

// DecodeBinary decodes event body encoded by EncodeBinary.
func (e *SavedHash) DecodeBinary(r *io.BinReader) {
	r.ReadBytes(e.Submitter[:])
	e.ContentHash = r.ReadString(MaxContentHashLen)
}

// EncodeBinary implements Payload.
func (e OwnerTransferred) EncodeBinary(w *io.BinWriter) {
	w.WriteBytes(e.Owner[:])
	w.WriteBytes(e.NewOwner[:])
}

// DecodeBinary decodes event body encoded by EncodeBinary.
func (e *OwnerTransferred) DecodeBinary(r *io.BinReader) {
	r.ReadBytes(e.Owner[:])
	r.ReadBytes(e.NewOwner[:])
}

// EncodeBinary implements Payload.
func (e Withdrawn) EncodeBinary(w *io.BinWriter) {
	w.WriteBytes(e.Owner[:])
	w.WriteVarBytes(bigint.ToBytes(e.Amount))
}

// DecodeBinary decodes event body encoded by EncodeBinary.
func (e *Withdrawn) DecodeBinary(r *io.BinReader) {
	r.ReadBytes(e.Owner[:])
	e.Amount = bigint.FromBytes(r.ReadVarBytes(maxAmountLen))
}

func encodeEvent(p Payload) ([]byte, error) {
	w := io.NewBufBinWriter()
	w.WriteB(byte(p.Kind()))
	p.EncodeBinary(w.BinWriter)
	if w.Err != nil {
		return nil, w.Err
	}
	return w.Bytes(), nil
}

func decodeEvent(seq uint64, data []byte) (Event, error) {
	r := io.NewBinReaderFromBuf(data)

	var p Payload
	switch k := Kind(r.ReadB()); k {
	case KindSavedHash:
		var v SavedHash
		v.DecodeBinary(r)
		p = v
	case KindOwnerTransferred:
		var v OwnerTransferred
		v.DecodeBinary(r)
		p = v
	case KindWithdrawn:
		var v Withdrawn
		v.DecodeBinary(r)
		p = v
	default:
		if r.Err != nil {
			return Event{}, r.Err
		}
		return Event{}, fmt.Errorf("unknown event kind %d", byte(k))
	}

	if r.Err != nil {
		return Event{}, fmt.Errorf("decode %s event: %w", p.Kind(), r.Err)
	}

	return Event{Seq: seq, Payload: p}, nil
}

// hub fans committed events out to subscribers. Subscribers that do not keep
// up are dropped, their channels are closed.
type hub struct {
	mtx  sync.Mutex
	next uint64
	subs map[uint64]chan Event
}

func (h *hub) subscribe(buf int) (uint64, <-chan Event) {
	h.mtx.Lock()
	defer h.mtx.Unlock()

	if h.subs == nil {
		h.subs = make(map[uint64]chan Event)
	}

	id := h.next
	h.next++

	ch := make(chan Event, buf)
	h.subs[id] = ch

	return id, ch
}

func (h *hub) unsubscribe(id uint64) {
	h.mtx.Lock()
	defer h.mtx.Unlock()

	if ch, ok := h.subs[id]; ok {
		delete(h.subs, id)
		close(ch)
	}
}

// publish returns the number of dropped subscribers.
func (h *hub) publish(ev Event) int {
	h.mtx.Lock()
	defer h.mtx.Unlock()

	var dropped int
	for id, ch := range h.subs {
		select {
		case ch <- ev:
		default:
			delete(h.subs, id)
			close(ch)
			dropped++
		}
	}

	return dropped
}
