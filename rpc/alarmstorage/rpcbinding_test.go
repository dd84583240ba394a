package alarmstorage

import (
	"errors"
	"math/big"
	"testing"

	"github.com/nspcc-dev/neo-go/pkg/core/state"
	"github.com/nspcc-dev/neo-go/pkg/core/transaction"
	"github.com/nspcc-dev/neo-go/pkg/neorpc/result"
	"github.com/nspcc-dev/neo-go/pkg/rpcclient/gas"
	"github.com/nspcc-dev/neo-go/pkg/smartcontract"
	"github.com/nspcc-dev/neo-go/pkg/util"
	"github.com/nspcc-dev/neo-go/pkg/vm/stackitem"
	"github.com/stretchr/testify/require"
)

const ipfsHash = "QmSehVuH9vqgumD18v2XaN7FtRmW6RS15HrfsxkDQT6T4X"

type call struct {
	method string
	params []any
}

type testAct struct {
	err    error
	res    *result.Invoke
	sender util.Uint160
	calls  []call
	script []byte
}

func (t *testAct) Call(contract util.Uint160, operation string, params ...any) (*result.Invoke, error) {
	t.calls = append(t.calls, call{operation, params})
	return t.res, t.err
}
func (t *testAct) MakeRun(script []byte) (*transaction.Transaction, error) {
	t.script = script
	return transaction.New(script, 0), t.err
}
func (t *testAct) MakeUnsignedRun(script []byte, attrs []transaction.Attribute) (*transaction.Transaction, error) {
	t.script = script
	return transaction.New(script, 0), t.err
}
func (t *testAct) SendRun(script []byte) (util.Uint256, uint32, error) {
	t.script = script
	return util.Uint256{1}, 42, t.err
}
func (t *testAct) MakeCall(contract util.Uint160, method string, params ...any) (*transaction.Transaction, error) {
	t.calls = append(t.calls, call{method, params})
	return transaction.New([]byte{1}, 0), t.err
}
func (t *testAct) MakeUnsignedCall(contract util.Uint160, method string, attrs []transaction.Attribute, params ...any) (*transaction.Transaction, error) {
	t.calls = append(t.calls, call{method, params})
	return transaction.New([]byte{1}, 0), t.err
}
func (t *testAct) SendCall(contract util.Uint160, method string, params ...any) (util.Uint256, uint32, error) {
	t.calls = append(t.calls, call{method, params})
	return util.Uint256{1}, 42, t.err
}
func (t *testAct) Sender() util.Uint160 {
	return t.sender
}

func halt(items ...stackitem.Item) *result.Invoke {
	return &result.Invoke{State: "HALT", Stack: items}
}

func TestReader(t *testing.T) {
	ta := new(testAct)
	r := NewReader(ta, util.Uint160{1, 2, 3})

	ta.err = errors.New("bad")
	_, err := r.GetHash("udid")
	require.Error(t, err)
	_, err = r.GetOwner()
	require.Error(t, err)
	_, err = r.Balance()
	require.Error(t, err)

	ta.err = nil

	t.Run("getHash", func(t *testing.T) {
		submitter := util.Uint160{4, 5, 6}

		ta.res = halt(stackitem.NewStruct([]stackitem.Item{
			stackitem.Make(submitter.BytesBE()),
			stackitem.Make(ipfsHash),
		}))
		rec, err := r.GetHash("udid")
		require.NoError(t, err)
		require.Equal(t, &AlarmstorageRecord{Submitter: submitter, ContentHash: ipfsHash}, rec)
		require.Equal(t, call{"getHash", []any{"udid"}}, ta.calls[len(ta.calls)-1])

		ta.res = halt(stackitem.NewStruct([]stackitem.Item{
			stackitem.Make([]byte{}),
			stackitem.Make(""),
		}))
		rec, err = r.GetHash("unknown")
		require.NoError(t, err)
		require.Equal(t, &AlarmstorageRecord{}, rec)

		ta.res = halt(stackitem.NewStruct([]stackitem.Item{
			stackitem.Null{},
			stackitem.Make(""),
		}))
		rec, err = r.GetHash("unknown")
		require.NoError(t, err)
		require.Equal(t, &AlarmstorageRecord{}, rec)

		ta.res = halt(stackitem.NewStruct([]stackitem.Item{
			stackitem.Make([]byte{1, 2, 3}),
			stackitem.Make(ipfsHash),
		}))
		_, err = r.GetHash("udid")
		require.Error(t, err)

		ta.res = halt(stackitem.NewStruct([]stackitem.Item{
			stackitem.Make(submitter.BytesBE()),
		}))
		_, err = r.GetHash("udid")
		require.Error(t, err)

		ta.res = halt(stackitem.Make(42))
		_, err = r.GetHash("udid")
		require.Error(t, err)
	})

	t.Run("getOwner", func(t *testing.T) {
		owner := util.Uint160{7, 8, 9}
		ta.res = halt(stackitem.Make(owner.BytesBE()))

		res, err := r.GetOwner()
		require.NoError(t, err)
		require.Equal(t, owner, res)
	})

	t.Run("integers", func(t *testing.T) {
		ta.res = halt(stackitem.Make(1_0000_0))

		b, err := r.Balance()
		require.NoError(t, err)
		require.EqualValues(t, 1_0000_0, b.Int64())

		f, err := r.MinimalFee()
		require.NoError(t, err)
		require.EqualValues(t, 1_0000_0, f.Int64())

		v, err := r.Version()
		require.NoError(t, err)
		require.EqualValues(t, 1_0000_0, v.Int64())
	})
}

func TestContract(t *testing.T) {
	var (
		hash = util.Uint160{1, 2, 3}
		ta   = &testAct{sender: util.Uint160{9, 9, 9}}
		c    = New(ta, hash)
	)

	t.Run("calls", func(t *testing.T) {
		newOwner := util.Uint160{4, 5, 6}

		h, vub, err := c.TransferOwner(newOwner)
		require.NoError(t, err)
		require.Equal(t, util.Uint256{1}, h)
		require.EqualValues(t, 42, vub)
		require.Equal(t, call{"transferOwner", []any{newOwner}}, ta.calls[len(ta.calls)-1])

		_, err = c.WithdrawTransaction(big.NewInt(5))
		require.NoError(t, err)
		require.Equal(t, call{"withdraw", []any{big.NewInt(5)}}, ta.calls[len(ta.calls)-1])

		_, err = c.UpdateUnsigned([]byte{1}, []byte("{}"), nil)
		require.NoError(t, err)
		require.Equal(t, call{"update", []any{[]byte{1}, []byte("{}"), nil}}, ta.calls[len(ta.calls)-1])
	})

	t.Run("saveHash", func(t *testing.T) {
		fee := big.NewInt(1_0000_0)
		expected, err := smartcontract.CreateCallWithAssertScript(gas.Hash, "transfer",
			ta.sender, hash, fee, []any{"udid", ipfsHash})
		require.NoError(t, err)

		_, _, err = c.SaveHash("udid", ipfsHash, fee)
		require.NoError(t, err)
		require.Equal(t, expected, ta.script)

		ta.script = nil
		tx, err := c.SaveHashUnsigned("udid", ipfsHash, fee)
		require.NoError(t, err)
		require.Equal(t, expected, tx.Script)

		ta.err = errors.New("bad")
		_, err = c.SaveHashTransaction("udid", ipfsHash, fee)
		require.Error(t, err)
		ta.err = nil
	})
}

func TestEventsFromApplicationLog(t *testing.T) {
	var (
		owner    = util.Uint160{1}
		newOwner = util.Uint160{2}
	)

	_, err := SavedHashEventsFromApplicationLog(nil)
	require.Error(t, err)

	log := &result.ApplicationLog{
		Executions: []state.Execution{{
			Events: []state.NotificationEvent{
				{
					Name: "SavedHash",
					Item: stackitem.NewArray([]stackitem.Item{
						stackitem.Make(owner.BytesBE()),
						stackitem.Make(ipfsHash),
					}),
				},
				{
					Name: "Transfer",
					Item: stackitem.NewArray([]stackitem.Item{}),
				},
				{
					Name: "OwnerTransferred",
					Item: stackitem.NewArray([]stackitem.Item{
						stackitem.Make(owner.BytesBE()),
						stackitem.Make(newOwner.BytesBE()),
					}),
				},
				{
					Name: "Withdrawn",
					Item: stackitem.NewArray([]stackitem.Item{
						stackitem.Make(newOwner.BytesBE()),
						stackitem.Make(1_0000_0000),
					}),
				},
			},
		}},
	}

	saved, err := SavedHashEventsFromApplicationLog(log)
	require.NoError(t, err)
	require.Equal(t, []*SavedHashEvent{{Submitter: owner, ContentHash: ipfsHash}}, saved)

	transferred, err := OwnerTransferredEventsFromApplicationLog(log)
	require.NoError(t, err)
	require.Equal(t, []*OwnerTransferredEvent{{Owner: owner, NewOwner: newOwner}}, transferred)

	withdrawn, err := WithdrawnEventsFromApplicationLog(log)
	require.NoError(t, err)
	require.Len(t, withdrawn, 1)
	require.Equal(t, newOwner, withdrawn[0].Owner)
	require.EqualValues(t, 1_0000_0000, withdrawn[0].Amount.Int64())

	log.Executions[0].Events[0].Item = stackitem.NewArray([]stackitem.Item{stackitem.Make(ipfsHash)})
	_, err = SavedHashEventsFromApplicationLog(log)
	require.Error(t, err)
}
