package alarmstorage

import (
	"github.com/alarmstore/alarmstorage-contract/common"
	"github.com/nspcc-dev/neo-go/pkg/interop"
	"github.com/nspcc-dev/neo-go/pkg/interop/contract"
	"github.com/nspcc-dev/neo-go/pkg/interop/native/gas"
	"github.com/nspcc-dev/neo-go/pkg/interop/native/management"
	"github.com/nspcc-dev/neo-go/pkg/interop/native/std"
	"github.com/nspcc-dev/neo-go/pkg/interop/runtime"
	"github.com/nspcc-dev/neo-go/pkg/interop/storage"
)

// Record is a content hash registered for some UDID along with the account
// that paid for it.
type Record struct {
	Submitter   interop.Hash160
	ContentHash string
}

const (
	// MinFee is a minimal GAS amount (0.001 GAS) accepted by the contract
	// to save a hash.
	MinFee = 1_0000_0

	// ErrNotEnoughFee is thrown when saveHash payment is below MinFee.
	ErrNotEnoughFee = "Not paid enough service fee"
	// ErrNotOwner is thrown by transferOwner invoked not by the owner.
	ErrNotOwner = "not owner"
	// ErrWithdrawNotOwner is thrown by withdraw invoked not by the owner.
	ErrWithdrawNotOwner = "It is not owner"
	// ErrInsufficientBalance is thrown by withdraw requesting more than stored.
	ErrInsufficientBalance = "insufficient balance"

	ownerKey     = 'o'
	balanceKey   = 'b'
	recordPrefix = 'r'

	maxUDIDLen = 63
)

// nolint:unused
func _deploy(data any, isUpdate bool) {
	if isUpdate {
		args := data.([]any)
		common.CheckVersion(args[len(args)-1].(int))
		return
	}

	owner := runtime.GetScriptContainer().Sender
	if data != nil {
		args := data.([]any)
		if len(args) > 0 && args[0] != nil {
			owner = args[0].(interop.Hash160)
		}
	}

	if len(owner) != interop.Hash160Len {
		panic("incorrect length of owner script hash")
	}

	ctx := storage.GetContext()
	storage.Put(ctx, ownerKey, owner)

	runtime.Log("alarmstorage contract initialized")
}

// Update method updates contract source code and manifest. It can be invoked
// only by the contract owner.
func Update(nefFile, manifest []byte, data any) {
	common.CheckOwnerWitness(GetOwner())

	contract.Call(interop.Hash160(management.Hash), "update",
		contract.All, nefFile, manifest, common.AppendVersion(data))
	runtime.Log("alarmstorage contract updated")
}

// OnNEP17Payment saves content hash for the UDID. It is called by the GAS
// contract when GAS is transferred to the contract with [udid, contentHash]
// data, transferred amount is a service fee. Payments below MinFee are
// rejected, so GAS is returned to the payer.
//
// It produces SavedHash notification.
func OnNEP17Payment(from interop.Hash160, amount int, data any) {
	caller := runtime.GetCallingScriptHash()
	if !caller.Equals(gas.Hash) {
		panic("alarmstorage contract accepts GAS only")
	}

	if data == nil {
		panic("missing UDID and content hash")
	}

	args := data.([]any)
	if len(args) != 2 {
		panic("invalid payment data")
	}

	udid := args[0].(string)
	contentHash := args[1].(string)

	if len(udid) == 0 {
		panic("empty UDID")
	}
	if len(udid) > maxUDIDLen {
		panic("UDID is too long")
	}
	if len(contentHash) == 0 {
		panic("empty content hash")
	}

	if amount < MinFee {
		panic(ErrNotEnoughFee)
	}

	ctx := storage.GetContext()

	common.SetSerialized(ctx, recordKey(udid), Record{
		Submitter:   from,
		ContentHash: contentHash,
	})
	storage.Put(ctx, balanceKey, common.GetInt(ctx, balanceKey)+amount)

	runtime.Notify("SavedHash", from, contentHash)
}

// GetHash returns record saved for the UDID. Record with empty fields is
// returned for unknown UDID.
func GetHash(udid string) Record {
	ctx := storage.GetReadOnlyContext()

	data := storage.Get(ctx, recordKey(udid))
	if data == nil {
		return Record{Submitter: interop.Hash160(""), ContentHash: ""}
	}

	return std.Deserialize(data.([]byte)).(Record)
}

// GetOwner returns current contract owner.
func GetOwner() interop.Hash160 {
	ctx := storage.GetReadOnlyContext()
	return storage.Get(ctx, ownerKey).(interop.Hash160)
}

// TransferOwner sets new contract owner. It can be invoked only by the current
// owner.
//
// It produces OwnerTransferred notification.
func TransferOwner(newOwner interop.Hash160) {
	ctx := storage.GetContext()

	owner := storage.Get(ctx, ownerKey).(interop.Hash160)
	common.CheckWitnessWithMessage(owner, ErrNotOwner)

	if len(newOwner) != interop.Hash160Len {
		panic("incorrect length of new owner script hash")
	}

	storage.Put(ctx, ownerKey, newOwner)

	runtime.Notify("OwnerTransferred", owner, newOwner)
}

// Withdraw transfers amount of collected fees to the owner. It can be invoked
// only by the current owner.
//
// It produces Withdrawn notification.
func Withdraw(amount int) {
	ctx := storage.GetContext()

	owner := storage.Get(ctx, ownerKey).(interop.Hash160)
	common.CheckWitnessWithMessage(owner, ErrWithdrawNotOwner)

	if amount < 0 {
		panic("negative amount")
	}

	balance := common.GetInt(ctx, balanceKey)
	if amount > balance {
		panic(ErrInsufficientBalance)
	}

	storage.Put(ctx, balanceKey, balance-amount)

	runtime.Notify("Withdrawn", owner, amount)

	if !gas.Transfer(runtime.GetExecutingScriptHash(), owner, amount, nil) {
		panic("can't transfer GAS to the owner")
	}
}

// Balance returns amount of collected fees that can be withdrawn.
func Balance() int {
	ctx := storage.GetReadOnlyContext()
	return common.GetInt(ctx, balanceKey)
}

// MinimalFee returns minimal GAS amount accepted by saveHash.
func MinimalFee() int {
	return MinFee
}

// Version returns the version of the contract.
func Version() int {
	return common.Version
}

func recordKey(udid string) []byte {
	return append([]byte{recordPrefix}, []byte(udid)...)
}
