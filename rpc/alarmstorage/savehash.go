package alarmstorage

import (
	"math/big"

	"github.com/nspcc-dev/neo-go/pkg/core/transaction"
	"github.com/nspcc-dev/neo-go/pkg/rpcclient/gas"
	"github.com/nspcc-dev/neo-go/pkg/util"
)

// SaveHash saves content hash for the UDID paying fee in GAS from the actor's
// account. Hash is saved by the contract on receiving the GAS transfer, fee
// must be at least MinimalFee.
// This transaction is signed and immediately sent to the network.
// The values returned are its hash, ValidUntilBlock value and error if any.
func (c *Contract) SaveHash(udid, contentHash string, fee *big.Int) (util.Uint256, uint32, error) {
	return gas.New(c.actor).Transfer(c.actor.Sender(), c.hash, fee, paymentData(udid, contentHash))
}

// SaveHashTransaction is similar to SaveHash, but the transaction is signed
// and returned to the caller instead of being sent.
func (c *Contract) SaveHashTransaction(udid, contentHash string, fee *big.Int) (*transaction.Transaction, error) {
	return gas.New(c.actor).TransferTransaction(c.actor.Sender(), c.hash, fee, paymentData(udid, contentHash))
}

// SaveHashUnsigned is similar to SaveHash, but the transaction is not signed.
func (c *Contract) SaveHashUnsigned(udid, contentHash string, fee *big.Int) (*transaction.Transaction, error) {
	return gas.New(c.actor).TransferUnsigned(c.actor.Sender(), c.hash, fee, paymentData(udid, contentHash))
}

func paymentData(udid, contentHash string) []any {
	return []any{udid, contentHash}
}
