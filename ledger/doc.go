/*
Package ledger implements in-process AlarmStorage ledger.

Ledger follows the same rules as AlarmStorage contract, but it is driven by
the Go code directly: every operation receives the caller identity that has
already been authenticated by the transport in front of the ledger, SaveHash
also receives the payment attached to the call.

Failure reasons are kept compatible with the contract, see ErrInsufficientPayment,
ErrNotOwner and ErrNotAdministrator.

# Storage model

Ledger keeps its state in a storage.Store of neo-go, so any of its backends
(in-memory, LevelDB, BoltDB) can be used:

  - 0x01 -> util.Uint160
    current administrator
  - 0x02 -> bigint
    collected fees available for withdrawal
  - 0x03 -> uint64 (big-endian)
    sequence number of the next event
  - 0x10<udid> -> Record
    content hash saved for the UDID
  - 0x20<seq> -> Kind + event body
    append-only event log

# Events

Every successful SaveHash, TransferOwner and Withdraw appends exactly one
event (SavedHash, OwnerTransferred and Withdrawn respectively) in the same
change set as the state update. Stored events are available via Events,
Subscribe delivers them live.
*/
package ledger
