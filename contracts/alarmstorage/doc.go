/*
Package alarmstorage implements AlarmStorage contract which registers IPFS
content hashes of alarm devices.

Every device is identified by an arbitrary UDID string. Anyone can save (or
overwrite) a content hash for a UDID by transferring at least 0.001 GAS to the
contract with [udid, contentHash] as transfer data. Collected fees are kept on
the contract account and can be withdrawn by the contract owner only. The owner
is the deployer unless another account is passed to the deployment, ownership
can be transferred by the current owner.

# Contract notifications

SavedHash notification. This notification is produced when a content hash is
saved for some UDID.

	SavedHash:
	  - name: submitter
	    type: Hash160
	  - name: contentHash
	    type: String

OwnerTransferred notification. This notification is produced when the owner
passes the contract to another account.

	OwnerTransferred:
	  - name: owner
	    type: Hash160
	  - name: newOwner
	    type: Hash160

Withdrawn notification. This notification is produced when the owner withdraws
collected fees.

	Withdrawn:
	  - name: owner
	    type: Hash160
	  - name: amount
	    type: Integer
*/
package alarmstorage

/*
Contract storage model.

# Summary
Key-value storage format:
 - 'o' -> interop.Hash160
   current contract owner
 - 'b' -> int
   collected GAS fees available for withdrawal
 - 'r'<udid> -> std.Serialize(Record)
   content hash saved for the UDID along with the paying account

# Fees
Contract balance grows only on successful saveHash payments and is decreased
before GAS is sent out on withdrawal.
*/
