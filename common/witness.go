package common

import "github.com/nspcc-dev/neo-go/pkg/interop/runtime"

// ErrOwnerWitnessFailed appears when the method must be called
// by the contract owner but was not.
var ErrOwnerWitnessFailed = "owner witness check failed"

// CheckOwnerWitness checks witness of the passed owner.
// It panics with ErrOwnerWitnessFailed message on fail.
func CheckOwnerWitness(owner []byte) {
	CheckWitnessWithMessage(owner, ErrOwnerWitnessFailed)
}

// CheckWitnessWithMessage checks witness of the passed caller and panics with
// the given message on fail. It allows contracts to keep call-site specific
// failure reasons that external callers match on.
func CheckWitnessWithMessage(caller []byte, panicMsg string) {
	if !runtime.CheckWitness(caller) {
		panic(panicMsg)
	}
}
