package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"strings"

	"github.com/google/uuid"
	"github.com/mr-tron/base58"
	"github.com/nspcc-dev/neo-go/pkg/encoding/address"
	"github.com/nspcc-dev/neo-go/pkg/encoding/fixedn"
	"github.com/nspcc-dev/neo-go/pkg/util"
)

const (
	cidV0Len       = 34
	multihashSHA2  = 0x12
	sha256DigestSz = 0x20
)

var errNotCIDv0 = errors.New("not a base58 IPFS CIDv0")

// parseAccount accepts Neo address or LE hex script hash.
func parseAccount(s string) (util.Uint160, error) {
	if s == "" {
		return util.Uint160{}, errors.New("empty account")
	}

	if u, err := address.StringToUint160(s); err == nil {
		return u, nil
	}

	u, err := util.Uint160DecodeStringLE(strings.TrimPrefix(s, "0x"))
	if err != nil {
		return util.Uint160{}, fmt.Errorf("invalid account %q: neither address nor script hash", s)
	}

	return u, nil
}

func parseAmount(s string, decimals int) (*big.Int, error) {
	n, err := fixedn.FromString(s, decimals)
	if err != nil {
		return nil, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	if n.Sign() < 0 {
		return nil, fmt.Errorf("negative amount %q", s)
	}
	return n, nil
}

func formatAmount(n *big.Int, decimals int) string {
	return fixedn.ToString(n, decimals)
}

// checkContentHash verifies that s is an IPFS CIDv0: base58 encoded sha2-256
// multihash.
func checkContentHash(s string) error {
	b, err := base58.Decode(s)
	if err != nil {
		return fmt.Errorf("%w: %w", errNotCIDv0, err)
	}

	if len(b) != cidV0Len || b[0] != multihashSHA2 || b[1] != sha256DigestSz {
		return errNotCIDv0
	}

	return nil
}

// newUDID generates random device identifier.
func newUDID() string {
	return strings.ToUpper(uuid.NewString())
}

func printJSON(w io.Writer, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}

	_, err = fmt.Fprintf(w, "%s\n", b)
	return err
}
