package registrar

import (
	"context"
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// ErrSecretTooLong is returned for a secret that does not fit a bytes32.
var ErrSecretTooLong = errors.New("secret too long (max 31 bytes)")

// SecretBytes encodes a secret phrase as UTF-8 right-padded with zeros to 32
// bytes.
func SecretBytes(secret string) ([32]byte, error) {
	var out [32]byte
	if len(secret) > 31 {
		return out, ErrSecretTooLong
	}
	copy(out[:], secret)
	return out, nil
}

// MakeCommitment asks the registrar for the sealed-bid hash of value and
// secret on name. The contract owns the encoding, so the hash is never
// computed locally.
func (c *Client) MakeCommitment(ctx context.Context, name string, value *big.Int, secret [32]byte) (common.Hash, error) {
	if value == nil || value.Sign() < 0 {
		return common.Hash{}, &Error{Op: "makeCommitment", Kind: KindInvalidDeposit, Reason: "commitment value must be non-negative"}
	}
	out, err := c.call(ctx, common.Address{}, "makeCommitment", name, value, secret)
	if err != nil {
		return common.Hash{}, err
	}
	return common.Hash(*abi.ConvertType(out[0], new([32]byte)).(*[32]byte)), nil
}
